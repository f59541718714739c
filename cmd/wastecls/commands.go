package main

import (
	"io"
	"os"
	"strings"

	"WasteDetServer/analyzer"
	"WasteDetServer/config"
	"WasteDetServer/engine"
	"WasteDetServer/health"
	"WasteDetServer/imagesource"
	iface "WasteDetServer/interface"
	"WasteDetServer/logger"
	"WasteDetServer/report"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func namesFromFlags(c *cli.Context) (iface.NamesConf, error) {
	labels := strings.TrimSpace(c.String(flagLabels))
	file := strings.TrimSpace(c.String(flagLabelsFile))
	switch {
	case labels != "" && file != "":
		return iface.NamesConf{}, engine.Validationf("--labels and --labels-file are mutually exclusive")
	case file != "":
		return iface.NamesConf{IsFile: true, Data: file}, nil
	case labels != "":
		parts := strings.Split(labels, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return iface.NamesConf{Data: parts}, nil
	}
	return iface.NamesConf{}, engine.Validationf("one of --labels or --labels-file is required")
}

func backendFromFlags(c *cli.Context) engine.BackendConfig {
	return engine.BackendConfig{
		UseBackend:   c.String(flagBackend),
		ModelPath:    c.String(flagModel),
		InferenceURL: c.String(flagInferenceURL),
		LibraryPath:  c.String(flagLibraryPath),
	}
}

// pipelineFromFlags builds the mapper and pipeline shared by classify and batch.
func pipelineFromFlags(c *cli.Context) (*engine.Pipeline, error) {
	names, err := namesFromFlags(c)
	if err != nil {
		return nil, err
	}
	mapper, err := engine.NewCategoryMapper(names)
	if err != nil {
		return nil, err
	}
	return &engine.Pipeline{
		Mapper:       mapper,
		Loader:       imagesource.FileLoader{},
		MaxBatchSize: c.Int(flagMaxBatch),
	}, nil
}

func classifyAction(c *cli.Context, stdout io.Writer) error {
	if err := initLogger(c); err != nil {
		return err
	}
	path := c.String(flagImage)
	threshold := c.Float64(flagConfidence)
	if err := engine.ValidateThreshold(threshold); err != nil {
		return fail(stdout, report.Failure(err))
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return fail(stdout, report.Failure(engine.Validationf("Image file not found: %s", path)))
	}
	pipeline, err := pipelineFromFlags(c)
	if err != nil {
		return fail(stdout, report.Failure(err))
	}
	detector, err := engine.LoadModel(backendFromFlags(c))
	if err != nil {
		return fail(stdout, report.Failure(err))
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Log().Warn("close detector", zap.Error(err))
		}
	}()

	res := pipeline.Classify(path, detector, threshold)
	writeJSON(stdout, report.FromImage(res))
	return nil
}

func batchAction(c *cli.Context, stdout io.Writer) error {
	if err := initLogger(c); err != nil {
		return err
	}
	paths, err := parseImageList(c.String(flagImages))
	if err != nil {
		return fail(stdout, report.Envelope{Error: err.Error()})
	}
	pipeline, err := pipelineFromFlags(c)
	if err != nil {
		return fail(stdout, report.FromBatch(engine.BatchFailure(len(paths), err)))
	}
	if err := pipeline.ValidateBatch(len(paths)); err != nil {
		return fail(stdout, report.FromBatch(engine.BatchFailure(len(paths), err)))
	}
	threshold := c.Float64(flagConfidence)
	if err := engine.ValidateThreshold(threshold); err != nil {
		return fail(stdout, report.FromBatch(engine.BatchFailure(len(paths), err)))
	}

	var model iface.Model
	detector, err := engine.LoadModel(backendFromFlags(c))
	if err != nil {
		logger.Log().Error("model load failed", zap.Error(err))
	} else {
		model = detector
		defer func() {
			if err := detector.Close(); err != nil {
				logger.Log().Warn("close detector", zap.Error(err))
			}
		}()
	}

	res, err := pipeline.ClassifyBatch(paths, model, threshold)
	if err != nil {
		return fail(stdout, report.FromBatch(res))
	}
	writeJSON(stdout, report.FromBatch(res))
	return nil
}

func analyzeAction(c *cli.Context, stdout io.Writer) error {
	if err := initLogger(c); err != nil {
		return err
	}
	client := analyzer.New(analyzer.Config{
		APIKey: c.String(flagAPIKey),
		Model:  c.String(flagVisionModel),
	})
	if client == nil {
		return fail(stdout, report.Envelope{Error: "GROQ_API_KEY environment variable not set"})
	}
	img, err := imagesource.FileLoader{}.Load(c.String(flagImage))
	if err != nil {
		return fail(stdout, report.Failure(err))
	}
	img.ID = c.String(flagImage)

	res := client.Analyze(c.Context, img)
	if out := c.String(flagOutput); out != "" {
		b, err := report.Marshal(res, true)
		if err == nil {
			err = os.WriteFile(out, b, 0o644)
		}
		if err != nil {
			logger.Log().Error("write analysis output", zap.String("path", out), zap.Error(err))
		}
	}
	if !res.Success {
		return fail(stdout, res)
	}
	writeJSON(stdout, res)
	return nil
}

func healthAction(c *cli.Context, stdout io.Writer) error {
	if err := initLogger(c); err != nil {
		return err
	}
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return fail(stdout, report.Failure(err))
	}
	deps := health.Deps{
		ModelsDir:  cfg.ModelsDir,
		UploadsDir: cfg.UploadsDir,
		GroqAPIKey: cfg.Analyzer.APIKey,
	}
	detector, err := engine.LoadModel(cfg.Model)
	if err != nil {
		deps.LoadError = err
	} else {
		defer detector.Close()
		deps.Detectors = []*engine.Detector{detector}
	}
	r := health.Check(deps)
	if !r.Healthy() {
		return fail(stdout, r)
	}
	writeJSON(stdout, r)
	return nil
}
