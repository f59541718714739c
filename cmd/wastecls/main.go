// Package main is the wastecls command: one-shot classification, batch
// classification, remote analysis and health checks printed as JSON.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"WasteDetServer/logger"
	"WasteDetServer/report"

	"github.com/urfave/cli/v2"
)

const (
	flagImage        = "image"
	flagImages       = "images"
	flagModel        = "model"
	flagBackend      = "backend"
	flagInferenceURL = "inference-url"
	flagLibraryPath  = "library-path"
	flagLabels       = "labels"
	flagLabelsFile   = "labels-file"
	flagConfidence   = "confidence"
	flagMaxBatch     = "max-batch"
	flagAPIKey       = "api-key"
	flagVisionModel  = "vision-model"
	flagOutput       = "output"
	flagConfig       = "config"
	flagLogLevel     = "log-level"
)

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

// run executes the command line and returns the process exit code. Results
// and failure envelopes go to stdout; help and logs go to stderr.
func run(args []string, stdout io.Writer) int {
	err := newApp(stdout).Run(args)
	logger.Sync()
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	writeJSON(stdout, report.Failure(err))
	return 1
}

func newApp(stdout io.Writer) *cli.App {
	modelFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  flagModel,
			Usage: "path of the .onnx detection model",
			Value: "models/yolov8n.onnx",
		},
		&cli.StringFlag{
			Name:  flagBackend,
			Usage: "inference backend: onnx or remote",
			Value: "onnx",
		},
		&cli.StringFlag{
			Name:  flagInferenceURL,
			Usage: "inference service URL for the remote backend",
		},
		&cli.StringFlag{
			Name:    flagLibraryPath,
			Usage:   "onnxruntime shared library",
			EnvVars: []string{"ONNXRUNTIME_SHARED_LIBRARY_PATH"},
		},
		&cli.StringFlag{
			Name:  flagLabels,
			Usage: "comma separated category labels, indexed by class id",
		},
		&cli.StringFlag{
			Name:  flagLabelsFile,
			Usage: "file with one category label per line",
		},
		&cli.Float64Flag{
			Name:     flagConfidence,
			Usage:    "minimum confidence of a reported detection, in [0,1]",
			Required: true,
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "log level written to stderr",
			Value: "warn",
		},
	}

	return &cli.App{
		Name:           "wastecls",
		Usage:          "classify waste in images and print JSON reports",
		Writer:         os.Stderr,
		ErrWriter:      os.Stderr,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:  "classify",
				Usage: "classify a single image",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: flagImage, Usage: "image path", Required: true},
				}, modelFlags...),
				Action: func(c *cli.Context) error { return classifyAction(c, stdout) },
			},
			{
				Name:  "batch",
				Usage: "classify a JSON array of image paths",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: flagImages, Usage: "JSON array of image paths", Required: true},
					&cli.IntFlag{Name: flagMaxBatch, Usage: "maximum number of images", Value: 10},
				}, modelFlags...),
				Action: func(c *cli.Context) error { return batchAction(c, stdout) },
			},
			{
				Name:  "analyze",
				Usage: "send an image to the remote vision model",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagImage, Usage: "image path", Required: true},
					&cli.StringFlag{Name: flagAPIKey, Usage: "Groq API key", EnvVars: []string{"GROQ_API_KEY"}},
					&cli.StringFlag{Name: flagVisionModel, Usage: "vision model name"},
					&cli.StringFlag{Name: flagOutput, Usage: "also write the result to this file"},
					&cli.StringFlag{Name: flagLogLevel, Value: "warn"},
				},
				Action: func(c *cli.Context) error { return analyzeAction(c, stdout) },
			},
			{
				Name:  "health",
				Usage: "check models, directories and API keys",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagConfig, Usage: "server config file", Value: "config.yaml"},
					&cli.StringFlag{Name: flagLogLevel, Value: "warn"},
				},
				Action: func(c *cli.Context) error { return healthAction(c, stdout) },
			},
		},
	}
}

func initLogger(c *cli.Context) error {
	return logger.Init(logger.Options{Level: c.String(flagLogLevel), Stderr: true})
}

func writeJSON(w io.Writer, v any) {
	b, err := report.Marshal(v, true)
	if err != nil {
		fmt.Fprintf(w, "{\"success\": false, \"error\": %q}\n", err.Error())
		return
	}
	_, _ = w.Write(append(b, '\n'))
}

// fail prints the failure envelope and exits 1.
func fail(w io.Writer, v any) error {
	writeJSON(w, v)
	return cli.Exit("", 1)
}

// parseImageList decodes the --images argument.
func parseImageList(s string) ([]string, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, errors.New("Invalid JSON format for images argument")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errors.New("Batch processing failed: Images argument must be a JSON array")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if str, ok := item.(string); ok {
			out = append(out, str)
		} else {
			out = append(out, fmt.Sprint(item))
		}
	}
	return out, nil
}
