package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"WasteDetServer/analyzer"
	"WasteDetServer/config"
	"WasteDetServer/engine"
	backend "WasteDetServer/gRPC"
	"WasteDetServer/health"
	"WasteDetServer/httpapi"
	iface "WasteDetServer/interface"
	"WasteDetServer/logger"
	"WasteDetServer/monitor"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	app := &cli.App{
		Name:  "WasteDetServer",
		Usage: "waste detection server (HTTP, websocket and gRPC)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file",
				Value:   "config.yaml",
			},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String("config"))
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "WasteDetServer:", err)
		os.Exit(1)
	}
}

// loadDetectors builds one detector per worker. A load failure is logged and
// leaves the server running without workers so health checks can report it.
func loadDetectors(cfg *config.Config) ([]iface.Model, []*engine.Detector, error) {
	models := make([]iface.Model, 0, cfg.WorkersNum)
	detectors := make([]*engine.Detector, 0, cfg.WorkersNum)
	for i := 0; i < cfg.WorkersNum; i++ {
		d, err := engine.LoadModel(cfg.Model)
		if err != nil {
			for _, loaded := range detectors {
				_ = loaded.Close()
			}
			return nil, nil, err
		}
		models = append(models, d)
		detectors = append(detectors, d)
	}
	return models, detectors, nil
}

func serve(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Println(strings.Repeat("#", 64))
	cpuNum := runtime.NumCPU()
	fmt.Printf("CPU Cores: %d\n", cpuNum)
	fmt.Println(" gRPC    Port:", cfg.RPCPort)
	fmt.Println(" HTTP    Port:", cfg.HTTPPort)
	fmt.Println(" Metrics Port:", cfg.MetricsPort)
	fmt.Println("Configured Workers Num:", cfg.WorkersNum)
	fmt.Println(strings.Repeat("#", 64))
	if cfg.WorkersNum > cpuNum {
		logger.Log().Warn("workersNum exceeds CPU cores, which may lead to performance degradation",
			zap.Int("workersNum", cfg.WorkersNum), zap.Int("cpu", cpuNum))
	}

	names, err := cfg.Names()
	if err != nil {
		return err
	}
	mapper, err := engine.NewCategoryMapper(names)
	if err != nil {
		return err
	}
	models, detectors, loadErr := loadDetectors(cfg)
	if loadErr != nil {
		logger.Log().Error("model load failed, serving without workers", zap.Error(loadErr))
	}
	pool := engine.NewPool(models)
	pipeline := &engine.Pipeline{
		Mapper:       mapper,
		MaxBatchSize: cfg.MaxBatchSize,
		Groups:       cfg.Groups,
	}
	vision := analyzer.New(cfg.Analyzer)
	if vision == nil {
		logger.Log().Warn("GROQ_API_KEY not set, /api/analyze is disabled")
	}
	deps := health.Deps{
		ModelsDir:  cfg.ModelsDir,
		UploadsDir: cfg.UploadsDir,
		Detectors:  detectors,
		LoadError:  loadErr,
		GroqAPIKey: cfg.Analyzer.APIKey,
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	var wg sync.WaitGroup
	if cfg.MetricsPort > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.StartMon(cfg.MetricsPort, ctx)
		}()
	}

	var grpcServer *grpc.Server
	if cfg.RPCPort > 0 {
		grpcServer, err = backend.StartGRPCServer(cfg.RPCPort, &backend.Server{
			Pipeline:  pipeline,
			Pool:      pool,
			Threshold: cfg.Threshold(),
		})
		if err != nil {
			cancel()
			wg.Wait()
			return multierr.Append(err, pool.Close())
		}
	}
	api := &httpapi.Server{
		Pipeline:  pipeline,
		Pool:      pool,
		Threshold: cfg.Threshold(),
		Analyzer:  vision,
		Health:    func() health.Report { return health.Check(deps) },
		ModelsDir: cfg.ModelsDir,
	}
	httpServer := api.Start(cfg.HTTPPort)

	<-ctx.Done()
	logger.Log().Warn("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	var errs error
	errs = multierr.Append(errs, httpServer.Shutdown(shutdownCtx))
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	errs = multierr.Append(errs, pool.Close())
	wg.Wait()
	if errs != nil {
		logger.Log().Error("shutdown finished with errors", zap.Error(errs))
		return errs
	}
	fmt.Println("Safely exited")
	return nil
}
