package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	iface "WasteDetServer/interface"
	"WasteDetServer/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	Registry = prometheus.NewRegistry()

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wastedet_requests_total",
		Help: "Classification requests received, by transport",
	}, []string{"transport"})
	imagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wastedet_images_total",
		Help: "Images classified, by outcome",
	}, []string{"result"})
	detectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wastedet_detections_total",
		Help: "Detections kept after filtering, by category",
	}, []string{"category"})
	inferenceSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wastedet_inference_seconds",
		Help:    "Model inference latency",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)

func init() {
	Registry.MustRegister(memUsage, cpuUsage, RequestsTotal, imagesTotal, detectionsTotal, inferenceSeconds)
}

// ObserveImage records one classified image.
func ObserveImage(res iface.ImageResult) {
	if !res.Success {
		imagesTotal.WithLabelValues("failed").Inc()
		return
	}
	imagesTotal.WithLabelValues("processed").Inc()
	for category, s := range res.Summary {
		detectionsTotal.WithLabelValues(category).Add(float64(s.Count))
	}
}

// ObserveInference records one model invocation.
func ObserveInference(d time.Duration) {
	inferenceSeconds.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func checkProcessInfo(proc *process.Process) {
	memInfo, err := proc.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	cpuPercent, err := proc.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on port and samples process usage until ctx is
// cancelled.
func StartMon(port int, ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Log().Error("process monitor unavailable", zap.Error(err))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("Prometheus server ListenAndServe error", zap.Error(err))
		}
	}()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			if proc != nil {
				checkProcessInfo(proc)
			}
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("Prometheus server Shutdown error", zap.Error(err))
	}
}
