package engine

import (
	"os"
	"sync"
	"time"

	iface "WasteDetServer/interface"
	"WasteDetServer/logger"
	"WasteDetServer/monitor"

	"go.uber.org/zap"
)

// BackendFactory builds a backend from its configuration.
type BackendFactory func(cfg BackendConfig) (iface.Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]BackendFactory{
		"onnx":   newOnnxBackend,
		"remote": newRemoteBackend,
	}
)

// RegisterBackend makes a backend available under name.
func RegisterBackend(name string, factory BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Detector owns one loaded backend and serializes calls into it.
type Detector struct {
	mu           sync.Mutex
	backend      iface.Backend
	cfg          BackendConfig
	State        int
	ErrorMessage string
}

func (d *Detector) New() bool {
	d.State = REGISTERED
	return true
}

// LoadModel builds the configured backend. Failures are model errors and leave
// the detector REGISTERED.
func (d *Detector) LoadModel(cfg BackendConfig) error {
	cfg = cfg.withDefaults()
	backendsMu.RLock()
	factory, ok := backends[cfg.UseBackend]
	backendsMu.RUnlock()
	if !ok {
		d.ErrorMessage = "unsupported backend: " + cfg.UseBackend
		return Modelf("unsupported backend: %s", cfg.UseBackend)
	}
	backend, err := factory(cfg)
	if err != nil {
		d.ErrorMessage = err.Error()
		if KindOf(err) == ErrModel {
			return err
		}
		return Modelf("Failed to load model: %v", err)
	}
	d.mu.Lock()
	d.backend = backend
	d.cfg = cfg
	d.State = IDLE
	d.ErrorMessage = ""
	d.mu.Unlock()
	logger.Log().Info("model loaded",
		zap.String("backend", cfg.UseBackend),
		zap.String("modelPath", cfg.ModelPath),
		zap.Float32("minScore", cfg.MinScore),
		zap.Float32("iou", cfg.Iou),
		zap.Bool("useGPU", cfg.UseGPU))
	return nil
}

// LoadModel returns a ready detector for cfg.
func LoadModel(cfg BackendConfig) (*Detector, error) {
	d := &Detector{}
	d.New()
	if err := d.LoadModel(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// Infer runs the backend on one image. Calls are serialized per detector.
func (d *Detector) Infer(img *iface.ImageData) ([]iface.RawDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED:
		return nil, Modelf("Detector not registered")
	case REGISTERED:
		return nil, Modelf("Model not loaded")
	}
	d.State = BUSY
	defer func() { d.State = IDLE }()
	start := time.Now()
	out, err := d.backend.Infer(img)
	monitor.ObserveInference(time.Since(start))
	return out, err
}

// Close releases the backend; it is the iface.Model form of Destroy.
func (d *Detector) Close() error {
	return d.Destroy()
}

func (d *Detector) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.backend != nil {
		err = d.backend.Close()
	}
	d.backend = nil
	d.cfg = BackendConfig{}
	d.State = UNREGISTERED
	return err
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.backend == nil {
		return iface.EngineConfig{}
	}
	return d.backend.CheckConfig()
}

// Loaded reports whether the detector holds a usable backend.
func (d *Detector) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backend != nil && (d.State == IDLE || d.State == BUSY)
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
