package engine

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	iface "WasteDetServer/interface"

	"github.com/disintegration/imaging"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// remoteBackend forwards images to an inference service that answers with
// {"detections":[{"box":[x1,y1,x2,y2],"class_id":n,"confidence":c}]}.
type remoteBackend struct {
	cfg    BackendConfig
	client *resty.Client
}

type remoteDetection struct {
	Box        []float64 `json:"box"`
	ClassID    *int      `json:"class_id"`
	Confidence *float64  `json:"confidence"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

func newRemoteBackend(cfg BackendConfig) (iface.Backend, error) {
	if cfg.InferenceURL == "" {
		return nil, Modelf("remote backend requires inferenceURL")
	}
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Accept", "application/json")
	return &remoteBackend{cfg: cfg, client: client}, nil
}

func (b *remoteBackend) Infer(img *iface.ImageData) ([]iface.RawDetection, error) {
	if img == nil {
		return nil, errors.New("empty image")
	}
	payload := img.Raw
	name := img.ID
	if len(payload) == 0 {
		if img.Image == nil {
			return nil, errors.New("empty image")
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img.Image, imaging.JPEG); err != nil {
			return nil, errors.Wrap(err, "encode image")
		}
		payload = buf.Bytes()
	}
	if name == "" {
		name = "image.jpg"
	}

	var body remoteResponse
	resp, err := b.client.R().
		SetFileReader("file", name, bytes.NewReader(payload)).
		SetResult(&body).
		Post(b.cfg.InferenceURL)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode())
	}

	out := make([]iface.RawDetection, 0, len(body.Detections))
	for i, d := range body.Detections {
		if len(d.Box) != 4 || d.ClassID == nil || d.Confidence == nil {
			return nil, fmt.Errorf("malformed detection %d in inference response", i)
		}
		if *d.ClassID < 0 {
			return nil, fmt.Errorf("detection %d has negative class id %d", i, *d.ClassID)
		}
		out = append(out, iface.RawDetection{
			X1:         d.Box[0],
			Y1:         d.Box[1],
			X2:         d.Box[2],
			Y2:         d.Box[3],
			ClassID:    *d.ClassID,
			Confidence: *d.Confidence,
		})
	}
	return out, nil
}

// Ping checks the inference service's health endpoint.
func (b *remoteBackend) Ping() error {
	resp, err := b.client.R().Get(strings.TrimRight(b.cfg.InferenceURL, "/") + "/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode())
	}
	return nil
}

func (b *remoteBackend) Close() error { return nil }

func (b *remoteBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		Backend:   "remote",
		ModelPath: b.cfg.InferenceURL,
	}
}

// Pinger is implemented by backends that can check a remote dependency.
type Pinger interface {
	Ping() error
}

// Ping checks the detector's backend when it supports it.
func (d *Detector) Ping() error {
	d.mu.Lock()
	backend := d.backend
	d.mu.Unlock()
	if backend == nil {
		return Modelf("Model not loaded")
	}
	if p, ok := backend.(Pinger); ok {
		return p.Ping()
	}
	return nil
}
