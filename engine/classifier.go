package engine

import (
	iface "WasteDetServer/interface"
	"WasteDetServer/logger"
	"WasteDetServer/monitor"

	"go.uber.org/zap"
)

// ImageLoader resolves an image identifier to a decoded image.
type ImageLoader interface {
	Load(identifier string) (*iface.ImageData, error)
}

// Pipeline turns raw model output into aggregated reports. It holds only
// construction-time configuration; every call builds fresh results.
type Pipeline struct {
	Mapper       *CategoryMapper
	Loader       ImageLoader
	MaxBatchSize int
	// Groups maps categories to disposal groups; nil disables grouping.
	Groups map[string]string
}

// WithLoader returns a copy of p reading images from loader.
func (p *Pipeline) WithLoader(loader ImageLoader) *Pipeline {
	cp := *p
	cp.Loader = loader
	return &cp
}

// MaxBatch is the effective batch size limit.
func (p *Pipeline) MaxBatch() int {
	if p.MaxBatchSize <= 0 {
		return DefaultMaxBatchSize
	}
	return p.MaxBatchSize
}

func failedImage(identifier string, err error) iface.ImageResult {
	return iface.ImageResult{
		ImagePath:  identifier,
		Success:    false,
		Error:      err.Error(),
		Detections: []iface.NormalizedDetection{},
		Summary:    map[string]iface.CategoryStats{},
	}
}

// Classify runs model over one image and reduces its detections. It never
// panics and never returns an error: load failures, inference failures and
// internal faults all come back as a failed ImageResult.
func (p *Pipeline) Classify(identifier string, model iface.Model, threshold float64) (res iface.ImageResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("classification panic recovered",
				zap.String("image", identifier), zap.Any("panic", r))
			res = failedImage(identifier, newKind(ErrInternal, "classification failed: %v", r))
		}
		monitor.ObserveImage(res)
	}()

	if p.Loader == nil {
		return failedImage(identifier, newKind(ErrInternal, "no image loader configured"))
	}
	img, err := p.Loader.Load(identifier)
	if err != nil {
		logger.Log().Warn("image load failed", zap.String("image", identifier), zap.Error(err))
		return failedImage(identifier, err)
	}
	if model == nil {
		return failedImage(identifier, Modelf("model not loaded"))
	}

	raw, err := model.Infer(img)
	if err != nil {
		logger.Log().Warn("inference failed", zap.String("image", identifier), zap.Error(err))
		return failedImage(identifier, Resourcef("inference failed: %v", err))
	}

	normalized := make([]iface.NormalizedDetection, 0, len(raw))
	for _, r := range raw {
		normalized = append(normalized, p.Mapper.Normalize(r))
	}
	detections := SortByConfidence(NewScoreFilter(threshold)(normalized))
	summary := Summarize(detections)

	logger.Log().Debug("image classified",
		zap.String("image", identifier),
		zap.Int("raw", len(raw)),
		zap.Int("kept", len(detections)),
		zap.Float64("threshold", threshold))

	return iface.ImageResult{
		ImagePath:       identifier,
		Success:         true,
		Detections:      detections,
		Summary:         summary,
		TotalDetections: len(detections),
		Disposal:        GroupByDisposal(summary, p.Groups),
	}
}

// ValidateThreshold rejects thresholds outside [0,1].
func ValidateThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return Validationf("confidence must be between 0.0 and 1.0, got %v", threshold)
	}
	return nil
}
