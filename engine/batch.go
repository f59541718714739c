package engine

import (
	iface "WasteDetServer/interface"
	"WasteDetServer/logger"

	"go.uber.org/zap"
)

// ValidateBatch checks the batch size bounds before any inference runs.
func (p *Pipeline) ValidateBatch(n int) error {
	if n == 0 {
		return Validationf("No images provided")
	}
	if limit := p.MaxBatch(); n > limit {
		return Validationf("Batch size exceeds maximum limit of %d", limit)
	}
	return nil
}

// BatchFailure is the result of a batch that failed before any image was
// attempted.
func BatchFailure(total int, err error) iface.BatchResult {
	return iface.BatchResult{
		Success:         false,
		Error:           err.Error(),
		Results:         []iface.ImageResult{},
		TotalImages:     total,
		ProcessedImages: 0,
		FailedImages:    total,
	}
}

// ClassifyBatch classifies identifiers in order on one model. Per-image
// failures are recorded in their ImageResult and never stop the batch. A
// non-nil error means the batch failed as a whole (validation or model) and
// the returned result is the matching failure envelope.
func (p *Pipeline) ClassifyBatch(identifiers []string, model iface.Model, threshold float64) (iface.BatchResult, error) {
	total := len(identifiers)
	if err := p.ValidateBatch(total); err != nil {
		return BatchFailure(total, err), err
	}
	if err := ValidateThreshold(threshold); err != nil {
		return BatchFailure(total, err), err
	}
	if model == nil {
		err := Modelf("Failed to load model")
		return BatchFailure(total, err), err
	}

	out := iface.BatchResult{
		Success:     true,
		Results:     make([]iface.ImageResult, 0, total),
		TotalImages: total,
	}
	for _, id := range identifiers {
		res := p.Classify(id, model, threshold)
		out.Results = append(out.Results, res)
		if res.Success {
			out.ProcessedImages++
		} else {
			out.FailedImages++
		}
	}
	logger.Log().Info("batch classified",
		zap.Int("total", out.TotalImages),
		zap.Int("processed", out.ProcessedImages),
		zap.Int("failed", out.FailedImages))
	return out, nil
}
