package engine

import (
	"math"
	"sort"

	iface "WasteDetServer/interface"
)

// roundTo3 rounds half away from zero to three decimals.
func roundTo3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Normalize converts one raw model detection. The box is truncated toward
// zero and the area is computed on the truncated corners, so degenerate boxes
// yield zero or negative areas.
func (m *CategoryMapper) Normalize(raw iface.RawDetection) iface.NormalizedDetection {
	box := iface.BBox{
		X1: int(raw.X1),
		Y1: int(raw.Y1),
		X2: int(raw.X2),
		Y2: int(raw.Y2),
	}
	return iface.NormalizedDetection{
		Category:   m.Map(raw.ClassID),
		Confidence: roundTo3(raw.Confidence),
		BBox:       box,
		Area:       (box.X2 - box.X1) * (box.Y2 - box.Y1),
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// Postprocessor filters or reorders a list of normalized detections.
type Postprocessor func([]iface.NormalizedDetection) []iface.NormalizedDetection

// NewScoreFilter keeps detections whose (rounded) confidence is at least conf.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []iface.NormalizedDetection) []iface.NormalizedDetection {
		out := make([]iface.NormalizedDetection, 0, len(in))
		for _, d := range in {
			if d.Confidence >= conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// SortByConfidence orders detections by confidence, highest first. Equal
// confidences keep their model output order.
func SortByConfidence(in []iface.NormalizedDetection) []iface.NormalizedDetection {
	sort.SliceStable(in, func(i, j int) bool {
		return in[i].Confidence > in[j].Confidence
	})
	return in
}

// Summarize folds detections into per-category statistics.
func Summarize(dets []iface.NormalizedDetection) map[string]iface.CategoryStats {
	summary := make(map[string]iface.CategoryStats)
	for _, d := range dets {
		s := summary[d.Category]
		s.Count++
		s.TotalConfidence += d.Confidence
		s.TotalArea += d.Area
		summary[d.Category] = s
	}
	for category, s := range summary {
		s.AvgConfidence = roundTo3(s.TotalConfidence / float64(s.Count))
		s.AvgArea = floorDiv(s.TotalArea, s.Count)
		summary[category] = s
	}
	return summary
}

// GroupByDisposal maps each present category to its disposal group. Categories
// missing from groups land in UnclassifiedGroup. A nil table yields nil.
func GroupByDisposal(summary map[string]iface.CategoryStats, groups map[string]string) map[string][]string {
	if groups == nil {
		return nil
	}
	out := make(map[string][]string)
	for category := range summary {
		group, ok := groups[category]
		if !ok {
			group = UnclassifiedGroup
		}
		out[group] = append(out[group], category)
	}
	for group := range out {
		sort.Strings(out[group])
	}
	return out
}
