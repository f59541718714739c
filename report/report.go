// Package report shapes classification results into the JSON envelopes shared
// by the CLI, HTTP, websocket and gRPC boundaries. Every level carries a
// success flag so consumers can branch on it before reading the payload.
package report

import (
	"encoding/json"

	iface "WasteDetServer/interface"
)

type Detection struct {
	Type       string     `json:"type"`
	Confidence float64    `json:"confidence"`
	BBox       iface.BBox `json:"bbox"`
	Area       int        `json:"area"`
}

type Stats struct {
	Count           int     `json:"count"`
	TotalConfidence float64 `json:"total_confidence"`
	TotalArea       int     `json:"total_area"`
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgArea         int     `json:"avg_area"`
}

type Image struct {
	Image           string              `json:"image"`
	Success         bool                `json:"success"`
	Error           string              `json:"error,omitempty"`
	Detections      []Detection         `json:"detections"`
	Summary         map[string]Stats    `json:"summary"`
	TotalDetections int                 `json:"total_detections"`
	Disposal        map[string][]string `json:"disposal,omitempty"`
}

type Batch struct {
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	BatchResults    []Image `json:"batch_results"`
	TotalImages     int     `json:"total_images"`
	ProcessedImages int     `json:"processed_images"`
	FailedImages    int     `json:"failed_images"`
}

// Envelope is the bare failure shape used for request-level errors.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func FromImage(r iface.ImageResult) Image {
	out := Image{
		Image:           r.ImagePath,
		Success:         r.Success,
		Error:           r.Error,
		Detections:      make([]Detection, 0, len(r.Detections)),
		Summary:         make(map[string]Stats, len(r.Summary)),
		TotalDetections: r.TotalDetections,
		Disposal:        r.Disposal,
	}
	for _, d := range r.Detections {
		out.Detections = append(out.Detections, Detection{
			Type:       d.Category,
			Confidence: d.Confidence,
			BBox:       d.BBox,
			Area:       d.Area,
		})
	}
	for category, s := range r.Summary {
		out.Summary[category] = Stats{
			Count:           s.Count,
			TotalConfidence: s.TotalConfidence,
			TotalArea:       s.TotalArea,
			AvgConfidence:   s.AvgConfidence,
			AvgArea:         s.AvgArea,
		}
	}
	return out
}

func FromBatch(b iface.BatchResult) Batch {
	out := Batch{
		Success:         b.Success,
		Error:           b.Error,
		BatchResults:    make([]Image, 0, len(b.Results)),
		TotalImages:     b.TotalImages,
		ProcessedImages: b.ProcessedImages,
		FailedImages:    b.FailedImages,
	}
	for _, r := range b.Results {
		out.BatchResults = append(out.BatchResults, FromImage(r))
	}
	return out
}

func Failure(err error) Envelope {
	return Envelope{Success: false, Error: err.Error()}
}

// Marshal encodes v, indented when pretty is set. Map keys come out sorted,
// so equal results always encode to equal bytes.
func Marshal(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
