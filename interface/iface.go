package iface

import "image"

// NamesConf describes where a category table comes from: an inline ordered
// list, an id -> label map, or a file with one label per line.
type NamesConf struct {
	IsFile bool
	Data   any
}

type EngineConfig struct {
	Backend   string
	ModelPath string
	MinScore  float32
	Iou       float32
	UseGPU    bool
}

// ImageData is one loaded image. Raw keeps the encoded bytes so backends that
// forward the image over the wire do not have to re-encode it.
type ImageData struct {
	ID     string
	Raw    []byte
	Format string
	Image  image.Image
	Width  int
	Height int
}

// RawDetection is one box as produced by a model, in source pixel coordinates.
// x2 >= x1 and y2 >= y1 are not guaranteed.
type RawDetection struct {
	X1, Y1, X2, Y2 float64
	ClassID        int
	Confidence     float64
}

type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type NormalizedDetection struct {
	Category   string
	Confidence float64
	BBox       BBox
	Area       int
}

type CategoryStats struct {
	Count           int
	TotalConfidence float64
	TotalArea       int
	AvgConfidence   float64
	AvgArea         int
}

type ImageResult struct {
	ImagePath       string
	Success         bool
	Error           string
	Detections      []NormalizedDetection
	Summary         map[string]CategoryStats
	TotalDetections int
	// Disposal groups present categories by disposal group; nil when no
	// group table is configured.
	Disposal map[string][]string
}

type BatchResult struct {
	Success         bool
	Error           string
	Results         []ImageResult
	TotalImages     int
	ProcessedImages int
	FailedImages    int
}

// Model is a loaded detection model. Implementations are not assumed to be
// safe for concurrent use.
type Model interface {
	Infer(img *ImageData) ([]RawDetection, error)
	Close() error
}

// Backend is a Model that can also report how it was configured.
type Backend interface {
	Model
	CheckConfig() EngineConfig
}
