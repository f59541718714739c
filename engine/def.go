package engine

import (
	"os"
	"strings"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

// DefaultMaxBatchSize bounds a batch when the caller does not configure one.
const DefaultMaxBatchSize = 10

// UnknownCategory is reported for class ids outside the category table.
const UnknownCategory = "unknown"

// UnclassifiedGroup collects categories missing from the disposal group table.
const UnclassifiedGroup = "unclassified"

// BackendConfig selects and parameterizes the inference backend.
type BackendConfig struct {
	UseBackend     string  `yaml:"useBackend" validate:"oneof=onnx remote"`
	ModelPath      string  `yaml:"modelPath"`
	InferenceURL   string  `yaml:"inferenceURL" validate:"omitempty,url"`
	LibraryPath    string  `yaml:"libraryPath"`
	InputSize      int     `yaml:"inputSize" validate:"gte=0"`
	MinScore       float32 `yaml:"minScore" validate:"gte=0,lte=1"`
	Iou            float32 `yaml:"iou" validate:"gte=0,lte=1"`
	UseGPU         bool    `yaml:"useGPU"`
	TimeoutSeconds int     `yaml:"timeoutSeconds" validate:"gte=0"`
}

func (c BackendConfig) withDefaults() BackendConfig {
	if c.InputSize == 0 {
		c.InputSize = 640
	}
	if c.MinScore == 0 {
		c.MinScore = 0.25
	}
	if c.Iou == 0 {
		c.Iou = 0.7
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	return c
}

// ReadLinesReadFile returns the non-empty lines of a file. CRLF endings are
// accepted.
func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := strings.Split(string(b), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimSpace(strings.TrimRight(l, "\r"))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}
