package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
RPCPort: 50051
HTTPPort: 8080
MetricsPort: 9090
workersNum: 2
model:
  useBackend: onnx
  modelPath: models/yolov8n.onnx
labels: [plastic, paper, glass]
groups:
  plastic: recyclable
confidence: 0.5
log:
  level: debug
`

func TestParse(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)
	assert.Equal(t, 50051, cfg.RPCPort)
	assert.Equal(t, 2, cfg.WorkersNum)
	assert.Equal(t, 0.5, cfg.Threshold())
	assert.Equal(t, 10, cfg.MaxBatchSize)
	assert.Equal(t, "models", cfg.ModelsDir)
	assert.Equal(t, "uploads", cfg.UploadsDir)
	assert.Equal(t, "gsk_test", cfg.Analyzer.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "recyclable", cfg.Groups["plastic"])

	names, err := cfg.Names()
	require.NoError(t, err)
	assert.False(t, names.IsFile)
	assert.Equal(t, []string{"plastic", "paper", "glass"}, names.Data)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("model:\n  modelPath: m.onnx\nlabelsFile: labels.txt\nconfidence: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, "onnx", cfg.Model.UseBackend)
	assert.Equal(t, 1, cfg.WorkersNum)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 0.0, cfg.Threshold())
	names, err := cfg.Names()
	require.NoError(t, err)
	assert.True(t, names.IsFile)
}

func TestParseLabelMap(t *testing.T) {
	cfg, err := Parse([]byte("model:\n  modelPath: m.onnx\nlabelMap:\n  0: plastic\n  39: bottle\nconfidence: 0.2\n"))
	require.NoError(t, err)
	names, err := cfg.Names()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "plastic", 39: "bottle"}, names.Data)
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"missing confidence":   "model:\n  modelPath: m.onnx\nlabels: [a]\n",
		"confidence too large": "model:\n  modelPath: m.onnx\nlabels: [a]\nconfidence: 1.5\n",
		"no labels":            "model:\n  modelPath: m.onnx\nconfidence: 0.5\n",
		"two label sources":    "model:\n  modelPath: m.onnx\nlabels: [a]\nlabelsFile: l.txt\nconfidence: 0.5\n",
		"unknown backend":      "model:\n  useBackend: tflite\n  modelPath: m\nlabels: [a]\nconfidence: 0.5\n",
		"onnx without model":   "labels: [a]\nconfidence: 0.5\n",
		"remote without url":   "model:\n  useBackend: remote\nlabels: [a]\nconfidence: 0.5\n",
		"bad port":             "RPCPort: 70000\nmodel:\n  modelPath: m.onnx\nlabels: [a]\nconfidence: 0.5\n",
		"bad log level":        "model:\n  modelPath: m.onnx\nlabels: [a]\nconfidence: 0.5\nlog:\n  level: loud\n",
		"not yaml":             "model: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.MetricsPort)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
