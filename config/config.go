package config

import (
	"os"
	"strings"

	"WasteDetServer/analyzer"
	"WasteDetServer/engine"
	iface "WasteDetServer/interface"
	"WasteDetServer/logger"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	RPCPort     int `yaml:"RPCPort" validate:"gte=0,lte=65535"`
	HTTPPort    int `yaml:"HTTPPort" validate:"gte=0,lte=65535"`
	MetricsPort int `yaml:"MetricsPort" validate:"gte=0,lte=65535"`
	WorkersNum  int `yaml:"workersNum"`

	Model engine.BackendConfig `yaml:"model"`

	// Exactly one category table source must be set.
	Labels     []string       `yaml:"labels"`
	LabelMap   map[int]string `yaml:"labelMap"`
	LabelsFile string         `yaml:"labelsFile"`

	Groups map[string]string `yaml:"groups"`

	// Confidence is the default threshold; it has no implicit value.
	Confidence   *float64 `yaml:"confidence" validate:"required,gte=0,lte=1"`
	MaxBatchSize int      `yaml:"maxBatchSize" validate:"gte=0"`

	ModelsDir  string `yaml:"modelsDir"`
	UploadsDir string `yaml:"uploadsDir"`

	Analyzer analyzer.Config `yaml:"analyzer"`
	Log      logger.Options  `yaml:"log"`
}

var validate = validator.New()

// Load reads a YAML config file, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if key := strings.TrimSpace(os.Getenv("GROQ_API_KEY")); key != "" {
		c.Analyzer.APIKey = key
	}
}

func (c *Config) applyDefaults() {
	if c.HTTPPort == 0 {
		c.HTTPPort = 8080
	}
	if c.WorkersNum <= 0 {
		c.WorkersNum = 1
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = engine.DefaultMaxBatchSize
	}
	if c.Model.UseBackend == "" {
		c.Model.UseBackend = "onnx"
	}
	if c.ModelsDir == "" {
		c.ModelsDir = "models"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "uploads"
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if _, err := c.Names(); err != nil {
		return err
	}
	switch c.Model.UseBackend {
	case "onnx":
		if c.Model.ModelPath == "" {
			return errors.New("invalid config: model.modelPath is required for the onnx backend")
		}
	case "remote":
		if c.Model.InferenceURL == "" {
			return errors.New("invalid config: model.inferenceURL is required for the remote backend")
		}
	}
	return nil
}

// Names returns the configured category table source.
func (c *Config) Names() (iface.NamesConf, error) {
	sources := 0
	var names iface.NamesConf
	if len(c.Labels) > 0 {
		sources++
		names = iface.NamesConf{Data: c.Labels}
	}
	if len(c.LabelMap) > 0 {
		sources++
		names = iface.NamesConf{Data: c.LabelMap}
	}
	if c.LabelsFile != "" {
		sources++
		names = iface.NamesConf{IsFile: true, Data: c.LabelsFile}
	}
	switch sources {
	case 0:
		return names, errors.New("invalid config: one of labels, labelMap or labelsFile is required")
	case 1:
		return names, nil
	default:
		return names, errors.New("invalid config: labels, labelMap and labelsFile are mutually exclusive")
	}
}

// Threshold returns the configured default confidence threshold.
func (c *Config) Threshold() float64 {
	if c.Confidence == nil {
		return 0
	}
	return *c.Confidence
}
