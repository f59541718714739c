package analyzer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	iface "WasteDetServer/interface"
	"WasteDetServer/logger"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel    = "llava-3.1-sonar-small-128k"
	TimeOutSeconds  = 30
)

const prompt = `Analyze this waste image and provide detailed insights. Please include:
1. Types of waste visible in the image
2. Estimated quantities and volumes
3. Environmental impact assessment
4. Recommended disposal methods
5. Recycling potential
6. Safety considerations
7. Priority level for collection (low/medium/high/urgent)
8. Specific recommendations for waste management

Please provide a structured JSON response with these categories.`

type Config struct {
	Endpoint       string `yaml:"endpoint" validate:"omitempty,url"`
	APIKey         string `yaml:"apiKey"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" validate:"gte=0"`
}

type Metadata struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Result is the analysis envelope. Degraded marks an analysis whose content
// could not be read as JSON and was replaced by the fixed placeholder.
type Result struct {
	Success         bool           `json:"success"`
	Error           string         `json:"error,omitempty"`
	Analysis        map[string]any `json:"analysis,omitempty"`
	Degraded        bool           `json:"degraded"`
	APIResponseTime float64        `json:"api_response_time,omitempty"`
	ModelUsed       string         `json:"model_used,omitempty"`
	ImageMetadata   *Metadata      `json:"image_metadata,omitempty"`
	ImagePath       string         `json:"image_path,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type Client struct {
	cfg    Config
	client *resty.Client
}

// New returns a client, or nil when no API key is configured.
func New(cfg Config) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = TimeOutSeconds
	}
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetAuthToken(cfg.APIKey)
	return &Client{cfg: cfg, client: client}
}

func (c *Client) Model() string { return c.cfg.Model }

// Analyze sends img to the vision model. Transport and API failures come back
// as an unsuccessful Result, never as an error.
func (c *Client) Analyze(ctx context.Context, img *iface.ImageData) Result {
	if img == nil || len(img.Raw) == 0 {
		return Result{Success: false, Error: "Failed to encode image"}
	}
	mime := "image/jpeg"
	if img.Format != "" && img.Format != "jpeg" {
		mime = "image/" + img.Format
	}
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Raw)),
				}},
			},
		}},
		MaxTokens:   2048,
		Temperature: 0.1,
	}

	var body chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&body).
		Post(c.cfg.Endpoint)
	if err != nil {
		if isTimeout(err) {
			return Result{Success: false, Error: "API request timed out"}
		}
		logger.Log().Error("analysis request error", zap.Error(err))
		return Result{Success: false, Error: fmt.Sprintf("API request failed: %v", err)}
	}
	if resp.IsError() {
		return Result{Success: false, Error: fmt.Sprintf("API request failed: %d - %s", resp.StatusCode(), resp.String())}
	}
	if len(body.Choices) == 0 {
		return Result{Success: false, Error: "Analysis failed: response has no choices"}
	}

	analysis, degraded := ParseAnalysis(body.Choices[0].Message.Content)
	if degraded {
		logger.Log().Warn("analysis response was not JSON, returning degraded analysis")
	}
	return Result{
		Success:         true,
		Analysis:        analysis,
		Degraded:        degraded,
		APIResponseTime: resp.Time().Seconds(),
		ModelUsed:       c.cfg.Model,
		ImageMetadata: &Metadata{
			Format: img.Format,
			Width:  img.Width,
			Height: img.Height,
		},
		ImagePath: img.ID,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ParseAnalysis extracts the JSON object spanning the first '{' to the last
// '}' of content. When there is none, or it does not parse, it returns the
// placeholder structure and degraded=true.
func ParseAnalysis(content string) (map[string]any, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		var out map[string]any
		if err := json.Unmarshal([]byte(content[start:end+1]), &out); err == nil {
			return out, false
		}
	}
	return Placeholder(content), true
}

// Placeholder is the fixed degraded analysis; only raw_analysis varies.
func Placeholder(raw string) map[string]any {
	return map[string]any{
		"raw_analysis":          raw,
		"waste_types":           "Extracted from analysis",
		"quantities":            "Estimated from image",
		"environmental_impact":  "Assessed from analysis",
		"disposal_methods":      "Recommended based on content",
		"recycling_potential":   "Evaluated from waste types",
		"safety_considerations": "Identified from analysis",
		"priority_level":        "medium",
		"recommendations":       "Based on waste composition",
	}
}
