package llm

import (
	"context"
	"net/http"
	"time"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434/api/generate"
	defaultOllamaModel    = "llama3.2:3b"
)

// OllamaClient talks to a local Ollama server
type OllamaClient struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOllamaEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}

	return &OllamaClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns "ollama"
func (c *OllamaClient) Name() string { return ProviderOllama }

// Model returns the configured model
func (c *OllamaClient) Model() string { return c.model }

// Generate runs a non-streaming completion
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body := ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: c.temperature,
			TopP:        0.9,
			NumPredict:  c.maxTokens,
		},
	}

	var resp ollamaResponse
	if err := postJSON(ctx, c.httpClient, c.endpoint, nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}
