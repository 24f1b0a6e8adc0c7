package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/foodnutrition/pipeline/internal/domain"
)

const (
	defaultGroqEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	defaultGroqModel    = "llama3-8b-8192"
)

// GroqClient talks to an OpenAI-compatible chat completions endpoint
type GroqClient struct {
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewGroqClient creates a Groq client; an API key is required
func NewGroqClient(cfg Config) (*GroqClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultGroqEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultGroqModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}

	return &GroqClient{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns "groq"
func (c *GroqClient) Name() string { return ProviderGroq }

// Model returns the configured model
func (c *GroqClient) Model() string { return c.model }

// Generate sends the prompt as a single user message
func (c *GroqClient) Generate(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, c.endpoint, headers, body, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", domain.ErrProviderFailure)
	}
	return resp.Choices[0].Message.Content, nil
}
