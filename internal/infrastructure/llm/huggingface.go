package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/foodnutrition/pipeline/internal/domain"
)

const defaultHuggingFaceModel = "microsoft/DialoGPT-medium"

// HuggingFaceClient talks to the hosted inference API
type HuggingFaceClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type hfRequest struct {
	Inputs string `json:"inputs"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// NewHuggingFaceClient creates a HuggingFace client; an API key is required
func NewHuggingFaceClient(cfg Config) (*HuggingFaceClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultHuggingFaceModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api-inference.huggingface.co/models/" + cfg.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &HuggingFaceClient{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns "huggingface"
func (c *HuggingFaceClient) Name() string { return ProviderHuggingFace }

// Model returns the configured model
func (c *HuggingFaceClient) Model() string { return c.model }

// Generate returns the first generation of the response list
func (c *HuggingFaceClient) Generate(ctx context.Context, prompt string) (string, error) {
	var resp []hfGeneration
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, c.endpoint, headers, hfRequest{Inputs: prompt}, &resp); err != nil {
		return "", err
	}

	if len(resp) == 0 {
		return "", fmt.Errorf("%w: empty generation list", domain.ErrProviderFailure)
	}
	return resp[0].GeneratedText, nil
}
