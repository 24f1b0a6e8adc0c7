package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// Provider names
const (
	ProviderGroq        = "groq"
	ProviderOllama      = "ollama"
	ProviderHuggingFace = "huggingface"
)

// Config configures one provider client
type Config struct {
	Name        string
	Endpoint    string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64

	// RateLimit requests are allowed per RateWindow; zero means unbounded
	RateLimit  int
	RateWindow time.Duration
	// Delay is waited after every request to pace the upstream
	Delay time.Duration
}

// New builds the client for cfg.Name wrapped in its rate limiter.
// Hosted providers without an API key are rejected so the chain can skip them.
func New(cfg Config, logger *zap.Logger) (domain.EnrichmentProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var p domain.EnrichmentProvider
	var err error
	switch cfg.Name {
	case ProviderGroq:
		p, err = NewGroqClient(cfg)
	case ProviderOllama:
		p, err = NewOllamaClient(cfg)
	case ProviderHuggingFace:
		p, err = NewHuggingFaceClient(cfg)
	default:
		err = fmt.Errorf("unknown provider: %q", cfg.Name)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("enrichment provider initialized",
		zap.String("provider", p.Name()),
		zap.String("model", p.Model()),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("rate_limit", cfg.RateLimit),
		zap.Duration("rate_window", cfg.RateWindow),
	)
	return NewRateLimited(p, cfg.RateLimit, cfg.RateWindow, cfg.Delay, logger), nil
}

// NewChain builds providers in priority order, skipping any that fail to initialize
func NewChain(cfgs []Config, logger *zap.Logger) []domain.EnrichmentProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	var chain []domain.EnrichmentProvider
	for _, cfg := range cfgs {
		p, err := New(cfg, logger)
		if err != nil {
			logger.Warn("skipping enrichment provider",
				zap.String("provider", cfg.Name),
				zap.Error(err),
			)
			continue
		}
		chain = append(chain, p)
	}
	return chain
}

// RateLimited wraps a provider with a rolling per-window request quota.
// Unlike a blocking limiter it rejects immediately with ErrRateLimited so
// the caller can move on to the next provider.
type RateLimited struct {
	provider domain.EnrichmentProvider
	requests int
	window   time.Duration
	delay    time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	issued []time.Time
}

// NewRateLimited allows at most requests calls within any window-long span
func NewRateLimited(p domain.EnrichmentProvider, requests int, window, delay time.Duration, logger *zap.Logger) *RateLimited {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimited{
		provider: p,
		requests: requests,
		window:   window,
		delay:    delay,
		logger:   logger,
		now:      time.Now,
	}
}

// allow records a request at the current time when fewer than requests
// calls were issued during the trailing window
func (r *RateLimited) allow() bool {
	if r.requests <= 0 || r.window <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.issued[:0]
	for _, ts := range r.issued {
		if now.Sub(ts) < r.window {
			kept = append(kept, ts)
		}
	}
	r.issued = kept

	if len(r.issued) >= r.requests {
		return false
	}
	r.issued = append(r.issued, now)
	return true
}

// Name returns the wrapped provider's name
func (r *RateLimited) Name() string { return r.provider.Name() }

// Model returns the wrapped provider's model
func (r *RateLimited) Model() string { return r.provider.Model() }

// Generate forwards the prompt when quota remains in the current window
func (r *RateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if !r.allow() {
		r.logger.Debug("provider quota exhausted", zap.String("provider", r.provider.Name()))
		return "", fmt.Errorf("%w: %s", domain.ErrRateLimited, r.provider.Name())
	}

	out, err := r.provider.Generate(ctx, prompt)

	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	return out, err
}

// postJSON sends body as JSON and decodes a 200 response into out
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: upstream returned 429", domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", domain.ErrProviderFailure, err)
	}
	return nil
}
