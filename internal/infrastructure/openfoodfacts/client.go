package openfoodfacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/foodnutrition/pipeline/internal/domain"
)

const defaultPageSize = 5

// Client searches the OpenFoodFacts product database
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	pageSize    int
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// Config configures the client
type Config struct {
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
	UserAgent         string
	PageSize          int
}

// NewClient creates a new OpenFoodFacts client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://world.openfoodfacts.org"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "foodnutrition-pipeline/1.0"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		pageSize:    cfg.PageSize,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		logger:      logger,
	}
}

// SearchProducts runs a full-text product search and maps the hits.
// A single attempt is made; failures surface as ErrReferenceFailure.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]domain.ReferenceProduct, error) {
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	params := url.Values{}
	params.Add("search_terms", query)
	params.Add("search_simple", "1")
	params.Add("json", "1")
	params.Add("page_size", fmt.Sprintf("%d", c.pageSize))
	reqURL := fmt.Sprintf("%s/cgi/search.pl?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("reference search failed", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrReferenceFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("reference search returned error status",
			zap.String("query", query),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d, body: %s", domain.ErrReferenceFailure, resp.StatusCode, string(body))
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrReferenceFailure, err)
	}

	if len(searchResp.Products) == 0 {
		c.logger.Debug("no reference products found", zap.String("query", query))
		return nil, domain.ErrProductNotFound
	}

	products := make([]domain.ReferenceProduct, 0, len(searchResp.Products))
	for _, p := range searchResp.Products {
		products = append(products, MapToReferenceProduct(p))
	}

	c.logger.Debug("reference products found",
		zap.String("query", query),
		zap.Int("count", len(products)),
	)
	return products, nil
}
