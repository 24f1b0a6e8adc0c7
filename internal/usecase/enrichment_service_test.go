package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/cache"
)

// MockProvider is a scripted domain.EnrichmentProvider
type MockProvider struct {
	name     string
	response string
	err      error

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (m *MockProvider) Name() string  { return m.name }
func (m *MockProvider) Model() string { return "test-model" }

func (m *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockEnrichmentCache wraps the memory cache with failure injection
type MockEnrichmentCache struct {
	*cache.MemoryCache
	getError error
	putError error
	puts     int
}

func NewMockEnrichmentCache() *MockEnrichmentCache {
	return &MockEnrichmentCache{MemoryCache: cache.NewMemoryCache()}
}

func (m *MockEnrichmentCache) Get(ctx context.Context, hash string) (*domain.CacheEntry, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	return m.MemoryCache.Get(ctx, hash)
}

func (m *MockEnrichmentCache) Put(ctx context.Context, entry domain.CacheEntry) error {
	m.puts++
	if m.putError != nil {
		return m.putError
	}
	return m.MemoryCache.Put(ctx, entry)
}

const colaResponse = `energy_kcal_per_100g: 42
carbs_g_per_100g: 10.6
total_sugars_g_per_100g: 10.6
protein_g_per_100g: 0
fat_g_per_100g: 0
confidence_score: 0.85`

func TestProductHash(t *testing.T) {
	a := ProductHash("  Coca Cola ", "COCA-COLA", "Beverage")
	b := ProductHash("coca cola", "coca-cola", "beverage")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, ProductHash("coca cola", "coca-cola", "snacks"))
}

func TestEnrich_CacheIdempotence(t *testing.T) {
	provider := &MockProvider{name: "groq", response: colaResponse}
	svc := NewEnrichmentService(cache.NewMemoryCache(), []domain.EnrichmentProvider{provider}, nil)
	ctx := context.Background()
	req := domain.EnrichRequest{ProductName: "Coca Cola", Brand: "Coca-Cola", Category: "beverage"}

	first, err := svc.Enrich(ctx, req, false)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.False(t, first.FromCache)
	assert.Equal(t, "groq-test-model", first.ModelUsed)

	second, err := svc.Enrich(ctx, req, false)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.NutritionData, second.NutritionData)
	assert.Equal(t, first.ConfidenceScore, second.ConfidenceScore)

	assert.Equal(t, 1, provider.Calls(), "second call must not reach the provider")
}

func TestEnrich_ForceRefreshBypassesCache(t *testing.T) {
	provider := &MockProvider{name: "groq", response: colaResponse}
	svc := NewEnrichmentService(cache.NewMemoryCache(), []domain.EnrichmentProvider{provider}, nil)
	ctx := context.Background()
	req := domain.EnrichRequest{ProductName: "Coca Cola"}

	_, err := svc.Enrich(ctx, req, false)
	require.NoError(t, err)
	result, err := svc.Enrich(ctx, req, true)
	require.NoError(t, err)

	assert.False(t, result.FromCache)
	assert.Equal(t, 2, provider.Calls())
}

func TestEnrich_FallsBackThroughProviders(t *testing.T) {
	limited := &MockProvider{name: "groq", err: domain.ErrRateLimited}
	broken := &MockProvider{name: "ollama", err: errors.New("connection refused")}
	garbage := &MockProvider{name: "huggingface-a", response: "I am a chatbot."}
	good := &MockProvider{name: "huggingface-b", response: colaResponse}

	svc := NewEnrichmentService(cache.NewMemoryCache(),
		[]domain.EnrichmentProvider{limited, broken, garbage, good}, nil)

	result, err := svc.Enrich(context.Background(), domain.EnrichRequest{ProductName: "Pepsi"}, false)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "huggingface-b-test-model", result.ModelUsed)
	assert.Equal(t, 1, limited.Calls())
	assert.Equal(t, 1, broken.Calls())
	assert.Equal(t, 1, garbage.Calls())
	assert.Equal(t, 1, good.Calls())
}

func TestEnrich_AllProvidersFail(t *testing.T) {
	c := NewMockEnrichmentCache()
	svc := NewEnrichmentService(c, []domain.EnrichmentProvider{
		&MockProvider{name: "groq", err: domain.ErrProviderFailure},
	}, nil)

	result, err := svc.Enrich(context.Background(), domain.EnrichRequest{ProductName: "Maaza"}, false)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, c.puts, "nothing is cached on failure")
}

func TestEnrich_InvalidRequest(t *testing.T) {
	svc := NewEnrichmentService(cache.NewMemoryCache(), nil, nil)

	_, err := svc.Enrich(context.Background(), domain.EnrichRequest{ProductName: "  "}, false)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestEnrich_CacheErrorsAreNotFatal(t *testing.T) {
	c := NewMockEnrichmentCache()
	c.getError = domain.ErrCacheUnavailable
	c.putError = domain.ErrCacheUnavailable
	provider := &MockProvider{name: "groq", response: colaResponse}
	svc := NewEnrichmentService(c, []domain.EnrichmentProvider{provider}, nil)

	result, err := svc.Enrich(context.Background(), domain.EnrichRequest{ProductName: "Sprite"}, false)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0.85, result.ConfidenceScore)
}

func TestEnrich_PromptCarriesProduct(t *testing.T) {
	provider := &MockProvider{name: "groq", response: colaResponse}
	svc := NewEnrichmentService(cache.NewMemoryCache(), []domain.EnrichmentProvider{provider}, nil)

	_, err := svc.Enrich(context.Background(), domain.EnrichRequest{ProductName: "Frooti", Brand: "Parle Agro"}, false)
	require.NoError(t, err)
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Product: Frooti")
	assert.Contains(t, provider.prompts[0], "Brand: Parle Agro")
}

func TestCacheStats(t *testing.T) {
	provider := &MockProvider{name: "groq", response: colaResponse}
	svc := NewEnrichmentService(cache.NewMemoryCache(), []domain.EnrichmentProvider{provider}, nil)
	ctx := context.Background()

	for _, name := range []string{"A", "B"} {
		_, err := svc.Enrich(ctx, domain.EnrichRequest{ProductName: name}, false)
		require.NoError(t, err)
	}

	stats, err := svc.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.InDelta(t, 0.85, stats.AverageConfidence, 1e-9)
	assert.Equal(t, 2, stats.ByModel["groq-test-model"])
}
