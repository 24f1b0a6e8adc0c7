package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/config"
	httpDelivery "github.com/foodnutrition/pipeline/internal/delivery/http"
	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/cache"
	"github.com/foodnutrition/pipeline/internal/infrastructure/categories"
	"github.com/foodnutrition/pipeline/internal/infrastructure/llm"
	"github.com/foodnutrition/pipeline/internal/infrastructure/openfoodfacts"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
	"github.com/foodnutrition/pipeline/internal/usecase"
)

// App holds the wired infrastructure and services shared by the CLI and the server
type App struct {
	Config *config.Config
	Log    *zap.Logger

	Store      *recordstore.Store
	Cache      domain.EnrichmentCache
	Reference  *openfoodfacts.Client
	Providers  []domain.EnrichmentProvider
	Enrichment *usecase.EnrichmentService

	NutritionValidator *usecase.NutritionValidator
	BatchValidator     *usecase.BatchValidator
}

// New wires every component that does not need the category taxonomy.
// The taxonomy is loaded on demand by Categories.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store := recordstore.NewStore(cfg.Store.Path, cfg.Store.BackupDir, log.Named("store"))

	enrichmentCache, err := wireCache(ctx, cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	providers := llm.NewChain(ProviderConfigs(cfg.Enrichment.Providers), log.Named("llm"))
	if len(providers) == 0 {
		log.Warn("no enrichment provider could be initialized; enrichment will produce no estimates")
	}

	reference := openfoodfacts.NewClient(openfoodfacts.Config{
		BaseURL:           cfg.OpenFoodFacts.BaseURL,
		RequestsPerMinute: cfg.OpenFoodFacts.RequestsPerMinute,
		Timeout:           cfg.OpenFoodFacts.Timeout,
		UserAgent:         cfg.OpenFoodFacts.UserAgent,
	}, log.Named("openfoodfacts"))

	return &App{
		Config:             cfg,
		Log:                log,
		Store:              store,
		Cache:              enrichmentCache,
		Reference:          reference,
		Providers:          providers,
		Enrichment:         usecase.NewEnrichmentService(enrichmentCache, providers, log.Named("enrichment")),
		NutritionValidator: usecase.NewNutritionValidator(reference, log.Named("nutrition_validator")),
		BatchValidator:     usecase.NewBatchValidator(log.Named("batch_validator")),
	}, nil
}

func wireCache(ctx context.Context, cfg config.CacheConfig, log *zap.Logger) (domain.EnrichmentCache, error) {
	switch cfg.Type {
	case "memory":
		log.Info("using in-memory enrichment cache")
		return cache.NewMemoryCache(), nil
	case "sqlite":
		c, err := cache.NewSQLiteCache(ctx, cfg.Path, log.Named("cache"))
		if err != nil {
			return nil, fmt.Errorf("init sqlite cache: %w", err)
		}
		log.Info("using sqlite enrichment cache", zap.String("path", cfg.Path))
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %q", cfg.Type)
	}
}

// ProviderConfigs maps configured providers onto client configs, keeping order
func ProviderConfigs(providers []config.ProviderConfig) []llm.Config {
	out := make([]llm.Config, 0, len(providers))
	for _, p := range providers {
		out = append(out, llm.Config{
			Name:        p.Name,
			Endpoint:    p.Endpoint,
			APIKey:      p.APIKey,
			Model:       p.Model,
			Timeout:     p.Timeout,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			RateLimit:   p.RateLimit,
			RateWindow:  p.RateWindow,
			Delay:       p.Delay,
		})
	}
	return out
}

// Categories loads the category taxonomy file
func (a *App) Categories() (*categories.Manager, error) {
	return categories.Load(a.Config.Categories.Path)
}

// Consolidation builds the multi-source consolidation service
func (a *App) Consolidation() *usecase.ConsolidationService {
	return usecase.NewConsolidationService(a.Store, a.Log.Named("consolidation"))
}

// Migration builds the category migration service
func (a *App) Migration() (*usecase.MigrationService, error) {
	taxonomy, err := a.Categories()
	if err != nil {
		return nil, err
	}
	return usecase.NewMigrationService(a.Store, taxonomy, a.Log.Named("migration")), nil
}

// Batches builds the batch creation and enrichment service
func (a *App) Batches() *usecase.BatchService {
	var validator usecase.ResultValidator
	if a.Config.Enrichment.ValidateResults {
		validator = a.NutritionValidator
	}
	return usecase.NewBatchService(a.Store, a.Enrichment, validator, usecase.BatchConfig{
		Dir:             a.Config.Enrichment.BatchDir,
		Workers:         a.Config.Enrichment.Workers,
		Size:            a.Config.Enrichment.BatchSize,
		ValidateResults: a.Config.Enrichment.ValidateResults,
	}, a.Log.Named("batch"))
}

// Integration builds the batch integration service
func (a *App) Integration() *usecase.IntegrationService {
	return usecase.NewIntegrationService(a.Store, a.BatchValidator, usecase.IntegrationConfig{
		DefaultConfidence: a.Config.Integration.DefaultConfidence,
		BlockOnWarn:       a.Config.Integration.BlockOnWarn,
		Provider:          a.Config.Integration.Processor,
	}, a.Log.Named("integration"))
}

// Router builds the HTTP API
func (a *App) Router() *gin.Engine {
	handler := httpDelivery.NewHandler(
		a.Enrichment,
		a.BatchValidator,
		a.NutritionValidator,
		a.Config.Server.UploadDir,
		a.Log.Named("http"),
	)
	return httpDelivery.SetupRouter(a.Config, handler, a.Log.Named("http"))
}
