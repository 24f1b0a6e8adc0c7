package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// EnrichmentService estimates nutrition for a product.
// Flow: cache -> providers in priority order -> parse -> cache -> return
type EnrichmentService struct {
	cache     domain.EnrichmentCache
	providers []domain.EnrichmentProvider
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrichmentService creates the service. providers are tried in the given order.
func NewEnrichmentService(
	cache domain.EnrichmentCache,
	providers []domain.EnrichmentProvider,
	logger *zap.Logger,
) *EnrichmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichmentService{
		cache:     cache,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// ProductHash is the cache key: MD5 of the trimmed, lower-cased name|brand|category
func ProductHash(name, brand, category string) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	sum := md5.Sum([]byte(norm(name) + "|" + norm(brand) + "|" + norm(category)))
	return hex.EncodeToString(sum[:])
}

// Enrich returns an estimate for req. A cached entry is served unless
// forceRefresh is set. When every provider fails or is over quota the result
// is nil with a nil error; only an invalid request is an error.
func (s *EnrichmentService) Enrich(
	ctx context.Context,
	req domain.EnrichRequest,
	forceRefresh bool,
) (*domain.EnrichmentResult, error) {
	if strings.TrimSpace(req.ProductName) == "" {
		return nil, domain.ErrInvalidRequest
	}

	hash := ProductHash(req.ProductName, req.Brand, req.Category)
	log := s.logger.With(zap.String("product", req.ProductName), zap.String("product_hash", hash))

	if !forceRefresh {
		entry, err := s.cache.Get(ctx, hash)
		switch {
		case err == nil:
			log.Debug("enrichment served from cache")
			return &domain.EnrichmentResult{
				NutritionData:   entry.NutritionData,
				ConfidenceScore: entry.ConfidenceScore,
				ModelUsed:       entry.ModelUsed,
				DataSource:      "cache",
				FromCache:       true,
				CreatedAt:       entry.CreatedAt,
			}, nil
		case !errors.Is(err, domain.ErrCacheMiss):
			log.Warn("cache lookup failed", zap.Error(err))
		}
	}

	prompt := BuildNutritionPrompt(req)
	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		model := fmt.Sprintf("%s-%s", p.Name(), p.Model())
		start := s.now()
		content, err := p.Generate(ctx, prompt)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				log.Info("provider over quota, trying next", zap.String("provider", p.Name()))
			} else {
				log.Warn("provider request failed, trying next",
					zap.String("provider", p.Name()),
					zap.Error(err),
				)
			}
			continue
		}

		result, ok := ParseNutritionResponse(content, model)
		if !ok {
			log.Warn("provider response could not be parsed", zap.String("provider", p.Name()))
			continue
		}
		result.CreatedAt = s.now()

		log.Info("enrichment generated",
			zap.String("model", model),
			zap.Float64("confidence", result.ConfidenceScore),
			zap.Duration("elapsed", result.CreatedAt.Sub(start)),
		)

		if err := s.cache.Put(ctx, domain.CacheEntry{
			ProductHash:     hash,
			ProductName:     req.ProductName,
			Brand:           req.Brand,
			Category:        req.Category,
			NutritionData:   result.NutritionData,
			ConfidenceScore: result.ConfidenceScore,
			ModelUsed:       result.ModelUsed,
			CreatedAt:       result.CreatedAt,
		}); err != nil {
			log.Warn("failed to cache enrichment", zap.Error(err))
		}
		return result, nil
	}

	log.Warn("no provider produced an enrichment", zap.Int("providers", len(s.providers)))
	return nil, nil
}

// CacheStats reports on the enrichment cache
func (s *EnrichmentService) CacheStats(ctx context.Context) (*domain.CacheStats, error) {
	return s.cache.Stats(ctx)
}
