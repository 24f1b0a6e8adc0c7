package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/batchfile"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
)

// BatchGate decides whether a batch may be integrated
type BatchGate interface {
	Validate(path string) *BatchValidation
}

// IntegrationConfig holds integration policy
type IntegrationConfig struct {
	// DefaultConfidence is assumed for rows without a parseable confidence.
	// 0.75 is a policy choice carried over from earlier batches, not a measurement.
	DefaultConfidence float64
	BlockOnWarn       bool
	// Provider is recorded in the llm_provider column of integrated records
	Provider string
}

// CategoryCoverage is the enrichment coverage of one category
type CategoryCoverage struct {
	Total    int     `json:"total"`
	Enriched int     `json:"enriched"`
	Rate     float64 `json:"rate"`
}

// IntegrationReport summarizes one integration run
type IntegrationReport struct {
	BatchFile              string                      `json:"batch_file"`
	Validation             *BatchValidation            `json:"validation"`
	BackupPath             string                      `json:"backup_path,omitempty"`
	Processed              int                         `json:"processed"`
	Integrated             int                         `json:"integrated"`
	SkippedNotFound        int                         `json:"skipped_not_found"`
	SkippedAlreadyEnriched int                         `json:"skipped_already_enriched"`
	SkippedNoData          int                         `json:"skipped_no_data"`
	SkippedLowConfidence   int                         `json:"skipped_low_confidence"`
	AverageConfidence      float64                     `json:"average_confidence"`
	CoverageBefore         map[string]CategoryCoverage `json:"coverage_before"`
	CoverageAfter          map[string]CategoryCoverage `json:"coverage_after"`
}

// IntegrationService merges enriched batch rows into the record store
type IntegrationService struct {
	store  domain.RecordStore
	gate   BatchGate
	config IntegrationConfig
	logger *zap.Logger
}

// NewIntegrationService creates the integration pipeline
func NewIntegrationService(store domain.RecordStore, gate BatchGate, config IntegrationConfig, logger *zap.Logger) *IntegrationService {
	if config.DefaultConfidence <= 0 {
		config.DefaultConfidence = 0.75
	}
	if config.Provider == "" {
		config.Provider = "external_batch"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationService{store: store, gate: gate, config: config, logger: logger}
}

// Integrate validates batchFile and writes qualifying rows into the store.
// Records that already carry enrichment are never overwritten.
func (s *IntegrationService) Integrate(ctx context.Context, batchFile string, minConfidence float64) (*IntegrationReport, error) {
	report := &IntegrationReport{BatchFile: batchFile}

	validation := s.gate.Validate(batchFile)
	report.Validation = validation
	switch validation.Status {
	case BatchFail:
		s.logger.Error("batch failed validation, not integrating",
			zap.String("batch", batchFile),
			zap.Strings("issues", validation.Issues),
		)
		return report, fmt.Errorf("%w: %s", domain.ErrValidationFailed, validation.Reason)
	case BatchWarn:
		if s.config.BlockOnWarn {
			return report, fmt.Errorf("%w: batch has %d warnings", domain.ErrValidationFailed, len(validation.Warnings))
		}
		s.logger.Warn("batch passed with warnings, integrating",
			zap.String("batch", batchFile),
			zap.Strings("warnings", validation.Warnings),
		)
	}

	table, err := batchfile.ReadTable(batchFile)
	if err != nil {
		return report, err
	}
	idCol, ok := BatchIDColumn(table)
	if !ok {
		return report, fmt.Errorf("%w: no product id column", domain.ErrBatchFormat)
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return report, err
	}
	report.CoverageBefore = Coverage(records)

	backup, err := s.store.Backup(ctx, "pre_integration")
	if err != nil {
		return report, err
	}
	report.BackupPath = backup

	index := make(map[string]int, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		index[records[i].ID] = i
	}

	var totalConfidence float64
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++

		id := strings.TrimSpace(row[idCol])
		i, found := index[id]
		if !found {
			report.SkippedNotFound++
			s.logger.Debug("product not found", zap.String("id", id))
			continue
		}
		rec := &records[i]
		if rec.IsEnriched() {
			report.SkippedAlreadyEnriched++
			continue
		}

		confidence := s.config.DefaultConfidence
		if c := recordstore.ParseFloat(row[domain.BatchColConfidenceScore]); c != nil {
			confidence = *c
		}

		if strings.Contains(row[domain.BatchColProcessingNotes], domain.NoDataMarker) {
			report.SkippedNoData++
			continue
		}
		if confidence < minConfidence {
			report.SkippedLowConfidence++
			s.logger.Debug("low confidence",
				zap.String("id", id),
				zap.Float64("confidence", confidence),
			)
			continue
		}

		s.apply(rec, row, confidence)
		report.Integrated++
		totalConfidence += confidence
	}

	if report.Integrated > 0 {
		report.AverageConfidence = totalConfidence / float64(report.Integrated)
		if err := s.store.Save(ctx, records); err != nil {
			return report, err
		}
	}
	report.CoverageAfter = Coverage(records)

	s.logger.Info("batch integration complete",
		zap.String("batch", batchFile),
		zap.Int("processed", report.Processed),
		zap.Int("integrated", report.Integrated),
		zap.Int("skipped_not_found", report.SkippedNotFound),
		zap.Int("skipped_already_enriched", report.SkippedAlreadyEnriched),
		zap.Int("skipped_no_data", report.SkippedNoData),
		zap.Int("skipped_low_confidence", report.SkippedLowConfidence),
		zap.Float64("average_confidence", report.AverageConfidence),
	)
	return report, nil
}

func (s *IntegrationService) apply(rec *domain.ProductRecord, row map[string]string, confidence float64) {
	rec.NutritionData = NutritionFromBatchRow(row).JSON()
	// cache hits carry no ingredients; keep what the record already has
	if items := ingredientList(row[domain.BatchColIngredientsList]); len(items) > 0 {
		data, _ := json.Marshal(items)
		rec.Ingredients = string(data)
	}
	rec.LLMFallbackUsed = true

	if rec.Extra == nil {
		rec.Extra = make(map[string]string)
	}
	rec.Extra[domain.ExtraLLMConfidence] = recordstore.FormatFloat(&confidence)
	rec.Extra[domain.ExtraLLMProvider] = s.config.Provider

	score := 0
	if rec.DataQualityScore != nil {
		score = *rec.DataQualityScore
	}
	score += int(math.Round(confidence * 25))
	if strings.Contains(strings.ToLower(row[domain.BatchColDataSource]), "official") {
		score += 5
	}
	score = min(score, 100)
	rec.DataQualityScore = &score
}

// NutritionFromBatchRow reads the per-100g columns of a batch row.
// total_sugars feeds sugars_g; a bare sugars column is the fallback.
func NutritionFromBatchRow(row map[string]string) domain.NutritionFacts {
	var facts domain.NutritionFacts
	for _, col := range domain.BatchNutritionColumns {
		if v := recordstore.ParseFloat(row[col.Column]); v != nil {
			facts.Set(col.Key, v)
		}
	}
	if facts.Get(domain.KeySugarsG) == nil {
		facts.Set(domain.KeySugarsG, recordstore.ParseFloat(row[domain.BatchColSugarsG]))
	}
	return facts
}

func ingredientList(raw string) []string {
	var items []string
	for _, item := range SplitIngredients(raw) {
		if !strings.EqualFold(item, "null") {
			items = append(items, item)
		}
	}
	return items
}

// Coverage counts enriched records per category
func Coverage(records []domain.ProductRecord) map[string]CategoryCoverage {
	out := make(map[string]CategoryCoverage)
	for _, r := range records {
		c := out[r.Category]
		c.Total++
		if r.IsEnriched() {
			c.Enriched++
		}
		out[r.Category] = c
	}
	for k, c := range out {
		c.Rate = float64(c.Enriched) * 100 / float64(c.Total)
		out[k] = c
	}
	return out
}

// CoverageCategories returns the categories of a coverage map in sorted order
func CoverageCategories(cov map[string]CategoryCoverage) []string {
	keys := make([]string, 0, len(cov))
	for k := range cov {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
