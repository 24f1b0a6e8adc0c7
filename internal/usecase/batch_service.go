package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/batchfile"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
)

// Enricher produces nutrition estimates
type Enricher interface {
	Enrich(ctx context.Context, req domain.EnrichRequest, forceRefresh bool) (*domain.EnrichmentResult, error)
}

// ResultValidator grades an enrichment result
type ResultValidator interface {
	Validate(ctx context.Context, result *domain.EnrichmentResult, productName, brand string) *NutritionValidation
}

// BatchConfig holds batch processing settings
type BatchConfig struct {
	Dir             string
	Workers         int
	Size            int
	ValidateResults bool
}

// BatchCreation describes a freshly written input batch
type BatchCreation struct {
	BatchID   string `json:"batch_id"`
	Path      string `json:"path"`
	Products  int    `json:"products"`
	Available int    `json:"available"`
}

// BatchRunReport summarizes one batch enrichment run
type BatchRunReport struct {
	RunID       string  `json:"run_id"`
	InputPath   string  `json:"input_path"`
	OutputPath  string  `json:"output_path"`
	Processed   int     `json:"processed"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// BatchService creates input batches from the store and enriches them
type BatchService struct {
	store     domain.RecordStore
	enricher  Enricher
	validator ResultValidator
	config    BatchConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewBatchService creates a batch service. validator may be nil.
func NewBatchService(store domain.RecordStore, enricher Enricher, validator ResultValidator, config BatchConfig, logger *zap.Logger) *BatchService {
	if config.Dir == "" {
		config.Dir = "llm_batches"
	}
	if config.Workers <= 0 {
		config.Workers = 5
	}
	if config.Size <= 0 {
		config.Size = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{
		store:     store,
		enricher:  enricher,
		validator: validator,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBatch writes up to size records that still lack nutrition to a new
// input file. An empty category selects every category.
func (s *BatchService) CreateBatch(ctx context.Context, category string, size int) (*BatchCreation, error) {
	if size <= 0 {
		size = s.config.Size
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	var pending []domain.ProductRecord
	for i := range records {
		r := &records[i]
		if r.IsEnriched() || !r.NeedsNutrition() {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		pending = append(pending, *r)
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: no products need enrichment", domain.ErrProductNotFound)
	}

	selected := pending
	if len(selected) > size {
		selected = selected[:size]
	}

	label := category
	if label == "" {
		label = "all_categories"
	}
	batchID := fmt.Sprintf("%s_%dproducts_%s", label, len(selected), s.now().Format("20060102_1504"))
	path := filepath.Join(s.config.Dir, "input", "input_"+batchID+".csv")

	rows := make([]map[string]string, 0, len(selected))
	for i, r := range selected {
		rows = append(rows, map[string]string{
			domain.BatchColBatchID:           strconv.Itoa(i + 1),
			domain.BatchColOriginalProductID: r.ID,
			domain.ColProductName:            r.ProductName,
			domain.ColBrand:                  r.Brand,
			domain.ColCategory:               r.Category,
			domain.ColSubcategory:            r.Subcategory,
			domain.ColSizeValue:              recordstore.FormatFloat(r.SizeValue),
			domain.ColSizeUnit:               r.SizeUnit,
			domain.ColPrice:                  recordstore.FormatFloat(r.Price),
			domain.ColSource:                 r.Source,
		})
	}
	if err := batchfile.WriteTable(path, domain.BatchInputColumns, rows); err != nil {
		return nil, fmt.Errorf("failed to write batch: %w", err)
	}

	s.logger.Info("batch created",
		zap.String("batch_id", batchID),
		zap.String("path", path),
		zap.Int("products", len(selected)),
		zap.Int("available", len(pending)),
	)
	return &BatchCreation{BatchID: batchID, Path: path, Products: len(selected), Available: len(pending)}, nil
}

// EnrichBatch enriches every row of an input batch with a bounded worker pool
// and writes the output batch. Rows keep their input order. limit <= 0 means all rows.
func (s *BatchService) EnrichBatch(ctx context.Context, inputPath string, limit int) (*BatchRunReport, error) {
	table, err := batchfile.ReadTable(inputPath)
	if err != nil {
		return nil, err
	}
	rows := table.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	report := &BatchRunReport{
		RunID:      uuid.NewString(),
		InputPath:  inputPath,
		OutputPath: outputPathFor(inputPath),
		Processed:  len(rows),
	}
	log := s.logger.With(zap.String("run_id", report.RunID))
	log.Info("batch enrichment started",
		zap.String("input", inputPath),
		zap.Int("products", len(rows)),
		zap.Int("workers", s.config.Workers),
	)

	out := make([]map[string]string, len(rows))
	var succeeded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			enriched, ok := s.enrichRow(gctx, log, row)
			out[i] = enriched
			if ok {
				succeeded.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Succeeded = int(succeeded.Load())
	report.Failed = report.Processed - report.Succeeded
	if report.Processed > 0 {
		report.SuccessRate = float64(report.Succeeded) * 100 / float64(report.Processed)
	}

	if err := batchfile.WriteTable(report.OutputPath, outputHeaders(table.Headers), out); err != nil {
		return report, fmt.Errorf("failed to write batch output: %w", err)
	}

	log.Info("batch enrichment complete",
		zap.String("output", report.OutputPath),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Float64("success_rate", report.SuccessRate),
	)
	return report, nil
}

func (s *BatchService) enrichRow(ctx context.Context, log *zap.Logger, row map[string]string) (map[string]string, bool) {
	out := make(map[string]string, len(row)+len(domain.BatchOutputColumns))
	for k, v := range row {
		out[k] = v
	}

	req := domain.EnrichRequest{
		ProductName: strings.TrimSpace(row[domain.ColProductName]),
		Brand:       strings.TrimSpace(row[domain.ColBrand]),
		Category:    strings.TrimSpace(row[domain.ColCategory]),
		SizeValue:   recordstore.ParseFloat(row[domain.ColSizeValue]),
		SizeUnit:    strings.TrimSpace(row[domain.ColSizeUnit]),
	}

	result, err := s.enricher.Enrich(ctx, req, false)
	if err != nil {
		log.Warn("enrichment failed", zap.String("product", req.ProductName), zap.Error(err))
		out[domain.BatchColProcessingNotes] = domain.NoDataMarker + ": " + err.Error()
		return out, false
	}
	if result == nil {
		out[domain.BatchColProcessingNotes] = domain.NoDataMarker
		return out, false
	}

	confidence := result.ConfidenceScore
	notes := result.ProcessingNotes
	if s.config.ValidateResults && s.validator != nil {
		v := s.validator.Validate(ctx, result, req.ProductName, req.Brand)
		confidence = v.AdjustedConfidence
		notes = strings.TrimSpace(fmt.Sprintf("%s [validation: %s, %s]", notes, v.OverallStatus, v.Recommendation))
	}

	for _, col := range domain.BatchNutritionColumns {
		out[col.Column] = recordstore.FormatFloat(result.NutritionData.Get(col.Key))
	}
	out[domain.BatchColIngredientsList] = result.IngredientsList
	out[domain.BatchColServingSize] = result.ServingSize
	out[domain.BatchColServingsPerPack] = recordstore.FormatFloat(result.ServingsPerContainer)
	out[domain.BatchColConfidenceScore] = recordstore.FormatFloat(&confidence)
	out[domain.BatchColModelUsed] = result.ModelUsed
	out[domain.BatchColDataSource] = result.DataSource
	out[domain.BatchColProcessingNotes] = notes
	return out, true
}

// outputHeaders keeps the input columns and appends the enrichment columns
func outputHeaders(input []string) []string {
	headers := append([]string{}, input...)
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
	}
	for _, h := range domain.BatchOutputColumns {
		if !seen[h] {
			seen[h] = true
			headers = append(headers, h)
		}
	}
	return headers
}

// outputPathFor maps <dir>/input/input_X.csv to <dir>/output/output_X.csv
func outputPathFor(inputPath string) string {
	dir, base := filepath.Split(inputPath)
	if strings.HasPrefix(base, "input_") {
		base = "output_" + strings.TrimPrefix(base, "input_")
	} else {
		base = "enriched_" + base
	}
	if filepath.Base(filepath.Clean(dir)) == "input" {
		dir = filepath.Join(filepath.Dir(filepath.Clean(dir)), "output")
	}
	return filepath.Join(dir, base)
}
