package usecase

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/batchfile"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
)

// BatchStatus is the validation verdict for a batch file
type BatchStatus string

const (
	BatchPass BatchStatus = "PASS"
	BatchWarn BatchStatus = "WARN"
	BatchFail BatchStatus = "FAIL"
)

const (
	minSuccessRate  = 80.0
	goodSuccessRate = 90.0
	maxWarnings     = 5
)

// columns whose presence marks a row as successfully enriched
var successColumns = []string{
	domain.BatchColEnergyKcal, domain.BatchColCarbsG, domain.BatchColProteinG, domain.BatchColFatG,
}

type anomalyBound struct {
	column string
	max    float64
}

var anomalyBounds = []anomalyBound{
	{domain.BatchColEnergyKcal, 1000},
	{domain.BatchColCarbsG, 100},
	{domain.BatchColProteinG, 50},
	{domain.BatchColFatG, 100},
	{domain.BatchColFiberG, 50},
	{domain.BatchColSodiumMg, 10000},
}

// BatchStats carries the numbers behind a verdict
type BatchStats struct {
	SuccessRate       float64 `json:"success_rate"`
	WithNutrition     int     `json:"with_nutrition"`
	ConfidenceCount   int     `json:"confidence_count"`
	MinConfidence     float64 `json:"min_confidence,omitempty"`
	MaxConfidence     float64 `json:"max_confidence,omitempty"`
	AverageConfidence float64 `json:"average_confidence,omitempty"`
}

// BatchValidation is the result of validating one batch file
type BatchValidation struct {
	Path          string      `json:"path"`
	Status        BatchStatus `json:"status"`
	Reason        string      `json:"reason,omitempty"`
	TotalProducts int         `json:"total_products"`
	Issues        []string    `json:"issues"`
	Warnings      []string    `json:"warnings"`
	Stats         BatchStats  `json:"stats"`
}

// ExitCode maps a status to the process exit code: PASS 0, FAIL 1, WARN 2
func ExitCode(status BatchStatus) int {
	switch status {
	case BatchPass:
		return 0
	case BatchWarn:
		return 2
	default:
		return 1
	}
}

// BatchIDColumn returns the product id column of a batch, preferring original_product_id
func BatchIDColumn(t *batchfile.Table) (string, bool) {
	if t.Has(domain.BatchColOriginalProductID) {
		return domain.BatchColOriginalProductID, true
	}
	if t.Has(domain.BatchColProductID) {
		return domain.BatchColProductID, true
	}
	return "", false
}

// BatchValidator grades enriched batch files before integration
type BatchValidator struct {
	logger *zap.Logger
}

// NewBatchValidator creates a validator
func NewBatchValidator(logger *zap.Logger) *BatchValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchValidator{logger: logger}
}

// Validate reads and grades the batch at path. Unreadable files FAIL.
func (v *BatchValidator) Validate(path string) *BatchValidation {
	table, err := batchfile.ReadTable(path)
	if err != nil {
		v.logger.Warn("batch unreadable", zap.String("path", path), zap.Error(err))
		return &BatchValidation{
			Path:   path,
			Status: BatchFail,
			Reason: err.Error(),
			Issues: []string{err.Error()},
		}
	}
	return v.ValidateTable(table)
}

// ValidateTable grades an already parsed batch
func (v *BatchValidator) ValidateTable(t *batchfile.Table) *BatchValidation {
	res := &BatchValidation{
		Path:          t.Path,
		TotalProducts: len(t.Rows),
		Issues:        []string{},
		Warnings:      []string{},
	}

	if len(t.Rows) == 0 {
		res.Issues = append(res.Issues, "batch contains no products")
		return v.finish(res)
	}

	v.checkCriticalFields(t, res)
	v.checkDuplicates(t, res)
	v.checkSuccessRate(t, res)
	v.checkAnomalies(t, res)
	v.checkConfidence(t, res)

	return v.finish(res)
}

func (v *BatchValidator) checkCriticalFields(t *batchfile.Table, res *BatchValidation) {
	critical := []string{domain.ColProductName, domain.ColBrand, domain.ColCategory}
	if idCol, ok := BatchIDColumn(t); ok {
		critical = append(critical, idCol)
	} else {
		res.Issues = append(res.Issues, "missing critical field: "+domain.BatchColOriginalProductID)
	}

	for _, col := range critical {
		if !t.Has(col) {
			res.Issues = append(res.Issues, "missing critical field: "+col)
			continue
		}
		missing := 0
		for _, row := range t.Rows {
			if strings.TrimSpace(row[col]) == "" {
				missing++
			}
		}
		if missing > 0 {
			res.Issues = append(res.Issues, fmt.Sprintf("%s has %d missing values", col, missing))
		}
	}
}

func (v *BatchValidator) checkDuplicates(t *batchfile.Table, res *BatchValidation) {
	idCol, ok := BatchIDColumn(t)
	if !ok {
		return
	}
	seen := make(map[string]bool, len(t.Rows))
	dups := 0
	for _, row := range t.Rows {
		id := strings.TrimSpace(row[idCol])
		if id == "" {
			continue
		}
		if seen[id] {
			dups++
		}
		seen[id] = true
	}
	if dups > 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("found %d duplicate product IDs", dups))
	}
}

func (v *BatchValidator) checkSuccessRate(t *batchfile.Table, res *BatchValidation) {
	for _, row := range t.Rows {
		for _, col := range successColumns {
			if recordstore.ParseFloat(row[col]) != nil {
				res.Stats.WithNutrition++
				break
			}
		}
	}
	rate := float64(res.Stats.WithNutrition) * 100 / float64(len(t.Rows))
	res.Stats.SuccessRate = rate

	switch {
	case rate < minSuccessRate:
		res.Issues = append(res.Issues, fmt.Sprintf("low success rate: %.1f%% (expected >%.0f%%)", rate, minSuccessRate))
	case rate < goodSuccessRate:
		res.Warnings = append(res.Warnings, fmt.Sprintf("moderate success rate: %.1f%% (good >%.0f%%)", rate, goodSuccessRate))
	}
}

func (v *BatchValidator) checkAnomalies(t *batchfile.Table, res *BatchValidation) {
	for _, b := range anomalyBounds {
		if !t.Has(b.column) {
			continue
		}
		high, negative := 0, 0
		for _, row := range t.Rows {
			val := recordstore.ParseFloat(row[b.column])
			if val == nil {
				continue
			}
			if *val > b.max {
				high++
			}
			if *val < 0 {
				negative++
			}
		}
		if high > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d values > %g", b.column, high, b.max))
		}
		if negative > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d negative values", b.column, negative))
		}
	}
}

func (v *BatchValidator) checkConfidence(t *batchfile.Table, res *BatchValidation) {
	if !t.Has(domain.BatchColConfidenceScore) {
		return
	}
	var sum float64
	invalid := 0
	for _, row := range t.Rows {
		c := recordstore.ParseFloat(row[domain.BatchColConfidenceScore])
		if c == nil {
			continue
		}
		if res.Stats.ConfidenceCount == 0 || *c < res.Stats.MinConfidence {
			res.Stats.MinConfidence = *c
		}
		if res.Stats.ConfidenceCount == 0 || *c > res.Stats.MaxConfidence {
			res.Stats.MaxConfidence = *c
		}
		res.Stats.ConfidenceCount++
		sum += *c
		if *c < 0 || *c > 1 {
			invalid++
		}
	}
	if res.Stats.ConfidenceCount > 0 {
		res.Stats.AverageConfidence = sum / float64(res.Stats.ConfidenceCount)
	}
	if invalid > 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("invalid confidence scores: %d", invalid))
	}
}

func (v *BatchValidator) finish(res *BatchValidation) *BatchValidation {
	moderate := res.Stats.SuccessRate >= minSuccessRate && res.Stats.SuccessRate < goodSuccessRate
	switch {
	case len(res.Issues) > 0:
		res.Status = BatchFail
		res.Reason = res.Issues[0]
	case moderate || len(res.Warnings) > maxWarnings:
		res.Status = BatchWarn
	default:
		res.Status = BatchPass
	}

	v.logger.Info("batch validated",
		zap.String("path", res.Path),
		zap.String("status", string(res.Status)),
		zap.Int("products", res.TotalProducts),
		zap.Int("issues", len(res.Issues)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Float64("success_rate", res.Stats.SuccessRate),
	)
	return res
}
