package usecase

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/batchfile"
)

func batchRow(id string, enriched bool) map[string]string {
	row := map[string]string{
		domain.BatchColBatchID:           "batch_1",
		domain.BatchColOriginalProductID: id,
		domain.ColProductName:            "Product " + id,
		domain.ColBrand:                  "Brand",
		domain.ColCategory:               "beverage",
		domain.ColSubcategory:            "soft-drink",
	}
	if enriched {
		row[domain.BatchColEnergyKcal] = "42"
		row[domain.BatchColCarbsG] = "10.6"
		row[domain.BatchColTotalSugarsG] = "10.6"
		row[domain.BatchColProteinG] = "0"
		row[domain.BatchColFatG] = "0"
		row[domain.BatchColConfidenceScore] = "0.85"
		row[domain.BatchColDataSource] = "official nutrition label"
		row[domain.BatchColModelUsed] = "groq-llama-3.1-8b-instant"
	} else {
		row[domain.BatchColProcessingNotes] = domain.NoDataMarker
	}
	return row
}

func batchRows(total, enriched int) []map[string]string {
	rows := make([]map[string]string, 0, total)
	for i := 0; i < total; i++ {
		rows = append(rows, batchRow(fmt.Sprintf("p%03d", i), i < enriched))
	}
	return rows
}

func writeBatch(t *testing.T, rows []map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, batchfile.WriteTable(path, domain.BatchOutputColumns, rows))
	return path
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(BatchPass))
	assert.Equal(t, 1, ExitCode(BatchFail))
	assert.Equal(t, 2, ExitCode(BatchWarn))
}

func TestBatchValidator_SuccessRates(t *testing.T) {
	tests := []struct {
		name     string
		enriched int
		status   BatchStatus
	}{
		{"all enriched passes", 10, BatchPass},
		{"ninety percent passes", 9, BatchPass},
		{"eighty five percent warns", 17, BatchWarn},
		{"seventy percent fails", 7, BatchFail},
	}

	v := NewBatchValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := 10
			if tt.enriched == 17 {
				total = 20
			}
			res := v.Validate(writeBatch(t, batchRows(total, tt.enriched)))
			assert.Equal(t, tt.status, res.Status, "issues=%v warnings=%v", res.Issues, res.Warnings)
			assert.Equal(t, total, res.TotalProducts)
			assert.InDelta(t, float64(tt.enriched)/float64(total)*100, res.Stats.SuccessRate, 1e-9)
		})
	}
}

func TestBatchValidator_InvalidConfidenceFails(t *testing.T) {
	rows := batchRows(10, 10)
	rows[3][domain.BatchColConfidenceScore] = "1.5"

	res := NewBatchValidator(nil).Validate(writeBatch(t, rows))

	assert.Equal(t, BatchFail, res.Status)
	assert.Contains(t, res.Issues, "invalid confidence scores: 1")
	assert.Equal(t, 1.5, res.Stats.MaxConfidence)
}

func TestBatchValidator_DuplicateIDsFail(t *testing.T) {
	rows := batchRows(10, 10)
	rows[9][domain.BatchColOriginalProductID] = rows[0][domain.BatchColOriginalProductID]

	res := NewBatchValidator(nil).Validate(writeBatch(t, rows))

	assert.Equal(t, BatchFail, res.Status)
	assert.Contains(t, res.Issues, "found 1 duplicate product IDs")
}

func TestBatchValidator_MissingCriticalValues(t *testing.T) {
	rows := batchRows(10, 10)
	rows[2][domain.ColBrand] = ""

	res := NewBatchValidator(nil).Validate(writeBatch(t, rows))

	assert.Equal(t, BatchFail, res.Status)
	assert.Contains(t, res.Issues, "brand has 1 missing values")
}

func TestBatchValidator_MissingIDColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, batchfile.WriteTable(path,
		[]string{domain.ColProductName, domain.ColBrand, domain.ColCategory, domain.BatchColEnergyKcal},
		[]map[string]string{{domain.ColProductName: "x", domain.ColBrand: "y", domain.ColCategory: "z", domain.BatchColEnergyKcal: "1"}},
	))

	res := NewBatchValidator(nil).Validate(path)

	assert.Equal(t, BatchFail, res.Status)
	assert.Contains(t, res.Issues, "missing critical field: original_product_id")
}

func TestBatchValidator_ProductIDColumnAccepted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, batchfile.WriteTable(path,
		[]string{domain.BatchColProductID, domain.ColProductName, domain.ColBrand, domain.ColCategory, domain.BatchColEnergyKcal},
		[]map[string]string{{domain.BatchColProductID: "1", domain.ColProductName: "x", domain.ColBrand: "y", domain.ColCategory: "z", domain.BatchColEnergyKcal: "1"}},
	))

	res := NewBatchValidator(nil).Validate(path)
	assert.Equal(t, BatchPass, res.Status, "issues=%v", res.Issues)
}

func TestBatchValidator_AnomaliesWarn(t *testing.T) {
	rows := batchRows(10, 10)
	for i := 0; i < 6; i++ {
		rows[i][domain.BatchColEnergyKcal] = "1200"
	}
	rows[0][domain.BatchColProteinG] = "60"
	rows[1][domain.BatchColFatG] = "-1"
	rows[2][domain.BatchColCarbsG] = "140"
	rows[3][domain.BatchColSodiumMg] = "20000"
	rows[4][domain.BatchColFiberG] = "55"
	rows[5][domain.BatchColProteinG] = "-3"

	res := NewBatchValidator(nil).Validate(writeBatch(t, rows))

	assert.Equal(t, BatchWarn, res.Status)
	assert.Empty(t, res.Issues)
	assert.Greater(t, len(res.Warnings), 5)
	assert.Contains(t, res.Warnings, "energy_kcal_per_100g: 6 values > 1000")
	assert.Contains(t, res.Warnings, "protein_g_per_100g: 1 negative values")
}

func TestBatchValidator_FewAnomaliesStillPass(t *testing.T) {
	rows := batchRows(10, 10)
	rows[0][domain.BatchColEnergyKcal] = "1200"

	res := NewBatchValidator(nil).Validate(writeBatch(t, rows))

	assert.Equal(t, BatchPass, res.Status)
	assert.Len(t, res.Warnings, 1)
}

func TestBatchValidator_MissingFileFails(t *testing.T) {
	res := NewBatchValidator(nil).Validate(filepath.Join(t.TempDir(), "missing.csv"))

	assert.Equal(t, BatchFail, res.Status)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, 1, ExitCode(res.Status))
}

func TestBatchValidator_EmptyBatchFails(t *testing.T) {
	res := NewBatchValidator(nil).Validate(writeBatch(t, nil))

	assert.Equal(t, BatchFail, res.Status)
	assert.Equal(t, []string{"batch contains no products"}, res.Issues)
}
