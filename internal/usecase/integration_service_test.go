package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/batchfile"
)

// stubGate returns a fixed verdict
type stubGate struct {
	status BatchStatus
	calls  int
}

func (g *stubGate) Validate(path string) *BatchValidation {
	g.calls++
	return &BatchValidation{Path: path, Status: g.status, Reason: "stubbed", Warnings: []string{"w"}}
}

func intPtr(v int) *int { return &v }

func integrationStore() *MockRecordStore {
	return &MockRecordStore{records: []domain.ProductRecord{
		{ID: "p1", ProductName: "Coca-Cola", Category: "beverage", DataQualityScore: intPtr(60)},
		{ID: "p2", ProductName: "Pepsi", Category: "beverage", LLMFallbackUsed: true, NutritionData: `{"energy_kcal":41}`, DataQualityScore: intPtr(90)},
		{ID: "p3", ProductName: "Sprite", Category: "beverage", Ingredients: `["Carbonated Water","Lemon Flavour"]`},
		{ID: "p4", ProductName: "Fanta", Category: "beverage", DataQualityScore: intPtr(50)},
		{ID: "p5", ProductName: "Green Tea", Category: "beverage", DataQualityScore: intPtr(50)},
		{ID: "p6", ProductName: "Lays", Category: "snacks", DataQualityScore: intPtr(70)},
	}}
}

func integrationBatch(t *testing.T) string {
	rows := []map[string]string{
		{
			domain.BatchColOriginalProductID: "p1", domain.ColProductName: "Coca-Cola", domain.ColBrand: "Coca-Cola", domain.ColCategory: "beverage",
			domain.BatchColEnergyKcal: "42", domain.BatchColCarbsG: "10.6", domain.BatchColTotalSugarsG: "10.6",
			domain.BatchColProteinG: "0", domain.BatchColFatG: "0", domain.BatchColSodiumMg: "10",
			domain.BatchColIngredientsList: "Carbonated Water, Sugar, , Caffeine",
			domain.BatchColConfidenceScore: "0.8", domain.BatchColDataSource: "Official label",
		},
		{
			domain.BatchColOriginalProductID: "p2", domain.ColProductName: "Pepsi", domain.ColBrand: "Pepsi", domain.ColCategory: "beverage",
			domain.BatchColEnergyKcal: "99", domain.BatchColConfidenceScore: "0.95",
		},
		{
			domain.BatchColOriginalProductID: "p3", domain.ColProductName: "Sprite", domain.ColBrand: "Sprite", domain.ColCategory: "beverage",
			domain.BatchColEnergyKcal: "38",
		},
		{
			domain.BatchColOriginalProductID: "p4", domain.ColProductName: "Fanta", domain.ColBrand: "Fanta", domain.ColCategory: "beverage",
			domain.BatchColEnergyKcal: "45", domain.BatchColConfidenceScore: "0.4",
		},
		{
			domain.BatchColOriginalProductID: "p5", domain.ColProductName: "Green Tea", domain.ColBrand: "Tetley", domain.ColCategory: "beverage",
			domain.BatchColConfidenceScore: "0.9", domain.BatchColProcessingNotes: domain.NoDataMarker + " for this product",
		},
		{
			domain.BatchColOriginalProductID: "ghost", domain.ColProductName: "Ghost", domain.ColBrand: "None", domain.ColCategory: "beverage",
			domain.BatchColEnergyKcal: "1", domain.BatchColConfidenceScore: "0.9",
		},
	}
	return writeBatch(t, rows)
}

func TestIntegrate(t *testing.T) {
	store := integrationStore()
	gate := &stubGate{status: BatchPass}
	svc := NewIntegrationService(store, gate, IntegrationConfig{Provider: "groq"}, nil)

	report, err := svc.Integrate(context.Background(), integrationBatch(t), 0.6)
	require.NoError(t, err)

	assert.Equal(t, 1, gate.calls)
	assert.Equal(t, 6, report.Processed)
	assert.Equal(t, 2, report.Integrated)
	assert.Equal(t, 1, report.SkippedNotFound)
	assert.Equal(t, 1, report.SkippedAlreadyEnriched)
	assert.Equal(t, 1, report.SkippedNoData)
	assert.Equal(t, 1, report.SkippedLowConfidence)
	assert.InDelta(t, 0.775, report.AverageConfidence, 1e-9)
	assert.Equal(t, "backup_pre_integration", report.BackupPath)
	assert.Equal(t, 1, store.Saves())

	assert.Equal(t, CategoryCoverage{Total: 5, Enriched: 1, Rate: 20}, report.CoverageBefore["beverage"])
	assert.Equal(t, CategoryCoverage{Total: 5, Enriched: 3, Rate: 60}, report.CoverageAfter["beverage"])
	assert.Equal(t, []string{"beverage", "snacks"}, CoverageCategories(report.CoverageAfter))

	records, err := store.Load(context.Background())
	require.NoError(t, err)

	cola := records[0]
	assert.True(t, cola.LLMFallbackUsed)
	assert.Equal(t, 85, *cola.DataQualityScore)
	assert.Equal(t, `["Carbonated Water","Sugar","Caffeine"]`, cola.Ingredients)
	assert.Equal(t, "0.8", cola.Extra[domain.ExtraLLMConfidence])
	assert.Equal(t, "groq", cola.Extra[domain.ExtraLLMProvider])

	var nutrition map[string]any
	require.NoError(t, json.Unmarshal([]byte(cola.NutritionData), &nutrition))
	assert.Len(t, nutrition, 9)
	assert.Equal(t, 42.0, nutrition["energy_kcal"])
	assert.Equal(t, 10.6, nutrition["sugars_g"])
	assert.Equal(t, 10.0, nutrition["sodium_mg"])
	assert.Nil(t, nutrition["fiber_g"])

	// write-once: the enriched record is untouched
	assert.Equal(t, `{"energy_kcal":41}`, records[1].NutritionData)
	assert.Equal(t, 90, *records[1].DataQualityScore)

	// missing confidence defaults to 0.75 and a missing score starts from zero
	sprite := records[2]
	assert.True(t, sprite.LLMFallbackUsed)
	assert.Equal(t, 19, *sprite.DataQualityScore)
	assert.Equal(t, "0.75", sprite.Extra[domain.ExtraLLMConfidence])
	// an empty ingredient list leaves the stored one alone
	assert.Equal(t, `["Carbonated Water","Lemon Flavour"]`, sprite.Ingredients)

	assert.False(t, records[3].LLMFallbackUsed)
	assert.False(t, records[4].LLMFallbackUsed)
}

func TestIntegrate_ScoreIsCapped(t *testing.T) {
	store := &MockRecordStore{records: []domain.ProductRecord{
		{ID: "p1", ProductName: "Coca-Cola", Category: "beverage", DataQualityScore: intPtr(90)},
	}}
	path := writeBatch(t, []map[string]string{{
		domain.BatchColOriginalProductID: "p1", domain.BatchColEnergyKcal: "42",
		domain.BatchColConfidenceScore: "1", domain.BatchColDataSource: "official",
	}})
	svc := NewIntegrationService(store, &stubGate{status: BatchPass}, IntegrationConfig{}, nil)

	_, err := svc.Integrate(context.Background(), path, 0.6)
	require.NoError(t, err)

	records, _ := store.Load(context.Background())
	assert.Equal(t, 100, *records[0].DataQualityScore)
	assert.Equal(t, "external_batch", records[0].Extra[domain.ExtraLLMProvider])
}

func TestIntegrate_FailedGateBlocks(t *testing.T) {
	store := integrationStore()
	svc := NewIntegrationService(store, &stubGate{status: BatchFail}, IntegrationConfig{}, nil)

	report, err := svc.Integrate(context.Background(), integrationBatch(t), 0.6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))
	assert.Equal(t, 0, store.Saves())
	assert.Empty(t, store.backups)
	assert.Equal(t, BatchFail, report.Validation.Status)
}

func TestIntegrate_WarnGate(t *testing.T) {
	t.Run("proceeds by default", func(t *testing.T) {
		store := integrationStore()
		svc := NewIntegrationService(store, &stubGate{status: BatchWarn}, IntegrationConfig{}, nil)

		report, err := svc.Integrate(context.Background(), integrationBatch(t), 0.6)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Integrated)
	})

	t.Run("blocks when configured", func(t *testing.T) {
		store := integrationStore()
		svc := NewIntegrationService(store, &stubGate{status: BatchWarn}, IntegrationConfig{BlockOnWarn: true}, nil)

		_, err := svc.Integrate(context.Background(), integrationBatch(t), 0.6)
		assert.True(t, errors.Is(err, domain.ErrValidationFailed))
		assert.Equal(t, 0, store.Saves())
	})
}

func TestIntegrate_ProductIDColumnFallback(t *testing.T) {
	store := &MockRecordStore{records: []domain.ProductRecord{{ID: "p1", Category: "beverage"}}}
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, batchfile.WriteTable(path,
		[]string{domain.BatchColProductID, domain.BatchColEnergyKcal, domain.BatchColConfidenceScore},
		[]map[string]string{{domain.BatchColProductID: "p1", domain.BatchColEnergyKcal: "42", domain.BatchColConfidenceScore: "0.9"}},
	))
	svc := NewIntegrationService(store, &stubGate{status: BatchPass}, IntegrationConfig{}, nil)

	report, err := svc.Integrate(context.Background(), path, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Integrated)
}

func TestNutritionFromBatchRow_SugarsFallback(t *testing.T) {
	facts := NutritionFromBatchRow(map[string]string{
		domain.BatchColSugarsG:    "4.2",
		domain.BatchColEnergyKcal: "n/a",
	})
	assert.Equal(t, ptrFloat(4.2), facts.Get(domain.KeySugarsG))
	assert.Nil(t, facts.Get(domain.KeyEnergyKcal))
}
