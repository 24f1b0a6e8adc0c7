package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// stubReference serves fixed reference products
type stubReference struct {
	products []domain.ReferenceProduct
	err      error
	queries  []string
}

func (s *stubReference) SearchProducts(ctx context.Context, query string) ([]domain.ReferenceProduct, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

func colaFacts() domain.NutritionFacts {
	return domain.NutritionFacts{
		EnergyKcal: ptrFloat(42),
		CarbsG:     ptrFloat(10.6),
		SugarsG:    ptrFloat(10.6),
		ProteinG:   ptrFloat(0),
		FatG:       ptrFloat(0),
	}
}

func colaReference(energy, carbs, protein, fat float64) *stubReference {
	return &stubReference{products: []domain.ReferenceProduct{{
		Code:  "5449000000996",
		Name:  "Coca-Cola",
		Brand: "Coca-Cola",
		Nutrition: domain.NutritionFacts{
			EnergyKcal: ptrFloat(energy),
			CarbsG:     ptrFloat(carbs),
			ProteinG:   ptrFloat(protein),
			FatG:       ptrFloat(fat),
		},
	}}}
}

func TestClassifyBeverage(t *testing.T) {
	tests := []struct {
		name     string
		product  string
		brand    string
		expected string
	}{
		{"cola by name", "Coca-Cola Soft Drink 750 ml", "", BeverageCola},
		{"cola by brand", "Classic 2 L", "Pepsi", BeverageCola},
		{"juice", "Real Fruit Power Mango", "Dabur", BeverageJuice},
		{"energy drink", "Red Bull Energy Drink 250 ml", "Red Bull", BeverageEnergyDrink},
		{"health drink", "Bournvita Chocolate Health Drink", "Cadbury", BeverageHealthDrink},
		{"substring is not a word", "Corn Flakes Cereal", "Kelloggs", BeverageGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyBeverage(tt.product, tt.brand))
		})
	}
}

func TestValidateRanges(t *testing.T) {
	v := NewNutritionValidator(nil, nil)

	t.Run("in range", func(t *testing.T) {
		c := v.ValidateRanges(colaFacts(), "Coca-Cola 750 ml", "Coca-Cola")
		assert.Equal(t, CheckPass, c.Status)
		assert.Zero(t, c.ConfidenceAdjustment)
		assert.Empty(t, c.Warnings)
	})

	t.Run("one out of range and one missing", func(t *testing.T) {
		facts := colaFacts()
		facts.EnergyKcal = ptrFloat(80)
		facts.FatG = nil

		c := v.ValidateRanges(facts, "Coca-Cola 750 ml", "Coca-Cola")
		assert.Equal(t, CheckWarning, c.Status)
		assert.InDelta(t, -0.15, c.ConfidenceAdjustment, 1e-9)
		assert.Equal(t, "out_of_range", c.Fields[domain.KeyEnergyKcal])
		assert.Equal(t, "missing", c.Fields[domain.KeyFatG])
		assert.Contains(t, c.Warnings, "energy_kcal: 80 outside expected range 35-50")
	})

	t.Run("three invalid fields fail", func(t *testing.T) {
		facts := colaFacts()
		facts.EnergyKcal = ptrFloat(300)
		facts.CarbsG = ptrFloat(70)
		facts.SugarsG = ptrFloat(1)

		c := v.ValidateRanges(facts, "Coca-Cola 750 ml", "Coca-Cola")
		assert.Equal(t, CheckFail, c.Status)
		assert.InDelta(t, -0.5, c.ConfidenceAdjustment, 1e-9)
	})

	t.Run("unknown type", func(t *testing.T) {
		c := v.ValidateRanges(colaFacts(), "Basmati Rice", "India Gate")
		assert.Equal(t, CheckUnknownType, c.Status)
		assert.Zero(t, c.ConfidenceAdjustment)
		assert.Equal(t, []string{"unknown beverage type: generic"}, c.Warnings)
	})
}

func TestCrossReference(t *testing.T) {
	ctx := context.Background()

	t.Run("close match", func(t *testing.T) {
		ref := colaReference(42, 10.6, 0, 0)
		v := NewNutritionValidator(ref, nil)

		c, match := v.CrossReference(ctx, colaFacts(), "Coca-Cola Soft Drink 750 ml", "Coca-Cola")
		require.NotNil(t, match)
		assert.Equal(t, CheckMatch, c.Status)
		assert.InDelta(t, 0.1, c.ConfidenceAdjustment, 1e-9)
		assert.Equal(t, "close_match", c.Fields[domain.KeyEnergyKcal])
		require.Len(t, ref.queries, 1)
		assert.NotContains(t, ref.queries[0], "750")
	})

	t.Run("acceptable difference", func(t *testing.T) {
		v := NewNutritionValidator(colaReference(50, 10.6, 0, 0), nil)

		c, _ := v.CrossReference(ctx, colaFacts(), "Coca-Cola Soft Drink 750 ml", "Coca-Cola")
		assert.Equal(t, "acceptable", c.Fields[domain.KeyEnergyKcal])
		assert.InDelta(t, 0.05, c.ConfidenceAdjustment, 1e-9)
	})

	t.Run("poor match", func(t *testing.T) {
		v := NewNutritionValidator(colaReference(100, 30, 0, 5), nil)

		c, _ := v.CrossReference(ctx, colaFacts(), "Coca-Cola Soft Drink 750 ml", "Coca-Cola")
		assert.Equal(t, CheckPoorMatch, c.Status)
		assert.InDelta(t, -0.5, c.ConfidenceAdjustment, 1e-9)
		assert.Len(t, c.Warnings, 3)
	})

	t.Run("no results", func(t *testing.T) {
		v := NewNutritionValidator(&stubReference{err: domain.ErrProductNotFound}, nil)

		c, match := v.CrossReference(ctx, colaFacts(), "Coca-Cola Soft Drink 750 ml", "Coca-Cola")
		assert.Nil(t, match)
		assert.Equal(t, CheckNoMatch, c.Status)
		assert.InDelta(t, -0.1, c.ConfidenceAdjustment, 1e-9)
	})

	t.Run("unrelated candidate", func(t *testing.T) {
		ref := &stubReference{products: []domain.ReferenceProduct{{Name: "Basmati Rice", Brand: "India Gate"}}}
		v := NewNutritionValidator(ref, nil)

		c, _ := v.CrossReference(ctx, colaFacts(), "Coca-Cola Soft Drink 750 ml", "Coca-Cola")
		assert.Equal(t, CheckNoMatch, c.Status)
	})

	t.Run("no client", func(t *testing.T) {
		c, _ := NewNutritionValidator(nil, nil).CrossReference(ctx, colaFacts(), "Coca-Cola", "Coca-Cola")
		assert.Equal(t, CheckSkipped, c.Status)
		assert.Zero(t, c.ConfidenceAdjustment)
	})
}

func TestValidateIngredientLogic(t *testing.T) {
	tests := []struct {
		name        string
		ingredients []string
		facts       domain.NutritionFacts
		status      string
		adjustment  float64
	}{
		{"consistent", []string{"Water", "Sugar"}, colaFacts(), CheckPass, 0},
		{"sugar listed but zero", []string{"Water", "Sugar"}, domain.NutritionFacts{SugarsG: ptrFloat(0)}, CheckWarning, -0.1},
		{"sugary without sugar", []string{"Water"}, colaFacts(), CheckWarning, -0.1},
		{"milk without protein", []string{"Milk Solids", "Cocoa"}, domain.NutritionFacts{ProteinG: ptrFloat(0)}, CheckWarning, -0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ValidateIngredientLogic(tt.ingredients, tt.facts)
			assert.Equal(t, tt.status, c.Status)
			assert.InDelta(t, tt.adjustment, c.ConfidenceAdjustment, 1e-9)
		})
	}
}

func TestRecommend(t *testing.T) {
	assert.Equal(t, RecommendAcceptHigh, Recommend(CheckPass, 0))
	assert.Equal(t, RecommendAcceptMedium, Recommend(CheckPass, 4))
	assert.Equal(t, RecommendAcceptMedium, Recommend(CheckWarning, 2))
	assert.Equal(t, RecommendAcceptLow, Recommend(CheckWarning, 3))
	assert.Equal(t, RecommendReview, Recommend(CheckFail, 0))
}

func TestAdjustConfidence(t *testing.T) {
	assert.InDelta(t, 0.9, AdjustConfidence(0.8, 0.1), 1e-9)
	assert.Equal(t, 1.0, AdjustConfidence(0.95, 0.3))
	assert.Equal(t, 0.1, AdjustConfidence(0.2, -0.5))
}

func TestNutritionValidator_Validate(t *testing.T) {
	ctx := context.Background()
	result := &domain.EnrichmentResult{
		NutritionData:   colaFacts(),
		ConfidenceScore: 0.8,
		IngredientsList: "Carbonated Water, Sugar, Caffeine",
	}

	t.Run("clean result", func(t *testing.T) {
		v := NewNutritionValidator(colaReference(42, 10.6, 0, 0), nil)

		out := v.Validate(ctx, result, "Coca-Cola Soft Drink 750 ml", "Coca-Cola")
		assert.Equal(t, BeverageCola, out.BeverageType)
		assert.Equal(t, CheckPass, out.OverallStatus)
		assert.Empty(t, out.Warnings)
		assert.InDelta(t, 0.1, out.ConfidenceAdjustment, 1e-9)
		assert.InDelta(t, 0.9, out.AdjustedConfidence, 1e-9)
		assert.Equal(t, RecommendAcceptHigh, out.Recommendation)
		assert.Equal(t, "Coca-Cola Coca-Cola", out.ReferenceMatch)
	})

	t.Run("adjustment is clamped", func(t *testing.T) {
		bad := *result
		bad.NutritionData = domain.NutritionFacts{EnergyKcal: ptrFloat(300), CarbsG: ptrFloat(70), SugarsG: ptrFloat(0), FatG: ptrFloat(20)}
		v := NewNutritionValidator(colaReference(42, 10.6, 0.1, 0.1), nil)

		out := v.Validate(ctx, &bad, "Coca-Cola Soft Drink 750 ml", "Coca-Cola")
		assert.Equal(t, CheckFail, out.OverallStatus)
		assert.Equal(t, -0.5, out.ConfidenceAdjustment)
		assert.InDelta(t, 0.3, out.AdjustedConfidence, 1e-9)
		assert.Equal(t, RecommendReview, out.Recommendation)
	})
}
