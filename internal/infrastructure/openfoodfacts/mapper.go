package openfoodfacts

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// SearchResponse is the search endpoint payload
type SearchResponse struct {
	Count    int       `json:"count"`
	Products []Product `json:"products"`
}

// Product is one search hit
type Product struct {
	Code        string     `json:"code"`
	ProductName string     `json:"product_name"`
	Brands      string     `json:"brands"`
	Nutriments  Nutriments `json:"nutriments"`
}

// Nutriments holds per-100g values. The API sends numbers or numeric strings.
type Nutriments struct {
	EnergyKcal100g    flexFloat `json:"energy-kcal_100g"`
	Carbohydrates100g flexFloat `json:"carbohydrates_100g"`
	Sugars100g        flexFloat `json:"sugars_100g"`
	Proteins100g      flexFloat `json:"proteins_100g"`
	Fat100g           flexFloat `json:"fat_100g"`
	SaturatedFat100g  flexFloat `json:"saturated-fat_100g"`
	Fiber100g         flexFloat `json:"fiber_100g"`
	Salt100g          flexFloat `json:"salt_100g"`
	Sodium100g        flexFloat `json:"sodium_100g"` // grams
}

// flexFloat decodes a JSON number or numeric string; anything else is absent
type flexFloat struct {
	Value *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.Value = &v
	return nil
}

func (f flexFloat) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

// MapToReferenceProduct converts an API product to the domain model.
// Sodium is converted from grams to milligrams.
func MapToReferenceProduct(p Product) domain.ReferenceProduct {
	n := p.Nutriments
	facts := domain.NutritionFacts{
		EnergyKcal:    n.EnergyKcal100g.Value,
		CarbsG:        n.Carbohydrates100g.Value,
		SugarsG:       n.Sugars100g.Value,
		ProteinG:      n.Proteins100g.Value,
		FatG:          n.Fat100g.Value,
		SaturatedFatG: n.SaturatedFat100g.Value,
		FiberG:        n.Fiber100g.Value,
		SaltG:         n.Salt100g.Value,
	}
	if n.Sodium100g.Value != nil {
		mg := *n.Sodium100g.Value * 1000
		facts.SodiumMg = &mg
	}

	brand := p.Brands
	if i := strings.Index(brand, ","); i >= 0 {
		brand = brand[:i]
	}

	return domain.ReferenceProduct{
		Code:      p.Code,
		Name:      strings.TrimSpace(p.ProductName),
		Brand:     strings.TrimSpace(brand),
		Nutrition: facts,
	}
}
