package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Nutrition keys of the flat per-100g mapping, in serialization order
const (
	KeyEnergyKcal    = "energy_kcal"
	KeyFatG          = "fat_g"
	KeySaturatedFatG = "saturated_fat_g"
	KeyCarbsG        = "carbs_g"
	KeySugarsG       = "sugars_g"
	KeyProteinG      = "protein_g"
	KeySaltG         = "salt_g"
	KeyFiberG        = "fiber_g"
	KeySodiumMg      = "sodium_mg"
)

// NutritionKeys lists the nine nutrition keys in serialization order
var NutritionKeys = []string{
	KeyEnergyKcal, KeyFatG, KeySaturatedFatG, KeyCarbsG, KeySugarsG,
	KeyProteinG, KeySaltG, KeyFiberG, KeySodiumMg,
}

// NutritionAliases lists, per nutrition key, the older field names that may
// carry its value in provider replies and in cache rows written before the
// flat keys were adopted
var NutritionAliases = map[string][]string{
	KeyEnergyKcal:    {"energy_kcal_per_100g"},
	KeyFatG:          {"fat_g_per_100g"},
	KeySaturatedFatG: {"saturated_fat_g_per_100g"},
	KeyCarbsG:        {"carbs_g_per_100g"},
	KeySugarsG:       {"total_sugars_g_per_100g", "sugars_g_per_100g", "total_sugars_g"},
	KeyProteinG:      {"protein_g_per_100g"},
	KeySaltG:         {"salt_g_per_100g"},
	KeyFiberG:        {"fiber_g_per_100g"},
	KeySodiumMg:      {"sodium_mg_per_100g"},
}

// NutritionFacts holds per-100g values. A nil field means unknown.
// It always serializes with exactly the nine keys, unknown values as null.
type NutritionFacts struct {
	EnergyKcal    *float64 `json:"energy_kcal"`
	FatG          *float64 `json:"fat_g"`
	SaturatedFatG *float64 `json:"saturated_fat_g"`
	CarbsG        *float64 `json:"carbs_g"`
	SugarsG       *float64 `json:"sugars_g"`
	ProteinG      *float64 `json:"protein_g"`
	SaltG         *float64 `json:"salt_g"`
	FiberG        *float64 `json:"fiber_g"`
	SodiumMg      *float64 `json:"sodium_mg"`
}

func (n *NutritionFacts) field(key string) **float64 {
	switch key {
	case KeyEnergyKcal:
		return &n.EnergyKcal
	case KeyFatG:
		return &n.FatG
	case KeySaturatedFatG:
		return &n.SaturatedFatG
	case KeyCarbsG:
		return &n.CarbsG
	case KeySugarsG:
		return &n.SugarsG
	case KeyProteinG:
		return &n.ProteinG
	case KeySaltG:
		return &n.SaltG
	case KeyFiberG:
		return &n.FiberG
	case KeySodiumMg:
		return &n.SodiumMg
	}
	return nil
}

// Get returns the value stored under a nutrition key
func (n NutritionFacts) Get(key string) *float64 {
	if f := n.field(key); f != nil {
		return *f
	}
	return nil
}

// Set stores a value under a nutrition key. Unknown keys are ignored.
func (n *NutritionFacts) Set(key string, v *float64) {
	if f := n.field(key); f != nil {
		*f = v
	}
}

// HasAny reports whether at least one value is known
func (n NutritionFacts) HasAny() bool {
	for _, k := range NutritionKeys {
		if n.Get(k) != nil {
			return true
		}
	}
	return false
}

// JSON returns the flat nine-key encoding
func (n NutritionFacts) JSON() string {
	b, err := json.Marshal(n)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseNutritionFacts decodes a stored nutrition JSON value.
// Records written by older integrations nest values under "per_100g"; those are unwrapped.
// A key left null falls back to its NutritionAliases spellings.
func ParseNutritionFacts(raw string) (NutritionFacts, bool) {
	var facts NutritionFacts
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return facts, false
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return facts, false
	}
	if nested, ok := generic["per_100g"]; ok {
		raw = string(nested)
	}

	var values map[string]*float64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		// per-key decode so one bad value does not drop the rest
		values = map[string]*float64{}
		var loose map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &loose); err != nil {
			return facts, false
		}
		for k, v := range loose {
			var f float64
			if json.Unmarshal(v, &f) == nil {
				values[k] = &f
			}
		}
	}
	for _, k := range NutritionKeys {
		v := values[k]
		for _, alias := range NutritionAliases[k] {
			if v != nil {
				break
			}
			v = values[alias]
		}
		facts.Set(k, v)
	}
	return facts, true
}

// EnrichRequest identifies a product to enrich
type EnrichRequest struct {
	ProductName string   `json:"product_name" binding:"required"`
	Brand       string   `json:"brand,omitempty"`
	Category    string   `json:"category,omitempty"`
	SizeValue   *float64 `json:"size_value,omitempty"`
	SizeUnit    string   `json:"size_unit,omitempty"`
}

// EnrichmentResult is the estimate produced by a provider or served from cache
type EnrichmentResult struct {
	NutritionData        NutritionFacts `json:"nutrition_data"`
	ConfidenceScore      float64        `json:"confidence_score"`
	ModelUsed            string         `json:"model_used"`
	DataSource           string         `json:"data_source,omitempty"`
	ProcessingNotes      string         `json:"processing_notes,omitempty"`
	IngredientsList      string         `json:"ingredients_list,omitempty"`
	ServingSize          string         `json:"serving_size,omitempty"`
	ServingsPerContainer *float64       `json:"servings_per_container,omitempty"`
	FromCache            bool           `json:"from_cache"`
	CreatedAt            time.Time      `json:"created_at"`
}

// CacheEntry is one persisted enrichment, keyed by product hash
type CacheEntry struct {
	ProductHash     string
	ProductName     string
	Brand           string
	Category        string
	NutritionData   NutritionFacts
	ConfidenceScore float64
	ModelUsed       string
	CreatedAt       time.Time
}

// CacheStats summarizes the enrichment cache
type CacheStats struct {
	TotalEntries      int            `json:"total_entries"`
	AverageConfidence float64        `json:"average_confidence"`
	ByModel           map[string]int `json:"by_model"`
}

// ReferenceProduct is a product from the public reference food database
type ReferenceProduct struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Brand     string         `json:"brand"`
	Nutrition NutritionFacts `json:"nutrition"`
}
