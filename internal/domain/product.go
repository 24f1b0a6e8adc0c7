package domain

// Column names of the canonical product record, in on-disk order.
const (
	ColID               = "id"
	ColProductName      = "product_name"
	ColBrand            = "brand"
	ColCategory         = "category"
	ColSubcategory      = "subcategory"
	ColSizeValue        = "size_value"
	ColSizeUnit         = "size_unit"
	ColPrice            = "price"
	ColSource           = "source"
	ColSourceURL        = "source_url"
	ColIngredients      = "ingredients"
	ColNutritionData    = "nutrition_data"
	ColImageURL         = "image_url"
	ColLastUpdated      = "last_updated"
	ColSearchCount      = "search_count"
	ColLLMFallbackUsed  = "llm_fallback_used"
	ColDataQualityScore = "data_quality_score"
)

// RecordColumns is the fixed schema of the product store
var RecordColumns = []string{
	ColID, ColProductName, ColBrand, ColCategory, ColSubcategory,
	ColSizeValue, ColSizeUnit, ColPrice, ColSource, ColSourceURL,
	ColIngredients, ColNutritionData, ColImageURL, ColLastUpdated,
	ColSearchCount, ColLLMFallbackUsed, ColDataQualityScore,
}

const (
	// UnknownBrand is the placeholder for records without a brand
	UnknownBrand = "Unknown Brand"
	// DefaultCategory is assigned when a record has no category
	DefaultCategory = "uncategorized"
	// DefaultSubcategory is assigned when a record has no subcategory
	DefaultSubcategory = "general"
)

// ProductRecord is one row of the product store.
// Numeric fields are nil when the stored value is absent or not numeric.
type ProductRecord struct {
	ID               string
	ProductName      string
	Brand            string
	Category         string
	Subcategory      string
	SizeValue        *float64
	SizeUnit         string
	Price            *float64
	Source           string
	SourceURL        string
	Ingredients      string
	NutritionData    string // flat nutrition JSON, see NutritionFacts
	ImageURL         string
	LastUpdated      string
	SearchCount      *int
	LLMFallbackUsed  bool
	DataQualityScore *int

	// Extra holds columns outside the fixed schema so they survive a round trip
	Extra map[string]string
}

// IsEnriched reports whether the record already carries integrated enrichment.
// Enriched records are never modified again by integration.
func (r *ProductRecord) IsEnriched() bool {
	return r.LLMFallbackUsed
}

// NeedsNutrition reports whether the record lacks usable nutrition values
func (r *ProductRecord) NeedsNutrition() bool {
	if r.LLMFallbackUsed {
		return false
	}
	facts, ok := ParseNutritionFacts(r.NutritionData)
	return !ok || !facts.HasAny()
}

// Clone returns a deep copy of the record
func (r ProductRecord) Clone() ProductRecord {
	out := r
	out.SizeValue = cloneFloat(r.SizeValue)
	out.Price = cloneFloat(r.Price)
	if r.SearchCount != nil {
		v := *r.SearchCount
		out.SearchCount = &v
	}
	if r.DataQualityScore != nil {
		v := *r.DataQualityScore
		out.DataQualityScore = &v
	}
	if r.Extra != nil {
		out.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Optional columns written alongside integrated enrichment
const (
	ExtraLLMConfidence = "llm_confidence"
	ExtraLLMProvider   = "llm_provider"
)
