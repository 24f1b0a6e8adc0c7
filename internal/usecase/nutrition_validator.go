package usecase

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// Beverage types with known nutrition ranges
const (
	BeverageCola        = "cola"
	BeverageJuice       = "juice"
	BeverageEnergyDrink = "energy_drink"
	BeverageHealthDrink = "health_drink"
	BeverageGeneric     = "generic"
)

// Validation outcomes
const (
	CheckPass        = "pass"
	CheckWarning     = "warning"
	CheckFail        = "fail"
	CheckUnknownType = "unknown_type"
	CheckSkipped     = "skipped"
	CheckMatch       = "match"
	CheckPartial     = "partial_match"
	CheckPoorMatch   = "poor_match"
	CheckNoMatch     = "no_match"
)

// Recommendations derived from a validation
const (
	RecommendAcceptHigh   = "accept_high_confidence"
	RecommendAcceptMedium = "accept_medium_confidence"
	RecommendAcceptLow    = "accept_low_confidence"
	RecommendReview       = "reject_or_manual_review"
)

const (
	minAdjustment = -0.5
	maxAdjustment = 0.3
)

type nutrientRange struct {
	key      string
	min, max float64
}

var beverageRanges = map[string][]nutrientRange{
	BeverageCola: {
		{domain.KeyEnergyKcal, 35, 50},
		{domain.KeyCarbsG, 8, 12},
		{domain.KeySugarsG, 8, 12},
		{domain.KeyProteinG, 0, 0.5},
		{domain.KeyFatG, 0, 0.5},
	},
	BeverageJuice: {
		{domain.KeyEnergyKcal, 40, 60},
		{domain.KeyCarbsG, 10, 15},
		{domain.KeySugarsG, 8, 15},
		{domain.KeyProteinG, 0, 2},
		{domain.KeyFatG, 0, 1},
	},
	BeverageEnergyDrink: {
		{domain.KeyEnergyKcal, 45, 55},
		{domain.KeyCarbsG, 11, 14},
		{domain.KeySugarsG, 10, 13},
		{domain.KeyProteinG, 0, 1},
		{domain.KeyFatG, 0, 0.5},
	},
	BeverageHealthDrink: {
		{domain.KeyEnergyKcal, 350, 420},
		{domain.KeyCarbsG, 60, 80},
		{domain.KeySugarsG, 25, 40},
		{domain.KeyProteinG, 8, 15},
		{domain.KeyFatG, 1, 5},
	},
}

// checked in order, first hit wins
var beverageKeywords = []struct {
	kind  string
	terms []string
}{
	{BeverageCola, []string{"coca cola", "pepsi", "thums up", "sprite"}},
	{BeverageJuice, []string{"juice", "maaza", "frooti", "real"}},
	{BeverageEnergyDrink, []string{"red bull", "monster", "gatorade"}},
	{BeverageHealthDrink, []string{"horlicks", "bournvita", "complan", "boost"}},
}

var crossReferenceKeys = []string{domain.KeyEnergyKcal, domain.KeyCarbsG, domain.KeyProteinG, domain.KeyFatG}

var nonWordPattern = regexp.MustCompile(`[^a-z0-9]+`)

// NutritionCheck is the outcome of one validation stage
type NutritionCheck struct {
	Status               string            `json:"status"`
	ConfidenceAdjustment float64           `json:"confidence_adjustment"`
	Warnings             []string          `json:"warnings"`
	Fields               map[string]string `json:"fields,omitempty"`
}

func (c *NutritionCheck) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// NutritionValidation combines range, cross-reference and ingredient checks
type NutritionValidation struct {
	BeverageType         string         `json:"beverage_type"`
	OverallStatus        string         `json:"overall_status"`
	ConfidenceAdjustment float64        `json:"confidence_adjustment"`
	AdjustedConfidence   float64        `json:"adjusted_confidence"`
	Warnings             []string       `json:"warnings"`
	Range                NutritionCheck `json:"range_validation"`
	CrossReference       NutritionCheck `json:"cross_reference"`
	Logic                NutritionCheck `json:"logic_validation"`
	Recommendation       string         `json:"recommendation"`
	ReferenceMatch       string         `json:"reference_match,omitempty"`
}

// NutritionValidator sanity-checks enrichment results
type NutritionValidator struct {
	reference    domain.ReferenceClient
	preprocessor *QueryPreprocessor
	matcher      *ReferenceMatcher
	logger       *zap.Logger
}

// NewNutritionValidator creates a validator. A nil reference client skips cross-referencing.
func NewNutritionValidator(reference domain.ReferenceClient, logger *zap.Logger) *NutritionValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NutritionValidator{
		reference:    reference,
		preprocessor: NewQueryPreprocessor(logger),
		matcher:      NewReferenceMatcher(MatchConfig{EnableFuzzyMatching: true}, logger),
		logger:       logger,
	}
}

// ClassifyBeverage maps a product to a beverage type by whole-word keywords
func ClassifyBeverage(productName, brand string) string {
	text := " " + strings.TrimSpace(nonWordPattern.ReplaceAllString(strings.ToLower(productName+" "+brand), " ")) + " "
	for _, kw := range beverageKeywords {
		for _, term := range kw.terms {
			if strings.Contains(text, " "+term+" ") {
				return kw.kind
			}
		}
	}
	return BeverageGeneric
}

// ValidateRanges compares facts to the expected ranges of the beverage type
func (v *NutritionValidator) ValidateRanges(facts domain.NutritionFacts, productName, brand string) NutritionCheck {
	kind := ClassifyBeverage(productName, brand)
	ranges, ok := beverageRanges[kind]
	if !ok {
		c := NutritionCheck{Status: CheckUnknownType}
		c.warn("unknown beverage type: %s", kind)
		return c
	}

	c := NutritionCheck{Status: CheckPass, Fields: make(map[string]string, len(ranges))}
	invalid := 0
	for _, r := range ranges {
		val := facts.Get(r.key)
		switch {
		case val == nil:
			c.Fields[r.key] = "missing"
			c.warn("%s is missing", r.key)
			c.ConfidenceAdjustment -= 0.05
			invalid++
		case *val < r.min || *val > r.max:
			c.Fields[r.key] = "out_of_range"
			c.warn("%s: %g outside expected range %g-%g", r.key, *val, r.min, r.max)
			c.ConfidenceAdjustment -= 0.1
			invalid++
		default:
			c.Fields[r.key] = "valid"
		}
	}

	switch {
	case invalid > 2:
		c.Status = CheckFail
		c.ConfidenceAdjustment -= 0.2
	case invalid > 0:
		c.Status = CheckWarning
	}
	return c
}

// CrossReference compares key nutrients against the best reference database match
func (v *NutritionValidator) CrossReference(ctx context.Context, facts domain.NutritionFacts, productName, brand string) (NutritionCheck, *ReferenceMatch) {
	if v.reference == nil {
		return NutritionCheck{Status: CheckSkipped}, nil
	}

	noMatch := func(reason string) (NutritionCheck, *ReferenceMatch) {
		c := NutritionCheck{Status: CheckNoMatch, ConfidenceAdjustment: -0.1}
		c.warn("no external nutrition data found for cross-reference: %s", reason)
		return c, nil
	}

	query := v.preprocessor.PreprocessQuery(productName, brand)
	candidates, err := v.reference.SearchProducts(ctx, query)
	if err != nil {
		v.logger.Debug("reference search failed", zap.String("query", query), zap.Error(err))
		return noMatch(err.Error())
	}

	match, err := v.matcher.FindBestMatch(ctx, productName, brand, candidates)
	if err != nil {
		return noMatch(err.Error())
	}

	c := NutritionCheck{Status: CheckMatch, Fields: make(map[string]string)}
	significant := 0
	for _, key := range crossReferenceKeys {
		ours := facts.Get(key)
		theirs := match.Product.Nutrition.Get(key)
		if ours == nil || theirs == nil || *theirs <= 0 {
			continue
		}
		diff := math.Abs(*ours-*theirs) / *theirs * 100
		switch {
		case diff <= 10:
			c.Fields[key] = "close_match"
			c.ConfidenceAdjustment += 0.05
		case diff <= 25:
			c.Fields[key] = "acceptable"
		default:
			c.Fields[key] = "significant_difference"
			c.warn("%s: estimate=%g, reference=%g (%.1f%% diff)", key, *ours, *theirs, diff)
			c.ConfidenceAdjustment -= 0.1
			significant++
		}
	}

	switch {
	case significant > 2:
		c.Status = CheckPoorMatch
		c.ConfidenceAdjustment -= 0.2
	case significant > 0:
		c.Status = CheckPartial
	}
	return c, match
}

// ValidateIngredientLogic checks that sugar and milk ingredients agree with the nutrients
func ValidateIngredientLogic(ingredients []string, facts domain.NutritionFacts) NutritionCheck {
	c := NutritionCheck{Status: CheckPass}
	joined := strings.ToLower(strings.Join(ingredients, " "))

	value := func(key string) float64 {
		if v := facts.Get(key); v != nil {
			return *v
		}
		return 0
	}

	hasSugar := strings.Contains(joined, "sugar")
	sugar := value(domain.KeySugarsG)
	switch {
	case hasSugar && sugar == 0:
		c.warn("sugar in ingredients but 0g sugar in nutrition")
		c.ConfidenceAdjustment -= 0.1
	case !hasSugar && sugar > 5:
		c.warn("high sugar content but no sugar in ingredients")
		c.ConfidenceAdjustment -= 0.1
	}

	hasMilk := false
	for _, term := range []string{"milk", "protein", "whey", "casein"} {
		if strings.Contains(joined, term) {
			hasMilk = true
			break
		}
	}
	if hasMilk && value(domain.KeyProteinG) == 0 {
		c.warn("milk ingredients but 0g protein")
		c.ConfidenceAdjustment -= 0.05
	}

	switch {
	case len(c.Warnings) > 2:
		c.Status = CheckFail
	case len(c.Warnings) > 0:
		c.Status = CheckWarning
	}
	return c
}

// SplitIngredients turns a comma separated ingredient list into items
func SplitIngredients(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// Recommend grades a validation outcome
func Recommend(status string, warnings int) string {
	switch {
	case status == CheckPass && warnings == 0:
		return RecommendAcceptHigh
	case status == CheckPass || (status == CheckWarning && warnings <= 2):
		return RecommendAcceptMedium
	case status == CheckWarning:
		return RecommendAcceptLow
	default:
		return RecommendReview
	}
}

// AdjustConfidence applies an adjustment, clamps the result to [0.1, 1.0]
// and rounds it to three decimals
func AdjustConfidence(confidence, adjustment float64) float64 {
	c := math.Max(0.1, math.Min(1.0, confidence+adjustment))
	return math.Round(c*1000) / 1000
}

// Validate runs every check on an enrichment result for the named product
func (v *NutritionValidator) Validate(ctx context.Context, result *domain.EnrichmentResult, productName, brand string) *NutritionValidation {
	out := &NutritionValidation{BeverageType: ClassifyBeverage(productName, brand)}

	out.Range = v.ValidateRanges(result.NutritionData, productName, brand)
	var match *ReferenceMatch
	out.CrossReference, match = v.CrossReference(ctx, result.NutritionData, productName, brand)
	if match != nil {
		out.ReferenceMatch = strings.TrimSpace(match.Product.Brand + " " + match.Product.Name)
	}
	out.Logic = ValidateIngredientLogic(SplitIngredients(result.IngredientsList), result.NutritionData)

	total := out.Range.ConfidenceAdjustment + out.CrossReference.ConfidenceAdjustment + out.Logic.ConfidenceAdjustment
	out.ConfidenceAdjustment = math.Max(minAdjustment, math.Min(maxAdjustment, total))
	out.AdjustedConfidence = AdjustConfidence(result.ConfidenceScore, out.ConfidenceAdjustment)

	out.Warnings = append(out.Warnings, out.Range.Warnings...)
	out.Warnings = append(out.Warnings, out.CrossReference.Warnings...)
	out.Warnings = append(out.Warnings, out.Logic.Warnings...)

	statuses := []string{out.Range.Status, out.CrossReference.Status, out.Logic.Status}
	out.OverallStatus = CheckPass
	for _, s := range statuses {
		if s == CheckFail {
			out.OverallStatus = CheckFail
			break
		}
		if s == CheckWarning || s == CheckPoorMatch {
			out.OverallStatus = CheckWarning
		}
	}
	out.Recommendation = Recommend(out.OverallStatus, len(out.Warnings))

	v.logger.Debug("nutrition validated",
		zap.String("product", productName),
		zap.String("beverage_type", out.BeverageType),
		zap.String("status", out.OverallStatus),
		zap.Float64("adjustment", out.ConfidenceAdjustment),
	)
	return out
}
