package usecase

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
)

var punctuationRegex = regexp.MustCompile(`[^\w\s]`)

// Scoring bonuses
const (
	brandMatchBonus     = 15.0
	substringMatchBonus = 10.0
)

// foodTerms are high-signal food keywords for packaged goods
var foodTerms = map[string]bool{
	// Beverages
	"cola": true, "juice": true, "soda": true, "coffee": true, "tea": true,
	"chai": true, "water": true, "lassi": true, "drink": true, "energy": true,
	// Dairy
	"milk": true, "curd": true, "dahi": true, "paneer": true, "ghee": true,
	"butter": true, "cheese": true, "yogurt": true, "cream": true,
	// Staples
	"atta": true, "rice": true, "dal": true, "flour": true, "sugar": true,
	"salt": true, "oil": true, "besan": true, "poha": true, "suji": true,
	"oats": true, "muesli": true, "cornflakes": true,
	// Snacks and sweets
	"biscuit": true, "biscuits": true, "cookies": true, "chips": true,
	"namkeen": true, "bhujia": true, "chocolate": true, "cake": true,
	"rusk": true, "wafer": true, "noodles": true, "pasta": true,
	// Condiments
	"ketchup": true, "sauce": true, "pickle": true, "jam": true, "honey": true,
	"masala": true, "chutney": true, "mayonnaise": true,
}

// descriptiveTerms qualify a food without identifying it
var descriptiveTerms = map[string]bool{
	"toned": true, "full": true, "skimmed": true, "double": true, "organic": true,
	"classic": true, "original": true, "plain": true, "salted": true, "unsalted": true,
	"sweetened": true, "unsweetened": true, "diet": true, "zero": true, "lite": true,
	"light": true, "instant": true, "roasted": true, "whole": true, "wheat": true,
	"mango": true, "orange": true, "lemon": true, "strawberry": true, "chocolatey": true,
}

// stopWords are dropped before scoring
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"in": true, "with": true, "for": true, "by": true, "from": true,
	"g": true, "gm": true, "gms": true, "kg": true, "ml": true, "ltr": true,
	"litre": true, "pack": true, "pouch": true, "bottle": true, "jar": true,
	"box": true, "combo": true, "pcs": true, "new": true,
}

// MatchConfig holds configuration for the reference matcher
type MatchConfig struct {
	MinScore            float64
	EnableFuzzyMatching bool
	FuzzyEditDistance   int
}

// ReferenceMatch is the best reference product for a query with its score (0-100)
type ReferenceMatch struct {
	Product       domain.ReferenceProduct
	Score         float64
	MatchedTokens []string
}

// ReferenceMatcher picks the reference product that best matches a product title
type ReferenceMatcher struct {
	minScore            float64
	enableFuzzyMatching bool
	fuzzyEditDistance   int
	logger              *zap.Logger
}

// NewReferenceMatcher creates a matcher with defaults for unset fields
func NewReferenceMatcher(config MatchConfig, logger *zap.Logger) *ReferenceMatcher {
	if config.MinScore <= 0 {
		config.MinScore = 40.0
	}
	if config.FuzzyEditDistance <= 0 {
		config.FuzzyEditDistance = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceMatcher{
		minScore:            config.MinScore,
		enableFuzzyMatching: config.EnableFuzzyMatching,
		fuzzyEditDistance:   config.FuzzyEditDistance,
		logger:              logger,
	}
}

// FindBestMatch scores every candidate. When the best score is below the
// threshold the match is still returned together with ErrLowConfidence.
func (m *ReferenceMatcher) FindBestMatch(
	ctx context.Context,
	productName, brand string,
	candidates []domain.ReferenceProduct,
) (*ReferenceMatch, error) {
	if productName == "" {
		return nil, domain.ErrInvalidRequest
	}
	if len(candidates) == 0 {
		return nil, domain.ErrProductNotFound
	}

	var best *ReferenceMatch
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		description := strings.TrimSpace(c.Brand + " " + c.Name)
		score, matched := m.calculateMatchScore(productName, brand, description)
		if best == nil || score > best.Score {
			best = &ReferenceMatch{Product: c, Score: score, MatchedTokens: matched}
		}
	}

	m.logger.Debug("reference match",
		zap.String("product", productName),
		zap.String("match", best.Product.Name),
		zap.Float64("score", best.Score),
	)

	if best.Score < m.minScore {
		return best, domain.ErrLowConfidence
	}
	return best, nil
}

// calculateMatchScore weights product-token coverage (60%), reference-token
// coverage (20%) and Jaccard overlap (20%), plus brand and substring bonuses.
func (m *ReferenceMatcher) calculateMatchScore(productName, brand, description string) (float64, []string) {
	cleaned := sizeQuantityPattern.ReplaceAllString(productName, " ")
	productTokens := tokenize(cleaned)
	refTokens := tokenize(description)
	if len(productTokens) == 0 || len(refTokens) == 0 {
		return 0, nil
	}

	productMatched, matched := m.intersect(productTokens, refTokens)
	refMatched, _ := m.intersect(refTokens, productTokens)

	productCoverage := float64(productMatched) / float64(len(productTokens))
	refCoverage := float64(refMatched) / float64(len(refTokens))
	jaccard := float64(productMatched) / float64(union(productTokens, refTokens))

	score := (productCoverage*0.60 + refCoverage*0.20 + jaccard*0.20) * 100

	productLower := strings.ToLower(strings.Join(productTokens, " "))
	refLower := strings.ToLower(description)

	if brand != "" && strings.Contains(refLower, strings.ToLower(brand)) {
		score += brandMatchBonus
	}
	if len(productLower) > 3 && strings.Contains(refLower, productLower) {
		score += substringMatchBonus
	}

	if score > 100 {
		score = 100
	}
	return score, matched
}

// intersect counts tokens of a found in b, optionally allowing small edit distances
func (m *ReferenceMatcher) intersect(a, b []string) (int, []string) {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range a {
		if seen[t] {
			continue
		}
		hit := set[t]
		if !hit && m.enableFuzzyMatching {
			for _, other := range b {
				if fuzzyTokenMatch(t, other, m.fuzzyEditDistance) {
					hit = true
					break
				}
			}
		}
		if hit {
			matched = append(matched, t)
			seen[t] = true
		}
	}
	return len(matched), matched
}

func union(a, b []string) int {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		set[t] = true
	}
	return len(set)
}

// tokenize lower-cases s and drops punctuation, stop words, one-letter and numeric tokens
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if len(word) <= 1 || stopWords[word] || isNumeric(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// fuzzyTokenMatch allows typos in tokens of four or more characters
func fuzzyTokenMatch(a, b string, threshold int) bool {
	if a == b {
		return true
	}
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > threshold {
		return false
	}
	return levenshteinDistance(a, b) <= threshold
}

func levenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}
