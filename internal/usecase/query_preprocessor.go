package usecase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// QueryPreprocessor turns noisy retail product titles into reference search queries
type QueryPreprocessor struct {
	logger *zap.Logger
}

// Compiled regex patterns for query preprocessing
var (
	// "500 g", "1.5kg", "200 ML", "1 ltr", "2 litre", "100gm"
	sizeQuantityPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:kg|gms?|grams?|g|ml|l|ltrs?|litres?|liters?|pcs?|pieces?)\b`)

	// "pack of 6", "6 x 200 ml", "(Pack of 2)", "combo of 3"
	packCountPattern = regexp.MustCompile(`(?i)\b(?:pack|combo|set)\s+of\s+\d+\b|\b\d+\s*[x×]\s*\d*\b`)

	// leftover "( )", "[ ]" and separators
	emptyBracketPattern = regexp.MustCompile(`[\(\[]\s*[\)\]]`)
	separatorPattern    = regexp.MustCompile(`\s*[|,/\-–:]+\s*$|^\s*[|,/\-–:]+\s*`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// queryNoiseWords are retail and packaging terms that do not narrow a food search
var queryNoiseWords = map[string]bool{
	// Marketing terms
	"new": true, "offer": true, "combo": true, "free": true, "save": true,
	"buy": true, "get": true, "value": true, "premium": true, "special": true,
	"best": true, "super": true, "saver": true, "deal": true,

	// Packaging terms
	"pack": true, "pouch": true, "jar": true, "bottle": true, "pet": true,
	"tetra": true, "tin": true, "can": true, "box": true, "carton": true,
	"refill": true, "sachet": true, "packet": true, "bag": true,

	// Generic terms
	"product": true, "brand": true, "item": true, "of": true,
}

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(logger *zap.Logger) *QueryPreprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryPreprocessor{logger: logger}
}

// PreprocessQuery cleans a product title for a reference database search.
// Sizes, pack counts and packaging words are dropped; the brand is prepended when absent.
func (p *QueryPreprocessor) PreprocessQuery(productName, brand string) string {
	if productName == "" {
		return ""
	}

	cleaned := sizeQuantityPattern.ReplaceAllString(productName, " ")
	cleaned = packCountPattern.ReplaceAllString(cleaned, " ")
	cleaned = emptyBracketPattern.ReplaceAllString(cleaned, " ")
	cleaned = p.removeNoiseWords(cleaned)
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = separatorPattern.ReplaceAllString(strings.TrimSpace(cleaned), "")
	cleaned = strings.TrimSpace(cleaned)

	if brand != "" && !strings.EqualFold(brand, "unknown brand") {
		if !strings.Contains(strings.ToLower(cleaned), strings.ToLower(brand)) {
			cleaned = brand + " " + cleaned
		}
	}

	if len(cleaned) > 100 {
		cleaned = cleaned[:100]
		if lastSpace := strings.LastIndex(cleaned, " "); lastSpace > 50 {
			cleaned = cleaned[:lastSpace]
		}
	}

	p.logger.Debug("preprocessed query",
		zap.String("input", productName),
		zap.String("output", cleaned),
	)
	return strings.TrimSpace(cleaned)
}

func (p *QueryPreprocessor) removeNoiseWords(s string) string {
	words := strings.Fields(strings.ToLower(s))
	kept := words[:0]
	for _, word := range words {
		if !queryNoiseWords[strings.Trim(word, ",.!?;:-'\"()[]")] {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}

// ExtractFoodKeywords returns the tokens of text, food terms first
func (p *QueryPreprocessor) ExtractFoodKeywords(text string) []string {
	tokens := tokenize(text)

	var high, medium, low []string
	for _, token := range tokens {
		switch {
		case foodTerms[token]:
			high = append(high, token)
		case descriptiveTerms[token]:
			medium = append(medium, token)
		default:
			low = append(low, token)
		}
	}

	result := make([]string, 0, len(tokens))
	result = append(result, high...)
	result = append(result, medium...)
	return append(result, low...)
}
