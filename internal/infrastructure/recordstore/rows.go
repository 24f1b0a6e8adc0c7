package recordstore

import (
	"math"
	"strconv"
	"strings"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// Delimiter separates fields on disk
const Delimiter = "||"

// SplitLine splits one stored line into raw fields. A backslash escapes a
// following '|' or '\\'; any other backslash is kept as written, so files
// produced without escaping read the same as before.
func SplitLine(line string) []string {
	var fields []string
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line) && (line[i+1] == '\\' || line[i+1] == '|'):
			b.WriteByte(line[i+1])
			i++
		case c == '|' && i+1 < len(line) && line[i+1] == '|':
			fields = append(fields, b.String())
			b.Reset()
			i++
		default:
			b.WriteByte(c)
		}
	}
	return append(fields, b.String())
}

// JoinFields joins raw fields into one stored line. Pipes and backslashes
// inside values are escaped and line breaks become spaces, so every record
// stays on a single line and SplitLine returns the same fields.
func JoinFields(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escapeField(f)
	}
	return strings.Join(escaped, Delimiter)
}

var fieldEscaper = strings.NewReplacer(
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"\\", "\\\\",
	"|", "\\|",
)

func escapeField(s string) string {
	return fieldEscaper.Replace(s)
}

// FromRawRow builds a typed record from raw fields.
// Rows shorter than the header are padded with empty values; extra trailing fields are dropped.
func FromRawRow(header, fields []string) domain.ProductRecord {
	value := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	var r domain.ProductRecord
	for i, col := range header {
		v := value(i)
		switch col {
		case domain.ColID:
			r.ID = v
		case domain.ColProductName:
			r.ProductName = v
		case domain.ColBrand:
			r.Brand = v
		case domain.ColCategory:
			r.Category = v
		case domain.ColSubcategory:
			r.Subcategory = v
		case domain.ColSizeValue:
			r.SizeValue = ParseFloat(v)
		case domain.ColSizeUnit:
			r.SizeUnit = v
		case domain.ColPrice:
			r.Price = ParseFloat(v)
		case domain.ColSource:
			r.Source = v
		case domain.ColSourceURL:
			r.SourceURL = v
		case domain.ColIngredients:
			r.Ingredients = v
		case domain.ColNutritionData:
			r.NutritionData = v
		case domain.ColImageURL:
			r.ImageURL = v
		case domain.ColLastUpdated:
			r.LastUpdated = v
		case domain.ColSearchCount:
			r.SearchCount = ParseInt(v)
		case domain.ColLLMFallbackUsed:
			r.LLMFallbackUsed = ParseBool(v)
		case domain.ColDataQualityScore:
			r.DataQualityScore = ParseInt(v)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[col] = v
		}
	}
	return r
}

// ToRawRow renders a record in header order. Absent values become empty strings.
func ToRawRow(r domain.ProductRecord, header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		switch col {
		case domain.ColID:
			out[i] = r.ID
		case domain.ColProductName:
			out[i] = r.ProductName
		case domain.ColBrand:
			out[i] = r.Brand
		case domain.ColCategory:
			out[i] = r.Category
		case domain.ColSubcategory:
			out[i] = r.Subcategory
		case domain.ColSizeValue:
			out[i] = FormatFloat(r.SizeValue)
		case domain.ColSizeUnit:
			out[i] = r.SizeUnit
		case domain.ColPrice:
			out[i] = FormatFloat(r.Price)
		case domain.ColSource:
			out[i] = r.Source
		case domain.ColSourceURL:
			out[i] = r.SourceURL
		case domain.ColIngredients:
			out[i] = r.Ingredients
		case domain.ColNutritionData:
			out[i] = r.NutritionData
		case domain.ColImageURL:
			out[i] = r.ImageURL
		case domain.ColLastUpdated:
			out[i] = r.LastUpdated
		case domain.ColSearchCount:
			out[i] = formatInt(r.SearchCount)
		case domain.ColLLMFallbackUsed:
			out[i] = formatBool(r.LLMFallbackUsed)
		case domain.ColDataQualityScore:
			out[i] = formatInt(r.DataQualityScore)
		default:
			out[i] = r.Extra[col]
		}
	}
	return out
}

// ParseFloat coerces a raw value to a number; anything non-numeric is absent
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ParseInt coerces a raw value to an integer, rounding fractional input
func ParseInt(s string) *int {
	f := ParseFloat(s)
	if f == nil {
		return nil
	}
	v := int(math.Round(*f))
	return &v
}

// ParseBool reports whether s is the "True" marker written by formatBool; any
// other spelling reads as false
func ParseBool(s string) bool {
	return strings.TrimSpace(s) == "True"
}

// FormatFloat renders the shortest representation that parses back to the same value
func FormatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
