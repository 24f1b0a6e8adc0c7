package usecase

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/foodnutrition/pipeline/internal/domain"
)

const (
	defaultParsedConfidence = 0.7
	legacyParsedConfidence  = 0.6
	defaultProcessingNotes  = "LLM enhanced"
)

var (
	fieldLinePattern   = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.*)$`)
	jsonObjectPattern  = regexp.MustCompile(`(?s)\{.*\}`)
	firstNumberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	codeFencePattern   = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
)

// nullMarkers are values that mean "unknown"
var nullMarkers = map[string]bool{
	"": true, "null": true, "none": true, "n/a": true, "na": true,
	"nan": true, "unknown": true, "empty": true, "-": true,
}

// ParseNutritionResponse reads a provider reply. The line format
// "field: value" is tried first, then the first JSON object in the text.
// Missing nutrition fields stay nil; ok is false when nothing could be read.
func ParseNutritionResponse(content, modelUsed string) (*domain.EnrichmentResult, bool) {
	content = codeFencePattern.ReplaceAllString(content, "")

	fields := parseFieldLines(content)
	legacy := false
	if len(fields) == 0 {
		fields, legacy = parseJSONFields(content)
	}
	if len(fields) == 0 {
		return nil, false
	}

	result := &domain.EnrichmentResult{
		ModelUsed:       modelUsed,
		DataSource:      "LLM-" + modelUsed,
		ProcessingNotes: defaultProcessingNotes,
	}

	for _, key := range domain.NutritionKeys {
		names := append(append([]string(nil), domain.NutritionAliases[key]...), key)
		for _, alias := range names {
			if raw, ok := fields[alias]; ok {
				result.NutritionData.Set(key, parseNumber(raw))
				break
			}
		}
	}

	confidence := defaultParsedConfidence
	if legacy {
		confidence = legacyParsedConfidence
	}
	for _, name := range []string{"confidence_score", "confidence"} {
		if raw, ok := fields[name]; ok {
			if v := parseNumber(raw); v != nil {
				confidence = *v
			}
			break
		}
	}
	result.ConfidenceScore = confidence

	if v := parseText(fields["ingredients_list"]); v != "" {
		result.IngredientsList = v
	} else if v := parseText(fields["ingredients"]); v != "" {
		result.IngredientsList = v
	}
	result.ServingSize = parseText(fields["serving_size"])
	result.ServingsPerContainer = parseNumber(fields["servings_per_container"])
	if v := parseText(fields["data_source"]); v != "" {
		result.DataSource = v
	}
	if v := parseText(fields["processing_notes"]); v != "" {
		result.ProcessingNotes = v
	}

	return result, true
}

// parseFieldLines collects "name: value" lines; names are lower-cased.
// List markers and bold markup around names are tolerated.
func parseFieldLines(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.ReplaceAll(line, "**", "")
		m := fieldLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		name := strings.ToLower(m[1])
		if _, dup := fields[name]; !dup {
			fields[name] = value
		}
	}
	return fields
}

// parseJSONFields flattens the first JSON object in content into raw strings.
// Objects nested one level (e.g. {"nutrition": {...}}) are merged in.
// legacy reports the older shape without per-100g field names.
func parseJSONFields(content string) (map[string]string, bool) {
	match := jsonObjectPattern.FindString(content)
	if match == "" {
		return nil, false
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(match), &obj); err != nil {
		return nil, false
	}

	fields := make(map[string]string)
	var add func(m map[string]interface{}, depth int)
	add = func(m map[string]interface{}, depth int) {
		for k, v := range m {
			name := strings.ToLower(k)
			switch val := v.(type) {
			case nil:
				fields[name] = "null"
			case float64:
				fields[name] = strconv.FormatFloat(val, 'f', -1, 64)
			case string:
				fields[name] = val
			case bool:
				fields[name] = strconv.FormatBool(val)
			case []interface{}:
				parts := make([]string, 0, len(val))
				for _, item := range val {
					if s, ok := item.(string); ok {
						parts = append(parts, s)
					}
				}
				fields[name] = strings.Join(parts, ", ")
			case map[string]interface{}:
				if depth == 0 {
					add(val, depth+1)
				}
			}
		}
	}
	add(obj, 0)

	legacy := true
	for k := range fields {
		if strings.HasSuffix(k, "_per_100g") {
			legacy = false
			break
		}
	}
	return fields, legacy
}

// parseNumber extracts the first number of a value; null markers and text yield nil
func parseNumber(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if nullMarkers[strings.ToLower(raw)] {
		return nil
	}
	m := firstNumberPattern.FindString(raw)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseText(raw string) string {
	raw = strings.TrimSpace(raw)
	if nullMarkers[strings.ToLower(raw)] {
		return ""
	}
	return raw
}
