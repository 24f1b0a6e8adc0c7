package usecase

import (
	"fmt"
	"strings"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
)

// requiredNutritionFields are the per-100g lines every response must carry
var requiredNutritionFields = []string{
	"energy_kcal_per_100g",
	"carbs_g_per_100g",
	"total_sugars_g_per_100g",
	"protein_g_per_100g",
	"fat_g_per_100g",
	"saturated_fat_g_per_100g",
	"fiber_g_per_100g",
	"sodium_mg_per_100g",
	"salt_g_per_100g",
}

// BuildNutritionPrompt asks for a per-100g estimate of a packaged product
// in the line-oriented "field: value" format the response parser reads.
func BuildNutritionPrompt(req domain.EnrichRequest) string {
	var b strings.Builder

	b.WriteString("You are a food nutrition expert for packaged products sold in India.\n")
	b.WriteString("Estimate the nutrition facts of this product as printed on its label.\n\n")

	fmt.Fprintf(&b, "Product: %s\n", req.ProductName)
	if req.Brand != "" {
		fmt.Fprintf(&b, "Brand: %s\n", req.Brand)
	}
	if req.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", req.Category)
	}
	if req.SizeValue != nil {
		fmt.Fprintf(&b, "Pack size: %s %s\n", recordstore.FormatFloat(req.SizeValue), req.SizeUnit)
	}

	b.WriteString("\nReply with one field per line, exactly in this format, and nothing else:\n\n")
	b.WriteString("NUTRITION (per 100g or 100ml):\n")
	for _, f := range requiredNutritionFields {
		fmt.Fprintf(&b, "%s: <number>\n", f)
	}
	b.WriteString("\nPRODUCT DETAILS:\n")
	b.WriteString("ingredients_list: <comma separated ingredients in label order>\n")
	b.WriteString("serving_size: <manufacturer serving size, e.g. 30g>\n")
	b.WriteString("servings_per_container: <number>\n")
	b.WriteString("\nQUALITY:\n")
	b.WriteString("confidence_score: <0.0 to 1.0>\n")
	b.WriteString("data_source: <where the estimate comes from>\n")
	b.WriteString("processing_notes: <assumptions made>\n\n")
	b.WriteString("Use null for any value you cannot estimate. Numbers only, no units after the number.\n")

	return b.String()
}
