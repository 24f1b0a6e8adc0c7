package domain

// Batch file column names
const (
	BatchColBatchID           = "batch_id"
	BatchColOriginalProductID = "original_product_id"
	BatchColProductID         = "product_id"
	BatchColConfidenceScore   = "confidence_score"
	BatchColIngredientsList   = "ingredients_list"
	BatchColServingSize       = "serving_size"
	BatchColServingsPerPack   = "servings_per_container"
	BatchColProcessingNotes   = "processing_notes"
	BatchColModelUsed         = "model_used"
	BatchColDataSource        = "data_source"

	BatchColEnergyKcal    = "energy_kcal_per_100g"
	BatchColCarbsG        = "carbs_g_per_100g"
	BatchColTotalSugarsG  = "total_sugars_g_per_100g"
	BatchColSugarsG       = "sugars_g_per_100g"
	BatchColProteinG      = "protein_g_per_100g"
	BatchColFatG          = "fat_g_per_100g"
	BatchColSaturatedFatG = "saturated_fat_g_per_100g"
	BatchColFiberG        = "fiber_g_per_100g"
	BatchColSodiumMg      = "sodium_mg_per_100g"
	BatchColSaltG         = "salt_g_per_100g"
)

// BatchInputColumns is the header of a freshly created batch
var BatchInputColumns = []string{
	BatchColBatchID, BatchColOriginalProductID, ColProductName, ColBrand, ColCategory,
	ColSubcategory, ColSizeValue, ColSizeUnit, ColPrice, ColSource,
}

// BatchNutritionColumns maps per-100g batch columns to nutrition keys
var BatchNutritionColumns = []struct {
	Column string
	Key    string
}{
	{BatchColEnergyKcal, KeyEnergyKcal},
	{BatchColCarbsG, KeyCarbsG},
	{BatchColTotalSugarsG, KeySugarsG},
	{BatchColProteinG, KeyProteinG},
	{BatchColFatG, KeyFatG},
	{BatchColSaturatedFatG, KeySaturatedFatG},
	{BatchColFiberG, KeyFiberG},
	{BatchColSodiumMg, KeySodiumMg},
	{BatchColSaltG, KeySaltG},
}

// BatchOutputColumns is the header of an enriched batch
var BatchOutputColumns = []string{
	BatchColBatchID, BatchColOriginalProductID, ColProductName, ColBrand, ColCategory,
	ColSubcategory, ColSizeValue, ColSizeUnit,
	BatchColEnergyKcal, BatchColCarbsG, BatchColTotalSugarsG, BatchColProteinG,
	BatchColFatG, BatchColSaturatedFatG, BatchColFiberG, BatchColSodiumMg, BatchColSaltG,
	BatchColIngredientsList, BatchColServingSize, BatchColServingsPerPack, BatchColConfidenceScore,
	BatchColModelUsed, BatchColDataSource, BatchColProcessingNotes,
}

// NoDataMarker in processing notes means the provider returned nothing usable
const NoDataMarker = "No data available"
