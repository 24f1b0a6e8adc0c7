package domain

import "context"

// RecordStore persists the product record set
type RecordStore interface {
	Load(ctx context.Context) ([]ProductRecord, error)
	Save(ctx context.Context, records []ProductRecord) error
	// Backup copies the current store to a timestamped file and returns its path
	Backup(ctx context.Context, label string) (string, error)
}

// EnrichmentCache stores enrichment results keyed by product hash
type EnrichmentCache interface {
	Get(ctx context.Context, productHash string) (*CacheEntry, error)
	Put(ctx context.Context, entry CacheEntry) error
	Stats(ctx context.Context) (*CacheStats, error)
}

// EnrichmentProvider is a text-generation backend
type EnrichmentProvider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// CategoryConfig answers taxonomy and migration-rule queries
type CategoryConfig interface {
	AllCategories() []string
	SubcategoriesOf(category string) []string
	IsValid(category, subcategory string) bool
	// FindRemapping returns the new category pair for a direct change rule
	FindRemapping(category, subcategory string) (string, string, bool)
	// ClassifySplit returns the target subcategory when a split rule applies
	ClassifySplit(category, subcategory, productName string) (string, bool)
}

// ReferenceClient searches the public reference food database
type ReferenceClient interface {
	SearchProducts(ctx context.Context, query string) ([]ReferenceProduct, error)
}
