package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/batchfile"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
)

var (
	barcodePattern    = regexp.MustCompile(`\b\d{8,14}\b`)
	slugStripPattern  = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	currencyPattern   = regexp.MustCompile(`[₹$€£,]`)
	pricePattern      = regexp.MustCompile(`\d+\.?\d*`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	brandTitleCaser   = cases.Title(language.Und)
)

const maxSlugLength = 100

// GenerateProductID derives a stable id: a barcode in the name wins, otherwise
// "<source>_<slug of brand and name>". An empty name gets a random UUID.
func GenerateProductID(name, brand, source string) string {
	if strings.TrimSpace(name) == "" {
		return uuid.NewString()
	}
	if code := barcodePattern.FindString(name); code != "" {
		return code
	}

	base := strings.TrimSpace(brand + " " + name)
	slug := strings.ToLower(slugStripPattern.ReplaceAllString(base, ""))
	slug = whitespacePattern.ReplaceAllString(slug, "_")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	return source + "_" + slug
}

// NormalizeBrand title-cases a brand; empty brands become "Unknown Brand"
func NormalizeBrand(brand string) string {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return domain.UnknownBrand
	}
	return brandTitleCaser.String(brand)
}

// NormalizeCategory lower-cases the pair, applying defaults for empty values
func NormalizeCategory(category, subcategory string) (string, string) {
	category = strings.ToLower(strings.TrimSpace(category))
	subcategory = strings.ToLower(strings.TrimSpace(subcategory))
	if category == "" {
		category = domain.DefaultCategory
	}
	if subcategory == "" {
		subcategory = domain.DefaultSubcategory
	}
	return category, subcategory
}

// CleanPrice strips currency symbols and thousands separators and returns the first number
func CleanPrice(raw string) *float64 {
	m := pricePattern.FindString(currencyPattern.ReplaceAllString(raw, ""))
	if m == "" {
		return nil
	}
	return recordstore.ParseFloat(m)
}

// QualityScore rates record completeness from 0 to 100
func QualityScore(r domain.ProductRecord) int {
	score := 0
	if strings.TrimSpace(r.ProductName) != "" {
		score += 20
	}
	if r.Brand != "" && r.Brand != domain.UnknownBrand {
		score += 15
	}
	if r.Category != "" {
		score += 10
	}
	if r.SizeValue != nil && r.SizeUnit != "" {
		score += 15
	}
	if r.Price != nil {
		score += 15
	}
	if strings.TrimSpace(r.Ingredients) != "" {
		score += 10
	}
	if strings.TrimSpace(r.NutritionData) != "" {
		score += 15
	}
	return min(score, 100)
}

// Deduplicate keeps one record per id, preferring the highest quality score.
// The result is ordered by score, highest first; ties keep input order.
func Deduplicate(records []domain.ProductRecord) []domain.ProductRecord {
	sorted := append([]domain.ProductRecord(nil), records...)
	score := func(r domain.ProductRecord) int {
		if r.DataQualityScore == nil {
			return 0
		}
		return *r.DataQualityScore
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return score(sorted[i]) > score(sorted[j])
	})

	seen := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for _, r := range sorted {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

// BuildRecords converts one scraped table into canonical records.
// Scraped columns: name, brand, category, subcategory, size_value, size_unit, price, url.
func BuildRecords(source string, table *batchfile.Table, now time.Time) []domain.ProductRecord {
	emptyNutrition := domain.NutritionFacts{}.JSON()
	zero := 0
	records := make([]domain.ProductRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		category, subcategory := NormalizeCategory(row["category"], row["subcategory"])
		r := domain.ProductRecord{
			ProductName:   strings.TrimSpace(row["name"]),
			Brand:         NormalizeBrand(row["brand"]),
			Category:      category,
			Subcategory:   subcategory,
			SizeValue:     recordstore.ParseFloat(row["size_value"]),
			SizeUnit:      strings.TrimSpace(row["size_unit"]),
			Price:         CleanPrice(row["price"]),
			Source:        source,
			SourceURL:     strings.TrimSpace(row["url"]),
			NutritionData: emptyNutrition,
			LastUpdated:   now.UTC().Format(time.RFC3339),
		}
		searchCount := zero
		r.SearchCount = &searchCount
		r.ID = GenerateProductID(r.ProductName, r.Brand, source)
		q := QualityScore(r)
		r.DataQualityScore = &q
		records = append(records, r)
	}
	return Deduplicate(records)
}

// ConsolidationReport summarizes a consolidation run
type ConsolidationReport struct {
	BySource       map[string]int `json:"by_source"`
	SkippedSources []string       `json:"skipped_sources,omitempty"`
	TotalRecords   int            `json:"total_records"`
	Duplicates     int            `json:"duplicates"`
	AverageQuality float64        `json:"average_quality"`
}

// ConsolidationService builds the record store from scraped source files
type ConsolidationService struct {
	store  domain.RecordStore
	logger *zap.Logger
	now    func() time.Time
}

// NewConsolidationService creates the service
func NewConsolidationService(store domain.RecordStore, logger *zap.Logger) *ConsolidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolidationService{store: store, logger: logger, now: time.Now}
}

// Consolidate reads every source (name -> path), merges and deduplicates the
// records and replaces the store. Unreadable sources are skipped.
func (s *ConsolidationService) Consolidate(ctx context.Context, sources map[string]string) (*ConsolidationReport, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &ConsolidationReport{BySource: make(map[string]int)}
	now := s.now()

	var all []domain.ProductRecord
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		table, err := batchfile.ReadTable(sources[name])
		if err != nil {
			s.logger.Warn("skipping source", zap.String("source", name), zap.Error(err))
			report.SkippedSources = append(report.SkippedSources, name)
			continue
		}

		records := BuildRecords(name, table, now)
		s.logger.Info("processed source",
			zap.String("source", name),
			zap.Int("raw_rows", len(table.Rows)),
			zap.Int("unique_products", len(records)),
		)
		all = append(all, records...)
	}

	if len(all) == 0 {
		return report, errors.New("no source files could be processed")
	}

	merged := Deduplicate(all)
	report.TotalRecords = len(merged)
	report.Duplicates = len(all) - len(merged)

	var sum int
	for _, r := range merged {
		report.BySource[r.Source]++
		sum += *r.DataQualityScore
	}
	report.AverageQuality = float64(sum) / float64(len(merged))

	if err := s.store.Save(ctx, merged); err != nil {
		return report, fmt.Errorf("failed to save consolidated store: %w", err)
	}

	s.logger.Info("consolidation complete",
		zap.Int("products", report.TotalRecords),
		zap.Int("duplicates", report.Duplicates),
		zap.Float64("average_quality", report.AverageQuality),
	)
	return report, nil
}
