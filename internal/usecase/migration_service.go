package usecase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// MigrationAnalysis describes what a migration would change
type MigrationAnalysis struct {
	CategoryChanges   map[string]int `json:"category_changes"`
	SubcategorySplits map[string]int `json:"subcategory_splits"`
	TotalAffected     int            `json:"total_affected"`
	FractionAffected  float64        `json:"fraction_affected"`
	ByCategory        map[string]int `json:"by_category"`
}

// MigrationStats counts per-record outcomes
type MigrationStats struct {
	TotalProducts      int     `json:"total_products"`
	CategoriesChanged  int     `json:"categories_changed"`
	SubcategoriesSplit int     `json:"subcategories_split"`
	Unchanged          int     `json:"unchanged"`
	Errors             int     `json:"errors"`
	ChangeRate         float64 `json:"change_rate"`
}

// MigrationReport is the outcome of a migration run
type MigrationReport struct {
	DryRun     bool              `json:"dry_run"`
	Analysis   MigrationAnalysis `json:"analysis"`
	Stats      MigrationStats    `json:"stats"`
	BackupPath string            `json:"backup_path,omitempty"`
	Issues     []string          `json:"issues,omitempty"`
	Saved      bool              `json:"saved"`
}

// MigrationService re-maps record categories to the current taxonomy
type MigrationService struct {
	store      domain.RecordStore
	categories domain.CategoryConfig
	logger     *zap.Logger
}

// NewMigrationService creates a migration service
func NewMigrationService(store domain.RecordStore, categories domain.CategoryConfig, logger *zap.Logger) *MigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationService{store: store, categories: categories, logger: logger}
}

func transitionKey(fromCat, fromSub, toCat, toSub string) string {
	return fmt.Sprintf("%s.%s → %s.%s", fromCat, fromSub, toCat, toSub)
}

// Analyze runs the migration on a copy of each record and tallies its
// transition once. Records whose subcategory was split land in
// SubcategorySplits; records only remapped land in CategoryChanges.
func (s *MigrationService) Analyze(records []domain.ProductRecord) MigrationAnalysis {
	a := MigrationAnalysis{
		CategoryChanges:   make(map[string]int),
		SubcategorySplits: make(map[string]int),
		ByCategory:        make(map[string]int),
	}

	for _, r := range records {
		a.ByCategory[r.Category]++

		migrated := r.Clone()
		changed, split, err := s.migrateRecord(&migrated)
		if err != nil || (!changed && !split) {
			continue
		}
		key := transitionKey(r.Category, r.Subcategory, migrated.Category, migrated.Subcategory)
		if split {
			a.SubcategorySplits[key]++
		} else {
			a.CategoryChanges[key]++
		}
		a.TotalAffected++
	}

	if len(records) > 0 {
		a.FractionAffected = float64(a.TotalAffected) / float64(len(records))
	}
	return a
}

// Migrate returns a migrated copy of records. The input is never modified.
func (s *MigrationService) Migrate(records []domain.ProductRecord) ([]domain.ProductRecord, MigrationStats) {
	out := make([]domain.ProductRecord, len(records))
	stats := MigrationStats{TotalProducts: len(records)}

	for i, r := range records {
		out[i] = r.Clone()
		changed, split, err := s.migrateRecord(&out[i])
		if err != nil {
			s.logger.Warn("failed to migrate record", zap.String("id", r.ID), zap.Error(err))
			out[i] = r.Clone()
			stats.Errors++
			continue
		}
		if changed {
			stats.CategoriesChanged++
		}
		if split {
			stats.SubcategoriesSplit++
		}
		if !changed && !split {
			stats.Unchanged++
		}
	}

	if stats.TotalProducts > 0 {
		stats.ChangeRate = float64(stats.CategoriesChanged+stats.SubcategoriesSplit) / float64(stats.TotalProducts) * 100
	}
	return out, stats
}

func (s *MigrationService) migrateRecord(r *domain.ProductRecord) (changed, split bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while migrating: %v", p)
		}
	}()

	if newCat, newSub, ok := s.categories.FindRemapping(r.Category, r.Subcategory); ok &&
		(newCat != r.Category || newSub != r.Subcategory) {
		s.logger.Debug("category change",
			zap.String("id", r.ID),
			zap.String("transition", transitionKey(r.Category, r.Subcategory, newCat, newSub)),
		)
		r.Category, r.Subcategory = newCat, newSub
		changed = true
	}

	if target, ok := s.categories.ClassifySplit(r.Category, r.Subcategory, r.ProductName); ok && target != r.Subcategory {
		s.logger.Debug("subcategory split",
			zap.String("id", r.ID),
			zap.String("from", r.Subcategory),
			zap.String("to", target),
		)
		r.Subcategory = target
		split = true
	}
	return changed, split, nil
}

// ValidateResults lists every category or subcategory the taxonomy does not know
func (s *MigrationService) ValidateResults(records []domain.ProductRecord) []string {
	valid := make(map[string]bool)
	for _, c := range s.categories.AllCategories() {
		valid[c] = true
	}

	badCategories := make(map[string]bool)
	badSubs := make(map[string]map[string]bool)
	for _, r := range records {
		if !valid[r.Category] {
			badCategories[r.Category] = true
			continue
		}
		if !s.categories.IsValid(r.Category, r.Subcategory) {
			if badSubs[r.Category] == nil {
				badSubs[r.Category] = make(map[string]bool)
			}
			badSubs[r.Category][r.Subcategory] = true
		}
	}

	var issues []string
	if len(badCategories) > 0 {
		issues = append(issues, fmt.Sprintf("invalid categories found: %v", sortedKeys(badCategories)))
	}
	cats := make([]string, 0, len(badSubs))
	for c := range badSubs {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		issues = append(issues, fmt.Sprintf("invalid subcategories in %s: %v", c, sortedKeys(badSubs[c])))
	}
	return issues
}

// Run loads the store, analyzes and migrates it. A dry run never writes.
// Applying backs up first when anything is affected and withholds the save
// when the migrated records fail validation.
func (s *MigrationService) Run(ctx context.Context, dryRun bool) (*MigrationReport, error) {
	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("loaded products for migration", zap.Int("count", len(records)), zap.Bool("dry_run", dryRun))

	report := &MigrationReport{DryRun: dryRun, Analysis: s.Analyze(records)}
	s.logger.Info("migration impact",
		zap.Int("total_affected", report.Analysis.TotalAffected),
		zap.Any("category_changes", report.Analysis.CategoryChanges),
		zap.Any("subcategory_splits", report.Analysis.SubcategorySplits),
	)

	if !dryRun && report.Analysis.TotalAffected > 0 {
		path, err := s.store.Backup(ctx, "pre_migration")
		if err != nil {
			return report, err
		}
		report.BackupPath = path
		s.logger.Info("backup created", zap.String("path", path))
	}

	migrated, stats := s.Migrate(records)
	report.Stats = stats
	s.logger.Info("migration statistics",
		zap.Int("total", stats.TotalProducts),
		zap.Int("categories_changed", stats.CategoriesChanged),
		zap.Int("subcategories_split", stats.SubcategoriesSplit),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("errors", stats.Errors),
		zap.Float64("change_rate", stats.ChangeRate),
	)

	if dryRun {
		return report, nil
	}

	report.Issues = s.ValidateResults(migrated)
	if len(report.Issues) > 0 {
		for _, issue := range report.Issues {
			s.logger.Warn("migration validation issue", zap.String("issue", issue))
		}
		return report, fmt.Errorf("%w: %d issues", domain.ErrMigrationInvalid, len(report.Issues))
	}

	if stats.CategoriesChanged+stats.SubcategoriesSplit == 0 {
		return report, nil
	}
	if err := s.store.Save(ctx, migrated); err != nil {
		return report, err
	}
	report.Saved = true
	s.logger.Info("migration saved")
	return report, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
