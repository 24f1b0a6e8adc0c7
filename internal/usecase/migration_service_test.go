package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/infrastructure/categories"
	"github.com/foodnutrition/pipeline/internal/infrastructure/recordstore"
)

func testTaxonomy() *categories.Manager {
	return categories.New(categories.Config{
		Categories: map[string]categories.Category{
			"beverage": {Subcategories: []string{"soft-drink", "tea", "coffee"}},
			"snacks":   {Subcategories: []string{"chips", "namkeen"}},
		},
		MigrationRules: categories.MigrationRules{
			CategoryChanges: []categories.CategoryChange{{From: "food.snacks", To: "snacks.namkeen"}},
			SubcategorySplits: []categories.SubcategorySplit{{
				Category:         "beverage",
				OldSubcategory:   "tea-cofee",
				NewSubcategories: []string{"tea", "coffee"},
				ClassificationRules: []categories.ClassificationRule{
					{Keywords: []string{"coffee", "nescafe"}, Target: "coffee"},
					{Keywords: []string{"tea", "chai"}, Target: "tea"},
				},
			}},
		},
	})
}

func migrationFixture() []domain.ProductRecord {
	return []domain.ProductRecord{
		{ID: "1", ProductName: "Nescafe Classic Instant", Brand: "Nescafe", Category: "beverage", Subcategory: "tea-cofee"},
		{ID: "2", ProductName: "Tata Tea Gold", Brand: "Tata", Category: "beverage", Subcategory: "tea-cofee"},
		{ID: "3", ProductName: "Kurkure Masala Munch", Brand: "Pepsico", Category: "food", Subcategory: "snacks"},
		{ID: "4", ProductName: "Lays Classic Salted", Brand: "Lays", Category: "snacks", Subcategory: "chips"},
	}
}

// panickyTaxonomy fails on one product name
type panickyTaxonomy struct {
	*categories.Manager
	trigger string
}

func (p panickyTaxonomy) ClassifySplit(category, subcategory, name string) (string, bool) {
	if name == p.trigger {
		panic("classifier exploded")
	}
	return p.Manager.ClassifySplit(category, subcategory, name)
}

func TestMigration_Analyze(t *testing.T) {
	svc := NewMigrationService(&MockRecordStore{}, testTaxonomy(), nil)

	a := svc.Analyze(migrationFixture())

	assert.Equal(t, 3, a.TotalAffected)
	assert.InDelta(t, 0.75, a.FractionAffected, 1e-9)
	assert.Equal(t, map[string]int{"food.snacks → snacks.namkeen": 1}, a.CategoryChanges)
	assert.Equal(t, map[string]int{
		"beverage.tea-cofee → beverage.coffee": 1,
		"beverage.tea-cofee → beverage.tea":    1,
	}, a.SubcategorySplits)
	assert.Equal(t, map[string]int{"beverage": 2, "food": 1, "snacks": 1}, a.ByCategory)
}

func TestMigration_AnalyzeMatchesMigrate(t *testing.T) {
	taxonomy := categories.New(categories.Config{
		Categories: map[string]categories.Category{
			"beverage": {Subcategories: []string{"tea", "coffee"}},
		},
		MigrationRules: categories.MigrationRules{
			CategoryChanges: []categories.CategoryChange{{From: "drinks.hot", To: "beverage.tea-cofee"}},
			SubcategorySplits: []categories.SubcategorySplit{{
				Category:         "beverage",
				OldSubcategory:   "tea-cofee",
				NewSubcategories: []string{"tea", "coffee"},
				ClassificationRules: []categories.ClassificationRule{
					{Keywords: []string{"coffee"}, Target: "coffee"},
					{Keywords: []string{"tea"}, Target: "tea"},
				},
			}},
		},
	})
	svc := NewMigrationService(&MockRecordStore{}, taxonomy, nil)
	records := []domain.ProductRecord{
		{ID: "1", ProductName: "Bru Filter Coffee", Category: "drinks", Subcategory: "hot"},
		{ID: "2", ProductName: "Green Tea Bags", Category: "drinks", Subcategory: "hot"},
		{ID: "3", ProductName: "Nescafe Gold Coffee", Category: "beverage", Subcategory: "tea-cofee"},
		{ID: "4", ProductName: "Assam Tea", Category: "beverage", Subcategory: "tea"},
	}

	a := svc.Analyze(records)
	_, stats := svc.Migrate(records)

	// remap then split counts once, under the final pair
	assert.Equal(t, 3, a.TotalAffected)
	assert.Empty(t, a.CategoryChanges)
	assert.Equal(t, map[string]int{
		"drinks.hot → beverage.coffee":         1,
		"drinks.hot → beverage.tea":            1,
		"beverage.tea-cofee → beverage.coffee": 1,
	}, a.SubcategorySplits)
	assert.Equal(t, stats.TotalProducts-stats.Unchanged, a.TotalAffected)
	assert.InDelta(t, 0.75, a.FractionAffected, 1e-9)
}

func TestMigration_MigrateDoesNotTouchInput(t *testing.T) {
	svc := NewMigrationService(&MockRecordStore{}, testTaxonomy(), nil)
	in := migrationFixture()

	out, stats := svc.Migrate(in)

	assert.Equal(t, "tea-cofee", in[0].Subcategory)
	assert.Equal(t, "coffee", out[0].Subcategory)
	assert.Equal(t, "tea", out[1].Subcategory)
	assert.Equal(t, "snacks", out[2].Category)
	assert.Equal(t, "namkeen", out[2].Subcategory)
	assert.Equal(t, "chips", out[3].Subcategory)

	assert.Equal(t, MigrationStats{
		TotalProducts:      4,
		CategoriesChanged:  1,
		SubcategoriesSplit: 2,
		Unchanged:          1,
		ChangeRate:         75,
	}, stats)
}

func TestMigration_PanicsAreCounted(t *testing.T) {
	taxonomy := panickyTaxonomy{Manager: testTaxonomy(), trigger: "Tata Tea Gold"}
	svc := NewMigrationService(&MockRecordStore{}, taxonomy, nil)

	out, stats := svc.Migrate(migrationFixture())

	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, "tea-cofee", out[1].Subcategory)
	assert.Equal(t, "coffee", out[0].Subcategory)
}

func TestMigration_DryRunLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")
	store := recordstore.NewStore(path, filepath.Join(dir, "backups"), nil)
	require.NoError(t, store.Save(context.Background(), migrationFixture()))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	svc := NewMigrationService(store, testTaxonomy(), nil)
	report, err := svc.Run(context.Background(), true)
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, report.Saved)
	assert.Empty(t, report.BackupPath)
	assert.Equal(t, 2, report.Stats.SubcategoriesSplit)

	_, err = os.Stat(filepath.Join(dir, "backups"))
	assert.True(t, os.IsNotExist(err))
}

func TestMigration_ApplySavesAndBacksUp(t *testing.T) {
	store := &MockRecordStore{records: migrationFixture()}
	svc := NewMigrationService(store, testTaxonomy(), nil)

	report, err := svc.Run(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, report.Saved)
	assert.Equal(t, "backup_pre_migration", report.BackupPath)
	assert.Equal(t, 1, store.Saves())

	records, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "coffee", records[0].Subcategory)
	assert.Equal(t, "namkeen", records[2].Subcategory)
}

func TestMigration_InvalidResultWithholdsSave(t *testing.T) {
	records := append(migrationFixture(), domain.ProductRecord{
		ID: "5", ProductName: "Mystery Item", Category: "unknown", Subcategory: "thing",
	}, domain.ProductRecord{
		ID: "6", ProductName: "Plain Soda", Category: "beverage", Subcategory: "fizzy",
	})
	store := &MockRecordStore{records: records}
	svc := NewMigrationService(store, testTaxonomy(), nil)

	report, err := svc.Run(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMigrationInvalid))

	assert.Equal(t, 0, store.Saves())
	assert.False(t, report.Saved)
	assert.NotEmpty(t, report.BackupPath)
	assert.Equal(t, []string{
		"invalid categories found: [unknown]",
		"invalid subcategories in beverage: [fizzy]",
	}, report.Issues)
}

func TestMigration_NothingToDo(t *testing.T) {
	store := &MockRecordStore{records: []domain.ProductRecord{
		{ID: "1", ProductName: "Lays", Category: "snacks", Subcategory: "chips"},
	}}
	svc := NewMigrationService(store, testTaxonomy(), nil)

	report, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, report.Saved)
	assert.Empty(t, report.BackupPath)
	assert.Equal(t, 0, store.Saves())
}
