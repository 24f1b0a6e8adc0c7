package categories

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/foodnutrition/pipeline/internal/domain"
)

// Config mirrors the category mapping YAML document
type Config struct {
	Metadata       Metadata            `yaml:"metadata"`
	Categories     map[string]Category `yaml:"categories"`
	MigrationRules MigrationRules      `yaml:"migration_rules"`
	Validation     Validation          `yaml:"validation"`
}

// Metadata describes the taxonomy revision
type Metadata struct {
	Version     string `yaml:"version"`
	LastUpdated string `yaml:"last_updated"`
	Description string `yaml:"description"`
}

// Category is one top-level category with its allowed subcategories
type Category struct {
	Description   string   `yaml:"description"`
	Subcategories []string `yaml:"subcategories"`
}

// MigrationRules holds direct remappings and subcategory splits
type MigrationRules struct {
	CategoryChanges   []CategoryChange   `yaml:"category_changes"`
	SubcategorySplits []SubcategorySplit `yaml:"subcategory_splits"`
}

// CategoryChange remaps "category.subcategory" From to To
type CategoryChange struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SubcategorySplit divides one subcategory into several by product-name keywords
type SubcategorySplit struct {
	Category            string               `yaml:"category"`
	OldSubcategory      string               `yaml:"old_subcategory"`
	NewSubcategories    []string             `yaml:"new_subcategories"`
	ClassificationRules []ClassificationRule `yaml:"classification_rules"`
	Default             string               `yaml:"default"`
}

// ClassificationRule assigns Target when any keyword occurs in the product name
type ClassificationRule struct {
	Keywords []string `yaml:"keywords"`
	Target   string   `yaml:"target"`
}

// Validation holds structural constraints on the taxonomy
type Validation struct {
	CategoryConstraints CategoryConstraints `yaml:"category_constraints"`
}

// CategoryConstraints bounds subcategory counts per category
type CategoryConstraints struct {
	MaxSubcategories int `yaml:"max_subcategories_per_category"`
	MinSubcategories int `yaml:"min_subcategories_per_category"`
}

// Stats summarizes the loaded taxonomy
type Stats struct {
	TotalCategories    int            `json:"total_categories"`
	TotalSubcategories int            `json:"total_subcategories"`
	PerCategory        map[string]int `json:"per_category"`
	ChangeRules        int            `json:"change_rules"`
	SplitRules         int            `json:"split_rules"`
	Version            string         `json:"version"`
}

// Manager answers taxonomy queries over a loaded Config
type Manager struct {
	cfg     Config
	subsets map[string]map[string]bool
}

// Load reads and parses the category mapping file
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCategoryConfig, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCategoryConfig, path, err)
	}
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("%w: %s defines no categories", domain.ErrCategoryConfig, path)
	}

	return New(cfg), nil
}

// New wraps an already parsed configuration
func New(cfg Config) *Manager {
	if cfg.Validation.CategoryConstraints.MaxSubcategories == 0 {
		cfg.Validation.CategoryConstraints.MaxSubcategories = 15
	}
	if cfg.Validation.CategoryConstraints.MinSubcategories == 0 {
		cfg.Validation.CategoryConstraints.MinSubcategories = 1
	}

	subsets := make(map[string]map[string]bool, len(cfg.Categories))
	for name, cat := range cfg.Categories {
		set := make(map[string]bool, len(cat.Subcategories))
		for _, sub := range cat.Subcategories {
			set[sub] = true
		}
		subsets[name] = set
	}
	return &Manager{cfg: cfg, subsets: subsets}
}

// Config returns the parsed document
func (m *Manager) Config() Config {
	return m.cfg
}

// AllCategories returns category names in sorted order
func (m *Manager) AllCategories() []string {
	names := make([]string, 0, len(m.cfg.Categories))
	for name := range m.cfg.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubcategoriesOf returns the configured subcategories of a category, or nil
func (m *Manager) SubcategoriesOf(category string) []string {
	cat, ok := m.cfg.Categories[category]
	if !ok {
		return nil
	}
	return append([]string(nil), cat.Subcategories...)
}

// Description returns the human-readable description of a category
func (m *Manager) Description(category string) string {
	return m.cfg.Categories[category].Description
}

// FlatMapping returns every valid "category.subcategory" pair, sorted
func (m *Manager) FlatMapping() []string {
	var pairs []string
	for _, name := range m.AllCategories() {
		for _, sub := range m.cfg.Categories[name].Subcategories {
			pairs = append(pairs, name+"."+sub)
		}
	}
	return pairs
}

// SplitRuleFor returns the split rule covering a category pair, if any
func (m *Manager) SplitRuleFor(category, subcategory string) (SubcategorySplit, bool) {
	for _, split := range m.cfg.MigrationRules.SubcategorySplits {
		if split.Category == category && split.OldSubcategory == subcategory {
			return split, true
		}
	}
	return SubcategorySplit{}, false
}

// IsValid reports whether category exists and lists subcategory
func (m *Manager) IsValid(category, subcategory string) bool {
	set, ok := m.subsets[category]
	return ok && set[subcategory]
}

// FindRemapping returns the target of a direct change rule for the pair
func (m *Manager) FindRemapping(category, subcategory string) (string, string, bool) {
	key := category + "." + subcategory
	for _, rule := range m.cfg.MigrationRules.CategoryChanges {
		if rule.From != key {
			continue
		}
		parts := strings.SplitN(rule.To, ".", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		return parts[0], parts[1], true
	}
	return "", "", false
}

// ClassifySplit returns the new subcategory for a product when a split rule
// covers its current pair. Keyword matching is case-insensitive; the first
// matching rule wins, otherwise the split's default applies.
func (m *Manager) ClassifySplit(category, subcategory, productName string) (string, bool) {
	split, ok := m.SplitRuleFor(category, subcategory)
	if !ok {
		return "", false
	}

	name := strings.ToLower(productName)
	for _, rule := range split.ClassificationRules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return rule.Target, true
			}
		}
	}
	if split.Default != "" {
		return split.Default, true
	}
	if len(split.NewSubcategories) > 0 {
		return split.NewSubcategories[0], true
	}
	return "", false
}

// ValidateStructure checks per-category subcategory counts against the
// constraints and reports duplicate subcategories. Issues are never fatal.
func (m *Manager) ValidateStructure() []string {
	c := m.cfg.Validation.CategoryConstraints
	var issues []string
	for _, name := range m.AllCategories() {
		subs := m.cfg.Categories[name].Subcategories
		seen := make(map[string]bool, len(subs))
		for _, sub := range subs {
			if seen[sub] {
				issues = append(issues, fmt.Sprintf("category %q lists subcategory %q more than once", name, sub))
			}
			seen[sub] = true
		}
		n := len(subs)
		if n > c.MaxSubcategories {
			issues = append(issues, fmt.Sprintf("category %q has %d subcategories (max %d)", name, n, c.MaxSubcategories))
		}
		if n < c.MinSubcategories {
			issues = append(issues, fmt.Sprintf("category %q has %d subcategories (min %d)", name, n, c.MinSubcategories))
		}
	}
	return issues
}

// Stats summarizes the taxonomy
func (m *Manager) Stats() Stats {
	s := Stats{
		PerCategory: make(map[string]int, len(m.cfg.Categories)),
		ChangeRules: len(m.cfg.MigrationRules.CategoryChanges),
		SplitRules:  len(m.cfg.MigrationRules.SubcategorySplits),
		Version:     m.cfg.Metadata.Version,
	}
	for name, cat := range m.cfg.Categories {
		s.TotalCategories++
		s.TotalSubcategories += len(cat.Subcategories)
		s.PerCategory[name] = len(cat.Subcategories)
	}
	return s
}
