package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/foodnutrition/pipeline/internal/domain"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS nutrition_cache (
	product_hash TEXT PRIMARY KEY,
	product_name TEXT,
	brand TEXT,
	category TEXT,
	nutrition_data TEXT,
	confidence_score REAL,
	created_at TEXT,
	model_used TEXT
)`

// SQLiteCache is the durable enrichment cache. Each operation opens its own
// connection, so concurrent workers never share a handle.
type SQLiteCache struct {
	dsn    string
	logger *zap.Logger
}

// NewSQLiteCache creates the database file if needed and ensures the schema
func NewSQLiteCache(ctx context.Context, path string, logger *zap.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
		}
	}

	c := &SQLiteCache{
		dsn:    fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path),
		logger: logger,
	}
	if err := c.migrate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (c *SQLiteCache) migrate(ctx context.Context) error {
	db, err := c.open()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, createCacheTable); err != nil {
		return fmt.Errorf("%w: create table: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Get retrieves the entry for a product hash
func (c *SQLiteCache) Get(ctx context.Context, productHash string) (*domain.CacheEntry, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var (
		entry      domain.CacheEntry
		name       sql.NullString
		brand      sql.NullString
		category   sql.NullString
		nutrition  sql.NullString
		confidence sql.NullFloat64
		model      sql.NullString
		createdAt  sql.NullString
	)
	err = db.QueryRowContext(ctx, `
		SELECT product_hash, product_name, brand, category, nutrition_data,
		       confidence_score, model_used, created_at
		FROM nutrition_cache WHERE product_hash = ?`, productHash,
	).Scan(&entry.ProductHash, &name, &brand, &category, &nutrition,
		&confidence, &model, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}

	entry.ProductName = name.String
	entry.Brand = brand.String
	entry.Category = category.String
	entry.ConfidenceScore = confidence.Float64
	entry.ModelUsed = model.String
	facts, ok := domain.ParseNutritionFacts(nutrition.String)
	if !ok {
		c.logger.Warn("cached nutrition data is not valid JSON",
			zap.String("product_hash", productHash),
		)
	}
	entry.NutritionData = facts
	if t, err := time.Parse(time.RFC3339Nano, createdAt.String); err == nil {
		entry.CreatedAt = t
	}
	return &entry, nil
}

// Put inserts or replaces the entry for its product hash
func (c *SQLiteCache) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.ProductHash == "" {
		return domain.ErrInvalidRequest
	}

	db, err := c.open()
	if err != nil {
		return err
	}
	defer db.Close()

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO nutrition_cache
		(product_hash, product_name, brand, category, nutrition_data, confidence_score, created_at, model_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ProductHash, entry.ProductName, entry.Brand, entry.Category,
		entry.NutritionData.JSON(), entry.ConfidenceScore,
		createdAt.UTC().Format(time.RFC3339Nano), entry.ModelUsed,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Stats returns entry count, mean confidence and per-model counts
func (c *SQLiteCache) Stats(ctx context.Context) (*domain.CacheStats, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	stats := &domain.CacheStats{ByModel: make(map[string]int)}
	var avg sql.NullFloat64
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(confidence_score) FROM nutrition_cache`,
	).Scan(&stats.TotalEntries, &avg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	stats.AverageConfidence = avg.Float64

	rows, err := db.QueryContext(ctx,
		`SELECT COALESCE(model_used, ''), COUNT(*) FROM nutrition_cache GROUP BY model_used`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
		}
		stats.ByModel[model] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return stats, nil
}
