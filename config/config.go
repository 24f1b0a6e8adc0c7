package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipeline and its HTTP server
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Store         StoreConfig         `mapstructure:"store"`
	Categories    CategoriesConfig    `mapstructure:"categories"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Enrichment    EnrichmentConfig    `mapstructure:"enrichment"`
	Integration   IntegrationConfig   `mapstructure:"integration"`
	OpenFoodFacts OpenFoodFactsConfig `mapstructure:"openfoodfacts"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Environment string `mapstructure:"environment"` // "development" or "production"
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	UploadDir      string   `mapstructure:"upload_dir"`
}

// StoreConfig locates the product record store
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	BackupDir string `mapstructure:"backup_dir"`
}

// CategoriesConfig locates the category taxonomy file
type CategoriesConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig holds enrichment cache configuration
type CacheConfig struct {
	Type string `mapstructure:"type"` // "sqlite" or "memory"
	Path string `mapstructure:"path"`
}

// ProviderConfig describes one text-generation provider
type ProviderConfig struct {
	Name        string        `mapstructure:"name"` // "groq", "ollama" or "huggingface"
	Endpoint    string        `mapstructure:"endpoint"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	RateLimit   int           `mapstructure:"rate_limit"` // requests per window, 0 means unbounded
	RateWindow  time.Duration `mapstructure:"rate_window"`
	Delay       time.Duration `mapstructure:"delay"`
}

// EnrichmentConfig holds provider chain and batch settings
type EnrichmentConfig struct {
	Providers       []ProviderConfig `mapstructure:"providers"`
	Workers         int              `mapstructure:"workers"`
	BatchSize       int              `mapstructure:"batch_size"`
	BatchDir        string           `mapstructure:"batch_dir"`
	ValidateResults bool             `mapstructure:"validate_results"`
}

// IntegrationConfig holds batch integration policy
type IntegrationConfig struct {
	MinConfidence     float64 `mapstructure:"min_confidence"`
	DefaultConfidence float64 `mapstructure:"default_confidence"`
	BlockOnWarn       bool    `mapstructure:"block_on_warn"`
	Processor         string  `mapstructure:"processor"`
}

// OpenFoodFactsConfig holds reference database configuration
type OpenFoodFactsConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// ConsolidationConfig lists scraped source files by source name
type ConsolidationConfig struct {
	Sources map[string]string `mapstructure:"sources"`
}

var knownProviders = map[string]bool{"groq": true, "ollama": true, "huggingface": true}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/foodnutrition/")

	// FOODNUTRITION_STORE_PATH overrides store.path
	v.SetEnvPrefix("FOODNUTRITION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	for i := range config.Enrichment.Providers {
		p := &config.Enrichment.Providers[i]
		p.APIKey = os.ExpandEnv(p.APIKey)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.upload_dir", os.TempDir())

	v.SetDefault("store.path", "data/products.csv")
	v.SetDefault("store.backup_dir", "data/backups")

	v.SetDefault("categories.path", "config/category_mapping.yaml")

	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.path", "data/nutrition_cache.db")

	// Priority order: hosted fast tier, local tier, hosted slow tier
	v.SetDefault("enrichment.providers", []map[string]interface{}{
		{
			"name":        "groq",
			"endpoint":    "https://api.groq.com/openai/v1/chat/completions",
			"api_key":     "${GROQ_API_KEY}",
			"model":       "llama3-8b-8192",
			"timeout":     "5s",
			"max_tokens":  300,
			"temperature": 0.3,
			"rate_limit":  30,
			"rate_window": "1m",
		},
		{
			"name":        "ollama",
			"endpoint":    "http://localhost:11434/api/generate",
			"model":       "llama3.2:3b",
			"timeout":     "60s",
			"max_tokens":  500,
			"temperature": 0.3,
		},
		{
			"name":        "huggingface",
			"endpoint":    "https://api-inference.huggingface.co/models/microsoft/DialoGPT-medium",
			"api_key":     "${HUGGINGFACE_API_KEY}",
			"model":       "microsoft/DialoGPT-medium",
			"timeout":     "10s",
			"rate_limit":  1000,
			"rate_window": "1h",
		},
	})
	v.SetDefault("enrichment.workers", 5)
	v.SetDefault("enrichment.batch_size", 50)
	v.SetDefault("enrichment.batch_dir", "data/batches")
	v.SetDefault("enrichment.validate_results", false)

	v.SetDefault("integration.min_confidence", 0.6)
	v.SetDefault("integration.default_confidence", 0.75)
	v.SetDefault("integration.block_on_warn", false)
	v.SetDefault("integration.processor", "external_llm_batch")

	v.SetDefault("openfoodfacts.base_url", "https://world.openfoodfacts.org")
	v.SetDefault("openfoodfacts.requests_per_minute", 60)
	v.SetDefault("openfoodfacts.timeout", "10s")
	v.SetDefault("openfoodfacts.user_agent", "foodnutrition-pipeline/1.0")

	v.SetDefault("consolidation.sources", map[string]string{})
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Store.Path == "" {
		return fmt.Errorf("store path is required (set FOODNUTRITION_STORE_PATH)")
	}

	if config.Cache.Type != "sqlite" && config.Cache.Type != "memory" {
		return fmt.Errorf("cache type must be 'sqlite' or 'memory', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "sqlite" && config.Cache.Path == "" {
		return fmt.Errorf("cache path is required when cache type is 'sqlite'")
	}

	if len(config.Enrichment.Providers) == 0 {
		return fmt.Errorf("at least one enrichment provider must be configured")
	}

	for _, p := range config.Enrichment.Providers {
		if !knownProviders[p.Name] {
			return fmt.Errorf("unknown enrichment provider: %q", p.Name)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("provider %s: timeout must be positive", p.Name)
		}
		if p.RateLimit < 0 {
			return fmt.Errorf("provider %s: rate limit must not be negative", p.Name)
		}
		if p.RateLimit > 0 && p.RateWindow <= 0 {
			return fmt.Errorf("provider %s: rate window is required with a rate limit", p.Name)
		}
	}

	if config.Enrichment.Workers < 1 {
		return fmt.Errorf("enrichment workers must be at least 1, got: %d", config.Enrichment.Workers)
	}

	if config.Integration.MinConfidence < 0 || config.Integration.MinConfidence > 1 {
		return fmt.Errorf("integration min confidence must be within [0, 1], got: %v", config.Integration.MinConfidence)
	}

	if config.Integration.DefaultConfidence <= 0 || config.Integration.DefaultConfidence > 1 {
		return fmt.Errorf("integration default confidence must be within (0, 1], got: %v", config.Integration.DefaultConfidence)
	}

	return nil
}
