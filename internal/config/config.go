// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"NOTESEARCH_HOST" yaml:"host"`
	Port int    `envconfig:"NOTESEARCH_PORT" yaml:"port"`

	// Redis configuration, shared by the cache, history and analytics
	// stores.
	Redis RedisConfig `yaml:"redis"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Search configuration
	Search SearchConfig `yaml:"search"`

	// History configuration
	History HistoryConfig `yaml:"history"`

	// Analytics configuration
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `envconfig:"NOTESEARCH_REDIS_ADDR" yaml:"addr"`
	Password string `envconfig:"NOTESEARCH_REDIS_PASSWORD" yaml:"password"`
	DB       int    `envconfig:"NOTESEARCH_REDIS_DB" yaml:"db"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Enabled    bool   `envconfig:"NOTESEARCH_QDRANT_ENABLED" yaml:"enabled"`
	Host       string `envconfig:"NOTESEARCH_QDRANT_HOST" yaml:"host"`
	Port       int    `envconfig:"NOTESEARCH_QDRANT_PORT" yaml:"port"`
	APIKey     string `envconfig:"NOTESEARCH_QDRANT_API_KEY" yaml:"api_key"`
	UseTLS     bool   `envconfig:"NOTESEARCH_QDRANT_TLS" yaml:"use_tls"`
	Collection string `envconfig:"NOTESEARCH_QDRANT_COLLECTION" yaml:"collection"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Enabled    bool   `envconfig:"NOTESEARCH_EMBEDDING_ENABLED" yaml:"enabled"`
	APIKey     string `envconfig:"NOTESEARCH_EMBEDDING_API_KEY" yaml:"api_key"`
	BaseURL    string `envconfig:"NOTESEARCH_EMBEDDING_BASE_URL" yaml:"base_url"`
	Model      string `envconfig:"NOTESEARCH_EMBEDDING_MODEL" yaml:"model"`
	Dimensions int    `envconfig:"NOTESEARCH_EMBEDDING_DIM" yaml:"dimensions"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Type       string `envconfig:"NOTESEARCH_CACHE_TYPE" yaml:"type"`
	TTLMinutes int    `envconfig:"NOTESEARCH_CACHE_TTL_MINUTES" yaml:"ttl_minutes"`
}

// TTL returns the configured cache lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type          string `envconfig:"NOTESEARCH_BUS_TYPE" yaml:"type"`
	KafkaBrokers  string `envconfig:"NOTESEARCH_KAFKA_BROKERS" yaml:"kafka_brokers"`
	ConsumerGroup string `envconfig:"NOTESEARCH_KAFKA_GROUP" yaml:"consumer_group"`
}

// SearchConfig holds search settings.
type SearchConfig struct {
	DefaultLimit        int     `envconfig:"NOTESEARCH_DEFAULT_LIMIT" yaml:"default_limit"`
	MaxLimit            int     `envconfig:"NOTESEARCH_MAX_LIMIT" yaml:"max_limit"`
	TextWeight          float64 `envconfig:"NOTESEARCH_TEXT_WEIGHT" yaml:"text_weight"`
	VectorWeight        float64 `envconfig:"NOTESEARCH_VECTOR_WEIGHT" yaml:"vector_weight"`
	SimilarityThreshold float64 `envconfig:"NOTESEARCH_SIMILARITY_THRESHOLD" yaml:"similarity_threshold"`
}

// HistoryConfig holds query history settings.
type HistoryConfig struct {
	Type string `envconfig:"NOTESEARCH_HISTORY_TYPE" yaml:"type"`
}

// AnalyticsConfig holds analytics settings.
type AnalyticsConfig struct {
	Type          string `envconfig:"NOTESEARCH_ANALYTICS_TYPE" yaml:"type"`
	RetentionDays int    `envconfig:"NOTESEARCH_ANALYTICS_RETENTION_DAYS" yaml:"retention_days"`
}

// Retention returns how long analytics records are kept; 0 keeps forever.
func (c AnalyticsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"NOTESEARCH_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"NOTESEARCH_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey      string `envconfig:"NOTESEARCH_API_KEY" yaml:"api_key"`
	RateLimit   int    `envconfig:"NOTESEARCH_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"NOTESEARCH_CORS_ORIGINS" yaml:"cors_origins"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Redis = RedisConfig{
		Addr: "localhost:6379",
	}

	cfg.Qdrant = QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "notes",
	}

	cfg.Embedding = EmbeddingConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	}

	cfg.Cache = CacheConfig{
		Type:       "memory",
		TTLMinutes: 60,
	}

	cfg.Bus = BusConfig{
		Type:          "memory",
		ConsumerGroup: "note-search",
	}

	cfg.Search = SearchConfig{
		DefaultLimit:        20,
		MaxLimit:            100,
		TextWeight:          0.4,
		VectorWeight:        0.6,
		SimilarityThreshold: 0.3,
	}

	cfg.History = HistoryConfig{
		Type: "memory",
	}

	cfg.Analytics = AnalyticsConfig{
		Type:          "memory",
		RetentionDays: 90,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	validStoreTypes := map[string]bool{"memory": true, "redis": true}
	if !validStoreTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory or redis)", c.Cache.Type))
	}
	if !validStoreTypes[c.History.Type] {
		errs = append(errs, fmt.Sprintf("invalid history type: %s (must be memory or redis)", c.History.Type))
	}
	if !validStoreTypes[c.Analytics.Type] {
		errs = append(errs, fmt.Sprintf("invalid analytics type: %s (must be memory or redis)", c.Analytics.Type))
	}

	if c.Cache.TTLMinutes < 1 {
		errs = append(errs, "cache ttl_minutes must be positive")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers required when bus type is kafka")
	}

	if c.Search.DefaultLimit < 1 {
		errs = append(errs, "default_limit must be positive")
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, "max_limit must be at least default_limit")
	}
	if c.Search.TextWeight < 0 || c.Search.TextWeight > 1 {
		errs = append(errs, "text_weight must be between 0 and 1")
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		errs = append(errs, "vector_weight must be between 0 and 1")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		errs = append(errs, "similarity_threshold must be between 0 and 1")
	}

	if c.Qdrant.Enabled && c.Qdrant.Host == "" {
		errs = append(errs, "qdrant host required when qdrant is enabled")
	}
	if c.Embedding.Enabled && c.Embedding.APIKey == "" {
		errs = append(errs, "embedding api_key required when the embedding provider is enabled")
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, "embedding dimensions must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
