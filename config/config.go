package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Matching       MatchingConfig       `mapstructure:"matching"`
	Normalizer     NormalizerConfig     `mapstructure:"normalizer"`
	Disambiguation DisambiguationConfig `mapstructure:"disambiguation"`
	Backfill       BackfillConfig       `mapstructure:"backfill"`
	Log            LogConfig            `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the SQL backend
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	Type      string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL  string        `mapstructure:"redis_url"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

// MatchingConfig tunes online ranking and the offline mapping build
type MatchingConfig struct {
	TopK                   int           `mapstructure:"top_k"`
	ConfidenceFloor        float64       `mapstructure:"confidence_floor"`
	QueryQtyTolerance      float64       `mapstructure:"query_quantity_tolerance"`
	TokenWeight            float64       `mapstructure:"token_weight"`
	FuzzyWeight            float64       `mapstructure:"fuzzy_weight"`
	RefreshInterval        time.Duration `mapstructure:"refresh_interval"`
	BuildThreshold         float64       `mapstructure:"build_threshold"`
	BuildQuantityTolerance float64       `mapstructure:"build_quantity_tolerance"`
	FatTolerance           float64       `mapstructure:"fat_tolerance"`
	FallbackConfidence     float64       `mapstructure:"fallback_confidence"`
}

// NormalizerConfig points at the optional removal-list file
type NormalizerConfig struct {
	RulesFile string `mapstructure:"rules_file"`
	Watch     bool   `mapstructure:"watch"`
}

// DisambiguationConfig selects and configures the delegate
type DisambiguationConfig struct {
	Provider          string        `mapstructure:"provider"` // "rule" or "openai"
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// BackfillConfig bounds response enrichment from the raw catalogs
type BackfillConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console", "json" or empty for auto
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricematch/")

	// PRICEMATCH_CACHE_REDIS_URL -> cache.redis_url
	v.SetEnvPrefix("PRICEMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key needs a default
// so AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "pricematch.db")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.result_ttl", "24h")

	v.SetDefault("matching.top_k", 5)
	v.SetDefault("matching.confidence_floor", 0.3)
	v.SetDefault("matching.query_quantity_tolerance", 0.20)
	v.SetDefault("matching.token_weight", 0.7)
	v.SetDefault("matching.fuzzy_weight", 0.3)
	v.SetDefault("matching.refresh_interval", "10m")
	v.SetDefault("matching.build_threshold", 0.7)
	v.SetDefault("matching.build_quantity_tolerance", 0.10)
	v.SetDefault("matching.fat_tolerance", 1.0)
	v.SetDefault("matching.fallback_confidence", 0.5)

	v.SetDefault("normalizer.rules_file", "")
	v.SetDefault("normalizer.watch", true)

	v.SetDefault("disambiguation.provider", "rule")
	v.SetDefault("disambiguation.api_key", "")
	v.SetDefault("disambiguation.base_url", "")
	v.SetDefault("disambiguation.model", "gpt-4o-mini")
	v.SetDefault("disambiguation.timeout", "8s")
	v.SetDefault("disambiguation.requests_per_second", 5)
	v.SetDefault("disambiguation.burst", 10)

	v.SetDefault("backfill.timeout", "2s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.Driver != "sqlite" && config.Database.Driver != "postgres" {
		return fmt.Errorf("database driver must be 'sqlite' or 'postgres', got: %s", config.Database.Driver)
	}
	if config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (set PRICEMATCH_DATABASE_DSN)")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}
	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	m := config.Matching
	if m.TopK < 1 {
		return fmt.Errorf("matching.top_k must be at least 1, got: %d", m.TopK)
	}
	for name, value := range map[string]float64{
		"confidence_floor":    m.ConfidenceFloor,
		"build_threshold":     m.BuildThreshold,
		"fallback_confidence": m.FallbackConfidence,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("matching.%s must be within [0, 1], got: %v", name, value)
		}
	}
	if m.QueryQtyTolerance < 0 || m.BuildQuantityTolerance < 0 || m.FatTolerance < 0 {
		return fmt.Errorf("matching tolerances must not be negative")
	}
	if m.RefreshInterval <= 0 {
		return fmt.Errorf("matching.refresh_interval must be positive")
	}

	switch config.Disambiguation.Provider {
	case "rule":
	case "openai":
		if config.Disambiguation.APIKey == "" {
			return fmt.Errorf("disambiguation API key is required for provider 'openai' (set PRICEMATCH_DISAMBIGUATION_API_KEY)")
		}
	default:
		return fmt.Errorf("disambiguation provider must be 'rule' or 'openai', got: %s", config.Disambiguation.Provider)
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}
