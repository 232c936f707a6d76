// Package config loads application configuration from config.yaml and the
// environment, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Scrape  ScrapeConfig  `yaml:"scrape" mapstructure:"scrape"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Match   MatchConfig   `yaml:"match" mapstructure:"match"`
	Checker CheckerConfig `yaml:"checker" mapstructure:"checker"`
	Circuit CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RetryConfig holds the retry/backoff defaults for retailer API requests.
type RetryConfig struct {
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout returns the per-attempt timeout as a duration.
func (c RetryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ScrapeConfig configures the browser-automation fallback.
type ScrapeConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BrowserBin  string `yaml:"browser_bin" mapstructure:"browser_bin"`
}

// Timeout returns the scrape timeout as a duration.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheConfig configures the short-lived lookup result cache.
type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// MatchConfig tunes the product matching engine.
type MatchConfig struct {
	MinSimilarity    float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
	ExactMatchBonus  float64 `yaml:"exact_match_bonus" mapstructure:"exact_match_bonus"`
	BrandMatchBonus  float64 `yaml:"brand_match_bonus" mapstructure:"brand_match_bonus"`
	SizeMatchBonus   float64 `yaml:"size_match_bonus" mapstructure:"size_match_bonus"`
	KeywordBonus     float64 `yaml:"keyword_bonus" mapstructure:"keyword_bonus"`
	MaxAlternatives  int     `yaml:"max_alternatives" mapstructure:"max_alternatives"`
	HighConfidence   float64 `yaml:"high_confidence" mapstructure:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence" mapstructure:"medium_confidence"`
}

// CheckerConfig tunes batch processing.
type CheckerConfig struct {
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	ItemTimeoutSecs int `yaml:"item_timeout_secs" mapstructure:"item_timeout_secs"`
}

// ItemTimeout returns the per-item deadline as a duration.
func (c CheckerConfig) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSecs) * time.Second
}

// CircuitConfig tunes the per-retailer circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// Cooldown returns the open-circuit cooldown as a duration.
func (c CircuitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSecs) * time.Second
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port            int    `yaml:"port" mapstructure:"port"`
	DefaultPostcode string `yaml:"default_postcode" mapstructure:"default_postcode"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "json" or "console"
}

// Load reads configuration from config.yaml (optional) and SALEWATCH_*
// environment variables, applying defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SALEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "salewatch.db")
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.timeout_secs", 30)
	v.SetDefault("retry.backoff_factor", 1.0)
	v.SetDefault("retry.rate_per_sec", 0)
	v.SetDefault("scrape.enabled", false)
	v.SetDefault("scrape.headless", true)
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("cache.ttl_minutes", 10)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("match.min_similarity", 0.3)
	v.SetDefault("match.exact_match_bonus", 0.2)
	v.SetDefault("match.brand_match_bonus", 0.15)
	v.SetDefault("match.size_match_bonus", 0.1)
	v.SetDefault("match.keyword_bonus", 0.05)
	v.SetDefault("match.max_alternatives", 8)
	v.SetDefault("match.high_confidence", 0.8)
	v.SetDefault("match.medium_confidence", 0.6)
	v.SetDefault("checker.concurrency", 4)
	v.SetDefault("checker.item_timeout_secs", 120)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.cooldown_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.default_postcode", "2000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger configures the global zap logger from LogConfig.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
