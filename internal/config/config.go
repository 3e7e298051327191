// Package config loads application configuration via viper and wires
// the global zap logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig                  `yaml:"store" mapstructure:"store"`
	Cache        CacheConfig                  `yaml:"cache" mapstructure:"cache"`
	Collect      CollectConfig                `yaml:"collect" mapstructure:"collect"`
	Marketplaces map[string]MarketplaceConfig `yaml:"marketplaces" mapstructure:"marketplaces"`
	Retry        RetryConfig                  `yaml:"retry" mapstructure:"retry"`
	Breaker      BreakerConfig                `yaml:"breaker" mapstructure:"breaker"`
	Validation   ValidationConfig             `yaml:"validation" mapstructure:"validation"`
	Confidence   ConfidenceConfig             `yaml:"confidence" mapstructure:"confidence"`
	Anomaly      AnomalyConfig                `yaml:"anomaly" mapstructure:"anomaly"`
	Alerts       AlertsConfig                 `yaml:"alerts" mapstructure:"alerts"`
	Server       ServerConfig                 `yaml:"server" mapstructure:"server"`
	Log          LogConfig                    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the read-through search cache.
type CacheConfig struct {
	// Driver is "store" (backed by the database) or "memory".
	Driver     string `yaml:"driver" mapstructure:"driver"`
	TTLSeconds int    `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// CollectConfig configures orchestrator-level behavior.
type CollectConfig struct {
	// OverallTimeoutSecs bounds a whole search across all sources.
	// Zero disables the deadline.
	OverallTimeoutSecs int `yaml:"overall_timeout_secs" mapstructure:"overall_timeout_secs"`
	MaxResults         int `yaml:"max_results" mapstructure:"max_results"`
	ValidateBatchSize  int `yaml:"validate_batch_size" mapstructure:"validate_batch_size"`
}

// MarketplaceConfig holds per-marketplace limits and priors.
type MarketplaceConfig struct {
	// BaseURL points at the scraper gateway for this marketplace. A
	// marketplace with no BaseURL is not registered as a source.
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// Reliability is the fixed source-reliability prior in [0,1] used
	// by confidence scoring.
	Reliability float64 `yaml:"reliability" mapstructure:"reliability"`
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
}

// RetryConfig configures the retry scheduler.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs    int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig configures per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeoutSecs int `yaml:"recovery_timeout_secs" mapstructure:"recovery_timeout_secs"`
	HalfOpenMaxProbes   int `yaml:"half_open_max_probes" mapstructure:"half_open_max_probes"`
}

// ValidationConfig configures the validation engine.
type ValidationConfig struct {
	// RulesFile optionally points at a YAML file overriding the
	// built-in per-marketplace rules.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ConfidenceConfig holds confidence-scoring factor weights. Weights
// should sum to 1.0; the scorer renormalizes if they do not.
type ConfidenceConfig struct {
	PriceWeight        float64 `yaml:"price_weight" mapstructure:"price_weight"`
	SellerWeight       float64 `yaml:"seller_weight" mapstructure:"seller_weight"`
	QualityWeight      float64 `yaml:"quality_weight" mapstructure:"quality_weight"`
	CompletenessWeight float64 `yaml:"completeness_weight" mapstructure:"completeness_weight"`
	SourceWeight       float64 `yaml:"source_weight" mapstructure:"source_weight"`
	// AnomalyDiscount scales how strongly the anomaly score reduces
	// final confidence: conf × (1 − anomaly×discount).
	AnomalyDiscount float64 `yaml:"anomaly_discount" mapstructure:"anomaly_discount"`
}

// AnomalyConfig holds z-score thresholds and baseline window sizing.
type AnomalyConfig struct {
	PriceSigma  float64 `yaml:"price_sigma" mapstructure:"price_sigma"`
	VolumeSigma float64 `yaml:"volume_sigma" mapstructure:"volume_sigma"`
	SellerSigma float64 `yaml:"seller_sigma" mapstructure:"seller_sigma"`
	WindowSize  int     `yaml:"window_size" mapstructure:"window_size"`
	MinSamples  int     `yaml:"min_samples" mapstructure:"min_samples"`
	// WarnScore is the overall anomaly score above which a warning is
	// attached to the listing.
	WarnScore float64 `yaml:"warn_score" mapstructure:"warn_score"`
}

// AlertsConfig configures webhook alerting.
type AlertsConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICEFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pricefeed.db")
	v.SetDefault("cache.driver", "store")
	v.SetDefault("cache.ttl_seconds", 900)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("collect.overall_timeout_secs", 120)
	v.SetDefault("collect.max_results", 50)
	v.SetDefault("collect.validate_batch_size", 25)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout_secs", 60)
	v.SetDefault("breaker.half_open_max_probes", 3)
	v.SetDefault("confidence.price_weight", 0.25)
	v.SetDefault("confidence.seller_weight", 0.25)
	v.SetDefault("confidence.quality_weight", 0.20)
	v.SetDefault("confidence.completeness_weight", 0.15)
	v.SetDefault("confidence.source_weight", 0.15)
	v.SetDefault("confidence.anomaly_discount", 0.5)
	v.SetDefault("anomaly.price_sigma", 3.0)
	v.SetDefault("anomaly.volume_sigma", 5.0)
	v.SetDefault("anomaly.seller_sigma", 2.5)
	v.SetDefault("anomaly.window_size", 1000)
	v.SetDefault("anomaly.min_samples", 10)
	v.SetDefault("anomaly.warn_score", 0.8)
	v.SetDefault("alerts.failure_rate_threshold", 0.5)

	for name, mc := range defaultMarketplaces() {
		prefix := "marketplaces." + name + "."
		v.SetDefault(prefix+"base_url", mc.BaseURL)
		v.SetDefault(prefix+"requests_per_second", mc.RequestsPerSecond)
		v.SetDefault(prefix+"requests_per_minute", mc.RequestsPerMinute)
		v.SetDefault(prefix+"burst", mc.Burst)
		v.SetDefault(prefix+"timeout_secs", mc.TimeoutSecs)
		v.SetDefault(prefix+"reliability", mc.Reliability)
		v.SetDefault(prefix+"enabled", mc.Enabled)
	}

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

// defaultMarketplaces returns the built-in limits and reliability
// priors per marketplace. Heritage and ComicConnect are curated
// auction houses; Amazon third-party listings are the noisiest.
func defaultMarketplaces() map[string]MarketplaceConfig {
	return map[string]MarketplaceConfig{
		"ebay":         {RequestsPerSecond: 2, RequestsPerMinute: 60, Burst: 2, TimeoutSecs: 30, Reliability: 0.85, Enabled: true},
		"whatnot":      {RequestsPerSecond: 1, RequestsPerMinute: 30, Burst: 1, TimeoutSecs: 30, Reliability: 0.70, Enabled: true},
		"comicconnect": {RequestsPerSecond: 1, RequestsPerMinute: 30, Burst: 1, TimeoutSecs: 45, Reliability: 0.90, Enabled: true},
		"heritage":     {RequestsPerSecond: 0.5, RequestsPerMinute: 20, Burst: 1, TimeoutSecs: 45, Reliability: 0.95, Enabled: true},
		"mycomicshop":  {RequestsPerSecond: 2, RequestsPerMinute: 60, Burst: 2, TimeoutSecs: 30, Reliability: 0.80, Enabled: true},
		"amazon":       {RequestsPerSecond: 1, RequestsPerMinute: 40, Burst: 1, TimeoutSecs: 30, Reliability: 0.60, Enabled: true},
	}
}

// InitLogger initializes the global zap logger.
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
