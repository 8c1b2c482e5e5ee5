package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the wave-pick sync service
type Config struct {
	SkuVault      SkuVaultConfig      `mapstructure:"skuvault"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Cache         CacheConfig         `mapstructure:"cache"`
	TokenStore    TokenStoreConfig    `mapstructure:"token_store"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// SkuVaultConfig holds vendor API connection settings
type SkuVaultConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url" validate:"required,url"`
	Origin         string        `mapstructure:"origin" validate:"required,url"`
	UserAgent      string        `mapstructure:"user_agent" validate:"required"`
	Partition      string        `mapstructure:"partition" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	PreflightHosts []string      `mapstructure:"preflight_hosts"`
}

// RateLimitConfig holds the process-wide request spacing
type RateLimitConfig struct {
	RequestDelay time.Duration `mapstructure:"request_delay" validate:"gte=0"`
}

// RetryConfig holds vendor request retry settings
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gte=0"` // 0 = uncapped
}

// CacheSizeConfig is the capacity and freshness of one bounded cache
type CacheSizeConfig struct {
	MaxSize int           `mapstructure:"max_size" validate:"gt=0"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// CacheConfig holds caching configuration
type CacheConfig struct {
	Directions CacheSizeConfig `mapstructure:"directions"`
	Sessions   CacheSizeConfig `mapstructure:"sessions"`
	Preflight  CacheSizeConfig `mapstructure:"preflight"`
	L2Enabled  bool            `mapstructure:"l2_enabled"`
	L2Prefix   string          `mapstructure:"l2_prefix"`
}

// TokenStoreConfig selects where credentials are persisted
type TokenStoreConfig struct {
	Backend string        `mapstructure:"backend"` // leveldb, redis or memory
	Path    string        `mapstructure:"path"`
	Source  string        `mapstructure:"source" validate:"required"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
	Prefix  string        `mapstructure:"prefix"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// AWSConfig holds AWS service configuration
type AWSConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region" validate:"required"`
	OrdersTable string `mapstructure:"orders_table"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// SyncConfig holds poller settings
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Workers  int           `mapstructure:"workers" validate:"gt=0"`
	States   []string      `mapstructure:"states"`
	Limit    int           `mapstructure:"limit" validate:"gt=0"`
	Warmup   bool          `mapstructure:"warmup"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Environment string        `mapstructure:"environment"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// TracingConfig holds tracing settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// HTTPConfig holds the ops HTTP server configuration
type HTTPConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lt=65536"`
}

// Load loads configuration from file and environment variables.
// Environment variables use the WAVEPICK_ prefix with dots replaced by
// underscores (WAVEPICK_RETRY_MAX_RETRIES).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WAVEPICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Vendor defaults
	v.SetDefault("skuvault.api_base_url", "https://lmdb.skuvault.com")
	v.SetDefault("skuvault.origin", "https://v2.skuvault.com")
	v.SetDefault("skuvault.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("skuvault.partition", "default")
	v.SetDefault("skuvault.request_timeout", "30s")
	v.SetDefault("skuvault.preflight_hosts", []string{"lmdb.skuvault.com"})

	v.SetDefault("rate_limit.request_delay", "1s")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", "1s")
	v.SetDefault("retry.max_delay", "0s")

	// Cache defaults
	v.SetDefault("cache.directions.max_size", 100)
	v.SetDefault("cache.directions.ttl", "1h")
	v.SetDefault("cache.sessions.max_size", 50)
	v.SetDefault("cache.sessions.ttl", "30s")
	v.SetDefault("cache.preflight.max_size", 256)
	v.SetDefault("cache.preflight.ttl", "5m")
	v.SetDefault("cache.l2_enabled", false)
	v.SetDefault("cache.l2_prefix", "wavepick:resp:")

	// Token store defaults
	v.SetDefault("token_store.backend", "leveldb")
	v.SetDefault("token_store.path", "./data/tokens")
	v.SetDefault("token_store.source", "skuvault_web")
	v.SetDefault("token_store.ttl", "24h")
	v.SetDefault("token_store.prefix", "wavepick:token:")

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// AWS defaults
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.orders_table", "")
	v.SetDefault("aws.sns_topic_arn", "")

	// Sync defaults
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.states", []string{"active", "readyToShip"})
	v.SetDefault("sync.limit", 100)
	v.SetDefault("sync.warmup", true)

	// Observability defaults
	v.SetDefault("observability.service_name", "wavepick-sync")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.otlp_endpoint", "")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_ratio", 1.0)

	v.SetDefault("http.port", 8080)
}

func (c *Config) normalize() {
	c.SkuVault.APIBaseURL = strings.TrimRight(c.SkuVault.APIBaseURL, "/")
	c.TokenStore.Backend = strings.ToLower(c.TokenStore.Backend)
	c.Observability.Logging.Level = strings.ToLower(c.Observability.Logging.Level)
	c.Observability.Logging.Format = strings.ToLower(c.Observability.Logging.Format)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.TokenStore.Backend {
	case "leveldb":
		if c.TokenStore.Path == "" {
			return fmt.Errorf("token_store.path is required for the leveldb backend")
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis token store")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid token store backend: %s", c.TokenStore.Backend)
	}

	if c.Cache.L2Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis address is required when the L2 cache is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
