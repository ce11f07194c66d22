// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Catalog, Search, etc.).
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog source kinds.
const (
	SourceEmbedded = "embedded"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Search    SearchConfig    `yaml:"search"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CatalogConfig selects where the method catalog is loaded from at startup.
type CatalogConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
}

// SearchConfig controls result truncation applied by API callers. The
// search engine itself never truncates.
type SearchConfig struct {
	DefaultLimit   int `yaml:"defaultLimit"`
	MaxResults     int `yaml:"maxResults"`
	MaxQueryLength int `yaml:"maxQueryLength"`
}

// SuggestConfig controls "did you mean" suggestions for empty searches.
type SuggestConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Threshold      float32 `yaml:"threshold"`
	MaxSuggestions int     `yaml:"maxSuggestions"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requestsPerWindow"`
	Window            time.Duration `yaml:"window"`

	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For is
	// believed. Empty means clients are keyed by peer address only.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AnalyticsConfig controls search-event publishing and snapshotting.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`

	// SnapshotRetention bounds how long snapshots are kept; zero keeps all.
	SnapshotRetention time.Duration `yaml:"snapshotRetention"`

	// MaxTrackedKeys caps each per-term and per-id table in the aggregator.
	MaxTrackedKeys int `yaml:"maxTrackedKeys"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case SourceEmbedded, SourcePostgres:
	case SourceFile:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required when catalog.source is %q", SourceFile)
		}
	default:
		return fmt.Errorf("unknown catalog.source %q", c.Catalog.Source)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)",
			c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Suggest.Threshold < 0 || c.Suggest.Threshold > 1 {
		return fmt.Errorf("suggest.threshold must be within [0, 1], got %v", c.Suggest.Threshold)
	}
	if c.Analytics.SnapshotInterval <= 0 {
		return fmt.Errorf("analytics.snapshotInterval must be positive, got %s", c.Analytics.SnapshotInterval)
	}
	if c.Analytics.SnapshotRetention < 0 {
		return fmt.Errorf("analytics.snapshotRetention must not be negative, got %s", c.Analytics.SnapshotRetention)
	}
	if c.Analytics.MaxTrackedKeys <= 0 {
		return fmt.Errorf("analytics.maxTrackedKeys must be positive, got %d", c.Analytics.MaxTrackedKeys)
	}
	for _, p := range c.RateLimit.TrustedProxies {
		if !validProxy(p) {
			return fmt.Errorf("rateLimit.trustedProxies: %q is not an IP or CIDR", p)
		}
	}
	return nil
}

func validProxy(s string) bool {
	if _, err := netip.ParsePrefix(s); err == nil {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  5 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "methodref",
			User:            "methodref",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "methodref-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "methodref-analytics-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Catalog: CatalogConfig{
			Source: SourceEmbedded,
		},
		Search: SearchConfig{
			DefaultLimit:   5,
			MaxResults:     100,
			MaxQueryLength: 256,
		},
		Suggest: SuggestConfig{
			Enabled:        true,
			Threshold:      0.8,
			MaxSuggestions: 3,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 300,
			Window:            time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			Enabled:           false,
			BufferSize:        10000,
			BatchSize:         100,
			FlushInterval:     time.Second,
			SnapshotInterval:  time.Minute,
			SnapshotRetention: 7 * 24 * time.Hour,
			MaxTrackedKeys:    10000,
		},
	}
}

// envBinding maps one MR_* variable onto a config field. Values that fail to
// parse are ignored so a typo cannot zero out a default.
type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

func envString(name string, field func(*Config) *string) envBinding {
	return envBinding{name, func(c *Config, v string) error { *field(c) = v; return nil }}
}

func envList(name string, field func(*Config) *[]string) envBinding {
	return envBinding{name, func(c *Config, v string) error {
		*field(c) = strings.Split(v, ",")
		return nil
	}}
}

func envInt(name string, field func(*Config) *int) envBinding {
	return envBinding{name, func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*field(c) = n
		}
		return err
	}}
}

func envBool(name string, field func(*Config) *bool) envBinding {
	return envBinding{name, func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*field(c) = b
		}
		return err
	}}
}

func envDuration(name string, field func(*Config) *time.Duration) envBinding {
	return envBinding{name, func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			*field(c) = d
		}
		return err
	}}
}

var envBindings = []envBinding{
	envInt("MR_SERVER_PORT", func(c *Config) *int { return &c.Server.Port }),
	envList("MR_SERVER_ALLOW_ORIGINS", func(c *Config) *[]string { return &c.Server.AllowOrigins }),
	envDuration("MR_SERVER_REQUEST_TIMEOUT", func(c *Config) *time.Duration { return &c.Server.RequestTimeout }),
	envString("MR_POSTGRES_HOST", func(c *Config) *string { return &c.Postgres.Host }),
	envInt("MR_POSTGRES_PORT", func(c *Config) *int { return &c.Postgres.Port }),
	envString("MR_POSTGRES_DATABASE", func(c *Config) *string { return &c.Postgres.Database }),
	envString("MR_POSTGRES_USER", func(c *Config) *string { return &c.Postgres.User }),
	envString("MR_POSTGRES_PASSWORD", func(c *Config) *string { return &c.Postgres.Password }),
	envString("MR_POSTGRES_SSLMODE", func(c *Config) *string { return &c.Postgres.SSLMode }),
	envList("MR_KAFKA_BROKERS", func(c *Config) *[]string { return &c.Kafka.Brokers }),
	envBool("MR_REDIS_ENABLED", func(c *Config) *bool { return &c.Redis.Enabled }),
	envString("MR_REDIS_ADDR", func(c *Config) *string { return &c.Redis.Addr }),
	envString("MR_REDIS_PASSWORD", func(c *Config) *string { return &c.Redis.Password }),
	envDuration("MR_REDIS_CACHE_TTL", func(c *Config) *time.Duration { return &c.Redis.CacheTTL }),
	envString("MR_CATALOG_SOURCE", func(c *Config) *string { return &c.Catalog.Source }),
	envString("MR_CATALOG_PATH", func(c *Config) *string { return &c.Catalog.Path }),
	envInt("MR_SEARCH_DEFAULT_LIMIT", func(c *Config) *int { return &c.Search.DefaultLimit }),
	envList("MR_RATE_LIMIT_TRUSTED_PROXIES", func(c *Config) *[]string { return &c.RateLimit.TrustedProxies }),
	envBool("MR_ANALYTICS_ENABLED", func(c *Config) *bool { return &c.Analytics.Enabled }),
	envDuration("MR_ANALYTICS_SNAPSHOT_INTERVAL", func(c *Config) *time.Duration { return &c.Analytics.SnapshotInterval }),
	envDuration("MR_ANALYTICS_SNAPSHOT_RETENTION", func(c *Config) *time.Duration { return &c.Analytics.SnapshotRetention }),
	envInt("MR_ANALYTICS_MAX_TRACKED_KEYS", func(c *Config) *int { return &c.Analytics.MaxTrackedKeys }),
	envString("MR_LOGGING_LEVEL", func(c *Config) *string { return &c.Logging.Level }),
	envString("MR_LOGGING_FORMAT", func(c *Config) *string { return &c.Logging.Format }),
}

// applyEnvOverrides applies every set MR_* variable in envBindings.
func applyEnvOverrides(cfg *Config) {
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			slog.Warn("ignoring invalid environment override", "var", b.name, "error", err)
		}
	}
}
