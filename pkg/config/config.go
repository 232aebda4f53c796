// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Search, Collector, Refresh, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Search    SearchConfig    `yaml:"search"`
	Collector CollectorConfig `yaml:"collector"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// CORSOrigins lists browser origins allowed to call the API; empty
	// disables CORS headers.
	CORSOrigins []string `yaml:"corsOrigins"`
	// MutationsPerMinute caps POST requests per client; 0 disables the cap.
	MutationsPerMinute int `yaml:"mutationsPerMinute"`
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For
	// header names the client. Empty means clients are keyed by their own
	// connecting address.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// SearchConfig controls query matching and result limits.
type SearchConfig struct {
	FuzzyThreshold int  `yaml:"fuzzyThreshold"`
	DisableFuzzy   bool `yaml:"disableFuzzy"`
	DefaultLimit   int  `yaml:"defaultLimit"`
	MaxResults     int  `yaml:"maxResults"`
	SuggestLimit   int  `yaml:"suggestLimit"`
}

// CollectorConfig lists where documented entities are collected from.
type CollectorConfig struct {
	Manifests []string `yaml:"manifests"`
	GoRoots   []string `yaml:"goRoots"`
	Registry  bool     `yaml:"registry"`
}

// RefreshConfig controls how and how often the index is rebuilt.
type RefreshConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retryAttempts"`
}

// PostgresConfig holds PostgreSQL connection parameters for the entity
// registry.
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocsRefresh     string `yaml:"docsRefresh"`
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

// MCPConfig names the MCP server advertised to clients.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
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

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Search.FuzzyThreshold < 0 {
		return fmt.Errorf("search.fuzzyThreshold must be >= 0, got %d", c.Search.FuzzyThreshold)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be >= 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)", c.Search.MaxResults, c.Search.DefaultLimit)
	}
	if c.Server.MutationsPerMinute < 0 {
		return fmt.Errorf("server.mutationsPerMinute must be >= 0, got %d", c.Server.MutationsPerMinute)
	}
	for _, p := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("server.trustedProxies: %q is not an address or CIDR", p)
		}
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("refresh.timeout must be positive, got %s", c.Refresh.Timeout)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty when kafka is enabled")
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			MutationsPerMinute: 6,
		},
		Search: SearchConfig{
			FuzzyThreshold: 2,
			DefaultLimit:   20,
			MaxResults:     200,
			SuggestLimit:   10,
		},
		Collector: CollectorConfig{
			Manifests: []string{"docs/manifest.yaml"},
		},
		Refresh: RefreshConfig{
			Interval:      0,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docuflow",
			User:            "docuflow",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docuflow-group",
			Topics: KafkaTopics{
				DocsRefresh:     "docs-refresh",
				AnalyticsEvents: "docs-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		MCP: MCPConfig{
			Name:    "docuflow",
			Version: "1.0.0",
		},
	}
}

// applyEnvOverrides reads DF_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "DF_SERVER_PORT")
	setList(&cfg.Server.CORSOrigins, "DF_SERVER_CORS_ORIGINS")
	setList(&cfg.Server.TrustedProxies, "DF_SERVER_TRUSTED_PROXIES")
	setInt(&cfg.Search.FuzzyThreshold, "DF_SEARCH_FUZZY_THRESHOLD")
	setBool(&cfg.Search.DisableFuzzy, "DF_SEARCH_DISABLE_FUZZY")
	setInt(&cfg.Search.DefaultLimit, "DF_SEARCH_DEFAULT_LIMIT")
	setInt(&cfg.Search.MaxResults, "DF_SEARCH_MAX_RESULTS")
	setList(&cfg.Collector.Manifests, "DF_COLLECTOR_MANIFESTS")
	setList(&cfg.Collector.GoRoots, "DF_COLLECTOR_GO_ROOTS")
	setBool(&cfg.Collector.Registry, "DF_COLLECTOR_REGISTRY")
	setDuration(&cfg.Refresh.Interval, "DF_REFRESH_INTERVAL")
	setDuration(&cfg.Refresh.Timeout, "DF_REFRESH_TIMEOUT")
	setString(&cfg.Postgres.Host, "DF_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DF_POSTGRES_PORT")
	setString(&cfg.Postgres.Database, "DF_POSTGRES_DATABASE")
	setString(&cfg.Postgres.User, "DF_POSTGRES_USER")
	setString(&cfg.Postgres.Password, "DF_POSTGRES_PASSWORD")
	setString(&cfg.Postgres.SSLMode, "DF_POSTGRES_SSLMODE")
	setBool(&cfg.Kafka.Enabled, "DF_KAFKA_ENABLED")
	setList(&cfg.Kafka.Brokers, "DF_KAFKA_BROKERS")
	setBool(&cfg.Redis.Enabled, "DF_REDIS_ENABLED")
	setString(&cfg.Redis.Addr, "DF_REDIS_ADDR")
	setString(&cfg.Redis.Password, "DF_REDIS_PASSWORD")
	setString(&cfg.Logging.Level, "DF_LOGGING_LEVEL")
	setString(&cfg.Logging.Format, "DF_LOGGING_FORMAT")
	setBool(&cfg.Metrics.Enabled, "DF_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "DF_METRICS_PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
