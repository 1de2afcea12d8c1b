package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"poolstats/pkg/dex/pancakeswap"
	"poolstats/pkg/dex/uniswap"

	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sources  SourcesConfig  `yaml:"sources"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	FeedInterval time.Duration `yaml:"feed_interval"`
}

// SourcesConfig holds one entry per subgraph.
type SourcesConfig struct {
	Uniswap     SourceConfig `yaml:"uniswap"`
	PancakeSwap SourceConfig `yaml:"pancakeswap"`
}

// SourceConfig holds a subgraph endpoint and its pacing.
type SourceConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// UpstreamConfig holds outbound HTTP settings. A zero timeout means none.
type UpstreamConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig selects and configures the cache store.
type CacheConfig struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
// A missing file is not an error; defaults and the environment still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	cfg.setDefaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if len(data) > 0 {
		// Expand environment variables in YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for all configuration options.
func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:         8080,
		FeedInterval: 10 * time.Second,
	}
	c.Sources = SourcesConfig{
		Uniswap: SourceConfig{
			Endpoint: uniswap.DefaultEndpoint,
		},
		PancakeSwap: SourceConfig{
			Endpoint: pancakeswap.DefaultEndpoint,
		},
	}
	c.Cache = CacheConfig{
		Backend:    BackendMemory,
		SQLitePath: "./data/poolstats.db",
		RedisAddr:  "localhost:6379",
	}
	c.Metrics = MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// applyEnvOverrides applies environment variable overrides to configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("UNISWAP_ENDPOINT"); v != "" {
		c.Sources.Uniswap.Endpoint = v
	}
	if v := os.Getenv("PANCAKESWAP_ENDPOINT"); v != "" {
		c.Sources.PancakeSwap.Endpoint = v
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Upstream.Timeout = d
		}
	}

	// Cache config
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Cache.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// validate checks that all required configuration values are present and valid.
func (c *Config) validate() error {
	if c.Sources.Uniswap.Endpoint == "" {
		return fmt.Errorf("sources.uniswap.endpoint is required (set UNISWAP_ENDPOINT env var)")
	}
	if c.Sources.PancakeSwap.Endpoint == "" {
		return fmt.Errorf("sources.pancakeswap.endpoint is required (set PANCAKESWAP_ENDPOINT env var)")
	}
	if c.Sources.Uniswap.RequestsPerSecond < 0 || c.Sources.PancakeSwap.RequestsPerSecond < 0 {
		return fmt.Errorf("sources.*.requests_per_second must not be negative")
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port number")
	}
	if c.Server.FeedInterval <= 0 {
		return fmt.Errorf("server.feed_interval must be positive")
	}
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("cache.sqlite_path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of memory, sqlite, redis (got %q)", c.Cache.Backend)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}
