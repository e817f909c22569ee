package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"signalbot/internal/model"
)

// Feed modes.
const (
	FeedBinance = "binance"
	FeedSim     = "sim"
)

// Config holds all application configuration.
type Config struct {
	// Market data
	FeedMode       string        `yaml:"feed_mode"`
	BinanceWSURL   string        `yaml:"binance_ws_url"`
	BinanceRESTURL string        `yaml:"binance_rest_url"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	FallbackLimit  int           `yaml:"fallback_limit"`

	// Startup subscription; empty symbol means none
	DefaultSymbol   string `yaml:"default_symbol"`
	DefaultInterval string `yaml:"default_interval"`

	// Computation
	IncludeOpenCandle bool `yaml:"include_open_candle"`

	// Infrastructure; an empty RedisAddr or SQLitePath disables that sink
	HTTPAddr           string        `yaml:"http_addr"`
	RedisAddr          string        `yaml:"redis_addr"`
	RedisPassword      string        `yaml:"redis_password"`
	RedisDB            int           `yaml:"redis_db"`
	RedisChannelPrefix string        `yaml:"redis_channel_prefix"`
	RedisLatestTTL     time.Duration `yaml:"redis_latest_ttl"`
	SQLitePath         string        `yaml:"sqlite_path"`
	JournalKeep        int           `yaml:"journal_keep"`

	// Observability
	LogLevel       string `yaml:"log_level"`
	TracingEnabled bool   `yaml:"tracing_enabled"`

	// Simulated feed
	SimStartPrice   float64       `yaml:"sim_start_price"`
	SimTickInterval time.Duration `yaml:"sim_tick_interval"`
	SimSeed         int64         `yaml:"sim_seed"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		FeedMode:           FeedBinance,
		BinanceWSURL:       "wss://stream.binance.com:9443/ws",
		BinanceRESTURL:     "https://api.binance.com",
		FetchTimeout:       10 * time.Second,
		FallbackLimit:      200,
		DefaultInterval:    "1m",
		IncludeOpenCandle:  true,
		HTTPAddr:           ":8080",
		RedisChannelPrefix: "pub:ind",
		RedisLatestTTL:     30 * time.Minute,
		JournalKeep:        1000,
		LogLevel:           "info",
		SimStartPrice:      100,
		SimTickInterval:    time.Second,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	c.FeedMode = getEnv("FEED_MODE", c.FeedMode)
	c.BinanceWSURL = getEnv("BINANCE_WS_URL", c.BinanceWSURL)
	c.BinanceRESTURL = getEnv("BINANCE_REST_URL", c.BinanceRESTURL)
	c.DefaultSymbol = getEnv("DEFAULT_SYMBOL", c.DefaultSymbol)
	c.DefaultInterval = getEnv("DEFAULT_INTERVAL", c.DefaultInterval)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisChannelPrefix = getEnv("REDIS_CHANNEL_PREFIX", c.RedisChannelPrefix)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	collect(envDuration("FETCH_TIMEOUT", &c.FetchTimeout))
	collect(envDuration("REDIS_LATEST_TTL", &c.RedisLatestTTL))
	collect(envDuration("SIM_TICK_INTERVAL", &c.SimTickInterval))
	collect(envInt("FALLBACK_LIMIT", &c.FallbackLimit))
	collect(envInt("REDIS_DB", &c.RedisDB))
	collect(envInt("JOURNAL_KEEP", &c.JournalKeep))
	collect(envBool("INCLUDE_OPEN_CANDLE", &c.IncludeOpenCandle))
	collect(envBool("TRACING_ENABLED", &c.TracingEnabled))
	collect(envFloat("SIM_START_PRICE", &c.SimStartPrice))
	collect(envInt64("SIM_SEED", &c.SimSeed))
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks value ranges and the startup key.
func (c *Config) Validate() error {
	switch c.FeedMode {
	case FeedBinance, FeedSim:
	default:
		return fmt.Errorf("feed_mode %q is not %q or %q", c.FeedMode, FeedBinance, FeedSim)
	}
	if c.FallbackLimit < 1 || c.FallbackLimit > 200 {
		return fmt.Errorf("fallback_limit %d outside 1..200", c.FallbackLimit)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.DefaultSymbol != "" {
		if _, err := model.ParseKey(c.DefaultSymbol, c.DefaultInterval); err != nil {
			return fmt.Errorf("default subscription: %w", err)
		}
	}
	return nil
}

// DefaultKey returns the startup subscription, if one is configured.
func (c *Config) DefaultKey() (model.Key, bool) {
	if c.DefaultSymbol == "" {
		return model.Key{}, false
	}
	k, err := model.ParseKey(c.DefaultSymbol, c.DefaultInterval)
	if err != nil {
		return model.Key{}, false
	}
	return k, true
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
