package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalbot/internal/model"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "FEED_MODE", "BINANCE_WS_URL", "BINANCE_REST_URL",
		"DEFAULT_SYMBOL", "DEFAULT_INTERVAL", "HTTP_ADDR", "REDIS_ADDR",
		"REDIS_PASSWORD", "REDIS_CHANNEL_PREFIX", "SQLITE_PATH", "LOG_LEVEL",
		"FETCH_TIMEOUT", "REDIS_LATEST_TTL", "SIM_TICK_INTERVAL", "FALLBACK_LIMIT",
		"REDIS_DB", "JOURNAL_KEEP", "INCLUDE_OPEN_CANDLE", "TRACING_ENABLED",
		"SIM_START_PRICE", "SIM_SEED",
	} {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
			os.Unsetenv(k)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, FeedBinance, cfg.FeedMode)
	assert.Equal(t, "wss://stream.binance.com:9443/ws", cfg.BinanceWSURL)
	assert.Equal(t, 200, cfg.FallbackLimit)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.True(t, cfg.IncludeOpenCandle)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.SQLitePath)

	_, ok := cfg.DefaultKey()
	assert.False(t, ok)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "signalbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feed_mode: sim
fetch_timeout: 3s
fallback_limit: 150
default_symbol: ethusdt
default_interval: 5m
include_open_candle: false
redis_addr: redis:6379
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("FALLBACK_LIMIT", "120")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, FeedSim, cfg.FeedMode)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 120, cfg.FallbackLimit, "env overrides file")
	assert.False(t, cfg.IncludeOpenCandle)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, ":8080", cfg.HTTPAddr, "unset keys keep defaults")

	key, ok := cfg.DefaultKey()
	require.True(t, ok)
	assert.Equal(t, model.Key{Symbol: "ETHUSDT", Interval: "5m"}, key)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":     {"FETCH_TIMEOUT": "soon"},
		"bad bool":         {"INCLUDE_OPEN_CANDLE": "maybe"},
		"limit too large":  {"FALLBACK_LIMIT": "500"},
		"unknown feed":     {"FEED_MODE": "kraken"},
		"bad default key":  {"DEFAULT_SYMBOL": "BTCUSDT", "DEFAULT_INTERVAL": "7m"},
		"missing file":     {"CONFIG_FILE": "/nonexistent/signalbot.yaml"},
		"zero fetch limit": {"FALLBACK_LIMIT": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
