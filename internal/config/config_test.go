package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "standalone"
log_level = "debug"

[market]
days = 30
start_date = "2026-01-01"
deployer = "0x0000000000000000000000000000000000000001"
default_ad_url = "https://example.com"
default_ask_price = "5"

[token]
backend = "memory"
initial_supply = "1000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 30, cfg.Market.Days)
	require.Equal(t, "debug", cfg.LogLevel)

	// Defaults survive for sections the file does not mention.
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, time.Minute, cfg.Server.RateLimitWindow.Duration)

	start, err := cfg.Market.StartDay()
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()/86400, start)

	price, err := cfg.Market.AskPrice()
	require.NoError(t, err)
	require.EqualValues(t, 5, price.Int64())
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[market]
days = 10
`)

	t.Setenv("SLOTMARKET_MARKET_DAYS", "99")
	t.Setenv("SLOTMARKET_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("SLOTMARKET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 99, cfg.Market.Days)
	require.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "replay" }},
		{"zero days", func(c *Config) { c.Market.Days = 0 }},
		{"bad ask price", func(c *Config) { c.Market.DefaultAskPrice = "one" }},
		{"bad start date", func(c *Config) { c.Market.StartDate = "01/01/2026" }},
		{"bad token backend", func(c *Config) { c.Token.Backend = "solana" }},
		{"erc20 missing rpc", func(c *Config) { c.Token.Backend = "erc20"; c.Token.Address = "0xabc"; c.Token.ChainID = 1 }},
		{"serve without postgres", func(c *Config) { c.Mode = "serve" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Operator.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Operator.PrivateKey)
	require.Equal(t, "***", red.Postgres.Password)
	// Unset secrets stay visibly unset.
	require.Empty(t, red.Redis.Password)
	// The original is untouched.
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}
