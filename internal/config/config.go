// Package config defines the top-level configuration for the slot market
// service and provides loading and validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SLOTMARKET_* environment
// variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Operator OperatorConfig `toml:"operator"`
	Token    TokenConfig    `toml:"token"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the immutable slot-arena parameters.
type MarketConfig struct {
	// Days is the number of day slots in the arena.
	Days int `toml:"days"`
	// StartDate anchors day index 0 to a calendar date (YYYY-MM-DD, UTC).
	// Empty means day 0 is the Unix epoch.
	StartDate string `toml:"start_date"`
	// Deployer owns every slot at construction (hex address).
	Deployer          string `toml:"deployer"`
	DefaultAdURL      string `toml:"default_ad_url"`
	DefaultAdImageURL string `toml:"default_ad_image_url"`
	// DefaultAskPrice is a decimal integer in token base units.
	DefaultAskPrice string `toml:"default_ask_price"`
}

// OperatorConfig holds the market operator's key material. The operator
// address is the spender buyers approve on the token ledger.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// TokenConfig selects and parameterises the token ledger backend.
type TokenConfig struct {
	// Backend is "memory" or "erc20".
	Backend string `toml:"backend"`
	// InitialSupply is minted to the deployer by the memory backend
	// (decimal integer, base units).
	InitialSupply string `toml:"initial_supply"`
	// RPCURL, Address, and ChainID configure the erc20 backend.
	RPCURL  string `toml:"rpc_url"`
	Address string `toml:"address"`
	ChainID int64  `toml:"chain_id"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
	StreamMaxLen    int    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per window per client; zero disables limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration lets TOML express time.Duration as strings like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration a TOML file is merged onto.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Days:            365,
			DefaultAskPrice: "1000000000000000000", // one whole token, 18 decimals
		},
		Token: TokenConfig{
			Backend: "memory",
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        10,
			CacheTTLMinutes: 5,
			StreamMaxLen:    10000,
		},
		Server: ServerConfig{
			Port:            8080,
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "standalone",
		LogLevel: "info",
	}
}

// StartDay converts the configured start date to days since the Unix epoch.
func (m MarketConfig) StartDay() (int64, error) {
	if m.StartDate == "" {
		return 0, nil
	}
	t, err := time.Parse("2006-01-02", m.StartDate)
	if err != nil {
		return 0, fmt.Errorf("config: market.start_date: %w", err)
	}
	return t.Unix() / 86400, nil
}

// AskPrice parses the default ask price as a base-unit integer.
func (m MarketConfig) AskPrice() (*big.Int, error) {
	v, ok := new(big.Int).SetString(m.DefaultAskPrice, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("config: market.default_ask_price %q is not a non-negative integer", m.DefaultAskPrice)
	}
	return v, nil
}

// Supply parses the memory backend's initial supply; empty means zero.
func (t TokenConfig) Supply() (*big.Int, error) {
	if t.InitialSupply == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(t.InitialSupply, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("config: token.initial_supply %q is not a non-negative integer", t.InitialSupply)
	}
	return v, nil
}

// Validate checks the configuration for internal consistency. It is called
// by the entry point after Load.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "standalone":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Market.Days <= 0 {
		return fmt.Errorf("config: market.days must be positive, got %d", c.Market.Days)
	}
	if _, err := c.Market.StartDay(); err != nil {
		return err
	}
	if _, err := c.Market.AskPrice(); err != nil {
		return err
	}

	switch strings.ToLower(c.Token.Backend) {
	case "memory":
		if _, err := c.Token.Supply(); err != nil {
			return err
		}
	case "erc20":
		if c.Token.RPCURL == "" {
			return fmt.Errorf("config: token.rpc_url is required for the erc20 backend")
		}
		if c.Token.Address == "" {
			return fmt.Errorf("config: token.address is required for the erc20 backend")
		}
		if c.Token.ChainID == 0 {
			return fmt.Errorf("config: token.chain_id is required for the erc20 backend")
		}
	default:
		return fmt.Errorf("config: unsupported token backend %q", c.Token.Backend)
	}

	if strings.ToLower(c.Mode) == "serve" {
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			return fmt.Errorf("config: postgres connection is required in serve mode")
		}
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required in serve mode")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
		return fmt.Errorf("config: server.rate_limit_window must be positive when rate limiting is on")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("config: s3.bucket is required when archiving is enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			return fmt.Errorf("config: archive.retention_days must be positive")
		}
	}

	return nil
}
