package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the final Config in three layers: built-in defaults, the TOML
// file at path (if given), and SLOTMARKET_* environment variables on top.
// Validation is the caller's job via Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// A missing .env file is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// env wraps one environment variable. Its setter methods assign only when
// the variable is set, non-empty, and parses; operators use these to inject
// secrets and per-host settings without editing the TOML file.
type env string

func (e env) value() (string, bool) {
	v := os.Getenv(string(e))
	return v, v != ""
}

func (e env) str(dst *string) {
	if v, ok := e.value(); ok {
		*dst = v
	}
}

func (e env) integer(dst *int) {
	if v, ok := e.value(); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (e env) int64(dst *int64) {
	if v, ok := e.value(); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func (e env) boolean(dst *bool) {
	if v, ok := e.value(); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (e env) duration(dst *duration) {
	if v, ok := e.value(); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

// list parses a comma-separated value, dropping empty elements.
func (e env) list(dst *[]string) {
	v, ok := e.value()
	if !ok {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}

func applyEnvOverrides(cfg *Config) {
	env("SLOTMARKET_MARKET_DAYS").integer(&cfg.Market.Days)
	env("SLOTMARKET_MARKET_START_DATE").str(&cfg.Market.StartDate)
	env("SLOTMARKET_MARKET_DEPLOYER").str(&cfg.Market.Deployer)
	env("SLOTMARKET_MARKET_DEFAULT_AD_URL").str(&cfg.Market.DefaultAdURL)
	env("SLOTMARKET_MARKET_DEFAULT_AD_IMAGE_URL").str(&cfg.Market.DefaultAdImageURL)
	env("SLOTMARKET_MARKET_DEFAULT_ASK_PRICE").str(&cfg.Market.DefaultAskPrice)

	env("SLOTMARKET_OPERATOR_PRIVATE_KEY").str(&cfg.Operator.PrivateKey)
	env("SLOTMARKET_OPERATOR_ENCRYPTED_KEY_PATH").str(&cfg.Operator.EncryptedKeyPath)
	env("SLOTMARKET_OPERATOR_KEY_PASSWORD").str(&cfg.Operator.KeyPassword)

	env("SLOTMARKET_TOKEN_BACKEND").str(&cfg.Token.Backend)
	env("SLOTMARKET_TOKEN_INITIAL_SUPPLY").str(&cfg.Token.InitialSupply)
	env("SLOTMARKET_TOKEN_RPC_URL").str(&cfg.Token.RPCURL)
	env("SLOTMARKET_TOKEN_ADDRESS").str(&cfg.Token.Address)
	env("SLOTMARKET_TOKEN_CHAIN_ID").int64(&cfg.Token.ChainID)

	env("SLOTMARKET_POSTGRES_DSN").str(&cfg.Postgres.DSN)
	env("SLOTMARKET_POSTGRES_HOST").str(&cfg.Postgres.Host)
	env("SLOTMARKET_POSTGRES_PORT").integer(&cfg.Postgres.Port)
	env("SLOTMARKET_POSTGRES_DATABASE").str(&cfg.Postgres.Database)
	env("SLOTMARKET_POSTGRES_USER").str(&cfg.Postgres.User)
	env("SLOTMARKET_POSTGRES_PASSWORD").str(&cfg.Postgres.Password)
	env("SLOTMARKET_POSTGRES_SSLMODE").str(&cfg.Postgres.SSLMode)
	env("SLOTMARKET_POSTGRES_POOL_MAX_CONNS").integer(&cfg.Postgres.PoolMaxConns)
	env("SLOTMARKET_POSTGRES_POOL_MIN_CONNS").integer(&cfg.Postgres.PoolMinConns)
	env("SLOTMARKET_POSTGRES_RUN_MIGRATIONS").boolean(&cfg.Postgres.RunMigrations)

	env("SLOTMARKET_REDIS_ADDR").str(&cfg.Redis.Addr)
	env("SLOTMARKET_REDIS_PASSWORD").str(&cfg.Redis.Password)
	env("SLOTMARKET_REDIS_DB").integer(&cfg.Redis.DB)
	env("SLOTMARKET_REDIS_POOL_SIZE").integer(&cfg.Redis.PoolSize)
	env("SLOTMARKET_REDIS_MAX_RETRIES").integer(&cfg.Redis.MaxRetries)
	env("SLOTMARKET_REDIS_TLS_ENABLED").boolean(&cfg.Redis.TLSEnabled)
	env("SLOTMARKET_REDIS_CACHE_TTL_MINUTES").integer(&cfg.Redis.CacheTTLMinutes)
	env("SLOTMARKET_REDIS_STREAM_MAX_LEN").integer(&cfg.Redis.StreamMaxLen)

	env("SLOTMARKET_S3_ENDPOINT").str(&cfg.S3.Endpoint)
	env("SLOTMARKET_S3_REGION").str(&cfg.S3.Region)
	env("SLOTMARKET_S3_BUCKET").str(&cfg.S3.Bucket)
	env("SLOTMARKET_S3_ACCESS_KEY").str(&cfg.S3.AccessKey)
	env("SLOTMARKET_S3_SECRET_KEY").str(&cfg.S3.SecretKey)
	env("SLOTMARKET_S3_USE_SSL").boolean(&cfg.S3.UseSSL)
	env("SLOTMARKET_S3_FORCE_PATH_STYLE").boolean(&cfg.S3.ForcePathStyle)

	env("SLOTMARKET_SERVER_PORT").integer(&cfg.Server.Port)
	env("SLOTMARKET_SERVER_CORS_ORIGINS").list(&cfg.Server.CORSOrigins)
	env("SLOTMARKET_SERVER_RATE_LIMIT").integer(&cfg.Server.RateLimit)
	env("SLOTMARKET_SERVER_RATE_LIMIT_WINDOW").duration(&cfg.Server.RateLimitWindow)

	env("SLOTMARKET_NOTIFY_TELEGRAM_TOKEN").str(&cfg.Notify.TelegramToken)
	env("SLOTMARKET_NOTIFY_TELEGRAM_CHAT_ID").str(&cfg.Notify.TelegramChatID)
	env("SLOTMARKET_NOTIFY_DISCORD_WEBHOOK_URL").str(&cfg.Notify.DiscordWebhookURL)
	env("SLOTMARKET_NOTIFY_EVENTS").list(&cfg.Notify.Events)

	env("SLOTMARKET_ARCHIVE_ENABLED").boolean(&cfg.Archive.Enabled)
	env("SLOTMARKET_ARCHIVE_RETENTION_DAYS").integer(&cfg.Archive.RetentionDays)
	env("SLOTMARKET_ARCHIVE_INTERVAL").duration(&cfg.Archive.Interval)

	env("SLOTMARKET_MODE").str(&cfg.Mode)
	env("SLOTMARKET_LOG_LEVEL").str(&cfg.LogLevel)
}
