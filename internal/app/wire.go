package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/adcal/slotmarket/internal/blob/s3"
	"github.com/adcal/slotmarket/internal/cache/redis"
	"github.com/adcal/slotmarket/internal/config"
	"github.com/adcal/slotmarket/internal/crypto"
	"github.com/adcal/slotmarket/internal/domain"
	"github.com/adcal/slotmarket/internal/ledger"
	"github.com/adcal/slotmarket/internal/market"
	"github.com/adcal/slotmarket/internal/notify"
	"github.com/adcal/slotmarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Arena and payment rail.
	Arena    *market.Market
	Ledger   domain.TokenLedger
	Operator common.Address

	// Stores (serve mode only).
	SlotStore  domain.SlotStore
	SaleStore  domain.SaleStore
	AuditStore domain.AuditStore

	// Caches (serve mode only).
	SlotCache   domain.SlotCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (serve mode with archiving enabled).
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications.
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	return mode == "serve"
}

// needsRedis returns true for modes that require Redis.
func needsRedis(mode string) bool {
	return mode == "serve"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// --- Operator identity ---
	// The operator address is the spender buyers approve on the token
	// ledger. Without configured key material the deployer doubles as the
	// operator, which is only useful for the memory backend.
	var operatorKey string
	if cfg.Operator.PrivateKey != "" || cfg.Operator.EncryptedKeyPath != "" {
		var err error
		operatorKey, err = crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
	}
	if operatorKey != "" {
		signer, err := crypto.NewSigner(operatorKey)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: operator signer: %w", err)
		}
		deps.Operator = signer.Address()
	} else {
		deps.Operator = common.HexToAddress(cfg.Market.Deployer)
	}

	// --- Token ledger ---
	switch strings.ToLower(cfg.Token.Backend) {
	case "memory":
		supply, err := cfg.Token.Supply()
		if err != nil {
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		mem := ledger.NewMemory(common.HexToAddress(cfg.Market.Deployer), supply)
		deps.Ledger = mem.Bind(deps.Operator)
	case "erc20":
		if operatorKey == "" {
			return nil, nil, fmt.Errorf("wire: the erc20 backend requires operator key material")
		}
		erc, err := ledger.NewERC20(ctx, ledger.ERC20Config{
			RPCURL:         cfg.Token.RPCURL,
			TokenAddress:   cfg.Token.Address,
			OperatorKeyHex: operatorKey,
			ChainID:        cfg.Token.ChainID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: erc20 ledger: %w", err)
		}
		closers = append(closers, erc.Close)
		deps.Ledger = erc
		deps.Operator = erc.Operator()
	default:
		return nil, nil, fmt.Errorf("wire: unsupported token backend %q", cfg.Token.Backend)
	}

	// --- Slot arena ---
	startDay, err := cfg.Market.StartDay()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	askPrice, err := cfg.Market.AskPrice()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	arena, err := market.New(market.Config{
		Ledger:            deps.Ledger,
		Days:              cfg.Market.Days,
		StartDay:          startDay,
		Deployer:          common.HexToAddress(cfg.Market.Deployer),
		DefaultAdURL:      cfg.Market.DefaultAdURL,
		DefaultAdImageURL: cfg.Market.DefaultAdImageURL,
		DefaultAskPrice:   askPrice,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: arena: %w", err)
	}
	deps.Arena = arena

	// --- PostgreSQL (serve mode only) ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.SlotStore = postgres.NewSlotStore(pgClient)
		deps.SaleStore = postgres.NewSaleStore(pgClient)
		deps.AuditStore = postgres.NewAuditStore(pgClient)
	}

	// --- Redis (serve mode only) ---
	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SlotCache = redis.NewSlotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (archiving) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		// Archiver needs the Postgres stores with time-ranged queries.
		if deps.SaleStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.SaleStore,
				deps.AuditStore,
				deps.AuditStore,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
