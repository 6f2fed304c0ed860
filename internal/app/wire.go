package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/solanabot/internal/blob/s3"
	"github.com/alanyoungcy/solanabot/internal/cache/local"
	"github.com/alanyoungcy/solanabot/internal/cache/redis"
	"github.com/alanyoungcy/solanabot/internal/config"
	"github.com/alanyoungcy/solanabot/internal/domain"
	"github.com/alanyoungcy/solanabot/internal/notify"
	"github.com/alanyoungcy/solanabot/internal/platform/dexscreener"
	"github.com/alanyoungcy/solanabot/internal/platform/rugcheck"
	"github.com/alanyoungcy/solanabot/internal/server/handler"
	"github.com/alanyoungcy/solanabot/internal/store/memory"
	"github.com/alanyoungcy/solanabot/internal/store/postgres"
)

// priceCacheTTL bounds how long a cached last price stays readable.
const priceCacheTTL = 15 * time.Minute

// Dependencies bundles the infrastructure the modes build services on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store   *memory.PositionStore
	Journal domain.PositionJournal
	Audit   domain.AuditStore

	// Set only with Redis enabled.
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	// SignalBus is Redis-backed when enabled, otherwise in-process.
	SignalBus domain.SignalBus

	// Set only with S3 enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	DexScreener *dexscreener.Client
	RugCheck    *rugcheck.Client
	Notifier    *notify.Notifier

	// Checks probe each enabled backing service for /api/health.
	Checks map[string]handler.Check
}

// Wire constructs every concrete dependency from cfg and returns them with a
// cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Store:  memory.NewPositionStore(),
		Checks: make(map[string]handler.Check),
	}

	// --- PostgreSQL (journal, closed history, audit log) ---
	if cfg.Postgres.Enabled {
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
			logger.InfoContext(ctx, "wire: postgres migrations done", slog.Int("applied", pgClient.Applied()))
		}

		pool := pgClient.Pool()
		deps.Journal = postgres.NewPositionJournal(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis (price cache, locks, bus, API budgets) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, priceCacheTTL)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, apiLimits(cfg.Redis))
		deps.Checks["redis"] = redisClient.Ping
	} else {
		deps.SignalBus = local.NewBus()
	}

	// --- S3 blob storage (history archive) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- External APIs ---
	deps.DexScreener = dexscreener.NewClient(cfg.DexScreener.BaseURL, cfg.DexScreener.Chain, cfg.DexScreener.Timeout.Duration)
	deps.RugCheck = rugcheck.NewClient(cfg.RugCheck.BaseURL, cfg.RugCheck.APIKey, cfg.RugCheck.Timeout.Duration)
	if deps.RateLimiter != nil {
		if cfg.Redis.DexScreenerPerMinute > 0 {
			deps.DexScreener.SetLimiter(deps.RateLimiter)
		}
		if cfg.Redis.RugCheckPerMinute > 0 {
			deps.RugCheck.SetLimiter(deps.RateLimiter)
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

	logger.InfoContext(ctx, "wire: dependencies ready",
		slog.Bool("postgres", cfg.Postgres.Enabled),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("s3", cfg.S3.Enabled),
		slog.String("notify", strings.Join(senderNames(senders), ",")),
	)
	return deps, cleanup, nil
}

// apiLimits maps the external API limiter keys to their per-minute budgets.
func apiLimits(cfg config.RedisConfig) map[string]redis.Limit {
	limits := make(map[string]redis.Limit, 2)
	if cfg.DexScreenerPerMinute > 0 {
		limits[dexscreener.LimiterKey] = redis.Limit{Requests: cfg.DexScreenerPerMinute, Window: time.Minute}
	}
	if cfg.RugCheckPerMinute > 0 {
		limits[rugcheck.LimiterKey] = redis.Limit{Requests: cfg.RugCheckPerMinute, Window: time.Minute}
	}
	return limits
}

func senderNames(senders []notify.Sender) []string {
	names := make([]string, 0, len(senders))
	for _, s := range senders {
		names = append(names, s.Name())
	}
	return names
}
