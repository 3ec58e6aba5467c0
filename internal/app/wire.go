package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/gniumg-source/clawfi-g-sub001/internal/blob/s3"
	"github.com/gniumg-source/clawfi-g-sub001/internal/cache/memory"
	"github.com/gniumg-source/clawfi-g-sub001/internal/cache/redis"
	"github.com/gniumg-source/clawfi-g-sub001/internal/config"
	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/gniumg-source/clawfi-g-sub001/internal/notify"
	"github.com/gniumg-source/clawfi-g-sub001/internal/server/handler"
	"github.com/gniumg-source/clawfi-g-sub001/internal/store/clickhouse"
	memstore "github.com/gniumg-source/clawfi-g-sub001/internal/store/memory"
	"github.com/gniumg-source/clawfi-g-sub001/internal/store/postgres"
)

// Dependencies bundles the storage, cache and delivery backends the modes
// build services from. Wire picks Postgres/Redis implementations when they
// are enabled and process-local ones otherwise.
type Dependencies struct {
	// Stores
	SignalStore   domain.SignalStore
	PositionStore domain.WalletPositionStore
	AuditStore    domain.AuditStore

	// Caches
	Cooldowns      domain.CooldownStore
	PendingSells   domain.PendingSellStore
	LockManager    domain.LockManager
	SignalBus      domain.SignalBus
	CandidateCache domain.CandidateCache
	// StreamCursor is nil without Redis; the in-memory stream does not
	// survive a restart anyway.
	StreamCursor domain.StreamCursor
	// APILimiter and ProviderLimiter are nil without Redis.
	APILimiter      domain.RateLimiter
	ProviderLimiter domain.RateLimiter

	// Discovery evaluation sink; nil unless ClickHouse is enabled.
	Recorder domain.EvaluationRecorder

	// Archiver is nil unless archiving is enabled.
	Archiver domain.Archiver

	Senders []notify.Sender

	// HealthChecks feeds GET /api/health.
	HealthChecks map[string]handler.Pinger
}

// Wire constructs every backend from cfg and returns a cleanup function that
// releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.Pinger)}

	// --- PostgreSQL ---
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
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.SignalStore = postgres.NewSignalStore(pool)
		deps.PositionStore = postgres.NewWalletPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	} else {
		logger.Warn("postgres disabled, signals and positions are kept in memory")
		deps.SignalStore = memstore.NewSignalStore()
		deps.PositionStore = memstore.NewWalletPositionStore()
		deps.AuditStore = memstore.NewAuditStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cooldowns = redis.NewCooldownStore(redisClient)
		deps.PendingSells = redis.NewPendingSellStore(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, cfg.Redis.StreamMax)
		deps.CandidateCache = redis.NewCandidateCache(redisClient)
		deps.StreamCursor = redis.NewStreamCursor(redisClient, "molt")
		deps.APILimiter = redis.NewRateLimiter(redisClient)
		deps.ProviderLimiter = redis.NewRateLimiterWithBudget(redisClient, cfg.Discovery.RequestsPerMinute, time.Minute)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		logger.Warn("redis disabled, cooldowns and pending sells are process-local")
		deps.Cooldowns = memory.NewCooldownStore(time.Now)
		deps.PendingSells = memory.NewPendingSellStore()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus(int(cfg.Redis.StreamMax))
		deps.CandidateCache = memory.NewCandidateCache()
	}

	// --- ClickHouse ---
	if cfg.ClickHouse.Enabled {
		conn, err := clickhouse.NewConn(ctx, clickhouse.Config{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			User:     cfg.ClickHouse.User,
			Password: cfg.ClickHouse.Password,
		})
		if err != nil {
			return fail("clickhouse", err)
		}
		closers = append(closers, func() { _ = conn.Close() })

		rec, err := clickhouse.NewEvaluationRecorder(conn, cfg.ClickHouse.Table)
		if err != nil {
			return fail("clickhouse recorder", err)
		}
		deps.Recorder = rec
		deps.HealthChecks["clickhouse"] = conn.Ping
	}

	// --- S3 archive ---
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
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewSignalArchiver(
			s3blob.NewWriter(s3Client, 0),
			s3blob.NewReader(s3Client),
			deps.SignalStore,
			deps.AuditStore,
			logger,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		deps.Senders = append(deps.Senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		deps.Senders = append(deps.Senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}

	return deps, cleanup, nil
}

// minSeverity parses the notify threshold, defaulting to high.
func minSeverity(v string) domain.SignalSeverity {
	if s, ok := domain.ParseSeverity(strings.TrimSpace(v)); ok {
		return s
	}
	return domain.SeverityHigh
}
