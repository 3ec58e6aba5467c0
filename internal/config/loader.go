package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CLAWFI_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CLAWFI_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CLAWFI_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CLAWFI_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CLAWFI_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CLAWFI_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CLAWFI_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CLAWFI_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CLAWFI_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CLAWFI_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CLAWFI_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CLAWFI_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CLAWFI_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "CLAWFI_REDIS_URL")
	setBool(&cfg.Redis.Enabled, "CLAWFI_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CLAWFI_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CLAWFI_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CLAWFI_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CLAWFI_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CLAWFI_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CLAWFI_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMax, "CLAWFI_REDIS_STREAM_MAX_LEN")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "CLAWFI_CLICKHOUSE_ENABLED")
	setStringSlice(&cfg.ClickHouse.Addr, "CLAWFI_CLICKHOUSE_ADDR")
	setStr(&cfg.ClickHouse.Database, "CLAWFI_CLICKHOUSE_DATABASE")
	setStr(&cfg.ClickHouse.User, "CLAWFI_CLICKHOUSE_USER")
	setStr(&cfg.ClickHouse.Password, "CLAWFI_CLICKHOUSE_PASSWORD")
	setStr(&cfg.ClickHouse.Table, "CLAWFI_CLICKHOUSE_TABLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "CLAWFI_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "CLAWFI_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "CLAWFI_KAFKA_TOPIC")
	setStr(&cfg.Kafka.GroupID, "CLAWFI_KAFKA_GROUP_ID")
	setInt(&cfg.Kafka.SessionTimeoutMs, "CLAWFI_KAFKA_SESSION_TIMEOUT_MS")
	setDuration(&cfg.Kafka.ReadTimeout, "CLAWFI_KAFKA_READ_TIMEOUT")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CLAWFI_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CLAWFI_S3_REGION")
	setStr(&cfg.S3.Bucket, "CLAWFI_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CLAWFI_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CLAWFI_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CLAWFI_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CLAWFI_S3_FORCE_PATH_STYLE")

	// ── Discovery ──
	setFloat64(&cfg.Discovery.VolumeSpikeThreshold, "CLAWFI_DISCOVERY_VOLUME_SPIKE_THRESHOLD")
	setFloat64(&cfg.Discovery.BuyPressureThreshold, "CLAWFI_DISCOVERY_BUY_PRESSURE_THRESHOLD")
	setFloat64(&cfg.Discovery.MinLiquidity, "CLAWFI_DISCOVERY_MIN_LIQUIDITY")
	setInt(&cfg.Discovery.MinConditionsToPass, "CLAWFI_DISCOVERY_MIN_CONDITIONS_TO_PASS")
	setDuration(&cfg.Discovery.CacheTTL, "CLAWFI_DISCOVERY_CACHE_TTL")
	setDuration(&cfg.Discovery.FetchTimeout, "CLAWFI_DISCOVERY_FETCH_TIMEOUT")
	setStringSlice(&cfg.Discovery.DefaultChains, "CLAWFI_DISCOVERY_DEFAULT_CHAINS")
	setInt(&cfg.Discovery.ScanLimit, "CLAWFI_DISCOVERY_SCAN_LIMIT")
	setDuration(&cfg.Discovery.ScanInterval, "CLAWFI_DISCOVERY_SCAN_INTERVAL")
	setBool(&cfg.Discovery.PublishSignals, "CLAWFI_DISCOVERY_PUBLISH_SIGNALS")
	setDuration(&cfg.Discovery.PublishCooldown, "CLAWFI_DISCOVERY_PUBLISH_COOLDOWN")
	setStr(&cfg.Discovery.DexScreenerURL, "CLAWFI_DISCOVERY_DEXSCREENER_URL")
	setStr(&cfg.Discovery.GeckoTerminalURL, "CLAWFI_DISCOVERY_GECKOTERMINAL_URL")
	setInt(&cfg.Discovery.RequestsPerMinute, "CLAWFI_DISCOVERY_REQUESTS_PER_MINUTE")

	// ── Molt ──
	setInt64(&cfg.Molt.ThresholdPercent, "CLAWFI_MOLT_THRESHOLD_PERCENT")
	setFloat64(&cfg.Molt.MinPositionUSD, "CLAWFI_MOLT_MIN_POSITION_USD")
	setInt(&cfg.Molt.RotationWindowMinutes, "CLAWFI_MOLT_ROTATION_WINDOW_MINUTES")
	setInt(&cfg.Molt.CooldownMinutes, "CLAWFI_MOLT_COOLDOWN_MINUTES")
	setDuration(&cfg.Molt.CleanupInterval, "CLAWFI_MOLT_CLEANUP_INTERVAL")
	setStr(&cfg.Molt.ResnapshotCron, "CLAWFI_MOLT_RESNAPSHOT_CRON")

	// ── Ingest ──
	setStr(&cfg.Ingest.Stream, "CLAWFI_INGEST_STREAM")
	setInt(&cfg.Ingest.BatchSize, "CLAWFI_INGEST_BATCH_SIZE")
	setDuration(&cfg.Ingest.PollEvery, "CLAWFI_INGEST_POLL_EVERY")
	setInt(&cfg.Ingest.Workers, "CLAWFI_INGEST_WORKERS")
	setInt(&cfg.Ingest.QueueSize, "CLAWFI_INGEST_QUEUE_SIZE")

	// ── Signals / archive ──
	setStr(&cfg.Signals.Channel, "CLAWFI_SIGNALS_CHANNEL")
	setBool(&cfg.Archive.Enabled, "CLAWFI_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CLAWFI_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "CLAWFI_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CLAWFI_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CLAWFI_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CLAWFI_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitRPM, "CLAWFI_SERVER_RATE_LIMIT_RPM")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CLAWFI_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CLAWFI_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CLAWFI_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.MinSeverity, "CLAWFI_NOTIFY_MIN_SEVERITY")

	// ── Top-level ──
	setStr(&cfg.Mode, "CLAWFI_MODE")
	setStr(&cfg.LogLevel, "CLAWFI_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
