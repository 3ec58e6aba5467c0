// Package config defines the top-level configuration for the clawfi signal
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CLAWFI_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Kafka      KafkaConfig      `toml:"kafka"`
	S3         S3Config         `toml:"s3"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Molt       MoltConfig       `toml:"molt"`
	Ingest     IngestConfig     `toml:"ingest"`
	Signals    SignalsConfig    `toml:"signals"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. When Enabled is
// false the in-memory stores are used instead.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds Redis connection parameters. When Enabled is false the
// bus, cooldowns and pending sells are process-local.
type RedisConfig struct {
	Enabled bool `toml:"enabled"`
	// URL overrides the fields below when set.
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	StreamMax  int64  `toml:"stream_max_len"`
}

// ClickHouseConfig configures the discovery evaluation sink.
type ClickHouseConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     []string `toml:"addr"`
	Database string   `toml:"database"`
	User     string   `toml:"user"`
	Password string   `toml:"password"`
	Table    string   `toml:"table"`
}

// KafkaConfig configures the optional on-chain event consumer.
type KafkaConfig struct {
	Enabled          bool     `toml:"enabled"`
	Brokers          []string `toml:"brokers"`
	Topic            string   `toml:"topic"`
	GroupID          string   `toml:"group_id"`
	SessionTimeoutMs int      `toml:"session_timeout_ms"`
	ReadTimeout      duration `toml:"read_timeout"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// DiscoveryConfig holds the discovery gate thresholds and source settings.
type DiscoveryConfig struct {
	VolumeSpikeThreshold float64  `toml:"volume_spike_threshold"`
	BuyPressureThreshold float64  `toml:"buy_pressure_threshold"`
	MinLiquidity         float64  `toml:"min_liquidity"`
	MinConditionsToPass  int      `toml:"min_conditions_to_pass"`
	CacheTTL             duration `toml:"cache_ttl"`
	FetchTimeout         duration `toml:"fetch_timeout"`
	DefaultChains        []string `toml:"default_chains"`
	ScanLimit            int      `toml:"scan_limit"`
	ScanInterval         duration `toml:"scan_interval"`
	PublishSignals       bool     `toml:"publish_signals"`
	// PublishCooldown suppresses repeat signals for the same token.
	PublishCooldown  duration `toml:"publish_cooldown"`
	DexScreenerURL   string   `toml:"dexscreener_url"`
	GeckoTerminalURL string   `toml:"geckoterminal_url"`
	// RequestsPerMinute caps outbound market-data calls per provider when
	// Redis is enabled.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// MoltConfig holds the wallet-rotation detector parameters.
type MoltConfig struct {
	ThresholdPercent      int64    `toml:"threshold_percent"`
	MinPositionUSD        float64  `toml:"min_position_usd"`
	RotationWindowMinutes int      `toml:"rotation_window_minutes"`
	CooldownMinutes       int      `toml:"cooldown_minutes"`
	CleanupInterval       duration `toml:"cleanup_interval"`
	// ResnapshotCron re-baselines every position; empty disables it.
	ResnapshotCron string `toml:"resnapshot_cron"`
}

// IngestConfig controls how on-chain events reach the detector.
type IngestConfig struct {
	Stream    string   `toml:"stream"`
	BatchSize int      `toml:"batch_size"`
	PollEvery duration `toml:"poll_every"`
	Workers   int      `toml:"workers"`
	QueueSize int      `toml:"queue_size"`
}

// SignalsConfig holds signal service settings.
type SignalsConfig struct {
	Channel string `toml:"channel"`
}

// ArchiveConfig controls moving old acknowledged signals to S3.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RateLimitRPM   int      `toml:"rate_limit_rpm"`
	WriteTimeout   duration `toml:"write_timeout"`
	ReadTimeout    duration `toml:"read_timeout"`
	ShutdownWindow duration `toml:"shutdown_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	MinSeverity       string `toml:"min_severity"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "clawfi",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			StreamMax:  100_000,
		},
		ClickHouse: ClickHouseConfig{
			Addr:     []string{"localhost:9000"},
			Database: "default",
			User:     "default",
			Table:    "discovery_evaluations",
		},
		Kafka: KafkaConfig{
			Brokers:          []string{"localhost:9092"},
			Topic:            "onchain-events",
			GroupID:          "clawfi-molt",
			SessionTimeoutMs: 30_000,
			ReadTimeout:      duration{time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "clawfi-data",
			ForcePathStyle: true,
		},
		Discovery: DiscoveryConfig{
			VolumeSpikeThreshold: 2.0,
			BuyPressureThreshold: 0.6,
			MinLiquidity:         10_000,
			MinConditionsToPass:  3,
			CacheTTL:             duration{20 * time.Second},
			FetchTimeout:         duration{8 * time.Second},
			DefaultChains:        []string{"ethereum", "base", "arbitrum", "solana"},
			ScanLimit:            20,
			ScanInterval:         duration{time.Minute},
			PublishSignals:       true,
			PublishCooldown:      duration{time.Hour},
			DexScreenerURL:       "https://api.dexscreener.com",
			GeckoTerminalURL:     "https://api.geckoterminal.com/api/v2",
			RequestsPerMinute:    60,
		},
		Molt: MoltConfig{
			ThresholdPercent:      50,
			MinPositionUSD:        1000,
			RotationWindowMinutes: 60,
			CooldownMinutes:       30,
			CleanupInterval:       duration{5 * time.Minute},
		},
		Ingest: IngestConfig{
			Stream:    "events:onchain",
			BatchSize: 100,
			PollEvery: duration{500 * time.Millisecond},
			Workers:   8,
			QueueSize: 1024,
		},
		Signals: SignalsConfig{
			Channel: "signals",
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPM:   300,
			WriteTimeout:   duration{15 * time.Second},
			ReadTimeout:    duration{15 * time.Second},
			ShutdownWindow: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			MinSeverity: "high",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"detect":   true,
	"discover": true,
	"server":   true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, discover, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			errs = append(errs, "redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.ClickHouse.Enabled && len(c.ClickHouse.Addr) == 0 {
		errs = append(errs, "clickhouse: addr must not be empty when enabled")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka: brokers must not be empty when enabled")
		}
		if c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
			errs = append(errs, "kafka: topic and group_id are required when enabled")
		}
	}

	// Archive needs both a store to read from and a bucket to write to.
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled")
		}
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, "archive: s3.endpoint and s3.bucket must be set")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Discovery
	d := c.Discovery
	if d.VolumeSpikeThreshold <= 0 {
		errs = append(errs, "discovery: volume_spike_threshold must be > 0")
	}
	if d.BuyPressureThreshold < 0 || d.BuyPressureThreshold > 1 {
		errs = append(errs, "discovery: buy_pressure_threshold must be within [0,1]")
	}
	if d.MinLiquidity < 0 {
		errs = append(errs, "discovery: min_liquidity must be >= 0")
	}
	if d.MinConditionsToPass < 1 || d.MinConditionsToPass > 5 {
		errs = append(errs, fmt.Sprintf("discovery: min_conditions_to_pass must be 1-5, got %d", d.MinConditionsToPass))
	}
	if d.FetchTimeout.Duration <= 0 {
		errs = append(errs, "discovery: fetch_timeout must be > 0")
	}

	// Molt
	m := c.Molt
	if m.ThresholdPercent < 1 || m.ThresholdPercent > 100 {
		errs = append(errs, fmt.Sprintf("molt: threshold_percent must be 1-100, got %d", m.ThresholdPercent))
	}
	if m.MinPositionUSD < 0 {
		errs = append(errs, "molt: min_position_usd must be >= 0")
	}
	if m.RotationWindowMinutes < 1 {
		errs = append(errs, "molt: rotation_window_minutes must be >= 1")
	}
	if m.CooldownMinutes < 0 {
		errs = append(errs, "molt: cooldown_minutes must be >= 0")
	}

	if c.Ingest.Workers < 1 {
		errs = append(errs, "ingest: workers must be >= 1")
	}
	if c.Signals.Channel == "" {
		errs = append(errs, "signals: channel must not be empty")
	}
	if c.Notify.MinSeverity != "" && !validSeverities[strings.ToLower(c.Notify.MinSeverity)] {
		errs = append(errs, fmt.Sprintf("notify: unknown min_severity %q", c.Notify.MinSeverity))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
