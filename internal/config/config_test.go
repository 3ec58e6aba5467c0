package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2.0, cfg.Discovery.VolumeSpikeThreshold)
	assert.Equal(t, 0.6, cfg.Discovery.BuyPressureThreshold)
	assert.Equal(t, 10_000.0, cfg.Discovery.MinLiquidity)
	assert.Equal(t, 3, cfg.Discovery.MinConditionsToPass)
	assert.Equal(t, int64(50), cfg.Molt.ThresholdPercent)
	assert.Equal(t, 1000.0, cfg.Molt.MinPositionUSD)
	assert.Equal(t, 60, cfg.Molt.RotationWindowMinutes)
	assert.Equal(t, 30, cfg.Molt.CooldownMinutes)
	assert.Equal(t, "signals", cfg.Signals.Channel)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Discovery.MinConditionsToPass = 9
	cfg.Molt.ThresholdPercent = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "config validation failed:"))
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "min_conditions_to_pass")
	assert.Contains(t, msg, "threshold_percent")
	assert.Contains(t, msg, "redis: addr")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clawfi.toml")
	body := `
mode = "detect"

[molt]
threshold_percent = 60
cleanup_interval = "90s"

[discovery]
default_chains = ["base"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("CLAWFI_MOLT_COOLDOWN_MINUTES", "45")
	t.Setenv("CLAWFI_DISCOVERY_DEFAULT_CHAINS", "solana, base ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "detect", cfg.Mode)
	assert.Equal(t, int64(60), cfg.Molt.ThresholdPercent)
	assert.Equal(t, 90*time.Second, cfg.Molt.CleanupInterval.Duration)
	assert.Equal(t, 45, cfg.Molt.CooldownMinutes)
	assert.Equal(t, []string{"solana", "base"}, cfg.Discovery.DefaultChains)
	// Untouched sections keep their defaults.
	assert.Equal(t, 20*time.Second, cfg.Discovery.CacheTTL.Duration)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "tok"
	cfg.S3.SecretKey = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "", out.S3.SecretKey)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}
