package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/risk"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portfoliosim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, risk.ModeAdvisory, cfg.RiskMode())
	assert.Equal(t, 20, cfg.Features.VolWindow)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := writeConfig(t, `
backtest:
  initial_capital: 50000
  commission_rate: 0
strategy:
  fast_window: 2
  slow_window: 5
risk:
  max_leverage: 2
  mode: enforce
cache:
  ttl: 90m
  redis_addr: localhost:6379
http:
  addr: ":9000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 0.0, cfg.Backtest.CommissionRate)
	assert.Equal(t, 0.0005, cfg.Backtest.SlippageRate, "unset keys keep defaults")
	assert.Equal(t, 2, cfg.Strategy.FastWindow)
	assert.Equal(t, 0.95, cfg.Strategy.ExposureCap)
	assert.Equal(t, 2.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, 0.2, cfg.Risk.MaxPositionFraction)
	assert.Equal(t, risk.ModeEnforce, cfg.RiskMode())
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.Addr)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PSIM_INITIAL_CAPITAL", "250000")
	t.Setenv("PSIM_SLIPPAGE_RATE", "0")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PG_DSN", "postgres://db/psim")
	t.Setenv("PG_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 250000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 0.0, cfg.Backtest.SlippageRate)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "postgres://db/psim", cfg.Database.DSN)
}

func TestLoad_BadEnvIsConfigError(t *testing.T) {
	t.Setenv("PSIM_COMMISSION_RATE", "ten bps")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	var ce *models.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "backtest.commission_rate", ce.Field)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.False(t, IsConfigError(err))
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "backtest: [unclosed"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero_capital", func(c *Config) { c.Backtest.InitialCapital = 0 }, "backtest.initial_capital"},
		{"negative_commission", func(c *Config) { c.Backtest.CommissionRate = -0.001 }, "backtest.commission_rate"},
		{"negative_slippage", func(c *Config) { c.Backtest.SlippageRate = -1 }, "backtest.slippage_rate"},
		{"stop_of_one", func(c *Config) { c.Backtest.StopLossPct = 1 }, "backtest.stop_loss_pct"},
		{"fast_not_below_slow", func(c *Config) { c.Strategy.FastWindow = 30 }, "strategy.fast_window"},
		{"zero_fast", func(c *Config) { c.Strategy.FastWindow = 0 }, "strategy.fast_window"},
		{"exposure_above_one", func(c *Config) { c.Strategy.ExposureCap = 1.5 }, "strategy.exposure_cap"},
		{"unknown_mode", func(c *Config) { c.Risk.Mode = "strict" }, "risk.mode"},
		{"zero_leverage", func(c *Config) { c.Risk.MaxLeverage = 0 }, "risk.max_leverage"},
		{"tiny_vol_window", func(c *Config) { c.Features.VolWindow = 1 }, "features.vol_window"},
		{"no_output", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
		{"negative_keep_runs", func(c *Config) { c.Output.KeepRuns = -1 }, "output.keep_runs"},
		{"db_without_dsn", func(c *Config) { c.Database.Enabled = true }, "database"},
		{"cache_without_ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"rate_without_burst", func(c *Config) { c.HTTP.Burst = 0 }, "http.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var ce *models.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "custom.yaml", ResolvePath("custom.yaml"))

	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	assert.Equal(t, "", ResolvePath(""))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultPath), []byte("{}"), 0o644))
	assert.Equal(t, DefaultPath, ResolvePath(""))
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, *Default(), *cfg)
}
