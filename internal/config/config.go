package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
	"github.com/sawpanic/portfoliosim/internal/data/cache"
	"github.com/sawpanic/portfoliosim/internal/data/cold"
	"github.com/sawpanic/portfoliosim/internal/infrastructure/db"
	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/risk"
	"github.com/sawpanic/portfoliosim/internal/signals"
)

// DefaultPath is read when no --config flag is given and the file exists
const DefaultPath = "configs/portfoliosim.yaml"

// Config is the complete application configuration
type Config struct {
	Backtest portfolio.Config  `yaml:"backtest"`
	Strategy signals.Config    `yaml:"strategy"`
	Risk     RiskConfig        `yaml:"risk"`
	Features cold.EnrichConfig `yaml:"features"`
	Output   OutputConfig      `yaml:"output"`
	Database db.Config         `yaml:"database"`
	Cache    CacheConfig       `yaml:"cache"`
	HTTP     HTTPConfig        `yaml:"http"`
}

// RiskConfig holds the pre-trade limits and how rejections are applied
type RiskConfig struct {
	risk.Limits `yaml:",inline"`
	Mode        string `yaml:"mode"`
}

// OutputConfig controls where artifacts go
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	ProgressEvery int    `yaml:"progress_every"`
	KeepRuns      int    `yaml:"keep_runs"` // 0 keeps every dated run directory
}

// CacheConfig selects the weight cache backend. Redis is used when an
// address is set, memory otherwise.
type CacheConfig struct {
	Enabled           bool          `yaml:"enabled"`
	TTL               time.Duration `yaml:"ttl"`
	MaxEntries        int           `yaml:"max_entries"`
	cache.RedisConfig `yaml:",inline"`
}

// HTTPConfig configures the reporting server
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second
	Burst        int           `yaml:"burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Backtest: portfolio.DefaultConfig(),
		Strategy: signals.DefaultConfig(),
		Risk: RiskConfig{
			Limits: risk.DefaultLimits(),
			Mode:   string(risk.ModeAdvisory),
		},
		Features: cold.DefaultEnrichConfig(),
		Output: OutputConfig{
			Dir:           "out/backtest",
			ProgressEvery: 50,
		},
		Database: db.DefaultConfig(),
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        24 * time.Hour,
			MaxEntries: 64,
		},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8090",
			RateLimit:    20,
			Burst:        40,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// ResolvePath returns flagPath if set, DefaultPath if that file exists, or ""
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &models.ConfigError{Field: path, Reason: fmt.Sprintf("invalid YAML: %v", err)}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies PSIM_*, PG_* and REDIS_ADDR overrides
func (c *Config) ApplyEnv() error {
	floats := []struct {
		env   string
		field string
		dst   *float64
	}{
		{"PSIM_INITIAL_CAPITAL", "backtest.initial_capital", &c.Backtest.InitialCapital},
		{"PSIM_COMMISSION_RATE", "backtest.commission_rate", &c.Backtest.CommissionRate},
		{"PSIM_SLIPPAGE_RATE", "backtest.slippage_rate", &c.Backtest.SlippageRate},
	}
	for _, f := range floats {
		raw := os.Getenv(f.env)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &models.ConfigError{Field: f.field, Reason: fmt.Sprintf("%s=%q is not a number", f.env, raw)}
		}
		*f.dst = v
	}

	if mode := os.Getenv("PSIM_RISK_MODE"); mode != "" {
		c.Risk.Mode = mode
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.Addr = addr
	}
	c.Database.ApplyEnv()
	return nil
}

// Validate checks every section, returning the first *models.ConfigError
func (c *Config) Validate() error {
	if err := c.Backtest.Validate(); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Limits.Validate(); err != nil {
		return err
	}
	if _, err := risk.ParseMode(c.Risk.Mode); err != nil {
		return err
	}
	if c.Features.VolWindow < 2 {
		return &models.ConfigError{Field: "features.vol_window", Reason: fmt.Sprintf("must be at least 2, got %d", c.Features.VolWindow)}
	}
	if c.Features.RSIWindow < 1 {
		return &models.ConfigError{Field: "features.rsi_window", Reason: fmt.Sprintf("must be positive, got %d", c.Features.RSIWindow)}
	}
	if c.Features.PeriodsPerYear < 1 {
		return &models.ConfigError{Field: "features.periods_per_year", Reason: fmt.Sprintf("must be positive, got %d", c.Features.PeriodsPerYear)}
	}
	if c.Output.Dir == "" {
		return &models.ConfigError{Field: "output.dir", Reason: "must not be empty"}
	}
	if c.Output.KeepRuns < 0 {
		return &models.ConfigError{Field: "output.keep_runs", Reason: fmt.Sprintf("must not be negative, got %d", c.Output.KeepRuns)}
	}
	if err := c.Database.Validate(); err != nil {
		return &models.ConfigError{Field: "database", Reason: err.Error()}
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return &models.ConfigError{Field: "cache.ttl", Reason: fmt.Sprintf("must be positive when enabled, got %s", c.Cache.TTL)}
	}
	if c.HTTP.RateLimit < 0 || (c.HTTP.RateLimit > 0 && c.HTTP.Burst < 1) {
		return &models.ConfigError{Field: "http.rate_limit", Reason: "rate limit needs a non-negative rate and a burst of at least 1"}
	}
	return nil
}

// RiskMode returns the parsed risk mode; call after Validate
func (c *Config) RiskMode() risk.Mode {
	mode, _ := risk.ParseMode(c.Risk.Mode)
	return mode
}

// IsConfigError reports whether err is a configuration problem
func IsConfigError(err error) bool {
	return errors.Is(err, models.ErrConfiguration)
}
