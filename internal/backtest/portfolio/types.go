package portfolio

import (
	"fmt"
	"time"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// Config represents the constructor-time simulation parameters
type Config struct {
	InitialCapital  float64 `yaml:"initial_capital" json:"initial_capital"`
	CommissionRate  float64 `yaml:"commission_rate" json:"commission_rate"`
	SlippageRate    float64 `yaml:"slippage_rate" json:"slippage_rate"`
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`         // fixed stop below entry
	TrailingStopPct float64 `yaml:"trailing_stop_pct" json:"trailing_stop_pct"` // trailing stop below peak
}

// DefaultConfig returns $100k with 10bps commission and 5bps slippage
func DefaultConfig() Config {
	return Config{
		InitialCapital:  100000,
		CommissionRate:  0.001,
		SlippageRate:    0.0005,
		StopLossPct:     0.02,
		TrailingStopPct: 0.05,
	}
}

// Validate checks the config before any simulation state is created
func (c Config) Validate() error {
	if !(c.InitialCapital > 0) {
		return &models.ConfigError{Field: "backtest.initial_capital", Reason: fmt.Sprintf("must be positive, got %v", c.InitialCapital)}
	}
	if !(c.CommissionRate >= 0) {
		return &models.ConfigError{Field: "backtest.commission_rate", Reason: fmt.Sprintf("must be non-negative, got %v", c.CommissionRate)}
	}
	if !(c.SlippageRate >= 0) {
		return &models.ConfigError{Field: "backtest.slippage_rate", Reason: fmt.Sprintf("must be non-negative, got %v", c.SlippageRate)}
	}
	if !(c.StopLossPct >= 0 && c.StopLossPct < 1) {
		return &models.ConfigError{Field: "backtest.stop_loss_pct", Reason: fmt.Sprintf("must be in [0, 1), got %v", c.StopLossPct)}
	}
	if !(c.TrailingStopPct >= 0 && c.TrailingStopPct < 1) {
		return &models.ConfigError{Field: "backtest.trailing_stop_pct", Reason: fmt.Sprintf("must be in [0, 1), got %v", c.TrailingStopPct)}
	}
	return nil
}

// Position is the engine-owned state for one non-flat symbol.
// A flat symbol has no Position at all.
type Position struct {
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	PeakPrice  float64 `json:"peak_price"` // running trough for shorts
}

// Trade kinds reported to observers
const (
	KindEntry     = "entry"
	KindExit      = "exit"
	KindRebalance = "rebalance"
	KindFlip      = "flip"
	KindStop      = "stop"
)

// StopEvent records a stop that forced a position flat
type StopEvent struct {
	Date       time.Time `json:"date"`
	Symbol     string    `json:"symbol"`
	Reason     string    `json:"reason"`
	Close      float64   `json:"close"`
	EntryPrice float64   `json:"entry_price"`
	PeakPrice  float64   `json:"peak_price"`
}

// Advisory records a pre-trade rejection. Enforced is true when the trade was skipped.
type Advisory struct {
	Date     time.Time `json:"date"`
	Symbol   string    `json:"symbol"`
	Check    string    `json:"check"`
	Reason   string    `json:"reason"`
	Enforced bool      `json:"enforced"`
}

// Result is the outcome of one simulation run. When Complete is false the
// run failed: Trades is nil and EquityCurve only covers dates before the failure.
type Result struct {
	RunID           string               `json:"run_id"`
	Strategy        string               `json:"strategy"`
	Config          Config               `json:"config"`
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      time.Time            `json:"finished_at"`
	Complete        bool                 `json:"complete"`
	Error           string               `json:"error,omitempty"`
	EquityCurve     []models.EquityPoint `json:"-"`
	Trades          []models.Trade       `json:"-"`
	StopEvents      []StopEvent          `json:"stop_events"`
	Advisories      []Advisory           `json:"advisories"`
	NormalizedDates []time.Time          `json:"normalized_dates"`
	Degeneracies    []time.Time          `json:"degenerate_dates"`
	Summary         *Summary             `json:"summary,omitempty"`
}

// Status is "complete" or "incomplete"
func (r *Result) Status() string {
	if r.Complete {
		return "complete"
	}
	return "incomplete"
}
