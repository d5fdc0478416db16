package models

import "time"

// TargetWeight is the fraction of equity a strategy wants in a symbol on a date.
// The sign carries direction.
type TargetWeight struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Weight float64   `json:"target_weight"`
}

// Trade is one executed rebalance. Records are append-only.
type Trade struct {
	Date           time.Time `json:"date" db:"date"`
	Symbol         string    `json:"symbol" db:"symbol"`
	QuantityDelta  float64   `json:"quantity_delta" db:"quantity_delta"`
	ExecutionPrice float64   `json:"execution_price" db:"execution_price"`
	GrossCost      float64   `json:"gross_cost" db:"gross_cost"`
	Commission     float64   `json:"commission" db:"commission"`
	StopDriven     bool      `json:"stop_driven" db:"stop_driven"`
}

// EquityPoint is the post-trade portfolio value for one simulated date
type EquityPoint struct {
	Date   time.Time `json:"date" db:"date"`
	Equity float64   `json:"equity" db:"equity"`
}

// RiskState carries the pre-trade limits plus the drawdown observed so far.
// The limits are fixed for a run; CurrentDrawdown is refreshed after every date.
type RiskState struct {
	MaxPositionFraction float64 `json:"max_position_fraction" yaml:"max_position_fraction"`
	MaxLeverage         float64 `json:"max_leverage" yaml:"max_leverage"`
	MaxDrawdownFraction float64 `json:"max_drawdown_fraction" yaml:"max_drawdown_fraction"`
	CurrentDrawdown     float64 `json:"current_drawdown_fraction" yaml:"-"`
}

// WithDrawdown returns a copy of the state with an updated drawdown
func (s RiskState) WithDrawdown(dd float64) RiskState {
	s.CurrentDrawdown = dd
	return s
}
