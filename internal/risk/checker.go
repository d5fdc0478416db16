package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// Mode controls whether a rejection changes what the engine executes
type Mode string

const (
	ModeAdvisory Mode = "advisory" // record and log, trade anyway
	ModeEnforce  Mode = "enforce"  // skip exposure-increasing trades that fail
)

// ParseMode maps a config string onto a Mode. Empty means advisory.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAdvisory:
		return ModeAdvisory, nil
	case ModeEnforce:
		return ModeEnforce, nil
	default:
		return "", &models.ConfigError{Field: "risk.mode", Reason: fmt.Sprintf("unknown mode %q (want advisory or enforce)", s)}
	}
}

// Check names, in evaluation order
const (
	CheckPositionSize = "position_size"
	CheckLeverage     = "leverage"
	CheckDrawdown     = "drawdown"
)

// Limits are the immutable per-run risk thresholds
type Limits struct {
	MaxPositionFraction float64 `yaml:"max_position_fraction"`
	MaxLeverage         float64 `yaml:"max_leverage"`
	MaxDrawdownFraction float64 `yaml:"max_drawdown_fraction"`
}

// DefaultLimits returns 20% per position, 1x gross and a 10% drawdown cap
func DefaultLimits() Limits {
	return Limits{
		MaxPositionFraction: 0.2,
		MaxLeverage:         1.0,
		MaxDrawdownFraction: 0.1,
	}
}

// Validate rejects limits that would reject or approve everything by accident
func (l Limits) Validate() error {
	if !(l.MaxPositionFraction > 0) {
		return &models.ConfigError{Field: "risk.max_position_fraction", Reason: fmt.Sprintf("must be positive, got %v", l.MaxPositionFraction)}
	}
	if !(l.MaxLeverage > 0) {
		return &models.ConfigError{Field: "risk.max_leverage", Reason: fmt.Sprintf("must be positive, got %v", l.MaxLeverage)}
	}
	if !(l.MaxDrawdownFraction >= 0 && l.MaxDrawdownFraction <= 1) {
		return &models.ConfigError{Field: "risk.max_drawdown_fraction", Reason: fmt.Sprintf("must be in [0, 1], got %v", l.MaxDrawdownFraction)}
	}
	return nil
}

// State seeds a RiskState with these limits and no drawdown
func (l Limits) State() models.RiskState {
	return models.RiskState{
		MaxPositionFraction: l.MaxPositionFraction,
		MaxLeverage:         l.MaxLeverage,
		MaxDrawdownFraction: l.MaxDrawdownFraction,
	}
}

// Request is a proposed trade. PositionNotional holds the current signed
// notional per symbol, excluding the effect of this trade.
type Request struct {
	Symbol           string
	Quantity         float64
	Price            float64
	TotalCapital     float64
	PositionNotional map[string]float64
}

// Decision is the checker's verdict. Check names the first failing check.
type Decision struct {
	Approved bool    `json:"approved"`
	Check    string  `json:"check,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Limit    float64 `json:"limit,omitempty"`
}

// Checker evaluates trades against a RiskState. It holds no mutable state.
type Checker struct{}

// NewChecker creates a pre-trade checker
func NewChecker() *Checker {
	return &Checker{}
}

// Approve runs position size, leverage and drawdown checks in that order and
// stops at the first failure.
func (c *Checker) Approve(req Request, state models.RiskState) Decision {
	notional := math.Abs(req.Quantity * req.Price)

	// Check 1: single trade notional
	sizeLimit := req.TotalCapital * state.MaxPositionFraction
	if notional > sizeLimit {
		return Decision{
			Check:  CheckPositionSize,
			Value:  notional,
			Limit:  sizeLimit,
			Reason: fmt.Sprintf("%s notional %.2f exceeds %.1f%% of capital (%.2f)", req.Symbol, notional, state.MaxPositionFraction*100, sizeLimit),
		}
	}

	// Check 2: gross exposure after the trade
	gross := grossExposure(req.PositionNotional) + notional
	leverageLimit := req.TotalCapital * state.MaxLeverage
	if gross > leverageLimit {
		return Decision{
			Check:  CheckLeverage,
			Value:  gross,
			Limit:  leverageLimit,
			Reason: fmt.Sprintf("gross exposure %.2f would exceed %.2fx capital (%.2f)", gross, state.MaxLeverage, leverageLimit),
		}
	}

	// Check 3: system drawdown
	if state.CurrentDrawdown > state.MaxDrawdownFraction {
		return Decision{
			Check:  CheckDrawdown,
			Value:  state.CurrentDrawdown,
			Limit:  state.MaxDrawdownFraction,
			Reason: fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", state.CurrentDrawdown*100, state.MaxDrawdownFraction*100),
		}
	}

	return Decision{Approved: true}
}

// grossExposure sums absolute notionals in symbol order so the float result
// does not depend on map iteration.
func grossExposure(positions map[string]float64) float64 {
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	total := 0.0
	for _, s := range symbols {
		total += math.Abs(positions[s])
	}
	return total
}
