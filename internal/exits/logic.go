package exits

import (
	"fmt"
)

// ExitReason represents the reason for exit with precedence
type ExitReason int

const (
	NoExit       ExitReason = iota
	HardStop                // Highest precedence: fixed stop-loss from entry
	TrailingStop            // Price gave back the trailing fraction from the running peak
)

func (er ExitReason) String() string {
	switch er {
	case NoExit:
		return "no_exit"
	case HardStop:
		return "hard_stop"
	case TrailingStop:
		return "trailing_stop"
	default:
		return "unknown"
	}
}

// ExitInputs describes an open position at the current close. The same
// stop formula applies to long and short positions.
type ExitInputs struct {
	Symbol       string
	EntryPrice   float64
	PeakPrice    float64
	CurrentPrice float64
}

// ExitResult contains the exit evaluation outcome and the updated peak
type ExitResult struct {
	Symbol      string     `json:"symbol"`
	ShouldExit  bool       `json:"should_exit"`
	ExitReason  ExitReason `json:"exit_reason"`
	TriggeredBy string     `json:"triggered_by"`
	PeakPrice   float64    `json:"peak_price"`
	StopPrice   float64    `json:"stop_price"`
	TrailPrice  float64    `json:"trail_price"`
}

// ExitConfig contains the stop fractions
type ExitConfig struct {
	EnableHardStop     bool    `yaml:"enable_hard_stop"`
	StopLossFraction   float64 `yaml:"stop_loss_fraction"`
	EnableTrailingStop bool    `yaml:"enable_trailing_stop"`
	TrailingFraction   float64 `yaml:"trailing_fraction"`
}

// DefaultExitConfig returns a 2% fixed stop and a 5% trailing stop
func DefaultExitConfig() *ExitConfig {
	return &ExitConfig{
		EnableHardStop:     true,
		StopLossFraction:   0.02,
		EnableTrailingStop: true,
		TrailingFraction:   0.05,
	}
}

// ExitEvaluator evaluates stop conditions with hard-stop precedence
type ExitEvaluator struct {
	config *ExitConfig
}

// NewExitEvaluator creates a new exit evaluator
func NewExitEvaluator(config *ExitConfig) *ExitEvaluator {
	if config == nil {
		config = DefaultExitConfig()
	}
	return &ExitEvaluator{config: config}
}

// Config returns the evaluator's configuration
func (ee *ExitEvaluator) Config() ExitConfig {
	return *ee.config
}

// EvaluateExit first folds the current price into the running peak, then
// checks the fixed stop and the trailing stop against it. The returned peak
// never decreases.
func (ee *ExitEvaluator) EvaluateExit(inputs ExitInputs) ExitResult {
	result := ExitResult{
		Symbol:    inputs.Symbol,
		PeakPrice: inputs.PeakPrice,
	}

	if result.PeakPrice <= 0 {
		result.PeakPrice = inputs.EntryPrice
	}
	if inputs.CurrentPrice > result.PeakPrice {
		result.PeakPrice = inputs.CurrentPrice
	}

	result.StopPrice = inputs.EntryPrice * (1 - ee.config.StopLossFraction)
	result.TrailPrice = result.PeakPrice * (1 - ee.config.TrailingFraction)

	// Hard stop (highest precedence)
	if ee.config.EnableHardStop && inputs.CurrentPrice < result.StopPrice {
		result.ShouldExit = true
		result.ExitReason = HardStop
		result.TriggeredBy = fmt.Sprintf("price %.4f below stop %.4f (entry %.4f)",
			inputs.CurrentPrice, result.StopPrice, inputs.EntryPrice)
		return result
	}

	if ee.config.EnableTrailingStop && inputs.CurrentPrice < result.TrailPrice {
		result.ShouldExit = true
		result.ExitReason = TrailingStop
		result.TriggeredBy = fmt.Sprintf("price %.4f below trail %.4f (%.1f%% from %.4f)",
			inputs.CurrentPrice, result.TrailPrice, ee.config.TrailingFraction*100, result.PeakPrice)
	}

	return result
}
