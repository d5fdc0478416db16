package portfolio

import (
	"math"

	"github.com/sawpanic/portfoliosim/internal/domain/indicators"
	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/risk"
)

// Summary is the headline performance of a completed run
type Summary struct {
	InitialCapital  float64 `json:"initial_capital"`
	FinalEquity     float64 `json:"final_equity"`
	TotalReturn     float64 `json:"total_return"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	Dates           int     `json:"dates"`
	TradeCount      int     `json:"trade_count"`
	StopCount       int     `json:"stop_count"`
	RiskRejections  int     `json:"risk_rejections"`
	TotalCommission float64 `json:"total_commission"`
}

// Summarize computes the performance summary from a run's curve and ledger
func Summarize(initialCapital float64, curve []models.EquityPoint, trades []models.Trade, stops, rejections int) *Summary {
	s := &Summary{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		Dates:          len(curve),
		TradeCount:     len(trades),
		StopCount:      stops,
		RiskRejections: rejections,
		MaxDrawdown:    risk.MaxDrawdown(curve),
		SharpeRatio:    SharpeRatio(curve),
	}
	if len(curve) > 0 {
		s.FinalEquity = curve[len(curve)-1].Equity
	}
	if initialCapital > 0 {
		s.TotalReturn = s.FinalEquity/initialCapital - 1
	}
	for _, t := range trades {
		s.TotalCommission += t.Commission
	}
	return s
}

// SharpeRatio annualizes mean over sample standard deviation of daily equity
// returns. It is zero for fewer than two returns or a flat curve.
func SharpeRatio(curve []models.EquityPoint) float64 {
	if len(curve) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)-1))
	if std < 1e-12 {
		return 0
	}
	return mean / std * math.Sqrt(indicators.TradingDaysPerYear)
}
