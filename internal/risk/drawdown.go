package risk

import (
	"github.com/sawpanic/portfoliosim/internal/models"
)

// Drawdown returns (running peak - latest) / running peak over the full
// curve. An empty curve or a non-positive peak yields 0.
func Drawdown(curve []models.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	for _, p := range curve[1:] {
		if p.Equity > peak {
			peak = p.Equity
		}
	}
	if peak <= 0 {
		return 0
	}
	dd := (peak - curve[len(curve)-1].Equity) / peak
	if dd < 0 {
		return 0
	}
	return dd
}

// MaxDrawdown returns the largest peak-to-trough decline seen anywhere on the curve
func MaxDrawdown(curve []models.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	worst := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
