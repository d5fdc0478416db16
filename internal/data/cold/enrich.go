package cold

import (
	"math"

	"github.com/sawpanic/portfoliosim/internal/domain/indicators"
	"github.com/sawpanic/portfoliosim/internal/models"
)

// EnrichConfig controls indicator computation for columns absent from the input
type EnrichConfig struct {
	VolWindow      int `yaml:"vol_window"`
	RSIWindow      int `yaml:"rsi_window"`
	PeriodsPerYear int `yaml:"periods_per_year"`
}

// DefaultEnrichConfig mirrors the feature pipeline the datasets come from
func DefaultEnrichConfig() EnrichConfig {
	return EnrichConfig{
		VolWindow:      20,
		RSIWindow:      14,
		PeriodsPerYear: indicators.TradingDaysPerYear,
	}
}

// Enrich fills returns, volatility and RSI per symbol for any of those
// columns the source file did not carry. Columns that were present are left
// exactly as read, including their blanks. It returns the columns it filled.
func Enrich(ds *Dataset, cfg EnrichConfig) []string {
	needReturns := !ds.HasColumn(ColReturns)
	needVol := !ds.HasColumn(ColVolatility)
	needRSI := !ds.HasColumn(ColRSI)
	if !needReturns && !needVol && !needRSI {
		return nil
	}

	// rows are date-major; collect per-symbol indices in date order
	bySymbol := make(map[string][]int)
	for i, r := range ds.Rows {
		bySymbol[r.Symbol] = append(bySymbol[r.Symbol], i)
	}

	for _, idx := range bySymbol {
		closes := make([]float64, len(idx))
		for k, i := range idx {
			closes[k] = ds.Rows[i].Close
		}

		returns := indicators.LogReturns(closes)
		if needReturns {
			assign(ds.Rows, idx, returns, func(r *models.FeatureRow, v *float64) { r.Returns = v })
		}
		if needVol {
			vol := indicators.AnnualizedVolatility(returns, cfg.VolWindow, cfg.PeriodsPerYear)
			assign(ds.Rows, idx, vol, func(r *models.FeatureRow, v *float64) { r.Volatility = v })
		}
		if needRSI {
			rsi := indicators.RollingRSI(closes, cfg.RSIWindow)
			assign(ds.Rows, idx, rsi, func(r *models.FeatureRow, v *float64) { r.RSI = v })
		}
	}

	var filled []string
	for _, c := range []struct {
		name string
		need bool
	}{{ColReturns, needReturns}, {ColVolatility, needVol}, {ColRSI, needRSI}} {
		if c.need {
			ds.columns[c.name] = true
			filled = append(filled, c.name)
		}
	}
	return filled
}

func assign(rows []models.FeatureRow, idx []int, series []float64, set func(*models.FeatureRow, *float64)) {
	for k, i := range idx {
		if math.IsNaN(series[k]) {
			set(&rows[i], nil)
			continue
		}
		set(&rows[i], models.Float(series[k]))
	}
}
