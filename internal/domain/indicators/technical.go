package indicators

import (
	"math"
)

// Series values are NaN wherever an indicator is undefined (warm-up rows,
// zero-variance windows). Callers convert NaN to "absent", never to zero.

// TradingDaysPerYear annualizes daily volatility
const TradingDaysPerYear = 252

// EMAAlpha is the smoothing factor for a span-style window: 2/(window+1)
func EMAAlpha(window int) float64 {
	return 2.0 / (float64(window) + 1.0)
}

// EMA computes ema_t = α·close_t + (1-α)·ema_{t-1}, seeded with the first close
func EMA(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}

	alpha := EMAAlpha(window)
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = alpha*closes[i] + (1-alpha)*out[i-1]
	}
	return out
}

// EMAState is the running form of EMA for callers that iterate row by row
type EMAState struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewEMAState creates a running EMA for the given window
func NewEMAState(window int) *EMAState {
	return &EMAState{alpha: EMAAlpha(window)}
}

// Update folds one close into the average and returns the new value
func (s *EMAState) Update(close float64) float64 {
	if !s.seeded {
		s.value = close
		s.seeded = true
		return s.value
	}
	s.value = s.alpha*close + (1-s.alpha)*s.value
	return s.value
}

// Value returns the current average
func (s *EMAState) Value() float64 { return s.value }

// LogReturns computes ln(close_t / close_{t-1}); the first element is NaN
func LogReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i == 0 || closes[i-1] <= 0 || closes[i] <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(closes[i] / closes[i-1])
	}
	return out
}

// RollingRSI uses simple rolling means of gains and losses over window price changes
func RollingRSI(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 || len(closes) <= window {
		return out
	}

	for i := window; i < len(closes); i++ {
		gain, loss := 0.0, 0.0
		for j := i - window + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if change > 0 {
				gain += change
			} else {
				loss -= change
			}
		}
		gain /= float64(window)
		loss /= float64(window)

		switch {
		case loss == 0 && gain == 0:
			// undefined, stays NaN
		case loss == 0:
			out[i] = 100.0
		default:
			rs := gain / loss
			out[i] = 100.0 - (100.0 / (1.0 + rs))
		}
	}
	return out
}

// AnnualizedVolatility is the rolling sample standard deviation of returns
// scaled by sqrt(periodsPerYear). A window containing NaN yields NaN.
func AnnualizedVolatility(returns []float64, window, periodsPerYear int) []float64 {
	out := make([]float64, len(returns))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 {
		return out
	}

	scale := math.Sqrt(float64(periodsPerYear))
	for i := window - 1; i < len(returns); i++ {
		sample := returns[i-window+1 : i+1]
		sd, ok := sampleStdDev(sample)
		if !ok {
			continue
		}
		out[i] = sd * scale
	}
	return out
}

func sampleStdDev(xs []float64) (float64, bool) {
	if len(xs) < 2 {
		return 0, false
	}
	mean := 0.0
	for _, x := range xs {
		if math.IsNaN(x) {
			return 0, false
		}
		mean += x
	}
	mean /= float64(len(xs))

	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1)), true
}
