package signals

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfoliosim/internal/domain/indicators"
	"github.com/sawpanic/portfoliosim/internal/models"
)

// Config holds the EMA crossover and risk-parity parameters
type Config struct {
	FastWindow  int     `yaml:"fast_window"`
	SlowWindow  int     `yaml:"slow_window"`
	ExposureCap float64 `yaml:"exposure_cap"` // total weight left after the execution buffer
	VolFloor    float64 `yaml:"vol_floor"`
}

// DefaultConfig returns the reference 10/30 crossover with a 0.95 exposure cap
func DefaultConfig() Config {
	return Config{
		FastWindow:  10,
		SlowWindow:  30,
		ExposureCap: 0.95,
		VolFloor:    1e-4,
	}
}

// Validate rejects windows and caps the generator cannot work with
func (c Config) Validate() error {
	if c.FastWindow <= 0 {
		return &models.ConfigError{Field: "strategy.fast_window", Reason: fmt.Sprintf("must be positive, got %d", c.FastWindow)}
	}
	if c.SlowWindow <= 0 {
		return &models.ConfigError{Field: "strategy.slow_window", Reason: fmt.Sprintf("must be positive, got %d", c.SlowWindow)}
	}
	if c.FastWindow >= c.SlowWindow {
		return &models.ConfigError{Field: "strategy.fast_window",
			Reason: fmt.Sprintf("fast window %d must be below slow window %d", c.FastWindow, c.SlowWindow)}
	}
	if !(c.ExposureCap > 0 && c.ExposureCap <= 1) {
		return &models.ConfigError{Field: "strategy.exposure_cap", Reason: fmt.Sprintf("must be in (0, 1], got %v", c.ExposureCap)}
	}
	if !(c.VolFloor > 0) {
		return &models.ConfigError{Field: "strategy.vol_floor", Reason: fmt.Sprintf("must be positive, got %v", c.VolFloor)}
	}
	return nil
}

// EMACross goes long every symbol whose fast EMA is above its slow EMA and
// splits the exposure cap among them by inverse volatility.
type EMACross struct {
	cfg        Config
	logger     zerolog.Logger
	degenerate []time.Time
}

// NewEMACross validates the config and builds the generator
func NewEMACross(cfg Config) (*EMACross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EMACross{cfg: cfg, logger: log.Logger}, nil
}

// WithLogger replaces the logger used for degeneracy warnings
func (s *EMACross) WithLogger(logger zerolog.Logger) *EMACross {
	s.logger = logger
	return s
}

func (s *EMACross) Name() string {
	return fmt.Sprintf("ema_cross_%d_%d", s.cfg.FastWindow, s.cfg.SlowWindow)
}

// DegenerateDates lists the dates of the last call where no volatility was
// available for any symbol and active symbols were equal-weighted instead.
func (s *EMACross) DegenerateDates() []time.Time {
	return append([]time.Time(nil), s.degenerate...)
}

type dayRow struct {
	symbol string
	active bool
	vol    *float64
}

// TargetWeights emits one weight per input (date, symbol), ordered by date then symbol
func (s *EMACross) TargetWeights(history []models.FeatureRow) ([]models.TargetWeight, error) {
	s.degenerate = s.degenerate[:0]

	rows := make([]models.FeatureRow, len(history))
	copy(rows, history)

	// pass 1: per symbol in date order, run both EMAs and derive the signal
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	var (
		fast, slow *indicators.EMAState
		current    string
	)
	for i := range rows {
		r := &rows[i]
		if r.Close <= 0 {
			return nil, &models.DataQualityError{Date: r.Date, Symbol: r.Symbol, Reason: fmt.Sprintf("non-positive close %v", r.Close)}
		}
		if i == 0 || r.Symbol != current {
			current = r.Symbol
			fast = indicators.NewEMAState(s.cfg.FastWindow)
			slow = indicators.NewEMAState(s.cfg.SlowWindow)
		} else if !rows[i-1].Date.Before(r.Date) {
			return nil, &models.DataQualityError{Date: r.Date, Symbol: r.Symbol, Reason: "duplicate or unordered date in history"}
		}
		f := fast.Update(r.Close)
		sl := slow.Update(r.Close)
		r.EMAFast = models.Float(f)
		r.EMASlow = models.Float(sl)
		r.Signal = 0
		if f > sl {
			r.Signal = 1
		}
	}

	// pass 2: per date, weight the active symbols
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Symbol < rows[j].Symbol
	})

	out := make([]models.TargetWeight, 0, len(rows))
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].Date.Equal(rows[start].Date) {
			end++
		}

		day := make([]dayRow, 0, end-start)
		for _, r := range rows[start:end] {
			day = append(day, dayRow{symbol: r.Symbol, active: r.Signal == 1, vol: r.Volatility})
		}
		for i, w := range s.weighDay(rows[start].Date, day) {
			out = append(out, models.TargetWeight{Date: rows[start].Date, Symbol: day[i].symbol, Weight: w})
		}
		start = end
	}

	return out, nil
}

// weighDay returns weights aligned with day. Inactive symbols get zero.
func (s *EMACross) weighDay(date time.Time, day []dayRow) []float64 {
	weights := make([]float64, len(day))

	active := 0
	volSum, volCount := 0.0, 0
	for _, r := range day {
		if r.active {
			active++
		}
		if r.vol != nil {
			volSum += *r.vol
			volCount++
		}
	}
	if active == 0 {
		return weights
	}

	if volCount == 0 {
		s.degenerate = append(s.degenerate, date)
		s.logger.Warn().
			Str("date", date.Format(models.DateLayout)).
			Int("active", active).
			Msg("No volatility on date, equal-weighting active symbols")
		for i, r := range day {
			if r.active {
				weights[i] = s.cfg.ExposureCap / float64(active)
			}
		}
		return weights
	}

	crossMean := volSum / float64(volCount)
	invSum := 0.0
	for i, r := range day {
		if !r.active {
			continue
		}
		vol := crossMean
		if r.vol != nil {
			vol = *r.vol
		}
		if vol < s.cfg.VolFloor {
			vol = s.cfg.VolFloor
		}
		weights[i] = 1.0 / vol
		invSum += weights[i]
	}
	for i := range weights {
		weights[i] = weights[i] / invSum * s.cfg.ExposureCap
	}
	return weights
}
