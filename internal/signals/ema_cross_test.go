package signals

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfoliosim/internal/models"
)

var day0 = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func row(day int, symbol string, close float64, vol *float64) models.FeatureRow {
	return models.FeatureRow{
		PriceBar: models.PriceBar{
			Date: day0.AddDate(0, 0, day), Symbol: symbol,
			Open: close, High: close, Low: close, Close: close, Volume: 1,
		},
		Volatility: vol,
	}
}

func weightsByKey(ws []models.TargetWeight) map[models.Key]float64 {
	out := make(map[models.Key]float64, len(ws))
	for _, w := range ws {
		out[models.KeyOf(w.Date, w.Symbol)] = w.Weight
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []Config{
		{FastWindow: 0, SlowWindow: 30, ExposureCap: 0.95, VolFloor: 1e-4},
		{FastWindow: 30, SlowWindow: 30, ExposureCap: 0.95, VolFloor: 1e-4},
		{FastWindow: 40, SlowWindow: 30, ExposureCap: 0.95, VolFloor: 1e-4},
		{FastWindow: 10, SlowWindow: 30, ExposureCap: 1.5, VolFloor: 1e-4},
		{FastWindow: 10, SlowWindow: 30, ExposureCap: 0.95, VolFloor: 0},
	}
	for _, cfg := range bad {
		err := cfg.Validate()
		require.Error(t, err, "%+v", cfg)
		assert.True(t, errors.Is(err, models.ErrConfiguration))
	}
}

func TestEMACross_SingleSymbolUsesExposureCap(t *testing.T) {
	s, err := NewEMACross(Config{FastWindow: 2, SlowWindow: 5, ExposureCap: 0.95, VolFloor: 1e-4})
	require.NoError(t, err)

	history := []models.FeatureRow{
		row(0, "AAPL", 40, nil),
		row(1, "AAPL", 50, models.Float(0.3)),
	}
	ws, err := s.TargetWeights(history)
	require.NoError(t, err)
	require.Len(t, ws, 2)

	// day 0: both EMAs equal the seed, no signal
	assert.Equal(t, 0.0, ws[0].Weight)
	// day 1: price jumped, fast above slow
	assert.InDelta(t, 0.95, ws[1].Weight, 1e-12)
}

func TestEMACross_InverseVolatilityWeights(t *testing.T) {
	s, err := NewEMACross(Config{FastWindow: 2, SlowWindow: 4, ExposureCap: 0.95, VolFloor: 1e-4})
	require.NoError(t, err)

	history := []models.FeatureRow{
		row(0, "AAA", 10, models.Float(0.1)),
		row(0, "BBB", 10, models.Float(0.2)),
		row(0, "CCC", 10, models.Float(0.4)),
		row(1, "AAA", 12, models.Float(0.1)),
		row(1, "BBB", 12, models.Float(0.2)),
		row(1, "CCC", 8, models.Float(0.4)), // falling, inactive
	}
	ws, err := s.TargetWeights(history)
	require.NoError(t, err)

	byKey := weightsByKey(ws)
	d1 := day0.AddDate(0, 0, 1)

	// inverse vols 10 and 5 → 2/3 and 1/3 of 0.95
	assert.InDelta(t, 0.95*2.0/3.0, byKey[models.KeyOf(d1, "AAA")], 1e-12)
	assert.InDelta(t, 0.95*1.0/3.0, byKey[models.KeyOf(d1, "BBB")], 1e-12)
	assert.Equal(t, 0.0, byKey[models.KeyOf(d1, "CCC")])

	total := 0.0
	for _, w := range ws {
		total += w.Weight
	}
	assert.InDelta(t, 0.95, total, 1e-12)
}

func TestEMACross_MissingVolatilityImputedFromCrossSection(t *testing.T) {
	s, err := NewEMACross(Config{FastWindow: 2, SlowWindow: 4, ExposureCap: 1.0, VolFloor: 1e-4})
	require.NoError(t, err)

	history := []models.FeatureRow{
		row(0, "AAA", 10, nil),
		row(0, "BBB", 10, nil),
		row(0, "CCC", 10, nil),
		row(1, "AAA", 12, nil),               // imputed with mean(0.2, 0.6) = 0.4
		row(1, "BBB", 12, models.Float(0.2)), // active
		row(1, "CCC", 8, models.Float(0.6)),  // inactive but counts toward the mean
	}
	ws, err := s.TargetWeights(history)
	require.NoError(t, err)

	byKey := weightsByKey(ws)
	d1 := day0.AddDate(0, 0, 1)
	// inverse vols 2.5 and 5 → 1/3 and 2/3
	assert.InDelta(t, 1.0/3.0, byKey[models.KeyOf(d1, "AAA")], 1e-12)
	assert.InDelta(t, 2.0/3.0, byKey[models.KeyOf(d1, "BBB")], 1e-12)
	assert.Empty(t, s.DegenerateDates())
}

func TestEMACross_NoVolatilityFallsBackToEqualWeight(t *testing.T) {
	s, err := NewEMACross(Config{FastWindow: 2, SlowWindow: 4, ExposureCap: 0.9, VolFloor: 1e-4})
	require.NoError(t, err)

	history := []models.FeatureRow{
		row(0, "AAA", 10, nil),
		row(0, "BBB", 10, nil),
		row(1, "AAA", 11, nil),
		row(1, "BBB", 13, nil),
	}
	ws, err := s.TargetWeights(history)
	require.NoError(t, err)

	byKey := weightsByKey(ws)
	d1 := day0.AddDate(0, 0, 1)
	assert.InDelta(t, 0.45, byKey[models.KeyOf(d1, "AAA")], 1e-12)
	assert.InDelta(t, 0.45, byKey[models.KeyOf(d1, "BBB")], 1e-12)
	assert.Equal(t, []time.Time{d1}, s.DegenerateDates())
}

func TestEMACross_VolatilityFloor(t *testing.T) {
	s, err := NewEMACross(Config{FastWindow: 2, SlowWindow: 4, ExposureCap: 1.0, VolFloor: 1e-4})
	require.NoError(t, err)

	history := []models.FeatureRow{
		row(0, "AAA", 10, models.Float(0)),
		row(0, "BBB", 10, models.Float(0)),
		row(1, "AAA", 11, models.Float(0)),
		row(1, "BBB", 11, models.Float(1e-4)),
	}
	ws, err := s.TargetWeights(history)
	require.NoError(t, err)

	for _, w := range ws {
		assert.False(t, math.IsInf(w.Weight, 0) || math.IsNaN(w.Weight))
	}
	byKey := weightsByKey(ws)
	d1 := day0.AddDate(0, 0, 1)
	assert.InDelta(t, 0.5, byKey[models.KeyOf(d1, "AAA")], 1e-12)
}

func TestEMACross_ZeroActiveIsAllZero(t *testing.T) {
	s, err := NewEMACross(DefaultConfig())
	require.NoError(t, err)

	history := []models.FeatureRow{
		row(0, "AAA", 10, models.Float(0.2)),
		row(1, "AAA", 9, models.Float(0.2)),
		row(2, "AAA", 8, models.Float(0.2)),
	}
	ws, err := s.TargetWeights(history)
	require.NoError(t, err)
	for _, w := range ws {
		assert.Equal(t, 0.0, w.Weight)
	}
}

func TestEMACross_RejectsDuplicateDates(t *testing.T) {
	s, err := NewEMACross(DefaultConfig())
	require.NoError(t, err)

	_, err = s.TargetWeights([]models.FeatureRow{row(0, "AAA", 10, nil), row(0, "AAA", 11, nil)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataQuality))
}

func TestNormalizeDay(t *testing.T) {
	t.Run("over unity rescales to one", func(t *testing.T) {
		w := []float64{0.6, 0.6}
		gross, scaled := NormalizeDay(w)
		assert.True(t, scaled)
		assert.InDelta(t, 1.2, gross, 1e-12)
		assert.InDelta(t, 0.5, w[0], 1e-12)
		assert.InDelta(t, 0.5, w[1], 1e-12)
	})

	t.Run("at or below unity is bit-identical", func(t *testing.T) {
		w := []float64{0.3, -0.2, 0.1 + 0.2}
		before := append([]float64(nil), w...)
		_, scaled := NormalizeDay(w)
		assert.False(t, scaled)
		for i := range w {
			assert.Equal(t, math.Float64bits(before[i]), math.Float64bits(w[i]))
		}
	})

	t.Run("gross uses absolute values", func(t *testing.T) {
		w := []float64{0.8, -0.8}
		_, scaled := NormalizeDay(w)
		assert.True(t, scaled)
		assert.InDelta(t, -0.5, w[1], 1e-12)
	})
}

func TestPrecomputed(t *testing.T) {
	p := NewPrecomputed([]models.TargetWeight{
		{Date: day0.AddDate(0, 0, 1), Symbol: "B", Weight: 0.2},
		{Date: day0, Symbol: "A", Weight: 1},
	})
	ws, err := p.TargetWeights(nil)
	require.NoError(t, err)
	assert.Equal(t, "A", ws[0].Symbol)
	assert.Equal(t, "precomputed", p.Name())

	_, err = NewPrecomputed([]models.TargetWeight{{Date: day0, Symbol: "A", Weight: math.NaN()}}).TargetWeights(nil)
	assert.True(t, errors.Is(err, models.ErrDataQuality))
}
