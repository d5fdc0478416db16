package signals

import (
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// Strategy turns a feature history into per-(date, symbol) target weights.
// Any implementation can drive the backtest engine.
type Strategy interface {
	Name() string
	TargetWeights(history []models.FeatureRow) ([]models.TargetWeight, error)
}

// NormalizeDay rescales a day's weights in place so that Σ|w| equals 1.0
// when it exceeds 1.0. Below or at unity the slice is left untouched.
// It returns the gross weight before scaling and whether scaling happened.
func NormalizeDay(weights []float64) (float64, bool) {
	gross := 0.0
	for _, w := range weights {
		gross += math.Abs(w)
	}
	if gross <= 1.0 {
		return gross, false
	}
	for i := range weights {
		weights[i] /= gross
	}
	return gross, true
}

// Precomputed serves weights produced outside this process
type Precomputed struct {
	weights []models.TargetWeight
}

// NewPrecomputed wraps an externally supplied weight table
func NewPrecomputed(weights []models.TargetWeight) *Precomputed {
	out := make([]models.TargetWeight, len(weights))
	copy(out, weights)
	sortWeights(out)
	return &Precomputed{weights: out}
}

func (p *Precomputed) Name() string { return "precomputed" }

// TargetWeights ignores the history and returns the supplied table
func (p *Precomputed) TargetWeights(_ []models.FeatureRow) ([]models.TargetWeight, error) {
	for _, w := range p.weights {
		if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) {
			return nil, &models.DataQualityError{Date: w.Date, Symbol: w.Symbol, Reason: fmt.Sprintf("non-finite target weight %v", w.Weight)}
		}
	}
	out := make([]models.TargetWeight, len(p.weights))
	copy(out, p.weights)
	return out, nil
}

func sortWeights(ws []models.TargetWeight) {
	sort.SliceStable(ws, func(i, j int) bool {
		if !ws[i].Date.Equal(ws[j].Date) {
			return ws[i].Date.Before(ws[j].Date)
		}
		return ws[i].Symbol < ws[j].Symbol
	})
}
