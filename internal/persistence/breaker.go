package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// BreakerConfig controls when the sink stops trying
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32        // probes allowed while half-open
	Interval            time.Duration // closed-state count reset
	Timeout             time.Duration // open-state duration before probing
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig opens after 3 consecutive failures for 30s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "run_sink",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// BreakerRepo guards a RunRepo with a circuit breaker so a failing database
// fails fast instead of stalling every run.
type BreakerRepo struct {
	next    RunRepo
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerRepo wraps next
func NewBreakerRepo(next RunRepo, config BreakerConfig) *BreakerRepo {
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// caller mistakes say nothing about database health
			return err == nil || err == ErrNotFound || err == ErrIncompleteRun
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Sink circuit breaker state changed")
		},
	}
	return &BreakerRepo{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state (closed, half-open, open)
func (r *BreakerRepo) State() string {
	return r.breaker.State().String()
}

// IsOpen reports whether err came from an open or saturated breaker
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

func (r *BreakerRepo) SaveRun(ctx context.Context, run RunRecord, trades []models.Trade, curve []models.EquityPoint) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.next.SaveRun(ctx, run, trades, curve)
	})
	return err
}

func (r *BreakerRepo) LatestRun(ctx context.Context) (*RunRecord, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.LatestRun(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.(*RunRecord), nil
}

func (r *BreakerRepo) Trades(ctx context.Context, runID string) ([]models.Trade, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.Trades(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.Trade), nil
}

func (r *BreakerRepo) EquityCurve(ctx context.Context, runID string) ([]models.EquityPoint, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.next.EquityCurve(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.EquityPoint), nil
}
