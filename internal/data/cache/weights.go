package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/signals"
)

// KeyPrefix namespaces weight entries in a shared store
const KeyPrefix = "psim:weights:"

const opTimeout = 3 * time.Second

// Recorder receives hit and miss counts per backend
type Recorder interface {
	RecordCacheHit(backend string)
	RecordCacheMiss(backend string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string)  {}
func (nopRecorder) RecordCacheMiss(string) {}

type weightEntry struct {
	Weights         []models.TargetWeight `json:"weights"`
	DegenerateDates []time.Time           `json:"degenerate_dates,omitempty"`
}

// Key digests the strategy identity and every history row
func Key(history []models.FeatureRow, strategy string, params interface{}) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	header := struct {
		Strategy string      `json:"strategy"`
		Params   interface{} `json:"params"`
	}{strategy, params}
	if err := enc.Encode(header); err != nil {
		return "", fmt.Errorf("failed to digest strategy params: %w", err)
	}
	for _, row := range history {
		if err := enc.Encode(row); err != nil {
			return "", fmt.Errorf("failed to digest %s %s: %w", row.Date.Format(models.DateLayout), row.Symbol, err)
		}
	}
	return KeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// CachedStrategy serves target weights from a Store and computes them with
// the wrapped strategy on a miss. Store failures degrade to recomputation.
type CachedStrategy struct {
	next       signals.Strategy
	params     interface{}
	store      Store
	ttl        time.Duration
	recorder   Recorder
	logger     zerolog.Logger
	degenerate []time.Time
}

// Option configures a CachedStrategy
type Option func(*CachedStrategy)

// WithRecorder reports hits and misses
func WithRecorder(r Recorder) Option {
	return func(c *CachedStrategy) { c.recorder = r }
}

// WithLogger replaces the logger used for store failures
func WithLogger(l zerolog.Logger) Option {
	return func(c *CachedStrategy) { c.logger = l }
}

// NewCachedStrategy wraps next. params must capture everything besides the
// history that changes next's output.
func NewCachedStrategy(next signals.Strategy, params interface{}, store Store, ttl time.Duration, opts ...Option) *CachedStrategy {
	c := &CachedStrategy{
		next:     next,
		params:   params,
		store:    store,
		ttl:      ttl,
		recorder: nopRecorder{},
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedStrategy) Name() string { return c.next.Name() }

// DegenerateDates returns the degenerate dates of the last call, cached or computed
func (c *CachedStrategy) DegenerateDates() []time.Time {
	return append([]time.Time(nil), c.degenerate...)
}

// TargetWeights returns cached weights for an identical history, or computes and stores them
func (c *CachedStrategy) TargetWeights(history []models.FeatureRow) ([]models.TargetWeight, error) {
	backend := c.store.Backend()
	key, err := Key(history, c.next.Name(), c.params)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Weight cache bypassed")
		return c.compute(history)
	}

	if cached, ok := c.lookup(key); ok {
		c.recorder.RecordCacheHit(backend)
		c.degenerate = cached.DegenerateDates
		c.logger.Debug().Str("backend", backend).Str("key", key).Int("weights", len(cached.Weights)).Msg("Weight cache hit")
		return cached.Weights, nil
	}
	c.recorder.RecordCacheMiss(backend)

	weights, err := c.compute(history)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(weightEntry{Weights: weights, DegenerateDates: c.degenerate})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Weight cache entry not encoded")
		return weights, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("backend", backend).Msg("Weight cache write failed")
	}
	return weights, nil
}

func (c *CachedStrategy) lookup(key string) (*weightEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("backend", c.store.Backend()).Msg("Weight cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry weightEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Weight cache entry corrupt")
		return nil, false
	}
	return &entry, true
}

func (c *CachedStrategy) compute(history []models.FeatureRow) ([]models.TargetWeight, error) {
	weights, err := c.next.TargetWeights(history)
	if err != nil {
		return nil, err
	}
	c.degenerate = nil
	if d, ok := c.next.(interface{ DegenerateDates() []time.Time }); ok {
		c.degenerate = d.DegenerateDates()
	}
	return weights, nil
}
