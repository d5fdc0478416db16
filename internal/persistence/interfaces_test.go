package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
	"github.com/sawpanic/portfoliosim/internal/models"
)

type fakeRepo struct {
	err   error
	calls int
	saved []RunRecord
}

func (f *fakeRepo) SaveRun(ctx context.Context, run RunRecord, trades []models.Trade, curve []models.EquityPoint) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, run)
	return nil
}

func (f *fakeRepo) LatestRun(ctx context.Context) (*RunRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.saved) == 0 {
		return nil, ErrNotFound
	}
	rec := f.saved[len(f.saved)-1]
	return &rec, nil
}

func (f *fakeRepo) Trades(ctx context.Context, runID string) ([]models.Trade, error) {
	f.calls++
	return []models.Trade{{Symbol: "AAA"}}, f.err
}

func (f *fakeRepo) EquityCurve(ctx context.Context, runID string) ([]models.EquityPoint, error) {
	f.calls++
	return []models.EquityPoint{{Equity: 1}}, f.err
}

func completeResult() *portfolio.Result {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &portfolio.Result{
		RunID:      "run-1",
		Strategy:   "ema_cross",
		Config:     portfolio.DefaultConfig(),
		StartedAt:  d,
		FinishedAt: d.Add(time.Second),
		Complete:   true,
		Summary: &portfolio.Summary{
			InitialCapital: 100000,
			FinalEquity:    101000,
			TotalReturn:    0.01,
			SharpeRatio:    1.5,
			MaxDrawdown:    0.03,
			TradeCount:     4,
			StopCount:      1,
		},
	}
}

func TestRecordFor_Complete(t *testing.T) {
	rec, err := RecordFor(completeResult())
	require.NoError(t, err)

	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, "ema_cross", rec.Strategy)
	assert.Equal(t, 101000.0, rec.FinalEquity)
	assert.Equal(t, 4, rec.TradeCount)
	assert.Equal(t, 1, rec.StopCount)

	var cfg portfolio.Config
	require.NoError(t, json.Unmarshal(rec.Config, &cfg))
	assert.Equal(t, portfolio.DefaultConfig(), cfg)
}

func TestRecordFor_RejectsIncomplete(t *testing.T) {
	res := completeResult()
	res.Complete = false

	_, err := RecordFor(res)
	assert.ErrorIs(t, err, ErrIncompleteRun)

	_, err = RecordFor(nil)
	assert.ErrorIs(t, err, ErrIncompleteRun)
}

func TestBreakerRepo_PassesThrough(t *testing.T) {
	next := &fakeRepo{}
	repo := NewBreakerRepo(next, DefaultBreakerConfig())
	ctx := context.Background()

	require.NoError(t, repo.SaveRun(ctx, RunRecord{ID: "a"}, nil, nil))
	latest, err := repo.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", latest.ID)

	trades, err := repo.Trades(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	curve, err := repo.EquityCurve(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, curve, 1)
	assert.Equal(t, "closed", repo.State())
}

func TestBreakerRepo_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &fakeRepo{err: errors.New("connection refused")}
	repo := NewBreakerRepo(next, DefaultBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := repo.SaveRun(ctx, RunRecord{ID: "a"}, nil, nil)
		require.Error(t, err)
		assert.False(t, IsOpen(err))
	}
	assert.Equal(t, "open", repo.State())

	err := repo.SaveRun(ctx, RunRecord{ID: "a"}, nil, nil)
	assert.True(t, IsOpen(err))
	assert.Equal(t, 3, next.calls, "open breaker must not reach the database")
}

func TestBreakerRepo_NotFoundIsNotAFailure(t *testing.T) {
	next := &fakeRepo{}
	repo := NewBreakerRepo(next, DefaultBreakerConfig())

	for i := 0; i < 5; i++ {
		_, err := repo.LatestRun(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, "closed", repo.State())
	assert.Equal(t, 5, next.calls)
}
