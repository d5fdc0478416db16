package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// ErrNotFound is returned when no run matches a lookup
var ErrNotFound = errors.New("run not found")

// RunRecord is the header row for one completed simulation run
type RunRecord struct {
	ID             string    `json:"id" db:"id"`
	Strategy       string    `json:"strategy" db:"strategy"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	FinishedAt     time.Time `json:"finished_at" db:"finished_at"`
	InitialCapital float64   `json:"initial_capital" db:"initial_capital"`
	FinalEquity    float64   `json:"final_equity" db:"final_equity"`
	TotalReturn    float64   `json:"total_return" db:"total_return"`
	SharpeRatio    float64   `json:"sharpe_ratio" db:"sharpe_ratio"`
	MaxDrawdown    float64   `json:"max_drawdown" db:"max_drawdown"`
	TradeCount     int       `json:"trade_count" db:"trade_count"`
	StopCount      int       `json:"stop_count" db:"stop_count"`
	Config         []byte    `json:"config" db:"config"` // JSONB
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// RunRepo persists completed runs with their ledger and equity curve
type RunRepo interface {
	// SaveRun writes the header, trades and equity points in one transaction
	SaveRun(ctx context.Context, run RunRecord, trades []models.Trade, curve []models.EquityPoint) error

	// LatestRun returns the most recently finished run
	LatestRun(ctx context.Context) (*RunRecord, error)

	// Trades returns a run's ledger in execution order
	Trades(ctx context.Context, runID string) ([]models.Trade, error)

	// EquityCurve returns a run's equity points in date order
	EquityCurve(ctx context.Context, runID string) ([]models.EquityPoint, error)
}

// RepoHealth represents repository health status
type RepoHealth struct {
	Healthy      bool              `json:"healthy"`
	Errors       []string          `json:"errors,omitempty"`
	ResponseTime int64             `json:"response_time_ms"`
	Details      map[string]string `json:"details,omitempty"`
}
