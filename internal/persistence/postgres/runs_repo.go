package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/portfoliosim/internal/models"
	"github.com/sawpanic/portfoliosim/internal/persistence"
)

// Schema creates the run sink tables
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              UUID PRIMARY KEY,
	strategy        TEXT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	initial_capital DOUBLE PRECISION NOT NULL,
	final_equity    DOUBLE PRECISION NOT NULL,
	total_return    DOUBLE PRECISION NOT NULL,
	sharpe_ratio    DOUBLE PRECISION NOT NULL,
	max_drawdown    DOUBLE PRECISION NOT NULL,
	trade_count     INTEGER NOT NULL,
	stop_count      INTEGER NOT NULL,
	config          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_trades (
	run_id          UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq             INTEGER NOT NULL,
	date            DATE NOT NULL,
	symbol          TEXT NOT NULL,
	quantity_delta  DOUBLE PRECISION NOT NULL,
	execution_price DOUBLE PRECISION NOT NULL,
	gross_cost      DOUBLE PRECISION NOT NULL,
	commission      DOUBLE PRECISION NOT NULL,
	stop_driven     BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_equity (
	run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	date   DATE NOT NULL,
	equity DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, date)
);`

// runsRepo implements RunRepo for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a new PostgreSQL run repository
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunRepo {
	return &runsRepo{
		db:      db,
		timeout: timeout,
	}
}

// EnsureSchema creates the sink tables if they do not exist
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create run schema: %w", err)
	}
	return nil
}

// SaveRun writes the run header, ledger and equity curve atomically
func (r *runsRepo) SaveRun(ctx context.Context, run persistence.RunRecord, trades []models.Trade, curve []models.EquityPoint) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration((len(trades)+len(curve))/500+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, started_at, finished_at, initial_capital, final_equity,
			total_return, sharpe_ratio, max_drawdown, trade_count, stop_count, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.Strategy, run.StartedAt, run.FinishedAt, run.InitialCapital, run.FinalEquity,
		run.TotalReturn, run.SharpeRatio, run.MaxDrawdown, run.TradeCount, run.StopCount, run.Config)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate run %s: %w", run.ID, err)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(trades) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_trades (run_id, seq, date, symbol, quantity_delta, execution_price, gross_cost, commission, stop_driven)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return fmt.Errorf("failed to prepare trade statement: %w", err)
		}
		defer stmt.Close()

		for i, t := range trades {
			if _, err := stmt.ExecContext(ctx, run.ID, i, t.Date, t.Symbol, t.QuantityDelta,
				t.ExecutionPrice, t.GrossCost, t.Commission, t.StopDriven); err != nil {
				return fmt.Errorf("failed to insert trade %d: %w", i, err)
			}
		}
	}

	if len(curve) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_equity (run_id, date, equity)
			VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("failed to prepare equity statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range curve {
			if _, err := stmt.ExecContext(ctx, run.ID, p.Date, p.Equity); err != nil {
				return fmt.Errorf("failed to insert equity point %s: %w", p.Date.Format(models.DateLayout), err)
			}
		}
	}

	return tx.Commit()
}

// LatestRun returns the run that finished last
func (r *runsRepo) LatestRun(ctx context.Context) (*persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var run persistence.RunRecord
	err := r.db.GetContext(ctx, &run, `
		SELECT id, strategy, started_at, finished_at, initial_capital, final_equity,
			total_return, sharpe_ratio, max_drawdown, trade_count, stop_count, config, created_at
		FROM runs
		ORDER BY finished_at DESC
		LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return &run, nil
}

// Trades returns the ledger for runID in execution order
func (r *runsRepo) Trades(ctx context.Context, runID string) ([]models.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var trades []models.Trade
	err := r.db.SelectContext(ctx, &trades, `
		SELECT date, symbol, quantity_delta, execution_price, gross_cost, commission, stop_driven
		FROM run_trades
		WHERE run_id = $1
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

// EquityCurve returns the equity points for runID in date order
func (r *runsRepo) EquityCurve(ctx context.Context, runID string) ([]models.EquityPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var curve []models.EquityPoint
	err := r.db.SelectContext(ctx, &curve, `
		SELECT date, equity
		FROM run_equity
		WHERE run_id = $1
		ORDER BY date`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve: %w", err)
	}
	return curve, nil
}
