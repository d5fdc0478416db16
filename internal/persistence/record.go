package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
)

// ErrIncompleteRun rejects saving a run that aborted
var ErrIncompleteRun = errors.New("incomplete runs are not persisted")

// RecordFor builds the header row for a completed run
func RecordFor(result *portfolio.Result) (RunRecord, error) {
	if result == nil || !result.Complete || result.Summary == nil {
		return RunRecord{}, ErrIncompleteRun
	}

	cfg, err := json.Marshal(result.Config)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to marshal run config: %w", err)
	}

	s := result.Summary
	return RunRecord{
		ID:             result.RunID,
		Strategy:       result.Strategy,
		StartedAt:      result.StartedAt,
		FinishedAt:     result.FinishedAt,
		InitialCapital: s.InitialCapital,
		FinalEquity:    s.FinalEquity,
		TotalReturn:    s.TotalReturn,
		SharpeRatio:    s.SharpeRatio,
		MaxDrawdown:    s.MaxDrawdown,
		TradeCount:     s.TradeCount,
		StopCount:      s.StopCount,
		Config:         cfg,
	}, nil
}
