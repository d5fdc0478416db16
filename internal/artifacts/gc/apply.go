package gc

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyResult contains the results of applying a retention plan
type ApplyResult struct {
	Plan        *Plan         `json:"plan"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
	DirsDeleted int           `json:"dirs_deleted"`
	Errors      []string      `json:"errors,omitempty"`
}

// Executor applies retention plans under an output root
type Executor struct {
	root string
}

// NewExecutor creates an executor for root
func NewExecutor(root string) *Executor {
	return &Executor{root: root}
}

// Apply removes the planned directories. A dry-run plan removes nothing.
// Failures are collected and do not stop the remaining deletions.
func (e *Executor) Apply(plan *Plan) *ApplyResult {
	start := time.Now()
	result := &ApplyResult{Plan: plan}

	if !plan.DryRun {
		for _, dir := range plan.ToDelete {
			if err := os.RemoveAll(filepath.Join(e.root, dir)); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", dir, err))
				continue
			}
			result.DirsDeleted++
		}
	}

	result.Success = len(result.Errors) == 0
	result.Duration = time.Since(start)

	log.Info().
		Bool("dry_run", plan.DryRun).
		Int("kept", len(plan.ToKeep)).
		Int("deleted", result.DirsDeleted).
		Int64("bytes", plan.BytesToDelete).
		Int("errors", len(result.Errors)).
		Msg("Run retention applied")
	return result
}
