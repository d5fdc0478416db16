package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
	"github.com/sawpanic/portfoliosim/internal/config"
	"github.com/sawpanic/portfoliosim/internal/models"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(args ...string) error {
	root := newRootCmd()
	root.SetArgs(append(args, "--log-level", "error"))
	return root.Execute()
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitConfigError, exitCode(fmt.Errorf("wrapped: %w", &models.ConfigError{Field: "x"})))
	assert.Equal(t, exitDataError, exitCode(&models.DataQualityError{Reason: "bad"}))
	assert.Equal(t, exitFailure, exitCode(errors.New("disk full")))
}

func TestRunCommand_SuppliedWeights(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	data := writeFile(t, dir, "features.csv",
		"date,symbol,open,high,low,close,volume\n2025-01-02,AAA,50,50,50,50,1000\n2025-01-03,AAA,55,55,55,55,1000\n")
	weights := writeFile(t, dir, "weights.csv",
		"date,symbol,target_weight\n2025-01-02,AAA,1\n2025-01-03,AAA,1\n")

	require.NoError(t, execute("run",
		"--data", data, "--weights", weights, "--output", out,
		"--commission", "0", "--slippage", "0", "--run-id", "cli-test"))

	raw, err := os.ReadFile(filepath.Join(out, portfolio.LatestFile))
	require.NoError(t, err)
	var latest portfolio.LatestPointer
	require.NoError(t, json.Unmarshal(raw, &latest))
	assert.Equal(t, "cli-test", latest.RunID)
	assert.True(t, latest.Complete)

	curve, err := os.ReadFile(filepath.Join(out, latest.Dir, portfolio.EquityCurveFile))
	require.NoError(t, err)
	assert.Equal(t, "date,equity\n2025-01-02,100000\n2025-01-03,110000\n", string(curve))

	trades, err := os.ReadFile(filepath.Join(out, latest.Dir, portfolio.TradesFile))
	require.NoError(t, err)
	assert.Contains(t, string(trades), "2025-01-02,AAA,2000,50,100000,0")
}

func TestRunCommand_MissingColumnIsConfigError(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "features.csv", "date,symbol,open,high,low,close\n2025-01-02,AAA,50,50,50,50\n")

	err := execute("run", "--data", data, "--output", filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.Equal(t, exitConfigError, exitCode(err))
}

func TestRunCommand_UnknownRiskMode(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "features.csv", "date,symbol,open,high,low,close,volume\n2025-01-02,AAA,50,50,50,50,1\n")

	err := execute("run", "--data", data, "--risk-mode", "strict")
	require.Error(t, err)
	assert.Equal(t, exitConfigError, exitCode(err))
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "features.csv",
		"date,symbol,open,high,low,close,volume\n2025-01-02,AAA,50,50,50,50,1000\n")
	good := writeFile(t, dir, "good.csv", "date,symbol,target_weight\n2025-01-02,AAA,0.5\n")
	orphan := writeFile(t, dir, "orphan.csv", "date,symbol,target_weight\n2025-01-02,BBB,0.5\n")

	assert.NoError(t, execute("validate", "--data", data, "--weights", good))

	err := execute("validate", "--data", data, "--weights", orphan)
	require.Error(t, err)
	assert.Equal(t, exitDataError, exitCode(err))
}

func TestPruneRuns(t *testing.T) {
	out := t.TempDir()
	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		require.NoError(t, os.MkdirAll(filepath.Join(out, d), 0o755))
	}

	cfg := config.Default()
	cfg.Output.Dir = out
	pruneRuns(cfg)
	assert.DirExists(t, filepath.Join(out, "2025-01-01"))

	cfg.Output.KeepRuns = 2
	pruneRuns(cfg)
	assert.NoDirExists(t, filepath.Join(out, "2025-01-01"))
	assert.DirExists(t, filepath.Join(out, "2025-01-02"))
	assert.DirExists(t, filepath.Join(out, "2025-01-03"))
}
