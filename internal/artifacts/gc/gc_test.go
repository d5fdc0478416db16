package gc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRun(t *testing.T, root, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, dir, "equity_curve.csv"), []byte("date,equity\n"), 0o644))
}

func TestPlanner_KeepsNewestAndLastRun(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-03", "2025-01-04"} {
		makeRun(t, root, d)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scratch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "latest.json"), []byte(`{"dir":"2025-01-01"}`), 0o644))

	plan, err := NewPlanner(root, 2).CreatePlan(false)
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-01-04", "2025-01-03", "2025-01-01"}, plan.ToKeep)
	assert.Equal(t, []string{"2025-01-02"}, plan.ToDelete)
	assert.Equal(t, []string{ReasonLastRun}, plan.ReasonToKeep["2025-01-01"])
	assert.Equal(t, 1, plan.FilesToDelete)
	assert.Equal(t, int64(len("date,equity\n")), plan.BytesToDelete)

	res := NewExecutor(root).Apply(plan)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.DirsDeleted)
	assert.NoDirExists(t, filepath.Join(root, "2025-01-02"))
	assert.DirExists(t, filepath.Join(root, "2025-01-01"))
	assert.DirExists(t, filepath.Join(root, "scratch"))
}

func TestPlanner_DryRunAndKeepAll(t *testing.T) {
	root := t.TempDir()
	makeRun(t, root, "2025-01-01")
	makeRun(t, root, "2025-01-02")

	plan, err := NewPlanner(root, 0).CreatePlan(false)
	require.NoError(t, err)
	assert.Empty(t, plan.ToDelete)

	plan, err = NewPlanner(root, 1).CreatePlan(true)
	require.NoError(t, err)
	require.Equal(t, []string{"2025-01-01"}, plan.ToDelete)

	res := NewExecutor(root).Apply(plan)
	assert.Equal(t, 0, res.DirsDeleted)
	assert.DirExists(t, filepath.Join(root, "2025-01-01"))
}

func TestPlanner_MissingRoot(t *testing.T) {
	plan, err := NewPlanner(filepath.Join(t.TempDir(), "absent"), 3).CreatePlan(false)
	require.NoError(t, err)
	assert.Empty(t, plan.ToKeep)
	assert.Empty(t, plan.ToDelete)
}
