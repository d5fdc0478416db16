package io

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSVAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "equity_curve.csv")

	err := WriteCSVAtomic(path, []string{"date", "equity"}, [][]string{
		{"2025-01-02", "100000"},
		{"2025-01-03", "100010.5"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "date,equity\n2025-01-02,100000\n2025-01-03,100010.5\n", string(data))

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteJSONAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]int{"trades": 1}))
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"trades": 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"trades": 2}`, string(data))
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	assert.NoError(t, RemoveIfExists(path))

	require.NoError(t, WriteFileAtomic(path, []byte("x")))
	assert.NoError(t, RemoveIfExists(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
