package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
)

// ErrNoRuns means no run has written a latest pointer yet
var ErrNoRuns = errors.New("no runs recorded")

// ArtifactReader resolves the files of the newest run under an output root.
// It reads only what the writer persisted.
type ArtifactReader struct {
	root string
}

// NewArtifactReader reads from root
func NewArtifactReader(root string) *ArtifactReader {
	return &ArtifactReader{root: root}
}

// Root returns the output root
func (a *ArtifactReader) Root() string {
	return a.root
}

// Latest reads the latest-run pointer
func (a *ArtifactReader) Latest() (*portfolio.LatestPointer, error) {
	raw, err := os.ReadFile(filepath.Join(a.root, portfolio.LatestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoRuns
		}
		return nil, fmt.Errorf("failed to read latest pointer: %w", err)
	}

	var latest portfolio.LatestPointer
	if err := json.Unmarshal(raw, &latest); err != nil {
		return nil, fmt.Errorf("failed to parse latest pointer: %w", err)
	}
	if latest.Dir == "" || latest.Dir != filepath.Base(latest.Dir) || latest.Dir == ".." || latest.Dir == "." {
		return nil, fmt.Errorf("latest pointer names invalid directory %q", latest.Dir)
	}
	return &latest, nil
}

// Path returns the location of a named artifact of the latest run
func (a *ArtifactReader) Path(latest *portfolio.LatestPointer, name string) string {
	return filepath.Join(a.root, latest.Dir, name)
}
