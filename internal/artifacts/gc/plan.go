package gc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sawpanic/portfoliosim/internal/backtest/portfolio"
	"github.com/sawpanic/portfoliosim/internal/models"
)

// Keep reasons
const (
	ReasonRecent  = "recent"
	ReasonLastRun = "last_run"
)

// Plan lists which dated run directories under an output root survive retention
type Plan struct {
	CreatedAt     time.Time           `json:"created_at"`
	DryRun        bool                `json:"dry_run"`
	Keep          int                 `json:"keep"`
	ToKeep        []string            `json:"to_keep"`
	ToDelete      []string            `json:"to_delete"`
	ReasonToKeep  map[string][]string `json:"reason_to_keep"`
	BytesToDelete int64               `json:"bytes_to_delete"`
	FilesToDelete int                 `json:"files_to_delete"`
}

// Planner creates retention plans for run directories
type Planner struct {
	root string
	keep int
	now  func() time.Time
}

// NewPlanner keeps the newest keep run directories under root. keep <= 0 keeps everything.
func NewPlanner(root string, keep int) *Planner {
	return &Planner{root: root, keep: keep, now: time.Now}
}

// CreatePlan scans root. Only directories named YYYY-MM-DD are considered, and
// the directory named by latest.json is always kept.
func (p *Planner) CreatePlan(dryRun bool) (*Plan, error) {
	plan := &Plan{
		CreatedAt:    p.now(),
		DryRun:       dryRun,
		Keep:         p.keep,
		ToKeep:       make([]string, 0),
		ToDelete:     make([]string, 0),
		ReasonToKeep: make(map[string][]string),
	}

	entries, err := os.ReadDir(p.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return plan, nil
		}
		return nil, fmt.Errorf("failed to scan output root: %w", err)
	}

	var runs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(models.DateLayout, e.Name()); err == nil {
			runs = append(runs, e.Name())
		}
	}
	// newest first; the layout sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))

	lastRun := p.lastRunDir()
	for i, dir := range runs {
		var reasons []string
		if p.keep <= 0 || i < p.keep {
			reasons = append(reasons, ReasonRecent)
		}
		if dir == lastRun {
			reasons = append(reasons, ReasonLastRun)
		}

		if len(reasons) > 0 {
			plan.ToKeep = append(plan.ToKeep, dir)
			plan.ReasonToKeep[dir] = reasons
			continue
		}

		files, bytes, err := dirSize(filepath.Join(p.root, dir))
		if err != nil {
			return nil, fmt.Errorf("failed to size %s: %w", dir, err)
		}
		plan.ToDelete = append(plan.ToDelete, dir)
		plan.FilesToDelete += files
		plan.BytesToDelete += bytes
	}

	return plan, nil
}

func (p *Planner) lastRunDir() string {
	raw, err := os.ReadFile(filepath.Join(p.root, portfolio.LatestFile))
	if err != nil {
		return ""
	}
	var latest portfolio.LatestPointer
	if err := json.Unmarshal(raw, &latest); err != nil {
		return ""
	}
	return latest.Dir
}

func dirSize(dir string) (int, int64, error) {
	var files int
	var bytes int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		bytes += info.Size()
		return nil
	})
	return files, bytes, err
}
