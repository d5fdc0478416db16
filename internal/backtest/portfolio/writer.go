package portfolio

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	atomicio "github.com/sawpanic/portfoliosim/internal/io"
	"github.com/sawpanic/portfoliosim/internal/models"
)

// Artifact file names shared with the reporting server
const (
	EquityCurveFile           = "equity_curve.csv"
	IncompleteEquityCurveFile = "equity_curve.incomplete.csv"
	TradesFile                = "trades.csv"
	SummaryFile               = "summary.json"
	ReportFile                = "report.md"
	LatestFile                = "latest.json"
)

// EquityCurveHeader and TradesHeader are the CSV contracts with the reporting collaborator
var (
	EquityCurveHeader = []string{"date", "equity"}
	TradesHeader      = []string{"date", "symbol", "quantity_delta", "execution_price", "gross_cost", "commission"}
)

// Writer handles writing run artifacts to disk
type Writer struct {
	rootDir   string
	outputDir string
	dateDir   string
}

// NewWriter creates a writer for <rootDir>/<runDate>/
func NewWriter(rootDir string, runDate time.Time) *Writer {
	dateDir := runDate.Format(models.DateLayout)
	return &Writer{
		rootDir:   rootDir,
		outputDir: filepath.Join(rootDir, dateDir),
		dateDir:   dateDir,
	}
}

// GetOutputDir returns the full output directory path
func (w *Writer) GetOutputDir() string {
	return w.outputDir
}

// ArtifactPaths lists what a run wrote
type ArtifactPaths struct {
	EquityCurve string `json:"equity_curve"`
	Trades      string `json:"trades,omitempty"`
	Summary     string `json:"summary"`
	Report      string `json:"report"`
	OutputDir   string `json:"output_dir"`
}

// LatestPointer is stored at the root so readers can find the newest run
type LatestPointer struct {
	RunID     string    `json:"run_id"`
	Dir       string    `json:"dir"`
	Complete  bool      `json:"complete"`
	WrittenAt time.Time `json:"written_at"`
}

// WriteAll writes every artifact for result. Incomplete runs get only the
// partial curve under a distinct name, and any earlier ledger in the same
// directory is removed so it cannot be mistaken for this run's.
func (w *Writer) WriteAll(result *Result) (*ArtifactPaths, error) {
	paths := w.GetArtifactPaths(result)

	if result.Complete {
		if err := w.WriteEquityCurve(paths.EquityCurve, result.EquityCurve); err != nil {
			return nil, err
		}
		if err := w.WriteTrades(paths.Trades, result.Trades); err != nil {
			return nil, err
		}
		if err := atomicio.RemoveIfExists(filepath.Join(w.outputDir, IncompleteEquityCurveFile)); err != nil {
			return nil, fmt.Errorf("failed to remove stale partial curve: %w", err)
		}
	} else {
		for _, stale := range []string{EquityCurveFile, TradesFile} {
			if err := atomicio.RemoveIfExists(filepath.Join(w.outputDir, stale)); err != nil {
				return nil, fmt.Errorf("failed to remove stale %s: %w", stale, err)
			}
		}
		if err := w.WriteEquityCurve(paths.EquityCurve, result.EquityCurve); err != nil {
			return nil, err
		}
	}

	if err := w.WriteSummaryJSON(result, paths); err != nil {
		return nil, err
	}
	if err := w.WriteReport(result, paths); err != nil {
		return nil, err
	}

	latest := LatestPointer{
		RunID:     result.RunID,
		Dir:       w.dateDir,
		Complete:  result.Complete,
		WrittenAt: result.FinishedAt,
	}
	if err := atomicio.WriteJSONAtomic(filepath.Join(w.rootDir, LatestFile), latest); err != nil {
		return nil, fmt.Errorf("failed to write latest pointer: %w", err)
	}

	return paths, nil
}

// WriteEquityCurve writes date,equity rows in date order
func (w *Writer) WriteEquityCurve(path string, curve []models.EquityPoint) error {
	rows := make([][]string, 0, len(curve))
	for _, p := range curve {
		rows = append(rows, []string{p.Date.Format(models.DateLayout), formatFloat(p.Equity)})
	}
	if err := atomicio.WriteCSVAtomic(path, EquityCurveHeader, rows); err != nil {
		return fmt.Errorf("failed to write equity curve: %w", err)
	}
	return nil
}

// WriteTrades writes the ledger in execution order
func (w *Writer) WriteTrades(path string, trades []models.Trade) error {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			t.Date.Format(models.DateLayout),
			t.Symbol,
			formatFloat(t.QuantityDelta),
			formatFloat(t.ExecutionPrice),
			formatFloat(t.GrossCost),
			formatFloat(t.Commission),
		})
	}
	if err := atomicio.WriteCSVAtomic(path, TradesHeader, rows); err != nil {
		return fmt.Errorf("failed to write trades: %w", err)
	}
	return nil
}

// WriteSummaryJSON writes the run metadata and performance summary
func (w *Writer) WriteSummaryJSON(result *Result, paths *ArtifactPaths) error {
	doc := struct {
		*Result
		Status    string         `json:"status"`
		Artifacts *ArtifactPaths `json:"artifacts"`
	}{Result: result, Status: result.Status(), Artifacts: paths}

	if err := atomicio.WriteJSONAtomic(paths.Summary, doc); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// WriteReport writes a short markdown report
func (w *Writer) WriteReport(result *Result, paths *ArtifactPaths) error {
	if err := atomicio.WriteFileAtomic(paths.Report, []byte(w.generateMarkdownReport(result, paths))); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (w *Writer) generateMarkdownReport(result *Result, paths *ArtifactPaths) string {
	var report strings.Builder

	report.WriteString("# Portfolio Simulation Report\n\n")
	report.WriteString(fmt.Sprintf("**Run**: `%s`\n", result.RunID))
	if result.Strategy != "" {
		report.WriteString(fmt.Sprintf("**Strategy**: %s\n", result.Strategy))
	}
	report.WriteString(fmt.Sprintf("**Status**: %s\n", result.Status()))
	report.WriteString(fmt.Sprintf("**Configuration**: capital=%.2f, commission=%.4f, slippage=%.4f, stop=%.2f%%, trailing=%.2f%%\n\n",
		result.Config.InitialCapital, result.Config.CommissionRate, result.Config.SlippageRate,
		result.Config.StopLossPct*100, result.Config.TrailingStopPct*100))

	if !result.Complete {
		report.WriteString("## Failure\n\n")
		report.WriteString(fmt.Sprintf("The run stopped after %d dates: %s\n\n", len(result.EquityCurve), result.Error))
		report.WriteString("No trade ledger was written. The partial equity curve is kept for diagnostics only.\n\n")
	}

	if s := result.Summary; s != nil {
		report.WriteString("## Performance\n\n")
		report.WriteString("| Metric | Value |\n|---|---|\n")
		report.WriteString(fmt.Sprintf("| Dates | %d |\n", s.Dates))
		report.WriteString(fmt.Sprintf("| Final equity | %.2f |\n", s.FinalEquity))
		report.WriteString(fmt.Sprintf("| Total return | %.2f%% |\n", s.TotalReturn*100))
		report.WriteString(fmt.Sprintf("| Sharpe ratio | %.2f |\n", s.SharpeRatio))
		report.WriteString(fmt.Sprintf("| Max drawdown | %.2f%% |\n", s.MaxDrawdown*100))
		report.WriteString(fmt.Sprintf("| Trades | %d |\n", s.TradeCount))
		report.WriteString(fmt.Sprintf("| Stops | %d |\n", s.StopCount))
		report.WriteString(fmt.Sprintf("| Risk rejections | %d |\n", s.RiskRejections))
		report.WriteString(fmt.Sprintf("| Commission paid | %.2f |\n\n", s.TotalCommission))
	}

	if len(result.StopEvents) > 0 {
		report.WriteString("## Stops\n\n")
		report.WriteString("| Date | Symbol | Reason | Close | Entry | Peak |\n|---|---|---|---|---|---|\n")
		for _, ev := range result.StopEvents {
			report.WriteString(fmt.Sprintf("| %s | %s | %s | %.4f | %.4f | %.4f |\n",
				ev.Date.Format(models.DateLayout), ev.Symbol, ev.Reason, ev.Close, ev.EntryPrice, ev.PeakPrice))
		}
		report.WriteString("\n")
	}

	if len(result.NormalizedDates) > 0 || len(result.Degeneracies) > 0 {
		report.WriteString("## Warnings\n\n")
		report.WriteString(fmt.Sprintf("- %d dates had target weights above unity and were rescaled\n", len(result.NormalizedDates)))
		report.WriteString(fmt.Sprintf("- %d dates had no volatility and were equal-weighted\n\n", len(result.Degeneracies)))
	}

	report.WriteString("## Artifact Paths\n\n")
	report.WriteString(fmt.Sprintf("- **Equity curve**: `%s`\n", paths.EquityCurve))
	if paths.Trades != "" {
		report.WriteString(fmt.Sprintf("- **Trades**: `%s`\n", paths.Trades))
	}
	report.WriteString(fmt.Sprintf("- **Summary**: `%s`\n", paths.Summary))
	report.WriteString(fmt.Sprintf("- **Output Directory**: `%s`\n", paths.OutputDir))

	return report.String()
}

// GetArtifactPaths returns where result's artifacts go
func (w *Writer) GetArtifactPaths(result *Result) *ArtifactPaths {
	paths := &ArtifactPaths{
		EquityCurve: filepath.Join(w.outputDir, EquityCurveFile),
		Trades:      filepath.Join(w.outputDir, TradesFile),
		Summary:     filepath.Join(w.outputDir, SummaryFile),
		Report:      filepath.Join(w.outputDir, ReportFile),
		OutputDir:   w.outputDir,
	}
	if !result.Complete {
		paths.EquityCurve = filepath.Join(w.outputDir, IncompleteEquityCurveFile)
		paths.Trades = ""
	}
	return paths
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
