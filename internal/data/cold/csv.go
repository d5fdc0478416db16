package cold

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sawpanic/portfoliosim/internal/models"
)

// Canonical column names after normalization
const (
	ColDate         = "date"
	ColSymbol       = "symbol"
	ColOpen         = "open"
	ColHigh         = "high"
	ColLow          = "low"
	ColClose        = "close"
	ColVolume       = "volume"
	ColReturns      = "returns"
	ColVolatility   = "volatility"
	ColEMAFast      = "ema_fast"
	ColEMASlow      = "ema_slow"
	ColRSI          = "rsi"
	ColSignal       = "signal"
	ColTargetWeight = "target_weight"
)

var (
	featureRequired = []string{ColDate, ColSymbol, ColOpen, ColHigh, ColLow, ColClose, ColVolume}
	weightRequired  = []string{ColDate, ColSymbol, ColTargetWeight}
)

// Dataset is a materialized feature table ordered by date then symbol
type Dataset struct {
	Rows    []models.FeatureRow
	columns map[string]bool
}

// HasColumn reports whether the source file carried the named column
func (d *Dataset) HasColumn(name string) bool {
	return d.columns[name]
}

// Symbols returns the distinct symbols in lexical order
func (d *Dataset) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range d.Rows {
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Bars projects the dataset onto its price bars
func (d *Dataset) Bars() []models.PriceBar {
	bars := make([]models.PriceBar, len(d.Rows))
	for i, r := range d.Rows {
		bars[i] = r.PriceBar
	}
	return bars
}

// CSVReader reads feature and weight tables from delimited files
type CSVReader struct {
	Comma rune
}

// NewCSVReader creates a comma-delimited reader
func NewCSVReader() *CSVReader {
	return &CSVReader{Comma: ','}
}

// LoadFeatures reads a feature CSV from disk
func (r *CSVReader) LoadFeatures(path string) (*Dataset, error) {
	file, err := openInput(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer file.Close()

	ds, err := r.ReadFeatures(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadFeatures parses feature rows. Missing required columns are a
// configuration error; any unparsable or inconsistent row is a data quality
// error. Rows are never skipped.
func (r *CSVReader) ReadFeatures(in io.Reader) (*Dataset, error) {
	csvReader := r.newReader(in)

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columnMap := mapColumns(header)
	if err := requireColumns(columnMap, featureRequired, "features"); err != nil {
		return nil, err
	}

	ds := &Dataset{columns: make(map[string]bool, len(columnMap))}
	for name := range columnMap {
		ds.columns[name] = true
	}

	seen := make(map[models.Key]bool)
	line := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}

		row, err := parseFeatureRecord(record, columnMap)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		key := models.KeyOf(row.Date, row.Symbol)
		if seen[key] {
			return nil, fmt.Errorf("row %d: %w", line,
				&models.DataQualityError{Date: row.Date, Symbol: row.Symbol, Reason: "duplicate (date, symbol) bar"})
		}
		seen[key] = true
		ds.Rows = append(ds.Rows, row)
	}

	SortRows(ds.Rows)
	return ds, nil
}

// LoadWeights reads an externally produced target-weight CSV from disk
func (r *CSVReader) LoadWeights(path string) ([]models.TargetWeight, error) {
	file, err := openInput(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights file: %w", err)
	}
	defer file.Close()

	weights, err := r.ReadWeights(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return weights, nil
}

// ReadWeights parses date,symbol,target_weight rows
func (r *CSVReader) ReadWeights(in io.Reader) ([]models.TargetWeight, error) {
	csvReader := r.newReader(in)

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columnMap := mapColumns(header)
	if err := requireColumns(columnMap, weightRequired, "weights"); err != nil {
		return nil, err
	}

	var weights []models.TargetWeight
	line := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", line, err)
		}

		date, err := models.ParseDate(field(record, columnMap, ColDate))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, &models.DataQualityError{Reason: err.Error()})
		}
		symbol := field(record, columnMap, ColSymbol)
		w, err := strconv.ParseFloat(field(record, columnMap, ColTargetWeight), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line,
				&models.DataQualityError{Date: date, Symbol: symbol, Reason: "unparsable target_weight"})
		}
		weights = append(weights, models.TargetWeight{Date: date, Symbol: symbol, Weight: w})
	}

	return weights, nil
}

// openInput opens path, decompressing transparently when it ends in .gz
func openInput(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return file, nil
	}
	zr, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &gzipFile{Reader: zr, file: file}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	zerr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return zerr
}

// SortRows orders rows by date then symbol, the order grouping relies on
func SortRows(rows []models.FeatureRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].Symbol < rows[j].Symbol
	})
}

func (r *CSVReader) newReader(in io.Reader) *csv.Reader {
	csvReader := csv.NewReader(in)
	if r.Comma != 0 {
		csvReader.Comma = r.Comma
	}
	csvReader.TrimLeadingSpace = true
	return csvReader
}

func requireColumns(columnMap map[string]int, required []string, table string) error {
	var missing []string
	for _, col := range required {
		if _, ok := columnMap[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &models.ConfigError{Field: table, Reason: "missing required columns: " + strings.Join(missing, ", ")}
	}
	return nil
}

func parseFeatureRecord(record []string, columnMap map[string]int) (models.FeatureRow, error) {
	var row models.FeatureRow

	date, err := models.ParseDate(field(record, columnMap, ColDate))
	if err != nil {
		return row, &models.DataQualityError{Reason: err.Error()}
	}
	row.Date = date
	row.Symbol = field(record, columnMap, ColSymbol)

	required := []struct {
		col string
		dst *float64
	}{
		{ColOpen, &row.Open},
		{ColHigh, &row.High},
		{ColLow, &row.Low},
		{ColClose, &row.Close},
		{ColVolume, &row.Volume},
	}
	for _, f := range required {
		v, err := strconv.ParseFloat(field(record, columnMap, f.col), 64)
		if err != nil {
			return row, &models.DataQualityError{Date: date, Symbol: row.Symbol, Reason: "unparsable " + f.col}
		}
		*f.dst = v
	}

	optional := []struct {
		col string
		dst **float64
	}{
		{ColReturns, &row.Returns},
		{ColVolatility, &row.Volatility},
		{ColEMAFast, &row.EMAFast},
		{ColEMASlow, &row.EMASlow},
		{ColRSI, &row.RSI},
	}
	for _, f := range optional {
		v, ok, err := optionalFloat(field(record, columnMap, f.col))
		if err != nil {
			return row, &models.DataQualityError{Date: date, Symbol: row.Symbol, Reason: "unparsable " + f.col}
		}
		if ok {
			*f.dst = models.Float(v)
		}
	}

	if s := field(record, columnMap, ColSignal); s != "" {
		sig, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return row, &models.DataQualityError{Date: date, Symbol: row.Symbol, Reason: "unparsable signal"}
		}
		row.Signal = int(sig)
	}

	return row, nil
}

// optionalFloat treats blank and NaN cells as absent
func optionalFloat(s string) (float64, bool, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null":
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func field(record []string, columnMap map[string]int, col string) string {
	idx, ok := columnMap[col]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// mapColumns creates a mapping from normalized column names to indices
func mapColumns(header []string) map[string]int {
	columnMap := make(map[string]int, len(header))
	for i, column := range header {
		columnMap[normalizeColumnName(column)] = i
	}
	return columnMap
}

// normalizeColumnName converts the common spellings to canonical names
func normalizeColumnName(column string) string {
	c := strings.ToLower(strings.TrimSpace(column))
	c = strings.TrimPrefix(c, "\ufeff")
	switch c {
	case "ts", "time", "datetime", "timestamp", "day":
		return ColDate
	case "ticker", "pair", "instrument":
		return ColSymbol
	case "adj_close", "adj close":
		return ColClose
	case "vol", "annualized_volatility", "volatility_20":
		return ColVolatility
	case "log_return", "return":
		return ColReturns
	case "rsi_14":
		return ColRSI
	case "target_position", "weight":
		return ColTargetWeight
	default:
		return c
	}
}
