package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ============================================================================
// FILE LOADERS
// ============================================================================

// LoadFromCSV loads candles from a CSV file with a header row. Required columns:
// date (or timestamp), open, high, low, close, volume. An optional score column
// is read into Candle.Score. Dates may be Unix seconds, RFC3339 or YYYY-MM-DD.
func LoadFromCSV(path string) ([]Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	candles, err := ReadCSV(file)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", path).
		Int("candles", len(candles)).
		Msg("Loaded historical data from CSV")

	return candles, nil
}

// ReadCSV parses candles from a CSV stream, see LoadFromCSV for the format
func ReadCSV(r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["date"]; !ok {
		if idx, ok := columns["timestamp"]; ok {
			columns["date"] = idx
		}
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: CSV is missing column %q", ErrMalformedCandles, required)
		}
	}
	scoreIdx, hasScore := columns["score"]

	var candles []Candle
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record at line %d: %w", lineNum, err)
		}
		lineNum++

		date, err := parseDate(record[columns["date"]])
		if err != nil {
			log.Warn().Int("line", lineNum).Str("date", record[columns["date"]]).Msg("Failed to parse date, skipping")
			continue
		}

		var values [5]float64
		valid := true
		for i, name := range []string{"open", "high", "low", "close", "volume"} {
			values[i], err = strconv.ParseFloat(strings.TrimSpace(record[columns[name]]), 64)
			if err != nil {
				log.Warn().Int("line", lineNum).Str("column", name).Msg("Failed to parse value, skipping")
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		candle := Candle{
			Date:   date,
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[4],
		}
		if hasScore && scoreIdx < len(record) && strings.TrimSpace(record[scoreIdx]) != "" {
			if score, err := strconv.ParseFloat(strings.TrimSpace(record[scoreIdx]), 64); err == nil {
				candle.Score = &score
			}
		}

		candles = append(candles, candle)
	}

	SortCandles(candles)
	return candles, nil
}

// LoadFromJSON loads candles from a JSON file holding either an array of
// candles or an object with a "candles" array
func LoadFromJSON(path string) ([]Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	var candles []Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		var wrapper struct {
			Candles []Candle `json:"candles"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to parse JSON file (tried both array and object formats): %w", err)
		}
		candles = wrapper.Candles
	}

	SortCandles(candles)

	log.Info().
		Str("file", path).
		Int("candles", len(candles)).
		Msg("Loaded historical data from JSON")

	return candles, nil
}

// LoadCandles picks the loader from the file extension
func LoadCandles(path string) ([]Candle, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "csv":
		return LoadFromCSV(path)
	case "json":
		return LoadFromJSON(path)
	default:
		return nil, fmt.Errorf("unsupported candle file %q (expected .csv or .json)", path)
	}
}

// SortCandles orders candles by date in place
func SortCandles(candles []Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Date.Before(candles[j].Date)
	})
}

// minUnixDigits keeps compact dates such as 20240102 from being read as
// epoch seconds; nine digits is March 1973 onwards
const minUnixDigits = 9

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if len(raw) >= minUnixDigits {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(unix, 0).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// ============================================================================
// EXPORT
// ============================================================================

// ExportResults writes the winning combination of an optimization to a JSON file
func ExportResults(strategy string, summary *OptimizationSummary, path string) error {
	if summary == nil || summary.BestResult == nil {
		return fmt.Errorf("no optimization result to export")
	}

	best := summary.BestResult
	results := map[string]interface{}{
		"export_timestamp": time.Now().UTC().Format(time.RFC3339),
		"strategy":         strategy,
		"objective":        summary.ObjectiveMetric,
		"total_runs":       summary.TotalRuns,
		"failed_runs":      summary.FailedRuns,
		"parameters":       best.Parameters,
		"metrics":          best.Metrics.Sanitize(),
		"equity_curve":     best.Curve.Sanitize(),
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	log.Info().
		Str("file", path).
		Str("strategy", strategy).
		Msg("Exported backtest results")

	return nil
}
