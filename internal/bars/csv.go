package bars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSV reads a bar file with a timestamp,open,high,low,close,volume header.
// Timestamps without an offset are interpreted in loc.
func LoadCSV(path, symbol string, timeframe time.Duration, loc *time.Location) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, fmt.Errorf("failed to open bar file %s: %w", path, err)
	}
	defer f.Close()

	series, err := ReadCSV(f, symbol, timeframe, loc)
	if err != nil {
		return Series{}, fmt.Errorf("failed to read bar file %s: %w", path, err)
	}
	return series, nil
}

// ReadCSV parses bars from r. Column order follows the header; extra columns are ignored.
func ReadCSV(r io.Reader, symbol string, timeframe time.Duration, loc *time.Location) (Series, error) {
	if loc == nil {
		loc = time.UTC
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Series{}, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return Series{}, fmt.Errorf("missing required column %q", name)
		}
	}

	series := Series{Symbol: symbol, Timeframe: timeframe, Location: loc}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTimestamp(record[cols["timestamp"]], loc)
		if err != nil {
			return Series{}, fmt.Errorf("line %d: %w", line, err)
		}

		var values [5]float64
		for k, name := range requiredColumns[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[cols[name]]), 64)
			if err != nil {
				return Series{}, fmt.Errorf("line %d: invalid %s: %w", line, name, err)
			}
			values[k] = v
		}

		series.Bars = append(series.Bars, Bar{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}

	return series, nil
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	// Unix epoch in seconds or milliseconds
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// WriteCSV writes the series with an RFC3339 timestamp column
func WriteCSV(w io.Writer, s Series) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(requiredColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, b := range s.Bars {
		record := []string{
			b.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write bar %s: %w", record[0], err)
		}
	}

	writer.Flush()
	return writer.Error()
}
