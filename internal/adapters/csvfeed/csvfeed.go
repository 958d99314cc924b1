// Package csvfeed provides a seed feed reading bars from a CSV file, meant
// for backfilling a live feed from previously exported data.
package csvfeed

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"ibfeed/internal/domain"
)

// Feed implements ports.SeedFeed over the rows of one CSV file. The whole
// file is read at construction; Next just walks the parsed bars.
type Feed struct {
	bars []domain.Bar
	pos  int
}

// defaultColumns is the positional layout used when the file has no header
// row: time, open, high, low, close, volume.
var defaultColumns = map[string]int{
	"time": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5,
}

// New reads and parses the given CSV file. A header row is detected by a
// non-numeric first cell and may reorder the columns; an "openinterest"
// column is optional.
func New(path string) (*Feed, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	lines, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv %s: %w", path, err)
	}
	if len(lines) == 0 {
		return &Feed{}, nil
	}

	columns, hasHeader := parseHeader(lines[0])
	if hasHeader {
		lines = lines[1:]
	}

	bars := make([]domain.Bar, 0, len(lines))
	for i, line := range lines {
		bar, err := parseLine(line, columns)
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", path, i+1, err)
		}
		bars = append(bars, bar)
	}
	return &Feed{bars: bars}, nil
}

// Next returns the next seed bar, or false when the file is exhausted.
func (f *Feed) Next() (domain.Bar, bool) {
	if f.pos >= len(f.bars) {
		return domain.Bar{}, false
	}
	bar := f.bars[f.pos]
	f.pos++
	return bar, true
}

// Len returns the total number of bars in the file.
func (f *Feed) Len() int { return len(f.bars) }

func parseHeader(cells []string) (map[string]int, bool) {
	if len(cells) == 0 {
		return defaultColumns, false
	}
	if _, err := strconv.ParseFloat(cells[0], 64); err == nil {
		return defaultColumns, false // numeric first cell: data, not a header
	}
	columns := make(map[string]int, len(cells))
	for i, name := range cells {
		columns[name] = i
	}
	return columns, true
}

func parseLine(line []string, columns map[string]int) (domain.Bar, error) {
	cell := func(name string) (string, bool) {
		idx, ok := columns[name]
		if !ok || idx >= len(line) {
			return "", false
		}
		return line[idx], true
	}

	var bar domain.Bar

	raw, ok := cell("time")
	if !ok {
		raw, ok = cell("datetime")
	}
	if !ok {
		return bar, fmt.Errorf("missing time column")
	}
	ts, err := parseTime(raw)
	if err != nil {
		return bar, err
	}
	bar.Time = ts

	for _, field := range []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
	} {
		raw, ok := cell(field.name)
		if !ok {
			return bar, fmt.Errorf("missing %s column", field.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return bar, fmt.Errorf("bad %s value %q: %w", field.name, raw, err)
		}
		*field.dst = v
	}

	if raw, ok := cell("openinterest"); ok {
		oi, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return bar, fmt.Errorf("bad openinterest value %q: %w", raw, err)
		}
		bar.OpenInterest = oi
	}
	return bar, nil
}

// parseTime accepts unix seconds or RFC 3339.
func parseTime(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time value %q: %w", raw, err)
	}
	return ts, nil
}
