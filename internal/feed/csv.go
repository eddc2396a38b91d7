// Package feed adapts bar data from CSV files and object storage to the
// domain.BarSource boundary used by the replay driver.
package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// csvColumns is the expected header, open_interest being optional.
var csvColumns = []string{"time", "open", "high", "low", "close", "volume", "open_interest"}

// ParseCSV reads bars from r. The first row must be a header naming at
// least time, open, high, low, close and volume. Times are RFC3339 or unix
// seconds. Rows are returned in file order.
func ParseCSV(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("feed: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range csvColumns[:6] {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("feed: header missing column %q", name)
		}
	}

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: line %d: %w", line, err)
		}
		bar, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("feed: line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseRecord(rec []string, cols map[string]int) (domain.Bar, error) {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	num := func(name string) (float64, error) {
		v, ok := field(name)
		if !ok || v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return f, nil
	}

	var bar domain.Bar
	ts, _ := field("time")
	t, err := parseTime(ts)
	if err != nil {
		return bar, err
	}
	bar.Time = t

	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
		{"open_interest", &bar.OpenInterest},
	} {
		v, err := num(f.name)
		if err != nil {
			return bar, err
		}
		*f.dst = v
	}
	if bar.Low > bar.High {
		return bar, fmt.Errorf("low %v above high %v", bar.Low, bar.High)
	}
	return bar, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("time: empty")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time: %w", err)
	}
	return t.UTC(), nil
}

// WriteCSV writes bars with the header ParseCSV expects.
func WriteCSV(w io.Writer, bars []domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("feed: write header: %w", err)
	}
	for _, b := range bars {
		rec := []string{
			b.Time.UTC().Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
			strconv.FormatFloat(b.OpenInterest, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("feed: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
