package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

const sampleCSV = `time,open,high,low,close,volume,open_interest
2024-06-03T13:30:00Z,100,105,95,102,1200,10
1717425000,102,103,101,101.5,800,
2024-06-04T13:30:00Z,99,100,97,98,500,12
`

func TestParseCSV(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	first := bars[0]
	if first.Open != 100 || first.High != 105 || first.Low != 95 || first.Close != 102 || first.Volume != 1200 || first.OpenInterest != 10 {
		t.Fatalf("unexpected first bar %+v", first)
	}
	if !bars[1].Time.Equal(time.Unix(1717425000, 0)) {
		t.Fatalf("unix time not parsed: %v", bars[1].Time)
	}
	if bars[1].OpenInterest != 0 {
		t.Fatalf("empty open interest should be zero")
	}
}

func TestParseCSVErrors(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("time,open,high,low,close\n")); err == nil {
		t.Fatalf("expected missing column error")
	}
	if _, err := ParseCSV(strings.NewReader("time,open,high,low,close,volume\nnope,1,2,0,1,1\n")); err == nil {
		t.Fatalf("expected time parse error")
	}
	if _, err := ParseCSV(strings.NewReader("time,open,high,low,close,volume\n1,1,2,3,1,1\n")); err == nil {
		t.Fatalf("expected low above high error")
	}
	bars, err := ParseCSV(strings.NewReader(""))
	if err != nil || len(bars) != 0 {
		t.Fatalf("empty input: %v %v", bars, err)
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	bars, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, bars); err != nil {
		t.Fatalf("write: %v", err)
	}
	again, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(again) != len(bars) || !again[2].Time.Equal(bars[2].Time) || again[2].Close != 98 {
		t.Fatalf("round trip mismatch: %+v", again)
	}
}

func TestAggregateDaily(t *testing.T) {
	bars, _ := ParseCSV(strings.NewReader(sampleCSV))
	daily := AggregateDaily(bars, time.UTC)
	if len(daily) != 2 {
		t.Fatalf("expected 2 days, got %d", len(daily))
	}
	d := daily[time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)]
	if d.Open != 100 || d.High != 105 || d.Low != 95 || d.Close != 101.5 || d.Volume != 2000 {
		t.Fatalf("unexpected daily bar %+v", d)
	}
}

func TestWindow(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []domain.Bar{{Time: t0.Add(2 * time.Hour)}, {Time: t0}, {Time: t0.Add(time.Hour)}}
	got := Window(bars, t0.Add(time.Hour), time.Time{})
	if len(got) != 2 || !got[0].Time.Equal(t0.Add(time.Hour)) {
		t.Fatalf("unexpected window %+v", got)
	}
}

type fakeBlobs map[string]string

func (f fakeBlobs) Get(_ context.Context, p string) (io.ReadCloser, error) {
	s, ok := f[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func (f fakeBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range f {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func TestBlobSource(t *testing.T) {
	src := NewBlobSource(fakeBlobs{"bars/ES.csv": sampleCSV}, "bars")
	bars, err := src.Bars(context.Background(), "ES", time.Time{}, time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("bars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars before cutoff, got %d", len(bars))
	}
	if _, err := src.Bars(context.Background(), "NQ", time.Time{}, time.Time{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBlobSourceSymbols(t *testing.T) {
	src := NewBlobSource(fakeBlobs{
		"bars/NQ.csv":    sampleCSV,
		"bars/ES.csv":    sampleCSV,
		"bars/README.md": "notes",
		"other/CL.csv":   sampleCSV,
	}, "bars")
	got, err := src.Symbols(context.Background())
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	if len(got) != 2 || got[0] != "ES" || got[1] != "NQ" {
		t.Fatalf("symbols = %v", got)
	}
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ES.csv"), []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	bars, err := DirSource(dir).Bars(context.Background(), "ES", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("bars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if _, err := DirSource(dir).Bars(context.Background(), "NQ", time.Time{}, time.Time{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
