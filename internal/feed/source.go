package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// BlobSource reads bars from CSV objects named <prefix>/<symbol>.csv.
type BlobSource struct {
	blobs  domain.BlobReader
	prefix string
}

// NewBlobSource creates a BlobSource over blobs rooted at prefix.
func NewBlobSource(blobs domain.BlobReader, prefix string) *BlobSource {
	return &BlobSource{blobs: blobs, prefix: prefix}
}

// Key returns the object path holding symbol's bars.
func (s *BlobSource) Key(symbol string) string {
	return Key(s.prefix, symbol)
}

// Key is the object path of symbol's bars under prefix.
func Key(prefix, symbol string) string {
	return path.Join(prefix, symbol+".csv")
}

// Symbols lists the symbols that have a CSV object under the prefix.
func (s *BlobSource) Symbols(ctx context.Context) ([]string, error) {
	infos, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("feed: list %s: %w", s.prefix, err)
	}
	var out []string
	for _, info := range infos {
		name := path.Base(info.Path)
		if path.Ext(name) != ".csv" {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".csv"))
	}
	sort.Strings(out)
	return out, nil
}

// Bars loads, sorts and filters the bars of symbol to [from, to]. A zero
// bound is open.
func (s *BlobSource) Bars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	key := s.Key(symbol)
	rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("feed: get %s: %w", key, err)
	}
	defer rc.Close()

	bars, err := ParseCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", key, err)
	}
	return Window(bars, from, to), nil
}

// DirSource reads bars from <dir>/<symbol>.csv on the local filesystem.
type DirSource string

// Bars loads, sorts and filters the bars of symbol.
func (d DirSource) Bars(_ context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	name := filepath.Join(string(d), symbol+".csv")
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("feed: open %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("feed: open %s: %w", name, err)
	}
	defer f.Close()

	bars, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", name, err)
	}
	return Window(bars, from, to), nil
}

// MemorySource serves bars held in memory, keyed by symbol.
type MemorySource map[string][]domain.Bar

// Bars returns a sorted, filtered copy of the symbol's bars.
func (m MemorySource) Bars(_ context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	bars, ok := m[symbol]
	if !ok {
		return nil, fmt.Errorf("feed: symbol %q: %w", symbol, domain.ErrNotFound)
	}
	return Window(append([]domain.Bar(nil), bars...), from, to), nil
}

// Window sorts bars by time and keeps those within [from, to]. A zero bound
// is open. The input slice is reordered in place.
func Window(bars []domain.Bar, from, to time.Time) []domain.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	out := bars[:0]
	for _, b := range bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

var (
	_ domain.BarSource = (*BlobSource)(nil)
	_ domain.BarSource = DirSource("")
	_ domain.BarSource = MemorySource(nil)
)
