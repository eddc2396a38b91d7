package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/feed"
)

// Archiver copies bars from a store into object storage as one CSV per
// symbol, in the layout feed.BlobSource reads back.
type Archiver struct {
	writer domain.BlobWriter
	source domain.BarSource
	prefix string
}

// NewArchiver creates an Archiver writing under prefix.
func NewArchiver(writer domain.BlobWriter, source domain.BarSource, prefix string) *Archiver {
	return &Archiver{writer: writer, source: source, prefix: prefix}
}

// ArchiveSymbol uploads the bars of symbol within [from, to] and returns the
// number written. A symbol without bars uploads nothing.
func (a *Archiver) ArchiveSymbol(ctx context.Context, symbol string, from, to time.Time) (int64, error) {
	bars, err := a.source.Bars(ctx, symbol, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", symbol, err)
	}
	if len(bars) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	if err := feed.WriteCSV(&buf, bars); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s encode: %w", symbol, err)
	}

	path := feed.Key(a.prefix, symbol)
	if err := a.writer.Put(ctx, path, &buf, "text/csv"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", symbol, err)
	}
	return int64(len(bars)), nil
}
