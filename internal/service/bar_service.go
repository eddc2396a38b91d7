package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/feed"
)

// SymbolArchiver uploads the stored bars of one symbol to object storage.
type SymbolArchiver interface {
	ArchiveSymbol(ctx context.Context, symbol string, from, to time.Time) (int64, error)
}

// BarService moves bars between CSV objects and the bar store.
type BarService struct {
	blobs     *feed.BlobSource
	store     domain.BarStore
	archiver  SymbolArchiver
	locks     domain.LockManager
	batchSize int
	logger    *slog.Logger
}

// importLockTTL bounds how long a crashed importer blocks a symbol.
const importLockTTL = 10 * time.Minute

// NewBarService creates a BarService. archiver may be nil when exports are
// not needed.
func NewBarService(blobs *feed.BlobSource, store domain.BarStore, archiver SymbolArchiver, batchSize int, logger *slog.Logger) *BarService {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &BarService{
		blobs:     blobs,
		store:     store,
		archiver:  archiver,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "bar_service")),
	}
}

// WithLocks makes Import take a per-symbol lock so concurrent importers
// do not interleave batches of the same symbol.
func (s *BarService) WithLocks(locks domain.LockManager) *BarService {
	s.locks = locks
	return s
}

// Import copies the CSV bars of symbols into the store in batches. An empty
// list imports every CSV object under the source prefix. It returns the rows
// written per symbol.
func (s *BarService) Import(ctx context.Context, symbols []string) (map[string]int64, error) {
	if len(symbols) == 0 {
		var err error
		if symbols, err = s.blobs.Symbols(ctx); err != nil {
			return nil, fmt.Errorf("bar_service: import: %w", err)
		}
	}

	written := make(map[string]int64, len(symbols))
	for _, symbol := range symbols {
		n, err := s.importSymbol(ctx, symbol)
		written[symbol] = n
		if err != nil {
			return written, fmt.Errorf("bar_service: import %s: %w", symbol, err)
		}
	}
	return written, nil
}

func (s *BarService) importSymbol(ctx context.Context, symbol string) (int64, error) {
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, "import:"+symbol, importLockTTL)
		if err != nil {
			return 0, err
		}
		defer release()
	}

	bars, err := s.blobs.Bars(ctx, symbol, time.Time{}, time.Time{})
	if err != nil {
		return 0, err
	}
	var written int64
	for start := 0; start < len(bars); start += s.batchSize {
		end := min(start+s.batchSize, len(bars))
		n, err := s.store.InsertBatch(ctx, symbol, bars[start:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	s.logger.InfoContext(ctx, "bar_service: symbol imported",
		slog.String("symbol", symbol),
		slog.Int("bars", len(bars)),
		slog.Int64("rows", written),
	)
	return written, nil
}

// Export archives the stored bars of symbols within [from, to]. An empty
// list exports every stored symbol.
func (s *BarService) Export(ctx context.Context, symbols []string, from, to time.Time) (map[string]int64, error) {
	if s.archiver == nil {
		return nil, fmt.Errorf("bar_service: export: no archiver configured")
	}
	if len(symbols) == 0 {
		var err error
		if symbols, err = s.store.Symbols(ctx); err != nil {
			return nil, fmt.Errorf("bar_service: export: %w", err)
		}
	}

	written := make(map[string]int64, len(symbols))
	for _, symbol := range symbols {
		n, err := s.archiver.ArchiveSymbol(ctx, symbol, from, to)
		if err != nil {
			return written, fmt.Errorf("bar_service: export %s: %w", symbol, err)
		}
		written[symbol] = n
		s.logger.InfoContext(ctx, "bar_service: symbol exported",
			slog.String("symbol", symbol),
			slog.Int64("bars", n),
		)
	}
	return written, nil
}
