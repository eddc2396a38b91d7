package domain

import (
	"context"
	"time"
)

// BarSource supplies historical bars for one symbol in ascending time order.
type BarSource interface {
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
}

// BarStore persists imported bars so later replays can read them back.
type BarStore interface {
	BarSource
	InsertBatch(ctx context.Context, symbol string, bars []Bar) (int64, error)
	Symbols(ctx context.Context) ([]string, error)
}
