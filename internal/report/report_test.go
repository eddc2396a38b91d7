package report

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/barreplay/internal/book"
	"github.com/alanyoungcy/barreplay/internal/domain"
)

func closed(symbol, strategy string, dir domain.Direction, qty int64, entry, exit float64) *domain.Position {
	return &domain.Position{
		Symbol: symbol, Strategy: strategy, Direction: dir, Quantity: qty,
		EntryPrice: entry, ExitPrice: exit, Status: domain.PositionStatusClosed,
	}
}

func TestPnL(t *testing.T) {
	long := closed("ES", "", domain.DirectionLong, 2, 100.25, 101.5)
	if got := PnL(long, 50); !got.Equal(decimal.RequireFromString("125")) {
		t.Fatalf("long pnl = %s", got)
	}
	short := closed("ES", "", domain.DirectionShort, 1, 100, 103)
	if got := PnL(short, 50); !got.Equal(decimal.RequireFromString("-150")) {
		t.Fatalf("short pnl = %s", got)
	}
	open := &domain.Position{Direction: domain.DirectionLong, Quantity: 1, Status: domain.PositionStatusOpened}
	if !PnL(open, 50).IsZero() {
		t.Fatalf("open pnl must be zero")
	}
}

func TestBuild(t *testing.T) {
	es := book.NewPositionContainer()
	es.AddPosition(closed("ES", "trend", domain.DirectionLong, 1, 100, 102))
	es.AddPosition(closed("ES", "trend", domain.DirectionShort, 1, 100, 101))
	es.AddPosition(&domain.Position{Symbol: "ES", Direction: domain.DirectionShort, Quantity: 3, Status: domain.PositionStatusOpened})

	cl := book.NewPositionContainer()
	cl.AddPosition(closed("CL", "", domain.DirectionLong, 2, 80, 80.5))

	r := Build("run-1", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), map[string]float64{"ES": 50}, es, cl)

	if len(r.Symbols) != 2 || r.Symbols[0].Key != "CL" || r.Symbols[1].Key != "ES" {
		t.Fatalf("symbols = %+v", r.Symbols)
	}
	esSum := r.Symbols[1]
	if esSum.Trades != 2 || esSum.Wins != 1 || esSum.Losses != 1 || esSum.OpenQuantity != -3 {
		t.Fatalf("ES summary = %+v", esSum)
	}
	if !esSum.RealizedPnL.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("ES pnl = %s", esSum.RealizedPnL)
	}
	if !r.Symbols[0].RealizedPnL.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("CL pnl with default point value = %s", r.Symbols[0].RealizedPnL)
	}
	if len(r.Strategies) != 1 || r.Strategies[0].Trades != 2 {
		t.Fatalf("strategies = %+v", r.Strategies)
	}
	if r.Total.Trades != 3 || !r.Total.RealizedPnL.Equal(decimal.NewFromInt(51)) {
		t.Fatalf("total = %+v", r.Total)
	}
}

type memWriter map[string][]byte

func (m memWriter) Put(_ context.Context, p string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m[p] = b
	return nil
}

func TestExport(t *testing.T) {
	w := memWriter{}
	r := Report{RunID: "abc", Total: Summary{Key: "total", Trades: 1, RealizedPnL: decimal.NewFromInt(5)}}
	key, err := Export(context.Background(), w, "reports", r)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if key != "reports/abc.json" {
		t.Fatalf("key = %q", key)
	}
	var back Report
	if err := json.Unmarshal(w[key], &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Total.Trades != 1 || !back.Total.RealizedPnL.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("exported report = %+v", back)
	}
}
