package book

import (
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

func openPosition(symbol, strategy string, dir domain.Direction, qty int64) *domain.Position {
	return &domain.Position{
		Symbol:     symbol,
		Strategy:   strategy,
		Direction:  dir,
		Quantity:   qty,
		EntryPrice: 100,
		EntryTime:  time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Status:     domain.PositionStatusOpened,
	}
}

func ids(ps []*domain.Position) []domain.PositionID {
	out := make([]domain.PositionID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func equalIDs(a, b []domain.PositionID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAddPositionIndexes(t *testing.T) {
	c := NewPositionContainer()
	a := openPosition("ES", "trend", domain.DirectionLong, 1)
	b := openPosition("ES", "", domain.DirectionShort, 2)
	d := openPosition("NQ", "trend", domain.DirectionLong, 3)
	c.AddPosition(a)
	c.AddPosition(b)
	c.AddPosition(d)

	if a.ID != 1 || b.ID != 2 || d.ID != 3 {
		t.Fatalf("expected sequential ids, got %d %d %d", a.ID, b.ID, d.ID)
	}
	if got := ids(c.OpenBySymbol("ES")); !equalIDs(got, []domain.PositionID{1, 2}) {
		t.Fatalf("open ES = %v", got)
	}
	if got := ids(c.OpenByStrategy("trend")); !equalIDs(got, []domain.PositionID{1, 3}) {
		t.Fatalf("open trend = %v", got)
	}
	if got := c.Strategies(); len(got) != 1 || got[0] != "trend" {
		t.Fatalf("untagged positions must not create a strategy index: %v", got)
	}
	if got := c.Symbols(); len(got) != 2 || got[0] != "ES" || got[1] != "NQ" {
		t.Fatalf("symbols = %v", got)
	}
	if c.Len() != 3 || c.OpenLen() != 3 {
		t.Fatalf("len=%d open=%d", c.Len(), c.OpenLen())
	}
	if err := c.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}

func TestNotifyPositionClosedKeepsAllIndex(t *testing.T) {
	c := NewPositionContainer()
	a := openPosition("ES", "trend", domain.DirectionLong, 1)
	c.AddPosition(a)

	a.Status = domain.PositionStatusClosed
	c.NotifyPositionClosed(a)

	if len(c.OpenBySymbol("ES")) != 0 || len(c.OpenByStrategy("trend")) != 0 {
		t.Fatalf("closed position still in open indices")
	}
	if got := ids(c.BySymbol("ES")); !equalIDs(got, []domain.PositionID{a.ID}) {
		t.Fatalf("all ES = %v", got)
	}
	if got := ids(c.ByStrategy("trend")); !equalIDs(got, []domain.PositionID{a.ID}) {
		t.Fatalf("all trend = %v", got)
	}
	if err := c.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}

func TestReAddReplacesWithoutDuplicate(t *testing.T) {
	c := NewPositionContainer()
	a := openPosition("ES", "trend", domain.DirectionLong, 5)
	b := openPosition("ES", "trend", domain.DirectionLong, 1)
	c.AddPosition(a)
	c.AddPosition(b)

	a.Quantity = 2
	c.AddPosition(a)

	if got := ids(c.OpenBySymbol("ES")); !equalIDs(got, []domain.PositionID{a.ID, b.ID}) {
		t.Fatalf("re-add must keep the original slot, got %v", got)
	}
	if got := ids(c.BySymbol("ES")); len(got) != 2 {
		t.Fatalf("re-add duplicated entry: %v", got)
	}
	p, err := c.Get(a.ID)
	if err != nil || p.Quantity != 2 {
		t.Fatalf("get after re-add: %v %+v", err, p)
	}
	if !c.IsOpenIndexed("ES", a.ID) {
		t.Fatalf("mutating quantity must not affect membership")
	}
}

func TestAddClosedPositionSkipsOpenIndex(t *testing.T) {
	c := NewPositionContainer()
	a := openPosition("ES", "trend", domain.DirectionLong, 1)
	a.Status = domain.PositionStatusClosed
	c.AddPosition(a)
	if c.OpenLen() != 0 || len(c.BySymbol("ES")) != 1 {
		t.Fatalf("closed position indexed as open")
	}
}

func TestRemovePosition(t *testing.T) {
	c := NewPositionContainer()
	a := openPosition("ES", "trend", domain.DirectionLong, 1)
	c.AddPosition(a)
	if !c.RemovePosition(a.ID) {
		t.Fatalf("expected remove true")
	}
	if c.RemovePosition(a.ID) {
		t.Fatalf("expected second remove false")
	}
	if _, err := c.Get(a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(c.BySymbol("ES")) != 0 || len(c.ByStrategy("trend")) != 0 || c.OpenLen() != 0 {
		t.Fatalf("removed position still indexed")
	}
}

func TestCheckConsistencyDetectsStaleOpenIndex(t *testing.T) {
	c := NewPositionContainer()
	a := openPosition("ES", "", domain.DirectionLong, 1)
	c.AddPosition(a)
	// Status flipped without notifying the container.
	a.Status = domain.PositionStatusClosed
	if err := c.CheckConsistency(); !errors.Is(err, domain.ErrIndexInconsistent) {
		t.Fatalf("expected ErrIndexInconsistent, got %v", err)
	}
}

func TestExplicitIDAdvancesSequence(t *testing.T) {
	c := NewPositionContainer()
	a := openPosition("ES", "", domain.DirectionLong, 1)
	a.ID = 10
	c.AddPosition(a)
	if id := c.NextID(); id != 11 {
		t.Fatalf("expected 11, got %d", id)
	}
}

func TestCompare(t *testing.T) {
	build := func() *PositionContainer {
		c := NewPositionContainer()
		c.AddPosition(openPosition("ES", "trend", domain.DirectionLong, 1))
		c.AddPosition(openPosition("ES", "", domain.DirectionShort, 2))
		return c
	}
	a, b := build(), build()
	if err := Compare(a, b); err != nil {
		t.Fatalf("identical containers: %v", err)
	}

	p, _ := b.Get(2)
	p.Quantity = 3
	err := Compare(a, b)
	if !errors.Is(err, domain.ErrContainerMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if want := "position containers differ: position 2 (ES): quantity differs"; err.Error() != want {
		t.Fatalf("error = %q", err.Error())
	}

	b.AddPosition(openPosition("NQ", "", domain.DirectionLong, 1))
	if err := Compare(a, b); !errors.Is(err, domain.ErrContainerMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
}
