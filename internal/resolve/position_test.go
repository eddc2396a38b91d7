package resolve

import (
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/barreplay/internal/book"
	"github.com/alanyoungcy/barreplay/internal/domain"
)

type fixture struct {
	t         *testing.T
	orders    *book.OrderContainer
	positions *book.PositionContainer
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:         t,
		orders:    book.NewOrderContainer(),
		positions: book.NewPositionContainer(),
		clock:     time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC),
	}
}

// fill submits a MARKET order, fills it at price on a fresh bar and applies
// it to the position container.
func (f *fixture) fill(side domain.OrderSide, qty int64, price float64, strategy string) (*domain.Order, Result) {
	f.t.Helper()
	f.clock = f.clock.Add(time.Minute)
	e := domain.MustOrderExpression(domain.ExpressionParams{
		Side: side, Type: domain.OrderTypeMarket, Quantity: qty, MarketOnPrice: domain.MarketOnClose,
	})
	o := f.orders.Submit(e, "ES", strategy, f.clock)
	bar := domain.Bar{Time: f.clock, Open: price, High: price, Low: price, Close: price}
	if _, err := ResolveOrder(bar, nil, o); err != nil {
		f.t.Fatalf("resolve order: %v", err)
	}
	if err := f.orders.MarkFilled(o.ID); err != nil {
		f.t.Fatalf("mark filled: %v", err)
	}
	res, err := ResolvePosition(o, f.positions)
	if err != nil {
		f.t.Fatalf("resolve position: %v", err)
	}
	if err := f.positions.CheckConsistency(); err != nil {
		f.t.Fatalf("consistency after order %d: %v", o.ID, err)
	}
	return o, res
}

func (f *fixture) openSigned() int64 {
	var n int64
	for _, p := range f.positions.OpenBySymbol("ES") {
		n += p.SignedQuantity()
	}
	return n
}

func (f *fixture) position(id domain.PositionID) *domain.Position {
	f.t.Helper()
	p, err := f.positions.Get(id)
	if err != nil {
		f.t.Fatalf("get position %d: %v", id, err)
	}
	return p
}

func TestResolvePositionRequiresFilledOrder(t *testing.T) {
	f := newFixture(t)
	o := f.orders.Submit(expr(domain.OrderSideBuy, domain.OrderTypeMOO, 0, 0), "ES", "", f.clock)
	if _, err := ResolvePosition(o, f.positions); !errors.Is(err, domain.ErrOrderNotFilled) {
		t.Fatalf("expected ErrOrderNotFilled, got %v", err)
	}
	if f.positions.Len() != 0 {
		t.Fatalf("failed resolution must not create positions")
	}
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	entry, res := f.fill(domain.OrderSideBuy, 2, 100, "")
	if res.Opened == 0 || entry.EntryOfPosition != res.Opened {
		t.Fatalf("entry link missing: %+v %+v", res, entry)
	}
	first := res.Opened

	exit, res := f.fill(domain.OrderSideSell, 2, 104, "")
	if len(res.Closed) != 1 || res.Closed[0] != first || res.Opened != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !exit.ExitOrder || exit.ExitOfPosition != first {
		t.Fatalf("exit link missing: %+v", exit)
	}
	p := f.position(first)
	if p.Status != domain.PositionStatusClosed || p.ExitOrder != exit.ID || p.ExitPrice != 104 {
		t.Fatalf("position not closed: %+v", p)
	}
	if len(f.positions.OpenBySymbol("ES")) != 0 || len(f.positions.BySymbol("ES")) != 1 {
		t.Fatalf("expected one closed and zero open positions")
	}

	_, res = f.fill(domain.OrderSideBuy, 1, 101, "")
	if res.Opened == 0 || res.Opened == first {
		t.Fatalf("reopen must create a distinct position, got %d", res.Opened)
	}
}

func TestLIFOClosesMostRecent(t *testing.T) {
	f := newFixture(t)
	_, a := f.fill(domain.OrderSideBuy, 3, 100, "")
	_, b := f.fill(domain.OrderSideBuy, 2, 101, "")

	_, res := f.fill(domain.OrderSideSell, 2, 102, "")
	if len(res.Closed) != 1 || res.Closed[0] != b.Opened {
		t.Fatalf("expected B closed, got %+v", res)
	}
	if !f.position(a.Opened).IsOpen() || f.position(a.Opened).Quantity != 3 {
		t.Fatalf("A must stay open and untouched")
	}
}

func TestSplit(t *testing.T) {
	f := newFixture(t)
	entry, opened := f.fill(domain.OrderSideSell, 5, 100, "meanrev")
	orig := f.position(opened.Opened)
	origQty := orig.Quantity
	entryTime := orig.EntryTime

	exit, res := f.fill(domain.OrderSideBuy, 2, 97, "")
	if len(res.Splits) != 1 {
		t.Fatalf("expected one split, got %+v", res)
	}
	closed := f.position(res.Splits[0].Closed)
	rest := f.position(res.Splits[0].Remainder)

	if closed.ID != orig.ID || closed.Quantity != 2 || closed.IsOpen() {
		t.Fatalf("closed portion wrong: %+v", closed)
	}
	if rest.Quantity != 3 || !rest.IsOpen() {
		t.Fatalf("remainder wrong: %+v", rest)
	}
	if closed.Quantity+rest.Quantity != origQty {
		t.Fatalf("split lost quantity")
	}
	for _, p := range []*domain.Position{closed, rest} {
		if p.EntryPrice != 100 || !p.EntryTime.Equal(entryTime) || p.EntryOrder != entry.ID ||
			p.Direction != domain.DirectionShort || p.Strategy != "meanrev" {
			t.Fatalf("entry attributes not carried: %+v", p)
		}
	}
	if closed.ExitOrder != exit.ID || closed.ExitPrice != 97 {
		t.Fatalf("exit not recorded: %+v", closed)
	}
	if got := f.positions.OpenByStrategy("meanrev"); len(got) != 1 || got[0].ID != rest.ID {
		t.Fatalf("strategy open index = %v", got)
	}
	if res.Opened != 0 {
		t.Fatalf("split must not open a new position in the order direction")
	}
}

func TestCloseAcrossPositionsAndReverse(t *testing.T) {
	f := newFixture(t)
	_, a := f.fill(domain.OrderSideBuy, 1, 100, "")
	_, b := f.fill(domain.OrderSideBuy, 2, 101, "")

	o, res := f.fill(domain.OrderSideSell, 4, 103, "")
	if len(res.Closed) != 2 || res.Closed[0] != b.Opened || res.Closed[1] != a.Opened {
		t.Fatalf("expected B then A closed, got %+v", res)
	}
	if res.Opened == 0 {
		t.Fatalf("leftover quantity must open a short")
	}
	short := f.position(res.Opened)
	if short.Direction != domain.DirectionShort || short.Quantity != 1 || short.EntryPrice != 103 || short.EntryOrder != o.ID {
		t.Fatalf("unexpected short %+v", short)
	}
	if o.EntryOfPosition != short.ID || o.ExitOfPosition != 0 || !o.ExitOrder {
		t.Fatalf("order links: %+v", o)
	}
}

func TestSameDirectionNeverClosed(t *testing.T) {
	f := newFixture(t)
	_, a := f.fill(domain.OrderSideBuy, 1, 100, "")
	_, res := f.fill(domain.OrderSideBuy, 1, 101, "")
	if len(res.Closed) != 0 || res.Opened == 0 {
		t.Fatalf("same-direction order must open, got %+v", res)
	}
	if !f.position(a.Opened).IsOpen() {
		t.Fatalf("existing long must stay open")
	}
}

func TestQuantityConservation(t *testing.T) {
	f := newFixture(t)
	steps := []struct {
		side domain.OrderSide
		qty  int64
	}{
		{domain.OrderSideBuy, 3},
		{domain.OrderSideBuy, 1},
		{domain.OrderSideSell, 2},
		{domain.OrderSideSell, 5},
		{domain.OrderSideBuy, 1},
		{domain.OrderSideBuy, 4},
		{domain.OrderSideSell, 1},
		{domain.OrderSideSell, 1},
	}
	var net int64
	for i, s := range steps {
		o, _ := f.fill(s.side, s.qty, 100+float64(i), "")
		net += o.SignedQuantity()
		if got := f.openSigned(); got != net {
			t.Fatalf("step %d: open signed quantity %d, orders net %d", i, got, net)
		}
	}
}

func TestQuantityMutationKeepsMembership(t *testing.T) {
	f := newFixture(t)
	_, res := f.fill(domain.OrderSideBuy, 4, 100, "")
	p := f.position(res.Opened)
	p.Quantity = 1
	if !f.positions.IsOpenIndexed("ES", p.ID) {
		t.Fatalf("in-place mutation broke open index membership")
	}
	if err := f.positions.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}
