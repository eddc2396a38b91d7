package domain

import (
	"errors"
	"testing"
	"time"
)

func filledOrder(t *testing.T, side OrderSide, qty int64, price float64, at time.Time) *Order {
	t.Helper()
	o := NewOrder(MustOrderExpression(ExpressionParams{Side: side, Type: OrderTypeMarket, Quantity: qty}), "CL", at)
	o.ID = 7
	if err := o.Fill(price, Bar{Time: at, Open: price, High: price, Low: price, Close: price}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	return o
}

func TestNewPositionFromOrderRequiresFill(t *testing.T) {
	o := NewOrder(MustOrderExpression(ExpressionParams{Side: OrderSideBuy, Type: OrderTypeMOO, Quantity: 1}), "CL", time.Time{})
	if _, err := NewPositionFromOrder(1, o, 1); !errors.Is(err, ErrOrderNotFilled) {
		t.Fatalf("expected ErrOrderNotFilled, got %v", err)
	}
}

func TestPositionLifecycleAndPnL(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	entry := filledOrder(t, OrderSideSell, 3, 80, t0)
	p, err := NewPositionFromOrder(1, entry, 3)
	if err != nil {
		t.Fatalf("new position: %v", err)
	}
	if p.Direction != DirectionShort || p.EntryOrder != 7 || p.EntryPrice != 80 || !p.IsOpen() {
		t.Fatalf("unexpected position %+v", p)
	}
	if p.SignedQuantity() != -3 {
		t.Fatalf("expected -3, got %d", p.SignedQuantity())
	}
	if p.RealizedPnL(10) != 0 {
		t.Fatalf("open position has no realized pnl")
	}

	rest := p.SplitOff(2, 1)
	if rest.EntryPrice != p.EntryPrice || !rest.EntryTime.Equal(p.EntryTime) || rest.EntryOrder != p.EntryOrder || !rest.IsOpen() {
		t.Fatalf("split must carry entry attributes: %+v", rest)
	}

	exit := filledOrder(t, OrderSideBuy, 3, 78, t0.Add(time.Hour))
	p.Close(exit)
	if p.IsOpen() || p.ExitPrice != 78 || !p.ExitTime.Equal(t0.Add(time.Hour)) {
		t.Fatalf("close fields not set: %+v", p)
	}
	if got := p.RealizedPnL(10); got != 60 {
		t.Fatalf("expected pnl 60, got %v", got)
	}
}
