package domain

import (
	"fmt"
	"time"
)

// Direction is the sign of a holding: +1 long, -1 short.
type Direction int

const (
	DirectionLong  Direction = 1
	DirectionShort Direction = -1
)

func (d Direction) String() string {
	if d == DirectionShort {
		return "short"
	}
	return "long"
}

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpened PositionStatus = "OPENED"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// PositionID identifies a position within the container that issued it.
// Container indices key on it; it never changes after assignment.
type PositionID int64

// Position is a directional holding opened by one order and, once closed,
// exited by another. Only Quantity and the exit fields change after
// creation, and nothing changes once Status is CLOSED.
type Position struct {
	ID        PositionID
	Symbol    string
	Strategy  string
	Direction Direction
	Quantity  int64

	EntryPrice float64
	EntryTime  time.Time
	EntryOrder OrderID

	ExitPrice float64
	ExitTime  time.Time
	ExitOrder OrderID

	Status PositionStatus
}

// NewPositionFromOrder opens a position of quantity in the order's own
// direction at its fill price and time. The order must be FILLED.
func NewPositionFromOrder(id PositionID, order *Order, quantity int64) (*Position, error) {
	if !order.IsFilled() {
		return nil, fmt.Errorf("open position from order %d: %w", order.ID, ErrOrderNotFilled)
	}
	return &Position{
		ID:         id,
		Symbol:     order.Symbol,
		Strategy:   order.Strategy,
		Direction:  order.Expression.Side().Direction(),
		Quantity:   quantity,
		EntryPrice: order.AverageFillPrice,
		EntryTime:  order.LastActivityTime,
		EntryOrder: order.ID,
		Status:     PositionStatusOpened,
	}, nil
}

// SplitOff returns a new OPENED position with id that carries p's entry
// attributes and the given quantity. p itself is not modified.
func (p *Position) SplitOff(id PositionID, quantity int64) *Position {
	return &Position{
		ID:         id,
		Symbol:     p.Symbol,
		Strategy:   p.Strategy,
		Direction:  p.Direction,
		Quantity:   quantity,
		EntryPrice: p.EntryPrice,
		EntryTime:  p.EntryTime,
		EntryOrder: p.EntryOrder,
		Status:     PositionStatusOpened,
	}
}

// Close records the exit taken from a filled order.
func (p *Position) Close(order *Order) {
	p.ExitPrice = order.AverageFillPrice
	p.ExitTime = order.LastActivityTime
	p.ExitOrder = order.ID
	p.Status = PositionStatusClosed
}

// IsOpen reports whether the position is still OPENED.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpened
}

// SignedQuantity is Quantity signed by Direction.
func (p *Position) SignedQuantity() int64 {
	return int64(p.Direction) * p.Quantity
}

// RealizedPnL returns (exit - entry) * direction * quantity * pointValue for
// a closed position and zero for an open one.
func (p *Position) RealizedPnL(pointValue float64) float64 {
	if p.IsOpen() {
		return 0
	}
	return (p.ExitPrice - p.EntryPrice) * float64(p.Direction) * float64(p.Quantity) * pointValue
}
