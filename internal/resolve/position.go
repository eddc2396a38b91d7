package resolve

import (
	"fmt"

	"github.com/alanyoungcy/barreplay/internal/book"
	"github.com/alanyoungcy/barreplay/internal/domain"
)

// Split records one position split: Closed is the original position, now
// reduced and closed, and Remainder the new position that stays open with
// the quantity the order did not need.
type Split struct {
	Closed    domain.PositionID
	Remainder domain.PositionID
}

// Result lists the position changes caused by one filled order.
type Result struct {
	// Closed holds every position the order closed, most recent first,
	// including the closed side of a split.
	Closed []domain.PositionID
	Splits []Split
	// Opened is the new position in the order's own direction, zero when
	// the order was fully absorbed by closing.
	Opened domain.PositionID
}

// ResolvePosition applies a filled order to the open positions of its
// symbol. Opposite-direction positions are closed newest first; the
// position that absorbs the last part of the order is split when it holds
// more than needed, and any quantity left once no eligible position remains
// opens a new position in the order's direction.
func ResolvePosition(order *domain.Order, positions *book.PositionContainer) (Result, error) {
	var res Result
	if !order.IsFilled() {
		return res, fmt.Errorf("resolve: position for order %d: %w", order.ID, domain.ErrOrderNotFilled)
	}

	need := order.Expression.Quantity()
	closing := -order.Expression.Side().Direction()

	var queued []*domain.Position
	open := positions.OpenBySymbol(order.Symbol)
	for i := len(open) - 1; i >= 0 && need > 0; i-- {
		p := open[i]
		if p.Direction != closing {
			continue
		}

		need -= p.Quantity
		if need < 0 {
			rest := p.SplitOff(positions.NextID(), -need)
			queued = append(queued, rest)
			p.Quantity += need
			positions.AddPosition(p)
			res.Splits = append(res.Splits, Split{Closed: p.ID, Remainder: rest.ID})
		}
		closePosition(order, p, positions)
		res.Closed = append(res.Closed, p.ID)
	}

	if need > 0 {
		p, err := domain.NewPositionFromOrder(positions.NextID(), order, need)
		if err != nil {
			return res, fmt.Errorf("resolve: %w", err)
		}
		order.LinkEntry(p.ID)
		queued = append(queued, p)
		res.Opened = p.ID
	}

	for _, p := range queued {
		positions.AddPosition(p)
	}
	return res, nil
}

func closePosition(order *domain.Order, p *domain.Position, positions *book.PositionContainer) {
	p.Close(order)
	order.LinkExit(p.ID)
	positions.NotifyPositionClosed(p)
}
