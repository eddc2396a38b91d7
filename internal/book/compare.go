package book

import (
	"fmt"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// Compare checks that two containers hold the same positions, matched by
// id. It returns an error wrapping domain.ErrContainerMismatch that names
// the first offending position, or nil when they agree.
func Compare(want, got *PositionContainer) error {
	if want.Len() != got.Len() {
		return fmt.Errorf("%w: size %d != %d", domain.ErrContainerMismatch, want.Len(), got.Len())
	}
	if want.OpenLen() != got.OpenLen() {
		return fmt.Errorf("%w: open size %d != %d", domain.ErrContainerMismatch, want.OpenLen(), got.OpenLen())
	}
	for _, w := range want.All() {
		g, err := got.Get(w.ID)
		if err != nil {
			return fmt.Errorf("%w: position %d missing", domain.ErrContainerMismatch, w.ID)
		}
		if field, ok := diffPosition(w, g); !ok {
			return fmt.Errorf("%w: position %d (%s): %s differs", domain.ErrContainerMismatch, w.ID, w.Symbol, field)
		}
	}
	return nil
}

func diffPosition(a, b *domain.Position) (string, bool) {
	switch {
	case a.Symbol != b.Symbol:
		return "symbol", false
	case a.Strategy != b.Strategy:
		return "strategy", false
	case a.Direction != b.Direction:
		return "direction", false
	case a.Quantity != b.Quantity:
		return "quantity", false
	case a.Status != b.Status:
		return "status", false
	case a.EntryPrice != b.EntryPrice:
		return "entry price", false
	case !a.EntryTime.Equal(b.EntryTime):
		return "entry time", false
	case a.EntryOrder != b.EntryOrder:
		return "entry order", false
	case a.ExitPrice != b.ExitPrice:
		return "exit price", false
	case !a.ExitTime.Equal(b.ExitTime):
		return "exit time", false
	case a.ExitOrder != b.ExitOrder:
		return "exit order", false
	}
	return "", true
}
