// Package resolve decides how pending orders execute against price bars and
// turns the resulting fills into position lifecycle changes.
package resolve

import (
	"fmt"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// ResolveOrder evaluates a pending order against one bar. daily, when not
// nil, is the daily aggregate used by MOO and MOC orders. It reports whether
// the order filled; a false result leaves the order pending for a later bar.
// Resolving an order that is already FILLED is an error.
func ResolveOrder(bar domain.Bar, daily *domain.Bar, order *domain.Order) (bool, error) {
	if order.IsFilled() {
		return false, fmt.Errorf("resolve: order %d: %w", order.ID, domain.ErrOrderAlreadyFilled)
	}
	price, ok := FillPrice(bar, daily, order.Expression)
	if !ok {
		return false, nil
	}
	if err := order.Fill(price, bar); err != nil {
		return false, fmt.Errorf("resolve: %w", err)
	}
	return true, nil
}

// FillPrice returns the price expr would execute at within bar, and false
// when the bar never reaches the order's trigger. Thresholds are compared
// exactly, without tolerance.
func FillPrice(bar domain.Bar, daily *domain.Bar, expr domain.OrderExpression) (float64, bool) {
	buy := expr.Side() == domain.OrderSideBuy
	price := expr.Price()

	switch expr.Type() {
	case domain.OrderTypeMarket:
		switch expr.MarketOnPrice() {
		case domain.MarketOnOpen:
			return bar.Open, true
		case domain.MarketOnTest:
			if bar.Contains(price) {
				return price, true
			}
			return bar.Close, true
		default:
			return bar.Close, true
		}

	case domain.OrderTypeLimit, domain.OrderTypeMIT:
		if buy {
			if bar.Low > price {
				return 0, false
			}
			if bar.Open <= price {
				return bar.Open, true
			}
			return price, true
		}
		if bar.High < price {
			return 0, false
		}
		if bar.Open >= price {
			return bar.Open, true
		}
		return price, true

	case domain.OrderTypeStop:
		if buy {
			if bar.High < price {
				return 0, false
			}
			if bar.Open >= price {
				return bar.Open, true
			}
			return price, true
		}
		if bar.Low > price {
			return 0, false
		}
		if bar.Open <= price {
			return bar.Open, true
		}
		return price, true

	case domain.OrderTypeStopLimit:
		return stopLimitPrice(bar, buy, price, expr.Price2())

	case domain.OrderTypeMOO:
		if daily != nil {
			return daily.Open, true
		}
		return bar.Open, true

	case domain.OrderTypeMOC:
		if daily != nil {
			return daily.Close, true
		}
		return bar.Close, true
	}
	return 0, false
}

// stopLimitPrice handles STOP_LIMIT: stop is the trigger and limit bounds
// the worst acceptable fill. When the bar opens beyond the stop it fills at
// the open if that is still inside the limit, or at the limit if the bar
// trades back to it. A bar that opens beyond the limit and never returns to
// it leaves the order pending.
func stopLimitPrice(bar domain.Bar, buy bool, stop, limit float64) (float64, bool) {
	if buy {
		if bar.High < stop {
			return 0, false
		}
		if bar.Open <= stop {
			return stop, true
		}
		if bar.Open > limit && bar.Low <= limit {
			return limit, true
		}
		if bar.Open <= limit {
			return bar.Open, true
		}
		return 0, false
	}

	if bar.Low > stop {
		return 0, false
	}
	if bar.Open >= stop {
		return stop, true
	}
	if bar.Open < limit && bar.High >= limit {
		return limit, true
	}
	if bar.Open >= limit {
		return bar.Open, true
	}
	return 0, false
}
