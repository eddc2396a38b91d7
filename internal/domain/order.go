package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Direction returns the position direction an order on this side opens:
// +1 for BUY, -1 for SELL.
func (s OrderSide) Direction() Direction {
	if s == OrderSideSell {
		return DirectionShort
	}
	return DirectionLong
}

// OrderType selects the matching rule used against a bar.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeMIT       OrderType = "MIT" // market-if-touched, matched like LIMIT
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
	OrderTypeMOO       OrderType = "MOO" // market-on-open
	OrderTypeMOC       OrderType = "MOC" // market-on-close
)

// MarketOnPrice picks the reference price a MARKET order fills at.
type MarketOnPrice string

const (
	MarketOnOpen  MarketOnPrice = "OPEN_PRICE"
	MarketOnClose MarketOnPrice = "CLOSE_PRICE"
	MarketOnTest  MarketOnPrice = "TEST_PRICE"
)

// TimeInForce describes how long a pending order stays eligible.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good-Till-Cancelled
	TimeInForceDay TimeInForce = "DAY" // expires after the submission day
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusFilled  OrderStatus = "FILLED"
)

// OrderID identifies an order within the container that issued it.
type OrderID int64

// OrderExpression is the immutable trading intent behind an order. Build it
// with NewOrderExpression; the zero value is not valid.
type OrderExpression struct {
	side          OrderSide
	typ           OrderType
	quantity      int64
	price         float64
	price2        float64
	marketOnPrice MarketOnPrice
	tif           TimeInForce
}

// ExpressionParams carries the constructor inputs for an OrderExpression.
type ExpressionParams struct {
	Side          OrderSide
	Type          OrderType
	Quantity      int64
	Price         float64 // limit or stop trigger
	Price2        float64 // stop-limit cap
	MarketOnPrice MarketOnPrice
	TimeInForce   TimeInForce
}

// NewOrderExpression validates p and returns the expression. Missing
// MarketOnPrice on a MARKET order defaults to CLOSE_PRICE and a missing time
// in force defaults to GTC.
func NewOrderExpression(p ExpressionParams) (OrderExpression, error) {
	if p.Side != OrderSideBuy && p.Side != OrderSideSell {
		return OrderExpression{}, fmt.Errorf("%w: unknown side %q", ErrInvalidExpression, p.Side)
	}
	if p.Quantity <= 0 {
		return OrderExpression{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidExpression, p.Quantity)
	}
	if p.TimeInForce == "" {
		p.TimeInForce = TimeInForceGTC
	}
	if p.TimeInForce != TimeInForceGTC && p.TimeInForce != TimeInForceDay {
		return OrderExpression{}, fmt.Errorf("%w: unknown time in force %q", ErrInvalidExpression, p.TimeInForce)
	}

	switch p.Type {
	case OrderTypeMarket:
		if p.MarketOnPrice == "" {
			p.MarketOnPrice = MarketOnClose
		}
		switch p.MarketOnPrice {
		case MarketOnOpen, MarketOnClose:
		case MarketOnTest:
			if p.Price == 0 {
				return OrderExpression{}, fmt.Errorf("%w: MARKET with TEST_PRICE requires price", ErrInvalidExpression)
			}
		default:
			return OrderExpression{}, fmt.Errorf("%w: unknown market-on price %q", ErrInvalidExpression, p.MarketOnPrice)
		}
	case OrderTypeLimit, OrderTypeStop, OrderTypeMIT:
		if p.Price == 0 {
			return OrderExpression{}, fmt.Errorf("%w: %s requires price", ErrInvalidExpression, p.Type)
		}
	case OrderTypeStopLimit:
		if p.Price == 0 || p.Price2 == 0 {
			return OrderExpression{}, fmt.Errorf("%w: STOP_LIMIT requires price and price2", ErrInvalidExpression)
		}
	case OrderTypeMOO, OrderTypeMOC:
	default:
		return OrderExpression{}, fmt.Errorf("%w: unknown order type %q", ErrInvalidExpression, p.Type)
	}
	if p.Type != OrderTypeMarket {
		p.MarketOnPrice = ""
	}

	return OrderExpression{
		side:          p.Side,
		typ:           p.Type,
		quantity:      p.Quantity,
		price:         p.Price,
		price2:        p.Price2,
		marketOnPrice: p.MarketOnPrice,
		tif:           p.TimeInForce,
	}, nil
}

// MustOrderExpression is NewOrderExpression for literals known to be valid.
func MustOrderExpression(p ExpressionParams) OrderExpression {
	e, err := NewOrderExpression(p)
	if err != nil {
		panic(err)
	}
	return e
}

func (e OrderExpression) Side() OrderSide              { return e.side }
func (e OrderExpression) Type() OrderType              { return e.typ }
func (e OrderExpression) Quantity() int64              { return e.quantity }
func (e OrderExpression) Price() float64               { return e.price }
func (e OrderExpression) Price2() float64              { return e.price2 }
func (e OrderExpression) MarketOnPrice() MarketOnPrice { return e.marketOnPrice }
func (e OrderExpression) TimeInForce() TimeInForce     { return e.tif }

// String renders the expression as e.g. "BUY 2 STOP_LIMIT 103@106 GTC".
func (e OrderExpression) String() string {
	var b strings.Builder
	b.WriteString(string(e.side))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(e.quantity, 10))
	b.WriteByte(' ')
	b.WriteString(string(e.typ))
	switch e.typ {
	case OrderTypeMarket:
		b.WriteByte(' ')
		b.WriteString(string(e.marketOnPrice))
		if e.marketOnPrice == MarketOnTest {
			b.WriteByte(' ')
			b.WriteString(formatPrice(e.price))
		}
	case OrderTypeLimit, OrderTypeStop, OrderTypeMIT:
		b.WriteByte(' ')
		b.WriteString(formatPrice(e.price))
	case OrderTypeStopLimit:
		b.WriteByte(' ')
		b.WriteString(formatPrice(e.price))
		b.WriteByte('@')
		b.WriteString(formatPrice(e.price2))
	}
	b.WriteByte(' ')
	b.WriteString(string(e.tif))
	return b.String()
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// Order is the mutable execution record of an OrderExpression. Fill fields
// are set by order resolution, position links by position resolution.
type Order struct {
	ID          OrderID
	Expression  OrderExpression
	Symbol      string
	Account     string
	User        string
	Strategy    string
	SubmittedAt time.Time

	Status           OrderStatus
	AverageFillPrice float64
	LastActivityTime time.Time
	FillBar          *Bar

	// Non-owning links into the position container. Zero means unset; at
	// most one of them is non-zero.
	EntryOfPosition PositionID
	ExitOfPosition  PositionID
	ExitOrder       bool
}

// NewOrder returns a PENDING order for expr. The id is assigned when the
// order is registered with a container.
func NewOrder(expr OrderExpression, symbol string, submittedAt time.Time) *Order {
	return &Order{
		Expression:  expr,
		Symbol:      symbol,
		SubmittedAt: submittedAt,
		Status:      OrderStatusPending,
	}
}

// Fill moves the order to FILLED at price using bar. It is terminal: a
// second call returns ErrOrderAlreadyFilled and leaves the order untouched.
func (o *Order) Fill(price float64, bar Bar) error {
	if o.Status == OrderStatusFilled {
		return fmt.Errorf("order %d: %w", o.ID, ErrOrderAlreadyFilled)
	}
	b := bar
	o.Status = OrderStatusFilled
	o.AverageFillPrice = price
	o.LastActivityTime = bar.Time
	o.FillBar = &b
	return nil
}

// IsFilled reports whether the order has been filled.
func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// SignedQuantity is the quantity signed by the side: positive for BUY.
func (o *Order) SignedQuantity() int64 {
	return int64(o.Expression.Side().Direction()) * o.Expression.Quantity()
}

// LinkEntry records that this order opened position id. An order that
// closed positions before opening the remainder keeps its ExitOrder flag.
func (o *Order) LinkEntry(id PositionID) {
	o.EntryOfPosition = id
	o.ExitOfPosition = 0
}

// LinkExit records that this order closed position id.
func (o *Order) LinkExit(id PositionID) {
	o.ExitOfPosition = id
	o.EntryOfPosition = 0
	o.ExitOrder = true
}
