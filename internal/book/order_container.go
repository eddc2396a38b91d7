package book

import (
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// OrderContainer indexes orders by id and keeps the still-pending ones in
// an "open" view ordered by submission.
type OrderContainer struct {
	seq  domain.OrderID
	byID map[domain.OrderID]*domain.Order
	open *idSet[domain.OrderID]
}

// NewOrderContainer returns an empty container whose id sequence starts at 1.
func NewOrderContainer() *OrderContainer {
	return &OrderContainer{
		byID: make(map[domain.OrderID]*domain.Order),
		open: newIDSet[domain.OrderID](),
	}
}

// Submit wraps expr in a new PENDING order for symbol and registers it.
func (c *OrderContainer) Submit(expr domain.OrderExpression, symbol, strategy string, at time.Time) *domain.Order {
	o := domain.NewOrder(expr, symbol, at)
	o.Strategy = strategy
	c.seq++
	o.ID = c.seq
	c.byID[o.ID] = o
	c.open.add(o.ID)
	return o
}

// Add registers an order built elsewhere. A zero id is assigned from the
// container's sequence; a duplicate id is rejected.
func (c *OrderContainer) Add(o *domain.Order) error {
	if o.ID == 0 {
		c.seq++
		o.ID = c.seq
	} else if _, ok := c.byID[o.ID]; ok {
		return fmt.Errorf("order %d: %w", o.ID, domain.ErrAlreadyExists)
	} else if o.ID > c.seq {
		c.seq = o.ID
	}
	c.byID[o.ID] = o
	if !o.IsFilled() {
		c.open.add(o.ID)
	}
	return nil
}

// MarkFilled takes a filled order out of the open view.
func (c *OrderContainer) MarkFilled(id domain.OrderID) error {
	o, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	if !o.IsFilled() {
		return fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFilled)
	}
	c.open.remove(id)
	return nil
}

// Remove drops the order from both the by-id index and the open view.
func (c *OrderContainer) Remove(id domain.OrderID) bool {
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	c.open.remove(id)
	return true
}

// Get returns the order with id.
func (c *OrderContainer) Get(id domain.OrderID) (*domain.Order, error) {
	o, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

// Open returns the pending orders in submission order. An empty symbol
// selects every symbol.
func (c *OrderContainer) Open(symbol string) []*domain.Order {
	ids := c.open.keys()
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o := c.byID[id]
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// All returns every order ordered by id.
func (c *OrderContainer) All() []*domain.Order {
	out := make([]*domain.Order, 0, len(c.byID))
	for _, o := range c.byID {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of orders held.
func (c *OrderContainer) Len() int {
	return len(c.byID)
}

// OpenLen is the number of pending orders.
func (c *OrderContainer) OpenLen() int {
	return c.open.len()
}
