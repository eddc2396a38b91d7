// Package book holds the in-memory order and position registries a replay
// stream works against. The containers do no locking: each replay stream owns
// its own pair and drives it from a single goroutine.
package book

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// PositionContainer indexes positions by id, by symbol and by strategy. The
// symbol and strategy indices come in two flavours: every position ever
// added, and only those still OPENED. All mutation goes through AddPosition,
// NotifyPositionClosed and RemovePosition so the indices move together.
type PositionContainer struct {
	seq  domain.PositionID
	byID map[domain.PositionID]*domain.Position

	bySymbol       map[string]*idSet[domain.PositionID]
	openBySymbol   map[string]*idSet[domain.PositionID]
	byStrategy     map[string]*idSet[domain.PositionID]
	openByStrategy map[string]*idSet[domain.PositionID]
}

// NewPositionContainer returns an empty container whose id sequence starts
// at 1.
func NewPositionContainer() *PositionContainer {
	return &PositionContainer{
		byID:           make(map[domain.PositionID]*domain.Position),
		bySymbol:       make(map[string]*idSet[domain.PositionID]),
		openBySymbol:   make(map[string]*idSet[domain.PositionID]),
		byStrategy:     make(map[string]*idSet[domain.PositionID]),
		openByStrategy: make(map[string]*idSet[domain.PositionID]),
	}
}

// NextID hands out the next position id of this container.
func (c *PositionContainer) NextID() domain.PositionID {
	c.seq++
	return c.seq
}

// AddPosition registers p in the all-positions indices for its symbol and
// strategy, and in the open indices when p is OPENED. A zero id is replaced
// by NextID. Adding an id that is already present replaces the stored
// position without duplicating index entries.
func (c *PositionContainer) AddPosition(p *domain.Position) {
	if p.ID == 0 {
		p.ID = c.NextID()
	} else if p.ID > c.seq {
		c.seq = p.ID
	}

	if old, ok := c.byID[p.ID]; ok && (old.Symbol != p.Symbol || old.Strategy != p.Strategy) {
		c.unindex(old)
	}
	c.byID[p.ID] = p

	setFor(c.bySymbol, p.Symbol).add(p.ID)
	if p.Strategy != "" {
		setFor(c.byStrategy, p.Strategy).add(p.ID)
	}

	if p.IsOpen() {
		setFor(c.openBySymbol, p.Symbol).add(p.ID)
		if p.Strategy != "" {
			setFor(c.openByStrategy, p.Strategy).add(p.ID)
		}
		return
	}
	c.removeOpen(p)
}

// NotifyPositionClosed drops p from the open indices. The all-positions
// indices keep it.
func (c *PositionContainer) NotifyPositionClosed(p *domain.Position) {
	c.removeOpen(p)
}

// RemovePosition drops the position from every index. It reports whether
// the id was present.
func (c *PositionContainer) RemovePosition(id domain.PositionID) bool {
	p, ok := c.byID[id]
	if !ok {
		return false
	}
	c.unindex(p)
	delete(c.byID, id)
	return true
}

func (c *PositionContainer) unindex(p *domain.Position) {
	removeFrom(c.bySymbol, p.Symbol, p.ID)
	removeFrom(c.byStrategy, p.Strategy, p.ID)
	c.removeOpen(p)
}

func (c *PositionContainer) removeOpen(p *domain.Position) {
	removeFrom(c.openBySymbol, p.Symbol, p.ID)
	removeFrom(c.openByStrategy, p.Strategy, p.ID)
}

// Get returns the position with id.
func (c *PositionContainer) Get(id domain.PositionID) (*domain.Position, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("position %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// BySymbol returns every position of symbol, oldest first.
func (c *PositionContainer) BySymbol(symbol string) []*domain.Position {
	return c.resolve(c.bySymbol[symbol])
}

// OpenBySymbol returns the OPENED positions of symbol, oldest first.
func (c *PositionContainer) OpenBySymbol(symbol string) []*domain.Position {
	return c.resolve(c.openBySymbol[symbol])
}

// ByStrategy returns every position tagged with strategy, oldest first.
func (c *PositionContainer) ByStrategy(strategy string) []*domain.Position {
	return c.resolve(c.byStrategy[strategy])
}

// OpenByStrategy returns the OPENED positions tagged with strategy.
func (c *PositionContainer) OpenByStrategy(strategy string) []*domain.Position {
	return c.resolve(c.openByStrategy[strategy])
}

// IsOpenIndexed reports whether id is in the open index of symbol.
func (c *PositionContainer) IsOpenIndexed(symbol string, id domain.PositionID) bool {
	s, ok := c.openBySymbol[symbol]
	return ok && s.has(id)
}

// All returns every position ordered by id.
func (c *PositionContainer) All() []*domain.Position {
	out := make([]*domain.Position, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Symbols returns the symbols that have at least one position, sorted.
func (c *PositionContainer) Symbols() []string {
	return sortedKeys(c.bySymbol)
}

// Strategies returns the strategy tags in use, sorted.
func (c *PositionContainer) Strategies() []string {
	return sortedKeys(c.byStrategy)
}

// Len is the number of positions held.
func (c *PositionContainer) Len() int {
	return len(c.byID)
}

// OpenLen is the number of OPENED positions held.
func (c *PositionContainer) OpenLen() int {
	n := 0
	for _, s := range c.openBySymbol {
		n += s.len()
	}
	return n
}

// CheckConsistency verifies that every index agrees with the status and
// tags of the positions in byID.
func (c *PositionContainer) CheckConsistency() error {
	for id, p := range c.byID {
		if p.ID != id {
			return fmt.Errorf("%w: position stored under %d has id %d", domain.ErrIndexInconsistent, id, p.ID)
		}
		if !hasMember(c.bySymbol, p.Symbol, id) {
			return fmt.Errorf("%w: position %d missing from symbol %q", domain.ErrIndexInconsistent, id, p.Symbol)
		}
		if p.Strategy != "" && !hasMember(c.byStrategy, p.Strategy, id) {
			return fmt.Errorf("%w: position %d missing from strategy %q", domain.ErrIndexInconsistent, id, p.Strategy)
		}
		openSym := hasMember(c.openBySymbol, p.Symbol, id)
		openStrat := p.Strategy == "" || hasMember(c.openByStrategy, p.Strategy, id)
		if p.IsOpen() && (!openSym || !openStrat) {
			return fmt.Errorf("%w: open position %d missing from open index", domain.ErrIndexInconsistent, id)
		}
		if !p.IsOpen() && (openSym || (p.Strategy != "" && hasMember(c.openByStrategy, p.Strategy, id))) {
			return fmt.Errorf("%w: closed position %d still in open index", domain.ErrIndexInconsistent, id)
		}
	}
	for _, family := range []map[string]*idSet[domain.PositionID]{
		c.bySymbol, c.openBySymbol, c.byStrategy, c.openByStrategy,
	} {
		for key, s := range family {
			for _, id := range s.keys() {
				if _, ok := c.byID[id]; !ok {
					return fmt.Errorf("%w: index %q holds unknown position %d", domain.ErrIndexInconsistent, key, id)
				}
			}
		}
	}
	return nil
}

func (c *PositionContainer) resolve(s *idSet[domain.PositionID]) []*domain.Position {
	if s == nil {
		return nil
	}
	ids := s.keys()
	out := make([]*domain.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.byID[id])
	}
	return out
}

func setFor(m map[string]*idSet[domain.PositionID], key string) *idSet[domain.PositionID] {
	s, ok := m[key]
	if !ok {
		s = newIDSet[domain.PositionID]()
		m[key] = s
	}
	return s
}

func removeFrom(m map[string]*idSet[domain.PositionID], key string, id domain.PositionID) {
	s, ok := m[key]
	if !ok {
		return
	}
	s.remove(id)
	if s.len() == 0 {
		delete(m, key)
	}
}

func hasMember(m map[string]*idSet[domain.PositionID], key string, id domain.PositionID) bool {
	s, ok := m[key]
	return ok && s.has(id)
}

func sortedKeys(m map[string]*idSet[domain.PositionID]) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
