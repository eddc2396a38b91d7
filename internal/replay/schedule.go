package replay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// ScheduledOrder is one order of a replay schedule: the expression is
// submitted to its symbol's stream on the first bar at or after SubmitAt.
type ScheduledOrder struct {
	Symbol        string    `toml:"symbol"`
	SubmitAt      time.Time `toml:"submit_at"`
	Side          string    `toml:"side"`
	Type          string    `toml:"type"`
	Quantity      int64     `toml:"quantity"`
	Price         float64   `toml:"price"`
	Price2        float64   `toml:"price2"`
	MarketOnPrice string    `toml:"market_on_price"`
	TimeInForce   string    `toml:"tif"`
	Strategy      string    `toml:"strategy"`
	Account       string    `toml:"account"`
	User          string    `toml:"user"`
}

// Expression builds the validated order expression.
func (o ScheduledOrder) Expression() (domain.OrderExpression, error) {
	return domain.NewOrderExpression(domain.ExpressionParams{
		Side:          domain.OrderSide(strings.ToUpper(o.Side)),
		Type:          domain.OrderType(strings.ToUpper(o.Type)),
		Quantity:      o.Quantity,
		Price:         o.Price,
		Price2:        o.Price2,
		MarketOnPrice: domain.MarketOnPrice(strings.ToUpper(o.MarketOnPrice)),
		TimeInForce:   domain.TimeInForce(strings.ToUpper(o.TimeInForce)),
	})
}

// Schedule is the set of orders a replay submits.
type Schedule struct {
	Orders []ScheduledOrder `toml:"orders"`
}

// LoadSchedule decodes a TOML file of [[orders]] tables and validates every
// entry.
func LoadSchedule(path string) (Schedule, error) {
	var s Schedule
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Schedule{}, fmt.Errorf("replay: decode schedule %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Schedule{}, fmt.Errorf("replay: schedule %s: unknown keys %v", path, undecoded)
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, fmt.Errorf("replay: schedule %s: %w", path, err)
	}
	return s, nil
}

// Validate checks every entry and reports all problems at once.
func (s Schedule) Validate() error {
	var errs []string
	for i, o := range s.Orders {
		if o.Symbol == "" {
			errs = append(errs, fmt.Sprintf("orders[%d]: symbol must not be empty", i))
		}
		if _, err := o.Expression(); err != nil {
			errs = append(errs, fmt.Sprintf("orders[%d]: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid schedule:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ForSymbol returns the symbol's orders sorted by submission time, keeping
// file order for ties.
func (s Schedule) ForSymbol(symbol string) []ScheduledOrder {
	var out []ScheduledOrder
	for _, o := range s.Orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmitAt.Before(out[j].SubmitAt) })
	return out
}

// Symbols lists the distinct symbols referenced by the schedule, sorted.
func (s Schedule) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range s.Orders {
		if !seen[o.Symbol] {
			seen[o.Symbol] = true
			out = append(out, o.Symbol)
		}
	}
	sort.Strings(out)
	return out
}
