package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/barreplay/internal/book"
	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/feed"
	"github.com/alanyoungcy/barreplay/internal/metrics"
	"github.com/alanyoungcy/barreplay/internal/resolve"
)

// Stream replays bars of one symbol. It owns its order and position
// containers and must be driven from a single goroutine.
type Stream struct {
	symbol    string
	runID     string
	loc       *time.Location
	orders    *book.OrderContainer
	positions *book.PositionContainer
	schedule  []ScheduledOrder
	next      int
	events    *Publisher
	logger    *slog.Logger
}

// StepResult lists what happened on one bar.
type StepResult struct {
	Submitted []domain.OrderID
	Expired   []domain.OrderID
	Filled    []domain.OrderID
	Positions []resolve.Result
}

// NewStream creates a stream for symbol. schedule must already be filtered
// to the symbol and sorted by SubmitAt; loc decides where a trading day
// starts for DAY orders.
func NewStream(symbol, runID string, schedule []ScheduledOrder, loc *time.Location, events *Publisher, logger *slog.Logger) *Stream {
	if loc == nil {
		loc = time.UTC
	}
	return &Stream{
		symbol:    symbol,
		runID:     runID,
		loc:       loc,
		orders:    book.NewOrderContainer(),
		positions: book.NewPositionContainer(),
		schedule:  schedule,
		events:    events,
		logger:    logger.With(slog.String("symbol", symbol)),
	}
}

// Symbol returns the stream's symbol.
func (s *Stream) Symbol() string { return s.symbol }

// Orders exposes the stream's order container.
func (s *Stream) Orders() *book.OrderContainer { return s.orders }

// Positions exposes the stream's position container.
func (s *Stream) Positions() *book.PositionContainer { return s.positions }

// Submit places expr as a pending order. It is resolved from the next Step
// on.
func (s *Stream) Submit(expr domain.OrderExpression, strategy, account string, at time.Time) *domain.Order {
	o := s.orders.Submit(expr, s.symbol, strategy, at)
	o.Account = account
	metrics.OrdersSubmitted.WithLabelValues(s.symbol, string(expr.Type())).Inc()
	s.logger.Debug("replay: order submitted",
		slog.Int64("order_id", int64(o.ID)),
		slog.String("order", expr.String()),
		slog.Time("at", at),
	)
	return o
}

// Step resolves every pending order against bar, then feeds the fills in
// fill order through position resolution. daily is the optional daily
// aggregate for MOO and MOC orders. Orders scheduled at or before the bar
// time are submitted first, stamped with the later of their schedule time
// and the bar time, and DAY orders from an earlier day are expired.
func (s *Stream) Step(ctx context.Context, bar domain.Bar, daily *domain.Bar) (StepResult, error) {
	start := time.Now()
	defer func() {
		metrics.StepDuration.WithLabelValues(s.symbol).Observe(time.Since(start).Seconds())
	}()

	var res StepResult

	for s.next < len(s.schedule) && !s.schedule[s.next].SubmitAt.After(bar.Time) {
		so := s.schedule[s.next]
		s.next++
		expr, err := so.Expression()
		if err != nil {
			return res, fmt.Errorf("replay: %s: scheduled order %d: %w", s.symbol, s.next-1, err)
		}
		// an order scheduled before a gap lives on the day it reaches the book
		at := so.SubmitAt
		if bar.Time.After(at) {
			at = bar.Time
		}
		o := s.Submit(expr, so.Strategy, so.Account, at)
		o.User = so.User
		res.Submitted = append(res.Submitted, o.ID)
	}

	today := feed.DayKey(bar.Time, s.loc)
	for _, o := range s.orders.Open(s.symbol) {
		if o.Expression.TimeInForce() != domain.TimeInForceDay {
			continue
		}
		if !feed.DayKey(o.SubmittedAt, s.loc).Before(today) {
			continue
		}
		s.orders.Remove(o.ID)
		res.Expired = append(res.Expired, o.ID)
		metrics.OrdersExpired.WithLabelValues(s.symbol).Inc()
		s.events.Publish(ctx, domain.Event{
			Type: domain.EventOrderExpired, RunID: s.runID, Symbol: s.symbol, Time: bar.Time, OrderID: o.ID,
		})
	}

	var fills []*domain.Order
	for _, o := range s.orders.Open(s.symbol) {
		filled, err := resolve.ResolveOrder(bar, daily, o)
		if err != nil {
			return res, fmt.Errorf("replay: %s: %w", s.symbol, err)
		}
		if !filled {
			continue
		}
		if err := s.orders.MarkFilled(o.ID); err != nil {
			return res, fmt.Errorf("replay: %s: %w", s.symbol, err)
		}
		fills = append(fills, o)
		res.Filled = append(res.Filled, o.ID)
		metrics.OrdersFilled.WithLabelValues(s.symbol, string(o.Expression.Type()), string(o.Expression.Side())).Inc()
		s.events.Publish(ctx, domain.Event{
			Type: domain.EventOrderFilled, RunID: s.runID, Symbol: s.symbol, Time: bar.Time,
			OrderID: o.ID, Direction: o.Expression.Side().Direction(), Quantity: o.Expression.Quantity(),
			Price: o.AverageFillPrice, Strategy: o.Strategy,
		})
	}

	for _, o := range fills {
		pr, err := resolve.ResolvePosition(o, s.positions)
		if err != nil {
			return res, fmt.Errorf("replay: %s: %w", s.symbol, err)
		}
		res.Positions = append(res.Positions, pr)
		s.publishPositions(ctx, o, pr)
	}

	metrics.BarsProcessed.WithLabelValues(s.symbol).Inc()
	if len(fills) > 0 {
		s.logger.Debug("replay: bar resolved",
			slog.Time("bar", bar.Time),
			slog.Int("fills", len(fills)),
			slog.Int("open_positions", len(s.positions.OpenBySymbol(s.symbol))),
		)
	}
	return res, nil
}

func (s *Stream) publishPositions(ctx context.Context, o *domain.Order, pr resolve.Result) {
	split := make(map[domain.PositionID]domain.PositionID, len(pr.Splits))
	for _, sp := range pr.Splits {
		split[sp.Closed] = sp.Remainder
	}

	for _, id := range pr.Closed {
		p, err := s.positions.Get(id)
		if err != nil {
			continue
		}
		evt := domain.Event{
			Type: domain.EventPositionClosed, RunID: s.runID, Symbol: s.symbol, Time: p.ExitTime,
			OrderID: o.ID, PositionID: p.ID, Direction: p.Direction, Quantity: p.Quantity,
			Price: p.ExitPrice, Strategy: p.Strategy,
		}
		if rest, ok := split[id]; ok {
			evt.Type = domain.EventPositionSplit
			evt.RemainderID = rest
		}
		metrics.PositionEvents.WithLabelValues(s.symbol, string(evt.Type)).Inc()
		s.events.Publish(ctx, evt)
	}

	if pr.Opened != 0 {
		p, err := s.positions.Get(pr.Opened)
		if err != nil {
			return
		}
		metrics.PositionEvents.WithLabelValues(s.symbol, string(domain.EventPositionOpened)).Inc()
		s.events.Publish(ctx, domain.Event{
			Type: domain.EventPositionOpened, RunID: s.runID, Symbol: s.symbol, Time: p.EntryTime,
			OrderID: o.ID, PositionID: p.ID, Direction: p.Direction, Quantity: p.Quantity,
			Price: p.EntryPrice, Strategy: p.Strategy,
		})
	}
}
