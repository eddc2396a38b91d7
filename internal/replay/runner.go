// Package replay drives bar-by-bar replays: for each bar it resolves every
// pending order, then feeds the fills through position resolution before
// moving to the next bar.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/barreplay/internal/book"
	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/feed"
)

// Options tune a Runner.
type Options struct {
	From time.Time
	To   time.Time
	// DailyBars pairs each bar with the daily aggregate of its day for MOO
	// and MOC orders.
	DailyBars bool
	// Location decides calendar days for daily aggregates and DAY orders.
	Location *time.Location
	// Parallelism caps concurrently replayed symbols; 0 means unlimited.
	Parallelism int
}

// Runner replays a schedule against bars from a BarSource. Each symbol gets
// its own Stream with independent containers, so symbols replay in
// parallel while each stream stays strictly sequential.
type Runner struct {
	source   domain.BarSource
	schedule Schedule
	events   *Publisher
	opts     Options
	logger   *slog.Logger
}

// NewRunner creates a Runner. events may be nil.
func NewRunner(source domain.BarSource, schedule Schedule, events *Publisher, opts Options, logger *slog.Logger) *Runner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Runner{
		source:   source,
		schedule: schedule,
		events:   events,
		opts:     opts,
		logger:   logger.With(slog.String("component", "replay")),
	}
}

// Run is the outcome of a replay.
type Run struct {
	ID      string
	Streams []*Stream
	Bars    int
}

// Positions returns the position container of every stream.
func (r *Run) Positions() []*book.PositionContainer {
	out := make([]*book.PositionContainer, 0, len(r.Streams))
	for _, s := range r.Streams {
		out = append(out, s.Positions())
	}
	return out
}

// Stream returns the stream replaying symbol, or nil.
func (r *Run) Stream(symbol string) *Stream {
	for _, s := range r.Streams {
		if s.Symbol() == symbol {
			return s
		}
	}
	return nil
}

// Run replays symbols under a fresh run id; an empty list replays every
// symbol in the schedule. The first stream error cancels the others.
func (r *Runner) Run(ctx context.Context, symbols []string) (*Run, error) {
	return r.RunWithID(ctx, uuid.NewString(), symbols)
}

// RunWithID is Run with a caller-chosen run id, for callers that hand the id
// out before the replay finishes.
func (r *Runner) RunWithID(ctx context.Context, runID string, symbols []string) (*Run, error) {
	if len(symbols) == 0 {
		symbols = r.schedule.Symbols()
	}
	run := &Run{
		ID:      runID,
		Streams: make([]*Stream, len(symbols)),
	}
	counts := make([]int, len(symbols))

	r.logger.InfoContext(ctx, "replay: run starting",
		slog.String("run_id", run.ID),
		slog.Int("symbols", len(symbols)),
		slog.Int("orders", len(r.schedule.Orders)),
	)

	g, gctx := errgroup.WithContext(ctx)
	if r.opts.Parallelism > 0 {
		g.SetLimit(r.opts.Parallelism)
	}
	for i, symbol := range symbols {
		stream := NewStream(symbol, run.ID, r.schedule.ForSymbol(symbol), r.opts.Location, r.events, r.logger)
		run.Streams[i] = stream
		g.Go(func() error {
			n, err := r.replay(gctx, stream)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return run, err
	}

	for _, n := range counts {
		run.Bars += n
	}
	r.events.Publish(ctx, domain.Event{Type: domain.EventRunCompleted, RunID: run.ID, Time: time.Now().UTC()})
	r.logger.InfoContext(ctx, "replay: run completed",
		slog.String("run_id", run.ID),
		slog.Int("bars", run.Bars),
	)
	return run, nil
}

func (r *Runner) replay(ctx context.Context, stream *Stream) (int, error) {
	symbol := stream.Symbol()
	bars, err := r.source.Bars(ctx, symbol, r.opts.From, r.opts.To)
	if err != nil {
		return 0, fmt.Errorf("replay: load bars for %s: %w", symbol, err)
	}

	var daily map[time.Time]domain.Bar
	if r.opts.DailyBars {
		daily = feed.AggregateDaily(bars, r.opts.Location)
	}

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		var d *domain.Bar
		if daily != nil {
			if agg, ok := daily[feed.DayKey(bar.Time, r.opts.Location)]; ok {
				d = &agg
			}
		}
		if _, err := stream.Step(ctx, bar, d); err != nil {
			return i, err
		}
	}

	r.logger.InfoContext(ctx, "replay: symbol finished",
		slog.String("symbol", symbol),
		slog.Int("bars", len(bars)),
		slog.Int("orders", stream.Orders().Len()),
		slog.Int("pending", stream.Orders().OpenLen()),
		slog.Int("positions", stream.Positions().Len()),
		slog.Int("open_positions", stream.Positions().OpenLen()),
	)
	return len(bars), nil
}
