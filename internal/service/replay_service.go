package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/metrics"
	"github.com/alanyoungcy/barreplay/internal/replay"
	"github.com/alanyoungcy/barreplay/internal/report"
)

// Run states reported by RunStatus.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ErrQueueFull is returned by Start when too many runs are waiting.
var ErrQueueFull = errors.New("replay queue is full")

// ReplayOptions configures report handling for finished runs.
type ReplayOptions struct {
	PointValues  map[string]float64
	ReportPrefix string
	// QueueSize bounds runs waiting for the worker started by Run.
	QueueSize int
}

// RunStatus is the externally visible state of one replay run.
type RunStatus struct {
	ID         string         `json:"id"`
	State      string         `json:"state"`
	Symbols    []string       `json:"symbols,omitempty"`
	QueuedAt   time.Time      `json:"queued_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Bars       int            `json:"bars"`
	Error      string         `json:"error,omitempty"`
	ReportPath string         `json:"report_path,omitempty"`
	Report     *report.Report `json:"report,omitempty"`
}

// RunNotifier receives an alert when a run finishes. event is
// "run_completed" or "run_failed".
type RunNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

type runRequest struct {
	id      string
	symbols []string
}

// ReplayService runs replays and keeps the status and report of every run
// it has seen. Replay runs synchronously; Start queues a run for the worker
// loop in Run.
type ReplayService struct {
	runner  *replay.Runner
	reports domain.BlobWriter
	opts    ReplayOptions
	queue   chan runRequest
	alerts  RunNotifier
	logger  *slog.Logger

	mu   sync.RWMutex
	runs map[string]*RunStatus
	ids  []string
}

// NewReplayService creates a ReplayService. reports may be nil, in which
// case reports are built but not exported.
func NewReplayService(runner *replay.Runner, reports domain.BlobWriter, opts ReplayOptions, logger *slog.Logger) *ReplayService {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	return &ReplayService{
		runner:  runner,
		reports: reports,
		opts:    opts,
		queue:   make(chan runRequest, opts.QueueSize),
		logger:  logger.With(slog.String("component", "replay_service")),
		runs:    make(map[string]*RunStatus),
	}
}

// WithNotifier sends run outcome alerts to n.
func (s *ReplayService) WithNotifier(n RunNotifier) *ReplayService {
	s.alerts = n
	return s
}

// Replay runs symbols to completion and returns the final status. A failed
// replay returns the error alongside its status.
func (s *ReplayService) Replay(ctx context.Context, symbols []string) (RunStatus, error) {
	id := uuid.NewString()
	s.track(id, symbols)
	return s.execute(ctx, id, symbols)
}

// Start queues a replay of symbols and returns its run id immediately.
func (s *ReplayService) Start(symbols []string) (string, error) {
	id := uuid.NewString()
	s.track(id, symbols)
	select {
	case s.queue <- runRequest{id: id, symbols: symbols}:
		return id, nil
	default:
		s.untrack(id)
		return "", fmt.Errorf("replay_service: start: %w", ErrQueueFull)
	}
}

// Run executes queued replays one at a time until ctx is cancelled.
func (s *ReplayService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "replay_service: worker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.queue:
			if _, err := s.execute(ctx, req.id, req.symbols); err != nil {
				s.logger.WarnContext(ctx, "replay_service: queued run failed",
					slog.String("run_id", req.id),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Get returns a copy of the status of run id.
func (s *ReplayService) Get(id string) (RunStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[id]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// List returns every known run, oldest first, without reports.
func (s *ReplayService) List() []RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunStatus, 0, len(s.ids))
	for _, id := range s.ids {
		st := *s.runs[id]
		st.Report = nil
		out = append(out, st)
	}
	return out
}

func (s *ReplayService) track(id string, symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = &RunStatus{
		ID:       id,
		State:    RunQueued,
		Symbols:  append([]string(nil), symbols...),
		QueuedAt: time.Now().UTC(),
	}
	s.ids = append(s.ids, id)
}

func (s *ReplayService) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	for i, known := range s.ids {
		if known == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

func (s *ReplayService) update(id string, fn func(*RunStatus)) RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.runs[id]
	fn(st)
	return *st
}

func (s *ReplayService) execute(ctx context.Context, id string, symbols []string) (RunStatus, error) {
	s.update(id, func(st *RunStatus) { st.State = RunRunning })

	run, err := s.runner.RunWithID(ctx, id, symbols)
	if err != nil {
		metrics.RunsTotal.WithLabelValues(RunFailed).Inc()
		st := s.update(id, func(st *RunStatus) {
			now := time.Now().UTC()
			st.State = RunFailed
			st.Error = err.Error()
			st.FinishedAt = &now
		})
		s.alert(ctx, "run_failed", "Replay run failed",
			fmt.Sprintf("run %s (%s): %v", id, strings.Join(symbols, ","), err))
		return st, fmt.Errorf("replay_service: run %s: %w", id, err)
	}

	now := time.Now().UTC()
	rep := report.Build(run.ID, now, s.opts.PointValues, run.Positions()...)

	var path string
	if s.reports != nil {
		path, err = report.Export(ctx, s.reports, s.opts.ReportPrefix, rep)
		if err != nil {
			// The replay itself succeeded; keep its result.
			s.logger.WarnContext(ctx, "replay_service: report export failed",
				slog.String("run_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	metrics.RunsTotal.WithLabelValues(RunCompleted).Inc()
	s.logger.InfoContext(ctx, "replay_service: run completed",
		slog.String("run_id", id),
		slog.Int("bars", run.Bars),
		slog.Int("trades", rep.Total.Trades),
		slog.String("realized_pnl", rep.Total.RealizedPnL.String()),
		slog.Int64("open_quantity", rep.Total.OpenQuantity),
	)

	st := s.update(id, func(st *RunStatus) {
		st.State = RunCompleted
		st.Bars = run.Bars
		st.FinishedAt = &now
		st.ReportPath = path
		st.Report = &rep
	})
	s.alert(ctx, "run_completed", "Replay run completed",
		fmt.Sprintf("run %s: %d bars, %d trades, realized pnl %s, open quantity %d",
			id, run.Bars, rep.Total.Trades, rep.Total.RealizedPnL.String(), rep.Total.OpenQuantity))
	return st, nil
}

// alert delivers outside ctx so a cancelled run still reports its failure.
func (s *ReplayService) alert(ctx context.Context, event, title, message string) {
	if s.alerts == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.alerts.Notify(actx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "replay_service: alert failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
