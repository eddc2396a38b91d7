package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/feed"
	"github.com/alanyoungcy/barreplay/internal/metrics"
	"github.com/alanyoungcy/barreplay/internal/replay"
	"github.com/alanyoungcy/barreplay/internal/server"
	"github.com/alanyoungcy/barreplay/internal/server/handler"
	"github.com/alanyoungcy/barreplay/internal/server/ws"
	"github.com/alanyoungcy/barreplay/internal/service"
)

// ReplayMode replays the configured symbols once and logs the report
// summary. With metrics enabled the prometheus endpoint is served for the
// duration of the run.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	svc, err := a.newReplayService(deps, 1)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()

	if a.cfg.Metrics.Enabled {
		a.startMetricsServer(runCtx, g, deps)
	}

	g.Go(func() error {
		defer stopMetrics()
		st, err := svc.Replay(runCtx, a.cfg.Replay.Symbols)
		if err != nil {
			return fmt.Errorf("replay mode: %w", err)
		}
		attrs := []any{
			slog.String("run_id", st.ID),
			slog.Int("bars", st.Bars),
		}
		if st.Report != nil {
			attrs = append(attrs,
				slog.String("realized_pnl", st.Report.Total.RealizedPnL.String()),
				slog.Int("trades", st.Report.Total.Trades),
			)
		}
		if st.ReportPath != "" {
			attrs = append(attrs, slog.String("report", st.ReportPath))
		}
		a.logger.InfoContext(ctx, "replay mode: run finished", attrs...)
		return nil
	})

	return g.Wait()
}

// ServeMode runs the HTTP API: replays are queued through POST /api/runs and
// executed one at a time by the replay service worker, while the websocket
// hub forwards their live events to connected viewers.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svc, err := a.newReplayService(deps, a.cfg.Server.QueueSize)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, time.Now().UTC()),
		Runs:   handler.NewRunHandler(svc, deps.Events, a.logger),
	}
	if a.cfg.Metrics.Enabled {
		handlers.Metrics = metrics.Handler(deps.Registry)
	}
	if deps.Events != nil {
		hub := ws.NewHub(deps.Events, a.cfg.Replay.EventsChannel, a.logger)
		handlers.Hub = hub
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "serve mode: redis disabled, websocket feed and run events unavailable")
	}

	srv := server.NewServer(server.Config{
		Addr:        a.cfg.Server.Addr,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		MetricsPath: a.cfg.Metrics.Path,
		Limiter:     deps.Limiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  time.Duration(a.cfg.Server.RateWindowSeconds) * time.Second,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Serve(ctx)
	})

	return g.Wait()
}

// ImportMode loads CSV bar blobs under import.prefix into the bar store.
func (a *App) ImportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting import mode")

	svc := a.newBarService(deps)
	counts, err := svc.Import(ctx, a.cfg.Import.Symbols)
	if err != nil {
		return fmt.Errorf("import mode: %w", err)
	}
	a.logger.InfoContext(ctx, "import mode: done",
		slog.Int("symbols", len(counts)),
		slog.Int64("bars", sum(counts)),
	)
	return nil
}

// ExportMode writes stored bars back out as CSV blobs under import.prefix,
// bounded by the replay window.
func (a *App) ExportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting export mode")

	from, to, err := a.cfg.Window()
	if err != nil {
		return fmt.Errorf("export mode: %w", err)
	}
	svc := a.newBarService(deps)
	counts, err := svc.Export(ctx, a.cfg.Import.Symbols, from, to)
	if err != nil {
		return fmt.Errorf("export mode: %w", err)
	}
	a.logger.InfoContext(ctx, "export mode: done",
		slog.Int("symbols", len(counts)),
		slog.Int64("bars", sum(counts)),
	)
	return nil
}

// newReplayService loads the schedule and builds the runner and service
// shared by replay and serve mode.
func (a *App) newReplayService(deps *Dependencies, queueSize int) (*service.ReplayService, error) {
	if deps.Bars == nil {
		return nil, fmt.Errorf("no bar source wired for %q", a.cfg.Replay.BarSource)
	}
	schedule, err := replay.LoadSchedule(a.cfg.Replay.SchedulePath)
	if err != nil {
		return nil, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	from, to, err := a.cfg.Window()
	if err != nil {
		return nil, err
	}

	var events *replay.Publisher
	if deps.Events != nil {
		events = replay.NewPublisher(deps.Events, a.cfg.Replay.EventsChannel, a.logger)
	}
	runner := replay.NewRunner(deps.Bars, schedule, events, replay.Options{
		From:        from,
		To:          to,
		DailyBars:   a.cfg.Replay.DailyBars,
		Location:    loc,
		Parallelism: a.cfg.Replay.Parallelism,
	}, a.logger)

	var reports domain.BlobWriter
	if a.cfg.Replay.ExportReport {
		reports = deps.BlobWriter
	}
	svc := service.NewReplayService(runner, reports, service.ReplayOptions{
		PointValues:  a.cfg.Replay.PointValues,
		ReportPrefix: a.cfg.Replay.ReportPrefix,
		QueueSize:    queueSize,
	}, a.logger)
	if deps.Notifier != nil {
		svc.WithNotifier(deps.Notifier)
	}
	return svc, nil
}

func (a *App) newBarService(deps *Dependencies) *service.BarService {
	var archiver service.SymbolArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	svc := service.NewBarService(
		feed.NewBlobSource(deps.BlobReader, a.cfg.Import.Prefix),
		deps.BarStore,
		archiver,
		a.cfg.Import.BatchSize,
		a.logger,
	)
	if deps.Locks != nil {
		svc.WithLocks(deps.Locks)
	}
	return svc
}

// startMetricsServer adds a prometheus endpoint to g that shuts down when
// ctx is cancelled.
func (a *App) startMetricsServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	mux := http.NewServeMux()
	mux.Handle("GET "+a.cfg.Metrics.Path, metrics.Handler(deps.Registry))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "metrics server listening",
			slog.String("addr", a.cfg.Metrics.Addr),
			slog.String("path", a.cfg.Metrics.Path),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func sum(counts map[string]int64) int64 {
	var n int64
	for _, c := range counts {
		n += c
	}
	return n
}
