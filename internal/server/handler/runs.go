package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/replay"
	"github.com/alanyoungcy/barreplay/internal/service"
)

// ReplayService is what the run endpoints need from the replay service.
type ReplayService interface {
	Start(symbols []string) (string, error)
	Get(id string) (service.RunStatus, bool)
	List() []service.RunStatus
}

// EventReader reads the per-run event stream.
type EventReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// RunHandler serves replay run endpoints.
type RunHandler struct {
	runs   ReplayService
	events EventReader
	logger *slog.Logger
}

// NewRunHandler creates a RunHandler. events may be nil when no event bus
// is configured.
func NewRunHandler(runs ReplayService, events EventReader, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, events: events, logger: logger.With(slog.String("handler", "runs"))}
}

type startRunRequest struct {
	Symbols []string `json:"symbols"`
}

// StartRun queues a replay and answers with its id.
// POST /api/runs  {"symbols": ["ES"]}
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.runs.Start(req.Symbols)
	if err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "replay queue is full")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: start run failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

// ListRuns returns every known run without reports.
// GET /api/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.runs.List()})
}

// GetRun returns the status of one run, including its report once done.
// GET /api/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	st, ok := h.runs.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type runEventsResponse struct {
	Events []json.RawMessage `json:"events"`
	Next   string            `json:"next"`
}

// RunEvents pages through the event stream of a run. Pass the returned
// next id as after to continue.
// GET /api/runs/{id}/events?after=0&count=100
func (h *RunHandler) RunEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}
	id := r.PathValue("id")
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := queryInt(r, "count", 100, 1000)

	msgs, err := h.events.StreamRead(r.Context(), replay.StreamKey(id), after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read run events failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	resp := runEventsResponse{Events: make([]json.RawMessage, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		resp.Events = append(resp.Events, json.RawMessage(m.Payload))
		resp.Next = m.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
