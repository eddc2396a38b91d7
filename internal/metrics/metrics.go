package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barreplay_bars_processed_total",
			Help: "Total number of bars replayed.",
		},
		[]string{"symbol"},
	)
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barreplay_orders_submitted_total",
			Help: "Total number of orders submitted to replay streams.",
		},
		[]string{"symbol", "type"},
	)
	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barreplay_orders_filled_total",
			Help: "Total number of orders filled against a bar.",
		},
		[]string{"symbol", "type", "side"},
	)
	OrdersExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barreplay_orders_expired_total",
			Help: "Total number of DAY orders dropped unfilled.",
		},
		[]string{"symbol"},
	)
	PositionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barreplay_position_events_total",
			Help: "Position lifecycle transitions by kind. A partial close counts as position_split only.",
		},
		[]string{"symbol", "event"},
	)
	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barreplay_step_duration_seconds",
			Help:    "Time spent resolving one bar.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"symbol"},
	)
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barreplay_runs_total",
			Help: "Finished replay runs by outcome.",
		},
		[]string{"status"},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(BarsProcessed, OrdersSubmitted, OrdersFilled, OrdersExpired, PositionEvents, StepDuration, RunsTotal)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
