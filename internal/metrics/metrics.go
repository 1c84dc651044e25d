package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simulator_ticks_total",
			Help: "Total number of pipeline ticks executed",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simulator_tick_duration_seconds",
			Help:    "Time spent in one pipeline tick",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulator_detections_total",
			Help: "Total number of simulated detections",
		},
		[]string{"animal", "danger_level"},
	)

	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulator_alerts_dispatched_total",
			Help: "Total number of alerts dispatched to sinks",
		},
		[]string{"danger_level"},
	)

	// reason: low_confidence, outside_zone
	DetectionsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulator_detections_dropped_total",
			Help: "Total number of detections that did not produce an alert",
		},
		[]string{"reason"},
	)

	SinkQueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulator_sink_queue_drops_total",
			Help: "Deliveries skipped because an async sink queue was full",
		},
		[]string{"sink"},
	)

	// Summed over all sessions; per-session sizes are served by the stats API.
	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simulator_history_size",
			Help: "Current number of alert records held in memory",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simulator_active_sessions",
			Help: "Number of sessions currently ticking",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected viewer websockets",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)
)
