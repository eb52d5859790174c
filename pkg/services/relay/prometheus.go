package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// unknownAction is used as a metric label for unsupported actions.
const unknownAction = "unknown"

// Metrics used in monitoring service.
var (
	actionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of calls by action",
			Name:      "relay_action_calls_total",
			Namespace: "wsbitcoin",
		},
		[]string{"action"},
	)
	actionTimes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Help:      "Action call handling time",
			Name:      "relay_action_time",
			Namespace: "wsbitcoin",
		},
		[]string{"action"},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of connected websocket clients",
			Name:      "relay_ws_clients",
			Namespace: "wsbitcoin",
		},
	)
	droppedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of events dropped because of slow clients",
			Name:      "relay_dropped_events_total",
			Namespace: "wsbitcoin",
		},
	)
)

func addReqTimeMetric(name string, t time.Duration) {
	actionTimes.WithLabelValues(name).Observe(t.Seconds())
	actionCounter.WithLabelValues(name).Inc()
}

func init() {
	prometheus.MustRegister(
		actionCounter,
		actionTimes,
		wsClients,
		droppedEvents,
	)
}
