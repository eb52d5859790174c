package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics used in monitoring service.
var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Number of completed watch cycles by outcome",
			Name:      "watcher_cycles_total",
			Namespace: "wsbitcoin",
		},
		[]string{"outcome"},
	)
	skippedTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of watch cycles skipped because the previous one was still running",
			Name:      "watcher_skipped_ticks_total",
			Namespace: "wsbitcoin",
		},
	)
	fetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of failed transaction details requests",
			Name:      "watcher_fetch_failures_total",
			Namespace: "wsbitcoin",
		},
	)
	newRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of transactions reported to subscribers",
			Name:      "watcher_new_transactions_total",
			Namespace: "wsbitcoin",
		},
	)
	indexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of transactions in the confirmation index",
			Name:      "watcher_index_size",
			Namespace: "wsbitcoin",
		},
	)
	cycleTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Help:      "Watch cycle duration",
			Name:      "watcher_cycle_time",
			Namespace: "wsbitcoin",
		},
	)
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

func init() {
	prometheus.MustRegister(
		cyclesTotal,
		skippedTicks,
		fetchFailures,
		newRecords,
		indexSize,
		cycleTime,
	)
}
