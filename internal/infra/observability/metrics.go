// Package observability exposes Prometheus metrics for the timer daemon.
// Metrics are registered via promauto at init and served from the API's
// /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Timer Metrics ──────────────────────────────────────────────────────────

// TimerTransitions counts play/pause/reset/next-stage transitions.
var TimerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ebbtide",
	Subsystem: "timer",
	Name:      "transitions_total",
	Help:      "Total timer state transitions by kind.",
}, []string{"kind"})

// SecondsRemaining tracks the currently displayed countdown value.
var SecondsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ebbtide",
	Subsystem: "timer",
	Name:      "seconds_remaining",
	Help:      "Seconds remaining on the current stage.",
})

// ─── Store Metrics ──────────────────────────────────────────────────────────

// StoreWrites counts document writes by collection.
var StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ebbtide",
	Subsystem: "store",
	Name:      "writes_total",
	Help:      "Total document writes by collection.",
}, []string{"collection"})

// StoreWriteFailures counts failed document writes by collection.
var StoreWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ebbtide",
	Subsystem: "store",
	Name:      "write_failures_total",
	Help:      "Total failed document writes by collection.",
}, []string{"collection"})

// ─── Identity Metrics ───────────────────────────────────────────────────────

// Migrations counts document migrations across identity changes.
var Migrations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ebbtide",
	Subsystem: "identity",
	Name:      "migrations_total",
	Help:      "Total document migrations by document kind and outcome.",
}, []string{"document", "outcome"})

// SignIns counts sign-in events by identity kind.
var SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ebbtide",
	Subsystem: "identity",
	Name:      "sign_ins_total",
	Help:      "Total sign-ins by identity kind (anonymous or durable).",
}, []string{"kind"})

// ─── History Metrics ────────────────────────────────────────────────────────

// HistoryPruned counts intervals removed by the retention cleanup.
var HistoryPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ebbtide",
	Subsystem: "history",
	Name:      "pruned_intervals_total",
	Help:      "Total history intervals removed by the retention cleanup.",
})
