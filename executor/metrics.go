package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	// Commands counts runs by operation and outcome (ok, error).
	Commands *prometheus.CounterVec
	// Duration observes run latency in seconds, retries included.
	Duration *prometheus.HistogramVec
	// CacheLookups counts reader cache lookups by cache name and result (hit, miss, error).
	CacheLookups *prometheus.CounterVec
	// Deadlocks counts transient failures that were retried or exhausted.
	Deadlocks prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbcommand_commands_total",
				Help: "Commands run by the execution engine.",
			},
			[]string{"operation", "outcome"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbcommand_command_duration_seconds",
				Help:    "Command latency including deadlock retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbcommand_cache_lookups_total",
				Help: "Reader cache lookups.",
			},
			[]string{"cache", "result"},
		),
		Deadlocks: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dbcommand_deadlocks_total",
				Help: "Transient lock failures seen by the engine.",
			},
		),
	}
}
