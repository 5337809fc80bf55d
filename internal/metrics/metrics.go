// Package metrics exposes Prometheus collectors for the tool-call
// pipeline. Collectors are instance-based and registered against a
// caller-supplied registerer, so tests never collide on the default
// registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector bundles the pipeline's Prometheus metrics.
type Collector struct {
	// Decisions counts policy decisions by outcome (allow/ask/deny).
	Decisions *prometheus.CounterVec

	// Terminal counts calls reaching a terminal status
	// (success/error/cancelled).
	Terminal *prometheus.CounterVec

	// ExecutionDuration observes tool execution wall time per tool.
	ExecutionDuration *prometheus.HistogramVec

	// InFlight tracks calls currently between scheduling and a
	// terminal state.
	InFlight prometheus.Gauge
}

// New creates the pipeline collectors and registers them on reg.
// Passing prometheus.DefaultRegisterer wires the process-wide registry.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "policy_decisions_total",
				Help:      "Policy decisions by outcome.",
			},
			[]string{"decision"},
		),
		Terminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "calls_terminal_total",
				Help:      "Tool calls reaching a terminal status.",
			},
			[]string{"status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "toolgate",
				Name:      "execution_duration_seconds",
				Help:      "Tool execution wall time.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"tool"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "toolgate",
				Name:      "calls_in_flight",
				Help:      "Tool calls currently in a non-terminal state.",
			},
		),
	}
	reg.MustRegister(c.Decisions, c.Terminal, c.ExecutionDuration, c.InFlight)
	return c
}
