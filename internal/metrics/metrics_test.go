package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Decisions.WithLabelValues("allow").Inc()
	c.Terminal.WithLabelValues("success").Add(2)
	c.ExecutionDuration.WithLabelValues("shell").Observe(0.05)
	c.InFlight.Inc()

	if got := testutil.ToFloat64(c.Decisions.WithLabelValues("allow")); got != 1 {
		t.Errorf("decisions{allow} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Terminal.WithLabelValues("success")); got != 2 {
		t.Errorf("terminal{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.InFlight); got != 1 {
		t.Errorf("in_flight = %v, want 1", got)
	}
}

func TestNewIsolatedRegistries(t *testing.T) {
	t.Parallel()

	// Two collectors on separate registries must not collide.
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.Decisions.WithLabelValues("deny").Inc()
	if got := testutil.ToFloat64(b.Decisions.WithLabelValues("deny")); got != 0 {
		t.Errorf("second registry saw %v decisions, want 0", got)
	}
}
