package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesReceived.WithLabelValues("MESSAGE").Add(3)
	m.UpdatesDelivered.WithLabelValues("full_update").Inc()
	m.ParseErrors.Inc()
	m.SetRegistry(2, 5)

	if got := testutil.ToFloat64(m.FramesReceived.WithLabelValues("MESSAGE")); got != 3 {
		t.Errorf("frames MESSAGE = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Subscriptions); got != 2 {
		t.Errorf("subscriptions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Consumers); got != 5 {
		t.Errorf("consumers = %v, want 5", got)
	}

	expected := `
# HELP facility_live_parse_errors_total MESSAGE bodies that could not be parsed into an update.
# TYPE facility_live_parse_errors_total counter
facility_live_parse_errors_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "facility_live_parse_errors_total"); err != nil {
		t.Error(err)
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// Each manager gets its own registry in tests; this must not panic
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
	New(nil)
}
