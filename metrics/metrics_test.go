package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelimit/gateway/metrics"
)

func TestCollector_RecordDecisionIncrementsLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(metrics.WithRegistry(reg))

	c.RecordDecision("r1", "rateLimit", "denied")
	c.RecordDecision("r1", "rateLimit", "denied")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(2), counterValue(t, families, "gateway_decisions_total"))
}

func TestCollector_ObserveCounterStoreRecordsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(metrics.WithRegistry(reg))

	c.ObserveCounterStore("memory", time.Now(), assertErr{})

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(1), counterValue(t, families, "gateway_counter_store_errors_total"))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func counterValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			if m.GetCounter() != nil {
				total += m.GetCounter().GetValue()
			}
		}
		return total
	}
	t.Fatalf("metric family %q not found", name)
	return 0
}
