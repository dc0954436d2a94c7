package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	next:
		for _, metric := range fam.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCountersAreIsolatedPerInstance(t *testing.T) {
	a, b := New(), New()
	a.Operation("file_report", "ok")
	a.Operation("file_report", "ok")
	a.SequenceRetry("report")

	ok := map[string]string{"operation": "file_report", "result": "ok"}
	assert.Equal(t, 2.0, counterValue(t, a, "caseline_engine_operations_total", ok))
	assert.Equal(t, 0.0, counterValue(t, b, "caseline_engine_operations_total", ok))
	assert.Equal(t, 1.0, counterValue(t, a, "caseline_engine_sequence_retries_total", map[string]string{"kind": "report"}))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Operation("x", "ok")
	m.Request("GET", "/", "200", 0.1)
	m.Delivery("webhook", "ok")
	m.CacheRead("hit")
	m.SequenceRetry("action")
}
