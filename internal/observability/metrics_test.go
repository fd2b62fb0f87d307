package observability

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestNewMetrics_RegistersAll(t *testing.T) {
	m := NewMetrics()

	// Vectors only appear after first use.
	m.CapabilityFlags.WithLabelValues("0000:01:00.0", "temperature").Set(1)
	m.LeafReadFailures.WithLabelValues("0000:01:00.0", "power").Inc()
	m.SynthesizedFields.WithLabelValues("0000:00:02.0", "utilization").Inc()
	m.ExposureRequests.WithLabelValues("text", "200").Inc()
	m.ExposureBytes.WithLabelValues("text").Observe(512)

	families := gather(t, m)
	for _, name := range []string{
		"gpumon_agent_devices_tracked",
		"gpumon_agent_capability_available",
		"gpumon_agent_refresh_duration_seconds",
		"gpumon_agent_refresh_total",
		"gpumon_agent_leaf_read_failures_total",
		"gpumon_agent_synthesized_fields_total",
		"gpumon_agent_exposure_requests_total",
		"gpumon_agent_exposure_response_bytes",
		"gpumon_agent_compression_ratio",
	} {
		assert.Contains(t, families, name)
	}
}

func TestMetrics_CounterSemantics(t *testing.T) {
	m := NewMetrics()

	m.RefreshTotal.Inc()
	m.RefreshTotal.Inc()
	m.DevicesTracked.Set(2)

	families := gather(t, m)

	refresh := families["gpumon_agent_refresh_total"]
	require.Len(t, refresh.GetMetric(), 1)
	assert.InDelta(t, 2.0, refresh.GetMetric()[0].GetCounter().GetValue(), 0.001)

	devices := families["gpumon_agent_devices_tracked"]
	require.Len(t, devices.GetMetric(), 1)
	assert.InDelta(t, 2.0, devices.GetMetric()[0].GetGauge().GetValue(), 0.001)
}

func TestMetrics_LeafFailureLabels(t *testing.T) {
	m := NewMetrics()

	m.LeafReadFailures.WithLabelValues("0000:01:00.0", "temperature").Inc()
	m.LeafReadFailures.WithLabelValues("0000:01:00.0", "fan").Inc()

	families := gather(t, m)
	fam := families["gpumon_agent_leaf_read_failures_total"]
	assert.Len(t, fam.GetMetric(), 2)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.RefreshTotal.Inc()

	families := gather(t, b)
	fam := families["gpumon_agent_refresh_total"]
	require.Len(t, fam.GetMetric(), 1)
	assert.Zero(t, fam.GetMetric()[0].GetCounter().GetValue())
}
