package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for agent self-monitoring.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Discovery metrics
	DevicesTracked  prometheus.Gauge
	CapabilityFlags *prometheus.GaugeVec

	// Refresh metrics
	RefreshDuration   prometheus.Histogram
	RefreshTotal      prometheus.Counter
	LeafReadFailures  *prometheus.CounterVec
	SynthesizedFields *prometheus.CounterVec

	// Exposure metrics
	ExposureRequests *prometheus.CounterVec
	ExposureBytes    *prometheus.HistogramVec
	CompressionRatio prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	sizeBuckets := prometheus.ExponentialBuckets(64, 4, 8)

	m := &Metrics{
		Registry: reg,

		DevicesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpumon_agent_devices_tracked",
			Help: "Number of GPU devices in the device table.",
		}),
		CapabilityFlags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpumon_agent_capability_available",
			Help: "Per-device capability availability (1 = available).",
		}, []string{"device", "capability"}),

		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpumon_agent_refresh_duration_seconds",
			Help:    "Duration of full refresh ticks in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		RefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpumon_agent_refresh_total",
			Help: "Total number of completed refresh ticks.",
		}),
		LeafReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpumon_agent_leaf_read_failures_total",
			Help: "Total number of failed sysfs leaf reads.",
		}, []string{"device", "metric"}),
		SynthesizedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpumon_agent_synthesized_fields_total",
			Help: "Total number of metric fields filled with synthesized values.",
		}, []string{"device", "metric"}),

		ExposureRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpumon_agent_exposure_requests_total",
			Help: "Total number of exposure requests served.",
		}, []string{"format", "status"}),
		ExposureBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gpumon_agent_exposure_response_bytes",
			Help:    "Size of exposure responses in bytes.",
			Buckets: sizeBuckets,
		}, []string{"format"}),
		CompressionRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpumon_agent_compression_ratio",
			Help: "Current exposure compression ratio (compressed/original).",
		}),
	}

	// Register all metrics with the custom registry.
	reg.MustRegister(
		m.DevicesTracked,
		m.CapabilityFlags,
		m.RefreshDuration,
		m.RefreshTotal,
		m.LeafReadFailures,
		m.SynthesizedFields,
		m.ExposureRequests,
		m.ExposureBytes,
		m.CompressionRatio,
	)

	return m
}
