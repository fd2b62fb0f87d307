// Package reader implements the per-vendor strategies that turn a
// device's discovered capability set into current metric values.
//
// A strategy is selected once at discovery time and stored alongside
// the device; the refresh hot path never re-dispatches on vendor ID.
// Every strategy resets the per-cycle fields to zero before filling,
// so a zero always means "not obtained this cycle".
package reader

import (
	"log/slog"

	"github.com/gpumon/gpumon-agent/internal/observability"
	"github.com/gpumon/gpumon-agent/internal/sysfs"
	"github.com/gpumon/gpumon-agent/pkg/model"
)

// Reader reads the current metric values for one device, mutating m in
// place. Implementations never touch any other device's state and
// never return an error: a failed leaf read leaves its field at the
// reset value until the next tick.
type Reader interface {
	Read(caps model.Capabilities, m *model.Metrics)
}

// ForVendor selects the strategy for a device. hwmonMax bounds the
// Intel strategy's CPU thermal sensor search.
func ForVendor(fs *sysfs.FS, id model.DeviceIdentity, obs *observability.Metrics, hwmonMax int) Reader {
	switch id.VendorID {
	case model.VendorNVIDIA:
		return &hwmonReader{fs: fs, id: id, obs: obs, withDRM: false}
	case model.VendorAMD:
		return &hwmonReader{fs: fs, id: id, obs: obs, withDRM: true}
	case model.VendorIntel:
		return newIntelReader(fs, id, obs, hwmonMax)
	default:
		return &unsupportedReader{id: id}
	}
}

// resetForRead zeroes every per-cycle field. MemoryTotalMB is retained
// across cycles: capacity does not change between ticks and consumers
// expect it to survive a transient read failure.
func resetForRead(m *model.Metrics) {
	m.MemoryUsedMB = 0
	m.TemperatureC = 0
	m.ClockMHz = 0
	m.PowerWatts = 0
	m.UtilizationPct = 0
	m.FanRPM = 0
}

// readLeaf reads one integer leaf and reports failures to the
// self-metrics. Negative raw values are treated as read failures so
// metric fields stay non-negative.
func readLeaf(fs *sysfs.FS, obs *observability.Metrics, device, metric, path string) (int64, bool) {
	v, err := fs.ReadInt64(path)
	if err != nil {
		slog.Debug("reader: leaf read failed", "device", device, "metric", metric, "path", path, "error", err)
		if obs != nil {
			obs.LeafReadFailures.WithLabelValues(device, metric).Inc()
		}
		return 0, false
	}
	if v < 0 {
		slog.Debug("reader: negative leaf value discarded", "device", device, "metric", metric, "value", v)
		return 0, false
	}
	return v, true
}

// unsupportedReader handles vendors the agent has no strategy for.
// The row stays at its reset values.
type unsupportedReader struct {
	id model.DeviceIdentity
}

func (r *unsupportedReader) Read(_ model.Capabilities, m *model.Metrics) {
	resetForRead(m)
	m.Source = model.SourceSysfs
	slog.Debug("reader: unsupported vendor", "device", r.id.Address, "vendor_id", r.id.VendorID)
}
