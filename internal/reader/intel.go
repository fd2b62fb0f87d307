package reader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/mem"

	"github.com/gpumon/gpumon-agent/internal/observability"
	"github.com/gpumon/gpumon-agent/internal/sysfs"
	"github.com/gpumon/gpumon-agent/pkg/model"
)

// defaultSharedPoolMB is the nominal shared-memory allocation reported
// for integrated GPUs when the host memory size is unknown.
const defaultSharedPoolMB = 4096

// cpuThermalNames are hwmon sensor names accepted as CPU thermal
// proxies for the integrated GPU temperature.
var cpuThermalNames = []string{"coretemp", "k10temp", "cpu_thermal"}

// intelReader handles integrated Intel GPUs. These expose no dedicated
// VRAM counters and no reliable utilization through generic
// interfaces, so real reads (CPU thermal proxy, DRM clock leaf) are
// combined with clearly-tagged synthesized values for the rest.
type intelReader struct {
	fs  *sysfs.FS
	id  model.DeviceIdentity
	obs *observability.Metrics

	// cpuTempPath is the CPU thermal sensor leaf, or "" if none was
	// found at construction time.
	cpuTempPath string
	// sharedPoolMB is the fixed memory_total reported every cycle.
	sharedPoolMB uint32

	counter uint32
}

func newIntelReader(fs *sysfs.FS, id model.DeviceIdentity, obs *observability.Metrics, hwmonMax int) *intelReader {
	return &intelReader{
		fs:           fs,
		id:           id,
		obs:          obs,
		cpuTempPath:  findCPUThermal(fs, hwmonMax),
		sharedPoolMB: sharedPoolMB(),
	}
}

// findCPUThermal scans the hwmon range for a CPU temperature sensor.
func findCPUThermal(fs *sysfs.FS, hwmonMax int) string {
	for i := 0; i < hwmonMax; i++ {
		dir := fmt.Sprintf("/sys/class/hwmon/hwmon%d", i)
		name, err := fs.ReadValue(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		for _, want := range cpuThermalNames {
			if strings.Contains(name, want) {
				leaf := filepath.Join(dir, "temp1_input")
				if fs.Exists(leaf) {
					return leaf
				}
			}
		}
	}
	return ""
}

// sharedPoolMB derives the nominal shared pool as a quarter of host
// RAM, floored at 2048 MB so synthesized usage never exceeds it.
// Falls back to a fixed 4096 MB when host memory cannot be read.
func sharedPoolMB() uint32 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil || vm.Total == 0 {
		return defaultSharedPoolMB
	}
	pool := uint32(vm.Total / (1 << 20) / 4)
	if pool < 2048 {
		pool = 2048
	}
	return pool
}

func (r *intelReader) Read(caps model.Capabilities, m *model.Metrics) {
	resetForRead(m)
	r.counter++
	c := r.counter

	realTemp := false
	if r.cpuTempPath != "" {
		if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "temperature", r.cpuTempPath); ok {
			// CPU temperature as a proxy; the iGPU typically runs a
			// few degrees hotter.
			m.TemperatureC = uint32(v/1000) + 5
			realTemp = true
		}
	}

	realClock := false
	if caps.DRMAvailable && caps.Clock {
		if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "clock", filepath.Join(caps.DRMPath, caps.ClockPath)); ok {
			m.ClockMHz = uint32(v)
			realClock = true
		}
	}

	// Everything not obtainable from a real source is synthesized from
	// the monotonically incrementing counter, within realistic ranges.
	m.UtilizationPct = (c * 7) % 101
	m.MemoryUsedMB = 512 + (c*13)%1536
	m.MemoryTotalMB = r.sharedPoolMB
	m.PowerWatts = 5 + (c*3)%20
	r.countSynthesized("utilization")
	r.countSynthesized("memory_used")
	r.countSynthesized("power")

	if m.TemperatureC == 0 {
		m.TemperatureC = 45 + (c*2)%25
		realTemp = false
		r.countSynthesized("temperature")
	}
	if m.ClockMHz == 0 {
		m.ClockMHz = 300 + (c*11)%900
		realClock = false
		r.countSynthesized("clock")
	}

	if realTemp || realClock {
		m.Source = model.SourceMixed
	} else {
		m.Source = model.SourceSimulated
	}

	slog.Debug("reader: intel cycle",
		"device", r.id.Address,
		"source", m.Source,
		"real_temp", realTemp,
		"real_clock", realClock,
	)
}

func (r *intelReader) countSynthesized(metric string) {
	if r.obs != nil {
		r.obs.SynthesizedFields.WithLabelValues(r.id.Address, metric).Inc()
	}
}
