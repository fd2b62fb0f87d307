package reader

import (
	"path/filepath"

	"github.com/gpumon/gpumon-agent/internal/observability"
	"github.com/gpumon/gpumon-agent/internal/sysfs"
	"github.com/gpumon/gpumon-agent/pkg/model"
)

// hwmonReader is the NVIDIA/AMD-style strategy: direct reads of the
// hwmon leaves discovered at probe time, with fixed unit conversions.
// With withDRM set (AMD) it additionally reads the DRM-exposed memory
// and utilization leaves.
type hwmonReader struct {
	fs      *sysfs.FS
	id      model.DeviceIdentity
	obs     *observability.Metrics
	withDRM bool
}

func (r *hwmonReader) Read(caps model.Capabilities, m *model.Metrics) {
	resetForRead(m)
	m.Source = model.SourceSysfs

	if caps.HwmonAvailable {
		if caps.Temperature {
			if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "temperature", filepath.Join(caps.HwmonPath, "temp1_input")); ok {
				m.TemperatureC = uint32(v / 1000) // millidegrees
			}
		}

		if caps.Power {
			if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "power", filepath.Join(caps.HwmonPath, caps.PowerPath)); ok {
				m.PowerWatts = uint32(v / 1000000) // microwatts
			}
		}

		if caps.Fan {
			if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "fan", filepath.Join(caps.HwmonPath, "fan1_input")); ok {
				m.FanRPM = uint32(v)
			}
		}
	}

	if r.withDRM && caps.DRMAvailable {
		if caps.Memory {
			if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "memory_used", filepath.Join(caps.DRMPath, "device/mem_info_vram_used")); ok {
				m.MemoryUsedMB = uint32(v >> 20)
			}
			if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "memory_total", filepath.Join(caps.DRMPath, "device/mem_info_vram_total")); ok {
				m.MemoryTotalMB = uint32(v >> 20)
			}
		}

		if caps.Utilization {
			if v, ok := readLeaf(r.fs, r.obs, r.id.Address, "utilization", filepath.Join(caps.DRMPath, "device/gpu_busy_percent")); ok {
				m.UtilizationPct = uint32(v)
			}
		}
	}
}
