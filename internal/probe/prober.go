// Package probe discovers which metric sources exist for a display
// device. The multi-path search runs once per device at startup; the
// refresh hot path only performs direct reads against the recorded
// paths.
package probe

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	agenterrors "github.com/gpumon/gpumon-agent/internal/errors"
	"github.com/gpumon/gpumon-agent/internal/sysfs"
	"github.com/gpumon/gpumon-agent/pkg/model"
)

const (
	hwmonRoot = "/sys/class/hwmon"
	drmRoot   = "/sys/class/drm"
)

// hwmonNames maps a vendor to the substrings its hwmon driver
// registers under.
var hwmonNames = map[uint16][]string{
	model.VendorNVIDIA: {"nvidia", "gpu"},
	model.VendorAMD:    {"amdgpu", "radeon"},
	model.VendorIntel:  {"i915", "intel"},
}

// intelClockPaths are the candidate frequency leaves relative to the
// DRM card root, tried in order. Newer i915 exposes the gt/gt0 layout;
// the other two are legacy placements.
var intelClockPaths = []string{
	"gt/gt0/rps_cur_freq_mhz",
	"gt_cur_freq_mhz",
	"device/gt_cur_freq_mhz",
}

// Prober searches candidate hwmon and DRM locations for a device's
// metric sources.
type Prober struct {
	fs       *sysfs.FS
	hwmonMax int
	drmMax   int
	errs     *agenterrors.ErrorCollector
}

// NewProber creates a Prober that scans hwmon indices [0,hwmonMax) and
// DRM card indices [0,drmMax). errs may be nil.
func NewProber(fs *sysfs.FS, hwmonMax, drmMax int, errs *agenterrors.ErrorCollector) *Prober {
	return &Prober{fs: fs, hwmonMax: hwmonMax, drmMax: drmMax, errs: errs}
}

// Probe runs the hwmon and DRM searches for one device and returns its
// capability record. Misses are availability facts, not errors.
func (p *Prober) Probe(id model.DeviceIdentity) model.Capabilities {
	caps := model.Capabilities{}

	p.findHwmon(id, &caps)
	p.findDRM(id, &caps)

	if caps.HwmonAvailable {
		caps.Temperature = p.fs.Exists(filepath.Join(caps.HwmonPath, "temp1_input"))

		if p.fs.Exists(filepath.Join(caps.HwmonPath, "power1_average")) {
			caps.Power = true
			caps.PowerPath = "power1_average"
		} else if p.fs.Exists(filepath.Join(caps.HwmonPath, "power1_input")) {
			caps.Power = true
			caps.PowerPath = "power1_input"
		}

		caps.Fan = p.fs.Exists(filepath.Join(caps.HwmonPath, "fan1_input"))
	}

	if caps.DRMAvailable {
		caps.Memory = p.fs.Exists(filepath.Join(caps.DRMPath, "device/mem_info_vram_used"))
		caps.Utilization = p.fs.Exists(filepath.Join(caps.DRMPath, "device/gpu_busy_percent"))

		for _, rel := range intelClockPaths {
			if p.fs.Exists(filepath.Join(caps.DRMPath, rel)) {
				caps.Clock = true
				caps.ClockPath = rel
				break
			}
		}
	}

	slog.Info("probe: capabilities discovered",
		"device", id.Address,
		"hwmon", caps.HwmonPath,
		"drm", caps.DRMPath,
		"temperature", caps.Temperature,
		"power", caps.Power,
		"fan", caps.Fan,
		"memory", caps.Memory,
		"utilization", caps.Utilization,
		"clock", caps.Clock,
	)
	return caps
}

// findHwmon scans candidate hwmon indices and matches the declared
// sensor name against the device vendor's known substrings. First
// match wins.
func (p *Prober) findHwmon(id model.DeviceIdentity, caps *model.Capabilities) {
	substrings := hwmonNames[id.VendorID]

	for i := 0; i < p.hwmonMax; i++ {
		dir := fmt.Sprintf("%s/hwmon%d", hwmonRoot, i)
		if !p.fs.Exists(dir) {
			continue
		}

		name, err := p.fs.ReadValue(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		for _, sub := range substrings {
			if strings.Contains(name, sub) {
				caps.HwmonPath = dir
				caps.HwmonAvailable = true
				slog.Info("probe: found hwmon", "device", id.Address, "path", dir, "name", name)
				return
			}
		}
	}

	slog.Info("probe: no hwmon device matched", "device", id.Address, "vendor_id", fmt.Sprintf("0x%04x", id.VendorID))
	if p.errs != nil {
		p.errs.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrHwmonUnavailable,
			Message:   fmt.Sprintf("no hwmon device matched %s", id.Name),
			Component: id.Address,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// findDRM scans candidate DRM card indices and requires an exact match
// on both the vendor and device identifier files.
func (p *Prober) findDRM(id model.DeviceIdentity, caps *model.Capabilities) {
	for i := 0; i < p.drmMax; i++ {
		card := fmt.Sprintf("%s/card%d", drmRoot, i)

		vendor, err := p.fs.ReadInt64(filepath.Join(card, "device/vendor"))
		if err != nil || uint16(vendor) != id.VendorID {
			continue
		}
		device, err := p.fs.ReadInt64(filepath.Join(card, "device/device"))
		if err != nil || uint16(device) != id.DeviceID {
			continue
		}

		caps.DRMPath = card
		caps.DRMAvailable = true
		slog.Info("probe: found DRM card", "device", id.Address, "path", card)
		return
	}

	slog.Info("probe: no DRM card matched", "device", id.Address)
	if p.errs != nil {
		p.errs.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrDRMUnavailable,
			Message:   fmt.Sprintf("no DRM card matched %s", id.Name),
			Component: id.Address,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}
