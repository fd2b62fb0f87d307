package model

// PCI vendor IDs of the GPU vendors the agent knows how to read.
const (
	VendorNVIDIA uint16 = 0x10de
	VendorAMD    uint16 = 0x1002
	VendorIntel  uint16 = 0x8086
)

// DataSource labels the provenance of a device's metric values.
type DataSource string

const (
	// SourceSysfs means every populated field came from a real kernel
	// interface (hwmon, DRM sysfs).
	SourceSysfs DataSource = "REAL_HARDWARE_SYSFS"
	// SourceSimulated means every populated field was synthesized.
	SourceSimulated DataSource = "SIMULATED"
	// SourceMixed means real and synthesized fields are combined
	// (Intel devices with a working thermal or frequency leaf).
	SourceMixed DataSource = "MIXED"
)

// DeviceIdentity is the immutable identity of a discovered display
// device. Populated once by the PCI scanner and never mutated.
type DeviceIdentity struct {
	VendorID uint16 `json:"vendor_id"`
	DeviceID uint16 `json:"device_id"`

	// Address is the full PCI address, e.g. "0000:01:00.0".
	Address  string `json:"address"`
	Bus      uint8  `json:"bus"`
	Slot     uint8  `json:"slot"`
	Function uint8  `json:"function"`

	Name    string `json:"name"`
	Driver  string `json:"driver"`
	PCIPath string `json:"pci_path"`
}

// Capabilities records which metric sources were confirmed to exist for
// a device at probe time, and where. Effectively immutable after the
// prober runs; readers tolerate paths disappearing afterwards.
type Capabilities struct {
	HwmonPath      string `json:"hwmon_path,omitempty"`
	DRMPath        string `json:"drm_path,omitempty"`
	HwmonAvailable bool   `json:"hwmon_available"`
	DRMAvailable   bool   `json:"drm_available"`

	Temperature bool `json:"temperature"`
	Power       bool `json:"power"`
	Fan         bool `json:"fan"`
	Memory      bool `json:"memory"`
	Utilization bool `json:"utilization"`
	Clock       bool `json:"clock"`

	// PowerPath is the resolved power leaf ("power1_average" or the
	// "power1_input" fallback) so the hot path never re-searches.
	PowerPath string `json:"power_path,omitempty"`
	// ClockPath is the resolved clock-frequency leaf relative to the
	// DRM root.
	ClockPath string `json:"clock_path,omitempty"`
}

// Metrics is the current reading for one device. All numeric fields are
// non-negative; zero means "not obtained this cycle" for any field
// whose capability is unavailable or whose read failed.
type Metrics struct {
	MemoryUsedMB   uint32 `json:"memory_used_mb"`
	MemoryTotalMB  uint32 `json:"memory_total_mb"`
	TemperatureC   uint32 `json:"temperature_c"`
	ClockMHz       uint32 `json:"clock_mhz"`
	PowerWatts     uint32 `json:"power_watts"`
	UtilizationPct uint32 `json:"utilization_pct"`
	FanRPM         uint32 `json:"fan_rpm"`

	Source DataSource `json:"source"`

	// LastUpdate is the UnixMilli timestamp of the refresh tick that
	// produced these values.
	LastUpdate int64 `json:"last_update"`
}

// DeviceRow is one device's full entry as exposed to consumers.
type DeviceRow struct {
	Identity     DeviceIdentity `json:"identity"`
	Capabilities Capabilities   `json:"capabilities"`
	Metrics      Metrics        `json:"metrics"`
}

// TableSnapshot is a self-contained copy of the device table handed to
// the exposure adapter. Mutating it does not affect the live table.
type TableSnapshot struct {
	Devices       []DeviceRow `json:"devices"`
	LastRefresh   int64       `json:"last_refresh"`
	AgentID       string      `json:"agent_id"`
	ModuleVersion string      `json:"module_version"`
}

// Source reports the aggregate provenance of the snapshot: SourceSysfs
// when every device is real, SourceSimulated when every device is
// synthesized, SourceMixed otherwise. An empty table reports SourceSysfs.
func (s *TableSnapshot) Source() DataSource {
	real, simulated := 0, 0
	for _, d := range s.Devices {
		switch d.Metrics.Source {
		case SourceSimulated:
			simulated++
		case SourceMixed:
			real++
			simulated++
		default:
			real++
		}
	}
	switch {
	case simulated == 0:
		return SourceSysfs
	case real == 0:
		return SourceSimulated
	default:
		return SourceMixed
	}
}
