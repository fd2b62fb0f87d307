// Package export renders device-table snapshots into the agent's two
// wire representations: the line-oriented text report and the compact
// binary identity packet.
package export

import (
	"fmt"
	"strings"

	"github.com/gpumon/gpumon-agent/pkg/model"
)

// RenderText produces the key:value text report for a snapshot. The
// header block carries table-wide fields, then each device contributes
// a GPU_<index>_* block. Blocks are separated by blank lines. An empty
// table still renders the header with GPU_COUNT:0.
func RenderText(snap *model.TableSnapshot) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "GPU_COUNT:%d\n", len(snap.Devices))
	fmt.Fprintf(&b, "LAST_UPDATE:%d\n", snap.LastRefresh)
	fmt.Fprintf(&b, "DATA_SOURCE:%s\n", snap.Source())
	fmt.Fprintf(&b, "MODULE_VERSION:%s\n", snap.ModuleVersion)
	b.WriteString("\n")

	for i := range snap.Devices {
		writeDevice(&b, i, &snap.Devices[i])
	}

	return []byte(b.String())
}

func writeDevice(b *strings.Builder, i int, d *model.DeviceRow) {
	id := &d.Identity
	caps := &d.Capabilities
	m := &d.Metrics

	fmt.Fprintf(b, "GPU_%d_NAME:%s\n", i, id.Name)
	fmt.Fprintf(b, "GPU_%d_VENDOR_ID:0x%04x\n", i, id.VendorID)
	fmt.Fprintf(b, "GPU_%d_DEVICE_ID:0x%04x\n", i, id.DeviceID)
	fmt.Fprintf(b, "GPU_%d_DRIVER:%s\n", i, id.Driver)
	fmt.Fprintf(b, "GPU_%d_PCI_PATH:%s\n", i, id.PCIPath)

	fmt.Fprintf(b, "GPU_%d_HWMON_PATH:%s\n", i, orNA(caps.HwmonAvailable, caps.HwmonPath))
	fmt.Fprintf(b, "GPU_%d_DRM_PATH:%s\n", i, orNA(caps.DRMAvailable, caps.DRMPath))

	fmt.Fprintf(b, "GPU_%d_MEMORY_USED:%d\n", i, m.MemoryUsedMB)
	fmt.Fprintf(b, "GPU_%d_MEMORY_TOTAL:%d\n", i, m.MemoryTotalMB)
	fmt.Fprintf(b, "GPU_%d_TEMPERATURE:%d\n", i, m.TemperatureC)
	fmt.Fprintf(b, "GPU_%d_CLOCK_MHZ:%d\n", i, m.ClockMHz)
	fmt.Fprintf(b, "GPU_%d_POWER_WATTS:%d\n", i, m.PowerWatts)
	fmt.Fprintf(b, "GPU_%d_UTILIZATION:%d\n", i, m.UtilizationPct)
	fmt.Fprintf(b, "GPU_%d_FAN_RPM:%d\n", i, m.FanRPM)

	fmt.Fprintf(b, "GPU_%d_CAPS_TEMP:%d\n", i, flag(caps.Temperature))
	fmt.Fprintf(b, "GPU_%d_CAPS_POWER:%d\n", i, flag(caps.Power))
	fmt.Fprintf(b, "GPU_%d_CAPS_MEMORY:%d\n", i, flag(caps.Memory))
	fmt.Fprintf(b, "GPU_%d_CAPS_UTIL:%d\n", i, flag(caps.Utilization))
	fmt.Fprintf(b, "GPU_%d_CAPS_CLOCK:%d\n", i, flag(caps.Clock))
	fmt.Fprintf(b, "GPU_%d_CAPS_FAN:%d\n", i, flag(caps.Fan))

	fmt.Fprintf(b, "GPU_%d_DATA_SOURCE:%s\n", i, m.Source)
	fmt.Fprintf(b, "GPU_%d_LAST_UPDATE:%d\n", i, m.LastUpdate)
	b.WriteString("\n")
}

func orNA(ok bool, path string) string {
	if ok {
		return path
	}
	return "N/A"
}

func flag(v bool) int {
	if v {
		return 1
	}
	return 0
}
