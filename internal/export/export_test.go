package export

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpumon/gpumon-agent/pkg/model"
)

func sampleSnapshot() *model.TableSnapshot {
	return &model.TableSnapshot{
		LastRefresh:   1700000000123,
		AgentID:       "agent-1",
		ModuleVersion: "2.0",
		Devices: []model.DeviceRow{
			{
				Identity: model.DeviceIdentity{
					VendorID: model.VendorNVIDIA,
					DeviceID: 0x2204,
					Address:  "0000:01:00.0",
					Bus:      0x01,
					Slot:     0x00,
					Function: 0x0,
					Name:     "NVIDIA GPU [10de:2204]",
					Driver:   "nvidia",
					PCIPath:  "/sys/bus/pci/devices/0000:01:00.0",
				},
				Capabilities: model.Capabilities{
					HwmonPath:      "/sys/class/hwmon/hwmon3",
					HwmonAvailable: true,
					Temperature:    true,
					Power:          true,
					Fan:            true,
				},
				Metrics: model.Metrics{
					MemoryUsedMB:  1024,
					MemoryTotalMB: 24576,
					TemperatureC:  67,
					PowerWatts:    220,
					FanRPM:        1800,
					Source:        model.SourceSysfs,
					LastUpdate:    1700000000123,
				},
			},
			{
				Identity: model.DeviceIdentity{
					VendorID: model.VendorIntel,
					DeviceID: 0x9bc4,
					Address:  "0000:00:02.0",
					Bus:      0x00,
					Slot:     0x02,
					Function: 0x0,
					Name:     "Intel GPU [8086:9bc4]",
					Driver:   "i915",
					PCIPath:  "/sys/bus/pci/devices/0000:00:02.0",
				},
				Metrics: model.Metrics{
					MemoryUsedMB:   733,
					MemoryTotalMB:  4096,
					TemperatureC:   52,
					ClockMHz:       951,
					PowerWatts:     14,
					UtilizationPct: 42,
					Source:         model.SourceSimulated,
					LastUpdate:     1700000000123,
				},
			},
		},
	}
}

func TestRenderText_Header(t *testing.T) {
	out := string(RenderText(sampleSnapshot()))
	lines := strings.Split(out, "\n")

	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "GPU_COUNT:2", lines[0])
	assert.Equal(t, "LAST_UPDATE:1700000000123", lines[1])
	assert.Equal(t, "DATA_SOURCE:MIXED", lines[2])
	assert.Equal(t, "MODULE_VERSION:2.0", lines[3])
	assert.Equal(t, "", lines[4], "header block ends with a blank line")
}

func TestRenderText_DeviceBlocks(t *testing.T) {
	out := string(RenderText(sampleSnapshot()))

	assert.Contains(t, out, "GPU_0_NAME:NVIDIA GPU [10de:2204]\n")
	assert.Contains(t, out, "GPU_0_VENDOR_ID:0x10de\n")
	assert.Contains(t, out, "GPU_0_DEVICE_ID:0x2204\n")
	assert.Contains(t, out, "GPU_0_DRIVER:nvidia\n")
	assert.Contains(t, out, "GPU_0_PCI_PATH:/sys/bus/pci/devices/0000:01:00.0\n")
	assert.Contains(t, out, "GPU_0_HWMON_PATH:/sys/class/hwmon/hwmon3\n")
	assert.Contains(t, out, "GPU_0_DRM_PATH:N/A\n")
	assert.Contains(t, out, "GPU_0_MEMORY_USED:1024\n")
	assert.Contains(t, out, "GPU_0_MEMORY_TOTAL:24576\n")
	assert.Contains(t, out, "GPU_0_TEMPERATURE:67\n")
	assert.Contains(t, out, "GPU_0_FAN_RPM:1800\n")
	assert.Contains(t, out, "GPU_0_CAPS_TEMP:1\n")
	assert.Contains(t, out, "GPU_0_CAPS_MEMORY:0\n")
	assert.Contains(t, out, "GPU_0_DATA_SOURCE:REAL_HARDWARE_SYSFS\n")
	assert.Contains(t, out, "GPU_0_LAST_UPDATE:1700000000123\n")

	assert.Contains(t, out, "GPU_1_NAME:Intel GPU [8086:9bc4]\n")
	assert.Contains(t, out, "GPU_1_HWMON_PATH:N/A\n")
	assert.Contains(t, out, "GPU_1_UTILIZATION:42\n")
	assert.Contains(t, out, "GPU_1_DATA_SOURCE:SIMULATED\n")

	assert.True(t, strings.HasSuffix(out, "\n\n"), "device blocks end with a blank line")
}

func TestRenderText_EmptyTable(t *testing.T) {
	snap := &model.TableSnapshot{ModuleVersion: "2.0"}
	out := string(RenderText(snap))

	assert.Contains(t, out, "GPU_COUNT:0\n")
	assert.Contains(t, out, "DATA_SOURCE:REAL_HARDWARE_SYSFS\n")
	assert.Contains(t, out, "MODULE_VERSION:2.0\n")
	assert.NotContains(t, out, "GPU_0_")
}

func TestEncodePacket_Layout(t *testing.T) {
	buf := EncodePacket(sampleSnapshot())

	require.Len(t, buf, PacketSize)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[0:4]))

	// First entry.
	assert.Equal(t, uint16(0x10de), binary.LittleEndian.Uint16(buf[4:6]))
	assert.Equal(t, uint16(0x2204), binary.LittleEndian.Uint16(buf[6:8]))
	assert.Equal(t, byte(0x01), buf[8])
	assert.Equal(t, byte(0x00), buf[9])
	assert.Equal(t, byte(0x00), buf[10])
	assert.Equal(t, byte(1), buf[11])

	// Second entry.
	assert.Equal(t, uint16(0x8086), binary.LittleEndian.Uint16(buf[12:14]))
	assert.Equal(t, byte(0x02), buf[17], "slot of the Intel device")

	// Unused slots are zeroed with the valid flag unset.
	for i := 4 + 2*entrySize; i < PacketSize; i++ {
		assert.Zero(t, buf[i], "byte %d", i)
	}
}

func TestEncodePacket_CapsAtFourDevices(t *testing.T) {
	snap := &model.TableSnapshot{}
	for i := 0; i < 6; i++ {
		snap.Devices = append(snap.Devices, model.DeviceRow{
			Identity: model.DeviceIdentity{VendorID: model.VendorAMD, Bus: uint8(i)},
		})
	}

	buf := EncodePacket(snap)
	require.Len(t, buf, PacketSize)
	assert.Equal(t, uint32(MaxPacketDevices), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, byte(3), buf[4+3*entrySize+4], "last encoded device is index 3")
}

func TestDecodePacket_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	entries, err := DecodePacket(EncodePacket(snap))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, PacketEntry{
		VendorID: 0x10de,
		DeviceID: 0x2204,
		Bus:      0x01,
		Valid:    true,
	}, entries[0])
	assert.Equal(t, uint16(0x8086), entries[1].VendorID)
	assert.True(t, entries[1].Valid)
}

func TestDecodePacket_Truncated(t *testing.T) {
	_, err := DecodePacket(make([]byte, PacketSize-1))
	assert.ErrorIs(t, err, ErrTruncatedPacket)

	_, err = DecodePacket(nil)
	assert.ErrorIs(t, err, ErrTruncatedPacket)
}

func TestDecodePacket_BadCount(t *testing.T) {
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(MaxPacketDevices+1))
	_, err := DecodePacket(buf)
	assert.ErrorIs(t, err, ErrBadDeviceCount)

	// A negative count must be rejected, not reinterpreted.
	binary.LittleEndian.PutUint32(buf[0:4], 0xffffffff)
	_, err = DecodePacket(buf)
	assert.ErrorIs(t, err, ErrBadDeviceCount)
}
