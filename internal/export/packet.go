package export

import (
	"encoding/binary"
	"fmt"

	"github.com/gpumon/gpumon-agent/pkg/model"
)

// The binary identity packet has a fixed 36-byte layout: a
// little-endian int32 device count followed by exactly
// MaxPacketDevices 8-byte entries. Entries past the count are zeroed
// with the valid flag unset.
const (
	MaxPacketDevices = 4
	entrySize        = 8
	PacketSize       = 4 + MaxPacketDevices*entrySize
)

// Packet decode failures. The exposure layer maps both onto a
// corrupt-request error.
var (
	ErrTruncatedPacket = fmt.Errorf("identity packet shorter than %d bytes", PacketSize)
	ErrBadDeviceCount  = fmt.Errorf("identity packet device count out of range [0,%d]", MaxPacketDevices)
)

// PacketEntry is one device's identity as carried on the wire.
type PacketEntry struct {
	VendorID uint16
	DeviceID uint16
	Bus      uint8
	Slot     uint8
	Function uint8
	Valid    bool
}

// EncodePacket serializes the snapshot's device identities. Devices
// beyond MaxPacketDevices are dropped; the count field reflects the
// encoded entries only.
func EncodePacket(snap *model.TableSnapshot) []byte {
	n := len(snap.Devices)
	if n > MaxPacketDevices {
		n = MaxPacketDevices
	}

	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))

	for i := 0; i < n; i++ {
		id := &snap.Devices[i].Identity
		off := 4 + i*entrySize
		binary.LittleEndian.PutUint16(buf[off:], id.VendorID)
		binary.LittleEndian.PutUint16(buf[off+2:], id.DeviceID)
		buf[off+4] = id.Bus
		buf[off+5] = id.Slot
		buf[off+6] = id.Function
		buf[off+7] = 1
	}
	return buf
}

// DecodePacket parses an identity packet, validating the declared
// count against both the received byte length and the capacity bound
// before any entry is touched.
func DecodePacket(data []byte) ([]PacketEntry, error) {
	if len(data) < PacketSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrTruncatedPacket, len(data))
	}

	count := int32(binary.LittleEndian.Uint32(data[0:4]))
	if count < 0 || count > MaxPacketDevices {
		return nil, fmt.Errorf("%w: declared %d", ErrBadDeviceCount, count)
	}

	entries := make([]PacketEntry, count)
	for i := range entries {
		off := 4 + i*entrySize
		entries[i] = PacketEntry{
			VendorID: binary.LittleEndian.Uint16(data[off:]),
			DeviceID: binary.LittleEndian.Uint16(data[off+2:]),
			Bus:      data[off+4],
			Slot:     data[off+5],
			Function: data[off+6],
			Valid:    data[off+7] != 0,
		}
	}
	return entries, nil
}
