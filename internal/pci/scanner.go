// Package pci enumerates PCI display devices from the sysfs PCI bus
// tree and produces their immutable identities.
package pci

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gpumon/gpumon-agent/internal/sysfs"
	"github.com/gpumon/gpumon-agent/pkg/model"
)

const devicesRoot = "/sys/bus/pci/devices"

// Display controller class codes (base class + subclass).
const (
	classVGA          = 0x0300
	classXGA          = 0x0301
	class3D           = 0x0302
	classDisplayOther = 0x0380
)

// ErrNoDisplayDevices is returned when the scan finds no qualifying
// device. The agent treats this as a startup failure.
var ErrNoDisplayDevices = errors.New("pci: no display devices found")

// Scanner walks the PCI device tree once at startup.
type Scanner struct {
	fs  *sysfs.FS
	max int
}

// NewScanner creates a Scanner bounded at max devices.
func NewScanner(fs *sysfs.FS, max int) *Scanner {
	return &Scanner{fs: fs, max: max}
}

// Scan iterates all PCI devices and returns the identities of display
// controllers, in bus-address order, capped at the configured maximum.
// Devices beyond the cap are silently ignored. Returns
// ErrNoDisplayDevices if none qualify.
func (s *Scanner) Scan() ([]model.DeviceIdentity, error) {
	entries, err := s.fs.ReadDir(devicesRoot)
	if err != nil {
		return nil, fmt.Errorf("pci: reading %s: %w", devicesRoot, err)
	}

	var devices []model.DeviceIdentity
	for _, entry := range entries {
		if len(devices) >= s.max {
			break
		}

		addr := entry.Name()
		devPath := filepath.Join(devicesRoot, addr)

		class, err := s.fs.ReadInt64(filepath.Join(devPath, "class"))
		if err != nil {
			continue
		}
		if !isDisplayClass(uint32(class)) {
			continue
		}

		vendor, err := s.fs.ReadInt64(filepath.Join(devPath, "vendor"))
		if err != nil {
			continue
		}
		device, err := s.fs.ReadInt64(filepath.Join(devPath, "device"))
		if err != nil {
			continue
		}

		bus, slot, fn, err := parseAddress(addr)
		if err != nil {
			slog.Debug("pci: skipping device with unparsable address", "address", addr, "error", err)
			continue
		}

		id := model.DeviceIdentity{
			VendorID: uint16(vendor),
			DeviceID: uint16(device),
			Address:  addr,
			Bus:      bus,
			Slot:     slot,
			Function: fn,
			PCIPath:  devPath,
		}
		id.Name, id.Driver = identify(id.VendorID, id.DeviceID)

		slog.Info("pci: discovered display device",
			"address", addr,
			"name", id.Name,
			"vendor_id", fmt.Sprintf("0x%04x", id.VendorID),
			"device_id", fmt.Sprintf("0x%04x", id.DeviceID),
		)
		devices = append(devices, id)
	}

	if len(devices) == 0 {
		return nil, ErrNoDisplayDevices
	}
	return devices, nil
}

// isDisplayClass checks the base+subclass portion of the 24-bit PCI
// class code against the display controller classes.
func isDisplayClass(class uint32) bool {
	switch class >> 8 {
	case classVGA, classXGA, class3D, classDisplayOther:
		return true
	}
	return false
}

// parseAddress splits a sysfs PCI address ("0000:01:00.0") into bus,
// slot, and function numbers. The domain is kept only in the string form.
func parseAddress(addr string) (bus, slot, fn uint8, err error) {
	var domain, b, sl, f uint32
	if _, err = fmt.Sscanf(addr, "%04x:%02x:%02x.%x", &domain, &b, &sl, &f); err != nil {
		return 0, 0, 0, fmt.Errorf("pci: malformed address %q: %w", addr, err)
	}
	return uint8(b), uint8(sl), uint8(f), nil
}

// identify derives the display name and driver hint purely from the
// vendor ID.
func identify(vendor, device uint16) (name, driver string) {
	switch vendor {
	case model.VendorNVIDIA:
		return fmt.Sprintf("NVIDIA GPU [%04x:%04x]", vendor, device), "nvidia"
	case model.VendorAMD:
		return fmt.Sprintf("AMD GPU [%04x:%04x]", vendor, device), "amdgpu"
	case model.VendorIntel:
		return fmt.Sprintf("Intel GPU [%04x:%04x]", vendor, device), "i915"
	default:
		return fmt.Sprintf("Unknown GPU [%04x:%04x]", vendor, device), "unknown"
	}
}
