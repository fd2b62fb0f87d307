package config

import (
	"fmt"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("config: RefreshInterval must be >= 1s, got %v", c.RefreshInterval)
	}

	if c.MaxDevices < 1 || c.MaxDevices > 16 {
		return fmt.Errorf("config: MaxDevices must be 1-16, got %d", c.MaxDevices)
	}

	if c.SysfsRoot == "" {
		return fmt.Errorf("config: SysfsRoot must not be empty")
	}

	if c.HwmonScanMax < 1 || c.HwmonScanMax > 256 {
		return fmt.Errorf("config: HwmonScanMax must be 1-256, got %d", c.HwmonScanMax)
	}

	if c.DRMScanMax < 1 || c.DRMScanMax > 256 {
		return fmt.Errorf("config: DRMScanMax must be 1-256, got %d", c.DRMScanMax)
	}

	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("config: ListenPort must be 0-65535, got %d", c.ListenPort)
	}

	return nil
}
