package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ModuleVersion is reported in the exposure header.
const ModuleVersion = "2.0"

// Config holds all agent configuration values.
type Config struct {
	// RefreshInterval is the period of the metric refresh scheduler.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// MaxDevices bounds the device table; devices discovered beyond
	// this count are silently ignored.
	MaxDevices int `yaml:"max_devices"`
	// SysfsRoot is prepended to every sysfs path. "/" on real hosts;
	// tests point it at a fake tree.
	SysfsRoot string `yaml:"sysfs_root"`
	// HwmonScanMax and DRMScanMax bound the candidate index searches
	// the capability prober performs per device.
	HwmonScanMax int `yaml:"hwmon_scan_max"`
	DRMScanMax   int `yaml:"drm_scan_max"`

	ListenPort     int  `yaml:"listen_port"`     // GPUMON_LISTEN_PORT, default: 9416
	DebugEndpoints bool `yaml:"debug_endpoints"` // GPUMON_DEBUG_ENDPOINTS, default: false, enables pprof/debug on the exposure port

	AgentID string `yaml:"agent_id"`
}

func defaults() Config {
	return Config{
		RefreshInterval: 3 * time.Second,
		MaxDevices:      4,
		SysfsRoot:       "/",
		HwmonScanMax:    16,
		DRMScanMax:      8,
		ListenPort:      9416,
	}
}

// Load builds the configuration in three layers: built-in defaults, an
// optional YAML file named by GPUMON_CONFIG_FILE, then GPUMON_*
// environment variables. An unreadable or malformed config file is a
// startup failure.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("GPUMON_CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.RefreshInterval = parseDuration("GPUMON_REFRESH_INTERVAL", cfg.RefreshInterval)
	cfg.MaxDevices = parseInt("GPUMON_MAX_DEVICES", cfg.MaxDevices)
	cfg.SysfsRoot = envOrDefault("GPUMON_SYSFS_ROOT", cfg.SysfsRoot)
	cfg.HwmonScanMax = parseInt("GPUMON_HWMON_SCAN_MAX", cfg.HwmonScanMax)
	cfg.DRMScanMax = parseInt("GPUMON_DRM_SCAN_MAX", cfg.DRMScanMax)
	cfg.ListenPort = parseInt("GPUMON_LISTEN_PORT", cfg.ListenPort)
	cfg.DebugEndpoints = parseBool("GPUMON_DEBUG_ENDPOINTS", cfg.DebugEndpoints)
	cfg.AgentID = envOrDefault("GPUMON_AGENT_ID", cfg.AgentID)

	if cfg.AgentID == "" {
		cfg.AgentID = uuid.New().String()
	}

	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to
// treating the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
