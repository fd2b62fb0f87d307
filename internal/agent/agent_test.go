package agent

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpumon/gpumon-agent/internal/config"
	"github.com/gpumon/gpumon-agent/internal/pci"
)

const testWaitTimeout = 10 * time.Second

func writeLeaf(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0o644))
}

// nvidiaFixture lays out one NVIDIA card with a matching hwmon sensor.
func nvidiaFixture(t *testing.T) string {
	root := t.TempDir()
	dev := "sys/bus/pci/devices/0000:01:00.0"
	writeLeaf(t, root, dev+"/class", "0x030000")
	writeLeaf(t, root, dev+"/vendor", "0x10de")
	writeLeaf(t, root, dev+"/device", "0x2204")

	hwmon := "sys/class/hwmon/hwmon0"
	writeLeaf(t, root, hwmon+"/name", "nvidia")
	writeLeaf(t, root, hwmon+"/temp1_input", "67000")
	writeLeaf(t, root, hwmon+"/power1_average", "220000000")
	writeLeaf(t, root, hwmon+"/fan1_input", "1800")
	return root
}

func testConfig(root string) *config.Config {
	return &config.Config{
		RefreshInterval: time.Second,
		MaxDevices:      4,
		SysfsRoot:       root,
		HwmonScanMax:    16,
		DRMScanMax:      8,
		ListenPort:      0,
		AgentID:         "agent-test",
	}
}

func TestNew_NoDevicesFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys/bus/pci/devices"), 0o755))

	_, err := New(testConfig(root))
	require.Error(t, err)
	assert.ErrorIs(t, err, pci.ErrNoDisplayDevices)
}

func TestAgent_Lifecycle(t *testing.T) {
	a, err := New(testConfig(nvidiaFixture(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	require.Eventually(t, a.IsReady, testWaitTimeout, 10*time.Millisecond)

	_, port, err := net.SplitHostPort(a.Addr())
	require.NoError(t, err)
	base := "http://127.0.0.1:" + port

	resp, err := http.Get(base + "/gpu")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := string(body)
	assert.Contains(t, out, "GPU_COUNT:1\n")
	assert.Contains(t, out, "GPU_0_NAME:NVIDIA GPU [10de:2204]\n")
	assert.Contains(t, out, "GPU_0_TEMPERATURE:67\n")
	assert.Contains(t, out, "GPU_0_POWER_WATTS:220\n")
	assert.Contains(t, out, "GPU_0_FAN_RPM:1800\n")
	assert.Contains(t, out, "GPU_0_DATA_SOURCE:REAL_HARDWARE_SYSFS\n")

	resp, err = http.Get(base + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(testWaitTimeout):
		t.Fatal("Run did not return after context cancel")
	}
	assert.False(t, a.IsReady(), "readiness drops on shutdown")
}
