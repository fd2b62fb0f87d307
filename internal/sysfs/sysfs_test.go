package sysfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestReadValue_StripsTrailingNewline(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sys/class/hwmon/hwmon0/name", "amdgpu\n")

	fs := New(root)
	v, err := fs.ReadValue("/sys/class/hwmon/hwmon0/name")
	require.NoError(t, err)
	assert.Equal(t, "amdgpu", v)
}

func TestReadValue_MissingFile(t *testing.T) {
	fs := New(t.TempDir())
	_, err := fs.ReadValue("/sys/class/hwmon/hwmon0/name")
	assert.Error(t, err)
}

func TestReadInt64(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "temp1_input", "54000\n")
	writeFile(t, root, "vendor", "0x10de\n")
	writeFile(t, root, "garbage", "not-a-number\n")

	fs := New(root)

	v, err := fs.ReadInt64("/temp1_input")
	require.NoError(t, err)
	assert.Equal(t, int64(54000), v)

	v, err = fs.ReadInt64("/vendor")
	require.NoError(t, err)
	assert.Equal(t, int64(0x10de), v)

	_, err = fs.ReadInt64("/garbage")
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sys/class/drm/card0/device/vendor", "0x1002\n")

	fs := New(root)
	assert.True(t, fs.Exists("/sys/class/drm/card0/device/vendor"))
	assert.False(t, fs.Exists("/sys/class/drm/card1/device/vendor"))
}

func TestOpenDir_PinsDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sys/bus/pci/devices/0000:01:00.0/vendor", "0x10de\n")

	fs := New(root)
	h, err := fs.OpenDir("/sys/bus/pci/devices/0000:01:00.0")
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestNew_EmptyRootDefaultsToSlash(t *testing.T) {
	assert.Equal(t, "/", New("").Root())
}
