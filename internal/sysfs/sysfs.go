// Package sysfs provides a rooted accessor for the small text files the
// kernel exposes under /sys. Every path handed to it is an absolute
// sysfs path; the configurable root lets tests point the whole agent at
// a fake tree under a temp directory.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FS reads sysfs-style attribute files below a root directory.
// The zero value is not usable; use New.
type FS struct {
	root string
}

// New creates an FS rooted at root. Pass "/" for the real sysfs.
func New(root string) *FS {
	if root == "" {
		root = "/"
	}
	return &FS{root: root}
}

// Root returns the configured root directory.
func (fs *FS) Root() string { return fs.root }

func (fs *FS) resolve(path string) string {
	return filepath.Join(fs.root, path)
}

// Exists reports whether path exists under the root.
func (fs *FS) Exists(path string) bool {
	_, err := os.Stat(fs.resolve(path))
	return err == nil
}

// ReadValue reads an attribute file and returns its content with the
// trailing newline stripped.
func (fs *FS) ReadValue(path string) (string, error) {
	b, err := os.ReadFile(fs.resolve(path))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\n"), nil
}

// ReadInt64 reads an attribute file and parses it as a signed integer.
// Hex values with a 0x prefix (vendor/device IDs) are accepted.
func (fs *FS) ReadInt64(path string) (int64, error) {
	s, err := fs.ReadValue(path)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		v, err := strconv.ParseInt(rest, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("sysfs: parsing %s: %w", path, err)
		}
		return v, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sysfs: parsing %s: %w", path, err)
	}
	return v, nil
}

// ReadDir lists the entries of a directory under the root.
func (fs *FS) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(fs.resolve(path))
}

// OpenDir opens a directory under the root and returns the handle.
// The device table uses this to pin each discovered device's sysfs
// directory for the lifetime of the agent.
func (fs *FS) OpenDir(path string) (*os.File, error) {
	return os.Open(fs.resolve(path))
}
