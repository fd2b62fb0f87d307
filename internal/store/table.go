// Package store holds the device table: the bounded, concurrently
// readable store of per-GPU identities, capabilities, and current
// metric readings.
package store

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gpumon/gpumon-agent/internal/sysfs"
	"github.com/gpumon/gpumon-agent/pkg/model"
)

// row is one device slot. Identity and capabilities are fixed at
// construction; only metrics are mutated afterwards.
type row struct {
	identity model.DeviceIdentity
	caps     model.Capabilities
	metrics  model.Metrics
}

// Table is the fixed-capacity snapshot table. The device count is
// fixed at construction; entries are never added or removed while the
// agent runs. A single RWMutex guards the rows: refresh commits take
// the write lock per row, snapshot reads take the read lock, so a read
// never observes a torn row and never waits behind a full refresh
// pass.
type Table struct {
	mu   sync.RWMutex
	rows []row

	lastRefresh atomic.Int64

	agentID string
	version string

	// handles pins each device's sysfs directory for the lifetime of
	// the table, released by Close.
	handles []*os.File
}

// New builds a Table from the scanner's identities and the prober's
// capability records, which must be index-aligned. It pins each
// device's sysfs directory; a device whose directory cannot be opened
// is still tracked (the pin is best-effort on fake trees).
func New(fs *sysfs.FS, identities []model.DeviceIdentity, caps []model.Capabilities, agentID, version string) *Table {
	t := &Table{
		rows:    make([]row, len(identities)),
		agentID: agentID,
		version: version,
	}
	for i, id := range identities {
		t.rows[i] = row{identity: id, caps: caps[i]}

		h, err := fs.OpenDir(id.PCIPath)
		if err != nil {
			slog.Debug("store: could not pin device directory", "device", id.Address, "error", err)
			continue
		}
		t.handles = append(t.handles, h)
	}
	return t
}

// Len returns the fixed device count.
func (t *Table) Len() int {
	return len(t.rows)
}

// Identity returns the immutable identity of the device at index i.
func (t *Table) Identity(i int) model.DeviceIdentity {
	return t.rows[i].identity
}

// Capabilities returns the capability record of the device at index i.
func (t *Table) Capabilities(i int) model.Capabilities {
	return t.rows[i].caps
}

// Metrics returns a copy of the current metrics of the device at
// index i. The refresh scheduler mutates the copy and commits it back
// with SetMetrics, so readers never see a half-filled row.
func (t *Table) Metrics(i int) model.Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows[i].metrics
}

// SetMetrics commits a completed reading for the device at index i.
func (t *Table) SetMetrics(i int, m model.Metrics) {
	t.mu.Lock()
	t.rows[i].metrics = m
	t.mu.Unlock()
}

// MarkRefreshed records the completion time of a full refresh pass.
func (t *Table) MarkRefreshed(unixMilli int64) {
	t.lastRefresh.Store(unixMilli)
}

// LastRefresh returns the UnixMilli timestamp of the last completed
// refresh pass, or zero if none has completed.
func (t *Table) LastRefresh() int64 {
	return t.lastRefresh.Load()
}

// Snapshot returns a self-contained copy of the whole table. This is
// the sole read interface the exposure adapter uses; it holds the read
// lock only long enough to copy the rows.
func (t *Table) Snapshot() model.TableSnapshot {
	t.mu.RLock()
	devices := make([]model.DeviceRow, len(t.rows))
	for i, r := range t.rows {
		devices[i] = model.DeviceRow{
			Identity:     r.identity,
			Capabilities: r.caps,
			Metrics:      r.metrics,
		}
	}
	t.mu.RUnlock()

	return model.TableSnapshot{
		Devices:       devices,
		LastRefresh:   t.lastRefresh.Load(),
		AgentID:       t.agentID,
		ModuleVersion: t.version,
	}
}

// Close releases the pinned device directory handles. Callers must
// stop the refresh scheduler first.
func (t *Table) Close() {
	for _, h := range t.handles {
		if err := h.Close(); err != nil {
			slog.Debug("store: closing device handle", "error", err)
		}
	}
	t.handles = nil
}
