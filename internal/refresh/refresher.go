// Package refresh runs the periodic metric collection loop over the
// device table.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gpumon/gpumon-agent/internal/observability"
	"github.com/gpumon/gpumon-agent/internal/reader"
	"github.com/gpumon/gpumon-agent/internal/store"
)

// Refresher triggers metric collection for every tracked device on a
// fixed interval. Readers are index-aligned with the table and were
// selected once at discovery time. Only one refresh pass is ever in
// flight; Stop blocks until the current pass, if any, completes.
type Refresher struct {
	table    *store.Table
	readers  []reader.Reader
	interval time.Duration
	obs      *observability.Metrics

	stopCh chan struct{}
	done   chan struct{}

	syncOnce sync.Once
	synced   chan struct{}
}

// New creates a Refresher. readers[i] must be the strategy for the
// device at table index i.
func New(table *store.Table, readers []reader.Reader, interval time.Duration, obs *observability.Metrics) *Refresher {
	return &Refresher{
		table:    table,
		readers:  readers,
		interval: interval,
		obs:      obs,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		synced:   make(chan struct{}),
	}
}

// Name returns the component name.
func (r *Refresher) Name() string { return "refresh" }

// Start launches the background refresh goroutine.
func (r *Refresher) Start(ctx context.Context) error {
	go r.run(ctx)
	return nil
}

// WaitForSync blocks until the initial collection completes or the
// context is canceled. After it returns, the snapshot table is never
// empty of readings.
func (r *Refresher) WaitForSync(ctx context.Context) error {
	select {
	case <-r.synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the refresher to stop and waits for the goroutine to
// exit. When it returns, the in-flight pass (if any) has completed and
// no further device rows will be mutated.
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.done
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)

	// Collect immediately on start so the first snapshot read is
	// never empty.
	r.refresh()
	r.syncOnce.Do(func() { close(r.synced) })

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh runs one full collection pass over the table in index order.
// A failure inside one device's read never aborts the others.
func (r *Refresher) refresh() {
	start := time.Now()
	now := start.UnixMilli()

	for i := 0; i < r.table.Len(); i++ {
		m := r.table.Metrics(i)
		r.readers[i].Read(r.table.Capabilities(i), &m)
		m.LastUpdate = now
		r.table.SetMetrics(i, m)
	}

	r.table.MarkRefreshed(now)

	if r.obs != nil {
		r.obs.RefreshTotal.Inc()
		r.obs.RefreshDuration.Observe(time.Since(start).Seconds())
	}

	slog.Debug("refresh: pass complete",
		"devices", r.table.Len(),
		"elapsed", time.Since(start).Round(time.Microsecond),
	)
}
