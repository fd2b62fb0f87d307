// Package agent wires discovery, probing, the device table, the
// refresh loop, and the exposure server into one lifecycle.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gpumon/gpumon-agent/internal/config"
	agenterrors "github.com/gpumon/gpumon-agent/internal/errors"
	"github.com/gpumon/gpumon-agent/internal/exposure"
	"github.com/gpumon/gpumon-agent/internal/observability"
	"github.com/gpumon/gpumon-agent/internal/pci"
	"github.com/gpumon/gpumon-agent/internal/probe"
	"github.com/gpumon/gpumon-agent/internal/reader"
	"github.com/gpumon/gpumon-agent/internal/refresh"
	"github.com/gpumon/gpumon-agent/internal/store"
	"github.com/gpumon/gpumon-agent/internal/sysfs"
	"github.com/gpumon/gpumon-agent/pkg/model"
)

// shutdownTimeout bounds the HTTP server drain during teardown.
const shutdownTimeout = 10 * time.Second

// Agent is the orchestrator. Discovery and probing happen once in New;
// Run drives the refresh loop and exposure server until the context is
// canceled.
type Agent struct {
	config         *config.Config
	table          *store.Table
	refresher      *refresh.Refresher
	server         *exposure.Server
	errorCollector *agenterrors.ErrorCollector
	metrics        *observability.Metrics

	ready     atomic.Bool
	startedAt time.Time
}

// New discovers display devices, probes their capabilities, and builds
// the full component graph. It fails when the PCI scan finds no
// display-class device: an agent with an empty table has nothing to
// expose.
func New(cfg *config.Config) (*Agent, error) {
	metrics := observability.NewMetrics()
	errCollector := agenterrors.NewErrorCollector(agenterrors.RealClock{})
	fs := sysfs.New(cfg.SysfsRoot)

	// 1. Discover display-class PCI devices.
	identities, err := pci.NewScanner(fs, cfg.MaxDevices).Scan()
	if err != nil {
		errCollector.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrNoDevicesFound,
			Message:   err.Error(),
			Component: "agent",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		return nil, fmt.Errorf("device discovery: %w", err)
	}

	// 2. Probe capabilities once. They stay fixed for the agent's
	// lifetime; readers tolerate leaves that disappear later.
	prober := probe.NewProber(fs, cfg.HwmonScanMax, cfg.DRMScanMax, errCollector)
	caps := make([]model.Capabilities, len(identities))
	for i, id := range identities {
		caps[i] = prober.Probe(id)
		recordCapabilities(metrics, id, caps[i])
		slog.Info("device ready",
			"address", id.Address,
			"name", id.Name,
			"driver", id.Driver,
			"hwmon", caps[i].HwmonAvailable,
			"drm", caps[i].DRMAvailable,
		)
	}
	metrics.DevicesTracked.Set(float64(len(identities)))

	// 3. Build the table and pick a reader strategy per device.
	table := store.New(fs, identities, caps, cfg.AgentID, config.ModuleVersion)
	readers := make([]reader.Reader, len(identities))
	for i, id := range identities {
		readers[i] = reader.ForVendor(fs, id, metrics, cfg.HwmonScanMax)
	}

	a := &Agent{
		config:         cfg,
		table:          table,
		errorCollector: errCollector,
		metrics:        metrics,
		startedAt:      time.Now(),
	}
	a.refresher = refresh.New(table, readers, cfg.RefreshInterval, metrics)
	a.server = exposure.NewServer(cfg.ListenPort, table, metrics, a, errCollector, cfg.DebugEndpoints)
	return a, nil
}

// IsReady reports whether the initial collection has completed.
// Implements exposure.ReadinessChecker.
func (a *Agent) IsReady() bool {
	return a.ready.Load()
}

// Addr returns the exposure server's listen address, valid after Run
// has started the server.
func (a *Agent) Addr() string {
	return a.server.Addr()
}

// Run executes the agent lifecycle: start the exposure server and the
// refresh loop, mark ready after the first pass, then block until the
// context is canceled. Teardown is synchronous: when Run returns, no
// refresh pass is in flight and the device handles are released.
func (a *Agent) Run(ctx context.Context) error {
	// 1. Exposure server first so /healthz responds during sync.
	if err := a.server.Start(); err != nil {
		a.errorCollector.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrExposureFailed,
			Message:   err.Error(),
			Component: "exposure",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		return fmt.Errorf("exposure server: %w", err)
	}
	slog.Info("exposure server listening", "addr", a.server.Addr())

	// 2. Refresh loop. The first pass completes before sync returns.
	if err := a.refresher.Start(ctx); err != nil {
		return fmt.Errorf("start refresher: %w", err)
	}
	if err := a.refresher.WaitForSync(ctx); err == nil {
		a.ready.Store(true)
		slog.Info("agent ready",
			"devices", a.table.Len(),
			"startup", time.Since(a.startedAt).Round(time.Millisecond),
		)
	}

	<-ctx.Done()

	// 3. Synchronous teardown: stop the loop (waits for any in-flight
	// pass), drain HTTP, release pinned device handles.
	a.ready.Store(false)
	a.refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		slog.Warn("exposure server shutdown", "error", err)
	}

	a.table.Close()
	slog.Info("agent stopped")
	return nil
}

func recordCapabilities(m *observability.Metrics, id model.DeviceIdentity, caps model.Capabilities) {
	flags := map[string]bool{
		"temperature": caps.Temperature,
		"power":       caps.Power,
		"fan":         caps.Fan,
		"memory":      caps.Memory,
		"utilization": caps.Utilization,
		"clock":       caps.Clock,
	}
	for name, ok := range flags {
		v := 0.0
		if ok {
			v = 1.0
		}
		m.CapabilityFlags.WithLabelValues(id.Address, name).Set(v)
	}
}
