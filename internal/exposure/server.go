// Package exposure serves the device table over HTTP, alongside the
// agent's health, readiness, metrics, and debug endpoints.
package exposure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	agenterrors "github.com/gpumon/gpumon-agent/internal/errors"
	"github.com/gpumon/gpumon-agent/internal/export"
	"github.com/gpumon/gpumon-agent/internal/observability"
	"github.com/gpumon/gpumon-agent/internal/store"
)

// ReadinessChecker reports whether the agent has completed its initial
// collection.
type ReadinessChecker interface {
	IsReady() bool
}

// Server exposes the device table plus health, readiness, metrics, and
// debug endpoints.
type Server struct {
	httpServer *http.Server
	metrics    *observability.Metrics
	readiness  ReadinessChecker
	table      *store.Table
	errs       *agenterrors.ErrorCollector
	listener   net.Listener
	encoder    *zstd.Encoder
}

// NewServer creates an exposure server on the given port.
// Pass port=0 to let the OS pick a free port (useful for tests).
// When enableDebug is true, pprof and debug endpoints are registered.
func NewServer(port int, table *store.Table, metrics *observability.Metrics, readiness ReadinessChecker, errs *agenterrors.ErrorCollector, enableDebug bool) *Server {
	s := &Server{
		metrics:   metrics,
		readiness: readiness,
		table:     table,
		errs:      errs,
	}

	// Default options never fail.
	s.encoder, _ = zstd.NewWriter(nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/gpu", s.handleGPU)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if enableDebug {
		// pprof handlers, only enabled when GPUMON_DEBUG_ENDPOINTS=true
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		// debug endpoints
		mux.HandleFunc("/debug/snapshot", s.handleDebugSnapshot)
		mux.HandleFunc("/debug/errors", s.handleDebugErrors)
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("exposure server listen: %w", err)
	}
	s.listener = ln
	// Update Addr to the actual address (important when port=0).
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("exposure: server exited", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address, resolved after Start.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// handleGPU serves the device table. The default format is the text
// report; ?format=packet returns the binary identity packet. Text
// responses are zstd-compressed when the client advertises support.
func (s *Server) handleGPU(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "text"
	}

	snap := s.table.Snapshot()

	var body []byte
	var contentType string
	switch format {
	case "text":
		body = export.RenderText(&snap)
		contentType = "text/plain; charset=utf-8"
	case "packet":
		body = export.EncodePacket(&snap)
		contentType = "application/octet-stream"
	default:
		s.errs.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrCorruptRequest,
			Message:   "unknown exposure format " + strconv.Quote(format),
			Component: "exposure",
			Timestamp: time.Now().Unix(),
		})
		s.metrics.ExposureRequests.WithLabelValues(format, "bad_request").Inc()
		http.Error(w, "unknown format: "+format, http.StatusBadRequest)
		return
	}

	if format == "text" && acceptsZstd(r) {
		compressed := s.encoder.EncodeAll(body, nil)
		if len(body) > 0 {
			s.metrics.CompressionRatio.Set(float64(len(compressed)) / float64(len(body)))
		}
		body = compressed
		w.Header().Set("Content-Encoding", "zstd")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	s.metrics.ExposureRequests.WithLabelValues(format, "ok").Inc()
	s.metrics.ExposureBytes.WithLabelValues(format).Observe(float64(len(body)))
}

func acceptsZstd(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]) == "zstd" {
			return true
		}
	}
	return false
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ready := s.readiness.IsReady()
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

func (s *Server) handleDebugSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.table.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(&snap)
}

func (s *Server) handleDebugErrors(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.errs.GetActiveErrors())
}
