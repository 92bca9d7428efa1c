// Package pprof serves runtime profiles and a bridge status document for a
// running host, and optionally writes profiles to files.
package pprof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"

	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/logger"
)

// StatusPath is where the status document is served
const StatusPath = "/debug/bridge"

// Config holds the pprof configuration
type Config struct {
	// HTTPAddr enables the HTTP server (e.g. "localhost:6060")
	HTTPAddr string

	// File-based mode
	CPUProfile       string // Path to write CPU profile file
	HeapProfile      string // Path to write heap profile file on Stop
	GoroutineProfile string // Path to write goroutine profile file on Stop
}

// Enabled reports whether any profiling was requested
func (c Config) Enabled() bool {
	return c.HTTPAddr != "" || c.CPUProfile != "" || c.HeapProfile != "" || c.GoroutineProfile != ""
}

// StatusFunc returns a JSON-encodable snapshot of the bridge
type StatusFunc func() any

// Handler manages pprof profiling
type Handler struct {
	config   Config
	status   StatusFunc
	server   *http.Server
	listener net.Listener
	cpuFile  *os.File
	log      *logger.Logger

	mu       sync.Mutex
	stopping bool
}

// NewHandler creates a new pprof handler. status may be nil.
func NewHandler(config Config, status StatusFunc) *Handler {
	return &Handler{
		config: config,
		status: status,
		log:    logger.Component("pprof"),
	}
}

// Addr returns the HTTP listener address, or nil
func (h *Handler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Start begins profiling based on the configuration
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.CPUProfile != "" {
		f, err := create(h.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		h.cpuFile = f
	}

	if h.config.HTTPAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
	mux.HandleFunc(StatusPath, h.serveStatus)

	ln, err := net.Listen("tcp", h.config.HTTPAddr)
	if err != nil {
		h.stopCPU()
		return fmt.Errorf("failed to bind pprof HTTP server: %w", err)
	}
	h.listener = ln
	h.server = &http.Server{Handler: mux}

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("pprof server error: %v", err)
		}
	}()
	h.log.Info("pprof listening on http://%s/debug/pprof/", ln.Addr())
	return nil
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	var doc any = map[string]any{}
	if h.status != nil {
		doc = h.status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		h.log.Warn("Failed to write status: %v", err)
	}
}

// Stop stops profiling and writes profile files
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping {
		return nil
	}
	h.stopping = true

	var errs []error
	if err := h.stopCPU(); err != nil {
		errs = append(errs, err)
	}

	if h.config.HeapProfile != "" {
		if err := writeProfile("heap", h.config.HeapProfile); err != nil {
			errs = append(errs, err)
		}
	}
	if h.config.GoroutineProfile != "" {
		if err := writeProfile("goroutine", h.config.GoroutineProfile); err != nil {
			errs = append(errs, err)
		}
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown pprof server: %w", err))
		}
		h.server = nil
		h.listener = nil
	}

	return errors.Join(errs...)
}

func (h *Handler) stopCPU() error {
	if h.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := h.cpuFile.Close()
	h.cpuFile = nil
	if err != nil {
		return fmt.Errorf("failed to close CPU profile: %w", err)
	}
	return nil
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// writeProfile writes a named profile to a file
func writeProfile(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("profile %q not found", name)
	}
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", name, err)
	}
	defer f.Close()
	if err := p.WriteTo(f, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}
