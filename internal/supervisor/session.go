// Package supervisor owns the command server process on behalf of the host:
// it performs the vacate handover, spawns the server with a fresh queue pair,
// drives the poller and tears everything down again.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/promethean-bridge/internal/config"
	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/host"
	"github.com/codefionn/promethean-bridge/internal/logger"
	"github.com/codefionn/promethean-bridge/internal/socketutil"
)

const (
	pollerTimer    = "promethean_poller"
	autoStartTimer = "promethean_auto_start"
)

// Status is the two-valued connection indicator
type Status int

const (
	// StatusDisconnected means no server process is owned
	StatusDisconnected Status = iota
	// StatusConnected means a server process is running
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "Connected"
	}
	return "Disconnected"
}

// ServerSession supervises one command server at a time
type ServerSession struct {
	runtime      *host.Runtime
	poller       *host.Poller
	spawner      Spawner
	cfg          config.ServerConfig
	pollInterval time.Duration

	mu          sync.Mutex
	status      Status
	proc        *Process
	autoStarted bool

	log *logger.Logger
}

// NewServerSession wires a session into the host runtime: Stop runs at exit
// and Resume on every load event.
func NewServerSession(rt *host.Runtime, poller *host.Poller, spawner Spawner, cfg config.ServerConfig, pollInterval time.Duration) *ServerSession {
	if pollInterval <= 0 {
		pollInterval = consts.PollInterval
	}
	s := &ServerSession{
		runtime:      rt,
		poller:       poller,
		spawner:      spawner,
		cfg:          cfg,
		pollInterval: pollInterval,
		log:          logger.Component("supervisor"),
	}
	rt.AtExit(s.Stop)
	rt.OnLoad(s.Resume)
	return s
}

// Start hands the port over from any running server and starts a new one
func (s *ServerSession) Start(ctx context.Context) error {
	s.mu.Lock()
	live := s.proc != nil
	s.mu.Unlock()
	if live {
		s.log.Info("Server already running, restarting it")
		s.Stop()
	}

	result := socketutil.VacateWithRetry(ctx, s.cfg.Address(), s.cfg.VacateToken)
	s.log.Debug("Vacate handshake on %s: %s", s.cfg.Address(), result)

	proc, err := s.spawner.Spawn(ctx, s.cfg)
	if err != nil {
		s.setStatus(StatusDisconnected)
		return fmt.Errorf("failed to spawn command server: %w", err)
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	s.setStatus(StatusConnected)
	s.log.Info("Command server started (pid %d) on %s", proc.PID, proc.Address)

	go s.watch(proc)

	return s.startPolling(proc)
}

// Stop terminates the server process and stops polling
func (s *ServerSession) Stop() {
	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()

	s.poller.Stop()
	s.runtime.Unregister(pollerTimer)
	s.setStatus(StatusDisconnected)

	if proc == nil {
		return
	}
	if err := proc.Terminate(); err != nil {
		s.log.Debug("Server process %d exited: %v", proc.PID, err)
	}
	s.log.Info("Command server stopped (pid %d)", proc.PID)
}

// Resume restarts polling after a load event when a server survives
func (s *ServerSession) Resume() {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return
	}

	s.log.Debug("Resuming poller for pid %d", proc.PID)
	if err := s.startPolling(proc); err != nil {
		s.log.Warn("Failed to resume poller: %v", err)
	}
}

// ScheduleAutoStart starts the server once after delay. Later calls on the
// same session do nothing.
func (s *ServerSession) ScheduleAutoStart(ctx context.Context, delay time.Duration) error {
	s.mu.Lock()
	if s.autoStarted {
		s.mu.Unlock()
		return nil
	}
	s.autoStarted = true
	s.mu.Unlock()

	return s.runtime.RegisterTimer(autoStartTimer, func() time.Duration {
		if err := s.Start(ctx); err != nil {
			s.log.Error("Auto start failed: %v", err)
		}
		return host.Stop
	}, delay)
}

// Status returns the connection status
func (s *ServerSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Process returns the running server process, or nil
func (s *ServerSession) Process() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (s *ServerSession) startPolling(proc *Process) error {
	if s.poller.State() == host.StatePolling && s.runtime.IsRegistered(pollerTimer) {
		return nil
	}
	s.poller.Start(proc.Inbound, proc.Outbound)
	s.runtime.Unregister(pollerTimer)
	if err := s.runtime.RegisterTimer(pollerTimer, s.poller.TimerFunc(s.pollInterval), 0); err != nil {
		return fmt.Errorf("failed to register poller: %w", err)
	}
	return nil
}

// watch flips the status when the current process exits on its own
func (s *ServerSession) watch(proc *Process) {
	err := proc.Wait()

	s.mu.Lock()
	current := s.proc == proc
	if current {
		s.proc = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}
	// releases the queue pair; the process is already gone
	proc.Terminate()

	s.setStatus(StatusDisconnected)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("Command server (pid %d) exited unexpectedly: %v", proc.PID, err)
	} else {
		s.log.Info("Command server (pid %d) exited", proc.PID)
	}
}

func (s *ServerSession) setStatus(status Status) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()
	if changed {
		s.log.Info("Status: %s", status)
	}
}
