package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/codefionn/promethean-bridge/internal/channel"
	"github.com/codefionn/promethean-bridge/internal/config"
	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/logger"
	"github.com/codefionn/promethean-bridge/internal/pidfile"
	"github.com/codefionn/promethean-bridge/internal/socketserver"
)

// ServeChannelCommand is the hidden subcommand the exec spawner runs
const ServeChannelCommand = "serve-channel"

// Process is a running command server together with its queue pair
type Process struct {
	// PID of the server process; the host's own PID for in-process servers
	PID int
	// Address the server was asked to bind
	Address string
	// Inbound carries requests from the server to the host
	Inbound channel.Receiver
	// Outbound carries responses from the host to the server
	Outbound channel.Sender

	terminate func() error
	done      chan struct{}
	once      sync.Once
	err       error
}

func newProcess(pid int, address string, inbound channel.Receiver, outbound channel.Sender) *Process {
	return &Process{
		PID:      pid,
		Address:  address,
		Inbound:  inbound,
		Outbound: outbound,
		done:     make(chan struct{}),
	}
}

// exited records the exit error and wakes waiters
func (p *Process) exited(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the process has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process has exited and returns its exit error
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Terminate stops the process and waits for it
func (p *Process) Terminate() error {
	if p.terminate == nil {
		return p.Wait()
	}
	return p.terminate()
}

// Spawner starts command server processes
type Spawner interface {
	Spawn(ctx context.Context, cfg config.ServerConfig) (*Process, error)
}

// InProcessSpawner runs the server on a goroutine over memory queues
type InProcessSpawner struct {
	// Pidfile, when set, is written while the server is bound
	Pidfile *pidfile.Pidfile
}

// Spawn starts the server and returns once it is bound or has given up
func (s *InProcessSpawner) Spawn(ctx context.Context, cfg config.ServerConfig) (*Process, error) {
	inbound := channel.NewQueue(consts.QueueCapacity)
	outbound := channel.NewQueue(consts.QueueCapacity)

	srv := socketserver.NewServer(cfg, inbound, outbound)
	if s.Pidfile != nil {
		srv.SetPidfile(s.Pidfile)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	proc := newProcess(os.Getpid(), cfg.Address(), inbound, outbound)
	proc.terminate = func() error {
		cancel()
		outbound.Close()
		return proc.Wait()
	}

	go func() {
		err := srv.Run(runCtx)
		inbound.Close()
		proc.exited(err)
	}()

	select {
	case <-srv.Ready():
		proc.Address = srv.Addr().String()
	case <-proc.Done():
	case <-ctx.Done():
		proc.Terminate()
		return nil, ctx.Err()
	}
	return proc, nil
}

// ExecSpawner runs the server as a child process. The child's stdout carries
// inbound frames and its stdin outbound frames; closing stdin stops it.
type ExecSpawner struct {
	// Path of the binary, the running executable when empty
	Path string
	// PIDPath is passed to the child for its pid file
	PIDPath string
	// LogLevel and LogPath configure the child's logger
	LogLevel string
	LogPath  string
	// StopTimeout is how long to wait after closing stdin before killing
	StopTimeout time.Duration
	// Env is appended to the host environment
	Env []string
}

// ChildArgs builds the serve-channel argument list for cfg
func (s *ExecSpawner) ChildArgs(cfg config.ServerConfig) ([]string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode server config: %w", err)
	}
	args := []string{ServeChannelCommand, "--server-config", string(data)}
	if s.PIDPath != "" {
		args = append(args, "--pid-path", s.PIDPath)
	}
	if s.LogLevel != "" {
		args = append(args, "--log-level", s.LogLevel)
	}
	if s.LogPath != "" {
		args = append(args, "--log-path", s.LogPath)
	}
	return args, nil
}

// Spawn starts the child process
func (s *ExecSpawner) Spawn(ctx context.Context, cfg config.ServerConfig) (*Process, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		path = exe
	}

	args, err := s.ChildArgs(cfg)
	if err != nil {
		return nil, err
	}

	// plain pipes so Wait does not close our ends before the frames are read
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = os.Stderr
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("failed to start server process: %w", err)
	}
	stdoutW.Close()
	stdinR.Close()

	log := logger.Component("supervisor")
	inbound := channel.NewStreamReceiver(stdoutR, consts.QueueCapacity)
	outbound := channel.NewStreamSender(stdinW)
	proc := newProcess(cmd.Process.Pid, cfg.Address(), inbound, outbound)

	go func() {
		<-inbound.Done()
		stdoutR.Close()
	}()
	go func() {
		err := cmd.Wait()
		// stdin is ours to close even when the child exits on its own
		outbound.Close()
		proc.exited(err)
	}()

	stopTimeout := s.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = consts.Timeout2Seconds
	}
	proc.terminate = func() error {
		outbound.Close()
		select {
		case <-proc.Done():
		case <-time.After(stopTimeout):
			log.Warn("Server process %d did not exit, killing it", proc.PID)
			if err := cmd.Process.Kill(); err != nil {
				log.Warn("Failed to kill server process %d: %v", proc.PID, err)
			}
		}
		return proc.Wait()
	}

	return proc, nil
}

// ParseServerConfig decodes the --server-config flag of the child
func ParseServerConfig(data string) (config.ServerConfig, error) {
	cfg := config.DefaultConfig().Server
	if data == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse server config: %w", err)
	}
	if _, _, err := net.SplitHostPort(cfg.Address()); err != nil {
		return cfg, fmt.Errorf("invalid server address: %w", err)
	}
	return cfg, nil
}
