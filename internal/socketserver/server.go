package socketserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/netutil"

	"github.com/codefionn/promethean-bridge/internal/channel"
	"github.com/codefionn/promethean-bridge/internal/config"
	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/logger"
	"github.com/codefionn/promethean-bridge/internal/pidfile"
)

// Server is one command server lifetime
type Server struct {
	cfg      config.ServerConfig
	inbound  channel.Sender
	outbound channel.Receiver
	pidfile  *pidfile.Pidfile
	log      *logger.Logger

	mu       sync.Mutex
	listener net.Listener
	vacated  bool

	ready     chan struct{}
	readyOnce sync.Once
	connID    int
}

// NewServer creates a server pushing requests to inbound and reading
// responses from outbound
func NewServer(cfg config.ServerConfig, inbound channel.Sender, outbound channel.Receiver) *Server {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = consts.ReadBufferSize
	}
	if cfg.VacateToken == "" {
		cfg.VacateToken = consts.VacateToken
	}
	return &Server{
		cfg:      cfg,
		inbound:  inbound,
		outbound: outbound,
		log:      logger.Component("server"),
		ready:    make(chan struct{}),
	}
}

// SetPidfile records the server PID at path while the listener is bound
func (s *Server) SetPidfile(p *pidfile.Pidfile) {
	s.pidfile = p
}

// Run binds the configured address and serves connections until the server
// is vacated, the outbound queue closes or ctx is cancelled
func Run(ctx context.Context, inbound channel.Sender, outbound channel.Receiver, cfg config.ServerConfig) error {
	return NewServer(cfg, inbound, outbound).Run(ctx)
}

// Ready is closed once the listener is bound
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Ready
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Vacated reports whether the server gave up its port on request
func (s *Server) Vacated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vacated
}

// Run executes the server loop
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.bind(ctx)
	if err != nil {
		msg := consts.InternalServerErrorCommand + " " + err.Error()
		if putErr := s.inbound.Put([]byte(msg)); putErr != nil {
			s.log.Error("Failed to report startup error: %v", putErr)
		}
		return fmt.Errorf("failed to start command server: %w", err)
	}

	s.mu.Lock()
	s.listener = netutil.LimitListener(ln, 1)
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	if s.pidfile != nil {
		if err := s.pidfile.Write(); err != nil {
			s.log.Warn("Failed to write pid file: %v", err)
		} else {
			defer func() {
				if err := s.pidfile.RemoveIfOwned(os.Getpid()); err != nil {
					s.log.Warn("Failed to remove pid file: %v", err)
				}
			}()
		}
	}

	s.log.Info("Command server listening on %s", ln.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		s.closeListener()
	}()

	err = s.acceptLoop(ctx)
	s.closeListener()
	s.log.Info("Command server on %s stopped", ln.Addr())
	return err
}

// bind retries a busy port until the handover window has passed
func (s *Server) bind(ctx context.Context) (net.Listener, error) {
	addr := s.cfg.Address()
	deadline := time.Now().Add(consts.BindRetryWindow)

	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		s.log.Debug("Bind %s failed, retrying: %v", addr, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(consts.BindRetryInterval):
		}
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
}

// acceptLoop serves one connection at a time
func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.Vacated() {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.log.Error("Error accepting connection: %v", err)
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		s.connID++
		if !s.cfg.EnableCommandQueue {
			s.log.Debug("Command queue disabled, dropping connection from %s", conn.RemoteAddr())
			conn.Close()
			continue
		}

		s.log.Debug("Connection %d accepted from %s", s.connID, conn.RemoteAddr())
		done, err := s.serve(ctx, conn)
		conn.Close()
		if err != nil {
			s.log.Warn("Connection %d dropped: %v", s.connID, err)
		}
		if done {
			return nil
		}
	}
}

// serve handles requests on one connection. It reports done when the server
// itself has to stop.
func (s *Server) serve(ctx context.Context, conn net.Conn) (bool, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, err := conn.Read(buf)
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("failed to read request: %w", err)
		}
		payload := bytes.Clone(buf[:n])

		if string(payload) == s.cfg.VacateToken {
			if s.cfg.IgnoreVacate {
				s.log.Info("Ignoring vacate request")
				continue
			}
			s.vacate(conn)
			return true, nil
		}

		if !utf8.Valid(payload) {
			return false, fmt.Errorf("request is not valid UTF-8")
		}

		if err := s.inbound.Put(payload); err != nil {
			return false, fmt.Errorf("failed to queue request: %w", err)
		}

		response, err := s.outbound.Get(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrQueueClosed) {
				return true, nil
			}
			return false, err
		}

		if _, err := conn.Write(response); err != nil {
			return false, fmt.Errorf("failed to write response: %w", err)
		}
	}
}

func (s *Server) vacate(conn net.Conn) {
	s.log.Info("Received vacate request, releasing %s", s.cfg.Address())
	if s.cfg.AcknowledgeVacate {
		if _, err := conn.Write([]byte(consts.VacateAck)); err != nil {
			s.log.Warn("Failed to acknowledge vacate: %v", err)
		}
	}

	s.mu.Lock()
	s.vacated = true
	s.mu.Unlock()
	s.closeListener()
}
