package socketclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/promethean-bridge/internal/consts"
)

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	// StateDisconnected indicates the client is not connected
	StateDisconnected ConnectionState = iota
	// StateConnected indicates the client is connected
	StateConnected
	// StateClosed indicates the client has been closed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned when sending without a connection
var ErrNotConnected = errors.New("not connected")

// SocketError is an ERROR reply from the host
type SocketError struct {
	Code    string
	Message string
}

func (e *SocketError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Config holds client configuration
type Config struct {
	// Address is host:port of the command server
	Address string
	// ConnectTimeout is the timeout for the TCP dial
	ConnectTimeout time.Duration
	// RequestTimeout bounds one request/response round trip; zero waits forever
	RequestTimeout time.Duration
	// BufferSize is the maximum reply size read at once
	BufferSize int
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Address:        net.JoinHostPort(consts.DefaultHost, fmt.Sprint(consts.DefaultPort)),
		ConnectTimeout: consts.Timeout5Seconds,
		BufferSize:     consts.ReadBufferSize,
	}
}

// Client is a command channel client. Requests are serialized.
type Client struct {
	config *Config

	conn  net.Conn
	mu    sync.Mutex
	state atomic.Int32
}

// NewClient creates a client for address
func NewClient(address string) (*Client, error) {
	config := DefaultConfig()
	config.Address = address
	return NewClientWithConfig(config)
}

// NewClientWithConfig creates a client with custom configuration
func NewClientWithConfig(config *Config) (*Client, error) {
	if config.Address == "" {
		return nil, errors.New("address is required")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = consts.ReadBufferSize
	}
	c := &Client{config: config}
	c.state.Store(int32(StateDisconnected))
	return c, nil
}

// State returns the connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connect dials the server
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateConnected {
		return errors.New("already connected")
	}

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.config.Address, err)
	}
	c.conn = conn
	c.state.Store(int32(StateConnected))
	return nil
}

// Send issues "command params" and returns the reply
func (c *Client) Send(ctx context.Context, command, params string) (string, error) {
	payload := command
	if params != "" {
		payload += " " + params
	}
	return c.SendRaw(ctx, []byte(payload))
}

// SendRaw writes payload unchanged and returns the reply
func (c *Client) SendRaw(ctx context.Context, payload []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", ErrNotConnected
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if c.config.RequestTimeout > 0 {
		if d := time.Now().Add(c.config.RequestTimeout); deadline.IsZero() || d.Before(deadline) {
			deadline = d
		}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("failed to set deadline: %w", err)
	}

	conn := c.conn
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := c.conn.Write(payload); err != nil {
		return "", c.fail(ctx, fmt.Errorf("failed to send request: %w", err))
	}

	buf := make([]byte, c.config.BufferSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", c.fail(ctx, fmt.Errorf("failed to read response: %w", err))
	}

	return parseReply(string(buf[:n]))
}

// fail drops the connection after a transport error
func (c *Client) fail(ctx context.Context, err error) error {
	c.conn.Close()
	c.conn = nil
	c.state.Store(int32(StateDisconnected))
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func parseReply(reply string) (string, error) {
	if reply == consts.ResponseError {
		return reply, &SocketError{Code: consts.ResponseError}
	}
	if rest, ok := strings.CutPrefix(reply, consts.ResponseError+" "); ok {
		return reply, &SocketError{Code: consts.ResponseError, Message: rest}
	}
	return reply, nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Store(int32(StateClosed))
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
