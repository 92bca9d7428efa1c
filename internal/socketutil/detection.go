// Package socketutil provides shared utilities for command server detection
// and the vacate handover between server processes.
package socketutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/logger"
	"github.com/codefionn/promethean-bridge/internal/pidfile"
	"github.com/codefionn/promethean-bridge/internal/socketclient"
)

// SocketDetectionTimeout is how long to wait for server detection
const SocketDetectionTimeout = 1 * time.Second

// VacateResult is the outcome of one vacate handshake
type VacateResult int

const (
	// VacateNoServer means nothing accepted the connection
	VacateNoServer VacateResult = iota
	// VacateDone means the previous server acknowledged or hung up
	VacateDone
	// VacateFailed means a server accepted but never answered in time
	VacateFailed
)

func (r VacateResult) String() string {
	switch r {
	case VacateNoServer:
		return "no server"
	case VacateDone:
		return "vacated"
	case VacateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Vacate asks the server listening on address to release its port. The whole
// handshake is bounded by timeout.
func Vacate(ctx context.Context, address, token string, timeout time.Duration) (VacateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := socketclient.NewClientWithConfig(&socketclient.Config{
		Address:        address,
		ConnectTimeout: timeout,
		BufferSize:     len(consts.VacateAck),
	})
	if err != nil {
		return VacateNoServer, err
	}

	if err := client.Connect(ctx); err != nil {
		logger.Debug("No server to vacate at %s: %v", address, err)
		return VacateNoServer, nil
	}
	defer client.Close()

	reply, err := client.SendRaw(ctx, []byte(token))
	switch {
	case err == nil && reply == consts.VacateAck:
		return VacateDone, nil
	case errors.Is(err, io.EOF):
		// servers configured without acknowledgement just hang up
		return VacateDone, nil
	case err != nil:
		return VacateFailed, fmt.Errorf("failed to vacate %s: %w", address, err)
	default:
		return VacateFailed, fmt.Errorf("failed to vacate %s: unexpected reply %q", address, reply)
	}
}

// VacateWithRetry runs the vacate handshake with the standard windows: one
// attempt, then a shorter second attempt only if a server accepted the first
// one without answering.
func VacateWithRetry(ctx context.Context, address, token string) VacateResult {
	result, err := Vacate(ctx, address, token, consts.VacateTimeout)
	if result != VacateFailed {
		if result == VacateDone {
			logger.Info("Previous server at %s vacated", address)
		}
		return result
	}
	logger.Warn("Vacate attempt failed, retrying: %v", err)

	result, err = Vacate(ctx, address, token, consts.VacateRetryTimeout)
	if result == VacateFailed {
		logger.Warn("Vacate retry failed: %v", err)
	}
	return result
}

// DetectServer reports whether something accepts connections at address
func DetectServer(address string) bool {
	client, err := socketclient.NewClientWithConfig(&socketclient.Config{
		Address:        address,
		ConnectTimeout: SocketDetectionTimeout,
	})
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), SocketDetectionTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		logger.Debug("No server detected at %s: %v", address, err)
		return false
	}
	client.Close()
	return true
}

// GetDetectionInfo returns a human-readable description of the server
// address, its pid file and whether anything is listening.
func GetDetectionInfo(address string, pids *pidfile.Pidfile) string {
	info := fmt.Sprintf("Server address: %s", address)
	if DetectServer(address) {
		info += " (listening)"
	} else {
		info += " (not listening)"
	}

	if pids == nil {
		return info
	}
	pid, err := pids.Running()
	switch {
	case err == nil:
		info += fmt.Sprintf(", pid %d", pid)
	case errors.Is(err, pidfile.ErrNotRunning):
		info += ", no server process"
	default:
		info += fmt.Sprintf(", pid file error: %v", err)
	}
	return info
}

// ConnectToServer connects a client to the server at address
func ConnectToServer(address string) (*socketclient.Client, error) {
	client, err := socketclient.NewClient(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), SocketDetectionTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return client, nil
}
