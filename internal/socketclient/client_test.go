package socketclient

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers each request with reply(request)
func fakeServer(t *testing.T, reply func(string) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 4096)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					resp := reply(string(buf[:n]))
					if resp == "" {
						continue
					}
					if _, err := conn.Write([]byte(resp)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestSend(t *testing.T) {
	addr := fakeServer(t, func(req string) string { return "got " + req })

	client, err := NewClient(addr)
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, client.State())

	_, err = client.Send(context.Background(), "get_scene_name", "")
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	assert.Equal(t, StateConnected, client.State())

	resp, err := client.Send(context.Background(), "rename", "Cube,Box")
	require.NoError(t, err)
	assert.Equal(t, "got rename Cube,Box", resp)

	resp, err = client.Send(context.Background(), "get_scene_name", "")
	require.NoError(t, err)
	assert.Equal(t, "got get_scene_name", resp)
}

func TestErrorReply(t *testing.T) {
	addr := fakeServer(t, func(req string) string {
		if req == "bogus" {
			return "ERROR unknown command: bogus"
		}
		return "ERROR"
	})

	client, err := NewClient(addr)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	_, err = client.Send(context.Background(), "bogus", "")
	var sockErr *SocketError
	require.True(t, errors.As(err, &sockErr))
	assert.Equal(t, "unknown command: bogus", sockErr.Message)

	_, err = client.Send(context.Background(), "translate", "x")
	require.True(t, errors.As(err, &sockErr))
	assert.Equal(t, "ERROR", sockErr.Error())
}

func TestRequestTimeout(t *testing.T) {
	addr := fakeServer(t, func(string) string { return "" })

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.RequestTimeout = 100 * time.Millisecond
	client, err := NewClientWithConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	_, err = client.Send(context.Background(), "slow", "")
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, client.State())
}

func TestContextCancel(t *testing.T) {
	addr := fakeServer(t, func(string) string { return "" })

	client, err := NewClient(addr)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err = client.Send(ctx, "slow", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client, err := NewClient(addr)
	require.NoError(t, err)
	assert.Error(t, client.Connect(context.Background()))

	_, err = NewClient("")
	assert.Error(t, err)
}
