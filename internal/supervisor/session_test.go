package supervisor

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/promethean-bridge/internal/channel"
	"github.com/codefionn/promethean-bridge/internal/commands"
	"github.com/codefionn/promethean-bridge/internal/config"
	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/host"
	"github.com/codefionn/promethean-bridge/internal/pidfile"
	"github.com/codefionn/promethean-bridge/internal/scene"
	"github.com/codefionn/promethean-bridge/internal/socketclient"
	"github.com/codefionn/promethean-bridge/internal/socketserver"
	"github.com/codefionn/promethean-bridge/internal/socketutil"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

type fixture struct {
	runtime *host.Runtime
	poller  *host.Poller
	session *ServerSession
	scene   *scene.Scene
	cfg     config.ServerConfig
	cancel  context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, &InProcessSpawner{})
}

func newFixtureWith(t *testing.T, spawner Spawner) *fixture {
	t.Helper()

	sc := scene.New()
	require.NoError(t, sc.SaveAs(filepath.Join(t.TempDir(), "level.db")))
	router, err := commands.NewRouter(sc, 0)
	require.NoError(t, err)

	cfg := config.DefaultConfig().Server
	cfg.Port = freePort(t)

	f := &fixture{
		runtime: host.NewRuntime(16),
		poller:  host.NewPoller(router),
		scene:   sc,
		cfg:     cfg,
	}
	f.session = NewServerSession(f.runtime, f.poller, spawner, cfg, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.runtime.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-f.runtime.Done()
	})
	return f
}

func (f *fixture) send(t *testing.T, command, params string) string {
	t.Helper()
	client, err := socketclient.NewClient(f.cfg.Address())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	resp, err := client.Send(ctx, command, params)
	require.NoError(t, err)
	return resp
}

func TestSequentialClientsSeeSameScene(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Start(context.Background()))
	assert.Equal(t, StatusConnected, f.session.Status())

	first := f.send(t, "get_scene_name", "")
	second := f.send(t, "get_scene_name", "")
	assert.Equal(t, "level.db", first)
	assert.Equal(t, first, second)
}

func TestCommandsMutateHostScene(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Start(context.Background()))

	resp := f.send(t, "add_objects", `{"a": {"name": "Cube"}}`)
	assert.JSONEq(t, `{"a": "Cube"}`, resp)
	assert.Equal(t, "None", f.send(t, "translate", `[[100,0,0],["Cube"]]`))
	assert.Equal(t, "Box", f.send(t, "rename", "Cube,Box"))

	var loc scene.Vec3
	var found bool
	require.NoError(t, f.runtime.Call(context.Background(), func() {
		if o, ok := f.scene.Object("Box"); ok {
			found = true
			loc = f.scene.WorldLocation(o)
		}
	}))
	require.True(t, found)
	assert.InDelta(t, 1.0, loc[0], 1e-9)
}

func TestStartVacatesForeignServer(t *testing.T) {
	f := newFixture(t)

	inbound, outbound := channel.NewQueue(1), channel.NewQueue(1)
	foreign := make(chan error, 1)
	srv := socketserver.NewServer(f.cfg, inbound, outbound)
	go func() { foreign <- srv.Run(context.Background()) }()
	<-srv.Ready()

	require.NoError(t, f.session.Start(context.Background()))

	select {
	case err := <-foreign:
		assert.NoError(t, err)
		assert.True(t, srv.Vacated())
	case <-time.After(consts.Timeout5Seconds):
		t.Fatal("foreign server did not vacate")
	}
	assert.Equal(t, "level.db", f.send(t, "get_scene_name", ""))
}

func TestStartWhileLiveRestarts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Start(context.Background()))
	old := f.session.Process()
	require.NotNil(t, old)

	require.NoError(t, f.session.Start(context.Background()))
	select {
	case <-old.Done():
	default:
		t.Fatal("previous server still running")
	}
	assert.NotSame(t, old, f.session.Process())
	assert.Equal(t, "level.db", f.send(t, "get_scene_name", ""))
}

func TestStopAndRuntimeExit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Start(context.Background()))
	proc := f.session.Process()

	f.session.Stop()
	assert.Equal(t, StatusDisconnected, f.session.Status())
	assert.Nil(t, f.session.Process())
	assert.Equal(t, host.StateIdle, f.poller.State())
	<-proc.Done()

	require.NoError(t, f.session.Start(context.Background()))
	proc = f.session.Process()
	f.cancel()
	<-f.runtime.Done()
	<-proc.Done()
	assert.Equal(t, StatusDisconnected, f.session.Status())
}

func TestResumeOnLoad(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Start(context.Background()))

	f.poller.Stop()
	require.NoError(t, f.runtime.FireLoad())
	require.Eventually(t, func() bool { return f.poller.State() == host.StatePolling }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "level.db", f.send(t, "get_scene_name", ""))
}

func TestUnexpectedExit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Start(context.Background()))
	proc := f.session.Process()

	// someone else takes the port
	result, err := socketutil.Vacate(context.Background(), f.cfg.Address(), f.cfg.VacateToken, time.Second)
	require.NoError(t, err)
	assert.Equal(t, socketutil.VacateDone, result)
	<-proc.Done()

	require.Eventually(t, func() bool { return f.session.Status() == StatusDisconnected }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.poller.State() == host.StateIdle }, time.Second, 5*time.Millisecond)
}

func TestScheduleAutoStartOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.ScheduleAutoStart(context.Background(), 10*time.Millisecond))
	require.NoError(t, f.session.ScheduleAutoStart(context.Background(), 10*time.Millisecond))

	require.Eventually(t, func() bool { return f.session.Status() == StatusConnected }, consts.Timeout5Seconds, 10*time.Millisecond)
	assert.False(t, f.runtime.IsRegistered(autoStartTimer))
}

func TestBindFailureReported(t *testing.T) {
	f := newFixture(t)

	// a listener that never answers the vacate token keeps the port
	blocker, err := net.Listen("tcp", f.cfg.Address())
	require.NoError(t, err)
	defer blocker.Close()
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := blocker.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	require.NoError(t, f.session.Start(context.Background()))
	if proc := f.session.Process(); proc != nil {
		assert.Error(t, proc.Wait())
	}
	require.Eventually(t, func() bool { return f.session.Status() == StatusDisconnected }, consts.Timeout5Seconds, 10*time.Millisecond)
}

func TestServeChannel(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	cfg := config.DefaultConfig().Server
	cfg.Port = freePort(t)
	pids := pidfile.New(filepath.Join(t.TempDir(), "server.pid"))

	done := make(chan error, 1)
	go func() { done <- ServeChannel(context.Background(), inR, outW, cfg, pids) }()

	requests := channel.NewStreamReceiver(outR, consts.QueueCapacity)
	responses := channel.NewStreamSender(inW)
	go func() {
		for {
			req, err := requests.Get(context.Background())
			if err != nil {
				return
			}
			responses.Put(append([]byte("echo "), req...))
		}
	}()

	var client *socketclient.Client
	require.Eventually(t, func() bool {
		c, err := socketclient.NewClient(cfg.Address())
		if err != nil || c.Connect(context.Background()) != nil {
			return false
		}
		client = c
		return true
	}, consts.Timeout5Seconds, 20*time.Millisecond)
	defer client.Close()

	resp, err := client.Send(context.Background(), "get_scene_name", "")
	require.NoError(t, err)
	assert.Equal(t, "echo get_scene_name", resp)
	assert.True(t, pids.Exists())

	// closing stdin stops the child
	require.NoError(t, responses.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(consts.Timeout5Seconds):
		t.Fatal("serve channel did not stop")
	}
	assert.False(t, pids.Exists())
}

func TestChildArgsRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.Port = 4242
	cfg.IgnoreVacate = true

	spawner := &ExecSpawner{PIDPath: "/tmp/p.pid", LogLevel: "debug"}
	args, err := spawner.ChildArgs(cfg)
	require.NoError(t, err)
	require.Equal(t, ServeChannelCommand, args[0])
	assert.Equal(t, "--server-config", args[1])
	assert.Contains(t, args, "--pid-path")
	assert.Contains(t, args, "debug")

	parsed, err := ParseServerConfig(args[2])
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)

	_, err = ParseServerConfig("{")
	assert.Error(t, err)
}
