package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codefionn/promethean-bridge/internal/commands"
	"github.com/codefionn/promethean-bridge/internal/config"
	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/host"
	"github.com/codefionn/promethean-bridge/internal/lockfile"
	"github.com/codefionn/promethean-bridge/internal/logger"
	"github.com/codefionn/promethean-bridge/internal/pidfile"
	"github.com/codefionn/promethean-bridge/internal/pprof"
	"github.com/codefionn/promethean-bridge/internal/scene"
	"github.com/codefionn/promethean-bridge/internal/supervisor"
)

var (
	hostScenePath string
	hostInProcess bool
	hostStartNow  bool
	hostLogStderr bool
	hostPprof     pprof.Config
)

var hostCmd = &cobra.Command{
	Use:   "host [scene]",
	Short: "Run the scene host and its command server",
	Long: `Run the headless scene host. The command server is started after the
configured start-up delay (or immediately with --now) and stopped on exit.

SIGHUP reloads the scene from disk and resumes polling. SIGUSR1 restores
the newest undo checkpoint.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			hostScenePath = args[0]
		}
		if hostScenePath != "" {
			cfg.ScenePath = hostScenePath
		}

		logPath := cfg.LogPath
		if hostLogStderr {
			logPath = ""
		}
		if err := initLogging(cfg.LogLevel, logPath); err != nil {
			return err
		}
		defer logger.Global().Close()

		return runHost(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().StringVar(&hostScenePath, "scene", "", "Scene database to open")
	hostCmd.Flags().BoolVar(&hostInProcess, "in-process", false, "Run the command server on a goroutine instead of a child process")
	hostCmd.Flags().BoolVar(&hostStartNow, "now", false, "Start the command server without the start-up delay")
	hostCmd.Flags().BoolVar(&hostLogStderr, "stderr", false, "Log to stderr instead of the log file")
	hostCmd.Flags().StringVar(&hostPprof.HTTPAddr, "pprof", "", "Serve pprof and bridge status on this address")
	hostCmd.Flags().StringVar(&hostPprof.CPUProfile, "cpuprofile", "", "Write a CPU profile to this file")
	hostCmd.Flags().StringVar(&hostPprof.HeapProfile, "memprofile", "", "Write a heap profile to this file on exit")
}

func runHost(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Component("host")

	sc := scene.New()
	if cfg.ScenePath != "" {
		lock := lockfile.ForScene(cfg.ScenePath)
		if err := lock.TryAcquire(); err != nil {
			return err
		}
		defer lock.Release()

		if err := sc.Open(cfg.ScenePath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to open scene: %w", err)
			}
			if err := sc.SaveAs(cfg.ScenePath); err != nil {
				return fmt.Errorf("failed to create scene: %w", err)
			}
			log.Info("Scene %s created", cfg.ScenePath)
		}
	}

	router, err := commands.NewRouter(sc, cfg.Host.UnitsMultiplier)
	if err != nil {
		return fmt.Errorf("failed to build command table: %w", err)
	}

	spawner := newSpawner(cfg, hostInProcess, hostLogStderr)
	runtime := host.NewRuntime(consts.QueueCapacity)
	poller := host.NewPoller(router)
	session := supervisor.NewServerSession(runtime, poller, spawner, cfg.Server, cfg.Host.PollInterval())

	if hostPprof.Enabled() {
		profiler := pprof.NewHandler(hostPprof, func() any {
			return bridgeStatus(runtime, session, poller, sc)
		})
		if err := profiler.Start(); err != nil {
			return err
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				log.Warn("Failed to stop profiling: %v", err)
			}
		}()
	}

	if watcher, err := config.Watch(configPath(), func(updated *config.Config) {
		level := logger.ParseLevel(updated.LogLevel)
		logger.Global().SetLevel(level)
		log.Info("Config reloaded, log level %s", level)
	}); err != nil {
		log.Warn("Config reload disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	usr := make(chan os.Signal, 1)
	if len(undoSignals) > 0 {
		signal.Notify(usr, undoSignals...)
		defer signal.Stop(usr)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				reload(runtime, sc, log)
			case <-usr:
				undo(runtime, sc, log)
			}
		}
	}()

	switch {
	case hostStartNow:
		if err := session.ScheduleAutoStart(ctx, 0); err != nil {
			return err
		}
	case cfg.Host.AutoStart:
		if err := session.ScheduleAutoStart(ctx, cfg.Host.StartupDelay()); err != nil {
			return err
		}
	default:
		log.Info("Auto start disabled")
	}

	log.Info("Host running (scene %q)", sc.Path())
	return runtime.Run(ctx)
}

// newSpawner picks where the command server runs. A child started while the
// host logs to stderr inherits stderr instead of opening the log file.
func newSpawner(cfg *config.Config, inProcess, logStderr bool) supervisor.Spawner {
	if inProcess {
		return &supervisor.InProcessSpawner{Pidfile: pidfile.New(cfg.PIDPath)}
	}
	logPath := cfg.LogPath
	if logStderr {
		logPath = ""
	}
	return &supervisor.ExecSpawner{
		PIDPath:  cfg.PIDPath,
		LogLevel: cfg.LogLevel,
		LogPath:  logPath,
	}
}

// bridgeStatus is the document served on the pprof status endpoint
func bridgeStatus(runtime *host.Runtime, session *supervisor.ServerSession, poller *host.Poller, sc *scene.Scene) map[string]any {
	doc := map[string]any{
		"status": session.Status().String(),
		"poller": poller.State().String(),
	}
	if proc := session.Process(); proc != nil {
		doc["pid"] = proc.PID
		doc["address"] = proc.Address
	}

	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout2Seconds)
	defer cancel()
	var path string
	var objects int
	var dirty bool
	var checkpoints []scene.Checkpoint
	if err := runtime.Call(ctx, func() {
		path, objects, dirty = sc.Path(), sc.Len(), sc.Dirty()
		checkpoints = sc.Checkpoints()
	}); err != nil {
		doc["error"] = err.Error()
		return doc
	}
	doc["scene"] = path
	doc["objects"] = objects
	doc["dirty"] = dirty
	doc["undo_steps"] = len(checkpoints)
	if n := len(checkpoints); n > 0 {
		doc["last_checkpoint"] = checkpoints[n-1].Label
	}
	return doc
}

// reload reopens the scene file on the host goroutine and fires load handlers
func reload(runtime *host.Runtime, sc *scene.Scene, log *logger.Logger) {
	err := runtime.Post(func() {
		if path := sc.Path(); path != "" {
			if err := sc.Open(path); err != nil {
				log.Error("Failed to reload scene: %v", err)
				return
			}
			log.Info("Scene %s reloaded", path)
		}
	})
	if err != nil {
		log.Warn("Failed to schedule reload: %v", err)
		return
	}
	if err := runtime.FireLoad(); err != nil {
		log.Warn("Failed to fire load handlers: %v", err)
	}
}

// undo restores the newest checkpoint on the host goroutine
func undo(runtime *host.Runtime, sc *scene.Scene, log *logger.Logger) {
	err := runtime.Post(func() {
		label, err := sc.Undo()
		if errors.Is(err, scene.ErrNothingToUndo) {
			log.Info("Nothing to undo")
			return
		}
		if err != nil {
			log.Error("Failed to undo: %v", err)
			return
		}
		log.Info("Restored checkpoint %q", label)
	})
	if err != nil {
		log.Warn("Failed to schedule undo: %v", err)
	}
}
