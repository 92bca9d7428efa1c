package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codefionn/promethean-bridge/internal/logger"
	"github.com/codefionn/promethean-bridge/internal/pidfile"
	"github.com/codefionn/promethean-bridge/internal/supervisor"
)

var (
	serveServerConfig string
	servePIDPath      string
	serveLogPath      string
)

// serveChannelCmd is the child process started by the host. Stdout carries
// request frames, stdin response frames; logs never go to stdout.
var serveChannelCmd = &cobra.Command{
	Use:    supervisor.ServeChannelCommand,
	Short:  "Run the command server over stdio queues",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := supervisor.ParseServerConfig(serveServerConfig)
		if err != nil {
			return err
		}

		level := logLevel
		if level == "" {
			level = "info"
		}
		if err := initLogging(level, serveLogPath); err != nil {
			return err
		}
		defer logger.Global().Close()

		var pids *pidfile.Pidfile
		if servePIDPath != "" {
			pids = pidfile.New(servePIDPath)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return supervisor.ServeChannel(ctx, os.Stdin, os.Stdout, cfg, pids)
	},
}

func init() {
	rootCmd.AddCommand(serveChannelCmd)
	serveChannelCmd.Flags().StringVar(&serveServerConfig, "server-config", "", "Server configuration (JSON)")
	serveChannelCmd.Flags().StringVar(&servePIDPath, "pid-path", "", "PID file written while bound")
	serveChannelCmd.Flags().StringVar(&serveLogPath, "log-path", "", "Log file, stderr when empty")
}
