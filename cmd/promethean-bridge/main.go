package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/promethean-bridge/internal/config"
	"github.com/codefionn/promethean-bridge/internal/logger"
)

var (
	configFile string
	logLevel   string
	port       int
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "promethean-bridge",
	Short: "TCP command channel between Promethean AI and a 3D scene host",
	Long: `promethean-bridge exposes a scene to the Promethean AI desktop client.

The host command runs the scene and supervises a command server process that
listens on 127.0.0.1:1317. Requests are plain text ("<command> <params>") and
every request gets exactly one response.

Use 'promethean-bridge help <command>' for more information on a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON), defaults to the user config directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error, none)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "Server port override")
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.GetConfigPath()
}

// loadConfig reads the config file and applies env and flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	return cfg, cfg.Validate()
}

// initLogging sends logs to the configured file, or stderr without one
func initLogging(level, path string) error {
	if err := logger.Init(logger.ParseLevel(level), path); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
