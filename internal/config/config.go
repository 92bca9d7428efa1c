package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/codefionn/promethean-bridge/internal/consts"
)

const appName = "promethean-bridge"

// ServerConfig configures the TCP server process
type ServerConfig struct {
	Host               string `json:"host"`
	Port               int    `json:"port"`
	BufferSize         int    `json:"buffer_size"`
	VacateToken        string `json:"vacate_token"`
	IgnoreVacate       bool   `json:"ignore_vacate"`
	AcknowledgeVacate  bool   `json:"acknowledge_vacate"`
	EnableCommandQueue bool   `json:"enable_command_queue"`
}

// Address returns the host:port the server binds to
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// HostConfig configures the headless host runtime
type HostConfig struct {
	PollIntervalMs  int     `json:"poll_interval_ms"`
	StartupDelayMs  int     `json:"startup_delay_ms"`
	AutoStart       bool    `json:"auto_start"`
	UnitsMultiplier float64 `json:"units_multiplier"`
}

// PollInterval returns the poller timer interval
func (h HostConfig) PollInterval() time.Duration {
	return time.Duration(h.PollIntervalMs) * time.Millisecond
}

// StartupDelay returns the deferred auto-start delay
func (h HostConfig) StartupDelay() time.Duration {
	return time.Duration(h.StartupDelayMs) * time.Millisecond
}

// Config represents application configuration
type Config struct {
	Server    ServerConfig `json:"server"`
	Host      HostConfig   `json:"host"`
	ScenePath string       `json:"scene_path,omitempty"` // Scene database opened at start-up, empty for an unsaved scene
	LogLevel  string       `json:"log_level"`            // debug, info, warn, error, none
	LogPath   string       `json:"log_path,omitempty"`   // empty logs to stderr
	PIDPath   string       `json:"pid_path"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		Server: ServerConfig{
			Host:               consts.DefaultHost,
			Port:               consts.DefaultPort,
			BufferSize:         consts.ReadBufferSize,
			VacateToken:        consts.VacateToken,
			AcknowledgeVacate:  true,
			EnableCommandQueue: true,
		},
		Host: HostConfig{
			PollIntervalMs:  int(consts.PollInterval / time.Millisecond),
			StartupDelayMs:  int(consts.StartupDelay / time.Millisecond),
			AutoStart:       true,
			UnitsMultiplier: consts.UnitsMultiplier,
		},
		LogLevel: "info",
		LogPath:  filepath.Join(stateDir, appName+".log"),
		PIDPath:  filepath.Join(stateDir, "server.pid"),
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	config.fillDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.BufferSize <= 0 {
		c.Server.BufferSize = defaults.Server.BufferSize
	}
	if c.Server.VacateToken == "" {
		c.Server.VacateToken = defaults.Server.VacateToken
	}
	if c.Host.PollIntervalMs <= 0 {
		c.Host.PollIntervalMs = defaults.Host.PollIntervalMs
	}
	if c.Host.StartupDelayMs < 0 {
		c.Host.StartupDelayMs = defaults.Host.StartupDelayMs
	}
	if c.Host.UnitsMultiplier == 0 {
		c.Host.UnitsMultiplier = defaults.Host.UnitsMultiplier
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.PIDPath == "" {
		c.PIDPath = defaults.PIDPath
	}
}

// Validate reports configuration values the bridge cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Host.UnitsMultiplier < 0 {
		return fmt.Errorf("invalid units multiplier %v", c.Host.UnitsMultiplier)
	}
	return nil
}

// ApplyEnv lets environment variables override file values
func (c *Config) ApplyEnv() error {
	if envLevel := strings.TrimSpace(os.Getenv("PROMETHEAN_LOG_LEVEL")); envLevel != "" {
		c.LogLevel = envLevel
	}
	if envPath, ok := os.LookupEnv("PROMETHEAN_LOG_PATH"); ok {
		c.LogPath = strings.TrimSpace(envPath)
	}
	if envPort := strings.TrimSpace(os.Getenv("PROMETHEAN_PORT")); envPort != "" {
		port, err := strconv.Atoi(envPort)
		if err != nil {
			return fmt.Errorf("invalid PROMETHEAN_PORT %q: %w", envPort, err)
		}
		c.Server.Port = port
	}
	return c.Validate()
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
