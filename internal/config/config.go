package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the specindex server.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Roots     RootsConfig     `toml:"roots"`
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Cache     CacheConfig     `toml:"cache"`
	TaskBoard TaskBoardConfig `toml:"task_board"`
}

// RootsConfig holds the allowed-roots policy seed list.
type RootsConfig struct {
	// Allowed lists additional absolute directories to allow, beyond any
	// passed positionally on the command line.
	Allowed []string `toml:"allowed"`
}

// ServerConfig holds server metadata reported in `initialize`.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig holds transport-related settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port. Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address. Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins.
	CORSOrigins string `toml:"cors_origins"`
	// AuthToken, when non-empty, is the bearer token HTTP clients must send
	// in the Authorization header. Empty disables HTTP authentication,
	// suitable for a server bound to localhost only.
	AuthToken string `toml:"auth_token"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// MonitorConfig holds Change Monitor cadence settings.
type MonitorConfig struct {
	PollIntervalSeconds     int  `toml:"poll_interval_seconds"`     // default 5
	ThrottleIntervalSeconds int  `toml:"throttle_interval_seconds"` // default 30
	PausedSleepSeconds      int  `toml:"paused_sleep_seconds"`      // default 1
	WatchEnabled            bool `toml:"watch_enabled"`             // fsnotify supplementary wake signal
}

// CacheConfig holds Unified Context Cache settings.
type CacheConfig struct {
	TTLSeconds int `toml:"ttl_seconds"` // default 300
}

// TaskBoardConfig holds Task Board scheduling settings.
type TaskBoardConfig struct {
	Workers           int `toml:"workers"`             // default 1
	DefaultTimeoutSec int `toml:"default_timeout_sec"` // default 120
	RetentionDays     int `toml:"retention_days"`       // default 7
}

// Load creates a Config by reading from a TOML config file and environment
// variables. Precedence: environment variables > config file > defaults.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. SPECINDEX_CONFIG environment variable
//  3. ./specindex.toml (current directory)
//  4. ~/.config/specindex/specindex.toml (XDG-style)
//
// All fields are optional in the config file. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Name:    "specindex",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:        "stdio",
			Port:        "21452",
			Host:        "0.0.0.0",
			CORSOrigins: "*",
		},
		Log: LogConfig{
			Level: "info",
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds:     5,
			ThrottleIntervalSeconds: 30,
			PausedSleepSeconds:      1,
			WatchEnabled:            true,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		TaskBoard: TaskBoardConfig{
			Workers:           1,
			DefaultTimeoutSec: 120,
			RetentionDays:     7,
		},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil
	}

	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return nil
}

// resolveConfigPath determines which config file to use. Returns empty string
// if no config file is found (config file is optional).
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if p := os.Getenv("SPECINDEX_CONFIG"); p != "" {
		return p
	}

	if _, err := os.Stat("specindex.toml"); err == nil {
		return "specindex.toml"
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/specindex/specindex.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnv overlays environment variables on top of existing config values.
// An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("SPECINDEX_TRANSPORT", &c.Transport.Mode)
	envOverride("SPECINDEX_PORT", &c.Transport.Port)
	envOverride("SPECINDEX_HOST", &c.Transport.Host)
	envOverride("SPECINDEX_CORS_ORIGINS", &c.Transport.CORSOrigins)
	envOverride("SPECINDEX_AUTH_TOKEN", &c.Transport.AuthToken)
	envOverride("SPECINDEX_LOG_LEVEL", &c.Log.Level)

	if v := os.Getenv("SPECINDEX_MONITOR_POLL_SECONDS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Monitor.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("SPECINDEX_MONITOR_THROTTLE_SECONDS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Monitor.ThrottleIntervalSeconds = n
		}
	}
	if v := os.Getenv("SPECINDEX_MONITOR_WATCH_ENABLED"); v != "" {
		c.Monitor.WatchEnabled = (v == "true" || v == "1")
	}
	if v := os.Getenv("SPECINDEX_CACHE_TTL_SECONDS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Cache.TTLSeconds = n
		}
	}
	if v := os.Getenv("SPECINDEX_TASKBOARD_WORKERS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.TaskBoard.Workers = n
		}
	}
}

// Validate checks that required fields are present and internally consistent.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.poll_interval_seconds must be positive")
	}
	if c.TaskBoard.Workers <= 0 {
		return fmt.Errorf("task_board.workers must be positive")
	}
	return nil
}

// envOverride sets *dst to the value of the named env var, if it is non-empty.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
