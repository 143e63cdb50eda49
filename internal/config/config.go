// Package config loads tasksync configuration from defaults, an optional
// TOML config file, and TASKSYNC_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config holds everything the engine and CLI need to run.
type Config struct {
	// DataDir holds the local database, pending queue, and logs.
	DataDir string `toml:"data_dir" mapstructure:"data_dir"`

	// RemoteURL is the record API root (write upstream).
	RemoteURL string `toml:"remote_url" mapstructure:"remote_url"`

	// FeedURL is the change-feed root (read upstream).
	FeedURL string `toml:"feed_url" mapstructure:"feed_url"`

	// FeedTable is the replicated table name.
	FeedTable string `toml:"feed_table" mapstructure:"feed_table"`

	// PollInterval is the connection monitor probe interval.
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`

	// SyncInterval is the periodic pull-and-apply interval.
	SyncInterval time.Duration `toml:"sync_interval" mapstructure:"sync_interval"`

	// FailureThreshold is the consecutive-failure debounce for Offline.
	FailureThreshold int `toml:"failure_threshold" mapstructure:"failure_threshold"`

	// ProbeTimeout bounds reachability checks.
	ProbeTimeout time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`

	// RequestTimeout bounds data pulls and writes.
	RequestTimeout time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`

	// ServerPort is the status server's listen port.
	ServerPort int `toml:"server_port" mapstructure:"server_port"`

	// LogFile, when set, sends daemon logs to a rotating file instead of
	// stderr. Relative paths are resolved inside DataDir.
	LogFile string `toml:"log_file" mapstructure:"log_file"`
}

// Default returns the built-in configuration, rooted in ~/.tasksync.
func Default() *Config {
	dataDir := ".tasksync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".tasksync")
	}

	return &Config{
		DataDir:          dataDir,
		RemoteURL:        "http://localhost:3000",
		FeedURL:          "http://localhost:3001",
		FeedTable:        "tasks",
		PollInterval:     10 * time.Second,
		SyncInterval:     30 * time.Second,
		FailureThreshold: 3,
		ProbeTimeout:     3 * time.Second,
		RequestTimeout:   10 * time.Second,
		ServerPort:       8337,
	}
}

// Load reads configuration with viper: defaults, then the config file at
// path (or DataDir/config.toml when path is empty, missing file is fine),
// then TASKSYNC_* environment variables.
func Load(path string) (*Config, error) {
	defaults := Default()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("remote_url", defaults.RemoteURL)
	v.SetDefault("feed_url", defaults.FeedURL)
	v.SetDefault("feed_table", defaults.FeedTable)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("sync_interval", defaults.SyncInterval)
	v.SetDefault("failure_threshold", defaults.FailureThreshold)
	v.SetDefault("probe_timeout", defaults.ProbeTimeout)
	v.SetDefault("request_timeout", defaults.RequestTimeout)
	v.SetDefault("server_port", defaults.ServerPort)
	v.SetDefault("log_file", "")

	if path == "" {
		path = filepath.Join(defaults.DataDir, "config.toml")
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("TASKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// No config file is fine; defaults and env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Write persists the configuration as a TOML file, creating parent
// directories as needed. Used by `tasksync init`.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// DBPath returns the local SQLite database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "tasksync.db")
}

// QueuePath returns the pending-operation snapshot path.
func (c *Config) QueuePath() string {
	return filepath.Join(c.DataDir, "pending.json")
}

// LogPath resolves LogFile inside DataDir; empty means stderr only.
func (c *Config) LogPath() string {
	if c.LogFile == "" {
		return ""
	}
	if filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, c.LogFile)
}
