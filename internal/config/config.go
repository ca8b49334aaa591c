// Package config loads tasksync configuration from file, environment,
// and defaults.
//
// The config file is YAML, searched for as tasksync.yaml in the data
// directory and the working directory. Every key can be overridden
// with a TASKSYNC_* environment variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the resolved tasksync configuration.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// RemoteURL is the base URL of the remote task service.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`

	// ProbeURL is the reachability resource the connectivity monitor
	// requests. Defaults to RemoteURL + "/health".
	ProbeURL string `mapstructure:"probe_url" yaml:"probe_url"`

	// ProbeInterval is how often the active probe runs.
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`

	// DashboardPort is the WebSocket dashboard listen port.
	DashboardPort int `mapstructure:"dashboard_port" yaml:"dashboard_port"`

	// OutboxDir is the daemon's mutation intake directory.
	OutboxDir string `mapstructure:"outbox_dir" yaml:"outbox_dir"`

	// MirrorPath is where restores project the legacy flat document.
	// Empty disables mirroring.
	MirrorPath string `mapstructure:"mirror_path" yaml:"mirror_path"`

	// LogFile, when set, sends daemon logs to a rotated file instead
	// of stderr.
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

// DataDir returns the default tasksync data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".tasksync")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DataDir()
	return &Config{
		DBPath:        filepath.Join(dir, "tasksync.db"),
		RemoteURL:     "http://localhost:8080",
		ProbeInterval: 30 * time.Second,
		DashboardPort: 8321,
		OutboxDir:     filepath.Join(dir, "outbox"),
		MirrorPath:    filepath.Join(dir, "legacy.json"),
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
	}
}

// Load resolves the configuration from defaults, config file, and
// environment. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("remote_url", def.RemoteURL)
	v.SetDefault("probe_url", "")
	v.SetDefault("probe_interval", def.ProbeInterval)
	v.SetDefault("dashboard_port", def.DashboardPort)
	v.SetDefault("outbox_dir", def.OutboxDir)
	v.SetDefault("mirror_path", def.MirrorPath)
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", def.LogMaxSizeMB)
	v.SetDefault("log_max_backups", def.LogMaxBackups)

	v.SetConfigName("tasksync")
	v.SetConfigType("yaml")
	v.AddConfigPath(DataDir())
	v.AddConfigPath(".")

	v.SetEnvPrefix("TASKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ProbeURL == "" {
		cfg.ProbeURL = strings.TrimRight(cfg.RemoteURL, "/") + "/health"
	}

	return &cfg, nil
}

// WriteFile writes a starter config file with the built-in defaults.
// Fails if the file already exists.
func WriteFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
