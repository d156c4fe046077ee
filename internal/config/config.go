package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete oschat configuration
type Config struct {
	Chat    ChatConfig    `mapstructure:"chat" yaml:"chat"`
	IPC     IPCConfig     `mapstructure:"ipc" yaml:"ipc"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
	UI      UIConfig      `mapstructure:"ui" yaml:"ui"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ChatConfig controls the conversation protocol
type ChatConfig struct {
	// Name is the display name sent with each message (max 19 bytes).
	// Empty means the login name.
	Name string `mapstructure:"name" yaml:"name"`
	// BackoffMs is the first sleep after finding the queue full (default: 2000)
	BackoffMs int `mapstructure:"backoff_ms" yaml:"backoff_ms"`
	// MaxBackoffMs caps the doubling backoff (default: 8000)
	MaxBackoffMs int `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms"`
	// PollIntervalMs bounds how long a wait for the peer's signal lasts
	// before the queue is checked anyway (default: 250)
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	// LeaveTimeoutMs bounds how long a leave notice waits for room (default: 5000)
	LeaveTimeoutMs int `mapstructure:"leave_timeout_ms" yaml:"leave_timeout_ms"`
}

// IPCConfig controls the System V resources shared by the two peers
type IPCConfig struct {
	// ShmKey is the shared memory key (default: 0x4f534348)
	ShmKey int `mapstructure:"shm_key" yaml:"shm_key"`
	// SemKey is the semaphore set key (default: 0x4f534349)
	SemKey int `mapstructure:"sem_key" yaml:"sem_key"`
	// Perm is the octal permission string for both resources (default: "0666")
	Perm string `mapstructure:"perm" yaml:"perm"`
	// ReadyPollIntervalMs is how often a joining peer checks the ready flag (default: 50)
	ReadyPollIntervalMs int `mapstructure:"ready_poll_interval_ms" yaml:"ready_poll_interval_ms"`
	// ReadyTimeoutMs is how long a joining peer waits for the ready flag (default: 10000)
	ReadyTimeoutMs int `mapstructure:"ready_timeout_ms" yaml:"ready_timeout_ms"`
	// ReclaimStale removes resources left by a crashed session at startup (default: true)
	ReclaimStale bool `mapstructure:"reclaim_stale" yaml:"reclaim_stale"`
}

// HistoryConfig controls the append-only chat transcript
type HistoryConfig struct {
	// Enabled controls whether messages are written to the history file (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// File is the transcript path; relative paths resolve against the
	// working directory (default: "chat_history.log")
	File string `mapstructure:"file" yaml:"file"`
	// MaxSizeKB rotates the file to <file>.old once exceeded (default: 1024)
	MaxSizeKB int `mapstructure:"max_size_kb" yaml:"max_size_kb"`
}

// UIConfig controls the terminal front end
type UIConfig struct {
	// Color is "auto", "always" or "never" (default: "auto")
	Color string `mapstructure:"color" yaml:"color"`
	// Banner shows the welcome banner on start (default: true)
	Banner bool `mapstructure:"banner" yaml:"banner"`
	// Timestamps prefixes each line with HH:MM (default: true)
	Timestamps bool `mapstructure:"timestamps" yaml:"timestamps"`
	// Theme is an optional YAML file overriding the console colors
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LoggingConfig controls diagnostic logging behavior
type LoggingConfig struct {
	// Enabled controls whether diagnostic logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where oschat.log is written. Empty means <config dir>/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated backups (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Chat: ChatConfig{
			BackoffMs:      2000,
			MaxBackoffMs:   8000,
			PollIntervalMs: 250,
			LeaveTimeoutMs: 5000,
		},
		IPC: IPCConfig{
			ShmKey:              0x4f534348,
			SemKey:              0x4f534349,
			Perm:                "0666",
			ReadyPollIntervalMs: 50,
			ReadyTimeoutMs:      10000,
			ReclaimStale:        true,
		},
		History: HistoryConfig{
			Enabled:   true,
			File:      "chat_history.log",
			MaxSizeKB: 1024,
		},
		UI: UIConfig{
			Color:      "auto",
			Banner:     true,
			Timestamps: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Backoff returns the initial send backoff
func (c *ChatConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// MaxBackoff returns the backoff cap
func (c *ChatConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// PollInterval returns the notify wait timeout
func (c *ChatConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// LeaveTimeout returns how long a leave notice may wait for room
func (c *ChatConfig) LeaveTimeout() time.Duration {
	return time.Duration(c.LeaveTimeoutMs) * time.Millisecond
}

// ReadyPollInterval returns the ready flag polling interval
func (c *IPCConfig) ReadyPollInterval() time.Duration {
	return time.Duration(c.ReadyPollIntervalMs) * time.Millisecond
}

// ReadyTimeout returns how long a joiner waits for the initiator
func (c *IPCConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutMs) * time.Millisecond
}

// FileMode parses Perm as an octal permission.
func (c *IPCConfig) FileMode() (os.FileMode, error) {
	v, err := strconv.ParseUint(c.Perm, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("parse perm %q: %w", c.Perm, err)
	}
	return os.FileMode(v), nil
}

// MaxSizeBytes returns the rotation threshold of the history file
func (c *HistoryConfig) MaxSizeBytes() int64 {
	return int64(c.MaxSizeKB) * 1024
}

// LogDir returns the directory for diagnostic logs
func (c *LoggingConfig) LogDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Chat defaults
	viper.SetDefault("chat.name", defaults.Chat.Name)
	viper.SetDefault("chat.backoff_ms", defaults.Chat.BackoffMs)
	viper.SetDefault("chat.max_backoff_ms", defaults.Chat.MaxBackoffMs)
	viper.SetDefault("chat.poll_interval_ms", defaults.Chat.PollIntervalMs)
	viper.SetDefault("chat.leave_timeout_ms", defaults.Chat.LeaveTimeoutMs)

	// IPC defaults
	viper.SetDefault("ipc.shm_key", defaults.IPC.ShmKey)
	viper.SetDefault("ipc.sem_key", defaults.IPC.SemKey)
	viper.SetDefault("ipc.perm", defaults.IPC.Perm)
	viper.SetDefault("ipc.ready_poll_interval_ms", defaults.IPC.ReadyPollIntervalMs)
	viper.SetDefault("ipc.ready_timeout_ms", defaults.IPC.ReadyTimeoutMs)
	viper.SetDefault("ipc.reclaim_stale", defaults.IPC.ReclaimStale)

	// History defaults
	viper.SetDefault("history.enabled", defaults.History.Enabled)
	viper.SetDefault("history.file", defaults.History.File)
	viper.SetDefault("history.max_size_kb", defaults.History.MaxSizeKB)

	// UI defaults
	viper.SetDefault("ui.color", defaults.UI.Color)
	viper.SetDefault("ui.banner", defaults.UI.Banner)
	viper.SetDefault("ui.timestamps", defaults.UI.Timestamps)
	viper.SetDefault("ui.theme", defaults.UI.Theme)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "oschat")
	}
	// Fall back to ~/.config/oschat
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oschat"
	}
	return filepath.Join(home, ".config", "oschat")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
