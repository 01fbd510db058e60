package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Connection to the playback daemon
	Daemon DaemonConfig `yaml:"daemon"`

	// Bridge behaviour
	Bridge BridgeConfig `yaml:"bridge"`

	// Logging settings
	Log LogConfig `yaml:"log"`
}

// DaemonConfig describes how to reach (and optionally launch) the playback daemon
type DaemonConfig struct {
	Address string   `yaml:"address"`
	Path    string   `yaml:"path,omitempty"` // Binary to launch when --launch is given
	Args    []string `yaml:"args,omitempty"`
}

// BridgeConfig tunes the command dispatcher and state synchronizer
type BridgeConfig struct {
	DialTimeoutMS     int `yaml:"dial_timeout_ms"`
	RefreshIntervalMS int `yaml:"refresh_interval_ms"`

	// Maximum number of songs sent with a single queue replacement.
	// Negative means unlimited, zero disables queue replacement entirely.
	QueueSendLimit int `yaml:"queue_send_limit"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Address: "localhost:3333",
		},
		Bridge: BridgeConfig{
			DialTimeoutMS:     1000,
			RefreshIntervalMS: 100,
			QueueSendLimit:    -1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DialTimeout returns the daemon dial timeout as a duration
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Bridge.DialTimeoutMS) * time.Millisecond
}

// RefreshInterval returns the state refresh cadence as a duration
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Bridge.RefreshIntervalMS) * time.Millisecond
}
