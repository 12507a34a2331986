// Package config loads and validates the autonomy YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/gateway"
	"github.com/alekspetrov/autonomy/internal/logging"
	"github.com/alekspetrov/autonomy/internal/webhooks"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// BacklogDriverMemory keeps backlogs in process memory only.
const BacklogDriverMemory = "memory"

// Config represents the main configuration
type Config struct {
	Version   string              `yaml:"version"`
	Autopilot *AutopilotConfig    `yaml:"autopilot"`
	Backlog   *BacklogConfig      `yaml:"backlog"`
	Gateway   *gateway.Config     `yaml:"gateway"`
	Auth      *gateway.AuthConfig `yaml:"auth"`
	Logging   *logging.Config     `yaml:"logging"`
	Webhooks  *webhooks.Config    `yaml:"webhooks"`
}

// AutopilotConfig holds autonomous continuation settings.
type AutopilotConfig struct {
	Enabled        bool                     `yaml:"enabled"`
	MaxDepth       int                      `yaml:"max_depth"`
	MaxAutoTasks   int                      `yaml:"max_auto_tasks"`
	Workers        int                      `yaml:"workers"`
	QueueSize      int                      `yaml:"queue_size"`
	AttemptTimeout time.Duration            `yaml:"attempt_timeout"`
	Health         autopilot.HealthConfig   `yaml:"health"`
	Rollback       autopilot.RollbackConfig `yaml:"rollback"`
}

// Limits returns the gate limits.
func (c *AutopilotConfig) Limits() autopilot.Limits {
	return autopilot.Limits{MaxDepth: c.MaxDepth, MaxAutoTasks: c.MaxAutoTasks}
}

// BacklogConfig selects the backlog store.
type BacklogConfig struct {
	Driver string `yaml:"driver"` // sqlite, sqlite3 or memory
	Path   string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Version: "1.0",
		Autopilot: &AutopilotConfig{
			Enabled:        true,
			MaxDepth:       autopilot.DefaultMaxDepth,
			MaxAutoTasks:   autopilot.DefaultMaxAutoTasks,
			Workers:        autopilot.DefaultWorkers,
			QueueSize:      autopilot.DefaultQueueSize,
			AttemptTimeout: autopilot.DefaultAttemptTimeout,
			Health:         autopilot.DefaultHealthConfig(),
			Rollback:       autopilot.DefaultRollbackConfig(),
		},
		Backlog: &BacklogConfig{
			Driver: backlog.DriverSQLite,
			Path:   filepath.Join(homeDir, ".autonomy", "data", "backlog.db"),
		},
		Gateway: &gateway.Config{
			Host: "127.0.0.1",
			Port: 9191,
		},
		Auth: &gateway.AuthConfig{
			Type: gateway.AuthTypeLocal,
		},
		Logging:  logging.DefaultConfig(),
		Webhooks: webhooks.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil // Return defaults if no config file
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.fillSections()
	config.Backlog.Path = expandPath(config.Backlog.Path)
	if config.Logging != nil {
		config.Logging.Output = expandPath(config.Logging.Output)
	}

	return config, nil
}

// fillSections restores default sections that the file set to null.
func (c *Config) fillSections() {
	def := DefaultConfig()
	if c.Autopilot == nil {
		c.Autopilot = def.Autopilot
	}
	if c.Backlog == nil {
		c.Backlog = def.Backlog
	}
	if c.Gateway == nil {
		c.Gateway = def.Gateway
	}
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".autonomy", "config.yaml")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Gateway == nil {
		return fmt.Errorf("%w: gateway configuration is required", ErrInvalid)
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("%w: invalid gateway port: %d", ErrInvalid, c.Gateway.Port)
	}
	if c.Auth != nil {
		switch c.Auth.Type {
		case gateway.AuthTypeLocal:
		case gateway.AuthTypeAPIToken:
			if c.Auth.Token == "" {
				return fmt.Errorf("%w: API token is required when auth type is api-token", ErrInvalid)
			}
		default:
			return fmt.Errorf("%w: unknown auth type %q", ErrInvalid, c.Auth.Type)
		}
	}
	if c.Backlog != nil {
		switch c.Backlog.Driver {
		case backlog.DriverSQLite, backlog.DriverSQLite3:
			if c.Backlog.Path == "" {
				return fmt.Errorf("%w: backlog path is required for driver %s", ErrInvalid, c.Backlog.Driver)
			}
		case BacklogDriverMemory:
		default:
			return fmt.Errorf("%w: unknown backlog driver %q", ErrInvalid, c.Backlog.Driver)
		}
	}
	if c.Autopilot != nil {
		if err := c.Autopilot.validate(); err != nil {
			return err
		}
	}
	if err := c.Webhooks.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *AutopilotConfig) validate() error {
	if c.MaxDepth < 0 || c.MaxAutoTasks < 0 {
		return fmt.Errorf("%w: autopilot limits must not be negative", ErrInvalid)
	}
	if c.Workers < 0 || c.QueueSize < 0 {
		return fmt.Errorf("%w: workers and queue_size must not be negative", ErrInvalid)
	}
	if c.AttemptTimeout < 0 {
		return fmt.Errorf("%w: attempt_timeout must not be negative", ErrInvalid)
	}

	h := c.Health
	if h.DegradedErrorRate < 0 || h.DegradedErrorRate > 1 || h.UnhealthyErrorRate < 0 || h.UnhealthyErrorRate > 1 {
		return fmt.Errorf("%w: health error rates must be within [0, 1]", ErrInvalid)
	}
	if h.DegradedErrorRate > 0 && h.UnhealthyErrorRate > 0 && h.DegradedErrorRate > h.UnhealthyErrorRate {
		return fmt.Errorf("%w: degraded_error_rate %.2f exceeds unhealthy_error_rate %.2f",
			ErrInvalid, h.DegradedErrorRate, h.UnhealthyErrorRate)
	}

	if c.Rollback.Enabled && c.Rollback.Schedule != "" {
		if _, err := cron.ParseStandard(c.Rollback.Schedule); err != nil {
			return fmt.Errorf("%w: rollback schedule %q: %v", ErrInvalid, c.Rollback.Schedule, err)
		}
	}
	return nil
}
