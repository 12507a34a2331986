package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/gateway"
	"github.com/alekspetrov/autonomy/internal/webhooks"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	t.Run("Autopilot", func(t *testing.T) {
		ap := config.Autopilot
		if ap == nil {
			t.Fatal("Autopilot config is nil")
		}
		if !ap.Enabled {
			t.Error("Autopilot.Enabled should default to true")
		}
		if got := ap.Limits(); got != autopilot.DefaultLimits() {
			t.Errorf("Limits() = %+v, want %+v", got, autopilot.DefaultLimits())
		}
		if ap.Workers != 2 {
			t.Errorf("Workers = %d, want 2", ap.Workers)
		}
		if ap.Health.MaxSamples != 1000 {
			t.Errorf("Health.MaxSamples = %d, want 1000", ap.Health.MaxSamples)
		}
		if ap.Rollback.Enabled {
			t.Error("Rollback should be disabled by default")
		}
		if ap.Rollback.Schedule != "@every 30s" {
			t.Errorf("Rollback.Schedule = %q, want @every 30s", ap.Rollback.Schedule)
		}
	})

	t.Run("Backlog", func(t *testing.T) {
		if config.Backlog == nil {
			t.Fatal("Backlog config is nil")
		}
		if config.Backlog.Driver != backlog.DriverSQLite {
			t.Errorf("Backlog.Driver = %q, want %q", config.Backlog.Driver, backlog.DriverSQLite)
		}
		if !strings.HasSuffix(config.Backlog.Path, filepath.Join(".autonomy", "data", "backlog.db")) {
			t.Errorf("Backlog.Path = %q", config.Backlog.Path)
		}
	})

	t.Run("Gateway", func(t *testing.T) {
		if config.Gateway == nil {
			t.Fatal("Gateway config is nil")
		}
		if config.Gateway.Host != "127.0.0.1" {
			t.Errorf("Gateway.Host = %q, want %q", config.Gateway.Host, "127.0.0.1")
		}
		if config.Gateway.Port != 9191 {
			t.Errorf("Gateway.Port = %d, want %d", config.Gateway.Port, 9191)
		}
	})

	t.Run("Auth", func(t *testing.T) {
		if config.Auth == nil || config.Auth.Type != gateway.AuthTypeLocal {
			t.Errorf("Auth = %+v, want local", config.Auth)
		}
	})

	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		config, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if config.Gateway.Port != 9191 {
			t.Errorf("Gateway.Port = %d, want default", config.Gateway.Port)
		}
	})

	t.Run("null sections fall back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("autopilot: null\nbacklog: null\ngateway: null\n"), 0644); err != nil {
			t.Fatal(err)
		}
		config, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if config.Autopilot == nil || config.Backlog == nil || config.Gateway == nil {
			t.Fatalf("sections not restored: %+v", config)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("overrides and durations", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
autopilot:
  enabled: false
  max_depth: 2
  max_auto_tasks: 8
  attempt_timeout: 3s
  health:
    window: 10m
    degraded_error_rate: 0.05
  rollback:
    enabled: true
    schedule: "*/5 * * * *"
backlog:
  driver: memory
gateway:
  port: 8088
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		config, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		ap := config.Autopilot
		if ap.Enabled {
			t.Error("Enabled should be false")
		}
		if ap.MaxDepth != 2 || ap.MaxAutoTasks != 8 {
			t.Errorf("limits = %d/%d, want 2/8", ap.MaxDepth, ap.MaxAutoTasks)
		}
		if ap.AttemptTimeout != 3*time.Second {
			t.Errorf("AttemptTimeout = %v, want 3s", ap.AttemptTimeout)
		}
		if ap.Health.Window != 10*time.Minute {
			t.Errorf("Health.Window = %v, want 10m", ap.Health.Window)
		}
		if ap.Health.DegradedErrorRate != 0.05 {
			t.Errorf("DegradedErrorRate = %v, want 0.05", ap.Health.DegradedErrorRate)
		}
		if ap.Health.UnhealthyErrorRate != 0.25 {
			t.Errorf("UnhealthyErrorRate = %v, want default 0.25", ap.Health.UnhealthyErrorRate)
		}
		if ap.Workers != 2 {
			t.Errorf("Workers = %d, want default 2", ap.Workers)
		}
		if !ap.Rollback.Enabled || ap.Rollback.Schedule != "*/5 * * * *" {
			t.Errorf("Rollback = %+v", ap.Rollback)
		}
		if config.Backlog.Driver != BacklogDriverMemory {
			t.Errorf("Backlog.Driver = %q, want memory", config.Backlog.Driver)
		}
		if config.Gateway.Port != 8088 || config.Gateway.Host != "127.0.0.1" {
			t.Errorf("Gateway = %+v", config.Gateway)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("environment expansion", func(t *testing.T) {
		t.Setenv("AUTONOMY_TEST_TOKEN", "tok-123")
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "auth:\n  type: api-token\n  token: ${AUTONOMY_TEST_TOKEN}\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		config, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if config.Auth.Token != "tok-123" {
			t.Errorf("Auth.Token = %q, want tok-123", config.Auth.Token)
		}
	})

	t.Run("tilde paths", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("backlog:\n  path: ~/custom/backlog.db\n"), 0644); err != nil {
			t.Fatal(err)
		}
		config, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if strings.HasPrefix(config.Backlog.Path, "~") {
			t.Errorf("Backlog.Path = %q, want ~ expanded", config.Backlog.Path)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("autopilot: [unclosed"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := DefaultConfig()
	config.Autopilot.MaxAutoTasks = 7
	config.Autopilot.AttemptTimeout = 45 * time.Second
	config.Gateway.Port = 7000

	if err := Save(config, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Autopilot.MaxAutoTasks != 7 {
		t.Errorf("MaxAutoTasks = %d, want 7", loaded.Autopilot.MaxAutoTasks)
	}
	if loaded.Autopilot.AttemptTimeout != 45*time.Second {
		t.Errorf("AttemptTimeout = %v, want 45s", loaded.Autopilot.AttemptTimeout)
	}
	if loaded.Gateway.Port != 7000 {
		t.Errorf("Gateway.Port = %d, want 7000", loaded.Gateway.Port)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	if !strings.HasSuffix(DefaultConfigPath(), filepath.Join(".autonomy", "config.yaml")) {
		t.Errorf("DefaultConfigPath = %q", DefaultConfigPath())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"nil gateway", func(c *Config) { c.Gateway = nil }, "gateway configuration is required"},
		{"port zero", func(c *Config) { c.Gateway.Port = 0 }, "invalid gateway port"},
		{"port too high", func(c *Config) { c.Gateway.Port = 70000 }, "invalid gateway port"},
		{"api token missing", func(c *Config) { c.Auth.Type = gateway.AuthTypeAPIToken }, "API token is required"},
		{"api token set", func(c *Config) { c.Auth = &gateway.AuthConfig{Type: gateway.AuthTypeAPIToken, Token: "x"} }, ""},
		{"unknown auth", func(c *Config) { c.Auth.Type = "oauth" }, "unknown auth type"},
		{"unknown driver", func(c *Config) { c.Backlog.Driver = "postgres" }, "unknown backlog driver"},
		{"sqlite without path", func(c *Config) { c.Backlog.Path = "" }, "backlog path is required"},
		{"memory without path", func(c *Config) { c.Backlog = &BacklogConfig{Driver: BacklogDriverMemory} }, ""},
		{"negative depth", func(c *Config) { c.Autopilot.MaxDepth = -1 }, "must not be negative"},
		{"negative workers", func(c *Config) { c.Autopilot.Workers = -2 }, "must not be negative"},
		{"rate above one", func(c *Config) { c.Autopilot.Health.UnhealthyErrorRate = 1.5 }, "within [0, 1]"},
		{"thresholds inverted", func(c *Config) {
			c.Autopilot.Health.DegradedErrorRate = 0.5
			c.Autopilot.Health.UnhealthyErrorRate = 0.2
		}, "exceeds unhealthy_error_rate"},
		{"bad rollback schedule", func(c *Config) {
			c.Autopilot.Rollback.Enabled = true
			c.Autopilot.Rollback.Schedule = "every now and then"
		}, "rollback schedule"},
		{"bad schedule ignored when disabled", func(c *Config) {
			c.Autopilot.Rollback.Schedule = "every now and then"
		}, ""},
		{"webhook bad url", func(c *Config) {
			c.Webhooks.Enabled = true
			c.Webhooks.Endpoints = []*webhooks.EndpointConfig{{Name: "ops", URL: "not a url"}}
		}, "invalid url"},
		{"nil webhooks", func(c *Config) { c.Webhooks = nil }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.errSubstr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.errSubstr)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.errSubstr) {
				t.Errorf("Validate() = %v, want it to contain %q", err, tt.errSubstr)
			}
		})
	}
}
