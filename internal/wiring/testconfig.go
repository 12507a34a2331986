package wiring

import (
	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/config"
	"github.com/alekspetrov/autonomy/internal/webhooks"
)

// MinimalConfig returns an in-memory config with rollback off. It is the
// baseline for wiring tests.
func MinimalConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Backlog = &config.BacklogConfig{Driver: config.BacklogDriverMemory}
	cfg.Autopilot.Rollback = autopilot.DefaultRollbackConfig()
	cfg.Logging = nil
	return cfg
}

// WithSQLite points the backlog at a SQLite file.
func WithSQLite(cfg *config.Config, driver, path string) *config.Config {
	cfg.Backlog = &config.BacklogConfig{Driver: driver, Path: path}
	return cfg
}

// WithRollback enables the rollback policy on a fast schedule.
func WithRollback(cfg *config.Config, minDecisions int) *config.Config {
	cfg.Autopilot.Rollback = autopilot.RollbackConfig{
		Enabled:      true,
		Schedule:     "@every 1s",
		MinDecisions: minDecisions,
	}
	return cfg
}

// WithAutonomyDisabled starts with the feature flag off.
func WithAutonomyDisabled(cfg *config.Config) *config.Config {
	cfg.Autopilot.Enabled = false
	return cfg
}

// WithWebhook enables the webhook sink with one endpoint for events.
func WithWebhook(cfg *config.Config, url string, events ...string) *config.Config {
	cfg.Webhooks = &webhooks.Config{
		Enabled: true,
		Endpoints: []*webhooks.EndpointConfig{
			{ID: "test", Name: "test", URL: url, Events: events, Enabled: true},
		},
	}
	return cfg
}
