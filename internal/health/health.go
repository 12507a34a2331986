// Package health runs preflight checks over a configuration: can the backlog
// store open, is the gateway address usable, are auth and rollback sane.
// It backs the doctor command and is unrelated to the runtime health window
// kept by autopilot.HealthMonitor.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/robfig/cron/v3"

	"github.com/alekspetrov/autonomy/internal/config"
	"github.com/alekspetrov/autonomy/internal/gateway"
)

// Status represents feature or check status
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusDisabled
)

// Check represents a health check result
type Check struct {
	Name    string
	Status  Status
	Message string
	Fix     string
}

// FeatureStatus represents a feature with its availability
type FeatureStatus struct {
	Name    string
	Enabled bool
	Status  Status
	Note    string
}

// HealthReport contains all health check results
type HealthReport struct {
	Config   []Check
	Features []FeatureStatus
}

// StoreOpener opens the configured backlog store and returns a probe and a
// close func. The wiring package supplies the real one.
type StoreOpener func(cfg *config.BacklogConfig) (probe func(ctx context.Context) error, closeFn func() error, err error)

// GatewayProbe reports whether a gateway answers at addr.
type GatewayProbe func(ctx context.Context, addr string) error

// Checker runs the preflight checks.
type Checker struct {
	OpenStore StoreOpener
	Probe     GatewayProbe
	Timeout   time.Duration
}

// RunChecks performs all health checks based on config
func (c *Checker) RunChecks(ctx context.Context, cfg *config.Config) *HealthReport {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := &HealthReport{
		Config: []Check{
			checkValid(cfg),
			c.checkBacklog(ctx, cfg),
			c.checkGateway(ctx, cfg),
			checkAuth(cfg),
			checkRollback(cfg),
		},
		Features: checkFeatures(cfg),
	}
	return report
}

func checkValid(cfg *config.Config) Check {
	if err := cfg.Validate(); err != nil {
		return Check{Name: "config", Status: StatusError, Message: err.Error(), Fix: "run 'autonomy config validate' and correct the file"}
	}
	return Check{Name: "config", Status: StatusOK, Message: "valid"}
}

func (c *Checker) checkBacklog(ctx context.Context, cfg *config.Config) Check {
	check := Check{Name: "backlog store"}
	if cfg.Backlog == nil || cfg.Backlog.Driver == config.BacklogDriverMemory {
		check.Status = StatusWarning
		check.Message = "in-memory; backlogs are lost on restart"
		check.Fix = "set backlog.driver to sqlite"
		return check
	}
	if c.OpenStore == nil {
		check.Status = StatusDisabled
		check.Message = "not checked"
		return check
	}

	probe, closeFn, err := c.OpenStore(cfg.Backlog)
	if err != nil {
		check.Status = StatusError
		check.Message = err.Error()
		check.Fix = "check backlog.path is writable"
		return check
	}
	defer func() { _ = closeFn() }()

	if err := probe(ctx); err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("store opened but query failed: %v", err)
		check.Fix = "remove or repair " + cfg.Backlog.Path
		return check
	}
	check.Status = StatusOK
	check.Message = fmt.Sprintf("%s at %s", cfg.Backlog.Driver, cfg.Backlog.Path)
	return check
}

func (c *Checker) checkGateway(ctx context.Context, cfg *config.Config) Check {
	check := Check{Name: "gateway"}
	if cfg.Gateway == nil {
		check.Status = StatusError
		check.Message = "not configured"
		return check
	}
	addr := cfg.Gateway.Addr()

	ln, err := net.Listen("tcp", addr)
	if err == nil {
		_ = ln.Close()
		check.Status = StatusOK
		check.Message = addr + " available"
		return check
	}

	if c.Probe != nil && c.Probe(ctx, addr) == nil {
		check.Status = StatusOK
		check.Message = "autonomy already serving on " + addr
		return check
	}
	check.Status = StatusError
	check.Message = fmt.Sprintf("%s unavailable: %v", addr, errors.Unwrap(err))
	check.Fix = "choose another gateway.port or stop the process holding it"
	return check
}

func checkAuth(cfg *config.Config) Check {
	check := Check{Name: "auth"}
	if cfg.Auth == nil {
		check.Status = StatusWarning
		check.Message = "no auth; API open to anyone who can reach the gateway"
		check.Fix = "set auth.type to local or api-token"
		return check
	}
	if cfg.Auth.Type == gateway.AuthTypeLocal && cfg.Gateway != nil && !isLoopback(cfg.Gateway.Host) {
		check.Status = StatusWarning
		check.Message = fmt.Sprintf("local auth while binding %s; remote clients will be rejected", cfg.Gateway.Host)
		check.Fix = "use api-token auth for remote access"
		return check
	}
	check.Status = StatusOK
	check.Message = string(cfg.Auth.Type)
	return check
}

func checkRollback(cfg *config.Config) Check {
	check := Check{Name: "rollback"}
	if cfg.Autopilot == nil || !cfg.Autopilot.Rollback.Enabled {
		check.Status = StatusDisabled
		check.Message = "disabled"
		return check
	}
	sched, err := cron.ParseStandard(cfg.Autopilot.Rollback.Schedule)
	if err != nil {
		check.Status = StatusError
		check.Message = err.Error()
		check.Fix = "use a cron expression or @every duration"
		return check
	}
	check.Status = StatusOK
	check.Message = "next evaluation " + sched.Next(time.Now()).Format(time.Kitchen)
	return check
}

func checkFeatures(cfg *config.Config) []FeatureStatus {
	ap := cfg.Autopilot
	if ap == nil {
		ap = config.DefaultConfig().Autopilot
	}

	features := []FeatureStatus{
		{Name: "autonomy", Enabled: ap.Enabled, Status: boolToStatus(ap.Enabled)},
		{Name: "rollback", Enabled: ap.Rollback.Enabled, Status: boolToStatus(ap.Rollback.Enabled)},
	}

	persistent := cfg.Backlog != nil && cfg.Backlog.Driver != config.BacklogDriverMemory
	backlogFeature := FeatureStatus{Name: "persistence", Enabled: persistent, Status: boolToStatus(persistent)}
	if persistent {
		backlogFeature.Note = cfg.Backlog.Driver
	}
	features = append(features, backlogFeature)

	tokenAuth := cfg.Auth != nil && cfg.Auth.Type == gateway.AuthTypeAPIToken
	features = append(features, FeatureStatus{Name: "api-token", Enabled: tokenAuth, Status: boolToStatus(tokenAuth)})

	hooks := cfg.Webhooks != nil && cfg.Webhooks.Enabled
	hookFeature := FeatureStatus{Name: "webhooks", Enabled: hooks, Status: boolToStatus(hooks)}
	if hooks {
		hookFeature.Note = fmt.Sprintf("%d endpoint(s)", len(cfg.Webhooks.Endpoints))
		if len(cfg.Webhooks.Endpoints) == 0 {
			hookFeature.Status = StatusWarning
			hookFeature.Note = "enabled with no endpoints"
		}
	}
	return append(features, hookFeature)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func boolToStatus(enabled bool) Status {
	if enabled {
		return StatusOK
	}
	return StatusDisabled
}

// Summary counts errors and warnings across all checks.
func (r *HealthReport) Summary() (errors, warnings int) {
	for _, c := range r.Config {
		switch c.Status {
		case StatusError:
			errors++
		case StatusWarning:
			warnings++
		}
	}
	return errors, warnings
}

// ReadyToStart reports whether serve would come up with this config.
func (r *HealthReport) ReadyToStart() bool {
	errs, _ := r.Summary()
	return errs == 0
}

// Symbol returns the symbol for a status
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "○"
	case StatusError:
		return "✗"
	case StatusDisabled:
		return "·"
	default:
		return "?"
	}
}

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

var statusColors = map[Status]lipgloss.Color{
	StatusOK:       "#7ec699",
	StatusWarning:  "#d4a054",
	StatusError:    "#d48a8a",
	StatusDisabled: "#8b949e",
}

// ColorSymbol returns the symbol styled for the terminal.
func (s Status) ColorSymbol() string {
	color, ok := statusColors[s]
	if !ok {
		return s.Symbol()
	}
	return lipgloss.NewStyle().Foreground(color).Render(s.Symbol())
}
