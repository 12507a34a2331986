// Package webhooks delivers autonomy telemetry events to outbound HTTP
// endpoints. Deliveries are HMAC signed, retried with exponential backoff and
// filtered per endpoint by event name.
package webhooks

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultQueueSize = 256
)

// Config is the webhooks section of the autonomy config.
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	QueueSize int               `yaml:"queue_size,omitempty"` // events waiting for delivery; overflow is dropped
	Endpoints []*EndpointConfig `yaml:"endpoints"`
	Defaults  *EndpointDefaults `yaml:"defaults,omitempty"`
}

// EndpointConfig is one delivery target.
type EndpointConfig struct {
	ID      string `yaml:"id,omitempty"` // generated by AddEndpoint when empty
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"` // HMAC key; supports $ENV expansion at load
	Enabled bool   `yaml:"enabled"`

	// Events filters by telemetry event name. "autonomy.error.*" matches a
	// prefix. Empty subscribes to everything.
	Events []string `yaml:"events,omitempty"`

	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Retry   *RetryConfig      `yaml:"retry,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// EndpointDefaults apply to endpoints that leave a field unset.
type EndpointDefaults struct {
	Timeout time.Duration `yaml:"timeout"`
	Retry   *RetryConfig  `yaml:"retry,omitempty"`
}

// RetryConfig is an exponential backoff schedule.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// DefaultConfig returns webhooks switched off.
func DefaultConfig() *Config {
	return &Config{
		QueueSize: defaultQueueSize,
		Endpoints: []*EndpointConfig{},
		Defaults: &EndpointDefaults{
			Timeout: defaultTimeout,
			Retry:   DefaultRetryConfig(),
		},
	}
}

// DefaultRetryConfig returns three attempts starting at one second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// next returns the delay that follows d.
func (r *RetryConfig) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * r.Multiplier)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}

// Validate checks endpoint URLs. Disabled configs are not checked.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	for i, ep := range c.Endpoints {
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook endpoint %d (%s): invalid url %q", i, ep.Name, ep.URL)
		}
	}
	return nil
}

// SubscribesTo reports whether the endpoint wants event.
func (e *EndpointConfig) SubscribesTo(event string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, pattern := range e.Events {
		prefix, wildcard := strings.CutSuffix(pattern, "*")
		if (wildcard && strings.HasPrefix(event, prefix)) || pattern == event {
			return true
		}
	}
	return false
}

// GetTimeout resolves the per-request timeout.
func (e *EndpointConfig) GetTimeout(defaults *EndpointDefaults) time.Duration {
	switch {
	case e.Timeout > 0:
		return e.Timeout
	case defaults != nil && defaults.Timeout > 0:
		return defaults.Timeout
	default:
		return defaultTimeout
	}
}

// GetRetry resolves the retry schedule.
func (e *EndpointConfig) GetRetry(defaults *EndpointDefaults) *RetryConfig {
	switch {
	case e.Retry != nil:
		return e.Retry
	case defaults != nil && defaults.Retry != nil:
		return defaults.Retry
	default:
		return DefaultRetryConfig()
	}
}
