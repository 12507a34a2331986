// Package wiring builds the autopilot runtime from configuration. It is the
// single place where cmd/autonomy's serve path and the tests assemble the
// backlog store, flag store, telemetry fan-out, gate, scheduler, dispatcher,
// rollback policy, webhook sink and gateway, so the two cannot drift apart.
package wiring

import (
	"context"
	"errors"
	"fmt"

	"github.com/alekspetrov/autonomy/internal/autopilot"
	"github.com/alekspetrov/autonomy/internal/backlog"
	"github.com/alekspetrov/autonomy/internal/config"
	"github.com/alekspetrov/autonomy/internal/flags"
	"github.com/alekspetrov/autonomy/internal/followup"
	"github.com/alekspetrov/autonomy/internal/gateway"
	"github.com/alekspetrov/autonomy/internal/telemetry"
	"github.com/alekspetrov/autonomy/internal/webhooks"
)

// hubHistory is how many recent events the stream keeps for new watchers.
const hubHistory = 500

// Store is a backlog store that also lists sessions.
type Store interface {
	backlog.Store
	ListSessions(ctx context.Context) ([]string, error)
}

// Runtime holds every component of a running autopilot.
type Runtime struct {
	Config     *config.Config
	Store      Store
	Flags      *flags.Store
	Monitor    *autopilot.HealthMonitor
	Hub        *telemetry.Hub
	Events     telemetry.Recorder
	Gate       *autopilot.Gate
	Scheduler  *autopilot.Scheduler
	Dispatcher *autopilot.Dispatcher
	Rollback   *autopilot.RollbackPolicy
	FollowUps  *followup.Registry
	Webhooks   *webhooks.Manager // nil unless webhooks are enabled
	Gateway    *gateway.Server

	closeStore func() error
}

// Option adjusts a Runtime before it is assembled.
type Option func(*options)

type options struct {
	version string
	store   Store
	extra   []telemetry.Recorder
}

// WithVersion sets the version the gateway reports.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithStore uses store instead of opening the configured backlog.
func WithStore(store Store) Option {
	return func(o *options) { o.store = store }
}

// WithRecorder adds a telemetry sink next to the built-in ones.
func WithRecorder(r telemetry.Recorder) Option {
	return func(o *options) { o.extra = append(o.extra, r) }
}

// OpenStore opens the backlog store named by cfg. The returned close func is
// never nil.
func OpenStore(cfg *config.BacklogConfig) (Store, func() error, error) {
	if cfg == nil || cfg.Driver == config.BacklogDriverMemory {
		return backlog.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := backlog.OpenSQLite(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open backlog store: %w", err)
	}
	return store, store.Close, nil
}

// Build validates cfg and assembles a Runtime. Nothing runs until Run.
func Build(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{version: "dev"}
	for _, opt := range opts {
		opt(o)
	}

	rt := &Runtime{Config: cfg, closeStore: func() error { return nil }}

	if o.store != nil {
		rt.Store = o.store
	} else {
		store, closeFn, err := OpenStore(cfg.Backlog)
		if err != nil {
			return nil, err
		}
		rt.Store, rt.closeStore = store, closeFn
	}

	ap := cfg.Autopilot
	if ap == nil {
		ap = config.DefaultConfig().Autopilot
	}
	rt.Flags = flags.New(ap.Enabled)

	rt.Monitor = autopilot.NewHealthMonitor(rt.Flags, ap.Health)
	rt.Hub = telemetry.NewHub(hubHistory)

	sinks := append([]telemetry.Recorder{rt.Monitor, rt.Hub, telemetry.NewLogRecorder(nil)}, o.extra...)
	if cfg.Webhooks != nil && cfg.Webhooks.Enabled {
		rt.Webhooks = webhooks.NewManager(cfg.Webhooks, nil)
		sinks = append(sinks, rt.Webhooks)
	}
	rt.Events = telemetry.Safe(telemetry.Multi(sinks...))

	rt.Gate = autopilot.NewGate(rt.Flags, rt.Store, rt.Events, autopilot.WithLimits(ap.Limits()))
	rt.Scheduler = autopilot.NewScheduler(rt.Gate)
	rt.Dispatcher = autopilot.NewDispatcher(rt.Scheduler,
		autopilot.WithWorkers(ap.Workers),
		autopilot.WithQueueSize(ap.QueueSize),
		autopilot.WithAttemptTimeout(ap.AttemptTimeout),
		autopilot.WithDispatcherEvents(rt.Events),
	)
	rt.Rollback = autopilot.NewRollbackPolicy(rt.Monitor, rt.Flags, rt.Events, ap.Rollback)
	rt.FollowUps = followup.DefaultRegistry()

	rt.Gateway = gateway.NewServer(cfg.Gateway,
		gateway.WithAuthConfig(cfg.Auth),
		gateway.WithVersion(o.version),
		gateway.WithDispatcher(rt.Dispatcher),
		gateway.WithBacklog(rt.Store),
		gateway.WithHealth(rt.Monitor),
		gateway.WithFlags(rt.Flags),
		gateway.WithEvents(rt.Hub),
		gateway.WithRecorder(rt.Events),
		gateway.WithFollowUps(rt.FollowUps),
	)

	return rt, nil
}

// Run starts the dispatcher, rollback policy and webhook sink, then serves
// the gateway until ctx is cancelled. Queued requests drain before Run
// returns.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.Webhooks != nil {
		rt.Webhooks.Start(context.WithoutCancel(ctx))
		defer rt.Webhooks.Stop()
	}

	rt.Dispatcher.Start(ctx)
	defer rt.Dispatcher.Stop()

	if err := rt.Rollback.Start(ctx); err != nil {
		return err
	}
	defer rt.Rollback.Stop()

	return rt.Gateway.Start(ctx)
}

// Close stops background work and releases the backlog store.
func (rt *Runtime) Close() error {
	var errs []error
	rt.Dispatcher.Stop()
	rt.Rollback.Stop()
	if rt.Webhooks != nil {
		rt.Webhooks.Stop()
	}
	if err := rt.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("close backlog store: %w", err))
	}
	return errors.Join(errs...)
}
