// Package runtime wires the refresh-and-liveness core together: one dirty
// form registry, one event hub, one recorder, one scheduler, and the
// current liveness monitor. A monitor instance covers one login; Login
// replaces it with a fresh one so the grace window restarts cleanly.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yug-minds/livecore/internal/clock"
	"github.com/yug-minds/livecore/internal/forms"
	"github.com/yug-minds/livecore/internal/identity"
	"github.com/yug-minds/livecore/internal/lifecycle"
	"github.com/yug-minds/livecore/internal/liveness"
	"github.com/yug-minds/livecore/internal/marker"
	"github.com/yug-minds/livecore/internal/models"
	"github.com/yug-minds/livecore/internal/recorder"
	"github.com/yug-minds/livecore/internal/refresh"
	"github.com/yug-minds/livecore/internal/store"
)

// Config assembles the collaborators and tuning for a Runtime.
type Config struct {
	Provider identity.Provider
	Activity identity.ActivitySource
	Marker   marker.Store
	Store    store.Store
	Cache    refresh.Invalidator

	RecorderCapacity int

	GracePeriod       time.Duration
	CheckInterval     time.Duration
	Debounce          time.Duration
	MinSpacing        time.Duration
	InactivityTimeout time.Duration
	InactivityWarning time.Duration

	OnInvalid func(reason models.InvalidReason)
	OnWarning func(idle time.Duration)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Runtime is the composition root for one dashboard client process.
type Runtime struct {
	cfg      Config
	clientID string

	forms *forms.Registry
	hub   *lifecycle.Hub
	rec   *recorder.Recorder
	sched *refresh.Scheduler

	mu      sync.Mutex
	monitor *liveness.Monitor
	ctx     context.Context
	started bool
}

// New builds a runtime from cfg. Nil Store disables persistence; nil
// Marker falls back to an in-memory store.
func New(cfg Config) *Runtime {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Marker == nil {
		cfg.Marker = marker.NewMemoryStore()
	}

	reg := forms.NewRegistry()
	hub := lifecycle.NewHub()

	var sink recorder.Sink
	if cfg.Store != nil {
		sink = cfg.Store
	}
	rec := recorder.New(cfg.RecorderCapacity, sink, cfg.Logger)

	r := &Runtime{
		cfg:      cfg,
		clientID: uuid.NewString(),
		forms:    reg,
		hub:      hub,
		rec:      rec,
		sched:    refresh.NewScheduler(reg, cfg.Cache, rec, hub, cfg.Clock, cfg.Logger),
	}
	return r
}

// ClientID identifies this process in persisted session events.
func (r *Runtime) ClientID() string { return r.clientID }

// Forms returns the shared dirty-form registry.
func (r *Runtime) Forms() *forms.Registry { return r.forms }

// Hub returns the lifecycle event hub the shell emits into.
func (r *Runtime) Hub() *lifecycle.Hub { return r.hub }

// Recorder returns the refresh decision log.
func (r *Runtime) Recorder() *recorder.Recorder { return r.rec }

// Scheduler returns the refresh scheduler for consumer registration.
func (r *Runtime) Scheduler() *refresh.Scheduler { return r.sched }

// Monitor returns the current liveness monitor.
func (r *Runtime) Monitor() *liveness.Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitor
}

// Start creates the initial monitor and begins monitoring. The context
// bounds the runtime's lifetime.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.ctx = ctx
	m := r.newMonitor()
	r.monitor = m
	r.mu.Unlock()

	m.Start(ctx, r.hub)
}

// Stop tears down the monitor. Registered consumers are closed by their
// owning views, not here.
func (r *Runtime) Stop() {
	r.mu.Lock()
	m := r.monitor
	r.mu.Unlock()
	if m != nil {
		m.Stop()
	}
}

// Login records the fresh-login marker and replaces the monitor so the
// session starts over in a clean grace window.
func (r *Runtime) Login(ctx context.Context) error {
	if err := r.cfg.Marker.Mark(ctx, r.cfg.Clock.Now()); err != nil {
		return err
	}

	r.mu.Lock()
	old := r.monitor
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	m := r.newMonitor()
	r.monitor = m
	runCtx := r.ctx
	r.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	m.Start(runCtx, r.hub)
	r.cfg.Logger.Info("fresh login marked, monitor restarted", "client_id", r.clientID)
	return nil
}

// Logout invalidates the current session at the user's request.
func (r *Runtime) Logout() {
	if m := r.Monitor(); m != nil {
		m.Logout()
	}
}

// Supersede forwards an external supersession signal to the monitor.
func (r *Runtime) Supersede() {
	if m := r.Monitor(); m != nil {
		m.Supersede()
	}
}

func (r *Runtime) newMonitor() *liveness.Monitor {
	var events liveness.EventSink
	if r.cfg.Store != nil {
		events = r.cfg.Store
	}
	return liveness.New(liveness.Options{
		Provider:          r.cfg.Provider,
		Activity:          r.cfg.Activity,
		Marker:            r.cfg.Marker,
		GracePeriod:       r.cfg.GracePeriod,
		CheckInterval:     r.cfg.CheckInterval,
		Debounce:          r.cfg.Debounce,
		MinSpacing:        r.cfg.MinSpacing,
		InactivityTimeout: r.cfg.InactivityTimeout,
		InactivityWarning: r.cfg.InactivityWarning,
		OnInvalid:         r.cfg.OnInvalid,
		OnWarning:         r.cfg.OnWarning,
		ClientID:          r.clientID,
		Events:            events,
		Clock:             r.cfg.Clock,
		Logger:            r.cfg.Logger,
	})
}
