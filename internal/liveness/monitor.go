// Package liveness decides whether the current session is still
// authoritative. A monitor starts in a post-login grace window, then
// periodically confirms the session against the identity provider and the
// activity endpoint, and drives exactly one sign-out when the session is
// invalidated by inactivity or supersession.
package liveness

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yug-minds/livecore/internal/clock"
	"github.com/yug-minds/livecore/internal/identity"
	"github.com/yug-minds/livecore/internal/lifecycle"
	"github.com/yug-minds/livecore/internal/marker"
	"github.com/yug-minds/livecore/internal/metrics"
	"github.com/yug-minds/livecore/internal/models"
)

// Defaults. CheckInterval has a hard floor so misconfiguration cannot turn
// the monitor into a polling hammer.
const (
	MinCheckInterval         = 2 * time.Minute
	DefaultCheckInterval     = 2 * time.Minute
	DefaultDebounce          = time.Second
	DefaultMinSpacing        = 30 * time.Second
	DefaultGracePeriod       = 5 * time.Minute
	DefaultInactivityTimeout = 30 * time.Minute
	DefaultInactivityWarning = 25 * time.Minute
	checkTimeout             = 15 * time.Second
)

// EventSink persists monitor transitions. Optional; failures are logged.
type EventSink interface {
	AppendSessionEvent(ctx context.Context, event *models.SessionEvent) error
}

// Options configures a Monitor.
type Options struct {
	Provider identity.Provider
	Activity identity.ActivitySource
	Marker   marker.Store

	GracePeriod       time.Duration
	CheckInterval     time.Duration
	Debounce          time.Duration
	MinSpacing        time.Duration
	InactivityTimeout time.Duration
	InactivityWarning time.Duration

	// OnAuthRoute reports whether the shell is currently on a login/auth
	// route, where an absent identity is tolerated. Nil means "never".
	OnAuthRoute func() bool

	// OnInvalid fires exactly once, when the session is invalidated. The
	// shell redirects to the login entry point from here.
	OnInvalid func(reason models.InvalidReason)

	// OnWarning fires at most once per session when the inactivity warning
	// threshold is crossed.
	OnWarning func(idle time.Duration)

	// ClientID tags persisted session events. Optional.
	ClientID string

	Events EventSink
	Clock  clock.Clock
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	if o.CheckInterval < MinCheckInterval {
		o.CheckInterval = MinCheckInterval
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.MinSpacing <= 0 {
		o.MinSpacing = DefaultMinSpacing
	}
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = DefaultInactivityTimeout
	}
	if o.InactivityWarning <= 0 || o.InactivityWarning >= o.InactivityTimeout {
		o.InactivityWarning = o.InactivityTimeout * 5 / 6
	}
	if o.Clock == nil {
		o.Clock = clock.System()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Marker == nil {
		o.Marker = marker.NewMemoryStore()
	}
}

// Monitor is the session liveness state machine. One instance covers one
// login; Invalid is terminal and a new login builds a new monitor.
type Monitor struct {
	opts Options

	checkInFlight atomic.Bool
	stopped       atomic.Bool

	mu       sync.Mutex
	state    models.SessionState
	lastRun  map[models.TriggerKind]time.Time
	debounce map[models.TriggerKind]clock.Timer
	tick     clock.Timer

	unsubscribe func()
}

// New creates a monitor. If the marker store holds a fresh-login timestamp
// the monitor starts in the grace phase anchored there; otherwise it starts
// monitoring immediately.
func New(opts Options) *Monitor {
	opts.applyDefaults()

	m := &Monitor{
		opts:     opts,
		lastRun:  make(map[models.TriggerKind]time.Time),
		debounce: make(map[models.TriggerKind]clock.Timer),
	}

	now := opts.Clock.Now()
	st := models.SessionState{Phase: models.PhaseMonitoring, Valid: true}
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	if at, ok, err := opts.Marker.Get(ctx); err == nil && ok && now.Sub(at) <= opts.GracePeriod {
		st.Phase = models.PhaseGrace
		st.LoginAt = at
		st.GraceExpiresAt = at.Add(opts.GracePeriod)
	}
	m.state = st

	metrics.SessionValid.Set(1)
	return m
}

// Start begins the recurring timer and subscribes to the lifecycle source.
// Both are released by Stop or when the context is cancelled.
func (m *Monitor) Start(ctx context.Context, source lifecycle.Source) {
	m.scheduleTick()

	if source != nil {
		m.unsubscribe = source.Subscribe(func(kind models.TriggerKind) {
			switch kind {
			case models.TriggerVisibility, models.TriggerFocus:
				m.debounced(kind)
			case models.TriggerManual:
				m.CheckNow(context.Background())
			}
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			m.Stop()
		}()
	}
}

// Stop cancels the recurring timer, pending debounces, and the lifecycle
// subscription. In-flight checks are allowed to finish; their result is
// discarded if it arrives after invalidation.
func (m *Monitor) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	if m.tick != nil {
		m.tick.Stop()
		m.tick = nil
	}
	for kind, t := range m.debounce {
		t.Stop()
		delete(m.debounce, kind)
	}
	m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Snapshot returns a copy of the current session state.
func (m *Monitor) Snapshot() models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Valid reports the last known validity.
func (m *Monitor) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Valid
}

// CheckNow runs a check cycle immediately, bypassing per-driver spacing.
// It returns the validity after the cycle (or the last known validity if
// another check was already running).
func (m *Monitor) CheckNow(ctx context.Context) bool {
	m.runCheck(ctx, models.TriggerManual, true)
	return m.Valid()
}

// Supersede invalidates the session because a newer session for the same
// identity was established elsewhere. Repeated signals are no-ops.
func (m *Monitor) Supersede() {
	m.invalidate(models.ReasonSuperseded, "credential revoked server-side")
}

// Logout invalidates the session at the user's request.
func (m *Monitor) Logout() {
	m.invalidate(models.ReasonUnauthenticated, "explicit logout")
}

func (m *Monitor) scheduleTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped.Load() || m.state.Phase == models.PhaseInvalid {
		return
	}
	m.tick = m.opts.Clock.AfterFunc(m.opts.CheckInterval, func() {
		m.runCheck(context.Background(), models.TriggerTimer, false)
		m.scheduleTick()
	})
}

// debounced defers the check by the debounce delay, replacing any pending
// timer for the same kind. Focus and visibility firing together still end
// up as two requests, which per-driver spacing then collapses.
func (m *Monitor) debounced(kind models.TriggerKind) {
	m.mu.Lock()
	if t := m.debounce[kind]; t != nil {
		t.Stop()
	}
	m.debounce[kind] = m.opts.Clock.AfterFunc(m.opts.Debounce, func() {
		m.mu.Lock()
		delete(m.debounce, kind)
		m.mu.Unlock()
		m.runCheck(context.Background(), kind, false)
	})
	m.mu.Unlock()
}

// runCheck is the single entry point for all drivers.
func (m *Monitor) runCheck(ctx context.Context, kind models.TriggerKind, bypassSpacing bool) {
	if m.stopped.Load() {
		return
	}

	now := m.opts.Clock.Now()

	m.mu.Lock()
	if m.state.Phase == models.PhaseInvalid {
		m.mu.Unlock()
		return
	}
	if !bypassSpacing {
		if last, ok := m.lastRun[kind]; ok && now.Sub(last) < m.opts.MinSpacing {
			m.mu.Unlock()
			metrics.LivenessSkipped.WithLabelValues("spacing").Inc()
			return
		}
	}
	m.mu.Unlock()

	// Grace window: skip unconditionally, no network calls. The marker is
	// cleared by the query itself once the window has elapsed.
	if marker.WithinGrace(ctx, m.opts.Marker, now, m.opts.GracePeriod) {
		metrics.LivenessSkipped.WithLabelValues("grace").Inc()
		return
	}
	m.leaveGrace(now)

	// Serialize against ourselves: concurrent drivers get the last known
	// validity by simply returning.
	if !m.checkInFlight.CompareAndSwap(false, true) {
		metrics.LivenessSkipped.WithLabelValues("in_flight").Inc()
		return
	}
	defer m.checkInFlight.Store(false)

	m.mu.Lock()
	m.lastRun[kind] = now
	m.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	m.check(cctx, now)
}

// leaveGrace transitions grace → monitoring the first time a check runs
// past the window.
func (m *Monitor) leaveGrace(now time.Time) {
	m.mu.Lock()
	if m.state.Phase != models.PhaseGrace {
		m.mu.Unlock()
		return
	}
	m.state.Phase = models.PhaseMonitoring
	m.mu.Unlock()

	m.opts.Logger.Info("grace period elapsed, liveness monitoring active")
	m.emitEvent(models.PhaseMonitoring, "", "grace period elapsed")
}

// check runs one full cycle. Transient failures never invalidate: flaky
// connectivity must not log users out.
func (m *Monitor) check(ctx context.Context, now time.Time) {
	if m.opts.Provider != nil {
		user, err := m.opts.Provider.CurrentUser(ctx)
		switch {
		case errors.Is(err, identity.ErrNoUser):
			if m.opts.OnAuthRoute != nil && m.opts.OnAuthRoute() {
				// Not logged in yet, nothing to monitor this cycle.
				m.touchChecked(now)
				metrics.LivenessChecks.WithLabelValues("no_user_tolerated").Inc()
				return
			}
			m.invalidate(models.ReasonUnauthenticated, "no identity on protected route")
			return
		case err != nil:
			m.opts.Logger.Warn("identity check failed, keeping previous state", "error", err)
			metrics.LivenessChecks.WithLabelValues("error").Inc()
			return
		default:
			_ = user
		}
	}

	if m.opts.Activity != nil {
		at, ok, err := m.opts.Activity.LastActivity(ctx)
		if err != nil {
			m.opts.Logger.Warn("activity check failed, keeping previous state", "error", err)
			metrics.LivenessChecks.WithLabelValues("error").Inc()
			m.touchChecked(now)
			return
		}
		if ok {
			idle := now.Sub(at)
			if idle > m.opts.InactivityTimeout {
				m.mu.Lock()
				m.state.LastActivityAt = at
				m.mu.Unlock()
				m.invalidate(models.ReasonInactive, "idle for "+idle.Truncate(time.Second).String())
				return
			}
			if idle > m.opts.InactivityWarning {
				m.warnOnce(idle)
			}
			m.mu.Lock()
			m.state.LastActivityAt = at
			m.mu.Unlock()
		}
	}

	m.touchChecked(now)
	metrics.LivenessChecks.WithLabelValues("ok").Inc()
}

// touchChecked advances LastCheckedAt, never backwards.
func (m *Monitor) touchChecked(now time.Time) {
	m.mu.Lock()
	if now.After(m.state.LastCheckedAt) {
		m.state.LastCheckedAt = now
	}
	m.mu.Unlock()
}

// warnOnce surfaces the inactivity warning a single time per session.
func (m *Monitor) warnOnce(idle time.Duration) {
	m.mu.Lock()
	if m.state.WarningSent {
		m.mu.Unlock()
		return
	}
	m.state.WarningSent = true
	m.mu.Unlock()

	m.opts.Logger.Info("session approaching inactivity timeout", "idle", idle)
	if m.opts.OnWarning != nil {
		m.opts.OnWarning(idle)
	}
}

// invalidate performs the one-and-only transition to Invalid. Later calls,
// from any driver, are no-ops.
func (m *Monitor) invalidate(reason models.InvalidReason, detail string) {
	m.mu.Lock()
	if m.state.Phase == models.PhaseInvalid {
		m.mu.Unlock()
		return
	}
	m.state.Phase = models.PhaseInvalid
	m.state.Valid = false
	m.state.Reason = reason
	now := m.opts.Clock.Now()
	if now.After(m.state.LastCheckedAt) {
		m.state.LastCheckedAt = now
	}
	if m.tick != nil {
		m.tick.Stop()
		m.tick = nil
	}
	m.mu.Unlock()

	metrics.SessionValid.Set(0)
	metrics.LivenessChecks.WithLabelValues("invalidated").Inc()
	m.opts.Logger.Warn("session invalidated", "reason", string(reason), "detail", detail)

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	// Best-effort teardown: the server rejects the stale credential on its
	// next use even if these calls fail.
	if err := m.opts.Marker.Clear(ctx); err != nil {
		m.opts.Logger.Warn("failed to clear login marker", "error", err)
	}
	if m.opts.Provider != nil {
		if err := m.opts.Provider.SignOut(ctx); err != nil {
			m.opts.Logger.Warn("sign-out call failed", "error", err)
		}
	}

	m.emitEvent(models.PhaseInvalid, reason, detail)

	if m.opts.OnInvalid != nil {
		m.opts.OnInvalid(reason)
	}
}

func (m *Monitor) emitEvent(phase models.SessionPhase, reason models.InvalidReason, detail string) {
	if m.opts.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	err := m.opts.Events.AppendSessionEvent(ctx, &models.SessionEvent{
		ClientID: m.opts.ClientID,
		Phase:    phase,
		Reason:   reason,
		Detail:   detail,
		At:       m.opts.Clock.Now(),
	})
	if err != nil {
		m.opts.Logger.Warn("failed to persist session event", "error", err)
	}
}
