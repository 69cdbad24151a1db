package liveness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yug-minds/livecore/internal/clock"
	"github.com/yug-minds/livecore/internal/identity"
	"github.com/yug-minds/livecore/internal/lifecycle"
	"github.com/yug-minds/livecore/internal/marker"
	"github.com/yug-minds/livecore/internal/models"
)

type fakeProvider struct {
	mu       sync.Mutex
	user     *identity.User
	err      error
	calls    int
	signOuts int
}

func (p *fakeProvider) CurrentUser(context.Context) (*identity.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.user == nil {
		return nil, identity.ErrNoUser
	}
	return p.user, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	return nil
}

func (p *fakeProvider) currentCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) signOutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

type fakeActivity struct {
	mu    sync.Mutex
	at    time.Time
	ok    bool
	err   error
	calls int
}

func (a *fakeActivity) LastActivity(context.Context) (time.Time, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.at, a.ok, a.err
}

func (a *fakeActivity) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type testFixture struct {
	clk      *clock.Fake
	provider *fakeProvider
	activity *fakeActivity
	marker   *marker.MemoryStore
	hub      *lifecycle.Hub
	invalid  []models.InvalidReason
	warnings []time.Duration
}

func newFixture() *testFixture {
	return &testFixture{
		clk:      clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
		provider: &fakeProvider{user: &identity.User{ID: "u-1", Role: "teacher"}},
		activity: &fakeActivity{},
		marker:   marker.NewMemoryStore(),
		hub:      lifecycle.NewHub(),
	}
}

func (f *testFixture) monitor(t *testing.T) *Monitor {
	t.Helper()
	m := New(Options{
		Provider:          f.provider,
		Activity:          f.activity,
		Marker:            f.marker,
		GracePeriod:       5 * time.Minute,
		CheckInterval:     2 * time.Minute,
		Debounce:          time.Second,
		MinSpacing:        30 * time.Second,
		InactivityTimeout: 30 * time.Minute,
		InactivityWarning: 25 * time.Minute,
		OnInvalid:         func(r models.InvalidReason) { f.invalid = append(f.invalid, r) },
		OnWarning:         func(d time.Duration) { f.warnings = append(f.warnings, d) },
		Clock:             f.clk,
	})
	t.Cleanup(m.Stop)
	return m
}

func (f *testFixture) active(idle time.Duration) {
	f.activity.mu.Lock()
	f.activity.at = f.clk.Now().Add(-idle)
	f.activity.ok = true
	f.activity.mu.Unlock()
}

func TestMonitor_GraceSuppressesChecks(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.marker.Mark(context.Background(), f.clk.Now()))
	f.active(time.Minute)

	m := f.monitor(t)
	m.Start(context.Background(), f.hub)

	assert.Equal(t, models.PhaseGrace, m.Snapshot().Phase)

	// Focus at t=60s: debounced check lands inside the grace window
	f.clk.Advance(60 * time.Second)
	f.hub.Emit(models.TriggerFocus)
	f.clk.Advance(time.Second)

	assert.Equal(t, 0, f.provider.currentCalls(), "grace period must make zero identity calls")
	assert.Equal(t, 0, f.activity.callCount(), "grace period must make zero activity calls")
	assert.Equal(t, models.PhaseGrace, m.Snapshot().Phase)

	// Recurring timer ticks at t=120s and t=240s also land in grace
	f.clk.Advance(189 * time.Second) // now t=250s
	assert.Equal(t, 0, f.provider.currentCalls())

	// Focus at t=310s: past the window, one full check cycle runs
	f.clk.Advance(60 * time.Second)
	f.active(time.Minute)
	f.hub.Emit(models.TriggerFocus)
	f.clk.Advance(time.Second)

	assert.Equal(t, models.PhaseMonitoring, m.Snapshot().Phase)
	assert.Equal(t, 1, f.provider.currentCalls())
	assert.Equal(t, 1, f.activity.callCount())
	assert.True(t, m.Valid())

	// The grace query cleared the marker on its way out
	_, ok, err := f.marker.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMonitor_InactivityInvalidatesOnce(t *testing.T) {
	f := newFixture()
	f.active(1900 * time.Second) // timeout is 1800s

	m := f.monitor(t)
	f.activity.mu.Lock()
	f.activity.at = f.clk.Now().Add(-1900 * time.Second)
	f.activity.mu.Unlock()

	assert.False(t, m.CheckNow(context.Background()))

	st := m.Snapshot()
	assert.Equal(t, models.PhaseInvalid, st.Phase)
	assert.Equal(t, models.ReasonInactive, st.Reason)
	assert.Equal(t, 1, f.provider.signOutCalls())
	require.Len(t, f.invalid, 1)
	assert.Equal(t, models.ReasonInactive, f.invalid[0])

	// A second trigger after invalidation is a no-op
	assert.False(t, m.CheckNow(context.Background()))
	assert.Equal(t, 1, f.provider.signOutCalls(), "sign-out must fire exactly once")
	assert.Len(t, f.invalid, 1)
}

func TestMonitor_WarningFiresOnce(t *testing.T) {
	f := newFixture()
	f.active(26 * time.Minute) // between warning (25m) and timeout (30m)

	m := f.monitor(t)
	assert.True(t, m.CheckNow(context.Background()))
	require.Len(t, f.warnings, 1)
	assert.Equal(t, 26*time.Minute, f.warnings[0])

	// Still idle on the next check: no second warning
	f.clk.Advance(time.Minute)
	f.active(27 * time.Minute)
	assert.True(t, m.CheckNow(context.Background()))
	assert.Len(t, f.warnings, 1)
	assert.True(t, m.Snapshot().WarningSent)
}

func TestMonitor_ActivityErrorFailsOpen(t *testing.T) {
	f := newFixture()
	f.activity.err = errors.New("gateway timeout")

	m := f.monitor(t)
	assert.True(t, m.CheckNow(context.Background()))
	assert.True(t, m.Valid(), "transient errors must not invalidate")
	assert.Empty(t, f.invalid)
}

func TestMonitor_IdentityErrorFailsOpen(t *testing.T) {
	f := newFixture()
	f.provider.err = errors.New("connection refused")

	m := f.monitor(t)
	assert.True(t, m.CheckNow(context.Background()))
	assert.True(t, m.Valid())
}

func TestMonitor_NoUserOnProtectedRouteInvalidates(t *testing.T) {
	f := newFixture()
	f.provider.user = nil

	m := f.monitor(t)
	assert.False(t, m.CheckNow(context.Background()))

	st := m.Snapshot()
	assert.Equal(t, models.ReasonUnauthenticated, st.Reason)
	assert.Equal(t, 1, f.provider.signOutCalls())
}

func TestMonitor_NoUserOnAuthRouteTolerated(t *testing.T) {
	f := newFixture()
	f.provider.user = nil

	m := New(Options{
		Provider:    f.provider,
		Activity:    f.activity,
		Marker:      f.marker,
		OnAuthRoute: func() bool { return true },
		Clock:       f.clk,
		OnInvalid:   func(r models.InvalidReason) { f.invalid = append(f.invalid, r) },
	})
	t.Cleanup(m.Stop)

	assert.True(t, m.CheckNow(context.Background()))
	assert.True(t, m.Valid())
	assert.Empty(t, f.invalid)
}

func TestMonitor_SupersedeIsIdempotent(t *testing.T) {
	f := newFixture()
	m := f.monitor(t)

	m.Supersede()
	m.Supersede()

	st := m.Snapshot()
	assert.Equal(t, models.PhaseInvalid, st.Phase)
	assert.Equal(t, models.ReasonSuperseded, st.Reason)
	assert.Equal(t, 1, f.provider.signOutCalls())
	assert.Len(t, f.invalid, 1)
}

func TestMonitor_TimerDriverChecksPeriodically(t *testing.T) {
	f := newFixture()
	f.active(time.Minute)

	m := f.monitor(t)
	m.Start(context.Background(), nil)

	f.clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, f.provider.currentCalls())

	f.active(time.Minute)
	f.clk.Advance(2 * time.Minute)
	assert.Equal(t, 2, f.provider.currentCalls())
}

func TestMonitor_PerDriverSpacingCollapsesBursts(t *testing.T) {
	f := newFixture()
	f.active(time.Minute)

	m := f.monitor(t)
	m.Start(context.Background(), f.hub)

	f.hub.Emit(models.TriggerFocus)
	f.clk.Advance(time.Second)
	assert.Equal(t, 1, f.provider.currentCalls())

	// Another focus 5s later: inside the 30s per-driver spacing
	f.clk.Advance(5 * time.Second)
	f.hub.Emit(models.TriggerFocus)
	f.clk.Advance(time.Second)
	assert.Equal(t, 1, f.provider.currentCalls(), "burst must collapse to one check")

	// Past the spacing window the driver may check again
	f.clk.Advance(30 * time.Second)
	f.active(time.Minute)
	f.hub.Emit(models.TriggerFocus)
	f.clk.Advance(time.Second)
	assert.Equal(t, 2, f.provider.currentCalls())
}

func TestMonitor_LastCheckedNeverDecreases(t *testing.T) {
	f := newFixture()
	f.active(time.Minute)

	m := f.monitor(t)
	m.CheckNow(context.Background())
	first := m.Snapshot().LastCheckedAt

	f.clk.Advance(time.Minute)
	f.active(time.Minute)
	m.CheckNow(context.Background())
	second := m.Snapshot().LastCheckedAt

	assert.True(t, second.After(first))
}

func TestMonitor_StopCancelsTimers(t *testing.T) {
	f := newFixture()
	f.active(time.Minute)

	m := f.monitor(t)
	m.Start(context.Background(), f.hub)
	m.Stop()

	f.clk.Advance(10 * time.Minute)
	f.hub.Emit(models.TriggerFocus)
	f.clk.Advance(time.Second)

	assert.Equal(t, 0, f.provider.currentCalls())
	assert.Equal(t, 0, f.hub.SubscriberCount())
}
