package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yug-minds/livecore/internal/clock"
	"github.com/yug-minds/livecore/internal/identity"
	"github.com/yug-minds/livecore/internal/marker"
	"github.com/yug-minds/livecore/internal/models"
)

type stubProvider struct{ user *identity.User }

func (p *stubProvider) CurrentUser(context.Context) (*identity.User, error) {
	if p.user == nil {
		return nil, identity.ErrNoUser
	}
	return p.user, nil
}

func (p *stubProvider) SignOut(context.Context) error { return nil }

type stubActivity struct{ at time.Time }

func (a *stubActivity) LastActivity(context.Context) (time.Time, bool, error) {
	return a.at, !a.at.IsZero(), nil
}

func newTestRuntime(t *testing.T) (*Runtime, *clock.Fake, *marker.MemoryStore) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	mk := marker.NewMemoryStore()
	r := New(Config{
		Provider: &stubProvider{user: &identity.User{ID: "u-1", Role: "admin"}},
		Activity: &stubActivity{at: clk.Now().Add(-time.Minute)},
		Marker:   mk,
		Clock:    clk,
	})
	t.Cleanup(r.Stop)
	return r, clk, mk
}

func TestRuntime_StartCreatesMonitor(t *testing.T) {
	r, _, _ := newTestRuntime(t)
	assert.Nil(t, r.Monitor())

	r.Start(context.Background())
	require.NotNil(t, r.Monitor())
	assert.Equal(t, models.PhaseMonitoring, r.Monitor().Snapshot().Phase)
	assert.NotEmpty(t, r.ClientID())
}

func TestRuntime_LoginMarksAndReplacesMonitor(t *testing.T) {
	r, clk, mk := newTestRuntime(t)
	r.Start(context.Background())
	first := r.Monitor()

	require.NoError(t, r.Login(context.Background()))

	second := r.Monitor()
	assert.NotSame(t, first, second)
	assert.Equal(t, models.PhaseGrace, second.Snapshot().Phase)

	at, ok, err := mk.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, clk.Now(), at)
}

func TestRuntime_LoginBeforeStartOnlyMarks(t *testing.T) {
	r, _, mk := newTestRuntime(t)

	require.NoError(t, r.Login(context.Background()))
	assert.Nil(t, r.Monitor())

	_, ok, err := mk.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRuntime_LogoutInvalidates(t *testing.T) {
	r, _, _ := newTestRuntime(t)
	r.Start(context.Background())

	r.Logout()
	assert.Equal(t, models.PhaseInvalid, r.Monitor().Snapshot().Phase)
}

func TestRuntime_SupersedeInvalidates(t *testing.T) {
	r, _, _ := newTestRuntime(t)
	r.Start(context.Background())

	r.Supersede()
	st := r.Monitor().Snapshot()
	assert.Equal(t, models.PhaseInvalid, st.Phase)
	assert.Equal(t, models.ReasonSuperseded, st.Reason)
}
