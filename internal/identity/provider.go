// Package identity defines the contracts the liveness monitor has with the
// authentication system: who is logged in, how to sign out, and when the
// user was last active.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNoUser is returned by Provider.CurrentUser when no identity is
// resolvable. Whether that is fatal depends on the route (login pages
// tolerate it); callers branch with errors.Is.
var ErrNoUser = errors.New("identity: no authenticated user")

// User is the resolved authenticated identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Provider resolves the current identity and performs sign-out.
type Provider interface {
	// CurrentUser returns the authenticated identity, or ErrNoUser when the
	// session holds none. Other errors indicate transient failures.
	CurrentUser(ctx context.Context) (*User, error)

	// SignOut revokes the current credential with the identity provider.
	// It must be safe to call more than once.
	SignOut(ctx context.Context) error
}

// ActivitySource reports the user's last recorded activity.
type ActivitySource interface {
	// LastActivity returns the last activity timestamp. ok is false when no
	// activity is recorded yet or the caller is not authenticated; that is
	// not an error, and the inactivity check is skipped for the cycle.
	LastActivity(ctx context.Context) (at time.Time, ok bool, err error)
}
