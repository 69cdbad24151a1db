package models

import "time"

// SessionPhase represents where the liveness monitor is in its lifecycle.
type SessionPhase string

const (
	// PhaseGrace suppresses all liveness checks for a fixed window after
	// login so page-load noise is never misread as a dead session.
	PhaseGrace SessionPhase = "grace"
	// PhaseMonitoring is the steady state: periodic and event-driven checks.
	PhaseMonitoring SessionPhase = "monitoring"
	// PhaseInvalid is terminal for a monitor instance. A fresh login builds
	// a fresh monitor.
	PhaseInvalid SessionPhase = "invalid"
)

// InvalidReason explains why a session was invalidated.
type InvalidReason string

const (
	ReasonInactive        InvalidReason = "SESSION_INACTIVE"
	ReasonSuperseded      InvalidReason = "SESSION_SUPERSEDED"
	ReasonUnauthenticated InvalidReason = "SESSION_UNAUTHENTICATED"
)

// SessionState is the liveness monitor's current assessment of the session.
// The monitor is the only writer; consumers receive copies.
type SessionState struct {
	Phase          SessionPhase  `json:"phase"`
	Valid          bool          `json:"valid"`
	Reason         InvalidReason `json:"reason,omitempty"`
	LoginAt        time.Time     `json:"login_at"`
	GraceExpiresAt time.Time     `json:"grace_expires_at"`
	LastCheckedAt  time.Time     `json:"last_checked_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	WarningSent    bool          `json:"warning_sent"`
}

// SessionEvent records a single monitor transition or notable check outcome,
// persisted for post-hoc inspection via `livecore status`.
type SessionEvent struct {
	ID       string
	ClientID string
	Phase    SessionPhase
	Reason   InvalidReason
	Detail   string
	At       time.Time
}
