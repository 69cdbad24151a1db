package models

import "time"

// TriggerKind identifies the lifecycle event that caused a refresh or
// liveness check to be considered.
type TriggerKind string

const (
	TriggerVisibility TriggerKind = "visibility"
	TriggerFocus      TriggerKind = "focus"
	TriggerManual     TriggerKind = "manual"
	TriggerTimer      TriggerKind = "timer"
)

// Valid reports whether k is a trigger kind accepted from external callers.
// TriggerTimer is internal to the monitor and never accepted over the API.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerVisibility, TriggerFocus, TriggerManual:
		return true
	}
	return false
}

// RefreshOutcome is the scheduling decision taken for a single trigger.
type RefreshOutcome string

const (
	OutcomeExecuted       RefreshOutcome = "executed"
	OutcomeThrottled      RefreshOutcome = "throttled"
	OutcomeSkippedUnsaved RefreshOutcome = "skipped_unsaved"
	OutcomeSkippedBusy    RefreshOutcome = "skipped_busy"
	OutcomeFailed         RefreshOutcome = "failed"
)

// RefreshLogEntry is one recorded scheduling decision. Entries are
// observability only; nothing reads them back into control logic.
type RefreshLogEntry struct {
	ID             string         `json:"id,omitempty"`
	ConsumerID     string         `json:"consumer_id"`
	Trigger        TriggerKind    `json:"trigger"`
	Outcome        RefreshOutcome `json:"outcome"`
	Throttled      bool           `json:"throttled"`
	SkippedUnsaved bool           `json:"skipped_unsaved"`
	Error          string         `json:"error,omitempty"`
	At             time.Time      `json:"at"`
}
