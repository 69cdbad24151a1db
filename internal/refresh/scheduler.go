// Package refresh decides when a consuming view's data is re-fetched. Each
// registered consumer owns a policy: lifecycle triggers are throttled to at
// most one execution per minimum interval, bursts collapse into a single
// deferred retry, and nothing runs while unsaved form data is present.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yug-minds/livecore/internal/clock"
	"github.com/yug-minds/livecore/internal/forms"
	"github.com/yug-minds/livecore/internal/lifecycle"
	"github.com/yug-minds/livecore/internal/metrics"
	"github.com/yug-minds/livecore/internal/models"
	"github.com/yug-minds/livecore/internal/recorder"
)

// DefaultMinInterval is the conservative floor between refreshes for one
// consumer. Tab-switch-happy users otherwise turn every focus change into a
// server round-trip.
const DefaultMinInterval = 45 * time.Second

// DefaultActionTimeout bounds a single refresh action.
const DefaultActionTimeout = 30 * time.Second

// Invalidator is the cache/query layer contract: mark the given keys stale
// so the next read refetches. Keys are opaque to the scheduler.
type Invalidator interface {
	Invalidate(ctx context.Context, keys []string) error
}

// Policy configures one consumer's refresh behavior.
type Policy struct {
	// MinInterval is the minimum spacing between executions.
	// Zero means DefaultMinInterval.
	MinInterval time.Duration

	// HasUnsavedData is the consumer's own guard, OR-ed with the shared
	// dirty-form registry. May be nil.
	HasUnsavedData func() bool

	// InvalidateKeys are passed to the scheduler's Invalidator on refresh.
	InvalidateKeys []string

	// Action is an optional custom refresh callback, run after key
	// invalidation.
	Action func(ctx context.Context) error

	// ActionTimeout bounds one execution. Zero means DefaultActionTimeout.
	ActionTimeout time.Duration

	// DisableVisibility / DisableFocus opt out of the corresponding
	// lifecycle triggers. Manual triggers always work.
	DisableVisibility bool
	DisableFocus      bool
}

func (p *Policy) minInterval() time.Duration {
	if p.MinInterval > 0 {
		return p.MinInterval
	}
	return DefaultMinInterval
}

func (p *Policy) actionTimeout() time.Duration {
	if p.ActionTimeout > 0 {
		return p.ActionTimeout
	}
	return DefaultActionTimeout
}

// Scheduler owns the shared collaborators and the consumer set.
type Scheduler struct {
	forms  *forms.Registry
	cache  Invalidator
	rec    *recorder.Recorder
	source lifecycle.Source
	clk    clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	consumers map[string]*Consumer
}

// NewScheduler creates a scheduler. cache, rec and source may be nil; clk
// and logger default to the system clock and slog.Default.
func NewScheduler(reg *forms.Registry, cache Invalidator, rec *recorder.Recorder, source lifecycle.Source, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		forms:     reg,
		cache:     cache,
		rec:       rec,
		source:    source,
		clk:       clk,
		logger:    logger,
		consumers: make(map[string]*Consumer),
	}
}

// Register creates a consumer under the given id, wiring it to the
// lifecycle source per the policy. Registering an id twice closes the
// previous consumer first.
func (s *Scheduler) Register(id string, p Policy) *Consumer {
	c := &Consumer{id: id, policy: p, sched: s}

	if s.source != nil && (!p.DisableVisibility || !p.DisableFocus) {
		c.unsubscribe = s.source.Subscribe(func(kind models.TriggerKind) {
			switch kind {
			case models.TriggerVisibility:
				if p.DisableVisibility {
					return
				}
			case models.TriggerFocus:
				if p.DisableFocus {
					return
				}
			default:
				return
			}
			c.Trigger(kind)
		})
	}

	s.mu.Lock()
	prev := s.consumers[id]
	s.consumers[id] = c
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	metrics.ActiveConsumers.Inc()
	return c
}

// Consumer returns the registered consumer for id, or nil.
func (s *Scheduler) Consumer(id string) *Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumers[id]
}

// Consumers returns the registered consumers in no particular order.
func (s *Scheduler) Consumers() []*Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*Consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		all = append(all, c)
	}
	return all
}

// TriggerAll fires a manual trigger on every registered consumer.
func (s *Scheduler) TriggerAll() {
	s.mu.Lock()
	all := make([]*Consumer, 0, len(s.consumers))
	for _, c := range s.consumers {
		all = append(all, c)
	}
	s.mu.Unlock()

	for _, c := range all {
		c.Trigger(models.TriggerManual)
	}
}

func (s *Scheduler) remove(c *Consumer) {
	s.mu.Lock()
	if s.consumers[c.id] == c {
		delete(s.consumers, c.id)
	}
	s.mu.Unlock()
}

// Consumer is one registered view's refresh handle. All methods are safe
// for concurrent use; executions for a single consumer never overlap.
type Consumer struct {
	id     string
	policy Policy
	sched  *Scheduler

	closed      atomic.Bool
	inFlight    atomic.Bool
	unsubscribe func()

	mu            sync.Mutex
	lastRefreshAt time.Time
	deferred      clock.Timer
}

// ID returns the consumer id.
func (c *Consumer) ID() string { return c.id }

// LastRefreshAt returns when the last execution started, zero if none.
func (c *Consumer) LastRefreshAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefreshAt
}

// Trigger requests a refresh for the given trigger kind. Depending on the
// policy state it executes now, defers to the interval boundary, or skips.
func (c *Consumer) Trigger(kind models.TriggerKind) {
	if c.closed.Load() {
		return
	}

	// Re-entrancy: an execution is running, drop the trigger entirely.
	if c.inFlight.Load() {
		c.record(kind, models.OutcomeSkippedBusy, "")
		return
	}

	// Guard: never refresh over unsaved edits. No retry is scheduled; the
	// next natural trigger re-evaluates.
	if c.hasUnsavedData() {
		metrics.RefreshSkippedUnsaved.Inc()
		c.record(kind, models.OutcomeSkippedUnsaved, "")
		return
	}

	now := c.sched.clk.Now()

	c.mu.Lock()
	elapsed := now.Sub(c.lastRefreshAt)
	if !c.lastRefreshAt.IsZero() && elapsed < c.policy.minInterval() {
		// Throttled: collapse the burst into one deferred retry at the
		// interval boundary, replacing any pending timer.
		if c.deferred != nil {
			c.deferred.Stop()
		}
		delay := c.policy.minInterval() - elapsed
		c.deferred = c.sched.clk.AfterFunc(delay, func() {
			c.clearDeferred()
			c.Trigger(kind)
		})
		c.mu.Unlock()

		metrics.RefreshThrottled.Inc()
		c.record(kind, models.OutcomeThrottled, "")
		return
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		c.mu.Unlock()
		c.record(kind, models.OutcomeSkippedBusy, "")
		return
	}
	c.lastRefreshAt = now
	c.mu.Unlock()

	c.execute(kind)
}

// execute runs the refresh action. The in-flight flag is always cleared,
// and errors are logged, not retried.
func (c *Consumer) execute(kind models.TriggerKind) {
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), c.policy.actionTimeout())
	defer cancel()

	var err error
	if len(c.policy.InvalidateKeys) > 0 && c.sched.cache != nil {
		err = c.sched.cache.Invalidate(ctx, c.policy.InvalidateKeys)
	}
	if err == nil && c.policy.Action != nil {
		err = c.policy.Action(ctx)
	}

	if err != nil {
		metrics.RefreshFailed.Inc()
		c.sched.logger.Warn("refresh action failed", "consumer", c.id, "trigger", string(kind), "error", err)
		c.record(kind, models.OutcomeFailed, err.Error())
		return
	}

	metrics.RefreshExecuted.WithLabelValues(string(kind)).Inc()
	c.record(kind, models.OutcomeExecuted, "")
}

// Close tears the consumer down: the pending deferred timer is cancelled
// and the lifecycle subscription removed, so no refresh can fire against a
// destroyed view. Close is idempotent.
func (c *Consumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	if c.deferred != nil {
		c.deferred.Stop()
		c.deferred = nil
	}
	c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.sched.remove(c)
	metrics.ActiveConsumers.Dec()
}

func (c *Consumer) clearDeferred() {
	c.mu.Lock()
	c.deferred = nil
	c.mu.Unlock()
}

func (c *Consumer) hasUnsavedData() bool {
	if c.policy.HasUnsavedData != nil && c.policy.HasUnsavedData() {
		return true
	}
	return c.sched.forms != nil && c.sched.forms.HasUnsaved()
}

func (c *Consumer) record(kind models.TriggerKind, outcome models.RefreshOutcome, errMsg string) {
	c.sched.rec.Record(models.RefreshLogEntry{
		ConsumerID:     c.id,
		Trigger:        kind,
		Outcome:        outcome,
		Throttled:      outcome == models.OutcomeThrottled,
		SkippedUnsaved: outcome == models.OutcomeSkippedUnsaved,
		Error:          errMsg,
		At:             c.sched.clk.Now(),
	})
}
