// Package limiter enforces per-platform, per-action rate limits with hourly
// and daily quotas plus a cooldown between consecutive actions. Rejections
// are structured decisions, never errors, so callers can back off or queue.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/logging"
)

// Default limits applied to pairs without an explicit configuration.
const (
	DefaultLimitPerHour    = 10
	DefaultLimitPerDay     = 100
	DefaultCooldownSeconds = 60
)

// Options configures a Limiter.
type Options struct {
	// Store mirrors entries durably for restart recovery. Nil keeps the
	// limiter memory-only.
	Store core.RateLimitStore

	// LimitPerHour, LimitPerDay and CooldownSeconds override the package
	// defaults for newly tracked pairs.
	LimitPerHour    int
	LimitPerDay     int
	CooldownSeconds int

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// QueuedAction is a deferred action waiting for quota.
type QueuedAction struct {
	Platform   string
	ActionType string
	Run        func(ctx context.Context) error
}

// QueueReport summarizes one ProcessQueue pass.
type QueueReport struct {
	Processed int
	Failed    int
	Remaining int
}

// Limiter is the in-process owner of rate limit state. All counts live in
// memory; Sync and Restore move them to and from the configured store.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*core.RateLimitEntry
	queue   []QueuedAction

	store  core.RateLimitStore
	logger logging.Logger
	now    func() time.Time

	defaultPerHour  int
	defaultPerDay   int
	defaultCooldown int
}

var _ core.ActionGate = (*Limiter)(nil)

// New constructs a Limiter.
func New(optFns ...func(o *Options)) *Limiter {
	opts := Options{
		LimitPerHour:    DefaultLimitPerHour,
		LimitPerDay:     DefaultLimitPerDay,
		CooldownSeconds: DefaultCooldownSeconds,
		Logger:          logging.NoOpLogger{},
		Now:             time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Limiter{
		entries:         make(map[string]*core.RateLimitEntry),
		store:           opts.Store,
		logger:          opts.Logger,
		now:             opts.Now,
		defaultPerHour:  opts.LimitPerHour,
		defaultPerDay:   opts.LimitPerDay,
		defaultCooldown: opts.CooldownSeconds,
	}
}

// SetLimit configures the limits for one (platform, action) pair, preserving
// any counts already accumulated.
func (l *Limiter) SetLimit(platform, actionType string, perHour, perDay, cooldownSeconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entry(platform, actionType)
	entry.LimitPerHour = perHour
	entry.LimitPerDay = perDay
	entry.CooldownSeconds = cooldownSeconds
}

// CanPerform implements core.ActionGate. It is a pure check: calling it any
// number of times never changes counts or windows.
func (l *Limiter) CanPerform(platform, actionType string) core.RateLimitDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	entry, ok := l.entries[core.RateLimitKey(platform, actionType)]
	if !ok {
		return core.RateLimitDecision{
			Allowed:       true,
			RemainingHour: l.defaultPerHour,
			RemainingDay:  l.defaultPerDay,
		}
	}

	view := *entry
	rollWindows(&view, now)
	return decide(&view, now)
}

// RecordAction implements core.ActionGate. Callers invoke it immediately
// after performing the gated action; it bumps both counters, stamps the
// cooldown and mirrors the entry to the store when one is configured.
func (l *Limiter) RecordAction(ctx context.Context, platform, actionType string) error {
	l.mu.Lock()
	now := l.now().UTC()
	entry := l.entry(platform, actionType)
	rollWindows(entry, now)
	entry.HourlyCount++
	entry.DailyCount++
	entry.LastActionAt = now
	mirror := entry.Clone()
	l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	if err := l.store.SaveRateLimit(ctx, mirror); err != nil {
		return fmt.Errorf("mirror rate limit %s: %w", mirror.Key(), err)
	}
	return nil
}

// Status returns a copy of the tracked entry for a pair, or nil when the
// pair has never acted.
func (l *Limiter) Status(platform, actionType string) *core.RateLimitEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[core.RateLimitKey(platform, actionType)]
	if !ok {
		return nil
	}
	return entry.Clone()
}

// List returns copies of every tracked entry.
func (l *Limiter) List() []*core.RateLimitEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*core.RateLimitEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry.Clone())
	}
	return out
}

// ResetExpiredWindows rolls every entry whose hourly or daily window has
// elapsed. It is intended to run as a periodic sweep so remaining quotas are
// accurate even for idle pairs.
func (l *Limiter) ResetExpiredWindows(ctx context.Context) {
	l.mu.Lock()
	now := l.now().UTC()
	var changed []*core.RateLimitEntry
	for _, entry := range l.entries {
		before := *entry
		rollWindows(entry, now)
		if before.HourlyCount != entry.HourlyCount || before.DailyCount != entry.DailyCount {
			changed = append(changed, entry.Clone())
		}
	}
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	for _, entry := range changed {
		if err := l.store.SaveRateLimit(ctx, entry); err != nil {
			l.logger.Warn("failed to mirror reset rate limit", "key", entry.Key(), "error", err)
		}
	}
}

// Restore loads persisted entries into memory, replacing any in-memory
// state for the same pairs. Call it once on startup before serving checks.
func (l *Limiter) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	entries, err := l.store.ListRateLimits(ctx)
	if err != nil {
		return fmt.Errorf("restore rate limits: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range entries {
		l.entries[entry.Key()] = entry.Clone()
	}
	return nil
}

// Sync mirrors every in-memory entry to the store.
func (l *Limiter) Sync(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	var errs []error
	for _, entry := range l.List() {
		if err := l.store.SaveRateLimit(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", entry.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// QueueAction defers an action until quota is available. Queued actions run
// in FIFO order on the next ProcessQueue pass that finds room for them.
func (l *Limiter) QueueAction(action QueuedAction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, action)
}

// QueueLength returns the number of deferred actions.
func (l *Limiter) QueueLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// ProcessQueue makes one pass over the deferred actions, running each one
// whose pair currently has quota. Blocked actions stay queued in order. An
// action that runs is recorded against its pair even when it returns an
// error; failed actions are not retried.
func (l *Limiter) ProcessQueue(ctx context.Context) QueueReport {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	var report QueueReport
	var kept []QueuedAction
	for _, action := range pending {
		decision := l.CanPerform(action.Platform, action.ActionType)
		if !decision.Allowed {
			kept = append(kept, action)
			continue
		}

		if err := action.Run(ctx); err != nil {
			report.Failed++
			l.logger.Warn("queued action failed", "platform", action.Platform, "action_type", action.ActionType, "error", err)
		} else {
			report.Processed++
		}
		if err := l.RecordAction(ctx, action.Platform, action.ActionType); err != nil {
			l.logger.Warn("failed to record queued action", "platform", action.Platform, "action_type", action.ActionType, "error", err)
		}
	}

	l.mu.Lock()
	l.queue = append(kept, l.queue...)
	report.Remaining = len(l.queue)
	l.mu.Unlock()

	return report
}

// entry returns the tracked entry for a pair, creating it with the default
// limits on first use. Callers must hold l.mu.
func (l *Limiter) entry(platform, actionType string) *core.RateLimitEntry {
	key := core.RateLimitKey(platform, actionType)
	entry, ok := l.entries[key]
	if !ok {
		now := l.now().UTC()
		entry = &core.RateLimitEntry{
			Platform:        platform,
			ActionType:      actionType,
			LimitPerHour:    l.defaultPerHour,
			LimitPerDay:     l.defaultPerDay,
			CooldownSeconds: l.defaultCooldown,
			HourWindowStart: now,
			DayWindowStart:  now,
		}
		l.entries[key] = entry
	}
	return entry
}

// rollWindows zeroes counters whose window has fully elapsed.
func rollWindows(entry *core.RateLimitEntry, now time.Time) {
	if now.Sub(entry.HourWindowStart) >= time.Hour {
		entry.HourlyCount = 0
		entry.HourWindowStart = now
	}
	if now.Sub(entry.DayWindowStart) >= 24*time.Hour {
		entry.DailyCount = 0
		entry.DayWindowStart = now
	}
}

// decide evaluates cooldown first, then the hourly and daily quotas.
func decide(entry *core.RateLimitEntry, now time.Time) core.RateLimitDecision {
	remainingHour := entry.LimitPerHour - entry.HourlyCount
	remainingDay := entry.LimitPerDay - entry.DailyCount
	if remainingHour < 0 {
		remainingHour = 0
	}
	if remainingDay < 0 {
		remainingDay = 0
	}

	if entry.CooldownSeconds > 0 && !entry.LastActionAt.IsZero() {
		readyAt := entry.LastActionAt.Add(time.Duration(entry.CooldownSeconds) * time.Second)
		if now.Before(readyAt) {
			return core.RateLimitDecision{
				Reason:        core.ReasonCooldown,
				RetryAfter:    readyAt.Sub(now),
				RemainingHour: remainingHour,
				RemainingDay:  remainingDay,
			}
		}
	}

	if entry.HourlyCount >= entry.LimitPerHour {
		return core.RateLimitDecision{
			Reason:        core.ReasonHourlyLimit,
			RetryAfter:    entry.HourWindowStart.Add(time.Hour).Sub(now),
			RemainingHour: 0,
			RemainingDay:  remainingDay,
		}
	}
	if entry.DailyCount >= entry.LimitPerDay {
		return core.RateLimitDecision{
			Reason:        core.ReasonDailyLimit,
			RetryAfter:    entry.DayWindowStart.Add(24 * time.Hour).Sub(now),
			RemainingHour: remainingHour,
			RemainingDay:  0,
		}
	}

	return core.RateLimitDecision{
		Allowed:       true,
		RemainingHour: remainingHour,
		RemainingDay:  remainingDay,
	}
}
