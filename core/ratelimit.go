package core

import (
	"context"
	"time"
)

// RateLimitEntry tracks quota and cooldown state for one (platform, action)
// pair. Entries live in process memory owned by the limiter and are mirrored
// to durable storage for restart recovery. Counts never exceed the
// configured limits without the call having been rejected first.
type RateLimitEntry struct {
	Platform        string    `json:"platform" bson:"platform"`
	ActionType      string    `json:"action_type" bson:"action_type"`
	LimitPerHour    int       `json:"limit_per_hour" bson:"limit_per_hour"`
	LimitPerDay     int       `json:"limit_per_day" bson:"limit_per_day"`
	CooldownSeconds int       `json:"cooldown_seconds" bson:"cooldown_seconds"`
	HourlyCount     int       `json:"hourly_count" bson:"hourly_count"`
	DailyCount      int       `json:"daily_count" bson:"daily_count"`
	LastActionAt    time.Time `json:"last_action_at" bson:"last_action_at"`
	HourWindowStart time.Time `json:"hour_window_start" bson:"hour_window_start"`
	DayWindowStart  time.Time `json:"day_window_start" bson:"day_window_start"`
}

// Machine-readable reasons for a rejected rate limit check.
const (
	// ReasonHourlyLimit indicates the hourly quota is exhausted.
	ReasonHourlyLimit = "hourly_limit_exceeded"
	// ReasonDailyLimit indicates the daily quota is exhausted.
	ReasonDailyLimit = "daily_limit_exceeded"
	// ReasonCooldown indicates the per-action cooldown has not elapsed.
	ReasonCooldown = "cooldown_active"
)

// RateLimitDecision is the structured outcome of a rate limit check. A
// rejected decision carries a machine-readable reason and a wait estimate so
// callers can back off or queue instead of treating the rejection as fatal.
type RateLimitDecision struct {
	Allowed       bool          `json:"allowed"`
	Reason        string        `json:"reason,omitempty"`
	RetryAfter    time.Duration `json:"retry_after,omitempty"`
	RemainingHour int           `json:"remaining_hour"`
	RemainingDay  int           `json:"remaining_day"`
}

// ActionGate is the narrow check/record surface outbound actions consult
// before and after executing. The rate limiter implements it. Callers must
// invoke CanPerform immediately before the gated action and RecordAction
// immediately after performing it.
type ActionGate interface {
	CanPerform(platform, actionType string) RateLimitDecision
	RecordAction(ctx context.Context, platform, actionType string) error
}

// Key returns the composite lookup key for the entry.
func (e *RateLimitEntry) Key() string { return RateLimitKey(e.Platform, e.ActionType) }

// RateLimitKey builds the composite key for a (platform, action) pair.
func RateLimitKey(platform, actionType string) string {
	return platform + ":" + actionType
}

// Clone returns a copy of the entry safe for callers to hold.
func (e *RateLimitEntry) Clone() *RateLimitEntry {
	c := *e
	return &c
}
