package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/store"
)

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time          { return c.at }
func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{at: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func TestCanPerformUntrackedPair(t *testing.T) {
	l := New()

	decision := l.CanPerform("twitter", "post")
	assert.True(t, decision.Allowed)
	assert.Equal(t, DefaultLimitPerHour, decision.RemainingHour)
	assert.Equal(t, DefaultLimitPerDay, decision.RemainingDay)
}

func TestHourlyLimitExceeded(t *testing.T) {
	clock := newClock()
	l := New(func(o *Options) { o.Now = clock.now })
	l.SetLimit("twitter", "post", 3, 100, 0)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision := l.CanPerform("twitter", "post")
		require.True(t, decision.Allowed, "action %d should be allowed", i)
		require.NoError(t, l.RecordAction(ctx, "twitter", "post"))
	}

	decision := l.CanPerform("twitter", "post")
	assert.False(t, decision.Allowed)
	assert.Equal(t, core.ReasonHourlyLimit, decision.Reason)
	assert.Zero(t, decision.RemainingHour)
	assert.Equal(t, 97, decision.RemainingDay)
	assert.Equal(t, time.Hour, decision.RetryAfter)

	// Other pairs are unaffected.
	assert.True(t, l.CanPerform("twitter", "reply").Allowed)
	assert.True(t, l.CanPerform("linkedin", "post").Allowed)
}

func TestDailyLimitExceeded(t *testing.T) {
	clock := newClock()
	l := New(func(o *Options) { o.Now = clock.now })
	l.SetLimit("twitter", "post", 100, 2, 0)

	ctx := context.Background()
	require.NoError(t, l.RecordAction(ctx, "twitter", "post"))
	require.NoError(t, l.RecordAction(ctx, "twitter", "post"))

	decision := l.CanPerform("twitter", "post")
	assert.False(t, decision.Allowed)
	assert.Equal(t, core.ReasonDailyLimit, decision.Reason)
	assert.Zero(t, decision.RemainingDay)
	assert.Equal(t, 24*time.Hour, decision.RetryAfter)
}

func TestCooldown(t *testing.T) {
	clock := newClock()
	l := New(func(o *Options) { o.Now = clock.now })
	l.SetLimit("twitter", "post", 10, 100, 60)

	ctx := context.Background()
	require.NoError(t, l.RecordAction(ctx, "twitter", "post"))

	decision := l.CanPerform("twitter", "post")
	assert.False(t, decision.Allowed)
	assert.Equal(t, core.ReasonCooldown, decision.Reason)
	assert.Equal(t, 60*time.Second, decision.RetryAfter)

	clock.advance(61 * time.Second)
	assert.True(t, l.CanPerform("twitter", "post").Allowed)
}

func TestCanPerformIsPure(t *testing.T) {
	clock := newClock()
	l := New(func(o *Options) { o.Now = clock.now })
	l.SetLimit("twitter", "post", 2, 100, 0)

	for i := 0; i < 50; i++ {
		l.CanPerform("twitter", "post")
	}

	entry := l.Status("twitter", "post")
	require.NotNil(t, entry)
	assert.Zero(t, entry.HourlyCount)
	assert.Zero(t, entry.DailyCount)
}

func TestWindowRollover(t *testing.T) {
	clock := newClock()
	l := New(func(o *Options) { o.Now = clock.now })
	l.SetLimit("twitter", "post", 1, 100, 0)

	ctx := context.Background()
	require.NoError(t, l.RecordAction(ctx, "twitter", "post"))
	assert.False(t, l.CanPerform("twitter", "post").Allowed)

	clock.advance(time.Hour)
	decision := l.CanPerform("twitter", "post")
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.RemainingHour)

	// Daily count survives the hourly rollover.
	require.NoError(t, l.RecordAction(ctx, "twitter", "post"))
	entry := l.Status("twitter", "post")
	assert.Equal(t, 1, entry.HourlyCount)
	assert.Equal(t, 2, entry.DailyCount)
}

func TestResetExpiredWindows(t *testing.T) {
	clock := newClock()
	mem := store.NewInMemory()
	l := New(func(o *Options) {
		o.Now = clock.now
		o.Store = mem
	})
	l.SetLimit("twitter", "post", 1, 100, 0)

	ctx := context.Background()
	require.NoError(t, l.RecordAction(ctx, "twitter", "post"))

	clock.advance(2 * time.Hour)
	l.ResetExpiredWindows(ctx)

	entry := l.Status("twitter", "post")
	assert.Zero(t, entry.HourlyCount)

	mirrored, err := mem.GetRateLimit(ctx, "twitter", "post")
	require.NoError(t, err)
	assert.Zero(t, mirrored.HourlyCount)
}

func TestRestoreFromStore(t *testing.T) {
	clock := newClock()
	mem := store.NewInMemory()
	require.NoError(t, mem.SaveRateLimit(context.Background(), &core.RateLimitEntry{
		Platform:        "twitter",
		ActionType:      "post",
		LimitPerHour:    5,
		LimitPerDay:     50,
		HourlyCount:     5,
		DailyCount:      12,
		HourWindowStart: clock.at.Add(-10 * time.Minute),
		DayWindowStart:  clock.at.Add(-10 * time.Minute),
	}))

	l := New(func(o *Options) {
		o.Now = clock.now
		o.Store = mem
	})
	require.NoError(t, l.Restore(context.Background()))

	decision := l.CanPerform("twitter", "post")
	assert.False(t, decision.Allowed)
	assert.Equal(t, core.ReasonHourlyLimit, decision.Reason)
}

func TestSync(t *testing.T) {
	mem := store.NewInMemory()
	l := New(func(o *Options) { o.Store = mem })

	require.NoError(t, l.RecordAction(context.Background(), "twitter", "post"))
	require.NoError(t, l.RecordAction(context.Background(), "linkedin", "post"))
	require.NoError(t, l.Sync(context.Background()))

	entries, err := mem.ListRateLimits(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestProcessQueueDrainsWithinQuota(t *testing.T) {
	clock := newClock()
	l := New(func(o *Options) { o.Now = clock.now })
	l.SetLimit("twitter", "post", 1, 100, 0)

	ran := 0
	for i := 0; i < 3; i++ {
		l.QueueAction(QueuedAction{
			Platform:   "twitter",
			ActionType: "post",
			Run:        func(ctx context.Context) error { ran++; return nil },
		})
	}

	report := l.ProcessQueue(context.Background())
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, report.Remaining)
	assert.Equal(t, 1, ran)

	// Nothing moves while the quota is exhausted.
	report = l.ProcessQueue(context.Background())
	assert.Zero(t, report.Processed)
	assert.Equal(t, 2, report.Remaining)

	clock.advance(time.Hour)
	report = l.ProcessQueue(context.Background())
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Remaining)
	assert.Equal(t, 2, ran)
}

func TestProcessQueueCooldownSpacing(t *testing.T) {
	clock := newClock()
	l := New(func(o *Options) { o.Now = clock.now })
	l.SetLimit("twitter", "post", 10, 100, 60)

	for i := 0; i < 2; i++ {
		l.QueueAction(QueuedAction{
			Platform:   "twitter",
			ActionType: "post",
			Run:        func(ctx context.Context) error { return nil },
		})
	}

	// The cooldown spaces queued actions out across passes.
	report := l.ProcessQueue(context.Background())
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Remaining)

	clock.advance(61 * time.Second)
	report = l.ProcessQueue(context.Background())
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Remaining)
}
