package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/internal/testutil"
)

func TestRegisterAndGet(t *testing.T) {
	r := New()
	writer := testutil.NewStubAgent("writer", "write")

	require.NoError(t, r.Register(writer))
	got, ok := r.Get("writer")
	require.True(t, ok)
	assert.Equal(t, "writer", got.ID())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testutil.NewStubAgent("writer")))

	err := r.Register(testutil.NewStubAgent("writer"))
	require.ErrorIs(t, err, ErrDuplicateAgent)

	// The original registration is untouched.
	assert.Len(t, r.All(), 1)
}

func TestUnregisterIdempotent(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testutil.NewStubAgent("writer")))

	assert.True(t, r.Unregister("writer"))
	assert.False(t, r.Unregister("writer"))
	assert.Empty(t, r.All())
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	r := New()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(testutil.NewStubAgent(id)))
	}

	var ids []string
	for _, a := range r.All() {
		ids = append(ids, a.ID())
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestByStatusAndCapability(t *testing.T) {
	r := New()
	idle := testutil.NewStubAgent("idle", "write")
	busy := testutil.NewStubAgent("busy", "write", "review").SetStatus(core.StatusWorking)
	require.NoError(t, r.Register(idle))
	require.NoError(t, r.Register(busy))

	byStatus := r.ByStatus(core.StatusIdle)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "idle", byStatus[0].ID())

	byCap := r.ByCapability("review")
	require.Len(t, byCap, 1)
	assert.Equal(t, "busy", byCap[0].ID())

	assert.Len(t, r.ByCapability("write"), 2)
}

func TestFindBestAgent(t *testing.T) {
	r := New(func(o *Options) {
		o.Preferences = map[string][]string{"write": {"specialist", "generalist"}}
	})
	specialist := testutil.NewStubAgent("specialist", "write").SetStatus(core.StatusWorking)
	generalist := testutil.NewStubAgent("generalist", "write")
	fallback := testutil.NewStubAgent("fallback", "write")
	require.NoError(t, r.Register(fallback))
	require.NoError(t, r.Register(specialist))
	require.NoError(t, r.Register(generalist))

	// The preference list wins over registration order when its agent is
	// idle.
	best := r.FindBestAgent("write")
	require.NotNil(t, best)
	assert.Equal(t, "generalist", best.ID())

	// With every preferred agent busy, capable agents are scanned in
	// registration order.
	generalist.SetStatus(core.StatusWorking)
	best = r.FindBestAgent("write")
	require.NotNil(t, best)
	assert.Equal(t, "fallback", best.ID())

	fallback.SetStatus(core.StatusWorking)
	assert.Nil(t, r.FindBestAgent("write"))
}

func TestRouteRequestExecutesIdleTarget(t *testing.T) {
	r := New()
	writer := testutil.NewStubAgent("writer").Script(core.Succeed(map[string]any{"text": "ok"}))
	require.NoError(t, r.Register(writer))

	res := r.RouteRequest(context.Background(), RouteRequest{
		From: "oracle",
		To:   "writer",
		Task: core.NewTask("write", nil),
	})
	require.True(t, res.Executed)
	assert.Equal(t, "ok", res.Result.Output["text"])
	assert.Zero(t, r.QueueLength())
}

func TestRouteRequestQueuesBusyTarget(t *testing.T) {
	r := New()
	busy := testutil.NewStubAgent("busy").SetStatus(core.StatusWorking)
	require.NoError(t, r.Register(busy))

	res := r.RouteRequest(context.Background(), RouteRequest{To: "busy", Task: core.NewTask("work", nil)})
	assert.True(t, res.Queued)
	assert.False(t, res.Executed)
	assert.Equal(t, 1, r.QueueLength())

	// The task was not delivered.
	assert.Empty(t, busy.Received)
}

func TestRouteRequestUnknownAgent(t *testing.T) {
	r := New()
	res := r.RouteRequest(context.Background(), RouteRequest{To: "ghost", Task: core.NewTask("work", nil)})
	assert.False(t, res.Executed)
	assert.False(t, res.Queued)
	assert.Equal(t, "unknown_agent", res.Reason)
}

func TestRouteRequestQueueFull(t *testing.T) {
	r := New(func(o *Options) { o.QueueCapacity = 1 })
	busy := testutil.NewStubAgent("busy").SetStatus(core.StatusWorking)
	require.NoError(t, r.Register(busy))

	first := r.RouteRequest(context.Background(), RouteRequest{To: "busy", Task: core.NewTask("t1", nil)})
	assert.True(t, first.Queued)

	second := r.RouteRequest(context.Background(), RouteRequest{To: "busy", Task: core.NewTask("t2", nil)})
	assert.False(t, second.Queued)
	assert.Equal(t, "queue_full", second.Reason)
	assert.Equal(t, 1, r.QueueLength())
}

func TestProcessQueueDrain(t *testing.T) {
	r := New()
	worker := testutil.NewStubAgent("worker").SetStatus(core.StatusWorking)
	stillBusy := testutil.NewStubAgent("still-busy").SetStatus(core.StatusWorking)
	require.NoError(t, r.Register(worker))
	require.NoError(t, r.Register(stillBusy))

	vanishing := testutil.NewStubAgent("vanishing").SetStatus(core.StatusWorking)
	require.NoError(t, r.Register(vanishing))

	r.RouteRequest(context.Background(), RouteRequest{To: "worker", Task: core.NewTask("t1", nil)})
	r.RouteRequest(context.Background(), RouteRequest{To: "still-busy", Task: core.NewTask("t2", nil)})
	r.RouteRequest(context.Background(), RouteRequest{To: "vanishing", Task: core.NewTask("t3", nil)})
	r.RouteRequest(context.Background(), RouteRequest{To: "vanishing", Task: core.NewTask("t4", nil)})
	r.Unregister("vanishing")

	// One queued target became idle before the pass.
	worker.SetStatus(core.StatusIdle)

	report := r.ProcessQueue(context.Background())
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Requeued)
	assert.Equal(t, 2, report.Dropped)
	assert.Equal(t, 1, report.Remaining)

	require.Len(t, worker.Received, 1)
	assert.Equal(t, "t1", worker.Received[0].Type)

	// The requeued entry survives for the next pass.
	stillBusy.SetStatus(core.StatusIdle)
	report = r.ProcessQueue(context.Background())
	assert.Equal(t, 1, report.Processed)
	assert.Zero(t, report.Remaining)
	require.Len(t, stillBusy.Received, 1)
}
