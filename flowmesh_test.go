package flowmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-ai/flowmesh/agent"
	"github.com/flowmesh-ai/flowmesh/core"
)

func newWriterAgent() *agent.BaseAgent {
	return agent.New("writer", "Writer", map[string]agent.HandlerFunc{
		"write": func(_ context.Context, task *core.Task) (map[string]any, error) {
			return map[string]any{"text": "draft about " + task.Payload["topic"].(string)}, nil
		},
	})
}

func TestMeshManualWorkflow(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterAgent(newWriterAgent()))

	wf := &core.Workflow{
		ID:          "wf-1",
		OwnerID:     "user-1",
		Name:        "write post",
		TriggerType: core.TriggerManual,
		IsActive:    true,
		Steps: []core.Step{
			{Type: core.StepAgentCall, AgentID: "writer", Action: "write"},
			{Type: core.StepTransform, Mapping: map[string]any{"result": "$text"}},
		},
	}
	require.NoError(t, m.SaveWorkflow(context.Background(), wf))

	run, err := m.ExecuteWorkflow(context.Background(), "wf-1", "user-1", map[string]any{"topic": "go"})
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, run.Status)
	assert.Equal(t, "draft about go", run.OutputData["result"])

	history, err := m.RunHistory(context.Background(), "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, run.ID, history[0].ID)
}

func TestMeshEventTriggerStartsWorkflow(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterAgent(newWriterAgent()))

	wf := &core.Workflow{
		ID:          "wf-1",
		TriggerType: core.TriggerEvent,
		IsActive:    true,
		Steps: []core.Step{
			{Type: core.StepAgentCall, AgentID: "writer", Action: "write"},
		},
	}
	require.NoError(t, m.SaveWorkflow(context.Background(), wf))

	_, err := m.CreateTrigger(context.Background(), "wf-1", "topic.requested",
		map[string]any{"priority": map[string]any{core.OpGTE: 5}})
	require.NoError(t, err)

	m.Emit(context.Background(), "topic.requested", map[string]any{"topic": "go", "priority": 9})
	m.Bus().Wait()

	history, err := m.RunHistory(context.Background(), "wf-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "event:topic.requested", history[0].TriggerSource)

	// Below-threshold events do not fire the trigger.
	m.Emit(context.Background(), "topic.requested", map[string]any{"topic": "go", "priority": 1})
	m.Bus().Wait()
	history, err = m.RunHistory(context.Background(), "wf-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMeshScheduleLifecycle(t *testing.T) {
	m := New()

	task, err := m.CreateSchedule(context.Background(), "wf-1", "0 9 * * *", "")
	require.NoError(t, err)
	assert.True(t, task.NextRunAt.After(time.Now().Add(-time.Minute)))

	require.NoError(t, m.PauseSchedule(context.Background(), task.ID))
	require.NoError(t, m.ResumeSchedule(context.Background(), task.ID))
	require.NoError(t, m.DeleteSchedule(context.Background(), task.ID))
}

func TestMeshRateLimitSurface(t *testing.T) {
	m := New()
	m.SetRateLimit("twitter", "post", 1, 10, 0)

	require.True(t, m.CanPerform("twitter", "post").Allowed)
	require.NoError(t, m.Limiter().RecordAction(context.Background(), "twitter", "post"))

	decision := m.CanPerform("twitter", "post")
	assert.False(t, decision.Allowed)
	assert.Equal(t, core.ReasonHourlyLimit, decision.Reason)

	entries := m.RateLimits()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].HourlyCount)
}
