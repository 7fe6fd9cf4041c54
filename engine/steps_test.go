package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/internal/testutil"
)

type fakeWebhook struct {
	url      string
	method   string
	body     map[string]any
	response map[string]any
	err      error
}

func (f *fakeWebhook) Call(_ context.Context, url, method string, body map[string]any) (map[string]any, error) {
	f.url, f.method, f.body = url, method, body
	return f.response, f.err
}

func TestExecuteStepUnknownType(t *testing.T) {
	e := New(nil, nil, dirMap{})
	_, err := e.executeStep(context.Background(), &core.Step{Type: "mystery"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step type")
}

func TestExecuteAgentCall(t *testing.T) {
	agent := testutil.NewStubAgent("writer").Script(core.Succeed(map[string]any{"text": "done"}))
	e := New(nil, nil, dirMap{"writer": agent})

	step := &core.Step{
		Type:    core.StepAgentCall,
		AgentID: "writer",
		Action:  "generate",
		Config:  map[string]any{"style": "short", "topic": "override"},
	}
	out, err := e.executeAgentCall(context.Background(), step, map[string]any{"topic": "go"})
	require.NoError(t, err)
	assert.Equal(t, "done", out["text"])

	// Step config overlays the accumulated data.
	require.Len(t, agent.Received, 1)
	task := agent.Received[0]
	assert.Equal(t, "generate", task.Type)
	assert.Equal(t, "short", task.Payload["style"])
	assert.Equal(t, "override", task.Payload["topic"])
}

func TestExecuteAgentCallFailures(t *testing.T) {
	failing := testutil.NewStubAgent("flaky").Script(core.Fail("model unavailable"))
	e := New(nil, nil, dirMap{"flaky": failing})

	_, err := e.executeAgentCall(context.Background(), &core.Step{Type: core.StepAgentCall, AgentID: "ghost", Action: "do"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	_, err = e.executeAgentCall(context.Background(), &core.Step{Type: core.StepAgentCall, Action: "do"}, nil)
	require.Error(t, err)

	_, err = e.executeAgentCall(context.Background(), &core.Step{Type: core.StepAgentCall, AgentID: "flaky", Action: "do"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestExecuteCondition(t *testing.T) {
	e := New(nil, nil, dirMap{})
	data := map[string]any{
		"score": 7.5,
		"state": "ready",
		"tags":  []any{"news", "tech"},
		"stats": map[string]any{"views": 120},
	}

	tests := []struct {
		name     string
		field    string
		operator string
		value    any
		want     bool
	}{
		{"equals match", "state", CondEquals, "ready", true},
		{"equals mismatch", "state", CondEquals, "done", false},
		{"not equals", "state", CondNotEquals, "done", true},
		{"contains string", "state", CondContains, "read", true},
		{"contains array", "tags", CondContains, "tech", true},
		{"contains array miss", "tags", CondContains, "sports", false},
		{"greater than", "score", CondGreaterThan, 5, true},
		{"greater than miss", "score", CondGreaterThan, 10, false},
		{"less than", "score", CondLessThan, 10, true},
		{"nested path", "stats.views", CondGreaterThan, 100, true},
		{"missing field numeric", "missing", CondGreaterThan, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &core.Step{Type: core.StepCondition, Field: tt.field, Operator: tt.operator, Value: tt.value}
			out, err := e.executeCondition(step, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[ConditionMetKey])
		})
	}
}

func TestExecuteConditionErrors(t *testing.T) {
	e := New(nil, nil, dirMap{})

	_, err := e.executeCondition(&core.Step{Type: core.StepCondition, Field: "x", Operator: "between", Value: 1}, map[string]any{"x": 1})
	require.Error(t, err)

	_, err = e.executeCondition(&core.Step{Type: core.StepCondition, Field: "x", Operator: CondGreaterThan, Value: "high"}, map[string]any{"x": 1})
	require.Error(t, err)
}

func TestExecuteTransform(t *testing.T) {
	e := New(nil, nil, dirMap{})
	data := map[string]any{
		"text":  "hello",
		"stats": map[string]any{"views": 120.0},
	}

	step := &core.Step{Type: core.StepTransform, Mapping: map[string]any{
		"message":       "$text",
		"meta.views":    "$stats.views",
		"meta.source":   "pipeline",
		"missing_field": "$nope",
	}}
	out, err := e.executeTransform(step, data)
	require.NoError(t, err)

	assert.Equal(t, "hello", out["message"])
	meta, ok := out["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 120.0, meta["views"])
	assert.Equal(t, "pipeline", meta["source"])

	// References to missing fields are skipped, not nulled.
	_, present := out["missing_field"]
	assert.False(t, present)
}

func TestExecuteDelay(t *testing.T) {
	e := New(nil, nil, dirMap{})

	out, err := e.executeDelay(context.Background(), &core.Step{Type: core.StepDelay, DelaySeconds: 0})
	require.NoError(t, err)
	assert.Empty(t, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err = e.executeDelay(ctx, &core.Step{Type: core.StepDelay, DelaySeconds: 30})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecuteWebhook(t *testing.T) {
	hook := &fakeWebhook{response: map[string]any{"status": "ok"}}
	e := New(nil, nil, dirMap{}, func(o *Options) { o.Webhook = hook })

	out, err := e.executeWebhook(context.Background(), &core.Step{Type: core.StepWebhook, URL: "https://example.com/notify"}, map[string]any{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "POST", hook.method)
	assert.Equal(t, "https://example.com/notify", hook.url)
	assert.Equal(t, "1", hook.body["id"])

	hook.err = fmt.Errorf("connection refused")
	_, err = e.executeWebhook(context.Background(), &core.Step{Type: core.StepWebhook, URL: "https://example.com/notify", Method: "PUT"}, nil)
	require.Error(t, err)
	assert.Equal(t, "PUT", hook.method)
}

func TestExecuteWebhookUnconfigured(t *testing.T) {
	e := New(nil, nil, dirMap{})
	_, err := e.executeWebhook(context.Background(), &core.Step{Type: core.StepWebhook, URL: "https://example.com"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webhook caller")
}
