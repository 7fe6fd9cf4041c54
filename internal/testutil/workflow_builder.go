package testutil

import (
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
)

// WorkflowBuilder provides a fluent helper for constructing workflows in
// tests. Example:
//
//	wf := NewWorkflowBuilder("wf-1").Owner("user-1").
//		AgentCall("writer", "generate", nil).
//		Delay(2).
//		Build()
//
// Chain only the parts you need; sensible defaults are applied (active,
// manual trigger).
type WorkflowBuilder struct {
	id          string
	ownerID     string
	name        string
	triggerType core.TriggerType
	steps       []core.Step
	inactive    bool
}

// NewWorkflowBuilder creates a builder for a workflow with the given id.
func NewWorkflowBuilder(id string) *WorkflowBuilder {
	return &WorkflowBuilder{id: id, name: id, triggerType: core.TriggerManual}
}

// Owner sets the workflow owner (chainable).
func (b *WorkflowBuilder) Owner(ownerID string) *WorkflowBuilder { b.ownerID = ownerID; return b }

// Name sets the display name (chainable).
func (b *WorkflowBuilder) Name(name string) *WorkflowBuilder { b.name = name; return b }

// Trigger sets the trigger type (chainable).
func (b *WorkflowBuilder) Trigger(t core.TriggerType) *WorkflowBuilder { b.triggerType = t; return b }

// Inactive marks the workflow as not runnable (chainable).
func (b *WorkflowBuilder) Inactive() *WorkflowBuilder { b.inactive = true; return b }

// Step appends a raw step (chainable).
func (b *WorkflowBuilder) Step(step core.Step) *WorkflowBuilder {
	b.steps = append(b.steps, step)
	return b
}

// AgentCall appends an agent-call step (chainable).
func (b *WorkflowBuilder) AgentCall(agentID, action string, config map[string]any) *WorkflowBuilder {
	return b.Step(core.Step{Type: core.StepAgentCall, AgentID: agentID, Action: action, Config: config})
}

// Condition appends a condition step (chainable).
func (b *WorkflowBuilder) Condition(field, operator string, value any) *WorkflowBuilder {
	return b.Step(core.Step{Type: core.StepCondition, Field: field, Operator: operator, Value: value})
}

// Transform appends a transform step (chainable).
func (b *WorkflowBuilder) Transform(mapping map[string]any) *WorkflowBuilder {
	return b.Step(core.Step{Type: core.StepTransform, Mapping: mapping})
}

// Delay appends a delay step (chainable).
func (b *WorkflowBuilder) Delay(seconds int) *WorkflowBuilder {
	return b.Step(core.Step{Type: core.StepDelay, DelaySeconds: seconds})
}

// Webhook appends a webhook step (chainable).
func (b *WorkflowBuilder) Webhook(url, method string) *WorkflowBuilder {
	return b.Step(core.Step{Type: core.StepWebhook, URL: url, Method: method})
}

// Build returns the assembled *core.Workflow.
func (b *WorkflowBuilder) Build() *core.Workflow {
	now := time.Now().UTC()
	return &core.Workflow{
		ID:          b.id,
		OwnerID:     b.ownerID,
		Name:        b.name,
		TriggerType: b.triggerType,
		Steps:       b.steps,
		IsActive:    !b.inactive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
