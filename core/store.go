package core

import (
	"context"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record with the given identifier does
	// not exist in the underlying store.
	ErrNotFound = fmt.Errorf("record not found")
)

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	ListWorkflows(ctx context.Context, ownerID string) ([]*Workflow, error)

	// IncrementWorkflowRun bumps the workflow's run counter and stamps its
	// last-run time as one update.
	IncrementWorkflowRun(ctx context.Context, id string, at time.Time) error
}

// RunStore persists workflow run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *WorkflowRun) error
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)

	// ListRuns returns the most recent runs for a workflow, newest first,
	// capped at limit (0 means no cap).
	ListRuns(ctx context.Context, workflowID string, limit int) ([]*WorkflowRun, error)
}

// ScheduleStore persists scheduled tasks.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, id string) (*ScheduledTask, error)
	SaveSchedule(ctx context.Context, task *ScheduledTask) error
	DeleteSchedule(ctx context.Context, id string) error
	ListActiveSchedules(ctx context.Context) ([]*ScheduledTask, error)
}

// TriggerStore persists event triggers.
type TriggerStore interface {
	GetTrigger(ctx context.Context, id string) (*EventTrigger, error)
	SaveTrigger(ctx context.Context, trigger *EventTrigger) error
	DeleteTrigger(ctx context.Context, id string) error

	// ListTriggersByEvent returns all active triggers registered for the
	// exact event type.
	ListTriggersByEvent(ctx context.Context, eventType string) ([]*EventTrigger, error)

	// IncrementTriggerCount bumps the trigger's match counter.
	IncrementTriggerCount(ctx context.Context, id string) error
}

// EventStore appends durable copies of owned events.
type EventStore interface {
	AppendEvent(ctx context.Context, event Event) error
}

// RateLimitStore mirrors rate limit entries for restart recovery.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, platform, actionType string) (*RateLimitEntry, error)
	SaveRateLimit(ctx context.Context, entry *RateLimitEntry) error
	ListRateLimits(ctx context.Context) ([]*RateLimitEntry, error)
}

// Store aggregates every persistence concern the orchestration core needs.
// The in-memory implementation backs tests and local development; durable
// implementations (e.g. MongoDB) back production deployments.
type Store interface {
	WorkflowStore
	RunStore
	ScheduleStore
	TriggerStore
	EventStore
	RateLimitStore
}

// WorkflowExecutor starts workflow runs. The workflow engine implements it;
// the scheduler and event bus depend on the interface so they can be tested
// with fakes.
type WorkflowExecutor interface {
	ExecuteWorkflow(ctx context.Context, workflowID, ownerID string, input map[string]any, triggerSource string) (*WorkflowRun, error)
}

// WebhookCaller performs the outbound HTTP-like call behind webhook steps.
type WebhookCaller interface {
	Call(ctx context.Context, url, method string, body map[string]any) (map[string]any, error)
}

// EventPublisher is the narrow emission surface agents and services hold a
// reference to. The event bus implements it.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) Event
}
