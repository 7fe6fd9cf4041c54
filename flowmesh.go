// Package flowmesh provides a high-level façade over the orchestration core:
// the agent registry, workflow engine, cron scheduler, event bus and rate
// limiter. Most applications interact with this package by:
//  1. Creating a Mesh via New() (optionally overriding the default in-memory store)
//  2. Registering one or more agents (base agents, the Oracle router, custom implementations)
//  3. Creating workflows and starting them manually, on a cron schedule or from event triggers
//
// The façade delegates execution to engine.Engine and timing to
// scheduler.Scheduler while keeping setup and usage ergonomics concise. All
// defaults are safe for local development and testing; production
// deployments typically supply a durable store (store/mongo), a Redis rate
// limit mirror (store/redis) and a structured logger.
package flowmesh

import (
	"context"
	"time"

	"github.com/flowmesh-ai/flowmesh/bus"
	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/engine"
	"github.com/flowmesh-ai/flowmesh/limiter"
	"github.com/flowmesh-ai/flowmesh/logging"
	"github.com/flowmesh-ai/flowmesh/registry"
	"github.com/flowmesh-ai/flowmesh/scheduler"
	"github.com/flowmesh-ai/flowmesh/store"
	"github.com/flowmesh-ai/flowmesh/webhook"
)

// Sweep cadences for the background maintenance hosted by the scheduler.
const (
	rateLimitSweepInterval  = time.Minute
	routeQueueSweepInterval = 5 * time.Second
)

// Options configures the Mesh instance.
type Options struct {
	// Store backs workflows, runs, schedules, triggers, events and rate
	// limits. Defaults to the in-memory implementation.
	Store core.Store

	// RateLimitStore optionally mirrors limiter state separately from Store
	// (e.g. store/redis). Defaults to Store.
	RateLimitStore core.RateLimitStore

	// Webhook performs outbound calls for workflow webhook steps. Defaults
	// to an HTTP caller with sane timeouts.
	Webhook core.WebhookCaller

	// Callbacks hook into workflow step execution.
	Callbacks engine.Callbacks

	// Preferences maps task types to ordered agent-id candidate lists for
	// registry routing.
	Preferences map[string][]string

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the orchestration components.
type Mesh struct {
	store     core.Store
	registry  *registry.Registry
	bus       *bus.Bus
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	limiter   *limiter.Limiter
	logger    logging.Logger
}

// New creates a new Mesh with optional overrides. Any unset service is
// initialized with an in-memory implementation. Call Start to load persisted
// schedules and begin background maintenance.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{
		Store:  store.NewInMemory(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RateLimitStore == nil {
		opts.RateLimitStore = opts.Store
	}
	if opts.Webhook == nil {
		opts.Webhook = webhook.NewCaller()
	}

	reg := registry.New(func(o *registry.Options) {
		o.Logger = opts.Logger
		o.Preferences = opts.Preferences
	})

	eng := engine.New(opts.Store, opts.Store, reg, func(o *engine.Options) {
		o.Webhook = opts.Webhook
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	b := bus.New(func(o *bus.Options) {
		o.Triggers = opts.Store
		o.Events = opts.Store
		o.Executor = eng
		o.Logger = opts.Logger
	})

	lim := limiter.New(func(o *limiter.Options) {
		o.Store = opts.RateLimitStore
		o.Logger = opts.Logger
	})

	sched := scheduler.New(opts.Store, eng, func(o *scheduler.Options) {
		o.Logger = opts.Logger
	})

	m := &Mesh{
		store:     opts.Store,
		registry:  reg,
		bus:       b,
		engine:    eng,
		scheduler: sched,
		limiter:   lim,
		logger:    opts.Logger,
	}

	sched.AddSweep("rate-limit-windows", rateLimitSweepInterval, lim.ResetExpiredWindows)
	sched.AddSweep("rate-limit-queue", rateLimitSweepInterval, func(ctx context.Context) {
		lim.ProcessQueue(ctx)
	})
	sched.AddSweep("route-queue", routeQueueSweepInterval, func(ctx context.Context) {
		reg.ProcessQueue(ctx)
	})

	return m
}

// Start restores rate limit state, loads persisted schedules (recovering
// missed runs) and launches the background sweeps.
func (m *Mesh) Start(ctx context.Context) error {
	if err := m.limiter.Restore(ctx); err != nil {
		return err
	}
	return m.scheduler.Start(ctx)
}

// Shutdown stops the scheduler and its sweeps, waits for in-flight trigger
// evaluation and mirrors the final rate limit state.
func (m *Mesh) Shutdown(ctx context.Context) error {
	if err := m.scheduler.Shutdown(ctx); err != nil {
		return err
	}
	m.bus.Wait()
	return m.limiter.Sync(ctx)
}

// Registry returns the agent directory for direct routing use.
func (m *Mesh) Registry() *registry.Registry { return m.registry }

// Bus returns the event bus for direct subscription use.
func (m *Mesh) Bus() *bus.Bus { return m.bus }

// Limiter returns the rate limiter for direct gating use.
func (m *Mesh) Limiter() *limiter.Limiter { return m.limiter }

// RegisterAgent adds an agent to the registry.
func (m *Mesh) RegisterAgent(a core.Agent) error { return m.registry.Register(a) }

// UnregisterAgent removes an agent by id.
func (m *Mesh) UnregisterAgent(id string) bool { return m.registry.Unregister(id) }

// Agents returns a snapshot of every registered agent.
func (m *Mesh) Agents() []core.AgentSnapshot {
	all := m.registry.All()
	out := make([]core.AgentSnapshot, 0, len(all))
	for _, a := range all {
		out = append(out, a.Snapshot())
	}
	return out
}

// SaveWorkflow persists a workflow definition.
func (m *Mesh) SaveWorkflow(ctx context.Context, wf *core.Workflow) error {
	return m.store.SaveWorkflow(ctx, wf)
}

// Workflows lists an owner's workflow definitions.
func (m *Mesh) Workflows(ctx context.Context, ownerID string) ([]*core.Workflow, error) {
	return m.store.ListWorkflows(ctx, ownerID)
}

// ExecuteWorkflow starts a workflow run and blocks until it finishes.
func (m *Mesh) ExecuteWorkflow(ctx context.Context, workflowID, ownerID string, input map[string]any) (*core.WorkflowRun, error) {
	return m.engine.ExecuteWorkflow(ctx, workflowID, ownerID, input, "manual")
}

// RunHistory returns the most recent runs of a workflow, newest first.
func (m *Mesh) RunHistory(ctx context.Context, workflowID string, limit int) ([]*core.WorkflowRun, error) {
	return m.engine.RunHistory(ctx, workflowID, limit)
}

// Emit publishes an event through the bus, returning the enriched event.
func (m *Mesh) Emit(ctx context.Context, eventType string, payload map[string]any) core.Event {
	return m.bus.Emit(ctx, eventType, payload)
}

// Subscribe registers an event handler for a glob pattern and returns an
// unsubscribe function.
func (m *Mesh) Subscribe(pattern string, handler bus.Handler) func() {
	return m.bus.Subscribe(pattern, handler)
}

// CreateTrigger binds an event type (with optional payload conditions) to a
// workflow.
func (m *Mesh) CreateTrigger(ctx context.Context, workflowID, eventType string, conditions map[string]any) (*core.EventTrigger, error) {
	trigger := &core.EventTrigger{
		ID:         core.NewID(),
		WorkflowID: workflowID,
		EventType:  eventType,
		Conditions: conditions,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.SaveTrigger(ctx, trigger); err != nil {
		return nil, err
	}
	return trigger, nil
}

// DeleteTrigger removes an event trigger.
func (m *Mesh) DeleteTrigger(ctx context.Context, id string) error {
	return m.store.DeleteTrigger(ctx, id)
}

// CreateSchedule binds a workflow to a cron expression.
func (m *Mesh) CreateSchedule(ctx context.Context, workflowID, cronExpression, timezone string) (*core.ScheduledTask, error) {
	return m.scheduler.CreateTask(ctx, workflowID, cronExpression, timezone)
}

// PauseSchedule deactivates a schedule.
func (m *Mesh) PauseSchedule(ctx context.Context, id string) error {
	return m.scheduler.PauseTask(ctx, id)
}

// ResumeSchedule reactivates a schedule.
func (m *Mesh) ResumeSchedule(ctx context.Context, id string) error {
	return m.scheduler.ResumeTask(ctx, id)
}

// DeleteSchedule removes a schedule.
func (m *Mesh) DeleteSchedule(ctx context.Context, id string) error {
	return m.scheduler.DeleteTask(ctx, id)
}

// SetRateLimit configures the limits for one (platform, action) pair.
func (m *Mesh) SetRateLimit(platform, actionType string, perHour, perDay, cooldownSeconds int) {
	m.limiter.SetLimit(platform, actionType, perHour, perDay, cooldownSeconds)
}

// CanPerform checks quota for a (platform, action) pair without consuming it.
func (m *Mesh) CanPerform(platform, actionType string) core.RateLimitDecision {
	return m.limiter.CanPerform(platform, actionType)
}

// RateLimits returns a copy of every tracked rate limit entry.
func (m *Mesh) RateLimits() []*core.RateLimitEntry { return m.limiter.List() }
