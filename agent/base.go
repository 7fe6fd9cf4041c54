package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/logging"
)

// StatusChangedEvent is the event type published on every agent state
// transition. The payload carries agent_id, from and to.
const StatusChangedEvent = "agent.status_changed"

// DefaultErrorGrace is how long an agent stays in the error state before
// automatically returning to idle, leaving a window for inspection.
const DefaultErrorGrace = 30 * time.Second

// HandlerFunc processes one task type. The returned map is merged into the
// structured TaskResult output. Returning an error (or panicking) drives the
// agent through the error state; it never escapes ProcessTask.
type HandlerFunc func(ctx context.Context, task *core.Task) (map[string]any, error)

// Options configures a BaseAgent.
type Options struct {
	// Specialty is a one-line description of the agent's domain.
	Specialty string

	// Publisher receives status change notifications. Nil disables them.
	Publisher core.EventPublisher

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// ErrorGrace overrides the delay before error auto-returns to idle.
	ErrorGrace time.Duration
}

// BaseAgent implements core.Agent with a command-table dispatch: a map from
// task type to handler, fixed at construction, replaces dynamic switching on
// task.Type. Embed it in concrete agents or use it directly with a handler
// table.
//
// All lifecycle state is private and mutated only through the state machine;
// lookups observe it via Snapshot.
type BaseAgent struct {
	id           string
	name         string
	specialty    string
	capabilities []string
	handlers     map[string]HandlerFunc

	mu             sync.Mutex
	status         core.AgentStatus
	tasksCompleted int
	lastActive     *time.Time
	currentTask    *core.Task
	lastError      string

	publisher  core.EventPublisher
	logger     logging.Logger
	errorGrace time.Duration
	now        func() time.Time
}

// New constructs a BaseAgent in the idle state. The handler table fixes the
// agent's capabilities: its keys, sorted, become the capability set. Nil
// handlers are dropped.
func New(id, name string, handlers map[string]HandlerFunc, optFns ...func(o *Options)) *BaseAgent {
	opts := Options{
		Logger:     logging.NoOpLogger{},
		ErrorGrace: DefaultErrorGrace,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	table := make(map[string]HandlerFunc, len(handlers))
	capabilities := make([]string, 0, len(handlers))
	for taskType, h := range handlers {
		if h == nil {
			continue
		}
		table[taskType] = h
		capabilities = append(capabilities, taskType)
	}
	sort.Strings(capabilities)

	return &BaseAgent{
		id:           id,
		name:         name,
		specialty:    opts.Specialty,
		capabilities: capabilities,
		handlers:     table,
		status:       core.StatusIdle,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		errorGrace:   opts.ErrorGrace,
		now:          time.Now,
	}
}

// ID returns the unique agent identifier.
func (b *BaseAgent) ID() string { return b.id }

// Name returns the display name.
func (b *BaseAgent) Name() string { return b.name }

// Specialty returns the one-line domain description.
func (b *BaseAgent) Specialty() string { return b.specialty }

// Capabilities returns the task types this agent can process.
func (b *BaseAgent) Capabilities() []string {
	out := make([]string, len(b.capabilities))
	copy(out, b.capabilities)
	return out
}

// Status returns the current lifecycle state.
func (b *BaseAgent) Status() core.AgentStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Snapshot returns a point-in-time copy of the agent's observable state.
func (b *BaseAgent) Snapshot() core.AgentSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := core.AgentSnapshot{
		ID:             b.id,
		Name:           b.name,
		Specialty:      b.specialty,
		Capabilities:   append([]string(nil), b.capabilities...),
		Status:         b.status,
		TasksCompleted: b.tasksCompleted,
		LastError:      b.lastError,
	}
	if b.lastActive != nil {
		la := *b.lastActive
		snap.LastActive = &la
	}
	if b.currentTask != nil {
		task := *b.currentTask
		snap.CurrentTask = &task
	}
	return snap
}

// ProcessTask executes a task through the agent state machine.
//
// Contract: it never panics past its boundary and never leaves the agent in
// the working state. On success the agent returns to idle with its completed
// counter incremented; on failure it transitions to error and automatically
// returns to idle after the configured grace delay. A call issued while the
// agent is already working is rejected with a structured busy result.
func (b *BaseAgent) ProcessTask(ctx context.Context, task *core.Task) (result *core.TaskResult) {
	if task == nil {
		return core.Fail("nil task")
	}

	if !b.transition(ctx, core.StatusWorking, func() {
		taskCopy := *task
		b.currentTask = &taskCopy
	}) {
		return core.FailWithReason(
			fmt.Sprintf("agent %s is %s and cannot accept task %s", b.id, b.Status(), task.Type),
			"agent_busy",
		)
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("agent handler panicked", "agent_id", b.id, "task_type", task.Type, "panic", r)
			b.recordFailure(ctx, fmt.Sprintf("handler panic: %v", r))
			result = core.Fail(fmt.Sprintf("handler panic: %v", r))
		}
	}()

	handler, ok := b.handlers[task.Type]
	if !ok {
		b.recordFailure(ctx, fmt.Sprintf("unknown task type %q", task.Type))
		return core.FailWithReason(fmt.Sprintf("agent %s has no handler for task type %q", b.id, task.Type), "unknown_task_type")
	}

	start := b.now()
	output, err := handler(ctx, task)
	if err != nil {
		b.logger.Error("agent task failed", "agent_id", b.id, "task_type", task.Type, "error", err)
		b.recordFailure(ctx, err.Error())
		return core.Fail(err.Error())
	}

	b.recordSuccess(ctx)
	b.logger.Debug("agent task completed", "agent_id", b.id, "task_type", task.Type, "duration", b.now().Sub(start))
	return core.Succeed(output)
}

// MarkWaiting parks a working agent on an external dependency. It reports
// whether the transition applied.
func (b *BaseAgent) MarkWaiting(ctx context.Context) bool {
	return b.transition(ctx, core.StatusWaiting, nil)
}

// ResumeWork moves a waiting agent back to working. It reports whether the
// transition applied.
func (b *BaseAgent) ResumeWork(ctx context.Context) bool {
	return b.transition(ctx, core.StatusWorking, nil)
}

// recordSuccess walks working -> complete -> idle and updates counters. A
// handler that returns success while the agent is still parked in waiting
// is resumed first so the completion counts like any other.
func (b *BaseAgent) recordSuccess(ctx context.Context) {
	if b.Status() == core.StatusWaiting {
		b.transition(ctx, core.StatusWorking, nil)
	}
	b.transition(ctx, core.StatusComplete, func() {
		b.tasksCompleted++
		now := b.now().UTC()
		b.lastActive = &now
		b.currentTask = nil
		b.lastError = ""
	})
	b.transition(ctx, core.StatusIdle, nil)
}

// recordFailure transitions to error and schedules the automatic return to
// idle after the grace delay.
func (b *BaseAgent) recordFailure(ctx context.Context, errMsg string) {
	b.transition(ctx, core.StatusError, func() {
		now := b.now().UTC()
		b.lastActive = &now
		b.currentTask = nil
		b.lastError = errMsg
	})

	time.AfterFunc(b.errorGrace, func() {
		b.mu.Lock()
		stillErrored := b.status == core.StatusError
		b.mu.Unlock()
		if stillErrored {
			b.transition(context.Background(), core.StatusIdle, nil)
		}
	})
}

// transition applies one state machine edge, running apply under the lock,
// and publishes the change notification outside it. Disallowed edges are
// rejected without side effects.
func (b *BaseAgent) transition(ctx context.Context, next core.AgentStatus, apply func()) bool {
	b.mu.Lock()
	from := b.status
	if !from.CanTransition(next) {
		b.mu.Unlock()
		return false
	}
	b.status = next
	if apply != nil {
		apply()
	}
	b.mu.Unlock()

	if b.publisher != nil {
		b.publisher.Publish(ctx, StatusChangedEvent, map[string]any{
			"agent_id": b.id,
			"from":     string(from),
			"to":       string(next),
		})
	}
	return true
}
