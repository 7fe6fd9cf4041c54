// Package registry provides the agent directory and inter-agent message
// router. A Registry instance is constructed explicitly and passed to every
// component that needs it; there is no package-level singleton.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/logging"
)

var (
	// ErrDuplicateAgent is returned when registering an id that already
	// exists. Registration never overwrites silently.
	ErrDuplicateAgent = fmt.Errorf("agent id already registered")
)

// DefaultQueueCapacity bounds the routing queue. A full queue rejects new
// routed requests instead of growing without bound.
const DefaultQueueCapacity = 256

// RouteRequest asks the registry to deliver a task from one agent (or
// external caller) to another.
type RouteRequest struct {
	From string     `json:"from"`
	To   string     `json:"to"`
	Task *core.Task `json:"task"`
}

// RouteResult reports what happened to a routed request: executed
// immediately (Result carries the outcome), queued for a later
// ProcessQueue pass, or rejected with a reason.
type RouteResult struct {
	Executed bool             `json:"executed"`
	Queued   bool             `json:"queued"`
	Result   *core.TaskResult `json:"result,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// QueueReport summarizes one ProcessQueue pass.
type QueueReport struct {
	Processed int `json:"processed"`
	Requeued  int `json:"requeued"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// Options configures a Registry.
type Options struct {
	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// QueueCapacity bounds the routing queue (DefaultQueueCapacity if 0).
	QueueCapacity int

	// Preferences maps a task type to an ordered agent-id candidate list
	// consulted first by FindBestAgent.
	Preferences map[string][]string
}

// Registry is the directory of live agents plus the FIFO routing queue for
// requests whose target was busy. The queue is global, not per target
// agent: queued order is preserved across targets.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
	order  []string // registration order, for deterministic candidate scans

	queueMu  sync.Mutex
	queue    []RouteRequest
	queueCap int

	preferences map[string][]string
	logger      logging.Logger
}

// New constructs an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		QueueCapacity: DefaultQueueCapacity,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}

	return &Registry{
		agents:      make(map[string]core.Agent),
		queueCap:    opts.QueueCapacity,
		preferences: opts.Preferences,
		logger:      opts.Logger,
	}
}

// Register adds an agent to the directory. Registering a duplicate id is
// rejected, not overwritten.
func (r *Registry) Register(a core.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.ID())
	}
	r.agents[a.ID()] = a
	r.order = append(r.order, a.ID())
	r.logger.Info("agent registered", "agent_id", a.ID(), "capabilities", a.Capabilities())
	return nil
}

// Unregister removes an agent by id. It is idempotent; removing an unknown
// id is a no-op returning false.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; !exists {
		return false
	}
	delete(r.agents, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("agent unregistered", "agent_id", id)
	return true
}

// Get retrieves a registered agent by id.
func (r *Registry) Get(id string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// All returns every registered agent in registration order.
func (r *Registry) All() []core.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// ByStatus returns agents currently in the given lifecycle state.
func (r *Registry) ByStatus(status core.AgentStatus) []core.Agent {
	var out []core.Agent
	for _, a := range r.All() {
		if a.Status() == status {
			out = append(out, a)
		}
	}
	return out
}

// ByCapability returns agents able to process the given task type.
func (r *Registry) ByCapability(taskType string) []core.Agent {
	var out []core.Agent
	for _, a := range r.All() {
		if hasCapability(a, taskType) {
			out = append(out, a)
		}
	}
	return out
}

// FindBestAgent returns the first idle candidate for a task type: the
// configured preference list is scanned first, then capable agents in
// registration order. It returns nil when no idle candidate exists; callers
// must handle nil by queueing.
func (r *Registry) FindBestAgent(taskType string) core.Agent {
	for _, id := range r.preferences[taskType] {
		if a, ok := r.Get(id); ok && a.Status() == core.StatusIdle {
			return a
		}
	}
	for _, a := range r.ByCapability(taskType) {
		if a.Status() == core.StatusIdle {
			return a
		}
	}
	return nil
}

// RouteRequest delivers a task to its target agent. An idle target executes
// immediately and the result is handed back to the requester. A busy target
// appends the request to the routing queue and returns without executing.
func (r *Registry) RouteRequest(ctx context.Context, req RouteRequest) RouteResult {
	if req.Task == nil {
		return RouteResult{Reason: "nil_task", Result: core.Fail("nil task")}
	}

	target, ok := r.Get(req.To)
	if !ok {
		return RouteResult{
			Reason: "unknown_agent",
			Result: core.FailWithReason(fmt.Sprintf("agent %s not registered", req.To), "unknown_agent"),
		}
	}

	if target.Status() != core.StatusIdle {
		if !r.enqueue(req) {
			return RouteResult{
				Reason: "queue_full",
				Result: core.FailWithReason("routing queue is full", "queue_full"),
			}
		}
		r.logger.Debug("request queued", "from", req.From, "to", req.To, "task_type", req.Task.Type)
		return RouteResult{Queued: true}
	}

	result := target.ProcessTask(ctx, req.Task)
	return RouteResult{Executed: true, Result: result}
}

// ProcessQueue drains the routing queue once. Each queued request is
// re-attempted in FIFO order against the current agent directory: idle
// targets execute, requests whose target vanished are dropped, and requests
// whose target is still busy are re-queued at the tail so a later pass can
// retry them. Entries taken at the start of the pass are visited exactly
// once, keeping draining deterministic.
func (r *Registry) ProcessQueue(ctx context.Context) QueueReport {
	r.queueMu.Lock()
	pending := r.queue
	r.queue = nil
	r.queueMu.Unlock()

	var report QueueReport
	for _, req := range pending {
		target, ok := r.Get(req.To)
		if !ok {
			r.logger.Warn("dropping queued request for unregistered agent", "to", req.To, "task_type", req.Task.Type)
			report.Dropped++
			continue
		}
		if target.Status() != core.StatusIdle {
			if r.enqueue(req) {
				report.Requeued++
			} else {
				report.Dropped++
			}
			continue
		}
		result := target.ProcessTask(ctx, req.Task)
		if result.Success {
			report.Processed++
		} else if result.Reason == "agent_busy" {
			// Lost the race for the agent since the status check.
			if r.enqueue(req) {
				report.Requeued++
			} else {
				report.Dropped++
			}
		} else {
			report.Processed++
		}
	}

	report.Remaining = r.QueueLength()
	return report
}

// QueueLength returns the number of requests currently queued.
func (r *Registry) QueueLength() int {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return len(r.queue)
}

func (r *Registry) enqueue(req RouteRequest) bool {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if len(r.queue) >= r.queueCap {
		return false
	}
	r.queue = append(r.queue, req)
	return true
}

func hasCapability(a core.Agent, taskType string) bool {
	for _, c := range a.Capabilities() {
		if c == taskType {
			return true
		}
	}
	return false
}
