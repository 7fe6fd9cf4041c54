package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
)

// PreviousResultKey is the reserved payload key under which the Oracle
// injects the previous subtask's output when chaining subtasks.
const PreviousResultKey = "previousResult"

// decisionLogCap bounds the Oracle's decision log; the oldest entries are
// evicted first.
const decisionLogCap = 100

// Route maps a task type to the agent responsible for it.
type Route struct {
	AgentID    string `json:"agent_id"`
	Complexity string `json:"complexity,omitempty"`
}

// Subtask is one ordered entry of a decomposition. Payload entries are
// merged over the composite task's payload before dispatch.
type Subtask struct {
	Type    string         `json:"type"`
	Order   int            `json:"order"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Decision is one routing decision recorded for inspection.
type Decision struct {
	Timestamp time.Time `json:"timestamp"`
	TaskType  string    `json:"task_type"`
	Action    string    `json:"action"` // route, delegate, dispatch, skip
	Target    string    `json:"target,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Directory is the narrow agent lookup surface the Oracle dispatches
// through. The Registry implements it.
type Directory interface {
	Get(id string) (core.Agent, bool)
}

// Oracle is the task router: an agent that decomposes composite tasks into
// ordered subtasks and dispatches each through the directory, optionally
// chaining one subtask's output into the next.
//
// Routing is table-driven and fixed at construction: the routing table maps
// task types to agents, the decomposition table maps composite types to
// ordered subtask lists. Subtasks whose target agent is unavailable are
// skipped, not failed. Every decision lands in a bounded log.
type Oracle struct {
	*BaseAgent

	directory      Directory
	routes         map[string]Route
	decompositions map[string][]Subtask

	decisionsMu sync.Mutex
	decisions   []Decision
}

// NewOracle builds the task router. Task types present in the routing table
// dispatch directly; composite types in the decomposition table fan out into
// subtasks. Both tables together define the Oracle's capabilities.
func NewOracle(id string, directory Directory, routes map[string]Route, decompositions map[string][]Subtask, optFns ...func(o *Options)) *Oracle {
	o := &Oracle{
		directory:      directory,
		routes:         routes,
		decompositions: decompositions,
	}

	handlers := map[string]HandlerFunc{}
	for taskType := range routes {
		handlers[taskType] = o.dispatchDirect
	}
	for taskType := range decompositions {
		handlers[taskType] = o.executeComposite
	}

	o.BaseAgent = New(id, "Oracle", handlers, optFns...)
	return o
}

// Decisions returns a copy of the decision log, oldest first.
func (o *Oracle) Decisions() []Decision {
	o.decisionsMu.Lock()
	defer o.decisionsMu.Unlock()
	out := make([]Decision, len(o.decisions))
	copy(out, o.decisions)
	return out
}

// dispatchDirect routes a non-composite task straight to its mapped agent.
func (o *Oracle) dispatchDirect(ctx context.Context, task *core.Task) (map[string]any, error) {
	route, ok := o.routes[task.Type]
	if !ok {
		return nil, fmt.Errorf("no route for task type %q", task.Type)
	}

	target, ok := o.directory.Get(route.AgentID)
	if !ok {
		o.record(task.Type, "skip", route.AgentID, "agent not registered")
		return nil, fmt.Errorf("agent %s not registered", route.AgentID)
	}

	o.record(task.Type, "route", route.AgentID, "")
	result := target.ProcessTask(ctx, core.NewTask(task.Type, task.Payload))
	if !result.Success {
		return nil, fmt.Errorf("agent %s failed task %s: %s", route.AgentID, task.Type, result.Error)
	}
	return result.Output, nil
}

// executeComposite fans a composite task out into its ordered subtasks.
//
// A decomposition with exactly one subtask routed to another agent is a pure
// delegation. Otherwise subtasks run in ascending order; each successful
// output is injected into the next subtask's payload under PreviousResultKey,
// subtasks with no available agent are skipped, and all results aggregate
// into one composite output.
func (o *Oracle) executeComposite(ctx context.Context, task *core.Task) (map[string]any, error) {
	subtasks := append([]Subtask(nil), o.decompositions[task.Type]...)
	if len(subtasks) == 0 {
		return nil, fmt.Errorf("no decomposition for task type %q", task.Type)
	}
	sort.SliceStable(subtasks, func(i, j int) bool { return subtasks[i].Order < subtasks[j].Order })

	if len(subtasks) == 1 {
		if route, ok := o.routes[subtasks[0].Type]; ok && route.AgentID != o.ID() {
			o.record(task.Type, "delegate", route.AgentID, subtasks[0].Type)
			sub := core.NewTask(subtasks[0].Type, mergePayload(task.Payload, subtasks[0].Payload))
			return o.dispatchDirect(ctx, sub)
		}
	}

	var (
		entries   []map[string]any
		previous  map[string]any
		completed int
		skipped   int
	)

	for _, sub := range subtasks {
		route, ok := o.routes[sub.Type]
		if !ok {
			o.record(task.Type, "skip", "", fmt.Sprintf("no route for subtask %s", sub.Type))
			skipped++
			entries = append(entries, map[string]any{"type": sub.Type, "skipped": true, "reason": "no_route"})
			continue
		}

		target, found := o.directory.Get(route.AgentID)
		if !found || target.Status() != core.StatusIdle {
			o.record(task.Type, "skip", route.AgentID, fmt.Sprintf("agent unavailable for subtask %s", sub.Type))
			skipped++
			entries = append(entries, map[string]any{"type": sub.Type, "agent_id": route.AgentID, "skipped": true, "reason": "agent_unavailable"})
			continue
		}

		payload := mergePayload(task.Payload, sub.Payload)
		if previous != nil {
			payload[PreviousResultKey] = previous
		}

		o.record(task.Type, "dispatch", route.AgentID, sub.Type)
		result := target.ProcessTask(ctx, core.NewTask(sub.Type, payload))

		entry := map[string]any{"type": sub.Type, "agent_id": route.AgentID, "success": result.Success}
		if result.Success {
			entry["output"] = result.Output
			previous = result.Output
			completed++
		} else {
			entry["error"] = result.Error
		}
		entries = append(entries, entry)
	}

	return map[string]any{
		"subtasks":  entries,
		"completed": completed,
		"skipped":   skipped,
	}, nil
}

// record appends one decision, evicting the oldest past the cap.
func (o *Oracle) record(taskType, action, target, detail string) {
	o.decisionsMu.Lock()
	defer o.decisionsMu.Unlock()
	o.decisions = append(o.decisions, Decision{
		Timestamp: time.Now().UTC(),
		TaskType:  taskType,
		Action:    action,
		Target:    target,
		Detail:    detail,
	})
	if len(o.decisions) > decisionLogCap {
		o.decisions = o.decisions[len(o.decisions)-decisionLogCap:]
	}
}

// mergePayload overlays sub-specific payload entries on the composite
// payload without mutating either input.
func mergePayload(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
