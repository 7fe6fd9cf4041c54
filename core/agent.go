package core

import (
	"context"
	"time"
)

// AgentStatus represents the lifecycle state of an agent.
//
// The status graph is fixed: agents start in StatusIdle, move to
// StatusWorking while processing a task, may park in StatusWaiting for an
// external dependency, and end a task in StatusComplete or StatusError.
// Complete and error are transient: both return to idle (error after a grace
// delay so the failure can be inspected). There is no terminal state.
type AgentStatus string

const (
	// StatusIdle indicates the agent is available for work.
	StatusIdle AgentStatus = "idle"
	// StatusWorking indicates the agent is processing a task.
	StatusWorking AgentStatus = "working"
	// StatusWaiting indicates the agent is parked on an external dependency.
	StatusWaiting AgentStatus = "waiting"
	// StatusComplete indicates the agent just finished a task successfully.
	StatusComplete AgentStatus = "complete"
	// StatusError indicates the agent's last task failed.
	StatusError AgentStatus = "error"
)

// agentTransitions encodes the allowed edges of the agent state machine.
var agentTransitions = map[AgentStatus][]AgentStatus{
	StatusIdle:     {StatusWorking, StatusError},
	StatusWorking:  {StatusIdle, StatusComplete, StatusError, StatusWaiting},
	StatusWaiting:  {StatusWorking, StatusIdle, StatusError},
	StatusComplete: {StatusIdle},
	StatusError:    {StatusIdle},
}

// CanTransition reports whether moving from s to next is an allowed edge.
func (s AgentStatus) CanTransition(next AgentStatus) bool {
	for _, allowed := range agentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known lifecycle states.
func (s AgentStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusWaiting, StatusComplete, StatusError:
		return true
	}
	return false
}

// Agent is the contract every unit of work registered with the Registry must
// satisfy. Identity and capability accessors are read-only; all lifecycle
// mutation happens inside ProcessTask, which owns the state machine.
//
// Implementations must never panic past ProcessTask: failures are captured
// and returned as a structured TaskResult with Success false.
type Agent interface {
	// ID returns the unique agent identifier used for registration and routing.
	ID() string

	// Name returns the human-readable display name.
	Name() string

	// Specialty describes the agent's primary domain in one line.
	Specialty() string

	// Capabilities lists the task types this agent can process.
	Capabilities() []string

	// Status returns the current lifecycle state.
	Status() AgentStatus

	// Snapshot returns a point-in-time copy of the agent's observable state.
	Snapshot() AgentSnapshot

	// ProcessTask executes a task, driving the state machine through
	// working and back to idle (or error). A second call issued while the
	// agent is already working is rejected with a structured failure.
	ProcessTask(ctx context.Context, task *Task) *TaskResult
}

// AgentSnapshot is a point-in-time, caller-safe copy of an agent's state.
// It is what lookups and admin surfaces return; mutating it has no effect
// on the live agent.
type AgentSnapshot struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Specialty      string      `json:"specialty"`
	Capabilities   []string    `json:"capabilities"`
	Status         AgentStatus `json:"status"`
	TasksCompleted int         `json:"tasks_completed"`
	LastActive     *time.Time  `json:"last_active,omitempty"`
	CurrentTask    *Task       `json:"current_task,omitempty"`
	LastError      string      `json:"last_error,omitempty"`
}
