package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
)

// StubAgent is a scripted core.Agent for tests. Each ProcessTask call pops
// the next scripted result; once the script is exhausted it returns a
// generic success echoing the task payload. The stub records every task it
// receives so tests can assert on routing.
type StubAgent struct {
	mu       sync.Mutex
	id       string
	caps     []string
	status   core.AgentStatus
	script   []*core.TaskResult
	Received []*core.Task
}

var _ core.Agent = (*StubAgent)(nil)

// NewStubAgent creates an idle stub with the given id and capabilities.
func NewStubAgent(id string, capabilities ...string) *StubAgent {
	return &StubAgent{id: id, caps: capabilities, status: core.StatusIdle}
}

// Script appends results to return from successive ProcessTask calls
// (chainable).
func (a *StubAgent) Script(results ...*core.TaskResult) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = append(a.script, results...)
	return a
}

// SetStatus forces the stub into a lifecycle state (chainable).
func (a *StubAgent) SetStatus(status core.AgentStatus) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = status
	return a
}

// ID implements core.Agent.
func (a *StubAgent) ID() string { return a.id }

// Name implements core.Agent.
func (a *StubAgent) Name() string { return a.id }

// Specialty implements core.Agent.
func (a *StubAgent) Specialty() string { return "stub" }

// Capabilities implements core.Agent.
func (a *StubAgent) Capabilities() []string {
	out := make([]string, len(a.caps))
	copy(out, a.caps)
	return out
}

// Status implements core.Agent.
func (a *StubAgent) Status() core.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Snapshot implements core.Agent.
func (a *StubAgent) Snapshot() core.AgentSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now().UTC()
	return core.AgentSnapshot{
		ID:             a.id,
		Name:           a.id,
		Specialty:      "stub",
		Capabilities:   a.Capabilities(),
		Status:         a.status,
		TasksCompleted: len(a.Received),
		LastActive:     &now,
	}
}

// ProcessTask implements core.Agent by replaying the script.
func (a *StubAgent) ProcessTask(_ context.Context, task *core.Task) *core.TaskResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Received = append(a.Received, task)
	if len(a.script) > 0 {
		next := a.script[0]
		a.script = a.script[1:]
		return next
	}
	return core.Succeed(map[string]any{"echo": task.Type})
}
