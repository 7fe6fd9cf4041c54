// Package store provides persistence implementations for the orchestration
// core. The in-memory store backs tests and local development; the mongo and
// redis subpackages provide durable backends.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
)

// InMemory is a thread-safe, map-backed implementation of core.Store. All
// reads return copies so callers can never mutate stored state in place.
type InMemory struct {
	mu         sync.RWMutex
	workflows  map[string]*core.Workflow
	runs       map[string]*core.WorkflowRun
	runOrder   []string
	schedules  map[string]*core.ScheduledTask
	triggers   map[string]*core.EventTrigger
	events     []core.Event
	rateLimits map[string]*core.RateLimitEntry
}

var _ core.Store = (*InMemory)(nil)

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		workflows:  make(map[string]*core.Workflow),
		runs:       make(map[string]*core.WorkflowRun),
		schedules:  make(map[string]*core.ScheduledTask),
		triggers:   make(map[string]*core.EventTrigger),
		rateLimits: make(map[string]*core.RateLimitEntry),
	}
}

// GetWorkflow returns the workflow with the given id.
func (s *InMemory) GetWorkflow(_ context.Context, id string) (*core.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyWorkflow(wf), nil
}

// SaveWorkflow inserts or replaces a workflow definition.
func (s *InMemory) SaveWorkflow(_ context.Context, wf *core.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[wf.ID] = copyWorkflow(wf)
	return nil
}

// ListWorkflows returns all workflows for an owner, sorted by creation time.
func (s *InMemory) ListWorkflows(_ context.Context, ownerID string) ([]*core.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Workflow
	for _, wf := range s.workflows {
		if wf.OwnerID == ownerID {
			out = append(out, copyWorkflow(wf))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// IncrementWorkflowRun bumps the run counter and stamps the last-run time.
func (s *InMemory) IncrementWorkflowRun(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return core.ErrNotFound
	}
	wf.RunCount++
	last := at
	wf.LastRunAt = &last
	wf.UpdatedAt = at
	return nil
}

// SaveRun inserts or replaces a run record.
func (s *InMemory) SaveRun(_ context.Context, run *core.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		s.runOrder = append(s.runOrder, run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// GetRun returns the run with the given id.
func (s *InMemory) GetRun(_ context.Context, id string) (*core.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyRun(run), nil
}

// ListRuns returns the most recent runs for a workflow, newest first.
func (s *InMemory) ListRuns(_ context.Context, workflowID string, limit int) ([]*core.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.WorkflowRun
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		run := s.runs[s.runOrder[i]]
		if run.WorkflowID != workflowID {
			continue
		}
		out = append(out, copyRun(run))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetSchedule returns the scheduled task with the given id.
func (s *InMemory) GetSchedule(_ context.Context, id string) (*core.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.schedules[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	c := *task
	return &c, nil
}

// SaveSchedule inserts or replaces a scheduled task.
func (s *InMemory) SaveSchedule(_ context.Context, task *core.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *task
	s.schedules[task.ID] = &c
	return nil
}

// DeleteSchedule removes a scheduled task. Deleting a missing id is a no-op.
func (s *InMemory) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.schedules, id)
	return nil
}

// ListActiveSchedules returns every active scheduled task.
func (s *InMemory) ListActiveSchedules(_ context.Context) ([]*core.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.ScheduledTask
	for _, task := range s.schedules {
		if task.IsActive {
			c := *task
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetTrigger returns the event trigger with the given id.
func (s *InMemory) GetTrigger(_ context.Context, id string) (*core.EventTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trigger, ok := s.triggers[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyTrigger(trigger), nil
}

// SaveTrigger inserts or replaces an event trigger.
func (s *InMemory) SaveTrigger(_ context.Context, trigger *core.EventTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.triggers[trigger.ID] = copyTrigger(trigger)
	return nil
}

// DeleteTrigger removes a trigger. Deleting a missing id is a no-op.
func (s *InMemory) DeleteTrigger(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.triggers, id)
	return nil
}

// ListTriggersByEvent returns all active triggers for the exact event type.
func (s *InMemory) ListTriggersByEvent(_ context.Context, eventType string) ([]*core.EventTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.EventTrigger
	for _, trigger := range s.triggers {
		if trigger.IsActive && trigger.EventType == eventType {
			out = append(out, copyTrigger(trigger))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// IncrementTriggerCount bumps the trigger's match counter.
func (s *InMemory) IncrementTriggerCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trigger, ok := s.triggers[id]
	if !ok {
		return core.ErrNotFound
	}
	trigger.TriggeredCount++
	return nil
}

// AppendEvent records a durable copy of an owned event.
func (s *InMemory) AppendEvent(_ context.Context, event core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of every appended event, oldest first.
func (s *InMemory) Events() []core.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Event, len(s.events))
	copy(out, s.events)
	return out
}

// GetRateLimit returns the entry for a (platform, action) pair.
func (s *InMemory) GetRateLimit(_ context.Context, platform, actionType string) (*core.RateLimitEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimits[core.RateLimitKey(platform, actionType)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return entry.Clone(), nil
}

// SaveRateLimit inserts or replaces a rate limit entry.
func (s *InMemory) SaveRateLimit(_ context.Context, entry *core.RateLimitEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rateLimits[entry.Key()] = entry.Clone()
	return nil
}

// ListRateLimits returns a copy of every stored rate limit entry.
func (s *InMemory) ListRateLimits(_ context.Context) ([]*core.RateLimitEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.RateLimitEntry, 0, len(s.rateLimits))
	for _, entry := range s.rateLimits {
		out = append(out, entry.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func copyWorkflow(wf *core.Workflow) *core.Workflow {
	c := *wf
	c.Steps = make([]core.Step, len(wf.Steps))
	copy(c.Steps, wf.Steps)
	if wf.LastRunAt != nil {
		last := *wf.LastRunAt
		c.LastRunAt = &last
	}
	return &c
}

func copyRun(run *core.WorkflowRun) *core.WorkflowRun {
	c := *run
	c.StepResults = make([]core.StepResult, len(run.StepResults))
	copy(c.StepResults, run.StepResults)
	if run.CompletedAt != nil {
		done := *run.CompletedAt
		c.CompletedAt = &done
	}
	return &c
}

func copyTrigger(trigger *core.EventTrigger) *core.EventTrigger {
	c := *trigger
	if trigger.Conditions != nil {
		c.Conditions = make(map[string]any, len(trigger.Conditions))
		for k, v := range trigger.Conditions {
			c.Conditions[k] = v
		}
	}
	return &c
}
