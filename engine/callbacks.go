package engine

import (
	"context"

	"github.com/flowmesh-ai/flowmesh/core"
)

// Callbacks hook into the step execution lifecycle without modifying engine
// logic. All hooks are optional and run synchronously on the executing
// goroutine; keep them fast. Hooks observe the run but must not mutate it.
type Callbacks struct {
	// BeforeStep runs before each step is executed.
	BeforeStep func(ctx context.Context, run *core.WorkflowRun, step *core.Step)

	// AfterStep runs after each step, successful or not, with its result.
	AfterStep func(ctx context.Context, run *core.WorkflowRun, step *core.Step, result *core.StepResult)

	// OnRunError runs once when a step failure finalizes the run as failed.
	OnRunError func(ctx context.Context, run *core.WorkflowRun, err error)
}

func (c Callbacks) beforeStep(ctx context.Context, run *core.WorkflowRun, step *core.Step) {
	if c.BeforeStep != nil {
		c.BeforeStep(ctx, run, step)
	}
}

func (c Callbacks) afterStep(ctx context.Context, run *core.WorkflowRun, step *core.Step, result *core.StepResult) {
	if c.AfterStep != nil {
		c.AfterStep(ctx, run, step, result)
	}
}

func (c Callbacks) onRunError(ctx context.Context, run *core.WorkflowRun, err error) {
	if c.OnRunError != nil {
		c.OnRunError(ctx, run, err)
	}
}
