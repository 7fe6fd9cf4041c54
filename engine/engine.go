package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/logging"
)

var (
	// ErrWorkflowNotFound is returned when the workflow id is unknown.
	ErrWorkflowNotFound = fmt.Errorf("workflow not found")
	// ErrWorkflowInactive is returned when the workflow exists but is
	// deactivated; nothing is executed.
	ErrWorkflowInactive = fmt.Errorf("workflow is not active")
	// ErrNotOwner is returned when the caller's owner id does not match the
	// workflow's owner.
	ErrNotOwner = fmt.Errorf("workflow belongs to a different owner")
)

// Directory is the narrow agent lookup surface agent-call steps resolve
// through. The Registry implements it.
type Directory interface {
	Get(id string) (core.Agent, bool)
}

// Options configures an Engine.
type Options struct {
	// Webhook performs outbound calls for webhook steps. Defaults to nil,
	// which fails webhook steps with a configuration error.
	Webhook core.WebhookCaller

	// Callbacks hook into the step lifecycle (see Callbacks).
	Callbacks Callbacks

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine executes workflows step by step. It is safe for concurrent use;
// each run owns its accumulated data and two runs of the same workflow may
// interleave freely.
type Engine struct {
	workflows core.WorkflowStore
	runs      core.RunStore
	directory Directory
	webhook   core.WebhookCaller
	callbacks Callbacks
	logger    logging.Logger
}

// New constructs an Engine over the given stores and agent directory.
func New(workflows core.WorkflowStore, runs core.RunStore, directory Directory, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		workflows: workflows,
		runs:      runs,
		directory: directory,
		webhook:   opts.Webhook,
		callbacks: opts.Callbacks,
		logger:    opts.Logger,
	}
}

// ExecuteWorkflow runs a workflow to completion (or first failure) and
// returns the finished run record.
//
// Validation failures (unknown id, wrong owner, inactive workflow) are
// returned as errors and nothing is recorded. Step failures are not errors:
// they finalize the run as failed with the partial step results and the
// run is returned alongside a nil error.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID, ownerID string, input map[string]any, triggerSource string) (*core.WorkflowRun, error) {
	wf, err := e.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
		}
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	if ownerID != "" && wf.OwnerID != "" && wf.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, workflowID)
	}
	if !wf.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, workflowID)
	}

	run := core.NewWorkflowRun(workflowID, triggerSource, input)
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	logger := e.logger
	logger.Info("workflow run started", "workflow_id", workflowID, "run_id", run.ID, "source", triggerSource, "steps", len(wf.Steps))

	start := time.Now()
	data := make(map[string]any, len(run.InputData))
	for k, v := range run.InputData {
		data[k] = v
	}

	for i, step := range wf.Steps {
		run.CurrentStepIndex = i
		e.callbacks.beforeStep(ctx, run, &step)

		stepStart := time.Now()
		output, stepErr := e.executeStep(ctx, &step, data)

		result := core.StepResult{
			StepID:    step.ID,
			StepIndex: i,
			Type:      step.Type,
			Success:   stepErr == nil,
			Output:    output,
			StartedAt: stepStart.UTC(),
			Duration:  time.Since(stepStart),
		}
		if stepErr != nil {
			result.Error = stepErr.Error()
		}
		run.StepResults = append(run.StepResults, result)
		e.callbacks.afterStep(ctx, run, &step, &result)

		if stepErr != nil {
			run.SetStatus(core.RunFailed)
			run.ErrorMessage = fmt.Sprintf("step %d (%s) failed: %s", i, step.Type, stepErr)
			e.callbacks.onRunError(ctx, run, stepErr)
			if err := e.runs.SaveRun(ctx, run); err != nil {
				logger.Error("failed to persist failed run", "run_id", run.ID, "error", err)
			}
			logger.Error("workflow run failed", "workflow_id", workflowID, "run_id", run.ID, "step_index", i, "error", stepErr)
			return run, nil
		}

		for k, v := range output {
			data[k] = v
		}
	}

	run.SetStatus(core.RunCompleted)
	run.OutputData = data
	if err := e.runs.SaveRun(ctx, run); err != nil {
		logger.Error("failed to persist completed run", "run_id", run.ID, "error", err)
	}
	if err := e.workflows.IncrementWorkflowRun(ctx, workflowID, time.Now().UTC()); err != nil {
		logger.Error("failed to bump workflow counters", "workflow_id", workflowID, "error", err)
	}

	logger.Info("workflow run completed", "workflow_id", workflowID, "run_id", run.ID, "duration", time.Since(start))
	return run, nil
}

// RunHistory returns the most recent runs of a workflow, newest first.
func (e *Engine) RunHistory(ctx context.Context, workflowID string, limit int) ([]*core.WorkflowRun, error) {
	return e.runs.ListRuns(ctx, workflowID, limit)
}
