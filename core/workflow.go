package core

import "time"

// TriggerType identifies what kind of entry point starts a workflow.
type TriggerType string

const (
	// TriggerManual marks workflows started explicitly by a caller.
	TriggerManual TriggerType = "manual"
	// TriggerSchedule marks workflows started by the cron scheduler.
	TriggerSchedule TriggerType = "schedule"
	// TriggerEvent marks workflows started by a matched event trigger.
	TriggerEvent TriggerType = "event"
)

// StepType tags the variant of a workflow step.
type StepType string

const (
	// StepAgentCall invokes a registered agent with an action and config.
	StepAgentCall StepType = "agent-call"
	// StepCondition evaluates a predicate against the accumulated data.
	StepCondition StepType = "condition"
	// StepTransform reshapes the accumulated data via a mapping.
	StepTransform StepType = "transform"
	// StepDelay suspends the run for a configured duration.
	StepDelay StepType = "delay"
	// StepWebhook performs an outbound HTTP call.
	StepWebhook StepType = "webhook"
)

// Step is one entry in a workflow's ordered pipeline. The Type field selects
// the variant; only the fields belonging to that variant are consulted.
//
// Variant fields:
//   - agent-call: AgentID, Action, Config
//   - condition:  Field, Operator, Value
//   - transform:  Mapping (output key -> "$input.path" reference or literal)
//   - delay:      DelaySeconds
//   - webhook:    URL, Method
type Step struct {
	ID   string   `json:"id,omitempty" bson:"id,omitempty"`
	Type StepType `json:"type" bson:"type"`
	Name string   `json:"name,omitempty" bson:"name,omitempty"`

	AgentID string         `json:"agent_id,omitempty" bson:"agent_id,omitempty"`
	Action  string         `json:"action,omitempty" bson:"action,omitempty"`
	Config  map[string]any `json:"config,omitempty" bson:"config,omitempty"`

	Field    string `json:"field,omitempty" bson:"field,omitempty"`
	Operator string `json:"operator,omitempty" bson:"operator,omitempty"`
	Value    any    `json:"value,omitempty" bson:"value,omitempty"`

	Mapping map[string]any `json:"mapping,omitempty" bson:"mapping,omitempty"`

	DelaySeconds int `json:"delay_seconds,omitempty" bson:"delay_seconds,omitempty"`

	URL    string `json:"url,omitempty" bson:"url,omitempty"`
	Method string `json:"method,omitempty" bson:"method,omitempty"`
}

// Workflow is a named, ordered list of steps executed as one pipeline.
type Workflow struct {
	ID            string         `json:"id" bson:"_id"`
	OwnerID       string         `json:"owner_id" bson:"owner_id"`
	Name          string         `json:"name" bson:"name"`
	TriggerType   TriggerType    `json:"trigger_type" bson:"trigger_type"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty" bson:"trigger_config,omitempty"`
	Steps         []Step         `json:"steps" bson:"steps"`
	IsActive      bool           `json:"is_active" bson:"is_active"`
	RunCount      int            `json:"run_count" bson:"run_count"`
	LastRunAt     *time.Time     `json:"last_run_at,omitempty" bson:"last_run_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" bson:"updated_at"`
}

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	// RunPending marks a run created but not yet started.
	RunPending RunStatus = "pending"
	// RunRunning marks a run currently executing steps.
	RunRunning RunStatus = "running"
	// RunCompleted marks a run whose every step succeeded.
	RunCompleted RunStatus = "completed"
	// RunFailed marks a run halted by a step failure.
	RunFailed RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool { return s == RunCompleted || s == RunFailed }

// StepResult records the outcome of one attempted step inside a run.
type StepResult struct {
	StepID    string         `json:"step_id,omitempty" bson:"step_id,omitempty"`
	StepIndex int            `json:"step_index" bson:"step_index"`
	Type      StepType       `json:"type" bson:"type"`
	Success   bool           `json:"success" bson:"success"`
	Output    map[string]any `json:"output,omitempty" bson:"output,omitempty"`
	Error     string         `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt time.Time      `json:"started_at" bson:"started_at"`
	Duration  time.Duration  `json:"duration" bson:"duration"`
}

// WorkflowRun is one execution instance of a workflow. StepResults is
// append-only and its length always equals the number of steps actually
// attempted. Status is monotonic: once terminal it never reverses.
type WorkflowRun struct {
	ID               string         `json:"id" bson:"_id"`
	WorkflowID       string         `json:"workflow_id" bson:"workflow_id"`
	Status           RunStatus      `json:"status" bson:"status"`
	CurrentStepIndex int            `json:"current_step_index" bson:"current_step_index"`
	InputData        map[string]any `json:"input_data,omitempty" bson:"input_data,omitempty"`
	OutputData       map[string]any `json:"output_data,omitempty" bson:"output_data,omitempty"`
	StepResults      []StepResult   `json:"step_results" bson:"step_results"`
	ErrorMessage     string         `json:"error_message,omitempty" bson:"error_message,omitempty"`
	TriggerSource    string         `json:"trigger_source,omitempty" bson:"trigger_source,omitempty"`
	StartedAt        time.Time      `json:"started_at" bson:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// NewWorkflowRun creates a run in the running state for the given workflow.
func NewWorkflowRun(workflowID, triggerSource string, input map[string]any) *WorkflowRun {
	if input == nil {
		input = map[string]any{}
	}
	return &WorkflowRun{
		ID:            NewID(),
		WorkflowID:    workflowID,
		Status:        RunRunning,
		InputData:     input,
		StepResults:   []StepResult{},
		TriggerSource: triggerSource,
		StartedAt:     time.Now().UTC(),
	}
}

// SetStatus transitions the run status, enforcing monotonicity: terminal
// statuses are never overwritten. It reports whether the transition applied.
func (r *WorkflowRun) SetStatus(next RunStatus) bool {
	if r.Status.Terminal() {
		return false
	}
	r.Status = next
	if next.Terminal() {
		now := time.Now().UTC()
		r.CompletedAt = &now
	}
	return true
}
