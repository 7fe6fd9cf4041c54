package core

// Task is an ephemeral unit of work: a type tag plus an arbitrary payload.
// It is created by a caller and consumed exactly once by an agent's
// ProcessTask. Tasks carry no identity of their own; correlation happens at
// the workflow-run or routing layer.
type Task struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewTask constructs a task with a non-nil payload map.
func NewTask(taskType string, payload map[string]any) *Task {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Task{Type: taskType, Payload: payload}
}

// TaskResult is the structured outcome of processing a task. Expected
// failures (unknown task type, busy agent, quota exhaustion, handler errors)
// are reported through Success/Error rather than a Go error so callers can
// translate results directly into API responses.
type TaskResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Succeed builds a successful result carrying the given output.
func Succeed(output map[string]any) *TaskResult {
	if output == nil {
		output = map[string]any{}
	}
	return &TaskResult{Success: true, Output: output}
}

// Fail builds a failed result with an error message.
func Fail(errMsg string) *TaskResult {
	return &TaskResult{Success: false, Error: errMsg}
}

// FailWithReason builds a failed result carrying a machine-readable reason
// alongside the human-readable error message.
func FailWithReason(errMsg, reason string) *TaskResult {
	return &TaskResult{Success: false, Error: errMsg, Reason: reason}
}
