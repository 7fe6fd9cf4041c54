package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Condition operators usable in condition steps.
const (
	CondEquals      = "equals"
	CondNotEquals   = "not_equals"
	CondContains    = "contains"
	CondGreaterThan = "greater_than"
	CondLessThan    = "less_than"
)

// ConditionMetKey is the accumulated-data flag a condition step merges in.
// It does not branch control flow; branching on it is a caller
// responsibility.
const ConditionMetKey = "conditionMet"

// executeStep dispatches one step to its variant executor. The returned map
// is merged into the accumulated data by the caller.
func (e *Engine) executeStep(ctx context.Context, step *core.Step, data map[string]any) (map[string]any, error) {
	switch step.Type {
	case core.StepAgentCall:
		return e.executeAgentCall(ctx, step, data)
	case core.StepCondition:
		return e.executeCondition(step, data)
	case core.StepTransform:
		return e.executeTransform(step, data)
	case core.StepDelay:
		return e.executeDelay(ctx, step)
	case core.StepWebhook:
		return e.executeWebhook(ctx, step, data)
	default:
		return nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}

// executeAgentCall resolves the target agent and runs the configured action
// with the accumulated data (overlaid with the step config) as payload.
func (e *Engine) executeAgentCall(ctx context.Context, step *core.Step, data map[string]any) (map[string]any, error) {
	if step.AgentID == "" {
		return nil, fmt.Errorf("agent-call step missing agent_id")
	}
	target, ok := e.directory.Get(step.AgentID)
	if !ok {
		return nil, fmt.Errorf("agent %s not registered", step.AgentID)
	}

	payload := make(map[string]any, len(data)+len(step.Config))
	for k, v := range data {
		payload[k] = v
	}
	for k, v := range step.Config {
		payload[k] = v
	}

	result := target.ProcessTask(ctx, core.NewTask(step.Action, payload))
	if !result.Success {
		return nil, fmt.Errorf("agent %s action %s: %s", step.AgentID, step.Action, result.Error)
	}
	return result.Output, nil
}

// executeCondition evaluates (field, operator, value) against the
// accumulated data and merges the result flag. Fields support dotted paths.
func (e *Engine) executeCondition(step *core.Step, data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal step data: %w", err)
	}
	value := gjson.GetBytes(raw, step.Field)

	var met bool
	switch step.Operator {
	case CondEquals:
		met = looseStepEqual(value, step.Value)
	case CondNotEquals:
		met = !looseStepEqual(value, step.Value)
	case CondContains:
		needle := fmt.Sprintf("%v", step.Value)
		if value.IsArray() {
			for _, item := range value.Array() {
				if item.String() == needle {
					met = true
					break
				}
			}
		} else {
			met = strings.Contains(value.String(), needle)
		}
	case CondGreaterThan, CondLessThan:
		threshold, ok := stepFloat(step.Value)
		if !ok {
			return nil, fmt.Errorf("condition value %v is not numeric", step.Value)
		}
		if value.Type == gjson.Number {
			if step.Operator == CondGreaterThan {
				met = value.Num > threshold
			} else {
				met = value.Num < threshold
			}
		}
	default:
		return nil, fmt.Errorf("unknown condition operator %q", step.Operator)
	}

	return map[string]any{
		ConditionMetKey:  met,
		"conditionField": step.Field,
	}, nil
}

// executeTransform builds a new object from the mapping: "$"-prefixed string
// values copy the referenced field out of the accumulated data (dotted paths
// on both sides), anything else is assigned as a literal. References to
// missing fields are skipped.
func (e *Engine) executeTransform(step *core.Step, data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal step data: %w", err)
	}

	out := []byte(`{}`)
	for key, spec := range step.Mapping {
		var value any
		if ref, ok := spec.(string); ok && strings.HasPrefix(ref, "$") {
			res := gjson.GetBytes(raw, strings.TrimPrefix(ref, "$"))
			if !res.Exists() {
				continue
			}
			value = res.Value()
		} else {
			value = spec
		}
		if out, err = sjson.SetBytes(out, key, value); err != nil {
			return nil, fmt.Errorf("set transform key %q: %w", key, err)
		}
	}

	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("decode transform output: %w", err)
	}
	return result, nil
}

// executeDelay suspends the run for the configured duration, honoring
// context cancellation.
func (e *Engine) executeDelay(ctx context.Context, step *core.Step) (map[string]any, error) {
	if step.DelaySeconds <= 0 {
		return map[string]any{}, nil
	}

	timer := time.NewTimer(time.Duration(step.DelaySeconds) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("delay interrupted: %w", ctx.Err())
	case <-timer.C:
		return map[string]any{"delayedSeconds": step.DelaySeconds}, nil
	}
}

// executeWebhook performs the outbound call and merges the response.
func (e *Engine) executeWebhook(ctx context.Context, step *core.Step, data map[string]any) (map[string]any, error) {
	if e.webhook == nil {
		return nil, fmt.Errorf("no webhook caller configured")
	}
	if step.URL == "" {
		return nil, fmt.Errorf("webhook step missing url")
	}

	method := step.Method
	if method == "" {
		method = "POST"
	}

	resp, err := e.webhook.Call(ctx, step.URL, method, data)
	if err != nil {
		return nil, fmt.Errorf("webhook %s %s: %w", method, step.URL, err)
	}
	return resp, nil
}

func looseStepEqual(value gjson.Result, literal any) bool {
	if n, ok := stepFloat(literal); ok {
		return value.Type == gjson.Number && value.Num == n
	}
	switch lit := literal.(type) {
	case string:
		return value.Type == gjson.String && value.Str == lit
	case bool:
		return value.IsBool() && value.Bool() == lit
	case nil:
		return value.Type == gjson.Null || !value.Exists()
	default:
		return value.String() == fmt.Sprintf("%v", literal)
	}
}

func stepFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
