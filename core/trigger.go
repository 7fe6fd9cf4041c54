package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Condition operator keys. A trigger condition value is either an equality
// literal or a map from one of these operators to a comparison value. The
// operator set is part of the external trigger configuration contract.
const (
	OpGT       = "$gt"
	OpGTE      = "$gte"
	OpLT       = "$lt"
	OpLTE      = "$lte"
	OpNE       = "$ne"
	OpIn       = "$in"
	OpContains = "$contains"
)

// EventTrigger is a persisted rule binding an event type plus payload
// conditions to a workflow. Matching a trigger executes the workflow with
// the event payload as input.
type EventTrigger struct {
	ID             string         `json:"id" bson:"_id"`
	WorkflowID     string         `json:"workflow_id" bson:"workflow_id"`
	EventType      string         `json:"event_type" bson:"event_type"`
	Conditions     map[string]any `json:"conditions,omitempty" bson:"conditions,omitempty"`
	IsActive       bool           `json:"is_active" bson:"is_active"`
	TriggeredCount int            `json:"triggered_count" bson:"triggered_count"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
}

// Matches evaluates the trigger's conditions against an event payload.
// Every condition must hold; an empty condition set always matches. Fields
// support dotted paths into nested payload objects.
func (t *EventTrigger) Matches(payload map[string]any) bool {
	if len(t.Conditions) == 0 {
		return true
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	for field, predicate := range t.Conditions {
		if !matchPredicate(gjson.GetBytes(raw, field), predicate) {
			return false
		}
	}
	return true
}

// matchPredicate applies a single condition predicate to a payload value.
func matchPredicate(value gjson.Result, predicate any) bool {
	ops, ok := predicate.(map[string]any)
	if !ok {
		// Equality literal.
		return looseEqual(value, predicate)
	}
	for op, operand := range ops {
		if !applyOperator(value, op, operand) {
			return false
		}
	}
	return len(ops) > 0
}

func applyOperator(value gjson.Result, op string, operand any) bool {
	switch op {
	case OpGT, OpGTE, OpLT, OpLTE:
		n, ok := toFloat(operand)
		if !ok || value.Type != gjson.Number {
			return false
		}
		switch op {
		case OpGT:
			return value.Num > n
		case OpGTE:
			return value.Num >= n
		case OpLT:
			return value.Num < n
		default:
			return value.Num <= n
		}
	case OpNE:
		return !looseEqual(value, operand)
	case OpIn:
		items, ok := operand.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if looseEqual(value, item) {
				return true
			}
		}
		return false
	case OpContains:
		if value.IsArray() {
			for _, item := range value.Array() {
				if looseEqual(item, operand) {
					return true
				}
			}
			return false
		}
		needle, ok := operand.(string)
		return ok && strings.Contains(value.String(), needle)
	default:
		return false
	}
}

// looseEqual compares a payload value against a condition literal, treating
// all numeric types as float64 (the shape JSON decoding produces).
func looseEqual(value gjson.Result, literal any) bool {
	if n, ok := toFloat(literal); ok {
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

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
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
