package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerMatchesEmptyConditions(t *testing.T) {
	trigger := &EventTrigger{EventType: "feedback.received"}
	assert.True(t, trigger.Matches(map[string]any{"rating": 5}))
	assert.True(t, trigger.Matches(nil))
}

func TestTriggerMatchesEqualityLiteral(t *testing.T) {
	trigger := &EventTrigger{Conditions: map[string]any{"platform": "linkedin"}}

	assert.True(t, trigger.Matches(map[string]any{"platform": "linkedin"}))
	assert.False(t, trigger.Matches(map[string]any{"platform": "twitter"}))
	assert.False(t, trigger.Matches(map[string]any{}))
}

func TestTriggerMatchesOperators(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[string]any
		payload    map[string]any
		want       bool
	}{
		{
			name:       "gte satisfied",
			conditions: map[string]any{"rating": map[string]any{"$gte": 4}},
			payload:    map[string]any{"rating": 5},
			want:       true,
		},
		{
			name:       "gte boundary",
			conditions: map[string]any{"rating": map[string]any{"$gte": 4}},
			payload:    map[string]any{"rating": 4},
			want:       true,
		},
		{
			name:       "gte below",
			conditions: map[string]any{"rating": map[string]any{"$gte": 4}},
			payload:    map[string]any{"rating": 2},
			want:       false,
		},
		{
			name:       "gt strict",
			conditions: map[string]any{"score": map[string]any{"$gt": 10}},
			payload:    map[string]any{"score": 10},
			want:       false,
		},
		{
			name:       "lt satisfied",
			conditions: map[string]any{"errors": map[string]any{"$lt": 3}},
			payload:    map[string]any{"errors": 1},
			want:       true,
		},
		{
			name:       "lte boundary",
			conditions: map[string]any{"errors": map[string]any{"$lte": 3}},
			payload:    map[string]any{"errors": 3},
			want:       true,
		},
		{
			name:       "ne string",
			conditions: map[string]any{"status": map[string]any{"$ne": "draft"}},
			payload:    map[string]any{"status": "published"},
			want:       true,
		},
		{
			name:       "ne same string",
			conditions: map[string]any{"status": map[string]any{"$ne": "draft"}},
			payload:    map[string]any{"status": "draft"},
			want:       false,
		},
		{
			name:       "in membership",
			conditions: map[string]any{"platform": map[string]any{"$in": []any{"x", "linkedin"}}},
			payload:    map[string]any{"platform": "linkedin"},
			want:       true,
		},
		{
			name:       "in miss",
			conditions: map[string]any{"platform": map[string]any{"$in": []any{"x", "linkedin"}}},
			payload:    map[string]any{"platform": "tiktok"},
			want:       false,
		},
		{
			name:       "contains substring",
			conditions: map[string]any{"message": map[string]any{"$contains": "urgent"}},
			payload:    map[string]any{"message": "this is urgent please"},
			want:       true,
		},
		{
			name:       "contains array element",
			conditions: map[string]any{"tags": map[string]any{"$contains": "ai"}},
			payload:    map[string]any{"tags": []any{"ai", "growth"}},
			want:       true,
		},
		{
			name:       "missing field fails comparison",
			conditions: map[string]any{"rating": map[string]any{"$gte": 4}},
			payload:    map[string]any{"other": 9},
			want:       false,
		},
		{
			name:       "nested dotted path",
			conditions: map[string]any{"metrics.views": map[string]any{"$gt": 100}},
			payload:    map[string]any{"metrics": map[string]any{"views": 250}},
			want:       true,
		},
		{
			name: "all conditions must hold",
			conditions: map[string]any{
				"rating":   map[string]any{"$gte": 4},
				"platform": "linkedin",
			},
			payload: map[string]any{"rating": 5, "platform": "twitter"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := &EventTrigger{Conditions: tt.conditions}
			assert.Equal(t, tt.want, trigger.Matches(tt.payload))
		})
	}
}

func TestTriggerUnknownOperatorNeverMatches(t *testing.T) {
	trigger := &EventTrigger{Conditions: map[string]any{"rating": map[string]any{"$regex": ".*"}}}
	assert.False(t, trigger.Matches(map[string]any{"rating": 5}))
}
