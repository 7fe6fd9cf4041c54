package core

import "time"

// ScheduledTask binds a workflow to a cron expression. NextRunAt is the
// single source of truth for "is this task due"; it is recomputed after
// every run and on create/update. For an active task it is always in the
// future relative to the last recomputation.
type ScheduledTask struct {
	ID             string     `json:"id" bson:"_id"`
	WorkflowID     string     `json:"workflow_id" bson:"workflow_id"`
	CronExpression string     `json:"cron_expression" bson:"cron_expression"`
	Timezone       string     `json:"timezone,omitempty" bson:"timezone,omitempty"`
	IsActive       bool       `json:"is_active" bson:"is_active"`
	RunCount       int        `json:"run_count" bson:"run_count"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty" bson:"last_run_at,omitempty"`
	NextRunAt      time.Time  `json:"next_run_at" bson:"next_run_at"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
}

// Location resolves the task's timezone, defaulting to UTC when unset or
// unknown.
func (t *ScheduledTask) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
