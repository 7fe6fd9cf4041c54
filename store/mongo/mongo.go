// Package mongo provides a MongoDB-backed implementation of core.Store for
// durable deployments.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowmesh-ai/flowmesh/core"
)

// Collection names inside the configured database.
const (
	collWorkflows  = "workflows"
	collRuns       = "workflow_runs"
	collSchedules  = "scheduled_tasks"
	collTriggers   = "event_triggers"
	collEvents     = "events"
	collRateLimits = "rate_limits"
)

// Options configures a Store.
type Options struct {
	// Database is the database name. Defaults to "flowmesh".
	Database string
}

// Store implements core.Store on top of a MongoDB database.
type Store struct {
	db *mongo.Database
}

var _ core.Store = (*Store)(nil)

// Connect dials MongoDB and returns a ready store. The caller owns the
// client lifecycle through Close.
func Connect(ctx context.Context, uri string, optFns ...func(o *Options)) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return NewStore(client, optFns...), nil
}

// NewStore wraps an existing client.
func NewStore(client *mongo.Client, optFns ...func(o *Options)) *Store {
	opts := Options{
		Database: "flowmesh",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{db: client.Database(opts.Database)}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// EnsureIndexes creates the query indexes the orchestration core relies on.
// It is idempotent and safe to call on every startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		collWorkflows: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		collRuns: {
			{Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "started_at", Value: -1}}},
		},
		collSchedules: {
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "next_run_at", Value: 1}}},
		},
		collTriggers: {
			{Keys: bson.D{{Key: "event_type", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		collEvents: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}

	for coll, models := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// GetWorkflow returns the workflow with the given id.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*core.Workflow, error) {
	var wf core.Workflow
	if err := s.findByID(ctx, collWorkflows, id, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// SaveWorkflow upserts a workflow definition.
func (s *Store) SaveWorkflow(ctx context.Context, wf *core.Workflow) error {
	return s.upsert(ctx, collWorkflows, wf.ID, wf)
}

// ListWorkflows returns all workflows for an owner, oldest first.
func (s *Store) ListWorkflows(ctx context.Context, ownerID string) ([]*core.Workflow, error) {
	cursor, err := s.db.Collection(collWorkflows).Find(ctx,
		bson.M{"owner_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}

	var out []*core.Workflow
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode workflows: %w", err)
	}
	return out, nil
}

// IncrementWorkflowRun bumps the run counter and stamps the last-run time
// atomically.
func (s *Store) IncrementWorkflowRun(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.Collection(collWorkflows).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"run_count": 1},
			"$set": bson.M{"last_run_at": at, "updated_at": at},
		})
	if err != nil {
		return fmt.Errorf("increment workflow run: %w", err)
	}
	if result.MatchedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

// SaveRun upserts a run record.
func (s *Store) SaveRun(ctx context.Context, run *core.WorkflowRun) error {
	return s.upsert(ctx, collRuns, run.ID, run)
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (*core.WorkflowRun, error) {
	var run core.WorkflowRun
	if err := s.findByID(ctx, collRuns, id, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs for a workflow, newest first.
func (s *Store) ListRuns(ctx context.Context, workflowID string, limit int) ([]*core.WorkflowRun, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(collRuns).Find(ctx, bson.M{"workflow_id": workflowID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var out []*core.WorkflowRun
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return out, nil
}

// GetSchedule returns the scheduled task with the given id.
func (s *Store) GetSchedule(ctx context.Context, id string) (*core.ScheduledTask, error) {
	var task core.ScheduledTask
	if err := s.findByID(ctx, collSchedules, id, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SaveSchedule upserts a scheduled task.
func (s *Store) SaveSchedule(ctx context.Context, task *core.ScheduledTask) error {
	return s.upsert(ctx, collSchedules, task.ID, task)
}

// DeleteSchedule removes a scheduled task.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := s.db.Collection(collSchedules).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// ListActiveSchedules returns every active scheduled task.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]*core.ScheduledTask, error) {
	cursor, err := s.db.Collection(collSchedules).Find(ctx,
		bson.M{"is_active": true},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}

	var out []*core.ScheduledTask
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	return out, nil
}

// GetTrigger returns the event trigger with the given id.
func (s *Store) GetTrigger(ctx context.Context, id string) (*core.EventTrigger, error) {
	var trigger core.EventTrigger
	if err := s.findByID(ctx, collTriggers, id, &trigger); err != nil {
		return nil, err
	}
	return &trigger, nil
}

// SaveTrigger upserts an event trigger.
func (s *Store) SaveTrigger(ctx context.Context, trigger *core.EventTrigger) error {
	return s.upsert(ctx, collTriggers, trigger.ID, trigger)
}

// DeleteTrigger removes an event trigger.
func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	if _, err := s.db.Collection(collTriggers).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	return nil
}

// ListTriggersByEvent returns all active triggers for the exact event type.
func (s *Store) ListTriggersByEvent(ctx context.Context, eventType string) ([]*core.EventTrigger, error) {
	cursor, err := s.db.Collection(collTriggers).Find(ctx,
		bson.M{"event_type": eventType, "is_active": true},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}

	var out []*core.EventTrigger
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode triggers: %w", err)
	}
	return out, nil
}

// IncrementTriggerCount bumps the trigger's match counter atomically.
func (s *Store) IncrementTriggerCount(ctx context.Context, id string) error {
	result, err := s.db.Collection(collTriggers).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"triggered_count": 1}})
	if err != nil {
		return fmt.Errorf("increment trigger count: %w", err)
	}
	if result.MatchedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

// AppendEvent inserts a durable copy of an owned event.
func (s *Store) AppendEvent(ctx context.Context, event core.Event) error {
	if _, err := s.db.Collection(collEvents).InsertOne(ctx, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// GetRateLimit returns the entry for a (platform, action) pair.
func (s *Store) GetRateLimit(ctx context.Context, platform, actionType string) (*core.RateLimitEntry, error) {
	var entry core.RateLimitEntry
	err := s.db.Collection(collRateLimits).
		FindOne(ctx, bson.M{"platform": platform, "action_type": actionType}).
		Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get rate limit: %w", err)
	}
	return &entry, nil
}

// SaveRateLimit upserts a rate limit entry keyed by its pair.
func (s *Store) SaveRateLimit(ctx context.Context, entry *core.RateLimitEntry) error {
	_, err := s.db.Collection(collRateLimits).ReplaceOne(ctx,
		bson.M{"platform": entry.Platform, "action_type": entry.ActionType},
		entry,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save rate limit: %w", err)
	}
	return nil
}

// ListRateLimits returns every stored rate limit entry.
func (s *Store) ListRateLimits(ctx context.Context) ([]*core.RateLimitEntry, error) {
	cursor, err := s.db.Collection(collRateLimits).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}

	var out []*core.RateLimitEntry
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode rate limits: %w", err)
	}
	return out, nil
}

func (s *Store) findByID(ctx context.Context, coll, id string, out any) error {
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.ErrNotFound
		}
		return fmt.Errorf("find %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, coll, id string, doc any) error {
	_, err := s.db.Collection(coll).ReplaceOne(ctx,
		bson.M{"_id": id},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", coll, id, err)
	}
	return nil
}
