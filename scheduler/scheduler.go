// Package scheduler runs workflows on cron schedules. It arms one timer per
// active scheduled task, recovers runs missed while the process was down,
// and hosts generic periodic sweeps for other components.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/logging"
)

const (
	// DefaultMissedGrace is how far past its due time a schedule must be
	// before it counts as missed rather than merely late.
	DefaultMissedGrace = 5 * time.Minute

	// DefaultSweepInterval is how often the missed-run sweep re-checks
	// active schedules.
	DefaultSweepInterval = time.Minute
)

// Options configures a Scheduler.
type Options struct {
	// MissedGrace overrides DefaultMissedGrace.
	MissedGrace time.Duration

	// SweepInterval overrides DefaultSweepInterval.
	SweepInterval time.Duration

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Scheduler owns the cron timers. All mutation of a scheduled task goes
// through the scheduler so the persisted record and the armed timer never
// disagree.
type Scheduler struct {
	schedules core.ScheduleStore
	executor  core.WorkflowExecutor
	parser    cron.Parser
	logger    logging.Logger
	now       func() time.Time

	missedGrace   time.Duration
	sweepInterval time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	sweeps  []sweep
	started bool
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type sweep struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
}

// New constructs a Scheduler over the given schedule store and executor.
// Call Start to load persisted schedules and begin firing.
func New(schedules core.ScheduleStore, executor core.WorkflowExecutor, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		MissedGrace:   DefaultMissedGrace,
		SweepInterval: DefaultSweepInterval,
		Logger:        logging.NoOpLogger{},
		Now:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Scheduler{
		schedules:     schedules,
		executor:      executor,
		parser:        cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:        opts.Logger,
		now:           opts.Now,
		missedGrace:   opts.MissedGrace,
		sweepInterval: opts.SweepInterval,
		timers:        make(map[string]*time.Timer),
		stopCh:        make(chan struct{}),
	}
}

// Start loads every active schedule, recovers missed runs and arms timers.
// Schedules with invalid cron expressions are logged and skipped, never
// fatal. Start also launches the missed-run sweep and any registered sweeps.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	sweeps := append([]sweep{{name: "missed-runs", interval: s.sweepInterval, fn: s.recoverMissed}}, s.sweeps...)
	s.mu.Unlock()

	tasks, err := s.schedules.ListActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	for _, task := range tasks {
		schedule, err := s.parser.Parse(task.CronExpression)
		if err != nil {
			s.logger.Warn("skipping schedule with invalid cron expression", "schedule_id", task.ID, "expression", task.CronExpression, "error", err)
			continue
		}

		if s.isMissed(task) {
			s.logger.Info("recovering missed scheduled run", "schedule_id", task.ID, "workflow_id", task.WorkflowID, "was_due", task.NextRunAt)
			s.fireSchedule(ctx, task.ID)
			continue
		}

		if task.NextRunAt.IsZero() || !task.NextRunAt.After(s.now()) {
			// Late but within grace: bring NextRunAt forward without a
			// catch-up run.
			task.NextRunAt = schedule.Next(s.now().In(task.Location()))
			if err := s.schedules.SaveSchedule(ctx, task); err != nil {
				s.logger.Error("failed to persist schedule", "schedule_id", task.ID, "error", err)
			}
		}
		s.arm(task.ID, task.NextRunAt)
	}

	for _, sw := range sweeps {
		s.wg.Add(1)
		go s.runSweep(sw)
	}

	s.logger.Info("scheduler started", "schedules", len(tasks), "sweeps", len(sweeps))
	return nil
}

// CreateTask validates the cron expression, computes the first due time,
// persists the schedule and arms its timer.
func (s *Scheduler) CreateTask(ctx context.Context, workflowID, cronExpression, timezone string) (*core.ScheduledTask, error) {
	schedule, err := s.parser.Parse(cronExpression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpression, err)
	}

	task := &core.ScheduledTask{
		ID:             core.NewID(),
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		Timezone:       timezone,
		IsActive:       true,
		CreatedAt:      s.now().UTC(),
	}
	task.NextRunAt = schedule.Next(s.now().In(task.Location()))

	if err := s.schedules.SaveSchedule(ctx, task); err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	s.arm(task.ID, task.NextRunAt)
	s.logger.Info("schedule created", "schedule_id", task.ID, "workflow_id", workflowID, "expression", cronExpression, "next_run_at", task.NextRunAt)
	return task, nil
}

// PauseTask deactivates a schedule and disarms its timer.
func (s *Scheduler) PauseTask(ctx context.Context, id string) error {
	s.disarm(id)

	task, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("load schedule %s: %w", id, err)
	}
	task.IsActive = false
	if err := s.schedules.SaveSchedule(ctx, task); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}

	s.logger.Info("schedule paused", "schedule_id", id)
	return nil
}

// ResumeTask reactivates a schedule, recomputes its next due time from now
// and re-arms its timer.
func (s *Scheduler) ResumeTask(ctx context.Context, id string) error {
	task, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("load schedule %s: %w", id, err)
	}

	schedule, err := s.parser.Parse(task.CronExpression)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", task.CronExpression, err)
	}

	task.IsActive = true
	task.NextRunAt = schedule.Next(s.now().In(task.Location()))
	if err := s.schedules.SaveSchedule(ctx, task); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}

	s.arm(task.ID, task.NextRunAt)
	s.logger.Info("schedule resumed", "schedule_id", id, "next_run_at", task.NextRunAt)
	return nil
}

// DeleteTask disarms and removes a schedule.
func (s *Scheduler) DeleteTask(ctx context.Context, id string) error {
	s.disarm(id)
	if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("delete schedule %s: %w", id, err)
	}
	s.logger.Info("schedule deleted", "schedule_id", id)
	return nil
}

// AddSweep registers a periodic background function hosted by the scheduler.
// Sweeps registered before Start begin when the scheduler starts. The sweep
// runs once immediately on start, then every interval.
func (s *Scheduler) AddSweep(name string, interval time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw := sweep{name: name, interval: interval, fn: fn}
	if !s.started {
		s.sweeps = append(s.sweeps, sw)
		return
	}
	s.wg.Add(1)
	go s.runSweep(sw)
}

// Shutdown disarms all timers, stops the sweeps and waits for in-flight
// work to finish or the context to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// fireSchedule executes one due schedule: it starts the workflow, stamps the
// schedule counters, recomputes the next due time and re-arms the timer.
// Re-arming happens regardless of whether the run succeeded; a failing
// workflow must not silence its schedule.
func (s *Scheduler) fireSchedule(ctx context.Context, id string) {
	task, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		s.logger.Error("failed to load due schedule", "schedule_id", id, "error", err)
		return
	}
	if !task.IsActive {
		return
	}

	schedule, err := s.parser.Parse(task.CronExpression)
	if err != nil {
		s.logger.Error("due schedule has invalid cron expression", "schedule_id", id, "expression", task.CronExpression, "error", err)
		return
	}

	firedAt := s.now().UTC()
	if _, err := s.executor.ExecuteWorkflow(ctx, task.WorkflowID, "", nil, "schedule:"+task.ID); err != nil {
		s.logger.Error("scheduled workflow failed to start", "schedule_id", id, "workflow_id", task.WorkflowID, "error", err)
	}

	task.RunCount++
	task.LastRunAt = &firedAt
	task.NextRunAt = schedule.Next(s.now().In(task.Location()))
	if err := s.schedules.SaveSchedule(ctx, task); err != nil {
		s.logger.Error("failed to persist schedule after run", "schedule_id", id, "error", err)
	}

	s.arm(task.ID, task.NextRunAt)
}

// recoverMissed is the periodic sweep catching schedules whose timers never
// fired (timer drift, clock jumps, or tasks saved by another process).
func (s *Scheduler) recoverMissed(ctx context.Context) {
	tasks, err := s.schedules.ListActiveSchedules(ctx)
	if err != nil {
		s.logger.Error("missed-run sweep failed to list schedules", "error", err)
		return
	}

	for _, task := range tasks {
		if !s.isMissed(task) {
			continue
		}
		s.logger.Info("recovering missed scheduled run", "schedule_id", task.ID, "workflow_id", task.WorkflowID, "was_due", task.NextRunAt)
		s.fireSchedule(ctx, task.ID)
	}
}

// isMissed reports whether the task was due more than the grace period ago
// and has not run since becoming due.
func (s *Scheduler) isMissed(task *core.ScheduledTask) bool {
	if task.NextRunAt.IsZero() {
		return false
	}
	if !task.NextRunAt.Before(s.now().Add(-s.missedGrace)) {
		return false
	}
	return task.LastRunAt == nil || task.LastRunAt.Before(task.NextRunAt)
}

func (s *Scheduler) arm(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
	}

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()
		s.fireSchedule(context.Background(), id)
	})
}

func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) runSweep(sw sweep) {
	defer s.wg.Done()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	ctx := context.Background()
	sw.fn(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			sw.fn(ctx)
		}
	}
}
