// Package bus implements the in-process event system: pattern-matched
// subscriptions, a bounded event log, durable persistence of owned events
// and trigger evaluation that starts workflows.
package bus

import (
	"context"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/logging"
)

// DefaultLogCapacity bounds the in-memory event log; the oldest events are
// evicted first.
const DefaultLogCapacity = 500

// Handler consumes a delivered event. Handlers run synchronously on the
// emitting goroutine; a panicking handler is recovered and logged without
// affecting other subscribers.
type Handler func(ctx context.Context, event core.Event)

// Options configures a Bus.
type Options struct {
	// Triggers looks up persisted event triggers. Nil disables trigger
	// evaluation.
	Triggers core.TriggerStore

	// Events receives durable copies of owned events. Nil disables
	// persistence.
	Events core.EventStore

	// Executor starts workflow runs for matched triggers. Nil disables
	// trigger evaluation.
	Executor core.WorkflowExecutor

	// LogCapacity bounds the in-memory event log. Defaults to
	// DefaultLogCapacity.
	LogCapacity int

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

type subscription struct {
	id       int
	pattern  string
	wildcard bool
	matcher  glob.Glob
	handler  Handler
}

// Bus is the central event system. Subscribers receive events synchronously,
// wildcard patterns before exact ones (subscription order within each group);
// trigger evaluation runs asynchronously so a slow workflow never blocks the
// emitter.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
	log    []core.Event
	logCap int

	triggers core.TriggerStore
	events   core.EventStore
	executor core.WorkflowExecutor
	logger   logging.Logger

	wg sync.WaitGroup
}

var _ core.EventPublisher = (*Bus)(nil)

// New constructs a Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		LogCapacity: DefaultLogCapacity,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = DefaultLogCapacity
	}

	return &Bus{
		logCap:   opts.LogCapacity,
		triggers: opts.Triggers,
		events:   opts.Events,
		executor: opts.Executor,
		logger:   opts.Logger,
	}
}

// Subscribe registers a handler for event types matching the glob pattern
// (e.g. "content.*", "*"). It returns an unsubscribe function. The pattern
// is compiled once; an invalid pattern falls back to exact matching.
func (b *Bus) Subscribe(pattern string, handler Handler) func() {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		b.logger.Warn("invalid subscription pattern, using exact match", "pattern", pattern, "error", err)
		matcher = nil
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{
		id:       id,
		pattern:  pattern,
		wildcard: matcher != nil && strings.ContainsAny(pattern, "*?[{"),
		matcher:  matcher,
		handler:  handler,
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish implements core.EventPublisher. It is Emit under the narrow
// interface name.
func (b *Bus) Publish(ctx context.Context, eventType string, payload map[string]any) core.Event {
	return b.Emit(ctx, eventType, payload)
}

// Emit enriches the payload into an event, appends it to the bounded log,
// delivers it to every matching subscriber, persists it durably when it
// carries an owner, and kicks off trigger evaluation in the background.
func (b *Bus) Emit(ctx context.Context, eventType string, payload map[string]any) core.Event {
	event := core.NewEvent(eventType, payload)

	b.mu.Lock()
	b.log = append(b.log, event)
	if len(b.log) > b.logCap {
		b.log = b.log[len(b.log)-b.logCap:]
	}
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	// Wildcard subscribers hear the event before exact-type subscribers.
	for _, sub := range subs {
		if sub.wildcard && sub.matches(eventType) {
			b.deliver(ctx, sub, event)
		}
	}
	for _, sub := range subs {
		if !sub.wildcard && sub.matches(eventType) {
			b.deliver(ctx, sub, event)
		}
	}

	if b.events != nil {
		if _, owned := event.Owner(); owned {
			if err := b.events.AppendEvent(ctx, event); err != nil {
				b.logger.Error("failed to persist event", "event_type", eventType, "event_id", event.ID, "error", err)
			}
		}
	}

	if b.triggers != nil && b.executor != nil {
		b.wg.Add(1)
		go b.processTriggers(context.WithoutCancel(ctx), event)
	}

	return event
}

// History returns the most recent logged events, newest first, capped at
// limit (0 means all retained events).
func (b *Bus) History(limit int) []core.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.log)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.Event, 0, n)
	for i := len(b.log) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.log[i])
	}
	return out
}

// Wait blocks until all in-flight trigger evaluations finish. Intended for
// shutdown and tests.
func (b *Bus) Wait() { b.wg.Wait() }

func (s subscription) matches(eventType string) bool {
	if s.matcher != nil {
		return s.matcher.Match(eventType)
	}
	return s.pattern == eventType
}

// deliver invokes one handler, recovering panics so a broken subscriber
// cannot take down the emitter or starve later subscribers.
func (b *Bus) deliver(ctx context.Context, sub subscription, event core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "pattern", sub.pattern, "event_type", event.Type, "panic", r)
		}
	}()
	sub.handler(ctx, event)
}

// processTriggers evaluates persisted triggers against the event and starts
// the bound workflows. One failing trigger never prevents the others from
// firing.
func (b *Bus) processTriggers(ctx context.Context, event core.Event) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("trigger processing panicked", "event_type", event.Type, "panic", r)
		}
	}()

	triggers, err := b.triggers.ListTriggersByEvent(ctx, event.Type)
	if err != nil {
		b.logger.Error("failed to list triggers", "event_type", event.Type, "error", err)
		return
	}

	owner, _ := event.Owner()
	for _, trigger := range triggers {
		if !trigger.Matches(event.Payload) {
			continue
		}

		b.logger.Info("trigger matched", "trigger_id", trigger.ID, "event_type", event.Type, "workflow_id", trigger.WorkflowID)
		if err := b.triggers.IncrementTriggerCount(ctx, trigger.ID); err != nil {
			b.logger.Warn("failed to bump trigger counter", "trigger_id", trigger.ID, "error", err)
		}

		input := make(map[string]any, len(event.Payload)+1)
		for k, v := range event.Payload {
			input[k] = v
		}
		input["triggering_event"] = event.Type

		if _, err := b.executor.ExecuteWorkflow(ctx, trigger.WorkflowID, owner, input, "event:"+event.Type); err != nil {
			b.logger.Error("triggered workflow failed to start", "trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID, "error", err)
		}
	}
}
