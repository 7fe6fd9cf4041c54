// Package core provides the foundational domain types, interfaces and result
// shapes used by FlowMesh. It defines the core abstractions for:
//
//   - Agents (capability-tagged units of work with a lifecycle state machine)
//   - Tasks (ephemeral typed requests consumed once by an agent)
//   - Workflows, Steps and WorkflowRuns (ordered pipelines and their runs)
//   - ScheduledTasks and EventTriggers (timer and event entry points)
//   - Events (enriched domain notifications)
//   - Rate limit entries (per platform/action quota and cooldown state)
//   - Pluggable stores for every persisted record type
//
// The package intentionally keeps implementation concerns (persistence,
// scheduling, trigger evaluation, concrete agents) out of scope, exposing
// small interfaces to enable custom backends and isolated tests.
package core
