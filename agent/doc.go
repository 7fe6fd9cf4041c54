// Package agent contains the agent state machine base and first-class agent
// implementations for FlowMesh. The package focuses on three concerns:
//
//  1. Lifecycle plumbing (BaseAgent): the idle/working/waiting/complete/error
//     state machine, command-table task dispatch, and status notifications
//  2. The Oracle task router: decomposition of composite tasks into ordered
//     subtasks dispatched through the agent directory
//  3. Handler decorators: rate limiting for outbound actions and
//     model-backed generation handlers
//
// Design principles:
//   - No hidden global state: agents are constructed with an explicit task
//     handler table and hold references (bus, gate, directory) they need
//   - Failures never escape ProcessTask: handler errors and panics become
//     structured TaskResults
//   - Observability: every state transition can be published to the bus
package agent
