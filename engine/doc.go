// Package engine implements the workflow execution engine: it loads a
// workflow, creates a run record, executes the ordered steps sequentially
// while threading accumulated data between them, and finalizes the run as
// completed or failed.
//
// Failure semantics: the first step failure halts the run. Later steps do
// not execute, the run records the error and the partial step results, and
// nothing at this layer retries. Failures are isolated per run; the
// scheduler, event bus and other runs are unaffected.
//
// The engine implements core.WorkflowExecutor and is the single entry point
// the scheduler, the event bus and manual callers share.
package engine
