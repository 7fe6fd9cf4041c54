// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer OrchestratorLogger with
// contextual helpers (component, workflow, run) and domain specific logging
// helpers for agent tasks, workflow runs and trigger evaluation.
package logging
