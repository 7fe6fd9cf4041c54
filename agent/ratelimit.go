package agent

import (
	"context"
	"fmt"

	"github.com/flowmesh-ai/flowmesh/core"
)

// WithRateLimit wraps a handler so the gated (platform, actionType) pair is
// checked immediately before the action and recorded immediately after it
// succeeds. A rejected check becomes a structured error carrying the
// limiter's reason and wait estimate; the wrapped handler never runs.
func WithRateLimit(gate core.ActionGate, platform, actionType string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, task *core.Task) (map[string]any, error) {
		decision := gate.CanPerform(platform, actionType)
		if !decision.Allowed {
			return nil, fmt.Errorf("rate limited (%s): retry after %s", decision.Reason, decision.RetryAfter)
		}

		output, err := h(ctx, task)
		if err != nil {
			return nil, err
		}

		if err := gate.RecordAction(ctx, platform, actionType); err != nil {
			return nil, fmt.Errorf("record action: %w", err)
		}
		return output, nil
	}
}
