package agent

import (
	"context"
	"fmt"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/model"
)

// ModelHandler adapts a generation model into a task handler. The task
// payload's promptKey field becomes the prompt; the generated text lands in
// the output under outputKey. Instructions steer every call made through
// this handler.
func ModelHandler(m model.Model, instructions, promptKey, outputKey string) HandlerFunc {
	if promptKey == "" {
		promptKey = "prompt"
	}
	if outputKey == "" {
		outputKey = "text"
	}

	return func(ctx context.Context, task *core.Task) (map[string]any, error) {
		prompt, ok := task.Payload[promptKey].(string)
		if !ok || prompt == "" {
			return nil, fmt.Errorf("task payload missing %q", promptKey)
		}

		resp, err := m.Generate(ctx, model.Request{Instructions: instructions, Prompt: prompt})
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Info().Name, err)
		}

		return map[string]any{
			outputKey: resp.Text,
			"model":   m.Info().Name,
		}, nil
	}
}
