package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-ai/flowmesh/core"
	"github.com/flowmesh-ai/flowmesh/model"
)

func TestModelHandler(t *testing.T) {
	m := model.NewMockModel("mock-1")
	m.AddResponse("write about go", "Go is great.")

	h := ModelHandler(m, "You are a writer.", "", "")
	out, err := h(context.Background(), core.NewTask("generate", map[string]any{"prompt": "write about go"}))
	require.NoError(t, err)
	assert.Equal(t, "Go is great.", out["text"])
	assert.Equal(t, "mock-1", out["model"])
}

func TestModelHandlerCustomKeys(t *testing.T) {
	m := model.NewMockModel("mock-1")
	m.AddResponse("hi", "hello")

	h := ModelHandler(m, "", "question", "answer")
	out, err := h(context.Background(), core.NewTask("generate", map[string]any{"question": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, "hello", out["answer"])
}

func TestModelHandlerMissingPrompt(t *testing.T) {
	h := ModelHandler(model.NewMockModel("mock-1"), "", "", "")

	_, err := h(context.Background(), core.NewTask("generate", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt")
}
