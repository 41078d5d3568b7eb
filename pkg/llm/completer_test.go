package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrake/mailrake/pkg/reliability"
)

func TestCompleterFunc_Adapts(t *testing.T) {
	called := false
	f := CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		called = true
		assert.Equal(t, "p", prompt)
		return json.RawMessage(`{"ok":true}`), nil
	})

	out, err := f.CompleteStructured(context.Background(), "p", nil, nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestResilient_PassesThrough(t *testing.T) {
	log := zerolog.Nop()
	inner := CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"summary":"s"}`), nil
	})
	r := NewResilient(inner, reliability.NewRegistry(), &log)

	out, err := r.CompleteStructured(context.Background(), "prompt", map[string]any{"k": "v"}, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"s"}`, string(out))
}

func TestResilient_CancelledContextStopsRetrying(t *testing.T) {
	log := zerolog.Nop()
	calls := 0
	inner := CompleterFunc(func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
		calls++
		return nil, assert.AnError
	})
	r := NewResilient(inner, reliability.NewRegistry(), &log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.CompleteStructured(ctx, "prompt", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a dead context must not burn the backoff budget")
}
