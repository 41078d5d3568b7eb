package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailrake/mailrake/pkg/reliability"
)

// Completer is the boundary to the language-model completion service:
// render a structured prompt against a JSON schema, return the parsed
// JSON. Concrete transports live outside this core.
type Completer interface {
	CompleteStructured(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error)

func (f CompleterFunc) CompleteStructured(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
	return f(ctx, prompt, vars, schema)
}

// Resilient wraps a Completer with the completion-call retry policy and a
// circuit breaker, so a dead upstream stops consuming the exponential
// backoff budget on every message.
type Resilient struct {
	inner   Completer
	policy  reliability.Policy
	breaker *reliability.CircuitBreaker
	log     *zerolog.Logger
}

// NewResilient wraps inner.
func NewResilient(inner Completer, registry *reliability.Registry, log *zerolog.Logger) *Resilient {
	logger := log.With().Str("component", "completer").Logger()
	breaker, err := reliability.NewCircuitBreaker(5, time.Minute)
	if err != nil {
		panic(err) // static arguments, cannot fail
	}
	return &Resilient{
		inner:   inner,
		policy:  registry.Get(reliability.PolicyCompletionCall),
		breaker: breaker,
		log:     &logger,
	}
}

// CompleteStructured implements Completer.
func (r *Resilient) CompleteStructured(ctx context.Context, prompt string, vars map[string]any, schema json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.policy.Execute(ctx, func() error {
		return r.breaker.Execute(func() error {
			var err error
			out, err = r.inner.CompleteStructured(ctx, prompt, vars, schema)
			if err != nil {
				r.log.Warn().Err(err).Msg("Completion call failed")
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
