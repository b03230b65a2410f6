// Package llm adapts language model providers to a single prompt-in,
// text-out capability.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/askdb/askdb/internal/observability"
)

// Completer returns the model's completion for one prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// WithTimeout bounds every completion by d. A non-positive d returns next unchanged.
func WithTimeout(next Completer, d time.Duration) Completer {
	if d <= 0 {
		return next
	}
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		out, err := next.Complete(ctx, prompt)
		if err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("completion timed out after %s: %w", d, err)
		}
		return out, err
	})
}

// Instrument records completion latency under the given pipeline stage.
func Instrument(stage string, next Completer) Completer {
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		start := time.Now()
		out, err := next.Complete(ctx, prompt)
		observability.ObserveLLMRequest(stage, time.Since(start), err)
		return out, err
	})
}
