package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain implements Provider by trying multiple providers in order.
//
// A segment is offered to the next provider only when the previous one
// failed before the audio reached its backend (ErrNotDelivered). Any other
// failure ends the chain, so a segment is transcribed at most once.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a provider chain. A nil logger uses slog.Default().
func NewChain(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "stt.chain"),
	}, nil
}

// Transcribe tries providers in order while the segment has not been delivered.
func (c *Chain) Transcribe(ctx context.Context, audio []byte) (*Transcript, error) {
	var errs []error

	for i, p := range c.providers {
		tr, err := p.Transcribe(ctx, audio)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider", name(p, i))
			}
			return tr, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, err)
		if !errors.Is(err, ErrNotDelivered) {
			break
		}
		c.logger.Warn("provider failed, trying next", "provider", name(p, i), "error", err)
	}

	return nil, &ChainError{Errors: errs}
}

// Health reports an error only if every provider is unhealthy.
func (c *Chain) Health(ctx context.Context) error {
	var lastErr error
	for _, p := range c.providers {
		if lastErr = p.Health(ctx); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("all %d providers unhealthy: %w", len(c.providers), lastErr)
}

// Close closes all providers and returns the last error.
func (c *Chain) Close() error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func name(p Provider, i int) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("#%d", i)
}

// ChainError aggregates errors from all providers in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("stt chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("stt chain: all %d providers failed: %v", len(e.Errors), errors.Join(e.Errors...))
}

// Unwrap exposes every provider error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

// Verify Chain implements Provider at compile time.
var _ Provider = (*Chain)(nil)
