package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/kitchen-buddy/pkg/conversation"
)

// Chain implements Provider by trying multiple providers in order.
// A history that cannot be mapped is rejected without trying further
// providers, since every provider maps with the same rules.
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
		logger:    logger.With("component", "inference.chain"),
	}, nil
}

// Chat tries each provider until one succeeds.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var errs []error

	for i, p := range c.providers {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded", "provider", providerName(p, i))
			}
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, conversation.ErrMapping) {
			return nil, err
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next",
			"provider", providerName(p, i), "retryable", retryable(err), "error", err)
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

func providerName(p Provider, i int) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("#%d", i)
}

// Verify Chain implements Provider at compile time.
var _ Provider = (*Chain)(nil)
