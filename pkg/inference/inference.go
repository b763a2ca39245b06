// Package inference provides a unified interface for reply generation.
//
// A request carries the full conversation history. Each backend maps that
// history onto its own role vocabulary with conversation.Map, so role
// handling is the same pure function for every provider and can be tested
// without a network.
//
// Example usage:
//
//	p, _ := inference.NewGemini(ctx,
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    inference.WithModel("gemini-1.5-flash"),
//	)
//	defer p.Close()
//
//	resp, _ := p.Chat(ctx, &inference.ChatRequest{History: history.Snapshot()})
//	fmt.Println(resp.Text)
package inference

import (
	"context"

	"github.com/teslashibe/kitchen-buddy/pkg/conversation"
)

// Provider generates an assistant reply for a conversation.
type Provider interface {
	// Chat generates a reply to the trailing user turn of req.History.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Named is implemented by providers that can report a short name for logs.
type Named interface {
	Name() string
}

// ChatRequest for reply generation.
type ChatRequest struct {
	// History is the full ordered conversation, preamble first.
	History []conversation.Entry

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length. Zero uses the provider default.
	MaxTokens int

	// Temperature controls randomness. Zero uses the provider default.
	Temperature float64
}

// ChatResponse from reply generation.
type ChatResponse struct {
	// Text is the assistant reply.
	Text string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
