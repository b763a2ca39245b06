package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/kitchen-buddy/pkg/conversation"
)

// Mock implements Provider for testing.
type Mock struct {
	// ChatFunc is called when Chat is invoked. If nil, the reply is
	// "reply to: " followed by the last user entry.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []*ChatRequest
}

// NewMock creates a mock that echoes the trailing user entry.
func NewMock() *Mock {
	return &Mock{}
}

// Chat records a copy of the request and calls ChatFunc.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	cp := *req
	cp.History = append([]conversation.Entry(nil), req.History...)
	m.mu.Lock()
	m.requests = append(m.requests, &cp)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if len(req.History) == 0 {
		return nil, WrapError("mock", ErrEmptyReply)
	}
	last := req.History[len(req.History)-1]
	return &ChatResponse{Text: fmt.Sprintf("reply to: %s", last.Content), FinishReason: "stop"}, nil
}

// Health always succeeds.
func (m *Mock) Health(ctx context.Context) error {
	return nil
}

// Close always succeeds.
func (m *Mock) Close() error {
	return nil
}

// Requests returns every request received, in order.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of Chat calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return nil, err
		},
	}
}

// WithReplies returns a mock that answers with replies in order, then fails.
func WithReplies(replies ...string) *Mock {
	var mu sync.Mutex
	next := 0
	return &Mock{
		ChatFunc: func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			mu.Lock()
			defer mu.Unlock()
			if next >= len(replies) {
				return nil, WrapError("mock", ErrEmptyReply)
			}
			r := replies[next]
			next++
			return &ChatResponse{Text: r, FinishReason: "stop"}, nil
		},
	}
}

// WithLatency delays m's replies by delay, honouring ctx.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	next := m.ChatFunc
	m.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next != nil {
			return next(ctx, req)
		}
		last := req.History[len(req.History)-1]
		return &ChatResponse{Text: "reply to: " + last.Content, FinishReason: "stop"}, nil
	}
	return m
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
