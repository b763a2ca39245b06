package stt

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// TranscribeFunc is called when Transcribe is invoked. If nil, the
	// transcript is the audio interpreted as UTF-8 text.
	TranscribeFunc func(ctx context.Context, audio []byte) (*Transcript, error)

	mu    sync.Mutex
	calls [][]byte
}

// NewMock creates a mock that "hears" the bytes it is given as text, so a
// test can send []byte("boil eggs") and get that transcript back.
func NewMock() *Mock {
	return &Mock{}
}

// Transcribe records the segment and calls TranscribeFunc.
func (m *Mock) Transcribe(ctx context.Context, audio []byte) (*Transcript, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]byte(nil), audio...))
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio)
	}
	if len(audio) == 0 {
		return nil, WrapError("mock", ErrEmptyTranscript)
	}
	return &Transcript{Text: string(audio)}, nil
}

// Health always succeeds.
func (m *Mock) Health(ctx context.Context) error {
	return nil
}

// Close always succeeds.
func (m *Mock) Close() error {
	return nil
}

// Segments returns a copy of every segment passed to Transcribe, in order.
func (m *Mock) Segments() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Transcribe calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		TranscribeFunc: func(ctx context.Context, audio []byte) (*Transcript, error) {
			return nil, err
		},
	}
}

// WithLatency delays m's transcripts by delay, honouring ctx.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	next := m.TranscribeFunc
	m.TranscribeFunc = func(ctx context.Context, audio []byte) (*Transcript, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next != nil {
			return next(ctx, audio)
		}
		return &Transcript{Text: string(audio)}, nil
	}
	return m
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
