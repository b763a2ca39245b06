// Package stt provides a unified interface for speech-to-text providers.
//
// Backends are a local faster-whisper subprocess and OpenAI's Whisper API.
// Like the tts package, every backend implements Provider and can be
// wrapped in a Chain for fallback.
//
// Example usage:
//
//	provider, _ := stt.NewWhisper(stt.WithModel("base"))
//	defer provider.Close()
//
//	tr, err := provider.Transcribe(ctx, segmentBytes)
//	// tr.Text is the joined transcript
package stt

import (
	"context"
	"strings"
)

// Provider defines the STT provider interface.
type Provider interface {
	// Transcribe converts one utterance segment to text. It is called at
	// most once per segment; an empty result is an error.
	Transcribe(ctx context.Context, audio []byte) (*Transcript, error)

	// Health checks the provider can serve requests.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Named is implemented by providers that can report a short name for logs.
type Named interface {
	Name() string
}

// Transcript is the result of one Transcribe call.
type Transcript struct {
	// Text is the full transcript, segments joined by spaces.
	Text string

	// Language is the detected language code, when reported.
	Language string

	// Segments are the timed pieces of the transcript, when reported.
	Segments []Segment

	// LatencyMs is the wall time of the call in milliseconds.
	LatencyMs int64
}

// Segment is one timed piece of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// JoinSegments joins segment texts with single spaces and trims the result.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
