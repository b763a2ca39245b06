package voice

import (
	"errors"
	"strings"
	"time"
)

// Segmentation selects who decides where a segment ends.
type Segmentation string

const (
	// SegmentClient ends a segment on the client's end_speech message.
	SegmentClient Segmentation = "client"

	// SegmentServer also ends a segment after one window of silence.
	SegmentServer Segmentation = "server"
)

// Config holds all tunable parameters for a voice session.
type Config struct {
	// Preamble is the instruction seeded as the first history entry.
	Preamble string

	// Segmentation
	Segmentation     Segmentation
	SilenceThreshold float64       // RMS of normalized amplitude, 0.0-1.0 (default: 0.02)
	SilenceWindow    time.Duration // Sampling window (default: 2s)

	// Buffering
	MaxQueuedSegments int // Segments waiting behind the turn in flight (default: 4)
	MaxSegmentBytes   int // Capture limit per segment (default: 16MB)

	// Stage timeouts
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Preamble: "You are a friendly cooking assistant.",

		Segmentation:     SegmentClient,
		SilenceThreshold: 0.02,
		SilenceWindow:    2 * time.Second,

		MaxQueuedSegments: 4,
		MaxSegmentBytes:   16 << 20,

		TranscribeTimeout: 60 * time.Second,
		GenerateTimeout:   60 * time.Second,
		SynthesizeTimeout: 60 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Preamble) == "" {
		return errors.New("voice: preamble required")
	}

	switch c.Segmentation {
	case SegmentClient, SegmentServer:
	default:
		return errors.New("voice: unknown segmentation: " + string(c.Segmentation))
	}

	if c.SilenceThreshold <= 0 || c.SilenceThreshold >= 1 {
		return errors.New("voice: silence threshold must be between 0 and 1")
	}
	if c.SilenceWindow <= 0 {
		return errors.New("voice: silence window must be positive")
	}
	if c.MaxQueuedSegments < 0 {
		return errors.New("voice: max queued segments must not be negative")
	}
	if c.MaxSegmentBytes <= 0 {
		return errors.New("voice: max segment bytes must be positive")
	}
	if c.TranscribeTimeout <= 0 || c.GenerateTimeout <= 0 || c.SynthesizeTimeout <= 0 {
		return errors.New("voice: stage timeouts must be positive")
	}

	return nil
}

// WithPreamble returns a copy with the preamble set.
func (c Config) WithPreamble(preamble string) Config {
	c.Preamble = preamble
	return c
}

// WithServerSegmentation returns a copy using silence detection.
func (c Config) WithServerSegmentation(threshold float64, window time.Duration) Config {
	c.Segmentation = SegmentServer
	c.SilenceThreshold = threshold
	c.SilenceWindow = window
	return c
}

// WithTimeouts returns a copy with all three stage timeouts set.
func (c Config) WithTimeouts(transcribe, generate, synthesize time.Duration) Config {
	c.TranscribeTimeout = transcribe
	c.GenerateTimeout = generate
	c.SynthesizeTimeout = synthesize
	return c
}

// WithMaxQueuedSegments returns a copy with the queue cap set.
func (c Config) WithMaxQueuedSegments(n int) Config {
	c.MaxQueuedSegments = n
	return c
}

func (c *Config) timeout(stage Stage) time.Duration {
	switch stage {
	case StageTranscribe:
		return c.TranscribeTimeout
	case StageGenerate:
		return c.GenerateTimeout
	default:
		return c.SynthesizeTimeout
	}
}
