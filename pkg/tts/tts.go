// Package tts provides a unified interface for text-to-speech providers.
//
// The package supports local subprocess backends (Piper one-shot, Coqui
// persistent worker) and OpenAI's speech endpoint. All providers implement
// the Provider interface, enabling switching or chaining without changing
// caller code.
//
// Example usage:
//
//	provider, _ := tts.NewPiper(
//	    tts.WithScript("piper-server.py"),
//	    tts.WithModelPath("piper-model/en_US-libritts-high.onnx"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello! Preheat the oven.")
//	// result.Audio contains WAV or MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks the provider can serve requests.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio data.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated audio playback duration, when known.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the wall time of the synthesis call in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the container or codec.
	Encoding Encoding

	// SampleRate in Hz (e.g., 22050, 24000, 44100). Zero when unknown.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats (e.g., 16 for PCM16).
	BitDepth int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingWAV   Encoding = "wav"       // RIFF/WAVE container (Piper, Coqui)
	EncodingMP3   Encoding = "mp3"       // MP3 (OpenAI default)
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
)

// ContentType returns the MIME type for the encoding.
func (e Encoding) ContentType() string {
	switch e {
	case EncodingWAV:
		return "audio/wav"
	case EncodingMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
