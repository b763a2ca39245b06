package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/teslashibe/kitchen-buddy/internal/subproc"
)

const providerWhisper = "whisper"

// whisperProgram prints one JSON object: {"language", "segments": [...]}.
// Paths and settings arrive through argv, never through the source text.
const whisperProgram = `
import json, sys
from faster_whisper import WhisperModel

path, size, device, compute = sys.argv[1:5]
model = WhisperModel(size, device=device, compute_type=compute)
segments, info = model.transcribe(path)
print(json.dumps({
    "language": info.language,
    "segments": [{"start": s.start, "end": s.end, "text": s.text} for s in segments],
}))
`

type whisperOutput struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Whisper transcribes segments with a faster-whisper subprocess. Each call
// writes the segment to a temp file that is removed on every exit path.
type Whisper struct {
	config *Config
	logger *slog.Logger
}

// NewWhisper creates a faster-whisper provider.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Python == "" {
		return nil, fmt.Errorf("stt: python interpreter required")
	}

	return &Whisper{
		config: cfg,
		logger: cfg.Logger.With("component", "stt.whisper"),
	}, nil
}

// Transcribe runs faster-whisper over audio.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, WrapError(providerWhisper, ErrEmptyAudio)
	}
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}
	start := time.Now()

	f, err := os.CreateTemp(w.config.TempDir, "segment-*"+w.config.FileExt)
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("%w: create segment file: %w", ErrNotDelivered, err))
	}
	path := f.Name()
	defer os.Remove(path)

	_, werr := f.Write(audio)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("%w: write segment file: %w", ErrNotDelivered, werr))
	}

	stdout, err := subproc.Run(ctx, w.logger, w.config.Python, w.args(path)...)
	if errors.Is(err, subproc.ErrStart) {
		return nil, WrapError(providerWhisper, fmt.Errorf("%w: %w", ErrNotDelivered, err))
	}
	if err != nil {
		return nil, WrapError(providerWhisper, err)
	}

	out, err := parseWhisperOutput(stdout)
	if err != nil {
		return nil, WrapError(providerWhisper, err)
	}

	text := JoinSegments(out.Segments)
	if text == "" {
		return nil, WrapError(providerWhisper, ErrEmptyTranscript)
	}

	latency := time.Since(start).Milliseconds()
	w.logger.Debug("transcribed segment",
		"bytes", len(audio),
		"segments", len(out.Segments),
		"language", out.Language,
		"latency_ms", latency,
	)

	return &Transcript{
		Text:      text,
		Language:  out.Language,
		Segments:  out.Segments,
		LatencyMs: latency,
	}, nil
}

func (w *Whisper) args(path string) []string {
	tail := []string{path, w.config.Model, w.config.Device, w.config.ComputeType}
	if w.config.Script != "" {
		return append([]string{w.config.Script}, tail...)
	}
	return append([]string{"-c", whisperProgram}, tail...)
}

// parseWhisperOutput decodes the last JSON line of stdout. Model loaders
// sometimes print progress lines before it.
func parseWhisperOutput(stdout []byte) (*whisperOutput, error) {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var out whisperOutput
		if err := json.Unmarshal(line, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		return &out, nil
	}
	return nil, fmt.Errorf("%w: no JSON in output", ErrMalformedOutput)
}

// Health checks the interpreter can be found.
func (w *Whisper) Health(ctx context.Context) error {
	if _, err := exec.LookPath(w.config.Python); err != nil {
		return WrapError(providerWhisper, err)
	}
	return nil
}

// Close is a no-op; each request owns its process.
func (w *Whisper) Close() error {
	return nil
}

// Name implements Named.
func (w *Whisper) Name() string {
	return providerWhisper
}

// Verify Whisper implements Provider at compile time.
var _ Provider = (*Whisper)(nil)
