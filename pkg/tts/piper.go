package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/kitchen-buddy/internal/subproc"
)

const providerPiper = "piper"

// Piper synthesizes speech by running the piper script once per request:
//
//	python piper-server.py <text> <out.wav> <model.onnx>
//
// The output file is created in TempDir and removed on every exit path.
type Piper struct {
	config *Config
	logger *slog.Logger
}

// NewPiper creates a Piper provider.
func NewPiper(opts ...Option) (*Piper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateLocal(); err != nil {
		return nil, err
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("tts: piper model path required")
	}

	return &Piper{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.piper"),
	}, nil
}

// Synthesize runs piper and returns the WAV it wrote.
func (p *Piper) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerPiper, ErrEmptyText)
	}
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	start := time.Now()

	out, err := os.CreateTemp(p.config.TempDir, "piper-*.wav")
	if err != nil {
		return nil, WrapError(providerPiper, fmt.Errorf("create output file: %w", err))
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	if _, err := subproc.Run(ctx, p.logger, p.config.Python, p.config.Script, text, outPath, p.config.ModelPath); err != nil {
		return nil, WrapError(providerPiper, err)
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, WrapError(providerPiper, fmt.Errorf("read output: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerPiper, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	p.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(audio), "latency_ms", latency)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingWAV, Channels: 1, BitDepth: 16},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks the script and model files exist.
func (p *Piper) Health(ctx context.Context) error {
	for _, path := range []string{p.config.Script, p.config.ModelPath} {
		if _, err := os.Stat(path); err != nil {
			return WrapError(providerPiper, err)
		}
	}
	return nil
}

// Close is a no-op; each request owns its process.
func (p *Piper) Close() error {
	return nil
}

// Name implements Named.
func (p *Piper) Name() string {
	return providerPiper
}

// Verify Piper implements Provider at compile time.
var _ Provider = (*Piper)(nil)
