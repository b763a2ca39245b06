package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/kitchen-buddy/pkg/worker"
)

const providerCoqui = "coqui"

// coquiRequest and coquiResponse are the worker's line protocol.
type coquiRequest struct {
	Text string `json:"text"`
}

type coquiResponse struct {
	Audio string `json:"audio,omitempty"` // base64 WAV
	Error string `json:"error,omitempty"`
}

// Coqui synthesizes speech through a persistent Coqui worker process.
// The worker is owned by the caller: Close does not stop it.
type Coqui struct {
	config *Config
	worker *worker.Worker
	logger *slog.Logger
}

// NewCoqui creates a Coqui provider over an already started worker.
func NewCoqui(opts ...Option) (*Coqui, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Worker == nil {
		return nil, ErrNoWorker
	}

	return &Coqui{
		config: cfg,
		worker: cfg.Worker,
		logger: cfg.Logger.With("component", "tts.coqui"),
	}, nil
}

// StartCoquiWorker launches the Coqui worker script.
func StartCoquiWorker(python, script string, logger *slog.Logger) (*worker.Worker, error) {
	if python == "" || script == "" {
		return nil, ErrNoScript
	}
	return worker.Start(worker.Config{
		Command: python,
		Args:    []string{"-u", script},
		Logger:  logger,
	})
}

// Synthesize sends text to the worker and decodes the returned WAV.
func (c *Coqui) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerCoqui, ErrEmptyText)
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	start := time.Now()

	var resp coquiResponse
	if err := c.worker.Call(ctx, coquiRequest{Text: text}, &resp); err != nil {
		return nil, WrapError(providerCoqui, err)
	}
	if resp.Error != "" {
		return nil, WrapError(providerCoqui, &WorkerError{Message: resp.Error})
	}

	audio, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return nil, WrapError(providerCoqui, fmt.Errorf("decode audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerCoqui, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	c.logger.Debug("synthesized audio", "chars", len(text), "bytes", len(audio), "latency_ms", latency)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingWAV, SampleRate: 22050, Channels: 1, BitDepth: 16},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health reports whether the worker process is still running.
func (c *Coqui) Health(ctx context.Context) error {
	select {
	case <-c.worker.Exited():
		return WrapError(providerCoqui, worker.ErrExited)
	default:
		return nil
	}
}

// Close is a no-op; the worker's owner stops it.
func (c *Coqui) Close() error {
	return nil
}

// Name implements Named.
func (c *Coqui) Name() string {
	return providerCoqui
}

// Verify Coqui implements Provider at compile time.
var _ Provider = (*Coqui)(nil)
