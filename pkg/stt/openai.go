package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/teslashibe/kitchen-buddy/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI transcribes segments with OpenAI's Whisper API.
type OpenAI struct {
	config *Config
	client openai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI transcription provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = "whisper-1"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpc.NewClient(cfg.Timeout)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClient(clientOpts...),
		logger: cfg.Logger.With("component", "stt.openai"),
	}, nil
}

// Transcribe uploads audio and returns the recognized text.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyAudio)
	}
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}
	start := time.Now()

	res, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "segment"+o.config.FileExt, o.config.contentType()),
		Model: openai.AudioModel(o.config.Model),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, WrapError(providerOpenAI, fmt.Errorf("API error %d: %w", apiErr.StatusCode, err))
		}
		return nil, WrapError(providerOpenAI, err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyTranscript)
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("transcribed segment", "bytes", len(audio), "latency_ms", latency)

	return &Transcript{Text: text, LatencyMs: latency}, nil
}

// Health is a no-op; the key is validated on first use.
func (o *OpenAI) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (o *OpenAI) Close() error {
	return nil
}

// Name implements Named.
func (o *OpenAI) Name() string {
	return providerOpenAI
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
