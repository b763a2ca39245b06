package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/teslashibe/kitchen-buddy/internal/httpc"
)

const providerOpenAI = "openai"

// Voices and models accepted by the speech endpoint.
const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"

	ModelTTS1   = "tts-1"    // lower latency
	ModelTTS1HD = "tts-1-hd" // higher quality
)

// OpenAI synthesizes speech with the OpenAI audio/speech API.
type OpenAI struct {
	config *Config
	client openai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI speech provider. Retries of 429 and 5xx
// responses are handled by the SDK, up to Config.MaxRetries.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceShimmer
	cfg.OutputFormat = EncodingMP3
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpc.NewClient(cfg.Timeout)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClient(clientOpts...),
		logger: cfg.Logger.With("component", "tts.openai"),
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.config.ModelID),
		Voice:          openai.AudioSpeechNewParamsVoice(o.config.VoiceID),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(o.config.OutputFormat),
	})
	if err != nil {
		return nil, o.mapError(ctx, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: o.config.OutputFormat, Channels: 1},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks the key against the models endpoint.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return o.mapError(ctx, err)
	}
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

func (o *OpenAI) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, err)
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
