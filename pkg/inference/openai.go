package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/teslashibe/kitchen-buddy/internal/httpc"
	"github.com/teslashibe/kitchen-buddy/pkg/conversation"
)

const providerOpenAI = "openai"

// OpenAI implements Provider for OpenAI-compatible chat completion APIs
// (OpenAI, Ollama, vLLM) via the official SDK.
type OpenAI struct {
	client openai.Client
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI chat provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = "gpt-4o-mini"
	cfg.Apply(opts...)

	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, WrapError(providerOpenAI, ErrNoAPIKey)
	}

	clientOpts := []option.RequestOption{
		option.WithHTTPClient(httpc.NewClient(cfg.Timeout)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		config: cfg,
		logger: cfg.Logger.With("component", "inference.openai"),
	}, nil
}

// Chat generates a reply with the chat completions endpoint.
func (o *OpenAI) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	prompt, err := conversation.Map(req.History, conversation.OpenAIVocabulary)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.Turns)+1)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	for _, t := range prompt.Turns {
		switch t.Role {
		case conversation.OpenAIVocabulary.User:
			messages = append(messages, openai.UserMessage(t.Content))
		case conversation.OpenAIVocabulary.Assistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		}
	}

	model := o.config.model(req)
	params := openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		MaxTokens:   openai.Int(int64(o.config.maxTokens(req))),
		Temperature: openai.Float(o.config.temperature(req)),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Message, Provider: providerOpenAI}
		}
		return nil, WrapError(providerOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapError(providerOpenAI, fmt.Errorf("%w: no choices", ErrEmptyReply))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyReply)
	}

	out := &ChatResponse{
		Text:         text,
		FinishReason: string(resp.Choices[0].FinishReason),
		Model:        resp.Model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}

	o.logger.Debug("generated reply",
		"model", out.Model,
		"turns", len(prompt.Turns),
		"chars", len(text),
		"latency_ms", out.LatencyMs,
	)
	return out, nil
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
