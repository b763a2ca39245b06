package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/teslashibe/kitchen-buddy/internal/httpc"
	"github.com/teslashibe/kitchen-buddy/pkg/conversation"
)

const providerGemini = "gemini"

// Gemini implements Provider with Google's genai SDK.
//
// Gemini's contents API only knows "user" and "model". The preamble is
// folded into the first user turn unless SystemInstruction is set, in which
// case it is sent as the request's system instruction.
type Gemini struct {
	client *genai.Client
	config *Config
	vocab  conversation.Vocabulary
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Model = "gemini-1.5-flash"
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("genai client: %w", err))
	}

	vocab := conversation.GeminiVocabulary
	if cfg.SystemInstruction {
		vocab = conversation.GeminiSystemVocabulary
	}

	return &Gemini{
		client: client,
		config: cfg,
		vocab:  vocab,
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// Chat generates a reply with GenerateContent.
func (g *Gemini) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	prompt, err := conversation.Map(req.History, g.vocab)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	temp := float32(g.config.temperature(req))
	gc := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(g.config.maxTokens(req)),
	}
	if prompt.System != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(prompt.System)}}
	}

	contents := make([]*genai.Content, 0, len(prompt.Turns))
	for _, t := range prompt.Turns {
		contents = append(contents, genai.NewContentFromText(t.Content, genai.Role(t.Role)))
	}

	model := g.config.model(req)
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.Code, Message: apiErr.Message, Provider: providerGemini}
		}
		return nil, WrapError(providerGemini, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, WrapError(providerGemini, ErrEmptyReply)
	}

	out := &ChatResponse{
		Text:      text,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	g.logger.Debug("generated reply",
		"model", model,
		"turns", len(prompt.Turns),
		"chars", len(text),
		"latency_ms", out.LatencyMs,
	)
	return out, nil
}

// Health is a no-op; the key is validated on first use.
func (g *Gemini) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op; the genai client holds no long-lived resources.
func (g *Gemini) Close() error {
	return nil
}

// Name implements Named.
func (g *Gemini) Name() string {
	return providerGemini
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
