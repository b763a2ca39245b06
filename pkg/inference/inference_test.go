package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/kitchen-buddy/pkg/conversation"
)

const testPreamble = "You are a friendly cooking assistant."

func history(turns ...string) []conversation.Entry {
	h := conversation.NewHistory(testPreamble)
	for i, t := range turns {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		if err := h.Append(role, t); err != nil {
			panic(err)
		}
	}
	return h.Snapshot()
}

func TestMockEchoesLastUser(t *testing.T) {
	m := NewMock()
	resp, err := m.Chat(context.Background(), &ChatRequest{History: history("how do I boil an egg")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "reply to: how do I boil an egg" {
		t.Errorf("Text = %q", resp.Text)
	}
	if m.CallCount() != 1 {
		t.Errorf("CallCount = %d", m.CallCount())
	}
	if got := len(m.Requests()[0].History); got != 2 {
		t.Errorf("recorded history len = %d, want 2", got)
	}
}

func TestMockWithReplies(t *testing.T) {
	m := WithReplies("Hello! Step one.", "Step two.")
	ctx := context.Background()

	for _, want := range []string{"Hello! Step one.", "Step two."} {
		resp, err := m.Chat(ctx, &ChatRequest{History: history("next")})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Text != want {
			t.Errorf("Text = %q, want %q", resp.Text, want)
		}
	}
	if _, err := m.Chat(ctx, &ChatRequest{History: history("more")}); !errors.Is(err, ErrEmptyReply) {
		t.Errorf("exhausted mock error = %v, want ErrEmptyReply", err)
	}
}

func TestMockLatencyHonoursContext(t *testing.T) {
	m := WithLatency(NewMock(), time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := m.Chat(ctx, &ChatRequest{History: history("hi")}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestChainFallback(t *testing.T) {
	failing := WithError(errors.New("quota"))
	ok := WithReplies("Hello!")

	c, err := NewChain(nil, failing, ok)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Chat(context.Background(), &ChatRequest{History: history("hi")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "Hello!" {
		t.Errorf("Text = %q", resp.Text)
	}
	if failing.CallCount() != 1 || ok.CallCount() != 1 {
		t.Errorf("calls = %d, %d", failing.CallCount(), ok.CallCount())
	}
}

func TestChainAllFail(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	c, _ := NewChain(nil, WithError(errA), WithError(errB))

	_, err := c.Chat(context.Background(), &ChatRequest{History: history("hi")})
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("error = %T, want *ChainError", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Error("ChainError should unwrap to every provider error")
	}
}

func TestChainStopsOnMappingError(t *testing.T) {
	mapping := WithError(WrapError("gemini", fmt.Errorf("%w: %w", conversation.ErrMapping, conversation.ErrNoTrailingUser)))
	second := NewMock()
	c, _ := NewChain(nil, mapping, second)

	_, err := c.Chat(context.Background(), &ChatRequest{History: history("hi", "Hello!")})
	if !errors.Is(err, conversation.ErrMapping) {
		t.Fatalf("error = %v, want mapping error", err)
	}
	if second.CallCount() != 0 {
		t.Error("mapping errors must not fall back")
	}
}

func TestNewChainEmpty(t *testing.T) {
	if _, err := NewChain(nil); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("error = %v", err)
	}
}

type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
}

func geminiServer(t *testing.T, reply string, got *geminiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": `+strconvQuote(reply)+`}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16}
		}`)
	}))
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGeminiFoldsPreamble(t *testing.T) {
	var got geminiRequest
	srv := geminiServer(t, "Hello! First, boil water.", &got)
	defer srv.Close()

	g, err := NewGemini(context.Background(), WithAPIKey("test"), WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := g.Chat(context.Background(), &ChatRequest{History: history("how do I make pasta")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "Hello! First, boil water." {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}

	if len(got.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(got.Contents))
	}
	if got.Contents[0].Role != "user" {
		t.Errorf("role = %q, want user", got.Contents[0].Role)
	}
	want := testPreamble + "\n\nhow do I make pasta"
	if text := got.Contents[0].Parts[0].Text; text != want {
		t.Errorf("first user text = %q, want %q", text, want)
	}
	if got.SystemInstruction != nil {
		t.Error("preamble should not be sent as a system instruction by default")
	}
}

func TestGeminiSystemInstruction(t *testing.T) {
	var got geminiRequest
	srv := geminiServer(t, "Step two.", &got)
	defer srv.Close()

	g, err := NewGemini(context.Background(),
		WithAPIKey("test"),
		WithBaseURL(srv.URL+"/"),
		WithSystemInstruction(true),
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := g.Chat(context.Background(), &ChatRequest{
		History: history("make pasta", "Hello! Boil water.", "yes continue"),
	}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != testPreamble {
		t.Errorf("system instruction = %+v", got.SystemInstruction)
	}
	roles := make([]string, len(got.Contents))
	for i, c := range got.Contents {
		roles[i] = c.Role
	}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Errorf("roles = %v", roles)
	}
}

func TestGeminiRejectsUnmappableHistory(t *testing.T) {
	g, err := NewGemini(context.Background(), WithAPIKey("test"), WithBaseURL("http://127.0.0.1:1/"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.Chat(context.Background(), &ChatRequest{History: history("hi", "Hello!")})
	if !errors.Is(err, conversation.ErrMapping) {
		t.Errorf("error = %v, want mapping error", err)
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background()); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("error = %v, want ErrNoAPIKey", err)
	}
}

func TestOpenAIChat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello! Chop the onion."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
		}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(srv.URL+"/"), WithRetry(0))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := o.Chat(context.Background(), &ChatRequest{
		History: history("soup please", "Hello! Get a pot.", "got it"),
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "Hello! Chop the onion." || resp.FinishReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.TotalTokens != 25 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}

	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("messages = %+v", got.Messages)
	}
	for i, m := range got.Messages {
		if m.Role != wantRoles[i] {
			t.Errorf("messages[%d].role = %q, want %q", i, m.Role, wantRoles[i])
		}
	}
	if got.Messages[0].Content != testPreamble {
		t.Errorf("system content = %q", got.Messages[0].Content)
	}
}

func TestOpenAIAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	o, _ := NewOpenAI(WithAPIKey("sk-bad"), WithBaseURL(srv.URL+"/"), WithRetry(0))
	_, err := o.Chat(context.Background(), &ChatRequest{History: history("hi")})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
	}
	for _, tt := range tests {
		err := WrapError("openai", &APIError{StatusCode: tt.status, Provider: "openai"})
		if got := retryable(err); got != tt.want {
			t.Errorf("retryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
