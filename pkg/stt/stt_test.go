package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/kitchen-buddy/internal/log"
)

// TestHelperWhisper stands in for faster-whisper. argv ends with
// <audio> <model> <device> <compute_type>; output depends on the audio.
func TestHelperWhisper(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_WHISPER") != "1" {
		return
	}
	args := os.Args[len(os.Args)-4:]
	audio, err := os.ReadFile(args[0])
	if err != nil {
		os.Exit(3)
	}
	switch string(audio) {
	case "silence":
		fmt.Println(`{"language":"en","segments":[]}`)
	case "garbage":
		fmt.Println("Traceback: not json")
	case "crash":
		fmt.Fprintln(os.Stderr, "CUDA not available")
		os.Exit(1)
	default:
		fmt.Println("loading model", args[1])
		fmt.Printf(`{"language":"en","segments":[{"start":0,"end":1,"text":" %s"},{"start":1,"end":2,"text":" please "}]}`+"\n", audio)
	}
	os.Exit(0)
}

func newHelperWhisper(t *testing.T, dir string) *Whisper {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_WHISPER", "1")
	w, err := NewWhisper(
		WithPython(os.Args[0]),
		WithScript("-test.run=TestHelperWhisper"),
		WithTempDir(dir),
		WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("NewWhisper() error = %v", err)
	}
	return w
}

func TestWhisperTranscribe(t *testing.T) {
	dir := t.TempDir()
	w := newHelperWhisper(t, dir)
	ctx := context.Background()

	tests := []struct {
		name    string
		audio   string
		want    string
		wantErr error
	}{
		{"joins segments", "boil eggs", "boil eggs please", nil},
		{"no speech", "silence", "", ErrEmptyTranscript},
		{"bad output", "garbage", "", ErrMalformedOutput},
		{"empty audio", "", "", ErrEmptyAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := w.Transcribe(ctx, []byte(tt.audio))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transcribe() error = %v", err)
			}
			if tr.Text != tt.want || tr.Language != "en" {
				t.Errorf("transcript = %+v, want %q", tr, tt.want)
			}
		})
	}

	t.Run("process failure", func(t *testing.T) {
		_, err := w.Transcribe(ctx, []byte("crash"))
		if err == nil || !strings.Contains(err.Error(), "CUDA not available") {
			t.Errorf("error = %v, want stderr in message", err)
		}
	})

	leftovers, _ := filepath.Glob(filepath.Join(dir, "segment-*"))
	if len(leftovers) != 0 {
		t.Errorf("segment files left behind: %v", leftovers)
	}
}

func TestWhisperArgs(t *testing.T) {
	w, _ := NewWhisper(WithModel("small"), WithDevice("cuda", "float16"))
	args := w.args("/tmp/a.webm")
	if args[0] != "-c" || args[1] != whisperProgram {
		t.Errorf("inline program not used: %v", args[:1])
	}
	tail := strings.Join(args[2:], " ")
	if tail != "/tmp/a.webm small cuda float16" {
		t.Errorf("argv tail = %q", tail)
	}
}

func TestParseWhisperOutput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		segs    int
	}{
		{"single line", `{"language":"en","segments":[{"text":"hi"}]}`, false, 1},
		{"progress before json", "Downloading...\n{\"segments\":[]}\n", false, 0},
		{"no json", "nothing here", true, 0},
		{"broken json", `{"segments":[`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parseWhisperOutput([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("error should wrap ErrMalformedOutput: %v", err)
			}
			if err == nil && len(out.Segments) != tt.segs {
				t.Errorf("segments = %d, want %d", len(out.Segments), tt.segs)
			}
		})
	}
}

func TestJoinSegments(t *testing.T) {
	got := JoinSegments([]Segment{{Text: " Hello"}, {Text: "  "}, {Text: "world "}})
	if got != "Hello world" {
		t.Errorf("JoinSegments = %q", got)
	}
}

func TestOpenAITranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)

		w.Header().Set("Content-Type", "application/json")
		if string(data) == "quiet" {
			w.Write([]byte(`{"text":"  "}`))
			return
		}
		fmt.Fprintf(w, `{"text":"%s from %s"}`, data, hdr.Filename)
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(srv.URL+"/"), WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}

	tr, err := p.Transcribe(context.Background(), []byte("chop onions"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if tr.Text != "chop onions from segment.webm" {
		t.Errorf("Text = %q", tr.Text)
	}

	if _, err := p.Transcribe(context.Background(), []byte("quiet")); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("quiet error = %v, want ErrEmptyTranscript", err)
	}
}

func TestOpenAIFailedSegmentSentOnce(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("sk-test"), WithBaseURL(srv.URL+"/"), WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}

	if _, err := p.Transcribe(context.Background(), []byte("segment")); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("backend requests = %d, want 1", n)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("error = %v, want ErrNoAPIKey", err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back when not delivered", func(t *testing.T) {
		backup := NewMock()
		c, _ := NewChain(log.Discard(), WithError(WrapError("whisper", ErrNotDelivered)), backup)
		tr, err := c.Transcribe(ctx, []byte("hi"))
		if err != nil || tr.Text != "hi" {
			t.Fatalf("Transcribe() = %+v, %v", tr, err)
		}
	})

	t.Run("delivered failure is final", func(t *testing.T) {
		backup := NewMock()
		c, _ := NewChain(log.Discard(), WithError(errors.New("backend crashed")), backup)
		_, err := c.Transcribe(ctx, []byte("hi"))
		var ce *ChainError
		if !errors.As(err, &ce) || len(ce.Errors) != 1 {
			t.Fatalf("error = %v", err)
		}
		if backup.CallCount() != 0 {
			t.Errorf("backup called %d times, want 0", backup.CallCount())
		}
	})

	t.Run("missing interpreter falls back", func(t *testing.T) {
		w, err := NewWhisper(WithPython("/nonexistent/python3"), WithTempDir(t.TempDir()), WithLogger(log.Discard()))
		if err != nil {
			t.Fatal(err)
		}
		backup := NewMock()
		c, _ := NewChain(log.Discard(), w, backup)
		tr, err := c.Transcribe(ctx, []byte("hi"))
		if err != nil || tr.Text != "hi" {
			t.Fatalf("Transcribe() = %+v, %v", tr, err)
		}
		if backup.CallCount() != 1 {
			t.Errorf("backup called %d times, want 1", backup.CallCount())
		}
	})

	t.Run("empty transcript is final", func(t *testing.T) {
		backup := NewMock()
		c, _ := NewChain(log.Discard(), WithError(WrapError("whisper", ErrEmptyTranscript)), backup)
		if _, err := c.Transcribe(ctx, []byte("hi")); !errors.Is(err, ErrEmptyTranscript) {
			t.Fatalf("error = %v", err)
		}
		if backup.CallCount() != 0 {
			t.Error("segment must be transcribed at most once per provider run")
		}
	})

	t.Run("all fail", func(t *testing.T) {
		c, _ := NewChain(log.Discard(),
			WithError(WrapError("a", ErrNotDelivered)),
			WithError(WrapError("b", ErrNotDelivered)))
		_, err := c.Transcribe(ctx, []byte("hi"))
		var ce *ChainError
		if !errors.As(err, &ce) || len(ce.Errors) != 2 {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("requires providers", func(t *testing.T) {
		if _, err := NewChain(nil); !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("error = %v", err)
		}
	})
}

func TestMockRecordsSegments(t *testing.T) {
	m := NewMock()
	m.Transcribe(context.Background(), []byte("a"))
	m.Transcribe(context.Background(), []byte("b"))

	segs := m.Segments()
	if len(segs) != 2 || string(segs[0]) != "a" || string(segs[1]) != "b" {
		t.Errorf("Segments() = %q", segs)
	}
	if _, err := m.Transcribe(context.Background(), nil); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("empty segment error = %v", err)
	}
}
