package tts_test

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/kitchen-buddy/internal/log"
	"github.com/teslashibe/kitchen-buddy/pkg/tts"
	"github.com/teslashibe/kitchen-buddy/pkg/worker"
)

// TestHelperPiper stands in for the piper script: args are text, out, model.
func TestHelperPiper(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PIPER") != "1" {
		return
	}
	args := os.Args[len(os.Args)-3:]
	text, out := args[0], args[1]
	if text == "fail" {
		fmt.Fprint(os.Stderr, "voice model missing")
		os.Exit(1)
	}
	if err := os.WriteFile(out, []byte("RIFF"+text), 0o644); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

// TestHelperCoqui stands in for the Coqui worker.
func TestHelperCoqui(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_COQUI") != "1" {
		return
	}
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		var req struct {
			Text string `json:"text"`
		}
		resp := map[string]string{}
		json.Unmarshal(sc.Bytes(), &req)
		switch req.Text {
		case "", "fail":
			resp["error"] = "No text provided"
		default:
			resp["audio"] = base64.StdEncoding.EncodeToString([]byte("RIFF" + req.Text))
		}
		out, _ := json.Marshal(resp)
		fmt.Println(string(out))
	}
	os.Exit(0)
}

func newPiper(t *testing.T, dir string) *tts.Piper {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PIPER", "1")
	p, err := tts.NewPiper(
		tts.WithPython(os.Args[0]),
		tts.WithScript("-test.run=TestHelperPiper"),
		tts.WithModelPath("model.onnx"),
		tts.WithTempDir(dir),
		tts.WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}
	return p
}

func TestPiper(t *testing.T) {
	dir := t.TempDir()
	p := newPiper(t, dir)

	result, err := p.Synthesize(context.Background(), "Hello!")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(result.Audio) != "RIFFHello!" || result.Format.Encoding != tts.EncodingWAV {
		t.Errorf("result = %+v", result)
	}

	t.Run("failure is reported and file removed", func(t *testing.T) {
		if _, err := p.Synthesize(context.Background(), "fail"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("empty text", func(t *testing.T) {
		if _, err := p.Synthesize(context.Background(), " "); !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("error = %v", err)
		}
	})

	leftovers, _ := filepath.Glob(filepath.Join(dir, "piper-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestPiperRequiresModel(t *testing.T) {
	if _, err := tts.NewPiper(tts.WithScript("x.py")); err == nil {
		t.Error("expected error without model path")
	}
}

func TestCoqui(t *testing.T) {
	if _, err := tts.NewCoqui(); !errors.Is(err, tts.ErrNoWorker) {
		t.Fatalf("NewCoqui() without worker error = %v", err)
	}

	w, err := worker.Start(worker.Config{
		Command:     os.Args[0],
		Args:        []string{"-test.run=TestHelperCoqui"},
		Env:         []string{"GO_WANT_HELPER_COQUI=1"},
		StopTimeout: time.Second,
		Logger:      log.Discard(),
	})
	if err != nil {
		t.Fatalf("worker.Start() error = %v", err)
	}
	defer w.Close()

	c, err := tts.NewCoqui(tts.WithWorker(w), tts.WithLogger(log.Discard()))
	if err != nil {
		t.Fatalf("NewCoqui() error = %v", err)
	}

	result, err := c.Synthesize(context.Background(), "Stir gently.")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(result.Audio) != "RIFFStir gently." {
		t.Errorf("Audio = %q", result.Audio)
	}

	_, err = c.Synthesize(context.Background(), "fail")
	var werr *tts.WorkerError
	if !errors.As(err, &werr) || werr.Message != "No text provided" {
		t.Errorf("worker error should surface, got %v", err)
	}

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health() = %v", err)
	}

	// The provider does not own the worker.
	c.Close()
	if _, err := c.Synthesize(context.Background(), "still alive"); err != nil {
		t.Errorf("worker should survive provider Close: %v", err)
	}
}
