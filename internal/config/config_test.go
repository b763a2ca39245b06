package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidatesWithKey(t *testing.T) {
	cfg := Default()
	cfg.GeminiKey = "test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate with a gemini key: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Voice.Segmentation != SegmentationClient {
		t.Errorf("Segmentation = %q, want %q", cfg.Voice.Segmentation, SegmentationClient)
	}
	if cfg.Voice.MaxQueuedSegments != 4 {
		t.Errorf("MaxQueuedSegments = %d, want 4", cfg.Voice.MaxQueuedSegments)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"empty preamble", func(c *Config) { c.Voice.Preamble = "  " }, true},
		{"bad segmentation", func(c *Config) { c.Voice.Segmentation = "vad" }, true},
		{"server segmentation", func(c *Config) { c.Voice.Segmentation = SegmentationServer }, false},
		{"threshold too high", func(c *Config) { c.Voice.SilenceThreshold = 1.5 }, true},
		{"zero window", func(c *Config) { c.Voice.SilenceWindow = 0 }, true},
		{"missing gemini key", func(c *Config) { c.GeminiKey = "" }, true},
		{"openai llm without key", func(c *Config) { c.LLM.Providers = []string{"openai"} }, true},
		{"unknown tts", func(c *Config) { c.TTS.Providers = []string{"espeak"} }, true},
		{"no stt providers", func(c *Config) { c.STT.Providers = nil }, true},
		{"openai everywhere", func(c *Config) {
			c.OpenAIKey = "sk"
			c.STT.Providers = []string{"openai"}
			c.LLM.Providers = []string{"openai"}
			c.TTS.Providers = []string{"openai"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.GeminiKey = "test"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kitchen-buddy.yaml")
	yaml := `
server:
  port: 4000
voice:
  segmentation: server
  silence_window: 1500ms
  max_queued_segments: 2
tts:
  providers: [coqui, piper]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("PORT", "5000")
	t.Setenv("STT_PROVIDER", "whisper, openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Port = %d, want env override 5000", cfg.Server.Port)
	}
	if cfg.Voice.Segmentation != SegmentationServer {
		t.Errorf("Segmentation = %q, want server", cfg.Voice.Segmentation)
	}
	if cfg.Voice.SilenceWindow != 1500*time.Millisecond {
		t.Errorf("SilenceWindow = %v, want 1.5s", cfg.Voice.SilenceWindow)
	}
	if cfg.Voice.MaxQueuedSegments != 2 {
		t.Errorf("MaxQueuedSegments = %d, want 2", cfg.Voice.MaxQueuedSegments)
	}
	if len(cfg.TTS.Providers) != 2 || cfg.TTS.Providers[0] != "coqui" {
		t.Errorf("TTS.Providers = %v", cfg.TTS.Providers)
	}
	if len(cfg.STT.Providers) != 2 || cfg.STT.Providers[1] != "openai" {
		t.Errorf("STT.Providers = %v", cfg.STT.Providers)
	}
	// Untouched fields keep defaults.
	if cfg.Voice.Preamble != DefaultPreamble {
		t.Error("preamble should keep its default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("PORT", "not-a-port")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric PORT")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" piper ,, coqui ")
	if len(got) != 2 || got[0] != "piper" || got[1] != "coqui" {
		t.Errorf("splitList = %v", got)
	}
}
