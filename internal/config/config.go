// Package config loads kitchen-buddy runtime configuration.
//
// Values are resolved in order: Default(), an optional YAML file, a .env file
// in the working directory, then process environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Segmentation modes.
const (
	SegmentationClient = "client" // client sends {"type":"end_speech"}
	SegmentationServer = "server" // server-side RMS silence detection
)

// DefaultPort matches the original voice server.
const DefaultPort = 3001

// DefaultPreamble is the fixed instruction seeded into every voice session.
const DefaultPreamble = `You are a friendly cooking assistant. Always give clear step-by-step instructions, ` +
	`suggest substitutions, mention durations, and keep it conversational. ` +
	`Don't use any type of symbol and short forms. Always start with "Hello!". ` +
	`Provide only 1 step at a time and in the end of every response ask if the user wants to continue.`

// Config is the fully materialized runtime configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Voice  VoiceConfig  `yaml:"voice"`
	STT    STTConfig    `yaml:"stt"`
	LLM    LLMConfig    `yaml:"llm"`
	TTS    TTSConfig    `yaml:"tts"`

	// Credentials are normally supplied through the environment.
	OpenAIKey string `yaml:"openai_api_key"`
	GeminiKey string `yaml:"gemini_api_key"`
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	AllowOrigins string `yaml:"allow_origins"`
	Debug        bool   `yaml:"debug"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// VoiceConfig controls the per-session pipeline.
type VoiceConfig struct {
	Preamble          string        `yaml:"preamble"`
	Segmentation      string        `yaml:"segmentation"`
	SilenceThreshold  float64       `yaml:"silence_threshold"`
	SilenceWindow     time.Duration `yaml:"silence_window"`
	MaxQueuedSegments int           `yaml:"max_queued_segments"`
	MaxSegmentBytes   int           `yaml:"max_segment_bytes"`
	TempDir           string        `yaml:"temp_dir"`

	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`
	GenerateTimeout   time.Duration `yaml:"generate_timeout"`
	SynthesizeTimeout time.Duration `yaml:"synthesize_timeout"`
}

// STTConfig selects and tunes transcription providers.
type STTConfig struct {
	// Providers is tried in order: "whisper", "openai".
	Providers []string `yaml:"providers"`

	Python      string `yaml:"python"`
	Model       string `yaml:"model"`
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`

	OpenAIModel string `yaml:"openai_model"`
}

// LLMConfig selects and tunes reply generation providers.
type LLMConfig struct {
	// Providers is tried in order: "gemini", "openai".
	Providers []string `yaml:"providers"`

	GeminiModel string `yaml:"gemini_model"`
	OpenAIModel string `yaml:"openai_model"`
	BaseURL     string `yaml:"base_url"`

	// SystemInstruction sends the preamble as a system instruction instead of
	// folding it into the first user turn.
	SystemInstruction bool    `yaml:"system_instruction"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
}

// TTSConfig selects and tunes synthesis providers.
type TTSConfig struct {
	// Providers is tried in order: "piper", "coqui", "openai".
	Providers []string `yaml:"providers"`

	Python      string `yaml:"python"`
	PiperScript string `yaml:"piper_script"`
	PiperModel  string `yaml:"piper_model"`
	CoquiScript string `yaml:"coqui_script"`
	OpenAIVoice string `yaml:"openai_voice"`
	OpenAIModel string `yaml:"openai_model"`
}

// Default returns the canonical configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			AllowOrigins: "*",
		},
		Log: LogConfig{Level: "info"},
		Voice: VoiceConfig{
			Preamble:          DefaultPreamble,
			Segmentation:      SegmentationClient,
			SilenceThreshold:  0.02,
			SilenceWindow:     2 * time.Second,
			MaxQueuedSegments: 4,
			MaxSegmentBytes:   16 << 20,
			TempDir:           os.TempDir(),
			TranscribeTimeout: 60 * time.Second,
			GenerateTimeout:   60 * time.Second,
			SynthesizeTimeout: 60 * time.Second,
		},
		STT: STTConfig{
			Providers:   []string{"whisper"},
			Python:      "python3",
			Model:       "base",
			Device:      "cpu",
			ComputeType: "int8",
			OpenAIModel: "whisper-1",
		},
		LLM: LLMConfig{
			Providers:   []string{"gemini"},
			GeminiModel: "gemini-1.5-flash",
			OpenAIModel: "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		TTS: TTSConfig{
			Providers:   []string{"piper"},
			Python:      "python3",
			PiperScript: "piper-server.py",
			PiperModel:  "piper-model/en_US-libritts-high.onnx",
			CoquiScript: "coqui_worker.py",
			OpenAIVoice: "shimmer",
			OpenAIModel: "tts-1",
		},
	}
}

// Load resolves configuration from the optional YAML file at path, a .env
// file if present, and the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiKey = v
	}
	if v := os.Getenv("SEGMENTATION"); v != "" {
		cfg.Voice.Segmentation = v
	}
	if v := os.Getenv("VOICE_TEMP_DIR"); v != "" {
		cfg.Voice.TempDir = v
	}
	if v := os.Getenv("STT_PROVIDER"); v != "" {
		cfg.STT.Providers = splitList(v)
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Providers = splitList(v)
	}
	if v := os.Getenv("TTS_PROVIDER"); v != "" {
		cfg.TTS.Providers = splitList(v)
	}
	if v := os.Getenv("PYTHON"); v != "" {
		cfg.STT.Python = v
		cfg.TTS.Python = v
	}
	if v := os.Getenv("SILENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SILENCE_THRESHOLD: %w", err)
		}
		cfg.Voice.SilenceThreshold = f
	}
	if v := os.Getenv("SILENCE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SILENCE_WINDOW: %w", err)
		}
		cfg.Voice.SilenceWindow = d
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Voice.Preamble) == "" {
		return errors.New("config: voice preamble is required")
	}
	switch c.Voice.Segmentation {
	case SegmentationClient, SegmentationServer:
	default:
		return fmt.Errorf("config: unknown segmentation %q", c.Voice.Segmentation)
	}
	if c.Voice.SilenceThreshold <= 0 || c.Voice.SilenceThreshold >= 1 {
		return errors.New("config: silence threshold must be between 0 and 1")
	}
	if c.Voice.SilenceWindow <= 0 {
		return errors.New("config: silence window must be positive")
	}
	if c.Voice.MaxQueuedSegments < 0 {
		return errors.New("config: max queued segments must not be negative")
	}
	if len(c.STT.Providers) == 0 || len(c.LLM.Providers) == 0 || len(c.TTS.Providers) == 0 {
		return errors.New("config: stt, llm and tts each need at least one provider")
	}
	for _, p := range c.LLM.Providers {
		switch p {
		case "gemini":
			if c.GeminiKey == "" {
				return errors.New("config: GEMINI_API_KEY required for gemini provider")
			}
		case "openai":
			if c.OpenAIKey == "" {
				return errors.New("config: OPENAI_API_KEY required for openai provider")
			}
		default:
			return fmt.Errorf("config: unknown llm provider %q", p)
		}
	}
	for _, p := range c.STT.Providers {
		switch p {
		case "whisper":
		case "openai":
			if c.OpenAIKey == "" {
				return errors.New("config: OPENAI_API_KEY required for openai transcription")
			}
		default:
			return fmt.Errorf("config: unknown stt provider %q", p)
		}
	}
	for _, p := range c.TTS.Providers {
		switch p {
		case "piper", "coqui":
		case "openai":
			if c.OpenAIKey == "" {
				return errors.New("config: OPENAI_API_KEY required for openai speech")
			}
		default:
			return fmt.Errorf("config: unknown tts provider %q", p)
		}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
