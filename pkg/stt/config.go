package stt

import (
	"log/slog"
	"os"
	"time"
)

// Config holds STT provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Remote provider credentials
	APIKey  string
	BaseURL string

	// Model is the whisper model size ("base") or API model ("whisper-1").
	Model string

	// Local faster-whisper settings. Script replaces the built-in inline
	// program; it receives <audio> <model> <device> <compute_type>.
	Python      string
	Script      string
	Device      string
	ComputeType string
	TempDir     string

	// FileExt names the container of incoming segments (".webm", ".wav").
	FileExt string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Option is a functional option for configuring STT providers.
type Option func(*Config)

// WithAPIKey sets the API key for remote providers.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithPython sets the interpreter for the whisper subprocess.
func WithPython(path string) Option {
	return func(c *Config) {
		c.Python = path
	}
}

// WithScript runs a script file instead of the built-in program.
func WithScript(path string) Option {
	return func(c *Config) {
		c.Script = path
	}
}

// WithDevice sets the faster-whisper device and compute type.
func WithDevice(device, computeType string) Option {
	return func(c *Config) {
		c.Device = device
		c.ComputeType = computeType
	}
}

// WithTempDir sets where segment files are written.
func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithFileExt sets the extension used for segment files and uploads.
func WithFileExt(ext string) Option {
	return func(c *Config) {
		c.FileExt = ext
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:       "base",
		Python:      "python3",
		Device:      "cpu",
		ComputeType: "int8",
		TempDir:     os.TempDir(),
		FileExt:     ".webm",
		Timeout:     60 * time.Second,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// contentType maps FileExt to an upload MIME type.
func (c *Config) contentType() string {
	switch c.FileExt {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	default:
		return "audio/webm"
	}
}
