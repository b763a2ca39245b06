package tts

import (
	"log/slog"
	"os"
	"time"

	"github.com/teslashibe/kitchen-buddy/pkg/worker"
)

// Config holds TTS provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Remote provider credentials
	APIKey  string
	BaseURL string

	// Voice configuration
	VoiceID string
	ModelID string

	// Audio output
	OutputFormat Encoding

	// Local subprocess providers
	Python    string
	Script    string
	ModelPath string
	TempDir   string
	Worker    *worker.Worker

	// Timeouts
	Timeout time.Duration

	// MaxRetries bounds SDK retries of rate-limited and 5xx responses.
	MaxRetries int

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
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

// WithVoice sets the voice ID.
func WithVoice(voiceID string) Option {
	return func(c *Config) {
		c.VoiceID = voiceID
	}
}

// WithModel sets the model ID.
func WithModel(modelID string) Option {
	return func(c *Config) {
		c.ModelID = modelID
	}
}

// WithPython sets the interpreter used by subprocess providers.
func WithPython(path string) Option {
	return func(c *Config) {
		c.Python = path
	}
}

// WithScript sets the synthesis script run by subprocess providers.
func WithScript(path string) Option {
	return func(c *Config) {
		c.Script = path
	}
}

// WithModelPath sets the local voice model file.
func WithModelPath(path string) Option {
	return func(c *Config) {
		c.ModelPath = path
	}
}

// WithTempDir sets where scoped output files are created.
func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithWorker sets the persistent worker used by Coqui.
func WithWorker(w *worker.Worker) Option {
	return func(c *Config) {
		c.Worker = w
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry sets how many times a hosted provider retries a failed request.
func WithRetry(maxRetries int) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
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
		OutputFormat: EncodingWAV,
		Python:       "python3",
		TempDir:      os.TempDir(),
		Timeout:      60 * time.Second,
		MaxRetries:   2,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that an API key is present for remote providers.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateLocal checks that subprocess providers have a script to run.
func (c *Config) ValidateLocal() error {
	if c.Python == "" || c.Script == "" {
		return ErrNoScript
	}
	return nil
}
