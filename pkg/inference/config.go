package inference

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL override
	APIKey  string

	// Generation
	Model       string
	MaxTokens   int
	Temperature float64

	// SystemInstruction sends the preamble as the backend's system
	// instruction when the backend supports one.
	SystemInstruction bool

	// Timeouts and retries
	Timeout    time.Duration
	MaxRetries int

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithSystemInstruction toggles sending the preamble as a system instruction.
func WithSystemInstruction(on bool) Option {
	return func(c *Config) { c.SystemInstruction = on }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets how many times the SDK retries a failed request.
func WithRetry(maxRetries int) Option {
	return func(c *Config) { c.MaxRetries = maxRetries }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
		MaxRetries:  1,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func (c *Config) maxTokens(req *ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.MaxTokens
}

func (c *Config) temperature(req *ChatRequest) float64 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return c.Temperature
}

func (c *Config) model(req *ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.Model
}
