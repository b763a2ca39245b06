package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey   = errors.New("tts: API key required")
	ErrNoScript   = errors.New("tts: python and script required")
	ErrNoWorker   = errors.New("tts: worker required")
	ErrEmptyText  = errors.New("tts: empty text")
	ErrEmptyAudio = errors.New("tts: backend produced no audio")

	// ErrProviderUnavailable is returned by a Chain with no providers.
	ErrProviderUnavailable = errors.New("tts: no providers available")
)

// APIError is a non-2xx response from a hosted speech API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string // provider error code, if any
	Provider   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError && e.StatusCode < 600
}

// IsRetryable reports whether the same request may succeed if sent again.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// WorkerError is a failure reported by a synthesis worker in its reply
// line, as opposed to the worker process itself failing.
type WorkerError struct {
	Message string
}

func (e *WorkerError) Error() string {
	return "worker: " + e.Message
}

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with provider context. A nil err stays nil.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
