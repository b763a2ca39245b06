package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrEmptyAudio is returned when asked to transcribe nothing.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrEmptyTranscript is returned when the backend recognized no speech.
	ErrEmptyTranscript = errors.New("stt: empty transcript")

	// ErrMalformedOutput is returned when backend output cannot be parsed.
	ErrMalformedOutput = errors.New("stt: malformed backend output")

	// ErrNotDelivered marks a failure that happened before the segment
	// reached the backend. Only such failures may be handed to another
	// provider; a delivered segment is never sent twice.
	ErrNotDelivered = errors.New("stt: segment not delivered")

	// ErrProviderUnavailable is returned when no providers are available.
	ErrProviderUnavailable = errors.New("stt: no providers available")
)

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
