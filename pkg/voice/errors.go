package voice

import (
	"errors"
	"fmt"
)

// Common errors returned by sessions.
var (
	ErrClosed         = errors.New("voice: session closed")
	ErrAlreadyStarted = errors.New("voice: session already started")
	ErrMissingService = errors.New("voice: stt, llm and tts services are required")
	ErrMissingOutput  = errors.New("voice: transport is required")
)

// Stage error classes. A *StageError matches exactly one of them with
// errors.Is.
var (
	ErrTranscription = errors.New("transcription failed")
	ErrGeneration    = errors.New("generation failed")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrTransport     = errors.New("transport failed")
)

// Stage names one step of a turn.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageGenerate   Stage = "generate"
	StageSynthesize Stage = "synthesize"
	StageTransport  Stage = "transport"
)

// Class returns the error class for the stage.
func (s Stage) Class() error {
	switch s {
	case StageTranscribe:
		return ErrTranscription
	case StageGenerate:
		return ErrGeneration
	case StageSynthesize:
		return ErrSynthesis
	default:
		return ErrTransport
	}
}

// StageError is a failed stage of a turn.
type StageError struct {
	Stage Stage
	Seq   uint64 // segment sequence number
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%v: %v", e.Stage.Class(), e.Err)
}

// Unwrap exposes both the stage class and the provider cause.
func (e *StageError) Unwrap() []error {
	return []error{e.Stage.Class(), e.Err}
}

// ClientMessage is the text sent to the client in the error event.
func (e *StageError) ClientMessage() string {
	if e.Stage == StageSynthesize {
		return fmt.Sprintf("audio unavailable: %v", e.Err)
	}
	return e.Error()
}
