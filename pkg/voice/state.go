package voice

import (
	"errors"
	"fmt"
)

// State is the turn state of a session.
type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSynthesizing State = "synthesizing"
	StateError        State = "error"
	StateClosing      State = "closing"
)

// Busy reports whether a turn is in flight.
func (s State) Busy() bool {
	switch s {
	case StateTranscribing, StateGenerating, StateSynthesizing:
		return true
	}
	return false
}

// Event drives the turn state machine.
type Event string

const (
	EventAudio            Event = "audio"             // binary frame received
	EventEndSpeech        Event = "end_speech"        // current capture finalized
	EventDequeue          Event = "dequeue"           // queued segment started
	EventDiscard          Event = "discard"           // silent capture thrown away
	EventTranscript       Event = "transcript"        // transcription succeeded
	EventTranscribeFailed Event = "transcribe_failed" // transcription failed
	EventReply            Event = "reply"             // generation succeeded
	EventGenerateFailed   Event = "generate_failed"   // generation failed
	EventAudioReady       Event = "audio_ready"       // synthesis succeeded
	EventSynthesizeFailed Event = "synthesize_failed" // synthesis failed
	EventRecover          Event = "recover"           // error reported
	EventClose            Event = "close"             // transport closed
)

// ErrInvalidTransition is returned by Transition for an event the state
// does not accept.
var ErrInvalidTransition = errors.New("voice: invalid transition")

// Transition returns the state that follows s on event e.
//
//	idle         --audio-->             capturing
//	capturing    --audio-->             capturing
//	capturing    --end_speech-->        transcribing
//	capturing    --discard-->           idle
//	idle         --dequeue-->           transcribing
//	capturing    --dequeue-->           transcribing
//	transcribing --transcript-->        generating
//	transcribing --transcribe_failed--> error
//	generating   --reply-->             synthesizing
//	generating   --generate_failed-->   error
//	synthesizing --audio_ready-->       idle
//	synthesizing --synthesize_failed--> error
//	error        --recover-->           idle
//	any          --close-->             closing
//
// While a turn is in flight, audio and end_speech leave the state
// unchanged: the session captures and queues the next segment instead of
// touching the one in flight. Closing is terminal.
func Transition(s State, e Event) (State, error) {
	if s == StateClosing {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	if e == EventClose {
		return StateClosing, nil
	}

	switch s {
	case StateIdle:
		switch e {
		case EventAudio:
			return StateCapturing, nil
		case EventDequeue:
			return StateTranscribing, nil
		}
	case StateCapturing:
		switch e {
		case EventAudio:
			return StateCapturing, nil
		case EventEndSpeech, EventDequeue:
			return StateTranscribing, nil
		case EventDiscard:
			return StateIdle, nil
		}
	case StateTranscribing, StateGenerating, StateSynthesizing:
		if e == EventAudio || e == EventEndSpeech {
			return s, nil
		}
		switch {
		case s == StateTranscribing && e == EventTranscript:
			return StateGenerating, nil
		case s == StateTranscribing && e == EventTranscribeFailed:
			return StateError, nil
		case s == StateGenerating && e == EventReply:
			return StateSynthesizing, nil
		case s == StateGenerating && e == EventGenerateFailed:
			return StateError, nil
		case s == StateSynthesizing && e == EventAudioReady:
			return StateIdle, nil
		case s == StateSynthesizing && e == EventSynthesizeFailed:
			return StateError, nil
		}
	case StateError:
		if e == EventRecover {
			return StateIdle, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
}
