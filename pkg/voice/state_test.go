package voice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teslashibe/kitchen-buddy/pkg/inference"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		on   Event
		want State
	}{
		{StateIdle, EventAudio, StateCapturing},
		{StateCapturing, EventAudio, StateCapturing},
		{StateCapturing, EventEndSpeech, StateTranscribing},
		{StateCapturing, EventDiscard, StateIdle},
		{StateIdle, EventDequeue, StateTranscribing},
		{StateCapturing, EventDequeue, StateTranscribing},
		{StateTranscribing, EventTranscript, StateGenerating},
		{StateTranscribing, EventTranscribeFailed, StateError},
		{StateGenerating, EventReply, StateSynthesizing},
		{StateGenerating, EventGenerateFailed, StateError},
		{StateSynthesizing, EventAudioReady, StateIdle},
		{StateSynthesizing, EventSynthesizeFailed, StateError},
		{StateError, EventRecover, StateIdle},

		// Input during a turn never touches the segment in flight.
		{StateTranscribing, EventAudio, StateTranscribing},
		{StateGenerating, EventEndSpeech, StateGenerating},
		{StateSynthesizing, EventAudio, StateSynthesizing},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.on), func(t *testing.T) {
			got, err := Transition(tt.from, tt.on)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTransitionCloseFromAnyState(t *testing.T) {
	for _, s := range []State{StateIdle, StateCapturing, StateTranscribing, StateGenerating, StateSynthesizing, StateError} {
		got, err := Transition(s, EventClose)
		require.NoError(t, err)
		require.Equal(t, StateClosing, got, "close from %s", s)
	}
}

func TestTransitionRejects(t *testing.T) {
	tests := []struct {
		from State
		on   Event
	}{
		{StateIdle, EventEndSpeech},
		{StateIdle, EventTranscript},
		{StateCapturing, EventReply},
		{StateTranscribing, EventReply},
		{StateGenerating, EventAudioReady},
		{StateSynthesizing, EventTranscript},
		{StateError, EventAudio},
		{StateClosing, EventAudio},
		{StateClosing, EventClose},
		{StateTranscribing, EventDequeue},
	}

	for _, tt := range tests {
		got, err := Transition(tt.from, tt.on)
		require.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", tt.on, tt.from)
		require.Equal(t, tt.from, got, "state must not change on rejection")
	}
}

func TestStateBusy(t *testing.T) {
	require.False(t, StateIdle.Busy())
	require.False(t, StateCapturing.Busy())
	require.True(t, StateTranscribing.Busy())
	require.True(t, StateGenerating.Busy())
	require.True(t, StateSynthesizing.Busy())
	require.False(t, StateError.Busy())
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StageGenerate, Seq: 3, Err: inference.ErrEmptyReply}

	require.ErrorIs(t, err, ErrGeneration)
	require.ErrorIs(t, err, inference.ErrEmptyReply)
	require.NotErrorIs(t, err, ErrTranscription)
	require.Equal(t, "generation failed: inference: empty reply", err.Error())

	synth := &StageError{Stage: StageSynthesize, Err: errors.New("piper exited")}
	require.ErrorIs(t, synth, ErrSynthesis)
	require.Equal(t, "audio unavailable: piper exited", synth.ClientMessage())
}
