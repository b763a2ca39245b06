// Package voice runs the turn-taking pipeline for one voice connection.
//
// A Session owns everything about one connection: the conversation history,
// the capture buffer, queued segments and the turn state. A single actor
// goroutine is the only writer of that state. Transport read loops post
// frames to it, stage goroutines post their results to it, and it alone
// writes events back to the client, so event order is the order in which
// the actor handles them.
//
// # Turns
//
// A turn is one segment driven through three stages in strict sequence:
//
//	transcribe(segment) -> generate(history) -> synthesize(reply)
//
// The next stage starts only when the previous result reaches the actor.
// Only one segment is ever in flight. Audio that arrives meanwhile is
// captured into the next segment, and an end of speech during a turn queues
// that segment until the current turn finishes.
//
// For a successful turn the client sees:
//
//	{"type":"transcript","text":...}
//	{"type":"llm","text":...}
//	<binary audio frame>
//
// Any stage failure becomes exactly one {"type":"error"} event and the
// session returns to idle. See Transition for the full state table.
//
// # Usage
//
//	sess, err := voice.NewSession(voice.DefaultConfig(), voice.Services{
//	    STT: whisper,
//	    LLM: gemini,
//	    TTS: piper,
//	}, transport)
//	if err != nil {
//	    return err
//	}
//	sess.Start(ctx)
//	defer sess.Close()
//
//	for frame := range frames {
//	    sess.HandleAudio(frame)
//	}
//
// # Segmentation
//
// With SegmentClient the client ends a segment with {"type":"end_speech"}.
// With SegmentServer the session also runs a Segmenter over the PCM16 stream
// and ends the segment after one window of silence.
package voice
