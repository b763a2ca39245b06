package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewReady announces a freshly opened session.
func NewReady(sessionID string) *Message {
	return &Message{Type: TypeReady, Session: sessionID}
}

// NewTranscript carries the recognized text of one segment.
func NewTranscript(text string) *Message {
	return &Message{Type: TypeTranscript, Text: text}
}

// NewLLM carries the assistant reply.
func NewLLM(text string) *Message {
	return &Message{Type: TypeLLM, Text: text}
}

// NewError carries a human-readable failure description.
func NewError(msg string) *Message {
	return &Message{Type: TypeError, Error: msg}
}

// NewPong answers a ping.
func NewPong() *Message {
	return &Message{Type: TypePong}
}

// NewEndSpeech marks the end of a client-segmented utterance.
func NewEndSpeech() *Message {
	return &Message{Type: TypeEndSpeech}
}

// NewPing is a client keepalive.
func NewPing() *Message {
	return &Message{Type: TypePing}
}

// NewStop asks the server to close the session.
func NewStop() *Message {
	return &Message{Type: TypeStop}
}
