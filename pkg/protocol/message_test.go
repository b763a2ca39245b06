package protocol

import (
	"errors"
	"testing"
)

func TestEventEncoding(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want string
	}{
		{"ready", NewReady("abc"), `{"type":"ready","session":"abc"}`},
		{"transcript", NewTranscript("how do I boil eggs"), `{"type":"transcript","text":"how do I boil eggs"}`},
		{"llm", NewLLM("Hello! Step one."), `{"type":"llm","text":"Hello! Step one."}`},
		{"error", NewError("audio unavailable: boom"), `{"type":"error","error":"audio unavailable: boom"}`},
		{"pong", NewPong(), `{"type":"pong"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.Bytes()
			if err != nil {
				t.Fatalf("Bytes() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Bytes() = %s, want %s", got, tt.want)
			}
			if !tt.msg.Type.IsEvent() {
				t.Errorf("%s should be an event", tt.msg.Type)
			}
		})
	}
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType MessageType
		wantErr  bool
		unknown  bool
	}{
		{"end_speech", `{"type":"end_speech"}`, TypeEndSpeech, false, false},
		{"ping", `{"type":"ping"}`, TypePing, false, false},
		{"stop", `{"type":"stop"}`, TypeStop, false, false},
		{"extra fields ignored", `{"type":"end_speech","foo":1}`, TypeEndSpeech, false, false},
		{"server event from client", `{"type":"llm","text":"x"}`, "", true, true},
		{"unknown", `{"type":"dance"}`, "", true, true},
		{"missing type", `{"text":"hi"}`, "", true, false},
		{"malformed", `{not json`, "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseControl([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseControl() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.unknown && !errors.Is(err, ErrUnknownType) {
				t.Errorf("expected ErrUnknownType, got %v", err)
			}
			if err == nil && msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
		})
	}
}

func TestParseMessageEvent(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"transcript","text":"hi"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Type != TypeTranscript || msg.Text != "hi" {
		t.Errorf("got %+v", msg)
	}
}

func TestControlConstructors(t *testing.T) {
	for _, m := range []*Message{NewEndSpeech(), NewPing(), NewStop()} {
		if !m.Type.IsControl() {
			t.Errorf("%s should be a control", m.Type)
		}
	}
}
