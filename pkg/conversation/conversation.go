// Package conversation holds the per-session chat history and the pure
// mapping from that history onto a language-model backend's role vocabulary.
//
// A History always starts with the system preamble and only grows:
//
//	h := conversation.NewHistory(preamble)
//	h.Append(conversation.RoleUser, "how long do I boil an egg")
//	prompt, err := conversation.Map(h.Snapshot(), conversation.GeminiVocabulary)
//
// History is not safe for concurrent use. In the voice pipeline it is owned
// by the session actor goroutine.
package conversation

import (
	"fmt"
	"strings"
)

// Role is the speaker of a history entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Entry is one immutable line of conversation.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Orphaned marks a user entry whose reply was never produced.
	Orphaned bool `json:"orphaned,omitempty"`
}

// History is the ordered, append-only conversation of one session.
type History struct {
	entries []Entry
}

// NewHistory creates a history seeded with the system preamble.
func NewHistory(preamble string) *History {
	return &History{
		entries: []Entry{{Role: RoleSystem, Content: preamble}},
	}
}

// Append adds a user or assistant entry. The preamble is the only system
// entry a history may hold.
func (h *History) Append(role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if role == RoleSystem {
		return ErrMisplacedSystem
	}
	h.entries = append(h.entries, Entry{Role: role, Content: strings.TrimSpace(content)})
	return nil
}

// MarkOrphaned flags the trailing user entry as having no reply.
// It is a no-op when the last entry is not a user entry.
func (h *History) MarkOrphaned() {
	last := len(h.entries) - 1
	if last > 0 && h.entries[last].Role == RoleUser {
		h.entries[last].Orphaned = true
	}
}

// Snapshot returns a copy of the entries safe to hand to another goroutine.
func (h *History) Snapshot() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries including the preamble.
func (h *History) Len() int {
	return len(h.entries)
}

// Turns returns the number of assistant replies recorded.
func (h *History) Turns() int {
	n := 0
	for _, e := range h.entries {
		if e.Role == RoleAssistant {
			n++
		}
	}
	return n
}

// Preamble returns the system preamble.
func (h *History) Preamble() string {
	return h.entries[0].Content
}
