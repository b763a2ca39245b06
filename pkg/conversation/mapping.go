package conversation

import "fmt"

// Vocabulary names the roles a backend understands. An empty System means
// the backend has no system role and the preamble is folded into the first
// user turn.
type Vocabulary struct {
	Name      string
	System    string
	User      string
	Assistant string
}

// HasSystem reports whether the backend accepts a system instruction.
func (v Vocabulary) HasSystem() bool {
	return v.System != ""
}

// Built-in vocabularies.
var (
	// GeminiVocabulary is Gemini's contents API without system instruction.
	GeminiVocabulary = Vocabulary{Name: "gemini", User: "user", Assistant: "model"}

	// GeminiSystemVocabulary sends the preamble as Gemini's system instruction.
	GeminiSystemVocabulary = Vocabulary{Name: "gemini", System: "system", User: "user", Assistant: "model"}

	// OpenAIVocabulary is the chat completions role set.
	OpenAIVocabulary = Vocabulary{Name: "openai", System: "system", User: "user", Assistant: "assistant"}
)

// Turn is one mapped message in backend role terms.
type Turn struct {
	Role    string
	Content string
}

// Prompt is a history mapped onto a vocabulary.
type Prompt struct {
	// System is the system instruction. Empty when folded into Turns.
	System string

	// Turns alternate roles and always end with a user turn.
	Turns []Turn
}

const turnSeparator = "\n\n"

// Map converts history entries into a backend prompt.
//
// Rules:
//   - entries[0] must be the system preamble; no other system entry is allowed
//   - with a system role, the preamble becomes Prompt.System
//   - without one, the preamble is prefixed to the first user turn
//   - consecutive turns with the same backend role are merged
//   - the result must end with a user turn
//
// Map is pure: it never modifies entries.
func Map(entries []Entry, v Vocabulary) (*Prompt, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMapping, ErrEmptyHistory)
	}
	if entries[0].Role != RoleSystem {
		return nil, fmt.Errorf("%w: %w", ErrMapping, ErrPreambleNotFirst)
	}
	preamble := entries[0].Content

	var turns []Turn
	for i, e := range entries[1:] {
		var role string
		switch e.Role {
		case RoleUser:
			role = v.User
		case RoleAssistant:
			role = v.Assistant
		case RoleSystem:
			return nil, fmt.Errorf("%w: %w at index %d", ErrMapping, ErrMisplacedSystem, i+1)
		default:
			return nil, fmt.Errorf("%w: %w %q", ErrMapping, ErrUnknownRole, e.Role)
		}

		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += turnSeparator + e.Content
			continue
		}
		turns = append(turns, Turn{Role: role, Content: e.Content})
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != v.User {
		return nil, fmt.Errorf("%w: %w", ErrMapping, ErrNoTrailingUser)
	}

	p := &Prompt{Turns: turns}
	switch {
	case v.HasSystem():
		p.System = preamble
	case preamble == "":
	case turns[0].Role == v.User:
		turns[0].Content = preamble + turnSeparator + turns[0].Content
	default:
		p.Turns = append([]Turn{{Role: v.User, Content: preamble}}, turns...)
	}
	return p, nil
}
