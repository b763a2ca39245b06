package conversation

import "errors"

// Sentinel errors for the conversation package. All mapping failures wrap
// ErrMapping so callers can classify them with a single errors.Is check.
var (
	// ErrMapping is the parent of every role-mapping failure.
	ErrMapping = errors.New("conversation: role mapping failed")

	// ErrEmptyHistory indicates there was nothing to map.
	ErrEmptyHistory = errors.New("conversation: empty history")

	// ErrPreambleNotFirst indicates the first entry is not the system preamble.
	ErrPreambleNotFirst = errors.New("conversation: system preamble must be first")

	// ErrMisplacedSystem indicates a system entry after the preamble.
	ErrMisplacedSystem = errors.New("conversation: system entry after preamble")

	// ErrNoTrailingUser indicates the mapped history does not end with a user turn.
	ErrNoTrailingUser = errors.New("conversation: history must end with a user turn")

	// ErrUnknownRole indicates an entry with a role outside the vocabulary.
	ErrUnknownRole = errors.New("conversation: unknown role")
)
