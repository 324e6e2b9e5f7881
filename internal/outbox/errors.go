package outbox

import "errors"

// Sentinel errors for outbox operations.
var (
	// ErrNotFound indicates no stored note has the requested ID.
	ErrNotFound = errors.New("voice note not found in outbox")

	// ErrEmptyNote indicates an attempt to store a note without audio.
	ErrEmptyNote = errors.New("voice note has no audio data")
)
