package transcribe

import "errors"

// ErrAPIKeyMissing indicates OPENAI_API_KEY environment variable is not set.
var ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

// ErrEmptyAudio indicates a caption was requested for a note without audio.
var ErrEmptyAudio = errors.New("no audio to caption")
