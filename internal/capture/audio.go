package capture

import (
	"bytes"
	"io"
	"slices"
)

// Audio is one finished, playable recording. It is immutable.
type Audio struct {
	data            []byte
	mimeType        string
	extension       string
	durationSeconds int
}

// NewAudio builds an Audio. data is copied. Used by the finalizer and by
// stores that rehydrate recordings kept for retry.
func NewAudio(data []byte, mimeType, extension string, durationSeconds int) *Audio {
	return &Audio{
		data:            slices.Clone(data),
		mimeType:        mimeType,
		extension:       extension,
		durationSeconds: max(1, durationSeconds),
	}
}

// Bytes returns a copy of the encoded audio.
func (a *Audio) Bytes() []byte { return slices.Clone(a.data) }

// Reader returns a reader over the encoded audio.
func (a *Audio) Reader() io.Reader { return bytes.NewReader(a.data) }

// Len returns the encoded size in bytes.
func (a *Audio) Len() int { return len(a.data) }

// MIMEType returns the base MIME type, without codec parameters.
func (a *Audio) MIMEType() string { return a.mimeType }

// Extension returns the file extension chosen with the codec, without dot.
func (a *Audio) Extension() string { return a.extension }

// DurationSeconds returns the measured duration, always >= 1.
func (a *Audio) DurationSeconds() int { return a.durationSeconds }
