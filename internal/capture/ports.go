package capture

import (
	"context"
	"time"

	"github.com/alnah/go-voicenote/internal/duration"
)

// MediaDevices grants access to the audio input device.
// GetAudioStream blocks until access is granted or refused; refusals
// should wrap ErrPermissionDenied so the session can classify them.
type MediaDevices interface {
	GetAudioStream(ctx context.Context) (Stream, error)
}

// Stream is a live input stream. Releasing every track frees the
// hardware and clears OS recording indicators.
type Stream interface {
	Tracks() []Track
}

// Track is one hardware channel of a Stream.
type Track interface {
	Stop()
}

// EncoderState mirrors the encoder's own activity flag.
type EncoderState int

const (
	EncoderInactive EncoderState = iota
	EncoderRecording
	EncoderPaused
)

// EncoderHandlers receives encoder events. OnData may be called from any
// goroutine, including synchronously inside RequestData or Stop.
type EncoderHandlers struct {
	OnData  func(chunk []byte)
	OnStop  func()
	OnError func(err error)
}

// Encoder turns a Stream into encoded chunks.
type Encoder interface {
	// SetHandlers must be called before Start.
	SetHandlers(h EncoderHandlers)
	// Start begins encoding, flushing a chunk every timeslice.
	Start(timeslice time.Duration) error
	// RequestData flushes whatever is buffered as a chunk.
	RequestData()
	// Stop ends encoding. Remaining data is flushed, then OnStop fires.
	Stop()
	State() EncoderState
}

// TypedEncoder is an Encoder that reports the MIME type it produces. When
// it was built without a type this is the runtime default, and the
// finished Audio is labeled with it.
type TypedEncoder interface {
	Encoder
	MIMEType() string
}

// Aborter is implemented by encoders that can be torn down without waiting
// for their stop event. Failure paths abort rather than stop.
type Aborter interface {
	Abort()
}

// EncoderFactory builds encoders and answers capability queries.
type EncoderFactory interface {
	// IsTypeSupported reports whether mimeType can be encoded.
	IsTypeSupported(mimeType string) bool
	// NewEncoder builds an encoder for stream. An empty mimeType selects
	// the runtime default.
	NewEncoder(stream Stream, mimeType string) (Encoder, error)
}

// Primer activates the audio subsystem ahead of encoding.
type Primer interface {
	Prime(ctx context.Context) error
}

// DurationProber measures finished bytes. done is called exactly once
// with a positive whole number of seconds. *duration.Prober satisfies it.
type DurationProber interface {
	Probe(data []byte, mimeType string, fallback int, done func(seconds int, src duration.Source))
}

// Notifier surfaces user-facing messages.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify calls f(message).
func (f NotifierFunc) Notify(message string) { f(message) }
