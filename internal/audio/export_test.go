package audio

import (
	"context"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/clock"
	"github.com/alnah/go-voicenote/internal/ffmpeg"
)

// Export internal functions for testing.

// ParseDuration exports parseDuration for testing.
var ParseDuration = parseDuration

// ParseTimeComponents exports parseTimeComponents for testing.
var ParseTimeComponents = parseTimeComponents

// ParseCodecList exports parseCodecList for testing.
var ParseCodecList = parseCodecList

// EncodeArgs exports encodeArgs for testing.
var EncodeArgs = encodeArgs

// CaptureHandle exports captureHandle for testing.
type CaptureHandle = captureHandle

// CaptureBackend exports captureBackend for testing.
type CaptureBackend = captureBackend

// WithCaptureBackend exports withCaptureBackend for testing.
var WithCaptureBackend = withCaptureBackend

// QueryCapabilitiesWith runs the capability query with a custom runner.
func QueryCapabilitiesWith(ctx context.Context, run func(context.Context, string, []string) (string, error)) (Capabilities, error) {
	return queryCapabilities(ctx, run, "ffmpeg")
}

// NewEncodersWith builds Encoders with a fake process launcher and clock.
func NewEncodersWith(caps Capabilities, start func(context.Context, string, []string) (ffmpeg.Process, error), c clock.Clock) *Encoders {
	return NewEncoders("ffmpeg", caps, withStart(start), WithEncoderClock(c))
}

// TempFiles exports tempFiles for testing.
type TempFiles = tempFiles

// NewElementWith builds an Element with fake dependencies.
func NewElementWith(run func(context.Context, string, []string) (string, error), files TempFiles) *Element {
	return newElement("ffmpeg", run, files, zap.NewNop())
}

// NewPrimerWith builds a Primer with a fake output opener.
func NewPrimerWith(open func(Format) (CaptureHandle, error)) *Primer {
	return &Primer{open: open, format: DefaultFormat}
}
