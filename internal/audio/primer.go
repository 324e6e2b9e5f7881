package audio

import (
	"context"

	"github.com/alnah/go-voicenote/internal/capture"
)

// Compile-time interface implementation check.
var _ capture.Primer = (*Primer)(nil)

// Primer wakes the audio subsystem by starting and immediately stopping
// a silent playback device.
type Primer struct {
	open   func(Format) (captureHandle, error)
	format Format
}

// NewPrimer creates a Primer on miniaudio.
func NewPrimer() *Primer {
	return &Primer{open: openSilentPlayback, format: DefaultFormat}
}

// Prime opens and closes the silent output.
func (p *Primer) Prime(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := p.open(p.format)
	if err != nil {
		return err
	}
	h.Close()
	return nil
}
