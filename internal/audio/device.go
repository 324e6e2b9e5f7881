// Package audio provides the host implementations of the capture
// capabilities: a microphone stream and warm-up primer on miniaudio, and
// an FFmpeg-backed streaming encoder, capability query and duration probe.
package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/capture"
)

// Compile-time interface implementation checks.
var (
	_ capture.MediaDevices = (*Devices)(nil)
	_ capture.Stream       = (*PCMStream)(nil)
	_ PCMSource            = (*PCMStream)(nil)
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is mono 48kHz, the native rate of Opus.
var DefaultFormat = Format{SampleRate: 48000, Channels: 1}

// PCMSource is a stream that delivers raw PCM frames. The channel is
// closed once every track has been stopped.
type PCMSource interface {
	PCM() <-chan []byte
	Format() Format
}

// captureHandle is an open input device.
type captureHandle interface {
	Close()
}

// captureBackend opens the default input device and delivers frames to
// onData on the audio thread.
type captureBackend interface {
	OpenCapture(f Format, onData func(frame []byte)) (captureHandle, error)
	ListCapture() ([]DeviceInfo, error)
}

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// Devices grants access to the default microphone.
type Devices struct {
	backend captureBackend
	format  Format
	buffer  int
	logger  *zap.Logger
}

// DevicesOption configures Devices.
type DevicesOption func(*Devices)

// WithFormat sets the capture format.
func WithFormat(f Format) DevicesOption {
	return func(d *Devices) {
		if f.SampleRate > 0 && f.Channels > 0 {
			d.format = f
		}
	}
}

// WithDevicesLogger sets the diagnostic logger.
func WithDevicesLogger(l *zap.Logger) DevicesOption {
	return func(d *Devices) {
		if l != nil {
			d.logger = l
		}
	}
}

// withCaptureBackend replaces the miniaudio backend.
func withCaptureBackend(b captureBackend) DevicesOption {
	return func(d *Devices) {
		d.backend = b
	}
}

// NewDevices creates Devices backed by miniaudio.
func NewDevices(opts ...DevicesOption) *Devices {
	d := &Devices{
		backend: malgoBackend{},
		format:  DefaultFormat,
		buffer:  256,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GetAudioStream opens the default input device. Access refusals wrap
// capture.ErrPermissionDenied; other failures wrap
// capture.ErrDeviceUnavailable.
func (d *Devices) GetAudioStream(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &PCMStream{format: d.format, ch: make(chan []byte, d.buffer), logger: d.logger}
	h, err := d.backend.OpenCapture(d.format, s.push)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	s.handle = h
	d.logger.Info("input device opened",
		zap.Int("sample_rate", d.format.SampleRate), zap.Int("channels", d.format.Channels))
	return s, nil
}

// List returns the available input devices.
func (d *Devices) List() ([]DeviceInfo, error) {
	infos, err := d.backend.ListCapture()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %w", err)
	}
	if len(infos) == 0 {
		return nil, ErrNoAudioDevice
	}
	return infos, nil
}

func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"),
		strings.Contains(msg, "permission"),
		strings.Contains(msg, "not allowed"):
		return fmt.Errorf("%w: %w", capture.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}
}

// PCMStream is a live microphone stream with a single track.
type PCMStream struct {
	format Format
	logger *zap.Logger
	handle captureHandle

	mu      sync.Mutex
	ch      chan []byte
	closed  bool
	dropped int
}

// PCM returns the frame channel.
func (s *PCMStream) PCM() <-chan []byte { return s.ch }

// Format returns the PCM format.
func (s *PCMStream) Format() Format { return s.format }

// Tracks returns the stream's only track.
func (s *PCMStream) Tracks() []capture.Track {
	return []capture.Track{streamTrack{s}}
}

// push copies a frame off the audio thread's buffer. Frames are dropped
// rather than blocking the audio thread when the consumer lags.
func (s *PCMStream) push(frame []byte) {
	b := make([]byte, len(frame))
	copy(b, frame)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- b:
	default:
		s.dropped++
	}
}

// stop closes the device and the frame channel. Safe to call repeatedly.
func (s *PCMStream) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := s.dropped
	close(s.ch)
	s.mu.Unlock()

	if s.handle != nil {
		s.handle.Close()
	}
	s.logger.Info("input device released", zap.Int("dropped_frames", dropped))
}

type streamTrack struct{ s *PCMStream }

func (t streamTrack) Stop() { t.s.stop() }
