package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/clock"
	"github.com/alnah/go-voicenote/internal/codec"
	"github.com/alnah/go-voicenote/internal/ffmpeg"
)

// Compile-time interface implementation checks.
var (
	_ capture.EncoderFactory = (*Encoders)(nil)
	_ capture.TypedEncoder   = (*Encoder)(nil)
	_ capture.Aborter        = (*Encoder)(nil)
)

// voiceBitrate suits speech in both Opus and AAC.
const voiceBitrate = "48k"

// Encoders builds FFmpeg streaming encoders.
type Encoders struct {
	ffmpegPath string
	caps       Capabilities
	start      startFunc
	clock      clock.Clock
	logger     *zap.Logger
}

// EncodersOption configures Encoders.
type EncodersOption func(*Encoders)

// WithEncoderClock sets the clock driving the encoder's own flush interval.
func WithEncoderClock(c clock.Clock) EncodersOption {
	return func(e *Encoders) {
		e.clock = c
	}
}

// WithEncoderLogger sets the diagnostic logger.
func WithEncoderLogger(l *zap.Logger) EncodersOption {
	return func(e *Encoders) {
		if l != nil {
			e.logger = l
		}
	}
}

// withStart replaces the process launcher.
func withStart(fn startFunc) EncodersOption {
	return func(e *Encoders) {
		e.start = fn
	}
}

// NewEncoders creates an encoder factory limited to caps.
func NewEncoders(ffmpegPath string, caps Capabilities, opts ...EncodersOption) *Encoders {
	e := &Encoders{
		ffmpegPath: ffmpegPath,
		caps:       caps,
		start:      ffmpeg.Start,
		clock:      clock.Real(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsTypeSupported reports whether FFmpeg can produce mimeType.
func (e *Encoders) IsTypeSupported(mimeType string) bool {
	return e.caps.Supports(mimeType)
}

// NewEncoder builds an encoder reading PCM from stream. An empty mimeType
// selects the default type.
func (e *Encoders) NewEncoder(stream capture.Stream, mimeType string) (capture.Encoder, error) {
	src, ok := stream.(PCMSource)
	if !ok {
		return nil, ErrNotPCMStream
	}
	if mimeType == "" {
		mimeType = e.caps.Default()
	}
	args, err := encodeArgs(mimeType, src.Format(), e.caps)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		parent:   e,
		src:      src,
		mimeType: mimeType,
		args:     args,
	}, nil
}

// encodeArgs builds the FFmpeg command line reading raw PCM on stdin and
// writing a streamable container on stdout.
func encodeArgs(mimeType string, f Format, caps Capabilities) ([]string, error) {
	if !caps.Supports(mimeType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mimeType)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-i", "pipe:0",
	}
	switch codec.BaseMIME(mimeType) {
	case "audio/webm", "audio/ogg":
		enc := caps.opusEncoder()
		args = append(args, "-c:a", enc, "-b:a", voiceBitrate)
		if enc == "libopus" {
			args = append(args, "-application", "voip")
		} else {
			args = append(args, "-strict", "-2")
		}
		container := "webm"
		if codec.BaseMIME(mimeType) == "audio/ogg" {
			container = "ogg"
		}
		args = append(args, "-flush_packets", "1", "-f", container)
	case "audio/mp4":
		args = append(args,
			"-c:a", "aac", "-b:a", voiceBitrate,
			"-movflags", "frag_keyframe+empty_moov+default_base_moof",
			"-f", "mp4")
	}
	return append(args, "pipe:1"), nil
}

// Encoder pipes PCM through one FFmpeg process and buffers its output
// until a flush is requested.
type Encoder struct {
	parent   *Encoders
	src      PCMSource
	mimeType string
	args     []string

	mu       sync.Mutex
	h        capture.EncoderHandlers
	state    capture.EncoderState
	buf      bytes.Buffer
	proc     ffmpeg.Process
	ticker   clock.Timer
	cancel   context.CancelFunc
	quit     chan struct{}
	stopping bool
	aborted  bool
	exited   bool
	stdin    sync.Once
}

// MIMEType returns the type this encoder produces.
func (e *Encoder) MIMEType() string { return e.mimeType }

// SetHandlers installs the event handlers.
func (e *Encoder) SetHandlers(h capture.EncoderHandlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.h = h
}

// State returns the encoder state.
func (e *Encoder) State() capture.EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start launches FFmpeg and flushes buffered output every timeslice.
func (e *Encoder) Start(timeslice time.Duration) error {
	e.mu.Lock()
	if e.state != capture.EncoderInactive || e.proc != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: start while %d", ErrEncoderState, e.state)
	}
	ctx, cancel := context.WithCancel(context.Background())
	proc, err := e.parent.start(ctx, e.parent.ffmpegPath, e.args)
	if err != nil {
		e.mu.Unlock()
		cancel()
		return err
	}
	e.proc = proc
	e.cancel = cancel
	e.quit = make(chan struct{})
	e.state = capture.EncoderRecording
	if timeslice > 0 {
		e.ticker = e.parent.clock.TickFunc(timeslice, e.RequestData)
	}
	e.mu.Unlock()

	e.parent.logger.Debug("encoder started", zap.String("mime", e.mimeType), zap.Strings("args", e.args))
	go e.pump(proc.Stdin())
	go e.drain(proc)
	return nil
}

// RequestData emits everything buffered so far as one chunk. Nothing is
// emitted after Abort.
func (e *Encoder) RequestData() {
	e.mu.Lock()
	if e.aborted || e.buf.Len() == 0 {
		e.mu.Unlock()
		return
	}
	chunk := bytes.Clone(e.buf.Bytes())
	e.buf.Reset()
	onData := e.h.OnData
	e.mu.Unlock()
	if onData != nil {
		onData(chunk)
	}
}

// Stop ends input once the PCM already queued is written. FFmpeg
// finalizes the container; the remaining output is emitted and OnStop
// fires once the process has exited.
func (e *Encoder) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != capture.EncoderRecording || e.stopping {
		return
	}
	e.stopping = true
	e.state = capture.EncoderInactive
	close(e.quit)
}

// Abort kills FFmpeg without waiting for it to finish. Buffered output is
// discarded and no handler fires afterwards.
func (e *Encoder) Abort() {
	e.mu.Lock()
	proc := e.proc
	if proc == nil || e.aborted || e.exited {
		e.mu.Unlock()
		return
	}
	e.aborted = true
	if !e.stopping {
		e.stopping = true
		close(e.quit)
	}
	e.state = capture.EncoderInactive
	e.buf.Reset()
	e.mu.Unlock()

	e.closeStdin(proc.Stdin())
	if err := proc.Kill(); err != nil {
		e.parent.logger.Debug("encoder kill failed", zap.Error(err))
	}
	e.parent.logger.Debug("encoder aborted", zap.String("mime", e.mimeType))
}

func (e *Encoder) closeStdin(w io.WriteCloser) {
	e.stdin.Do(func() { _ = w.Close() })
}

// pump copies PCM frames into FFmpeg until the stream ends or Stop.
// Frames already queued when Stop arrives are still written.
func (e *Encoder) pump(w io.WriteCloser) {
	defer e.closeStdin(w)
	pcm := e.src.PCM()
	for {
		select {
		case <-e.quit:
			e.drainQueued(w, pcm)
			return
		case frame, ok := <-pcm:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
		}
	}
}

func (e *Encoder) drainQueued(w io.Writer, pcm <-chan []byte) {
	for {
		select {
		case frame, ok := <-pcm:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// drain buffers FFmpeg output and reports the end of the process.
func (e *Encoder) drain(proc ffmpeg.Process) {
	chunk := make([]byte, 32*1024)
	out := proc.Stdout()
	for {
		n, err := out.Read(chunk)
		if n > 0 {
			e.mu.Lock()
			e.buf.Write(chunk[:n])
			e.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.parent.logger.Debug("encoder output read failed", zap.Error(err))
			}
			break
		}
	}
	e.finish(proc.Wait())
}

func (e *Encoder) finish(waitErr error) {
	e.mu.Lock()
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	e.exited = true
	stopping, aborted := e.stopping, e.aborted
	if !stopping {
		e.state = capture.EncoderInactive
		close(e.quit)
	}
	e.cancel()
	h := e.h
	e.mu.Unlock()

	if aborted {
		return
	}

	// Output written before exit belongs to the recording either way.
	e.RequestData()

	if waitErr != nil && !stopping {
		e.parent.logger.Warn("encoder exited unexpectedly", zap.Error(waitErr))
		if h.OnError != nil {
			h.OnError(waitErr)
		}
		return
	}
	e.parent.logger.Debug("encoder stopped", zap.Error(waitErr))
	if h.OnStop != nil {
		h.OnStop()
	}
}
