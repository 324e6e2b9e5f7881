package capture_test

import (
	"context"
	"sync"
	"time"

	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/clock"
	"github.com/alnah/go-voicenote/internal/codec"
	"github.com/alnah/go-voicenote/internal/duration"
)

var epoch = time.Date(2026, 1, 25, 14, 30, 0, 0, time.UTC)

var desktop = codec.Platform{Family: codec.FamilyDesktop, ChromiumLike: true}

// Compile-time interface implementation checks.
var (
	_ capture.TypedEncoder = (*fakeEncoder)(nil)
	_ capture.Aborter      = (*fakeEncoder)(nil)
)

// ---------------------------------------------------------------------------
// Devices
// ---------------------------------------------------------------------------

type fakeTrack struct {
	mu      sync.Mutex
	stopped int
	onStop  func()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped++
	onStop := t.onStop
	t.mu.Unlock()
	if onStop != nil {
		onStop()
	}
}

func (t *fakeTrack) Stopped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	tracks []*fakeTrack
}

func (s *fakeStream) Tracks() []capture.Track {
	out := make([]capture.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

type fakeDevices struct {
	mu          sync.Mutex
	err         error
	streams     []*fakeStream
	onTrackStop func()
}

func (d *fakeDevices) GetAudioStream(context.Context) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{tracks: []*fakeTrack{{onStop: d.onTrackStop}}}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevices) Last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

// ---------------------------------------------------------------------------
// Encoder
// ---------------------------------------------------------------------------

// fakeEncoder only produces data when asked through RequestData, which
// models runtimes whose own chunk events never fire.
type fakeEncoder struct {
	mu        sync.Mutex
	h         capture.EncoderHandlers
	state     capture.EncoderState
	mimeType  string
	timeslice time.Duration
	requests  int
	stops     int
	aborts    int
	startErr  error
	deferStop bool // When set, Stop does not fire OnStop; the test does.
}

func (e *fakeEncoder) SetHandlers(h capture.EncoderHandlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.h = h
}

func (e *fakeEncoder) Start(timeslice time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.timeslice = timeslice
	e.state = capture.EncoderRecording
	return nil
}

func (e *fakeEncoder) RequestData() {
	e.mu.Lock()
	if e.state != capture.EncoderRecording {
		e.mu.Unlock()
		return
	}
	e.requests++
	onData := e.h.OnData
	e.mu.Unlock()
	onData([]byte("opus"))
}

func (e *fakeEncoder) Stop() {
	e.mu.Lock()
	if e.state == capture.EncoderInactive {
		e.mu.Unlock()
		return
	}
	e.state = capture.EncoderInactive
	e.stops++
	deferStop := e.deferStop
	onStop := e.h.OnStop
	e.mu.Unlock()
	if !deferStop {
		onStop()
	}
}

// MIMEType reports the type the encoder was built with, after the
// factory resolved an empty request to its default.
func (e *fakeEncoder) MIMEType() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mimeType
}

// Abort drops the encoder without firing any handler.
func (e *fakeEncoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = capture.EncoderInactive
	e.aborts++
}

func (e *fakeEncoder) State() capture.EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEncoder) Handlers() capture.EncoderHandlers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.h
}

func (e *fakeEncoder) Requests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

func (e *fakeEncoder) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *fakeEncoder) Aborts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborts
}

type fakeFactory struct {
	mu        sync.Mutex
	supported map[string]bool
	rejected  map[string]bool // NewEncoder fails for these.
	err       error           // NewEncoder fails for everything.
	fallback  string          // Type produced when none is requested.
	deferStop bool
	startErr  error
	encoders  []*fakeEncoder
	requested []string
}

func (f *fakeFactory) IsTypeSupported(mimeType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported[mimeType]
}

func (f *fakeFactory) NewEncoder(_ capture.Stream, mimeType string) (capture.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, mimeType)
	if f.err != nil {
		return nil, f.err
	}
	if f.rejected[mimeType] {
		return nil, errTypeRejected
	}
	produced := mimeType
	if produced == "" {
		produced = f.fallback
	}
	enc := &fakeEncoder{mimeType: produced, deferStop: f.deferStop, startErr: f.startErr}
	f.encoders = append(f.encoders, enc)
	return enc, nil
}

func (f *fakeFactory) Last() *fakeEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encoders[len(f.encoders)-1]
}

func (f *fakeFactory) Requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

// ---------------------------------------------------------------------------
// Duration element
// ---------------------------------------------------------------------------

// probeMode selects how fakeElement answers a load.
type probeMode int

const (
	probeSilent probeMode = iota // Never fires; the prober times out.
	probeMetadata
	probeError
)

type fakeElement struct {
	mode    probeMode
	seconds float64

	mu     sync.Mutex
	loaded []byte
	mime   string
}

func (e *fakeElement) Load(data []byte, mimeType string, h duration.Handlers) {
	e.mu.Lock()
	e.loaded = append([]byte(nil), data...)
	e.mime = mimeType
	e.mu.Unlock()
	switch e.mode {
	case probeMetadata:
		h.OnLoadedMetadata(e.seconds)
	case probeError:
		h.OnError(errDecode)
	}
}

func (e *fakeElement) Close() error { return nil }

func (e *fakeElement) Loaded() ([]byte, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded, e.mime
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	clock    *clock.Fake
	devices  *fakeDevices
	factory  *fakeFactory
	element  *fakeElement
	notifier *recordingNotifier
	session  *capture.Session
}

func newHarness(opts ...capture.SessionOption) *harness {
	h := &harness{
		clock:   clock.NewFake(epoch),
		devices: &fakeDevices{},
		factory: &fakeFactory{supported: map[string]bool{
			codec.MIMEWebMOpus: true,
		}},
		element:  &fakeElement{mode: probeError},
		notifier: &recordingNotifier{},
	}
	prober := duration.NewProber(
		func() (duration.Element, error) { return h.element, nil },
		duration.WithClock(h.clock),
	)
	base := []capture.SessionOption{
		capture.WithClock(h.clock),
		capture.WithPlatform(desktop),
		capture.WithNotifier(h.notifier),
	}
	s, err := capture.NewSession(h.devices, h.factory, prober, append(base, opts...)...)
	if err != nil {
		panic(err)
	}
	h.session = s
	return h
}
