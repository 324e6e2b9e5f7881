package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/audio"
	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/config"
	"github.com/alnah/go-voicenote/internal/duration"
	"github.com/alnah/go-voicenote/internal/interrupt"
	"github.com/alnah/go-voicenote/internal/outbox"
	"github.com/alnah/go-voicenote/internal/transcribe"
	"github.com/alnah/go-voicenote/internal/upload"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc func(ctx context.Context) (string, error)

	mu           sync.Mutex
	resolveCalls int
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)

	mu        sync.Mutex
	loadCalls int
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	m.mu.Lock()
	m.loadCalls++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{}, nil
}

func (m *mockConfigLoader) LoadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

// ---------------------------------------------------------------------------
// Fake capture capabilities
// ---------------------------------------------------------------------------

type fakeTrack struct {
	mu      sync.Mutex
	stopped int
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
}

func (t *fakeTrack) Stopped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	track *fakeTrack
}

func (s *fakeStream) Tracks() []capture.Track { return []capture.Track{s.track} }

type fakeDevices struct {
	err   error
	track fakeTrack
}

func (d *fakeDevices) GetAudioStream(context.Context) (capture.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &fakeStream{track: &d.track}, nil
}

// fakeEncoder emits payload when flushed and stops synchronously.
type fakeEncoder struct {
	payload []byte

	mu    sync.Mutex
	h     capture.EncoderHandlers
	state capture.EncoderState
	sent  bool
}

func (e *fakeEncoder) SetHandlers(h capture.EncoderHandlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.h = h
}

func (e *fakeEncoder) Start(time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = capture.EncoderRecording
	return nil
}

func (e *fakeEncoder) RequestData() {
	e.mu.Lock()
	if e.sent || len(e.payload) == 0 {
		e.mu.Unlock()
		return
	}
	e.sent = true
	onData := e.h.OnData
	e.mu.Unlock()
	onData(e.payload)
}

func (e *fakeEncoder) Stop() {
	e.mu.Lock()
	if e.state == capture.EncoderInactive {
		e.mu.Unlock()
		return
	}
	e.state = capture.EncoderInactive
	onStop := e.h.OnStop
	e.mu.Unlock()
	e.RequestData()
	onStop()
}

func (e *fakeEncoder) State() capture.EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

type fakeEncoders struct {
	supported []string
	payload   []byte
	err       error
}

func (f *fakeEncoders) IsTypeSupported(mimeType string) bool {
	return slices.Contains(f.supported, mimeType)
}

func (f *fakeEncoders) NewEncoder(_ capture.Stream, _ string) (capture.Encoder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeEncoder{payload: f.payload}, nil
}

// fakeProber reports a fixed duration.
type fakeProber struct {
	seconds int
}

func (p fakeProber) Probe(_ []byte, _ string, fallback int, done func(int, duration.Source)) {
	if p.seconds > 0 {
		done(p.seconds, duration.SourceMetadata)
		return
	}
	done(duration.Fallback(fallback), duration.SourceError)
}

type fakePrimer struct{}

func (fakePrimer) Prime(context.Context) error { return nil }

// newCaptureDeps returns capabilities that record payload as WebM/Opus.
func newCaptureDeps(payload []byte, seconds int) CaptureDeps {
	return CaptureDeps{
		Devices: &fakeDevices{},
		Encoders: &fakeEncoders{
			supported: []string{"audio/webm;codecs=opus"},
			payload:   payload,
		},
		Prober: fakeProber{seconds: seconds},
		Primer: fakePrimer{},
	}
}

// ---------------------------------------------------------------------------
// Mock CaptureFactory
// ---------------------------------------------------------------------------

type mockCaptureFactory struct {
	deps CaptureDeps
	err  error

	mu    sync.Mutex
	paths []string
}

func (m *mockCaptureFactory) NewCapture(_ context.Context, ffmpegPath string, _ *zap.Logger) (CaptureDeps, error) {
	m.mu.Lock()
	m.paths = append(m.paths, ffmpegPath)
	m.mu.Unlock()
	if m.err != nil {
		return CaptureDeps{}, m.err
	}
	return m.deps, nil
}

func (m *mockCaptureFactory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.paths)
}

// ---------------------------------------------------------------------------
// Mock DeviceLister
// ---------------------------------------------------------------------------

type mockDeviceLister struct {
	devices []audio.DeviceInfo
	err     error
}

func (m *mockDeviceLister) ListDevices() ([]audio.DeviceInfo, error) {
	return m.devices, m.err
}

// ---------------------------------------------------------------------------
// Mock Uploader + UploaderFactory
// ---------------------------------------------------------------------------

type uploadCall struct {
	File   upload.File
	Folder string
}

type mockUploader struct {
	UploadFunc func(ctx context.Context, f upload.File, folder string) (string, error)

	mu    sync.Mutex
	calls []uploadCall
}

func (m *mockUploader) Upload(ctx context.Context, f upload.File, folder string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, uploadCall{File: f, Folder: folder})
	m.mu.Unlock()

	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, f, folder)
	}
	return "https://cdn.example.com/" + folder + "/" + f.Name, nil
}

func (m *mockUploader) Calls() []uploadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

type mockUploaderFactory struct {
	uploader *mockUploader
	err      error

	mu     sync.Mutex
	closed int
	cfgs   []config.Config
}

func (m *mockUploaderFactory) NewUploader(_ context.Context, cfg config.Config) (upload.Uploader, io.Closer, error) {
	m.mu.Lock()
	m.cfgs = append(m.cfgs, cfg)
	m.mu.Unlock()
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.uploader, closerFunc(func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed++
		return nil
	}), nil
}

func (m *mockUploaderFactory) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// permanentFailure is a non-retryable upload error.
var permanentFailure = fmt.Errorf("bucket policy: %w", errors.New("access denied"))

// ---------------------------------------------------------------------------
// Mock Outbox + OutboxOpener
// ---------------------------------------------------------------------------

type mockOutbox struct {
	SaveErr error

	mu      sync.Mutex
	nextID  int64
	entries map[int64]outbox.Entry
	closed  int
}

func newMockOutbox(entries ...outbox.Entry) *mockOutbox {
	m := &mockOutbox{entries: make(map[int64]outbox.Entry)}
	for _, e := range entries {
		m.entries[e.ID] = e
		m.nextID = max(m.nextID, e.ID)
	}
	return m
}

func (m *mockOutbox) Save(_ context.Context, e outbox.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return 0, m.SaveErr
	}
	m.nextID++
	e.ID = m.nextID
	e.Size = len(e.Data)
	m.entries[e.ID] = e
	return e.ID, nil
}

func (m *mockOutbox) List(context.Context) ([]outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbox.Entry
	for _, id := range m.idsLocked() {
		e := m.entries[id]
		e.Data = nil
		out = append(out, e)
	}
	return out, nil
}

func (m *mockOutbox) Get(_ context.Context, id int64) (outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return outbox.Entry{}, fmt.Errorf("%w: id %d", outbox.ErrNotFound, id)
	}
	return e, nil
}

func (m *mockOutbox) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return outbox.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *mockOutbox) RecordFailure(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return outbox.ErrNotFound
	}
	e.Attempts++
	e.LastError = msg
	m.entries[id] = e
	return nil
}

func (m *mockOutbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockOutbox) Entry(id int64) (outbox.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e, ok
}

func (m *mockOutbox) IDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idsLocked()
}

func (m *mockOutbox) idsLocked() []int64 {
	ids := make([]int64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type mockOutboxOpener struct {
	box *mockOutbox
	err error

	mu    sync.Mutex
	paths []string
}

func (m *mockOutboxOpener) Open(_ context.Context, path string) (Outbox, error) {
	m.mu.Lock()
	m.paths = append(m.paths, path)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.box, nil
}

func (m *mockOutboxOpener) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.paths)
}

// ---------------------------------------------------------------------------
// Mock CaptionerFactory + Captioner
// ---------------------------------------------------------------------------

type captionCall struct {
	Name string
	Size int
	Opts transcribe.Options
}

type mockCaptioner struct {
	text string
	err  error

	mu    sync.Mutex
	calls []captionCall
}

func (m *mockCaptioner) Caption(_ context.Context, name string, data []byte, opts transcribe.Options) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, captionCall{Name: name, Size: len(data), Opts: opts})
	m.mu.Unlock()
	return m.text, m.err
}

func (m *mockCaptioner) Calls() []captionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

type mockCaptionerFactory struct {
	captioner *mockCaptioner

	mu   sync.Mutex
	keys []string
}

func (m *mockCaptionerFactory) NewCaptioner(apiKey string, _ *zap.Logger) transcribe.Captioner {
	m.mu.Lock()
	m.keys = append(m.keys, apiKey)
	m.mu.Unlock()
	return m.captioner
}

func (m *mockCaptionerFactory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.keys)
}

// ---------------------------------------------------------------------------
// Test InterruptFactory
// ---------------------------------------------------------------------------

// testInterrupts feeds signals from the test instead of the OS.
type testInterrupts struct {
	sigCh chan os.Signal
}

func newTestInterrupts() *testInterrupts {
	return &testInterrupts{sigCh: make(chan os.Signal, 2)}
}

func (f *testInterrupts) NewHandler(ctx context.Context, opts interrupt.Options) (*interrupt.Handler, context.Context) {
	opts.SigCh = f.sigCh
	return interrupt.NewHandlerWithOptions(ctx, opts)
}

func (f *testInterrupts) Interrupt() {
	f.sigCh <- os.Interrupt
}

// Compile-time interface verification.
var (
	_ FFmpegResolver         = (*mockFFmpegResolver)(nil)
	_ ConfigLoader           = (*mockConfigLoader)(nil)
	_ CaptureFactory         = (*mockCaptureFactory)(nil)
	_ DeviceLister           = (*mockDeviceLister)(nil)
	_ UploaderFactory        = (*mockUploaderFactory)(nil)
	_ Outbox                 = (*mockOutbox)(nil)
	_ OutboxOpener           = (*mockOutboxOpener)(nil)
	_ CaptionerFactory       = (*mockCaptionerFactory)(nil)
	_ InterruptFactory       = (*testInterrupts)(nil)
	_ capture.MediaDevices   = (*fakeDevices)(nil)
	_ capture.EncoderFactory = (*fakeEncoders)(nil)
	_ capture.DurationProber = fakeProber{}
)
