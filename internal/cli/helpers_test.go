package cli

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/clock"
	"github.com/alnah/go-voicenote/internal/config"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	ffmpegResolver *mockFFmpegResolver
	configLoader   *mockConfigLoader
	capture        *mockCaptureFactory
	devices        *mockDeviceLister
	uploader       *mockUploader
	uploaders      *mockUploaderFactory
	outbox         *mockOutbox
	outboxOpener   *mockOutboxOpener
	captioner      *mockCaptioner
	captioners     *mockCaptionerFactory
	interrupts     *testInterrupts
}

func newTestMocks() *testMocks {
	uploader := &mockUploader{}
	box := newMockOutbox()
	captioner := &mockCaptioner{text: "Call the dentist tomorrow."}
	return &testMocks{
		ffmpegResolver: &mockFFmpegResolver{},
		configLoader:   configWith(testConfig()),
		capture:        &mockCaptureFactory{deps: newCaptureDeps(bytes.Repeat([]byte("opus"), 1024), 7)},
		devices:        &mockDeviceLister{},
		uploader:       uploader,
		uploaders:      &mockUploaderFactory{uploader: uploader},
		outbox:         box,
		outboxOpener:   &mockOutboxOpener{box: box},
		captioner:      captioner,
		captioners:     &mockCaptionerFactory{captioner: captioner},
		interrupts:     newTestInterrupts(),
	}
}

// ---------------------------------------------------------------------------
// testEnv - creates a fully mocked Env for testing
// ---------------------------------------------------------------------------

// testEnvOptions configures a test environment.
type testEnvOptions struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time
	mocks  *testMocks
}

// testEnvOption configures testEnv.
type testEnvOption func(*testEnvOptions)

func withTestGetenv(fn func(string) string) testEnvOption {
	return func(o *testEnvOptions) {
		o.getenv = fn
	}
}

func withTestMocks(m *testMocks) testEnvOption {
	return func(o *testEnvOptions) {
		o.mocks = m
	}
}

// testEnv creates a test Env with all dependencies mocked.
// Returns the Env, its stdout and stderr buffers, and the mocks.
func testEnv(opts ...testEnvOption) (*Env, *syncBuffer, *syncBuffer, *testMocks) {
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	options := &testEnvOptions{
		stdout: stdout,
		stderr: stderr,
		getenv: staticEnv(nil),
		now:    fixedTime(time.Date(2026, 1, 26, 14, 30, 52, 0, time.UTC)),
		mocks:  newTestMocks(),
	}

	for _, opt := range opts {
		opt(options)
	}

	m := options.mocks
	env := &Env{
		Stderr:           options.stderr,
		Stdout:           options.stdout,
		Getenv:           options.getenv,
		Now:              options.now,
		Clock:            clock.Real(),
		Logger:           zap.NewNop(),
		FFmpegResolver:   m.ffmpegResolver,
		ConfigLoader:     m.configLoader,
		CaptureFactory:   m.capture,
		DeviceLister:     m.devices,
		UploaderFactory:  m.uploaders,
		OutboxOpener:     m.outboxOpener,
		CaptionerFactory: m.captioners,
		Interrupts:       m.interrupts,
	}

	return env, stdout, stderr, m
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// testConfig returns a config whose recordings end on their own quickly.
func testConfig() config.Config {
	return config.Config{
		UploadBackend: config.BackendLocal,
		UploadFolder:  "inbox",
		MinBytes:      config.DefaultMinBytes,
		SettleDelay:   time.Millisecond,
		MaxDuration:   30 * time.Millisecond,
		OutboxPath:    "/var/lib/voicenote/outbox.db",
	}
}

// configWith returns a ConfigLoader that returns cfg.
func configWith(cfg config.Config) *mockConfigLoader {
	return &mockConfigLoader{
		LoadFunc: func() (config.Config, error) {
			return cfg, nil
		},
	}
}

// fixedTime returns a function that always returns the given time.
func fixedTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// staticEnv returns a getenv function that returns values from the given map.
func staticEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

// waitForOutput polls buf until it contains want.
func waitForOutput(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q in output:\n%s", want, buf.String())
		}
		time.Sleep(time.Millisecond)
	}
}
