package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/audio"
	"github.com/alnah/go-voicenote/internal/capture"
	"github.com/alnah/go-voicenote/internal/clock"
	"github.com/alnah/go-voicenote/internal/config"
	"github.com/alnah/go-voicenote/internal/duration"
	"github.com/alnah/go-voicenote/internal/ffmpeg"
	"github.com/alnah/go-voicenote/internal/interrupt"
	"github.com/alnah/go-voicenote/internal/outbox"
	"github.com/alnah/go-voicenote/internal/transcribe"
	"github.com/alnah/go-voicenote/internal/upload"
)

// Environment variables read by commands.
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvRESTToken    = "VOICENOTE_REST_TOKEN"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// All fields have sensible defaults via DefaultEnv(). Tests can override
// specific fields using the With* options or by creating a custom Env.
type Env struct {
	// I/O and environment
	Stderr io.Writer
	Stdout io.Writer
	Getenv func(string) string
	Now    func() time.Time
	Clock  clock.Clock
	Logger *zap.Logger

	// Factories for domain objects
	FFmpegResolver   FFmpegResolver
	ConfigLoader     ConfigLoader
	CaptureFactory   CaptureFactory
	DeviceLister     DeviceLister
	UploaderFactory  UploaderFactory
	OutboxOpener     OutboxOpener
	CaptionerFactory CaptionerFactory
	Interrupts       InterruptFactory
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// ConfigLoader loads and provides access to configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// CaptureDeps are the host capabilities a capture session runs on.
type CaptureDeps struct {
	Devices  capture.MediaDevices
	Encoders capture.EncoderFactory
	Prober   capture.DurationProber
	Primer   capture.Primer
}

// CaptureFactory builds the host capture capabilities.
type CaptureFactory interface {
	NewCapture(ctx context.Context, ffmpegPath string, logger *zap.Logger) (CaptureDeps, error)
}

// DeviceLister lists audio input devices.
type DeviceLister interface {
	ListDevices() ([]audio.DeviceInfo, error)
}

// UploaderFactory builds the storage backend selected in config. The
// returned Closer releases backend clients.
type UploaderFactory interface {
	NewUploader(ctx context.Context, cfg config.Config) (upload.Uploader, io.Closer, error)
}

// Outbox stores voice notes whose upload failed.
type Outbox interface {
	Save(ctx context.Context, e outbox.Entry) (int64, error)
	List(ctx context.Context) ([]outbox.Entry, error)
	Get(ctx context.Context, id int64) (outbox.Entry, error)
	Delete(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, msg string) error
	Close() error
}

// OutboxOpener opens the outbox database.
type OutboxOpener interface {
	Open(ctx context.Context, path string) (Outbox, error)
}

// CaptionerFactory creates captioners for finished voice notes.
type CaptionerFactory interface {
	NewCaptioner(apiKey string, logger *zap.Logger) transcribe.Captioner
}

// InterruptFactory installs Ctrl+C handling for a recording.
type InterruptFactory interface {
	NewHandler(ctx context.Context, opts interrupt.Options) (*interrupt.Handler, context.Context)
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stderr = w
	}
}

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) {
		e.Stdout = w
	}
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) {
		e.Getenv = fn
	}
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) {
		e.Now = fn
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) EnvOption {
	return func(e *Env) {
		if l != nil {
			e.Logger = l
		}
	}
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) {
		e.FFmpegResolver = r
	}
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) {
		e.ConfigLoader = l
	}
}

// WithCaptureFactory sets the capture factory.
func WithCaptureFactory(f CaptureFactory) EnvOption {
	return func(e *Env) {
		e.CaptureFactory = f
	}
}

// WithUploaderFactory sets the uploader factory.
func WithUploaderFactory(f UploaderFactory) EnvOption {
	return func(e *Env) {
		e.UploaderFactory = f
	}
}

// WithOutboxOpener sets the outbox opener.
func WithOutboxOpener(o OutboxOpener) EnvOption {
	return func(e *Env) {
		e.OutboxOpener = o
	}
}

// WithInterrupts sets the interrupt handler factory.
func WithInterrupts(f InterruptFactory) EnvOption {
	return func(e *Env) {
		e.Interrupts = f
	}
}

// WithDeviceLister sets the device lister.
func WithDeviceLister(l DeviceLister) EnvOption {
	return func(e *Env) {
		e.DeviceLister = l
	}
}

// WithClock sets the clock driving recording timers.
func WithClock(c clock.Clock) EnvOption {
	return func(e *Env) {
		e.Clock = c
	}
}

// WithCaptionerFactory sets the captioner factory.
func WithCaptionerFactory(f CaptionerFactory) EnvOption {
	return func(e *Env) {
		e.CaptionerFactory = f
	}
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stderr:           os.Stderr,
		Stdout:           os.Stdout,
		Getenv:           os.Getenv,
		Now:              time.Now,
		Clock:            clock.Real(),
		Logger:           zap.NewNop(),
		FFmpegResolver:   &defaultFFmpegResolver{},
		ConfigLoader:     &defaultConfigLoader{},
		CaptureFactory:   &defaultCaptureFactory{},
		DeviceLister:     &defaultDeviceLister{},
		UploaderFactory:  &defaultUploaderFactory{getenv: os.Getenv},
		OutboxOpener:     &defaultOutboxOpener{},
		CaptionerFactory: &defaultCaptionerFactory{},
		Interrupts:       &defaultInterrupts{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// defaultFFmpegResolver implements FFmpegResolver using the ffmpeg package.
type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.Resolve(ctx)
}

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

// defaultCaptureFactory wires miniaudio input and FFmpeg encoding.
type defaultCaptureFactory struct{}

func (defaultCaptureFactory) NewCapture(ctx context.Context, ffmpegPath string, logger *zap.Logger) (CaptureDeps, error) {
	caps, err := audio.QueryCapabilities(ctx, ffmpegPath)
	if err != nil {
		return CaptureDeps{}, err
	}
	return CaptureDeps{
		Devices:  audio.NewDevices(audio.WithDevicesLogger(logger)),
		Encoders: audio.NewEncoders(ffmpegPath, caps, audio.WithEncoderLogger(logger)),
		Prober:   duration.NewProber(audio.ElementFactory(ffmpegPath, logger), duration.WithLogger(logger)),
		Primer:   audio.NewPrimer(),
	}, nil
}

// defaultDeviceLister implements DeviceLister using miniaudio.
type defaultDeviceLister struct{}

func (defaultDeviceLister) ListDevices() ([]audio.DeviceInfo, error) {
	return audio.NewDevices().List()
}

// defaultUploaderFactory builds the configured storage backend.
type defaultUploaderFactory struct {
	getenv func(string) string
}

func (f defaultUploaderFactory) NewUploader(ctx context.Context, cfg config.Config) (upload.Uploader, io.Closer, error) {
	switch cfg.UploadBackend {
	case "", config.BackendLocal:
		dir := config.ExpandPath(cfg.OutputDir)
		if dir == "" {
			d, err := config.Dir()
			if err != nil {
				return nil, nil, err
			}
			dir = filepath.Join(d, "notes")
		}
		return upload.NewLocalUploader(dir, cfg.PublicBaseURL), nopCloser{}, nil
	case config.BackendS3:
		if cfg.Bucket == "" {
			return nil, nil, fmt.Errorf("s3: %w", ErrBucketMissing)
		}
		u, err := upload.NewS3Uploader(ctx, cfg.Bucket, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return u, nopCloser{}, nil
	case config.BackendGCS:
		if cfg.Bucket == "" {
			return nil, nil, fmt.Errorf("gcs: %w", ErrBucketMissing)
		}
		u, err := upload.NewGCSUploader(ctx, cfg.Bucket, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return u, u, nil
	case config.BackendREST:
		u, err := upload.NewRESTUploader(cfg.RESTEndpoint, cfg.Bucket, cfg.PublicBaseURL,
			upload.WithToken(f.getenv(EnvRESTToken)))
		if err != nil {
			return nil, nil, errors.Join(ErrInvalidBackend, err)
		}
		return u, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.UploadBackend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// defaultOutboxOpener implements OutboxOpener with SQLite.
type defaultOutboxOpener struct{}

func (defaultOutboxOpener) Open(ctx context.Context, path string) (Outbox, error) {
	return outbox.Open(ctx, path)
}

// defaultCaptionerFactory implements CaptionerFactory using OpenAI.
type defaultCaptionerFactory struct{}

func (defaultCaptionerFactory) NewCaptioner(apiKey string, logger *zap.Logger) transcribe.Captioner {
	return transcribe.NewOpenAICaptioner(openai.NewClient(apiKey), transcribe.WithLogger(logger))
}

// defaultInterrupts listens for SIGINT/SIGTERM.
type defaultInterrupts struct{}

func (defaultInterrupts) NewHandler(ctx context.Context, opts interrupt.Options) (*interrupt.Handler, context.Context) {
	return interrupt.Listen(ctx, opts)
}

// Compile-time interface verification.
var (
	_ FFmpegResolver   = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader     = (*defaultConfigLoader)(nil)
	_ CaptureFactory   = (*defaultCaptureFactory)(nil)
	_ DeviceLister     = (*defaultDeviceLister)(nil)
	_ UploaderFactory  = (*defaultUploaderFactory)(nil)
	_ OutboxOpener     = (*defaultOutboxOpener)(nil)
	_ CaptionerFactory = (*defaultCaptionerFactory)(nil)
	_ InterruptFactory = (*defaultInterrupts)(nil)
	_ Outbox           = (*outbox.Store)(nil)
)
