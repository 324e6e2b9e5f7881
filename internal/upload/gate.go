// Package upload validates finished voice notes and hands them to a
// storage backend.
//
// The Gate refuses recordings below a minimum size without contacting the
// backend, names the artifact, retries transient failures and reports
// everything else as ErrUploadFailed. Backends for a local directory, S3,
// Google Cloud Storage and a REST object store live alongside it.
package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/apierr"
	"github.com/alnah/go-voicenote/internal/capture"
)

// DefaultMinBytes is the smallest recording accepted for upload.
const DefaultMinBytes = 2000

// DefaultOwner prefixes artifact names when no owner is configured.
const DefaultOwner = "voice"

// Result describes a successful upload.
type Result struct {
	URL             string
	Name            string
	MIMEType        string
	DurationSeconds int
}

// Gate validates and uploads finished recordings.
type Gate struct {
	uploader Uploader
	folder   string
	owner    string
	minBytes int
	retry    apierr.RetryConfig
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithFolder sets the destination folder.
func WithFolder(folder string) GateOption {
	return func(g *Gate) {
		g.folder = folder
	}
}

// WithOwner sets the identity prefix of artifact names.
func WithOwner(owner string) GateOption {
	return func(g *Gate) {
		if owner = sanitize(owner); owner != "" {
			g.owner = owner
		}
	}
}

// WithMinBytes sets the minimum accepted size.
func WithMinBytes(n int) GateOption {
	return func(g *Gate) {
		if n > 0 {
			g.minBytes = n
		}
	}
}

// WithRetry sets the retry policy for transient backend failures.
func WithRetry(cfg apierr.RetryConfig) GateOption {
	return func(g *Gate) {
		g.retry = cfg
	}
}

// WithNow sets the time source used in artifact names.
func WithNow(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// WithIDGenerator sets the unique suffix source of artifact names.
func WithIDGenerator(fn func() string) GateOption {
	return func(g *Gate) {
		g.newID = fn
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a Gate in front of u.
func NewGate(u Uploader, opts ...GateOption) *Gate {
	g := &Gate{
		uploader: u,
		owner:    DefaultOwner,
		minBytes: DefaultMinBytes,
		retry:    apierr.DefaultRetryConfig,
		now:      time.Now,
		newID:    func() string { return uuid.NewString()[:8] },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check reports ErrEmptyOrShort if a is missing or below the minimum size.
func (g *Gate) Check(a *capture.Audio) error {
	if a == nil || a.Len() < g.minBytes {
		n := 0
		if a != nil {
			n = a.Len()
		}
		return fmt.Errorf("%d bytes, minimum %d: %w", n, g.minBytes, ErrEmptyOrShort)
	}
	return nil
}

// File wraps a into a named artifact.
func (g *Gate) File(a *capture.Audio) File {
	name := fmt.Sprintf("%s_%d_%s.%s", g.owner, g.now().UnixMilli(), g.newID(), a.Extension())
	return File{Name: name, MIMEType: a.MIMEType(), Data: a.Bytes()}
}

// Upload validates a and uploads it. Undersized recordings never reach
// the backend.
func (g *Gate) Upload(ctx context.Context, a *capture.Audio) (Result, error) {
	if err := g.Check(a); err != nil {
		return Result{}, err
	}
	f := g.File(a)
	url, err := g.Send(ctx, f)
	if err != nil {
		return Result{}, err
	}
	return Result{URL: url, Name: f.Name, MIMEType: f.MIMEType, DurationSeconds: a.DurationSeconds()}, nil
}

// Send uploads an already named artifact, retrying transient failures.
// Used directly when retrying stored notes.
func (g *Gate) Send(ctx context.Context, f File) (string, error) {
	cfg := g.retry
	cfg.OnRetry = func(retry int, err error, wait time.Duration) {
		g.logger.Info("upload retry",
			zap.String("name", f.Name), zap.Int("retry", retry), zap.Duration("wait", wait), zap.Error(err))
	}
	url, err := apierr.RetryWithBackoff(ctx, cfg, func() (string, error) {
		url, err := g.uploader.Upload(ctx, f, g.folder)
		if err == nil && url == "" {
			err = ErrNoURL
		}
		return url, err
	}, apierr.Retryable)
	if err != nil {
		g.logger.Warn("upload failed", zap.String("name", f.Name), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	g.logger.Info("upload complete", zap.String("name", f.Name), zap.String("url", url))
	return url, nil
}

// Folder returns the destination folder.
func (g *Gate) Folder() string { return g.folder }

// sanitize keeps letters, digits, dash and underscore.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, s)
}
