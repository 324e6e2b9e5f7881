// Package logging builds the diagnostic logger: JSON lines written to a
// size-rotated file under the config directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file name inside the config directory.
const FileName = "voicenote.log"

// Rotation limits.
const (
	maxSizeMB  = 5
	maxBackups = 3
	maxAgeDays = 28
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to path, rotated by size. Debug enables
// debug-level entries. An empty path returns a no-op logger. The returned
// Closer flushes and closes the file.
func New(path string, debug bool) (*zap.Logger, io.Closer, error) {
	if path == "" {
		return zap.NewNop(), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil { // #nosec G301 -- user config dir
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	logger := newLogger(zapcore.AddSync(lj), debug)
	return logger, closerFunc(func() error {
		_ = logger.Sync()
		return lj.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newLogger(sink zapcore.WriteSyncer, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), sink, level)
	return zap.New(core)
}
