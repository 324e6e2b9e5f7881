package audio

import (
	"context"
	"os"

	"github.com/alnah/go-voicenote/internal/ffmpeg"
)

// runOutputFunc runs FFmpeg to completion and returns its combined output.
type runOutputFunc func(ctx context.Context, ffmpegPath string, args []string) (string, error)

// startFunc launches a piped FFmpeg process.
type startFunc func(ctx context.Context, ffmpegPath string, args []string) (ffmpeg.Process, error)

// tempFiles creates and removes scratch files.
type tempFiles interface {
	WriteTemp(pattern string, data []byte) (string, error)
	Remove(name string) error
}

// --- Default implementations ---

// osTempFiles implements tempFiles in the OS temp directory.
type osTempFiles struct{}

func (osTempFiles) WriteTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (osTempFiles) Remove(name string) error {
	return os.Remove(name)
}
