package ffmpeg

import "errors"

// ErrNotFound indicates the FFmpeg binary could not be located.
var ErrNotFound = errors.New("ffmpeg not found")

// ErrProcess indicates a piped FFmpeg process could not be started.
var ErrProcess = errors.New("ffmpeg process failed")
