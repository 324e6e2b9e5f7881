package audio

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/codec"
	"github.com/alnah/go-voicenote/internal/duration"
	"github.com/alnah/go-voicenote/internal/ffmpeg"
)

// Compile-time interface implementation check.
var _ duration.Element = (*Element)(nil)

var (
	durationRe     = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	durationNARe   = regexp.MustCompile(`Duration:\s*N/A`)
	progressTimeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
)

// Element measures audio bytes by decoding them with FFmpeg. It reports
// the container's declared duration when present, otherwise the decoded
// length.
type Element struct {
	ffmpegPath string
	run        runOutputFunc
	files      tempFiles
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	path   string
	closed bool
}

// ElementFactory returns a duration.ElementFactory producing FFmpeg
// elements.
func ElementFactory(ffmpegPath string, logger *zap.Logger) duration.ElementFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func() (duration.Element, error) {
		return newElement(ffmpegPath, ffmpeg.RunOutput, osTempFiles{}, logger), nil
	}
}

func newElement(ffmpegPath string, run runOutputFunc, files tempFiles, logger *zap.Logger) *Element {
	return &Element{ffmpegPath: ffmpegPath, run: run, files: files, logger: logger}
}

// Load writes data to a scratch file and decodes it in the background.
func (e *Element) Load(data []byte, mimeType string, h duration.Handlers) {
	path, err := e.files.WriteTemp("voicenote-*."+codec.ExtensionFor(mimeType), data)
	if err != nil {
		h.OnError(fmt.Errorf("write scratch file: %w", err))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		_ = e.files.Remove(path)
		return
	}
	e.path, e.cancel = path, cancel
	e.mu.Unlock()

	go func() {
		output, runErr := e.run(ctx, e.ffmpegPath, []string{"-hide_banner", "-i", path, "-f", "null", "-"})
		if ctx.Err() != nil {
			return
		}
		seconds, err := parseDuration(output)
		if err != nil {
			if runErr != nil {
				err = fmt.Errorf("%w: %w", err, runErr)
			}
			h.OnError(err)
			return
		}
		h.OnLoadedMetadata(seconds)
	}()
}

// Close stops decoding and removes the scratch file.
func (e *Element) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.cancel != nil {
		e.cancel()
	}
	if e.path != "" {
		if err := e.files.Remove(e.path); err != nil {
			e.logger.Debug("remove scratch file", zap.String("path", e.path), zap.Error(err))
		}
	}
	return nil
}

// parseDuration reads seconds from FFmpeg output. A declared container
// duration wins; a container declaring N/A falls back to the last decode
// progress time. Streamed containers with neither report +Inf.
func parseDuration(output string) (float64, error) {
	if m := durationRe.FindStringSubmatch(output); m != nil {
		return parseTimeComponents(m[1], m[2], m[3], m[4]).Seconds(), nil
	}
	if all := progressTimeRe.FindAllStringSubmatch(output, -1); len(all) > 0 {
		m := all[len(all)-1]
		return parseTimeComponents(m[1], m[2], m[3], m[4]).Seconds(), nil
	}
	if durationNARe.MatchString(output) {
		return math.Inf(1), nil
	}
	return 0, ErrNoDuration
}

// parseTimeComponents converts HH:MM:SS.frac strings to a Duration. The
// fractional part may have any number of digits.
func parseTimeComponents(hours, minutes, seconds, fractional string) time.Duration {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)
	frac, _ := strconv.ParseFloat("0."+fractional, 64)

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(frac*float64(time.Second))
}
