// Package duration measures the playable length of finished audio bytes.
//
// Assembled or streamed containers often report an infinite or missing
// duration, and scanning a malformed container can hang. The prober
// therefore races the metadata path against a bounded wait and falls back
// to the elapsed recording time.
package duration

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/clock"
)

// DefaultTimeout is how long the prober waits for metadata before using
// the fallback.
const DefaultTimeout = 4 * time.Second

// Source records which path produced a measurement.
type Source int

const (
	SourceMetadata Source = iota
	SourceError
	SourceTimeout
	SourceInvalid // Metadata fired with a non-finite or non-positive value.
)

// String returns the string representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceMetadata:
		return "metadata"
	case SourceError:
		return "error"
	case SourceTimeout:
		return "timeout"
	case SourceInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("Source(%d)", s)
	}
}

// Handlers receives element events. At most one is expected to fire, but
// the prober tolerates any number.
type Handlers struct {
	OnLoadedMetadata func(seconds float64)
	OnError          func(err error)
}

// Element is a throwaway playable surface that reports container metadata.
// Load must not block; events are delivered through h on any goroutine.
type Element interface {
	Load(data []byte, mimeType string, h Handlers)
	Close() error
}

// ElementFactory creates one Element per probe.
type ElementFactory func() (Element, error)

// Prober measures durations. It is safe for concurrent use.
type Prober struct {
	newElement ElementFactory
	clock      clock.Clock
	timeout    time.Duration
	logger     *zap.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithClock sets the clock used for the metadata wait.
func WithClock(c clock.Clock) ProberOption {
	return func(p *Prober) {
		p.clock = c
	}
}

// WithTimeout sets the metadata wait. Non-positive values are ignored.
func WithTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) ProberOption {
	return func(p *Prober) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProber creates a Prober that loads bytes into elements from newElement.
func NewProber(newElement ElementFactory, opts ...ProberOption) *Prober {
	p := &Prober{
		newElement: newElement,
		clock:      clock.Real(),
		timeout:    DefaultTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe measures data and calls done exactly once with a positive whole
// number of seconds. fallback is the elapsed recording time; it is used
// (floored at 1) when metadata is unusable or does not arrive within the
// timeout. Probe never blocks: the timeout is armed before it returns.
func (p *Prober) Probe(data []byte, mimeType string, fallback int, done func(seconds int, src Source)) {
	run := &probe{done: done, fallback: Fallback(fallback), logger: p.logger}

	run.mu.Lock()
	run.timer = p.clock.AfterFunc(p.timeout, func() {
		run.finish(run.fallback, SourceTimeout, nil)
	})
	run.mu.Unlock()

	el, err := p.newElement()
	if err != nil || el == nil {
		run.finish(run.fallback, SourceError, err)
		return
	}
	run.mu.Lock()
	run.element = el
	closeNow := run.finished
	run.mu.Unlock()
	if closeNow {
		_ = el.Close()
		return
	}

	el.Load(data, mimeType, Handlers{
		OnLoadedMetadata: func(seconds float64) {
			if s, ok := Round(seconds); ok {
				run.finish(s, SourceMetadata, nil)
				return
			}
			run.finish(run.fallback, SourceInvalid, nil)
		},
		OnError: func(err error) {
			run.finish(run.fallback, SourceError, err)
		},
	})
}

// Measure is the blocking form of Probe. If ctx ends first, the fallback
// is returned.
func (p *Prober) Measure(ctx context.Context, data []byte, mimeType string, fallback int) int {
	result := make(chan int, 1)
	p.Probe(data, mimeType, fallback, func(seconds int, _ Source) {
		result <- seconds
	})
	select {
	case s := <-result:
		return s
	case <-ctx.Done():
		return Fallback(fallback)
	}
}

// probe is the state of one measurement.
type probe struct {
	mu       sync.Mutex
	finished bool
	timer    clock.Timer
	element  Element
	fallback int
	done     func(int, Source)
	logger   *zap.Logger
}

func (r *probe) finish(seconds int, src Source, cause error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	timer, el := r.timer, r.element
	r.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if el != nil {
		_ = el.Close()
	}
	if src != SourceMetadata {
		r.logger.Debug("duration fallback used",
			zap.Stringer("source", src), zap.Int("seconds", seconds), zap.Error(cause))
	}
	r.done(seconds, src)
}

// Round converts a metadata duration to whole seconds. It reports false
// for NaN, infinities and non-positive values. Sub-second durations round
// up to 1.
func Round(seconds float64) (int, bool) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, false
	}
	return max(1, int(math.Round(seconds))), true
}

// Fallback floors the elapsed recording time at 1.
func Fallback(elapsed int) int {
	return max(1, elapsed)
}
