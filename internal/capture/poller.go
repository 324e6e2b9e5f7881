package capture

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/clock"
)

// poller requests encoder flushes on its own schedule. Event-driven chunk
// delivery silently stalls on some mobile runtimes and yields zero-byte
// recordings; the poller is the redundant path, not the primary one.
type poller struct {
	enc       Encoder
	recording func() bool
	logger    *zap.Logger

	mu    sync.Mutex
	timer clock.Timer
}

// startPoller flushes enc every interval while recording reports true.
func startPoller(c clock.Clock, interval time.Duration, enc Encoder, recording func() bool, logger *zap.Logger) *poller {
	p := &poller{enc: enc, recording: recording, logger: logger}
	t := c.TickFunc(interval, func() { p.flush() })
	p.mu.Lock()
	p.timer = t
	p.mu.Unlock()
	return p
}

// flush requests data if the session is recording and the encoder is
// still active. It reports whether a request was issued.
func (p *poller) flush() bool {
	if !p.recording() || p.enc.State() != EncoderRecording {
		return false
	}
	p.enc.RequestData()
	p.logger.Debug("poller flush requested")
	return true
}

// stop cancels future flushes. Safe to call more than once.
func (p *poller) stop() {
	p.mu.Lock()
	t := p.timer
	p.timer = nil
	p.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}
