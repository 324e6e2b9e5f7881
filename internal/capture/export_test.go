package capture

import (
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/clock"
)

// StartPoller exposes startPoller for testing.
func StartPoller(c clock.Clock, interval time.Duration, enc Encoder, recording func() bool) *Poller {
	return startPoller(c, interval, enc, recording, zap.NewNop())
}

// Poller exposes poller for testing.
type Poller = poller

// Flush exposes flush for testing.
func (p *poller) Flush() bool { return p.flush() }

// Stop exposes stop for testing.
func (p *poller) Stop() { p.stop() }
