// Package clock abstracts timers so that timing-sensitive components
// (elapsed counter, flush poller, auto-stop deadline, settle delay, probe
// timeout) can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock schedules callbacks. Callbacks may run on any goroutine and must
// not assume they hold any caller lock.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once after d.
	AfterFunc(d time.Duration, f func()) Timer
	// TickFunc calls f every d until the returned Timer is stopped.
	TickFunc(d time.Duration, f func()) Timer
}

// Timer cancels a scheduled callback.
type Timer interface {
	// Stop prevents future invocations. It reports whether the timer was
	// still active.
	Stop() bool
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) TickFunc(d time.Duration, f func()) Timer {
	t := &realTicker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

// realTicker runs callbacks sequentially on a single goroutine.
type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) run(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// Stop may race with a pending tick; re-check before calling f.
			select {
			case <-t.done:
				return
			default:
			}
			f()
		}
	}
}

func (t *realTicker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
