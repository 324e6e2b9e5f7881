package clock

import (
	"sync"
	"time"
)

// Compile-time interface implementation check.
var _ Clock = (*Fake)(nil)

// Fake is a manually advanced Clock. Callbacks fire synchronously inside
// Advance, in due-time order; timers due at the same instant fire in the
// order they were created. Timers created by a callback during Advance
// fire in the same Advance call if they fall due before its target.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock  *Fake
	when   time.Time
	period time.Duration // Zero for one-shot timers.
	seq    uint64
	fn     func()
	active bool
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run once d after the current fake time.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.schedule(d, 0, fn)
}

// TickFunc schedules fn to run every d.
func (f *Fake) TickFunc(d time.Duration, fn func()) Timer {
	if d <= 0 {
		panic("clock: non-positive tick interval")
	}
	return f.schedule(d, d, fn)
}

func (f *Fake) schedule(d, period time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{
		clock:  f,
		when:   f.now.Add(d),
		period: period,
		seq:    f.seq,
		fn:     fn,
		active: true,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every callback that falls
// due on the way.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.when
		if next.period > 0 {
			next.when = next.when.Add(next.period)
		} else {
			next.active = false
			f.removeLocked(next)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending reports how many timers are still scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var next *fakeTimer
	for _, t := range f.timers {
		if t.when.After(target) {
			continue
		}
		if next == nil || t.when.Before(next.when) ||
			(t.when.Equal(next.when) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (f *Fake) removeLocked(t *fakeTimer) {
	for i, cur := range f.timers {
		if cur == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if !t.active {
		return false
	}
	t.active = false
	t.clock.removeLocked(t)
	return true
}
