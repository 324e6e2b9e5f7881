// Package capture records one voice note at a time: it owns the input
// device, the encoder, the chunk buffer and every timer of a recording,
// and hands the finished Audio to waiters through a Completion.
//
// All transitions are callback-driven. Encoder events and timers may
// arrive on any goroutine; the Session serializes them with one mutex and
// never calls into the encoder, device or prober while holding it.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-voicenote/internal/clock"
	"github.com/alnah/go-voicenote/internal/codec"
	"github.com/alnah/go-voicenote/internal/duration"
)

// Default policy values.
const (
	DefaultFlushInterval = time.Second
	DefaultPollInterval  = time.Second
	DefaultMaxDuration   = 120 * time.Second
	DefaultSettleDelay   = 400 * time.Millisecond
	DefaultStopTimeout   = 5 * time.Second
)

// elapsedTick is the granularity of the elapsed-time counter.
const elapsedTick = time.Second

// ErrAborted indicates the recording was discarded by Close.
var ErrAborted = errors.New("recording aborted")

// Session is the capture state machine for one composer. At most one
// recording is active at a time; Start is rejected with ErrBusy unless
// the session is idle, ready or failed.
type Session struct {
	devices  MediaDevices
	encoders EncoderFactory
	prober   DurationProber

	primer        Primer
	platform      codec.Platform
	clock         clock.Clock
	logger        *zap.Logger
	notifier      Notifier
	onElapsed     func(seconds int)
	flushInterval time.Duration
	pollInterval  time.Duration
	maxDuration   time.Duration
	settleDelay   time.Duration
	stopTimeout   time.Duration
	warmUpBudget  time.Duration

	mu    sync.Mutex
	state State
	seq   uint64
	run   *run
}

// run holds everything owned by a single recording. Callbacks carry the
// run they were created for and are ignored once it is no longer current.
type run struct {
	id         uint64
	completion *Completion
	stream     Stream
	encoder    Encoder
	choice     codec.Choice
	chunks     [][]byte
	sealed     bool
	elapsed    int

	ticker   clock.Timer
	deadline clock.Timer
	stopping clock.Timer
	settle   clock.Timer
	poller   *poller

	releaseOnce sync.Once
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPrimer sets the warm-up primer. Nil disables warm-up.
func WithPrimer(p Primer) SessionOption {
	return func(s *Session) {
		s.primer = p
	}
}

// WithPlatform sets the platform signature used for codec selection.
func WithPlatform(p codec.Platform) SessionOption {
	return func(s *Session) {
		s.platform = p
	}
}

// WithClock sets the clock driving every timer of the session.
func WithClock(c clock.Clock) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNotifier sets where user-facing failure messages go.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithOnElapsed registers a callback receiving the elapsed seconds on
// every tick while recording.
func WithOnElapsed(fn func(seconds int)) SessionOption {
	return func(s *Session) {
		s.onElapsed = fn
	}
}

// WithMaxDuration sets the automatic stop deadline.
func WithMaxDuration(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.maxDuration = d
		}
	}
}

// WithSettleDelay sets the wait between encoder stop and buffer read.
func WithSettleDelay(d time.Duration) SessionOption {
	return func(s *Session) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithFlushInterval sets the encoder's own chunk interval.
func WithFlushInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithStopTimeout bounds the wait for the encoder's stop event. An encoder
// still running after it is aborted and the recording fails.
func WithStopTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithPollInterval sets the reliability poller interval.
func WithPollInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithWarmUpBudget bounds the warm-up wait.
func WithWarmUpBudget(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.warmUpBudget = d
		}
	}
}

// NewSession creates an idle Session.
func NewSession(devices MediaDevices, encoders EncoderFactory, prober DurationProber, opts ...SessionOption) (*Session, error) {
	if devices == nil {
		return nil, errors.New("capture: devices cannot be nil")
	}
	if encoders == nil {
		return nil, errors.New("capture: encoders cannot be nil")
	}
	if prober == nil {
		return nil, errors.New("capture: prober cannot be nil")
	}
	s := &Session{
		devices:       devices,
		encoders:      encoders,
		prober:        prober,
		platform:      codec.Host(),
		clock:         clock.Real(),
		logger:        zap.NewNop(),
		flushInterval: DefaultFlushInterval,
		pollInterval:  DefaultPollInterval,
		maxDuration:   DefaultMaxDuration,
		settleDelay:   DefaultSettleDelay,
		stopTimeout:   DefaultStopTimeout,
		warmUpBudget:  DefaultWarmUpBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the elapsed seconds of the current or last recording.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return 0
	}
	return s.run.elapsed
}

// Choice returns the codec of the current or last recording. Once the
// encoder is built it reflects the type the encoder actually produces.
func (s *Session) Choice() codec.Choice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return codec.Choice{}
	}
	return s.run.choice
}

// Completion returns the handle of the current or last recording, or nil
// before the first Start.
func (s *Session) Completion() *Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil
	}
	return s.run.completion
}

// Wait blocks until the current or last recording resolves. Repeated
// calls return the same result.
func (s *Session) Wait(ctx context.Context) (*Audio, error) {
	c := s.Completion()
	if c == nil {
		return nil, ErrNotStarted
	}
	return c.Wait(ctx)
}

// Start acquires the device and begins recording. It blocks through
// permission acquisition and encoder arming; once it returns nil the
// session is recording. Failures resolve the new Completion with nil.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.startable() {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("start rejected", zap.Stringer("state", state))
		return ErrBusy
	}
	s.seq++
	r := &run{id: s.seq, completion: newCompletion()}
	s.run = r
	s.setStateLocked(StateAcquiring)
	s.mu.Unlock()

	stream, err := s.devices.GetAudioStream(ctx)
	if err != nil {
		err = classifyDeviceError(err)
		s.fail(r, err)
		return err
	}

	choice := codec.Detect(s.platform, s.encoders.IsTypeSupported)
	s.mu.Lock()
	r.stream = stream
	r.choice = choice
	if !s.currentLocked(r, StateAcquiring) {
		s.mu.Unlock()
		s.releaseTracks(r)
		return ErrAborted
	}
	s.setStateLocked(StateArmed)
	s.mu.Unlock()
	s.logger.Info("codec selected",
		zap.String("mime", choice.MIMEType), zap.Stringer("family", s.platform.Family))

	WarmUp(ctx, s.primer, s.warmUpBudget, s.logger)

	enc, err := s.newEncoder(stream, choice)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrEncoder, err)
		s.fail(r, err)
		return err
	}
	if produced := producedChoice(enc, choice); produced != choice {
		s.logger.Info("encoder uses runtime default",
			zap.String("requested", choice.MIMEType), zap.String("mime", produced.MIMEType))
		choice = produced
	}
	enc.SetHandlers(EncoderHandlers{
		OnData:  func(chunk []byte) { s.onData(r, chunk) },
		OnStop:  func() { s.onStop(r) },
		OnError: func(err error) { s.fail(r, fmt.Errorf("%w: %w", ErrEncoder, err)) },
	})
	s.mu.Lock()
	r.encoder = enc
	r.choice = choice
	s.mu.Unlock()

	if err := enc.Start(s.flushInterval); err != nil {
		err = fmt.Errorf("%w: %w", ErrEncoder, err)
		s.fail(r, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(r, StateArmed) {
		// The encoder failed while starting; fail already cleaned up.
		select {
		case <-r.completion.Done():
			return r.completion.err
		default:
			return ErrAborted
		}
	}
	r.elapsed = 0
	s.setStateLocked(StateRecording)
	r.ticker = s.clock.TickFunc(elapsedTick, func() { s.tick(r) })
	r.poller = startPoller(s.clock, s.pollInterval, enc, func() bool { return s.isRecording(r) }, s.logger)
	r.deadline = s.clock.AfterFunc(s.maxDuration, func() {
		s.logger.Info("max duration reached", zap.Duration("max", s.maxDuration))
		s.stop(r, true)
	})
	return nil
}

// Stop ends the current recording. The session then finalizes on its own
// and always reaches ready or error.
func (s *Session) Stop() error {
	s.mu.Lock()
	r := s.run
	recording := r != nil && s.state == StateRecording
	s.mu.Unlock()
	if !recording {
		return ErrNotRecording
	}
	s.stop(r, false)
	return nil
}

// Close discards any recording in progress and releases the device.
// Finalizing recordings are left to complete.
func (s *Session) Close() error {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r != nil {
		s.fail(r, ErrAborted)
	}
	return nil
}

func (s *Session) newEncoder(stream Stream, choice codec.Choice) (Encoder, error) {
	mimeType := choice.MIMEType
	if !s.encoders.IsTypeSupported(mimeType) {
		// Accept the runtime default rather than forcing an unconfirmed type.
		mimeType = ""
	}
	enc, err := s.encoders.NewEncoder(stream, mimeType)
	if err != nil && mimeType != "" {
		s.logger.Warn("encoder rejected mime type, using default",
			zap.String("mime", mimeType), zap.Error(err))
		enc, err = s.encoders.NewEncoder(stream, "")
	}
	return enc, err
}

// producedChoice labels the recording with what enc really encodes.
func producedChoice(enc Encoder, choice codec.Choice) codec.Choice {
	typed, ok := enc.(TypedEncoder)
	if !ok {
		return choice
	}
	mimeType := typed.MIMEType()
	if mimeType == "" || mimeType == choice.MIMEType {
		return choice
	}
	return codec.Choice{MIMEType: mimeType, Extension: codec.ExtensionFor(mimeType)}
}

// stop runs the recording -> stopping transition for r. atDeadline
// freezes the elapsed counter at the ceiling, whichever of the last tick
// and the deadline fired first.
func (s *Session) stop(r *run, atDeadline bool) {
	s.mu.Lock()
	if !s.currentLocked(r, StateRecording) {
		s.mu.Unlock()
		return
	}
	if r.deadline != nil {
		r.deadline.Stop()
	}
	enc, p := r.encoder, r.poller
	s.mu.Unlock()

	// One forced flush before stopping covers recordings shorter than
	// the encoder's own interval.
	p.flush()

	s.mu.Lock()
	if !s.currentLocked(r, StateRecording) {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateStopping)
	if ceiling := int(s.maxDuration / elapsedTick); atDeadline && ceiling > r.elapsed {
		r.elapsed = ceiling
	}
	// Armed before Stop: encoders may report the stop synchronously.
	r.stopping = s.clock.AfterFunc(s.stopTimeout, func() {
		s.logger.Warn("encoder stop timed out", zap.Duration("timeout", s.stopTimeout))
		s.fail(r, fmt.Errorf("%w: %w", ErrEncoder, ErrStopTimeout))
	})
	s.mu.Unlock()

	enc.Stop()
}

// onStop runs the stopping -> finalizing transition when the encoder
// reports it has stopped. An encoder that stops on its own while
// recording is finalized the same way.
func (s *Session) onStop(r *run) {
	s.mu.Lock()
	if !s.currentLocked(r, StateStopping) && !s.currentLocked(r, StateRecording) {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateFinalizing)
	// Poller and timers stop before the tracks are released.
	s.clearTimersLocked(r)
	fallback := r.elapsed
	r.settle = s.clock.AfterFunc(s.settleDelay, func() { s.assemble(r, fallback) })
	s.mu.Unlock()

	s.releaseTracks(r)
}

// assemble reads the buffer after the settle delay and measures it.
func (s *Session) assemble(r *run, fallback int) {
	s.mu.Lock()
	if !s.currentLocked(r, StateFinalizing) {
		s.mu.Unlock()
		return
	}
	r.sealed = true
	data := bytes.Join(r.chunks, nil)
	r.chunks = nil
	choice := r.choice
	s.mu.Unlock()

	mimeType := choice.BaseMIME()
	s.logger.Info("recording assembled",
		zap.Int("bytes", len(data)), zap.Int("elapsed", fallback), zap.String("mime", mimeType))

	s.prober.Probe(data, mimeType, fallback, func(seconds int, src duration.Source) {
		a := &Audio{
			data:            data,
			mimeType:        mimeType,
			extension:       choice.Extension,
			durationSeconds: duration.Fallback(seconds),
		}
		s.mu.Lock()
		if s.currentLocked(r, StateFinalizing) {
			s.setStateLocked(StateReady)
		}
		s.mu.Unlock()
		s.logger.Info("recording ready",
			zap.Int("seconds", a.durationSeconds), zap.Stringer("source", src))
		r.completion.resolve(a, nil)
	})
}

// fail moves r to the error state from any pre-finalize state, clears
// every timer, releases the device and resolves the completion with nil.
func (s *Session) fail(r *run, err error) {
	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateFinalizing, StateReady, StateError:
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateError)
	s.clearTimersLocked(r)
	r.chunks = nil
	r.sealed = true
	enc := r.encoder
	s.mu.Unlock()

	s.logger.Warn("recording failed", zap.Error(err))
	if a, ok := enc.(Aborter); ok {
		a.Abort()
	} else if enc != nil && enc.State() != EncoderInactive {
		enc.Stop()
	}
	s.releaseTracks(r)
	r.completion.resolve(nil, err)
	if s.notifier != nil && !errors.Is(err, ErrAborted) {
		s.notifier.Notify(Message(err))
	}
}

func (s *Session) onData(r *run, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != r || r.sealed {
		return
	}
	switch s.state {
	case StateArmed, StateRecording, StateStopping, StateFinalizing:
		r.chunks = append(r.chunks, bytes.Clone(chunk))
	}
}

func (s *Session) tick(r *run) {
	s.mu.Lock()
	if !s.currentLocked(r, StateRecording) {
		s.mu.Unlock()
		return
	}
	r.elapsed++
	elapsed := r.elapsed
	cb := s.onElapsed
	s.mu.Unlock()
	if cb != nil {
		cb(elapsed)
	}
}

func (s *Session) isRecording(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(r, StateRecording)
}

func (s *Session) releaseTracks(r *run) {
	r.releaseOnce.Do(func() {
		s.mu.Lock()
		stream := r.stream
		s.mu.Unlock()
		if stream == nil {
			return
		}
		for _, t := range stream.Tracks() {
			t.Stop()
		}
		s.logger.Debug("device released")
	})
}

// clearTimersLocked stops the elapsed ticker, the poller, the deadline and
// the stop timeout.
func (s *Session) clearTimersLocked(r *run) {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	if r.poller != nil {
		r.poller.stop()
	}
	if r.deadline != nil {
		r.deadline.Stop()
		r.deadline = nil
	}
	if r.stopping != nil {
		r.stopping.Stop()
		r.stopping = nil
	}
}

func (s *Session) currentLocked(r *run, state State) bool {
	return s.run == r && s.state == state
}

func (s *Session) setStateLocked(next State) {
	s.logger.Debug("state transition",
		zap.Uint64("run", s.run.id), zap.Stringer("from", s.state), zap.Stringer("to", next))
	s.state = next
}

// classifyDeviceError maps device access failures onto the taxonomy.
func classifyDeviceError(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}
