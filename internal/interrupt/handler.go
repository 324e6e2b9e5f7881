// Package interrupt turns Ctrl+C into recording control: the first
// interrupt stops the recording so it is finalized and kept, a second one
// discards it.
package interrupt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Behavior is the outcome decided by the user's interrupts.
type Behavior int

const (
	// Continue means keep the recording (zero or one interrupt).
	Continue Behavior = iota
	// Abort means discard the recording.
	Abort
)

// String returns the string representation of the Behavior.
func (b Behavior) String() string {
	switch b {
	case Continue:
		return "Continue"
	case Abort:
		return "Abort"
	default:
		return fmt.Sprintf("Behavior(%d)", b)
	}
}

// ExitInterrupt is the exit code for interrupt (130 = 128 + SIGINT).
const ExitInterrupt = 130

// User-facing messages.
const (
	stopMessage  = "\nStopping... press Ctrl+C again to discard."
	abortMessage = "\nDiscarded."
)

// Handler watches for SIGINT/SIGTERM during a recording.
type Handler struct {
	mu         sync.Mutex
	count      int
	stopped    bool
	cancelFunc context.CancelFunc
	done       chan struct{} // Signals listen goroutine to exit

	onStop  func()
	onAbort func()
	stderr  io.Writer
}

// Options holds the handler's callbacks and injectable dependencies.
type Options struct {
	SigCh <-chan os.Signal
	// OnStop runs on the first interrupt.
	OnStop func()
	// OnAbort runs on the second interrupt.
	OnAbort func()
	// Stderr is the writer for user-facing messages.
	Stderr io.Writer
}

// NewHandler creates a handler that listens for SIGINT/SIGTERM. The
// returned context is canceled on abort.
func NewHandler(parent context.Context, onStop, onAbort func()) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return newHandler(parent, Options{SigCh: sigCh, OnStop: onStop, OnAbort: onAbort})
}

// Listen creates a handler for opts' callbacks and messages. When
// opts.SigCh is nil it listens for SIGINT/SIGTERM.
func Listen(parent context.Context, opts Options) (*Handler, context.Context) {
	if opts.SigCh == nil {
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		opts.SigCh = sigCh
	}
	return newHandler(parent, opts)
}

// NewHandlerWithOptions creates a handler with injectable dependencies.
// Used by tests to inject mock signal channels.
func NewHandlerWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	return newHandler(parent, opts)
}

func newHandler(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		cancelFunc: cancel,
		done:       make(chan struct{}),
		onStop:     opts.OnStop,
		onAbort:    opts.OnAbort,
		stderr:     opts.Stderr,
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}

	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}

	return h, ctx
}

// listen handles incoming signals.
func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}

			h.mu.Lock()
			if h.stopped {
				h.mu.Unlock()
				return
			}
			h.count++
			count := h.count
			h.mu.Unlock()

			switch count {
			case 1:
				fmt.Fprintln(h.stderr, stopMessage)
				if h.onStop != nil {
					h.onStop()
				}
			case 2:
				fmt.Fprintln(h.stderr, abortMessage)
				if h.onAbort != nil {
					h.onAbort()
				}
				h.cancelFunc()
				return
			}
		}
	}
}

// WasInterrupted returns true if at least one interrupt was received.
func (h *Handler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count > 0
}

// Outcome returns Abort once a second interrupt has been received.
func (h *Handler) Outcome() Behavior {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count >= 2 {
		return Abort
	}
	return Continue
}

// Stop cleans up the handler. Should be called when done.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	close(h.done)
	h.cancelFunc()
}
