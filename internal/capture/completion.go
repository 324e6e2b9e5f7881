package capture

import (
	"context"
	"sync"
)

// Completion is a single-resolution future for one recording. It resolves
// exactly once, with the finished Audio or with a nil Audio and the error
// that ended the recording. Any number of goroutines may wait on it and
// all observe the same result.
type Completion struct {
	once  sync.Once
	done  chan struct{}
	audio *Audio
	err   error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolve settles the future. Later calls are ignored.
func (c *Completion) resolve(a *Audio, err error) {
	c.once.Do(func() {
		c.audio, c.err = a, err
		close(c.done)
	})
}

// Done is closed once the recording is finished or failed.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the future resolves or ctx ends. A failed recording
// yields (nil, cause); ctx expiry yields (nil, ctx.Err()) without
// resolving the future.
func (c *Completion) Wait(ctx context.Context) (*Audio, error) {
	select {
	case <-c.done:
		return c.audio, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
