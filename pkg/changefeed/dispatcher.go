package changefeed

import (
	"context"
	"sync"
	"time"
)

// Dispatcher decides where a notification runs. Inline runs it in the
// caller's goroutine; detached hands it to a new goroutine so the mutation
// returns without waiting. Either way the work gets a context that outlives
// the request (context.WithoutCancel), bounded by timeout when set.
//
// A nil *Dispatcher runs inline without a timeout. Once Wait has been
// called a detached dispatcher runs new work inline.
type Dispatcher struct {
	detached bool
	timeout  time.Duration

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewDispatcher(detached bool, timeout time.Duration) *Dispatcher {
	return &Dispatcher{detached: detached, timeout: timeout}
}

func (d *Dispatcher) Run(ctx context.Context, fn func(ctx context.Context)) {
	if d == nil {
		fn(context.WithoutCancel(ctx))
		return
	}
	if !d.detached {
		d.run(ctx, fn)
		return
	}
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.run(ctx, fn)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		d.run(ctx, fn)
	}()
}

func (d *Dispatcher) run(parent context.Context, fn func(ctx context.Context)) {
	ctx := context.WithoutCancel(parent)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	fn(ctx)
}

// Wait blocks until detached work has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
