// Package async provides the two primitives nodekeeper's cooperative loop
// is built from: a Future that runs one operation on its own goroutine and
// can be polled without blocking, and a Waker that tells the driver some
// polled source may have become ready.
package async

import "context"

// Waker coalesces readiness notifications into a single pending signal.
// Wake never blocks; any number of wakes before the driver reads C()
// collapse into one.
type Waker struct {
	ch chan struct{}
}

// NewWaker returns a Waker with no pending signal.
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Wake records a pending signal.
func (w *Waker) Wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C returns the channel the driver selects on.
func (w *Waker) C() <-chan struct{} {
	return w.ch
}

// Future is the eventual result of an operation started by Spawn.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	val    T
	err    error
}

// Spawn starts fn on a new goroutine. The context passed to fn is derived
// from ctx and is cancelled by Abandon. When fn returns, w (if non-nil) is
// woken.
func Spawn[T any](ctx context.Context, w *Waker, fn func(context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer cancel()
		f.val, f.err = fn(ctx)
		close(f.done)
		if w != nil {
			w.Wake()
		}
	}()
	return f
}

// Poll returns the result if the operation has finished. ready is false
// while it is still running, in which case val and err are zero.
func (f *Future[T]) Poll() (val T, ready bool, err error) {
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		var zero T
		return zero, false, nil
	}
}

// Done is closed when the operation finishes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Abandon cancels the operation's context without waiting for it.
func (f *Future[T]) Abandon() {
	f.cancel()
}
