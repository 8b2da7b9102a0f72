// Package future provides a single-assignment value with blocking waiters and one-shot subscribers.
package future

import (
	"context"
	"sync"
	"time"
)

// DefaultPoll is the interval Wait uses to report a stalled wait.
const DefaultPoll = time.Second

type (
	// Future is resolved at most once. Waiters block until then, subscribers are called exactly once
	// with the value, no matter whether they subscribed before or after the resolution.
	Future[T any] struct {
		mu    sync.Mutex
		done  chan struct{}
		value T
		set   bool
		subs  []*subscriber[T]
		poll  time.Duration
		stall func(waited time.Duration)
	}
	subscriber[T any] struct {
		fn func(T)
	}
	// Option configures a Future.
	Option[T any] func(*Future[T])
)

// WithPoll sets the interval Wait uses to wake up and report a stall.
func WithPoll[T any](d time.Duration) Option[T] {
	return func(f *Future[T]) {
		if d > 0 {
			f.poll = d
		}
	}
}

// WithStall registers a callback invoked from Wait each time a poll interval passes unresolved.
func WithStall[T any](fn func(waited time.Duration)) Option[T] {
	return func(f *Future[T]) {
		f.stall = fn
	}
}

// New creates an unresolved Future.
func New[T any](opts ...Option[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), poll: DefaultPoll}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolve stores v, releases all waiters and fires queued subscribers. Only the first call has effect;
// it reports whether this call resolved the future.
func (f *Future[T]) Resolve(v T) bool {
	f.mu.Lock()
	if f.set {
		f.mu.Unlock()
		return false
	}
	f.value = v
	f.set = true
	subs := f.subs
	f.subs = nil
	close(f.done)
	f.mu.Unlock()
	for _, s := range subs {
		s.fn(v)
	}
	return true
}

// Subscribe registers fn to be called once with the resolved value. If the future is already
// resolved fn runs synchronously before Subscribe returns. The returned cancel removes a still
// queued subscription and is a no-op otherwise.
func (f *Future[T]) Subscribe(fn func(T)) (cancel func()) {
	f.mu.Lock()
	if f.set {
		v := f.value
		f.mu.Unlock()
		fn(v)
		return func() {}
	}
	s := &subscriber[T]{fn: fn}
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, x := range f.subs {
			if x == s {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// Value returns the resolved value, if any.
func (f *Future[T]) Value() (v T, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.set
}

// Resolved reports whether Resolve has been called.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Pending counts queued subscribers.
func (f *Future[T]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Wait blocks until the future resolves. It wakes up every poll interval so a long wait is visible
// through the stall callback instead of hanging silently.
func (f *Future[T]) Wait() T {
	v, _ := f.WaitContext(context.Background())
	return v
}

// WaitContext is Wait bounded by ctx.
func (f *Future[T]) WaitContext(ctx context.Context) (v T, err error) {
	select {
	case <-f.done:
		v, _ = f.Value()
		return
	default:
	}
	t := time.NewTicker(f.poll)
	defer t.Stop()
	start := time.Now()
	for {
		select {
		case <-f.done:
			v, _ = f.Value()
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		case <-t.C:
			if f.stall != nil {
				f.stall(time.Since(start))
			}
		}
	}
}
