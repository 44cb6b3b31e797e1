// pkg/stream/bridge.go

// Package stream turns producer-driven channels into pull-one-at-a-time
// handles.
//
// A producer goroutine pushes Result values into a channel; a Bridge hands
// them out one Next call at a time, serializing concurrent callers and
// fusing permanently after the first end or error.
package stream

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// -----------------------------------------------------------------------------
// Items and sources
// -----------------------------------------------------------------------------

// Result is one step of a producer: either a value or a terminal error.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a terminal producer error.
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// Source is the producer side of a Bridge.
//
// Recv blocks until the next item (ok == true), the end of the sequence
// (ok == false, err == nil) or a failure (err != nil). When ctx is done
// before anything arrives Recv must return ctx.Err() without consuming an item.
type Source[T any] interface {
	Recv(ctx context.Context) (item T, ok bool, err error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context) (T, bool, error)

// Recv calls f.
func (f SourceFunc[T]) Recv(ctx context.Context) (T, bool, error) { return f(ctx) }

type chanSource[T any] struct {
	ch <-chan Result[T]
}

// ChannelSource reads from ch until it is closed. A Result with a non-nil Err
// is reported as a failure.
func ChannelSource[T any](ch <-chan Result[T]) Source[T] {
	return chanSource[T]{ch: ch}
}

func (s chanSource[T]) Recv(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case r, ok := <-s.ch:
		switch {
		case !ok:
			return zero, false, nil
		case r.Err != nil:
			return zero, false, r.Err
		default:
			return r.Value, true, nil
		}
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// -----------------------------------------------------------------------------
// Bridge
// -----------------------------------------------------------------------------

const (
	stateActive uint32 = iota
	stateEnded
	stateErrored
)

// Option configures a Bridge.
type Option func(*options)

type options struct {
	name     string
	deadline time.Time
	onClose  func()
}

// WithName sets the label used for metrics. Defaults to "stream".
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTimeout ends the bridge once d has elapsed since construction.
// Zero or negative d means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.deadline = time.Now().Add(d)
		}
	}
}

// WithDeadline ends the bridge at t. A zero t means no deadline.
func WithDeadline(t time.Time) Option {
	return func(o *options) { o.deadline = t }
}

// WithOnClose registers a function run once when the bridge terminates for
// any reason (end, error, deadline or Close). Typically it cancels the
// producer's context.
func WithOnClose(fn func()) Option {
	return func(o *options) { o.onClose = fn }
}

// Bridge is a single-consumer pull handle over a Source. It is safe to share
// between goroutines: concurrent Next calls queue in FIFO order and every
// underlying item is delivered to exactly one of them.
type Bridge[T any] struct {
	src      Source[T]
	sem      *semaphore.Weighted
	state    atomic.Uint32
	name     string
	deadline time.Time

	closeOnce sync.Once
	onClose   func()
}

// New wraps src.
func New[T any](src Source[T], opts ...Option) *Bridge[T] {
	o := options{name: "stream"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bridge[T]{
		src:      src,
		sem:      semaphore.NewWeighted(1),
		name:     o.name,
		deadline: o.deadline,
		onClose:  o.onClose,
	}
}

// FromChannel is New(ChannelSource(ch), opts...).
func FromChannel[T any](ch <-chan Result[T], opts ...Option) *Bridge[T] {
	return New(ChannelSource(ch), opts...)
}

// Next returns the next item.
//
// It returns ErrEndOfStream once the source is exhausted or the bridge
// deadline has passed, and a *TransportError the first time the source fails.
// After either, every call returns ErrEndOfStream without touching the source.
// If ctx is done first, Next returns ctx.Err() and the bridge stays usable.
func (b *Bridge[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if b.state.Load() != stateActive {
		observePull(b.name, resultEnd)
		return zero, ErrEndOfStream
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		observePull(b.name, resultCancelled)
		return zero, err
	}
	defer b.sem.Release(1)

	// Another caller may have fused the bridge while we were queued.
	if b.state.Load() != stateActive {
		observePull(b.name, resultEnd)
		return zero, ErrEndOfStream
	}

	pullCtx := ctx
	if !b.deadline.IsZero() {
		if !time.Now().Before(b.deadline) {
			b.terminate(stateEnded)
			observePull(b.name, resultTimeout)
			return zero, ErrEndOfStream
		}
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithDeadline(ctx, b.deadline)
		defer cancel()
	}

	item, ok, err := b.src.Recv(pullCtx)
	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		observePull(b.name, resultCancelled)
		return zero, err
	case err != nil && pullCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded):
		b.terminate(stateEnded)
		observePull(b.name, resultTimeout)
		return zero, ErrEndOfStream
	case err != nil:
		b.terminate(stateErrored)
		observePull(b.name, resultError)
		return zero, &TransportError{Err: err}
	case !ok:
		b.terminate(stateEnded)
		observePull(b.name, resultEnd)
		return zero, ErrEndOfStream
	}
	observePull(b.name, resultItem)
	return item, nil
}

// Items ranges over the bridge until it ends. A transport error or a ctx
// error is yielded once as the final element.
func (b *Bridge[T]) Items(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, err := b.Next(ctx)
			if errors.Is(err, ErrEndOfStream) {
				return
			}
			if err != nil {
				yield(item, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Close fuses the bridge. Pending and future Next calls that have not yet
// reached the source return ErrEndOfStream. Close is idempotent.
func (b *Bridge[T]) Close() error {
	b.terminate(stateEnded)
	return nil
}

// Terminated reports whether the bridge has ended or failed.
func (b *Bridge[T]) Terminated() bool {
	return b.state.Load() != stateActive
}

// Failed reports whether the bridge terminated with a transport error.
func (b *Bridge[T]) Failed() bool {
	return b.state.Load() == stateErrored
}

func (b *Bridge[T]) terminate(to uint32) {
	if b.state.CompareAndSwap(stateActive, to) {
		b.closeOnce.Do(func() {
			if b.onClose != nil {
				b.onClose()
			}
		})
	}
}
