// pkg/stream/producer.go
package stream

import (
	"context"
	"time"

	"github.com/YaganovValera/optionstream/pkg/executor"
)

// The helpers below run on the process-wide executor. Each output channel is
// closed when its input closes, fails, or ctx is done, so a Bridge reading it
// always terminates.

// Chunk groups items from src into slices of size items.
//
// When src closes, a partial chunk is flushed before the output closes. When
// src fails, the partial chunk is flushed first and the error follows as the
// last element.
func Chunk[T any](ctx context.Context, src <-chan Result[T], size int) <-chan Result[[]T] {
	if size < 1 {
		size = 1
	}
	out := make(chan Result[[]T], 1)
	executor.Default().Spawn("stream.chunk", func() {
		defer close(out)
		buf := make([]T, 0, size)
		flush := func() bool {
			if len(buf) == 0 {
				return true
			}
			BatchSize.WithLabelValues("chunk").Observe(float64(len(buf)))
			ok := send(ctx, out, Ok(buf))
			buf = make([]T, 0, size)
			return ok
		}
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-src:
				switch {
				case !ok:
					flush()
					return
				case r.Err != nil:
					if flush() {
						send(ctx, out, Fail[[]T](r.Err))
					}
					return
				}
				buf = append(buf, r.Value)
				if len(buf) == size && !flush() {
					return
				}
			}
		}
	})
	return out
}

// Window collects the items received during each interval d and emits them as
// one slice. Intervals without items emit nothing. Close and failure flush
// the same way as Chunk.
func Window[T any](ctx context.Context, src <-chan Result[T], d time.Duration) <-chan Result[[]T] {
	if d <= 0 {
		d = time.Second
	}
	out := make(chan Result[[]T], 1)
	executor.Default().Spawn("stream.window", func() {
		defer close(out)
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		var buf []T
		flush := func() bool {
			if len(buf) == 0 {
				return true
			}
			BatchSize.WithLabelValues("window").Observe(float64(len(buf)))
			ok := send(ctx, out, Ok(buf))
			buf = nil
			return ok
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !flush() {
					return
				}
			case r, ok := <-src:
				switch {
				case !ok:
					flush()
					return
				case r.Err != nil:
					if flush() {
						send(ctx, out, Fail[[]T](r.Err))
					}
					return
				}
				buf = append(buf, r.Value)
			}
		}
	})
	return out
}

// Filter forwards the items accepted by keep, and any error.
func Filter[T any](ctx context.Context, src <-chan Result[T], keep func(T) bool) <-chan Result[T] {
	out := make(chan Result[T], cap(src))
	executor.Default().Spawn("stream.filter", func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-src:
				if !ok {
					return
				}
				if r.Err == nil && !keep(r.Value) {
					continue
				}
				if !send(ctx, out, r) || r.Err != nil {
					return
				}
			}
		}
	})
	return out
}

// Map converts items with fn. Returning skip == true drops the item; a
// non-nil error terminates the output with that error.
func Map[T, U any](ctx context.Context, src <-chan Result[T], fn func(T) (u U, skip bool, err error)) <-chan Result[U] {
	out := make(chan Result[U], cap(src))
	executor.Default().Spawn("stream.map", func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-src:
				if !ok {
					return
				}
				if r.Err != nil {
					send(ctx, out, Fail[U](r.Err))
					return
				}
				u, skip, err := fn(r.Value)
				if err != nil {
					send(ctx, out, Fail[U](err))
					return
				}
				if skip {
					continue
				}
				if !send(ctx, out, Ok(u)) {
					return
				}
			}
		}
	})
	return out
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
