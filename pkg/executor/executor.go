// pkg/executor/executor.go

// Package executor owns the goroutines that feed streams: panic-safe groups
// and the lazily created process-wide instance shared by every producer.
package executor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Group is an errgroup-like set of goroutines that survives panics.
// The first error or panic cancels the group context.
type Group struct {
	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
	log    func() *zap.Logger
}

// New creates a group bound to ctx. A nil log falls back to the process-wide
// zap logger at the time of each message, so groups created before logging
// is installed still report to the installed sinks.
func New(ctx context.Context, log *zap.Logger) *Group {
	ctx, cancel := context.WithCancel(ctx)
	g := &Group{ctx: ctx, cancel: cancel}
	if log != nil {
		named := log.Named("executor")
		g.log = func() *zap.Logger { return named }
	} else {
		g.log = func() *zap.Logger { return zap.L().Named("executor") }
	}
	return g
}

// Go runs fn in a protected goroutine. An error or panic cancels the group.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.recoverPanic("", true)
		if err := fn(g.ctx); err != nil {
			g.log().Error("goroutine error", zap.Error(err))
			g.cancel()
		}
	}()
}

// Spawn runs a detached task in a protected goroutine. Panics are logged but,
// unlike Go, never cancel the group: a broken producer only ends its own stream.
func (g *Group) Spawn(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.recoverPanic(name, false)
		fn()
	}()
}

// Wait blocks until every goroutine started by Go or Spawn has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Context returns the group context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Stop cancels the group context.
func (g *Group) Stop() {
	g.cancel()
}

func (g *Group) recoverPanic(task string, cancel bool) {
	if r := recover(); r != nil {
		g.log().Error("panic recovered", zap.String("task", task), zap.Any("error", r))
		if cancel {
			g.cancel()
		}
	}
}

// -----------------------------------------------------------------------------
// Process-wide instance
// -----------------------------------------------------------------------------

var (
	defaultOnce  sync.Once
	defaultGroup *Group
)

// Default returns the process-wide group. It is created on first use and is
// never stopped.
func Default() *Group {
	defaultOnce.Do(func() {
		defaultGroup = New(context.Background(), nil)
	})
	return defaultGroup
}
