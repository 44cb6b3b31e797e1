package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGroup_ErrorCancelsContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g := New(context.Background(), zap.New(core))

	g.Go(func(ctx context.Context) error { return errors.New("boom") })
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Wait()

	assert.ErrorIs(t, g.Context().Err(), context.Canceled)
	assert.Equal(t, 1, logs.FilterMessage("goroutine error").Len())
}

func TestGroup_PanicIsRecovered(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g := New(context.Background(), zap.New(core))

	g.Go(func(ctx context.Context) error { panic("bad") })
	g.Wait()

	assert.Error(t, g.Context().Err())
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestGroup_SpawnPanicKeepsGroupAlive(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	g := New(context.Background(), zap.New(core))

	var ran atomic.Bool
	g.Spawn("broken", func() { panic("producer bug") })
	g.Spawn("fine", func() { ran.Store(true) })
	g.Wait()

	assert.NoError(t, g.Context().Err())
	assert.True(t, ran.Load())
	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["task"])
}

func TestDefault_IsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	require.Same(t, a, b)

	done := make(chan struct{})
	a.Spawn("noop", func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("default executor did not run task")
	}
	assert.NoError(t, a.Context().Err())
}
