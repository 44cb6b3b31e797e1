package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed[T any](items []T, tail error) <-chan Result[T] {
	ch := make(chan Result[T], len(items)+1)
	for _, it := range items {
		ch <- Ok(it)
	}
	if tail != nil {
		ch <- Fail[T](tail)
	}
	close(ch)
	return ch
}

func drain[T any](t *testing.T, b *Bridge[T]) ([]T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out []T
	for {
		v, err := b.Next(ctx)
		if errors.Is(err, ErrEndOfStream) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

func TestChunk(t *testing.T) {
	t.Run("flushes partial chunk on close", func(t *testing.T) {
		ctx := context.Background()
		b := FromChannel(Chunk(ctx, feed([]int{1, 2, 3, 4, 5}, nil), 2))
		got, err := drain(t, b)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, got)
	})

	t.Run("flushes partial chunk before error", func(t *testing.T) {
		ctx := context.Background()
		b := FromChannel(Chunk(ctx, feed([]int{1, 2, 3}, errors.New("closed")), 2))
		got, err := drain(t, b)
		assert.Equal(t, [][]int{{1, 2}, {3}}, got)
		var terr *TransportError
		assert.ErrorAs(t, err, &terr)
	})

	t.Run("size below one behaves as one", func(t *testing.T) {
		b := FromChannel(Chunk(context.Background(), feed([]string{"a", "b"}, nil), 0))
		got, err := drain(t, b)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"a"}, {"b"}}, got)
	})

	t.Run("cancel closes output", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		src := make(chan Result[int])
		b := FromChannel(Chunk(ctx, src, 3))
		cancel()
		got, err := drain(t, b)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestWindow(t *testing.T) {
	t.Run("groups items by interval", func(t *testing.T) {
		ctx := context.Background()
		src := make(chan Result[int])
		b := FromChannel(Window(ctx, src, 40*time.Millisecond))

		go func() {
			defer close(src)
			src <- Ok(1)
			src <- Ok(2)
			time.Sleep(100 * time.Millisecond)
			src <- Ok(3)
		}()

		got, err := drain(t, b)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{1, 2}, {3}}, got)
	})

	t.Run("error after flush", func(t *testing.T) {
		b := FromChannel(Window(context.Background(), feed([]int{9}, errors.New("eof")), time.Hour))
		got, err := drain(t, b)
		assert.Equal(t, [][]int{{9}}, got)
		assert.ErrorContains(t, err, "eof")
	})
}

func TestFilter(t *testing.T) {
	src := feed([]string{"ORDER: a", "PING", "ORDER: b"}, errors.New("gone"))
	b := FromChannel(Filter(context.Background(), src, func(s string) bool {
		return strings.HasPrefix(s, "ORDER:")
	}))
	got, err := drain(t, b)
	assert.Equal(t, []string{"ORDER: a", "ORDER: b"}, got)
	assert.ErrorContains(t, err, "gone")
}

func TestMap(t *testing.T) {
	src := feed([]string{"1", "x", "3", "bad"}, nil)
	b := FromChannel(Map(context.Background(), src, func(s string) (int, bool, error) {
		switch s {
		case "x":
			return 0, true, nil
		case "bad":
			return 0, false, errors.New("cannot parse")
		}
		return int(s[0] - '0'), false, nil
	}))
	got, err := drain(t, b)
	assert.Equal(t, []int{1, 3}, got)
	assert.ErrorContains(t, err, "cannot parse")
}
