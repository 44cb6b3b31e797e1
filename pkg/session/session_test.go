package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/optionstream/pkg/backoff"
	"github.com/YaganovValera/optionstream/pkg/stream"
	"github.com/YaganovValera/optionstream/pkg/validator"
	"github.com/YaganovValera/optionstream/pkg/wsclient"
)

// fakeClient answers every Send with the frames returned by respond.
type fakeClient struct {
	mu      sync.Mutex
	subs    map[int]chan stream.Result[wsclient.RawMessage]
	next    int
	sent    []string
	respond func(msg string) []string
	sendErr error
}

func newFake(respond func(string) []string) *fakeClient {
	return &fakeClient{subs: map[int]chan stream.Result[wsclient.RawMessage]{}, respond: respond}
}

func (f *fakeClient) Subscribe(ctx context.Context, buffer int) <-chan stream.Result[wsclient.RawMessage] {
	ch := make(chan stream.Result[wsclient.RawMessage], buffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}()
	return ch
}

func (f *fakeClient) Send(ctx context.Context, msg string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.respond != nil {
		f.push(f.respond(msg)...)
	}
	return nil
}

func (f *fakeClient) push(frames ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fr := range frames {
		for _, ch := range f.subs {
			select {
			case ch <- stream.Ok(wsclient.RawMessage{Data: []byte(fr)}):
			default:
			}
		}
	}
}

func (f *fakeClient) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		ch <- stream.Fail[wsclient.RawMessage](err)
		close(ch)
		delete(f.subs, id)
	}
}

func (f *fakeClient) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func candle(asset string, price float64, ts int) string {
	return fmt.Sprintf(`{"asset":%q,"price":%v,"time":%d}`, asset, price, ts)
}

func nextOf[T any](t *testing.T, b *stream.Bridge[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return b.Next(ctx)
}

func TestSubscribeSymbol(t *testing.T) {
	fc := newFake(nil)
	s := New(fc, Config{}, nil)

	b, err := s.SubscribeSymbol(context.Background(), "EURUSD_otc")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"action":"subscribe","asset":"EURUSD_otc"}`}, fc.sent)

	fc.push(
		candle("GBPUSD_otc", 1.27, 100),
		"not json",
		candle("EURUSD_otc", 1.0851, 101),
		`{"asset":"EURUSD_otc"}`,
		candle("EURUSD_otc", 1.0852, 102),
	)

	c, err := nextOf(t, b)
	require.NoError(t, err)
	assert.Equal(t, Candle{Asset: "EURUSD_otc", Price: 1.0851, Time: time.Unix(101, 0).UTC()}, c)
	c, err = nextOf(t, b)
	require.NoError(t, err)
	assert.Equal(t, 1.0852, c.Price)

	boom := errors.New("connection reset")
	fc.fail(boom)
	_, err = nextOf(t, b)
	var terr *stream.TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, boom)

	_, err = nextOf(t, b)
	assert.ErrorIs(t, err, stream.ErrEndOfStream)
}

func TestSubscribeSymbol_CloseUnsubscribes(t *testing.T) {
	fc := newFake(nil)
	s := New(fc, Config{}, nil)
	b, err := s.SubscribeSymbol(context.Background(), "AUDCAD")
	require.NoError(t, err)
	require.Equal(t, 1, fc.subscribers())

	require.NoError(t, b.Close())
	assert.Eventually(t, func() bool { return fc.subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubscribeSymbol_Errors(t *testing.T) {
	s := New(newFake(nil), Config{}, nil)
	_, err := s.SubscribeSymbol(context.Background(), "")
	assert.Error(t, err)

	fc := newFake(nil)
	fc.sendErr = wsclient.ErrClosed
	_, err = New(fc, Config{}, nil).SubscribeSymbol(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, wsclient.ErrClosed)
}

func TestSubscribeSymbolChunked(t *testing.T) {
	fc := newFake(nil)
	s := New(fc, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	b, err := s.SubscribeSymbolChunked(ctx, "EURUSD", 2)
	require.NoError(t, err)

	fc.push(candle("EURUSD", 1, 1), candle("EURUSD", 2, 2), candle("EURUSD", 3, 3))
	batch, err := nextOf(t, b)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 2.0, batch[1].Price)

	cancel()
	_, err = nextOf(t, b)
	assert.ErrorIs(t, err, stream.ErrEndOfStream)
}

func TestSubscribeSymbolTimed(t *testing.T) {
	fc := newFake(nil)
	s := New(fc, Config{}, nil)
	b, err := s.SubscribeSymbolTimed(context.Background(), "EURUSD", 30*time.Millisecond)
	require.NoError(t, err)
	defer b.Close()

	fc.push(candle("EURUSD", 1, 1), candle("EURUSD", 2, 2))
	batch, err := nextOf(t, b)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestSendRawMessage(t *testing.T) {
	fc := newFake(nil)
	s := New(fc, Config{}, nil)
	require.NoError(t, s.SendRawMessage(context.Background(), `42["ps"]`))
	assert.Equal(t, []string{`42["ps"]`}, fc.sent)
}

func TestCreateRawOrder(t *testing.T) {
	fc := newFake(func(msg string) []string {
		return []string{"ACK: " + msg, "ORDER: BUY GBPUSD 100 60", "ORDER: BUY EURUSD 100 60"}
	})
	s := New(fc, Config{}, nil)
	v := validator.All(validator.StartsWith("ORDER:"), validator.Contains("EURUSD"))

	resp, err := s.CreateRawOrder(context.Background(), "buy", v)
	require.NoError(t, err)
	assert.Equal(t, "ORDER: BUY EURUSD 100 60", resp)
	assert.Eventually(t, func() bool { return fc.subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCreateRawOrderWithTimeout(t *testing.T) {
	fc := newFake(func(string) []string { return []string{"noise"} })
	s := New(fc, Config{}, nil)

	start := time.Now()
	_, err := s.CreateRawOrderWithTimeout(context.Background(), "buy", validator.Contains("successopenOrder"), 40*time.Millisecond)
	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestCreateRawOrderWithRetry(t *testing.T) {
	attempts := 0
	var mu sync.Mutex
	fc := newFake(func(string) []string {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil
		}
		return []string{"successopenOrder"}
	})
	s := New(fc, Config{Retry: backoff.Config{
		InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxRetries: 5,
	}}, nil)

	resp, err := s.CreateRawOrderWithRetry(context.Background(), "buy", validator.Contains("success"), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "successopenOrder", resp)
	assert.Len(t, fc.sent, 3)

	s = New(newFake(nil), Config{Retry: backoff.Config{
		InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxRetries: 1,
	}}, nil)
	_, err = s.CreateRawOrderWithRetry(context.Background(), "buy", validator.Contains("x"), 10*time.Millisecond)
	var mr *backoff.ErrMaxRetries
	require.ErrorAs(t, err, &mr)
	assert.Equal(t, 2, mr.Attempts)
	assert.ErrorIs(t, err, ErrResponseTimeout)

	_, err = s.CreateRawOrderWithRetry(context.Background(), "buy", validator.Contains("x"), 0)
	assert.Error(t, err)
}

func TestCreateRawIterator(t *testing.T) {
	fc := newFake(func(string) []string {
		return []string{"history: 1", "balance: 10", "history: 2"}
	})
	s := New(fc, Config{}, nil)

	b, err := s.CreateRawIterator(context.Background(), "load", validator.StartsWith("history"), 150*time.Millisecond)
	require.NoError(t, err)

	var got []string
	for msg, err := range b.Items(context.Background()) {
		require.NoError(t, err)
		got = append(got, msg)
	}
	assert.Equal(t, []string{"history: 1", "history: 2"}, got)
	assert.True(t, b.Terminated())
}
