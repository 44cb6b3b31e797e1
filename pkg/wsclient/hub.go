// pkg/wsclient/hub.go
package wsclient

import (
	"context"
	"sync"

	"github.com/YaganovValera/optionstream/pkg/executor"
	"github.com/YaganovValera/optionstream/pkg/stream"
)

type subscriber struct {
	ch     chan stream.Result[RawMessage]
	buffer int
}

// hub fans frames out to subscribers. Only the connector's read loop
// publishes, so the length check in publish cannot race another sender.
// Each channel keeps one spare slot for the terminal error.
type hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	done   chan struct{}
	err    error
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscriber), done: make(chan struct{})}
}

func (h *hub) subscribe(ctx context.Context, buffer int) <-chan stream.Result[RawMessage] {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan stream.Result[RawMessage], buffer+1)

	h.mu.Lock()
	if h.closed {
		if h.err != nil {
			ch <- stream.Fail[RawMessage](h.err)
		}
		close(ch)
		h.mu.Unlock()
		return ch
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = &subscriber{ch: ch, buffer: buffer}
	h.mu.Unlock()
	Subscribers.Inc()

	executor.Default().Spawn("wsclient.unsubscribe", func() {
		select {
		case <-ctx.Done():
			h.unsubscribe(id)
		case <-h.done:
		}
	})
	return ch
}

func (h *hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
		Subscribers.Dec()
	}
}

func (h *hub) publish(msg RawMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if len(s.ch) >= s.buffer {
			Dropped.Inc()
			continue
		}
		s.ch <- stream.Ok(msg)
	}
}

// close ends every subscription. A non-nil err is delivered to each
// subscriber, and to later ones, before their channel closes.
func (h *hub) close(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.err = err
	for id, s := range h.subs {
		if err != nil {
			s.ch <- stream.Fail[RawMessage](err)
		}
		close(s.ch)
		delete(h.subs, id)
		Subscribers.Dec()
	}
	close(h.done)
}
