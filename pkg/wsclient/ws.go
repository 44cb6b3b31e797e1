// pkg/wsclient/ws.go

// Package wsclient keeps a websocket connection to the trading endpoint alive
// and fans received frames out to any number of subscribers.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/optionstream/pkg/backoff"
	"github.com/YaganovValera/optionstream/pkg/logger"
	"github.com/YaganovValera/optionstream/pkg/stream"
)

// ErrClosed is returned by Send once the connector has stopped.
var ErrClosed = errors.New("wsclient: connector closed")

// RawMessage is one frame received from the server.
type RawMessage struct {
	Data     []byte
	Binary   bool
	Received time.Time
}

// String returns the payload as text.
func (m RawMessage) String() string { return string(m.Data) }

// Connector manages one websocket connection with automatic reconnect.
type Connector struct {
	cfg    Config
	log    *logger.Logger
	dialer *websocket.Dialer
	hub    *hub

	mu        sync.Mutex
	conn      *websocket.Conn
	connected chan struct{}
	writeMu   sync.Mutex

	closeOnce sync.Once
	stop      chan struct{}
}

// NewConnector validates cfg and builds a Connector. Nothing is dialed until Run.
func NewConnector(cfg Config, log *logger.Logger) (*Connector, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Connector{
		cfg:       cfg,
		log:       log.Named("ws-client"),
		dialer:    websocket.DefaultDialer,
		hub:       newHub(),
		connected: make(chan struct{}),
		stop:      make(chan struct{}),
	}, nil
}

// Subscribe returns a channel receiving every frame read after the call.
// The channel closes when ctx is done or the connector stops; if the
// connector stopped because reconnecting failed, the last element carries
// that error. A subscriber that falls more than buffer frames behind misses
// frames; others are unaffected.
func (c *Connector) Subscribe(ctx context.Context, buffer int) <-chan stream.Result[RawMessage] {
	if buffer <= 0 {
		buffer = c.cfg.BufferSize
	}
	return c.hub.subscribe(ctx, buffer)
}

// Send writes msg as a text frame, waiting for a live connection if the
// connector is between reconnects.
func (c *Connector) Send(ctx context.Context, msg string) error {
	for {
		c.mu.Lock()
		conn, wait := c.conn, c.connected
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.TextMessage, []byte(msg))
			c.writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("wsclient: send: %w", err)
			}
			Sent.Inc()
			return nil
		}

		select {
		case <-wait:
		case <-c.stop:
			return ErrClosed
		case <-c.hub.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the connector. Subscribers see their channels close without
// an error.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = c.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

// Run dials, reads and reconnects until ctx is done or Close is called, in
// which case it returns nil. When the back-off limit for one reconnect
// cycle is exhausted, Run ends every subscription with the error and
// returns it.
func (c *Connector) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.hub.close(nil)
				return nil
			}
			err = fmt.Errorf("wsclient: connect %s: %w", c.cfg.URL, err)
			c.log.Error("giving up", zap.Error(err))
			c.hub.close(err)
			return err
		}

		c.serve(ctx, conn)

		if ctx.Err() != nil {
			c.hub.close(nil)
			return nil
		}
		c.log.Info("reconnecting")
	}
}

func (c *Connector) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	for k, v := range c.cfg.Headers {
		header.Set(k, v)
	}

	var conn *websocket.Conn
	err := backoff.Execute(ctx, "ws-connect", c.cfg.Backoff, c.log, func(ctx context.Context) error {
		var dialErr error
		conn, _, dialErr = c.dialer.DialContext(ctx, c.cfg.URL, header)
		if dialErr != nil {
			Connects.WithLabelValues("error").Inc()
			return dialErr
		}
		for _, frame := range c.cfg.Handshake {
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				_ = conn.Close()
				Connects.WithLabelValues("error").Inc()
				return fmt.Errorf("handshake: %w", err)
			}
		}
		Connects.WithLabelValues("ok").Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("connected", zap.String("url", c.cfg.URL))
	return conn, nil
}

// serve publishes frames from conn until it breaks or ctx is done.
func (c *Connector) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	close(c.connected)
	c.mu.Unlock()

	connCtx, cancelPing := context.WithCancel(ctx)
	defer func() {
		cancelPing()
		c.mu.Lock()
		c.conn = nil
		c.connected = make(chan struct{})
		c.mu.Unlock()
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(c.cfg.ReadTimeout / 3)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					c.log.Warn("ping failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		Messages.Inc()
		c.hub.publish(RawMessage{Data: data, Binary: kind == websocket.BinaryMessage, Received: time.Now()})
	}
}
