// pkg/session/session.go

// Package session exposes the stream-opening and raw-order operations on top
// of a websocket client. Every stream is returned as a *stream.Bridge.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/optionstream/pkg/backoff"
	"github.com/YaganovValera/optionstream/pkg/logger"
	"github.com/YaganovValera/optionstream/pkg/stream"
	"github.com/YaganovValera/optionstream/pkg/telemetry"
	"github.com/YaganovValera/optionstream/pkg/validator"
	"github.com/YaganovValera/optionstream/pkg/wsclient"
)

// ErrResponseTimeout is returned when no accepted response arrived in time.
var ErrResponseTimeout = errors.New("session: response timeout")

// Client is the transport a Session drives. *wsclient.Connector implements it.
type Client interface {
	Subscribe(ctx context.Context, buffer int) <-chan stream.Result[wsclient.RawMessage]
	Send(ctx context.Context, msg string) error
}

// Config tunes a Session.
type Config struct {
	BufferSize int            `mapstructure:"buffer_size"`
	Retry      backoff.Config `mapstructure:"retry"`
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Retry.MaxRetries == 0 && c.Retry.MaxElapsedTime == 0 {
		c.Retry.MaxRetries = 3
	}
}

// Candle is one price update for an asset.
type Candle struct {
	Asset string    `json:"asset"`
	Price float64   `json:"price"`
	Time  time.Time `json:"time"`
}

type candleFrame struct {
	Asset string   `json:"asset"`
	Price *float64 `json:"price"`
	Time  float64  `json:"time"`
}

type subscribeFrame struct {
	Action string `json:"action"`
	Asset  string `json:"asset"`
}

// Session is safe for concurrent use; each call opens its own subscription.
type Session struct {
	client Client
	cfg    Config
	log    *logger.Logger
	tracer trace.Tracer
}

// New wraps client.
func New(client Client, cfg Config, log *logger.Logger) *Session {
	cfg.applyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		client: client,
		cfg:    cfg,
		log:    log.Named("session"),
		tracer: telemetry.Tracer("session"),
	}
}

// -----------------------------------------------------------------------------
// Symbol streams
// -----------------------------------------------------------------------------

// SubscribeSymbol streams price updates for symbol until ctx is done or the
// bridge is closed.
func (s *Session) SubscribeSymbol(ctx context.Context, symbol string) (*stream.Bridge[Candle], error) {
	ctx, cancel := context.WithCancel(ctx)
	candles, err := s.candles(ctx, symbol)
	if err != nil {
		cancel()
		return nil, err
	}
	return stream.FromChannel(candles, stream.WithName("symbol"), stream.WithOnClose(cancel)), nil
}

// SubscribeSymbolChunked streams updates for symbol in groups of size.
func (s *Session) SubscribeSymbolChunked(ctx context.Context, symbol string, size int) (*stream.Bridge[[]Candle], error) {
	ctx, cancel := context.WithCancel(ctx)
	candles, err := s.candles(ctx, symbol)
	if err != nil {
		cancel()
		return nil, err
	}
	return stream.FromChannel(stream.Chunk(ctx, candles, size),
		stream.WithName("symbol_chunked"), stream.WithOnClose(cancel)), nil
}

// SubscribeSymbolTimed streams the updates for symbol received in each
// interval d.
func (s *Session) SubscribeSymbolTimed(ctx context.Context, symbol string, d time.Duration) (*stream.Bridge[[]Candle], error) {
	ctx, cancel := context.WithCancel(ctx)
	candles, err := s.candles(ctx, symbol)
	if err != nil {
		cancel()
		return nil, err
	}
	return stream.FromChannel(stream.Window(ctx, candles, d),
		stream.WithName("symbol_timed"), stream.WithOnClose(cancel)), nil
}

func (s *Session) candles(ctx context.Context, symbol string) (<-chan stream.Result[Candle], error) {
	if symbol == "" {
		return nil, fmt.Errorf("session: empty symbol")
	}
	ctx, span := s.tracer.Start(ctx, "session.SubscribeSymbol",
		trace.WithAttributes(attribute.String("asset", symbol)))
	defer span.End()

	frames := s.client.Subscribe(ctx, s.cfg.BufferSize)
	req, _ := json.Marshal(subscribeFrame{Action: "subscribe", Asset: symbol})
	if err := s.client.Send(ctx, string(req)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subscribe failed")
		return nil, fmt.Errorf("session: subscribe %s: %w", symbol, err)
	}
	s.log.Debug("subscribed", zap.String("asset", symbol))

	return stream.Map(ctx, frames, func(m wsclient.RawMessage) (Candle, bool, error) {
		c, ok := decodeCandle(m.Data)
		if !ok || c.Asset != symbol {
			return Candle{}, true, nil
		}
		return c, false, nil
	}), nil
}

func decodeCandle(data []byte) (Candle, bool) {
	var f candleFrame
	if err := json.Unmarshal(data, &f); err != nil || f.Asset == "" || f.Price == nil {
		return Candle{}, false
	}
	sec, frac := math.Modf(f.Time)
	return Candle{
		Asset: f.Asset,
		Price: *f.Price,
		Time:  time.Unix(int64(sec), int64(frac*1e9)).UTC(),
	}, true
}

// -----------------------------------------------------------------------------
// Raw messages
// -----------------------------------------------------------------------------

// SendRawMessage writes msg unchanged.
func (s *Session) SendRawMessage(ctx context.Context, msg string) error {
	ctx, span := s.tracer.Start(ctx, "session.SendRawMessage")
	defer span.End()
	if err := s.client.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return fmt.Errorf("session: send raw: %w", err)
	}
	return nil
}

// CreateRawOrder sends msg and returns the first incoming frame accepted by v.
func (s *Session) CreateRawOrder(ctx context.Context, msg string, v validator.Validator) (string, error) {
	return s.CreateRawOrderWithTimeout(ctx, msg, v, 0)
}

// CreateRawOrderWithTimeout is CreateRawOrder bounded by timeout; it fails
// with ErrResponseTimeout when nothing accepted arrives in time. A zero
// timeout waits indefinitely.
func (s *Session) CreateRawOrderWithTimeout(ctx context.Context, msg string, v validator.Validator, timeout time.Duration) (string, error) {
	id := uuid.NewString()
	ctx = logger.ContextWithRequestID(ctx, id)
	ctx, span := s.tracer.Start(ctx, "session.CreateRawOrder", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("validator", v.String()),
		attribute.Int64("timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	resp, err := s.await(ctx, msg, v, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no response")
		s.log.WithContext(ctx).Warn("raw order failed", zap.Error(err))
		return "", err
	}
	s.log.WithContext(ctx).Debug("raw order answered", zap.Int("bytes", len(resp)))
	return resp, nil
}

// CreateRawOrderWithRetry repeats the send-and-wait cycle of
// CreateRawOrderWithTimeout while it times out, following the session's
// retry back-off. Other failures end the retry immediately.
func (s *Session) CreateRawOrderWithRetry(ctx context.Context, msg string, v validator.Validator, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", fmt.Errorf("session: retry needs a positive timeout")
	}
	var resp string
	err := backoff.Execute(ctx, "raw-order", s.cfg.Retry, s.log, func(ctx context.Context) error {
		r, err := s.CreateRawOrderWithTimeout(ctx, msg, v, timeout)
		switch {
		case err == nil:
			resp = r
			return nil
		case errors.Is(err, ErrResponseTimeout):
			return err
		default:
			return backoff.Permanent(err)
		}
	})
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (s *Session) await(ctx context.Context, msg string, v validator.Validator, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := s.client.Subscribe(ctx, s.cfg.BufferSize)
	if err := s.client.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("session: send order: %w", err)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		select {
		case r, ok := <-frames:
			switch {
			case !ok:
				return "", stream.ErrEndOfStream
			case r.Err != nil:
				return "", &stream.TransportError{Err: r.Err}
			case v.CheckBytes(r.Value.Data):
				return r.Value.String(), nil
			}
		case <-expired:
			return "", ErrResponseTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// CreateRawIterator sends msg, then streams every incoming frame accepted by
// v. A positive timeout ends the stream once elapsed.
func (s *Session) CreateRawIterator(ctx context.Context, msg string, v validator.Validator, timeout time.Duration) (*stream.Bridge[string], error) {
	ctx, cancel := context.WithCancel(ctx)
	frames := s.client.Subscribe(ctx, s.cfg.BufferSize)
	if msg != "" {
		if err := s.SendRawMessage(ctx, msg); err != nil {
			cancel()
			return nil, err
		}
	}
	texts := stream.Map(ctx, frames, func(m wsclient.RawMessage) (string, bool, error) {
		if !v.CheckBytes(m.Data) {
			return "", true, nil
		}
		return m.String(), false, nil
	})
	return stream.FromChannel(texts,
		stream.WithName("raw"),
		stream.WithTimeout(timeout),
		stream.WithOnClose(cancel),
	), nil
}
