// pkg/logger/capture.go
package logger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/YaganovValera/optionstream/pkg/stream"
)

// captureBuffer bounds the records queued for one capture sink. When a
// consumer falls behind, new records are dropped and counted.
const captureBuffer = 1024

// Record is one log entry as delivered to a capture sink.
type Record struct {
	Time    time.Time      `json:"time"`
	Level   zapcore.Level  `json:"level"`
	Logger  string         `json:"logger,omitempty"`
	Message string         `json:"message"`
	Caller  string         `json:"caller,omitempty"`
	Stack   string         `json:"stack,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// captureSink is the shared state behind one AddCaptureSink call. The
// channel is never closed; stopping is signalled through done so concurrent
// writers never race a close.
type captureSink struct {
	ch       chan Record
	deadline time.Time
	done     chan struct{}
	stopOnce sync.Once
}

func newCaptureSink(timeout time.Duration) *captureSink {
	s := &captureSink{
		ch:   make(chan Record, captureBuffer),
		done: make(chan struct{}),
	}
	if timeout > 0 {
		s.deadline = time.Now().Add(timeout)
	}
	return s
}

func (s *captureSink) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *captureSink) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
	}
	if !s.deadline.IsZero() && !time.Now().Before(s.deadline) {
		s.stop()
		return true
	}
	return false
}

func (s *captureSink) push(r Record) {
	if s.stopped() {
		return
	}
	select {
	case s.ch <- r:
		CaptureRecords.WithLabelValues(captureDelivered).Inc()
	default:
		CaptureRecords.WithLabelValues(captureDropped).Inc()
	}
}

// Recv implements stream.Source. Records already queued are still handed out
// after a stop; the stream ends once the queue is empty.
func (s *captureSink) Recv(ctx context.Context) (Record, bool, error) {
	select {
	case r := <-s.ch:
		return r, true, nil
	default:
	}
	select {
	case r := <-s.ch:
		return r, true, nil
	case <-s.done:
		return Record{}, false, nil
	case <-ctx.Done():
		return Record{}, false, ctx.Err()
	}
}

func (s *captureSink) bridge() *stream.Bridge[Record] {
	opts := []stream.Option{
		stream.WithName("log-capture"),
		stream.WithOnClose(s.stop),
	}
	if !s.deadline.IsZero() {
		opts = append(opts, stream.WithDeadline(s.deadline))
	}
	return stream.New[Record](s, opts...)
}

// -----------------------------------------------------------------------------
// zapcore.Core
// -----------------------------------------------------------------------------

type captureCore struct {
	zapcore.LevelEnabler
	sink   *captureSink
	fields []zapcore.Field
}

func newCaptureCore(sink *captureSink, level zapcore.LevelEnabler) *captureCore {
	return &captureCore{LevelEnabler: level, sink: sink}
}

func (c *captureCore) Enabled(l zapcore.Level) bool {
	return c.LevelEnabler.Enabled(l) && !c.sink.stopped()
}

func (c *captureCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *captureCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *captureCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	rec := Record{
		Time:    ent.Time,
		Level:   ent.Level,
		Logger:  ent.LoggerName,
		Message: ent.Message,
		Stack:   ent.Stack,
	}
	if ent.Caller.Defined {
		rec.Caller = ent.Caller.TrimmedPath()
	}
	if n := len(c.fields) + len(fields); n > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range c.fields {
			f.AddTo(enc)
		}
		for _, f := range fields {
			f.AddTo(enc)
		}
		rec.Fields = enc.Fields
	}
	c.sink.push(rec)
	return nil
}

func (c *captureCore) Sync() error { return nil }
