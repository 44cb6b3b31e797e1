package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{" Warn ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"trace", zapcore.DebugLevel},
		{"TRACE", zapcore.DebugLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNew(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = New(Config{Level: "loud"})
	assert.ErrorContains(t, err, `invalid level "loud"`)
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	ctx := ContextWithTraceID(context.Background(), "t-1")
	ctx = ContextWithRequestID(ctx, "r-1")
	l.WithContext(ctx).Named("ws-client").Info("hello")

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "ws-client", e.LoggerName)
	assert.Equal(t, "t-1", e.ContextMap()["trace_id"])
	assert.Equal(t, "r-1", e.ContextMap()["request_id"])

	assert.Same(t, l, l.WithContext(context.Background()))
}

func TestWithContext_SpanWins(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(ContextWithTraceID(context.Background(), "t-1"),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid}))
	l.WithContext(ctx).Info("order sent")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, tid.String(), fields["trace_id"])
	assert.Equal(t, sid.String(), fields["span_id"])
}

func TestHost(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	h := Host()
	h.Debug("d")
	h.Info("i")
	h.Warn("w")
	h.Error("e")

	require.Equal(t, 4, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "host", e.LoggerName)
	}
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[3].Level)
}
