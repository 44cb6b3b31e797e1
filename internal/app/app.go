// internal/app/app.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/optionstream/internal/config"
	"github.com/YaganovValera/optionstream/pkg/backoff"
	"github.com/YaganovValera/optionstream/pkg/httpserver"
	"github.com/YaganovValera/optionstream/pkg/kafka"
	"github.com/YaganovValera/optionstream/pkg/logger"
	"github.com/YaganovValera/optionstream/pkg/session"
	"github.com/YaganovValera/optionstream/pkg/stream"
	"github.com/YaganovValera/optionstream/pkg/telemetry"
	"github.com/YaganovValera/optionstream/pkg/wsclient"
)

// errRawEnded stops the group once the raw stream has run out, e.g. after
// its configured timeout.
var errRawEnded = errors.New("raw stream ended")

// RegisterMetrics registers every package collector with r.
func RegisterMetrics(r prometheus.Registerer) {
	backoff.RegisterMetrics(r)
	kafka.RegisterMetrics(r)
	stream.RegisterMetrics(r)
	logger.RegisterMetrics(r)
	wsclient.RegisterMetrics(r)
}

// Run installs logging from cfg and forwards validated frames, and
// optionally captured log records, to Kafka until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	sinks := cfg.Logging
	forwardLogs := cfg.Kafka.LogTopic != ""
	if forwardLogs {
		sinks.Captures = append(sinks.Captures, logger.CaptureSinkConfig{Level: cfg.Forward.LogLevel})
	}
	captures, err := logger.Configure(sinks)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	log := logger.L().Named("app")
	defer log.Sync()

	RegisterMetrics(nil)

	cfg.Telemetry.ServiceName = cfg.ServiceName
	cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe(ctx, "telemetry", func() error { return shutdownTracer(context.WithoutCancel(ctx)) }, log)

	ws, err := wsclient.NewConnector(cfg.WS, log)
	if err != nil {
		return fmt.Errorf("ws connector init: %w", err)
	}
	defer shutdownSafe(ctx, "ws-connector", ws.Close, log)

	prod, err := kafka.New(ctx, cfg.Kafka.Producer, log)
	if err != nil {
		return fmt.Errorf("kafka producer init: %w", err)
	}
	defer shutdownSafe(ctx, "kafka-producer", prod.Close, log)

	var logBridge *stream.Bridge[logger.Record]
	if forwardLogs {
		logBridge = captures[len(captures)-1]
	}
	return run(ctx, cfg, ws, prod, logBridge, log)
}

func run(ctx context.Context, cfg *config.Config, ws *wsclient.Connector, prod kafka.Producer,
	logBridge *stream.Bridge[logger.Record], log *logger.Logger) error {
	v, err := cfg.Forward.Validator.Build()
	if err != nil {
		return fmt.Errorf("forward validator: %w", err)
	}

	var forwarding atomic.Bool
	srv, err := httpserver.New(cfg.HTTP, nil, func() error {
		if !forwarding.Load() {
			return errors.New("raw stream not open")
		}
		return prod.Ping(ctx)
	}, log)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error { return ws.Run(ctx) })

	g.Go(func() error {
		sess := session.New(ws, cfg.Session, log)
		raw, err := sess.CreateRawIterator(ctx, cfg.Forward.Request, v, cfg.Forward.Timeout)
		if err != nil {
			return fmt.Errorf("open raw stream: %w", err)
		}
		forwarding.Store(true)
		defer forwarding.Store(false)
		log.Info("forwarding raw frames",
			zap.String("topic", cfg.Kafka.RawTopic),
			zap.Stringer("validator", v),
		)
		if err := kafka.Forward(ctx, raw, prod, cfg.Kafka.RawTopic, encodeRaw); err != nil {
			return err
		}
		return errRawEnded
	})

	if logBridge != nil {
		g.Go(func() error {
			return kafka.Forward(ctx, logBridge, prod, cfg.Kafka.LogTopic, encodeRecord)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errRawEnded) {
		return err
	}
	log.Info("forwarder stopped")
	return nil
}

func encodeRaw(msg string) ([]byte, []byte, error) {
	return nil, []byte(msg), nil
}

func encodeRecord(r logger.Record) ([]byte, []byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, nil, err
	}
	return []byte(r.Logger), b, nil
}

func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Info(name + ": shutting down")
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(name+": shutdown error", zap.Error(err))
		return
	}
	log.WithContext(ctx).Info(name + ": shutdown complete")
}
