// pkg/kafka/producer.go

// Package kafka publishes stream items to Kafka through a sarama sync
// producer instrumented with OpenTelemetry.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/optionstream/pkg/backoff"
	"github.com/YaganovValera/optionstream/pkg/logger"
	"github.com/YaganovValera/optionstream/pkg/telemetry"
)

var tracer = telemetry.Tracer("kafka")

// Producer publishes records to Kafka.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

type syncProducer struct {
	prod   sarama.SyncProducer
	client sarama.Client
	log    *logger.Logger
	retry  backoff.Config
}

// New connects a sync producer, retrying with the configured back-off.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	sc, err := cfg.saramaConfig()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("kafka")

	var (
		client   sarama.Client
		syncProd sarama.SyncProducer
	)
	connect := func(context.Context) error {
		c, err := sarama.NewClient(cfg.Brokers, sc)
		if err == nil {
			syncProd, err = sarama.NewSyncProducerFromClient(c)
			if err != nil {
				_ = c.Close()
			}
		}
		if err != nil {
			Connects.WithLabelValues("error").Inc()
			return err
		}
		Connects.WithLabelValues("ok").Inc()
		client = c
		return nil
	}

	ctxConn, span := tracer.Start(ctx, "kafka.Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	defer span.End()
	if err := backoff.Execute(ctxConn, "kafka-connect", cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("kafka: connect %v: %w", cfg.Brokers, err)
	}

	log.Info("producer connected", zap.Strings("brokers", cfg.Brokers), zap.String("client_id", sc.ClientID))
	return &syncProducer{
		prod:   otelsarama.WrapSyncProducer(sc, syncProd),
		client: client,
		log:    log,
		retry:  cfg.Backoff,
	}, nil
}

// NewFromSyncProducer wraps an existing sarama producer. Ping always
// succeeds because there is no client to refresh.
func NewFromSyncProducer(prod sarama.SyncProducer, retry backoff.Config, log *logger.Logger) Producer {
	if log == nil {
		log = logger.Nop()
	}
	return &syncProducer{prod: prod, log: log.Named("kafka"), retry: retry}
}

// Publish sends one message, retrying with the configured back-off. A nil
// key leaves partitioning to sarama.
func (k *syncProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	ctx, span := tracer.Start(ctx, "kafka.Publish", trace.WithAttributes(
		attribute.String("topic", topic),
		attribute.Int("bytes", len(value)),
	))
	defer span.End()

	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}
	var partition int32
	var offset int64

	start := time.Now()
	err := backoff.Execute(ctx, "kafka-publish", k.retry, k.log, func(context.Context) error {
		var err error
		partition, offset, err = k.prod.SendMessage(msg)
		return err
	})
	PublishSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		Published.WithLabelValues(topic, "error").Inc()
		span.RecordError(err)
		return err
	}
	Published.WithLabelValues(topic, "ok").Inc()
	span.SetAttributes(attribute.Int("partition", int(partition)), attribute.Int64("offset", offset))
	return nil
}

// Ping refreshes cluster metadata.
func (k *syncProducer) Ping(ctx context.Context) error {
	if k.client == nil {
		return nil
	}
	_, span := tracer.Start(ctx, "kafka.Ping")
	defer span.End()
	if err := k.client.RefreshMetadata(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Close closes the producer and its client.
func (k *syncProducer) Close() error {
	err := k.prod.Close()
	if k.client != nil && !k.client.Closed() {
		if cerr := k.client.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("kafka: close: %w", err)
	}
	k.log.Info("producer closed")
	return nil
}
