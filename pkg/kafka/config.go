// pkg/kafka/config.go
package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/YaganovValera/optionstream/pkg/backoff"
)

// Config groups the tunables of the sync producer.
type Config struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`

	// Version is the broker protocol version, e.g. "3.6.0". Empty keeps
	// the sarama default.
	Version string `mapstructure:"version"`

	// RequiredAcks is "all" (default), "leader" or "none".
	RequiredAcks string        `mapstructure:"required_acks"`
	Timeout      time.Duration `mapstructure:"timeout"`

	// Compression is "none" (default), "gzip", "snappy", "lz4" or "zstd".
	Compression string `mapstructure:"compression"`

	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages"`

	Backoff backoff.Config `mapstructure:"backoff"`
}

var acksByName = map[string]sarama.RequiredAcks{
	"all":    sarama.WaitForAll,
	"leader": sarama.WaitForLocal,
	"none":   sarama.NoResponse,
}

var codecByName = map[string]sarama.CompressionCodec{
	"none":   sarama.CompressionNone,
	"gzip":   sarama.CompressionGZIP,
	"snappy": sarama.CompressionSnappy,
	"lz4":    sarama.CompressionLZ4,
	"zstd":   sarama.CompressionZSTD,
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "optionstream"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka: brokers required")
	}
	return nil
}

// saramaConfig translates c into a sync producer configuration.
func (c Config) saramaConfig() (*sarama.Config, error) {
	acks, ok := acksByName[strings.ToLower(c.RequiredAcks)]
	if !ok {
		return nil, fmt.Errorf("kafka: unknown required_acks %q", c.RequiredAcks)
	}
	codec, ok := codecByName[strings.ToLower(c.Compression)]
	if !ok {
		return nil, fmt.Errorf("kafka: unknown compression %q", c.Compression)
	}

	sc := sarama.NewConfig()
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}
	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("kafka: version: %w", err)
		}
		sc.Version = v
	}

	p := &sc.Producer
	p.RequiredAcks = acks
	p.Compression = codec
	p.Timeout = c.Timeout
	p.Return.Successes = true
	p.Return.Errors = true
	if acks == sarama.WaitForAll {
		// idempotence requires a single in-flight request per broker
		p.Idempotent = true
		sc.Net.MaxOpenRequests = 1
	}
	if c.FlushFrequency > 0 {
		p.Flush.Frequency = c.FlushFrequency
	}
	if c.FlushMessages > 0 {
		p.Flush.Messages = c.FlushMessages
	}
	return sc, nil
}
