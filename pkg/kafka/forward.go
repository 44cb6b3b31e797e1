// pkg/kafka/forward.go
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/YaganovValera/optionstream/pkg/stream"
)

// Encoder turns a stream item into a Kafka key and value.
type Encoder[T any] func(item T) (key, value []byte, err error)

// Forward publishes every item of b to topic until the bridge ends. It
// returns nil on a clean end, the transport error if the stream failed, and
// the first publish or encode error otherwise. The bridge is closed on return.
func Forward[T any](ctx context.Context, b *stream.Bridge[T], p Producer, topic string, enc Encoder[T]) error {
	defer b.Close()
	for {
		item, err := b.Next(ctx)
		if errors.Is(err, stream.ErrEndOfStream) {
			return nil
		}
		if err != nil {
			return err
		}
		key, value, err := enc(item)
		if err != nil {
			return fmt.Errorf("kafka forward: encode: %w", err)
		}
		if err := p.Publish(ctx, topic, key, value); err != nil {
			return fmt.Errorf("kafka forward: %w", err)
		}
	}
}
