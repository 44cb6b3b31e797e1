// pkg/stream/errors.go
package stream

import (
	"errors"
	"fmt"
)

// ErrEndOfStream is returned by Bridge.Next once the stream is over.
var ErrEndOfStream = errors.New("stream: end of stream")

// TransportError wraps the producer failure that terminated a stream.
// A bridge reports it exactly once.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
