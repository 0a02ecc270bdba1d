// Package pipeline runs lightweight stream pipelines over Kafka topics and
// feeds every lifecycle event through the attached sensor.
package pipeline

import (
	"context"
	"fmt"

	"github.com/flowmetric-io/flowmetric/internal/types"
)

// Processor transforms one event. Returning a nil event filters the message
// out of the stream; returning an error aborts the chain for this event.
type Processor func(ctx context.Context, event *types.Event) (*types.Event, error)

// Stream is a named chain of processors attached to a source topic.
type Stream struct {
	topic      string
	processors []Processor
}

var _ types.Stream = (*Stream)(nil)

// NewStream creates a stream reading from topic and applying processors in
// order.
func NewStream(topic string, processors ...Processor) *Stream {
	return &Stream{topic: topic, processors: processors}
}

// Topic returns the source topic of the stream.
func (s *Stream) Topic() string { return s.topic }

// ShortLabel returns the human-readable label sensors derive metric labels
// from.
func (s *Stream) ShortLabel() string {
	return fmt.Sprintf("Stream: <Topic: %s>", s.topic)
}

// process runs the event through the processor chain. A nil result means the
// event was filtered.
func (s *Stream) process(ctx context.Context, event *types.Event) (*types.Event, error) {
	current := event
	for _, p := range s.processors {
		out, err := p(ctx, current)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		current = out
	}
	return current, nil
}
