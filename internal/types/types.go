// Package types defines the domain objects shared between the pipeline
// runtime and the sensor layer: topic-partitions, messages, events, and the
// read-only collaborator interfaces (streams, tables, consumer, producer).
package types

import (
	"context"
	"fmt"
	"time"
)

// TP identifies a partition within a topic.
type TP struct {
	Topic     string
	Partition int32
}

func (tp TP) String() string {
	return fmt.Sprintf("%s[%d]", tp.Topic, tp.Partition)
}

// TPOffsets maps topic-partitions to offsets, as reported by a completed
// offset commit.
type TPOffsets map[TP]int64

// Message is a single record read from or written to a topic-partition.
type Message struct {
	TP        TP
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Event is one unit of stream processing: a message flowing through a stream.
type Event struct {
	Message *Message
}

// TP returns the topic-partition the event's message was read from.
func (e *Event) TP() TP {
	return e.Message.TP
}

// Offset returns the offset the event's message was read at.
func (e *Event) Offset() int64 {
	return e.Message.Offset
}

// Stream is a processing pipeline instance. Sensors read only its
// human-readable label.
type Stream interface {
	// ShortLabel returns a human-readable label for the stream,
	// e.g. "Stream: <Topic: orders>".
	ShortLabel() string
}

// Table is a keyed materialized view. Sensors read only its name.
type Table interface {
	Name() string
}

// Consumer is the consumer side of the host runtime as seen by sensors.
type Consumer interface {
	// Assignment returns the topic-partitions currently assigned.
	Assignment() []TP
}

// Producer is the producer side of the host runtime as seen by sensors.
type Producer interface {
	// Flush blocks until all buffered records are sent or ctx is done.
	Flush(ctx context.Context) error
}
