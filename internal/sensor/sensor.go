// Package sensor defines the lifecycle-hook contract the pipeline runtime
// invokes around every message, stream event, table operation, commit and
// send, together with the default Monitor bookkeeping that backend sensors
// delegate to.
//
// Hooks are invoked synchronously at the point an event occurs. A sensor must
// never block the hot path, never return an error through a hook, and never
// alter the outcome of the operation it observes.
package sensor

import (
	"github.com/flowmetric-io/flowmetric/internal/types"
)

// Sensor receives lifecycle hook calls from the pipeline runtime.
//
// The OnCommitInitiated and OnSendInitiated hooks return an opaque state
// value (the start time of the operation) that the runtime threads back into
// the corresponding completed hook.
type Sensor interface {
	// OnMessageIn is called when a message is read from a topic-partition.
	OnMessageIn(tp types.TP, offset int64, msg *types.Message)

	// OnStreamEventIn is called when a stream begins processing an event.
	OnStreamEventIn(tp types.TP, offset int64, stream types.Stream, event *types.Event)

	// OnStreamEventOut is called when a stream finishes processing an event.
	OnStreamEventOut(tp types.TP, offset int64, stream types.Stream, event *types.Event)

	// OnMessageOut is called when all streams are done with a message.
	OnMessageOut(tp types.TP, offset int64, msg *types.Message)

	// OnTableGet is called when a key is retrieved from a table.
	OnTableGet(table types.Table, key string)

	// OnTableSet is called when a key is updated in a table.
	OnTableSet(table types.Table, key string, value []byte)

	// OnTableDel is called when a key is deleted from a table.
	OnTableDel(table types.Table, key string)

	// OnCommitInitiated is called when an offset commit starts. The returned
	// state is passed to OnCommitCompleted.
	OnCommitInitiated(consumer types.Consumer) any

	// OnCommitCompleted is called when an offset commit finishes.
	OnCommitCompleted(consumer types.Consumer, state any)

	// OnSendInitiated is called when a record send starts, before the record
	// has been routed to a partition. The returned state is passed to
	// OnSendCompleted.
	OnSendInitiated(producer types.Producer, topic string, keySize, valueSize int) any

	// OnSendCompleted is called when a record send finishes.
	OnSendCompleted(producer types.Producer, state any)

	// Count adjusts an arbitrary named counter by n.
	Count(name string, n int64)

	// OnTPCommit is called with the offsets acknowledged by a completed
	// commit, one entry per topic-partition.
	OnTPCommit(offsets types.TPOffsets)

	// TrackTPEndOffset records the latest known log end offset of a
	// topic-partition.
	TrackTPEndOffset(tp types.TP, offset int64)
}

// Nop is a Sensor that does nothing. It is the sensor used when the runtime
// is configured without a metrics backend.
type Nop struct{}

var _ Sensor = Nop{}

func (Nop) OnMessageIn(types.TP, int64, *types.Message)                  {}
func (Nop) OnStreamEventIn(types.TP, int64, types.Stream, *types.Event)  {}
func (Nop) OnStreamEventOut(types.TP, int64, types.Stream, *types.Event) {}
func (Nop) OnMessageOut(types.TP, int64, *types.Message)                 {}
func (Nop) OnTableGet(types.Table, string)                               {}
func (Nop) OnTableSet(types.Table, string, []byte)                       {}
func (Nop) OnTableDel(types.Table, string)                               {}
func (Nop) OnCommitInitiated(types.Consumer) any                         { return nil }
func (Nop) OnCommitCompleted(types.Consumer, any)                        {}
func (Nop) OnSendInitiated(types.Producer, string, int, int) any         { return nil }
func (Nop) OnSendCompleted(types.Producer, any)                          {}
func (Nop) Count(string, int64)                                          {}
func (Nop) OnTPCommit(types.TPOffsets)                                   {}
func (Nop) TrackTPEndOffset(types.TP, int64)                             {}
