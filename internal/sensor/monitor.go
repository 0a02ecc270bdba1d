package sensor

import (
	"sync"
	"time"

	"github.com/flowmetric-io/flowmetric/internal/types"
)

// MaxHistory is the number of recent latency samples kept per history.
const MaxHistory = 100

// eventKey identifies an in-flight stream event.
type eventKey struct {
	stream types.Stream
	tp     types.TP
	offset int64
}

// Monitor is the default bookkeeping Sensor. It maintains totals, active
// gauges, per-partition offset maps, and bounded histories of recent
// event runtimes and commit/send latencies.
//
// Backend sensors embed a *Monitor and delegate to it first in every hook,
// so its statistics stay available regardless of backend. All methods are
// safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	messagesReceived int64
	messagesSent     int64
	messagesActive   int64
	events           int64
	eventsActive     int64

	tableGets map[string]int64
	tableSets map[string]int64
	tableDels map[string]int64

	counts map[string]int64

	readOffsets      types.TPOffsets
	committedOffsets types.TPOffsets
	endOffsets       types.TPOffsets

	eventStarts   map[eventKey]time.Time
	eventsRuntime []float64
	commitLatency []float64
	sendLatency   []float64

	now func() time.Time
}

var _ Sensor = (*Monitor)(nil)

// NewMonitor returns a Monitor with empty statistics.
func NewMonitor() *Monitor {
	return &Monitor{
		tableGets:        make(map[string]int64),
		tableSets:        make(map[string]int64),
		tableDels:        make(map[string]int64),
		counts:           make(map[string]int64),
		readOffsets:      make(types.TPOffsets),
		committedOffsets: make(types.TPOffsets),
		endOffsets:       make(types.TPOffsets),
		eventStarts:      make(map[eventKey]time.Time),
		now:              time.Now,
	}
}

func appendBounded(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	return history
}

func (m *Monitor) OnMessageIn(tp types.TP, offset int64, msg *types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesReceived++
	m.messagesActive++
	m.readOffsets[tp] = offset
}

func (m *Monitor) OnStreamEventIn(tp types.TP, offset int64, stream types.Stream, event *types.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++
	m.eventsActive++
	m.eventStarts[eventKey{stream, tp, offset}] = m.now()
}

func (m *Monitor) OnStreamEventOut(tp types.TP, offset int64, stream types.Stream, event *types.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsActive--
	key := eventKey{stream, tp, offset}
	if start, ok := m.eventStarts[key]; ok {
		delete(m.eventStarts, key)
		m.eventsRuntime = appendBounded(m.eventsRuntime, m.now().Sub(start).Seconds())
	}
}

func (m *Monitor) OnMessageOut(tp types.TP, offset int64, msg *types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesActive--
}

func (m *Monitor) OnTableGet(table types.Table, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableGets[table.Name()]++
}

func (m *Monitor) OnTableSet(table types.Table, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableSets[table.Name()]++
}

func (m *Monitor) OnTableDel(table types.Table, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tableDels[table.Name()]++
}

func (m *Monitor) OnCommitInitiated(consumer types.Consumer) any {
	return m.now()
}

func (m *Monitor) OnCommitCompleted(consumer types.Consumer, state any) {
	start, ok := state.(time.Time)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitLatency = appendBounded(m.commitLatency, m.now().Sub(start).Seconds())
}

func (m *Monitor) OnSendInitiated(producer types.Producer, topic string, keySize, valueSize int) any {
	return m.now()
}

func (m *Monitor) OnSendCompleted(producer types.Producer, state any) {
	start, ok := state.(time.Time)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesSent++
	m.sendLatency = appendBounded(m.sendLatency, m.now().Sub(start).Seconds())
}

func (m *Monitor) Count(name string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name] += n
}

func (m *Monitor) OnTPCommit(offsets types.TPOffsets) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tp, offset := range offsets {
		m.committedOffsets[tp] = offset
	}
}

func (m *Monitor) TrackTPEndOffset(tp types.TP, offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endOffsets[tp] = offset
}

// LastEventRuntime returns the most recent stream-event runtime in seconds.
// OnStreamEventOut appends the runtime before any wrapping sensor runs its
// own emission step, so a backend reading this inside its OnStreamEventOut
// observes the runtime of the event just completed.
func (m *Monitor) LastEventRuntime() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.eventsRuntime) == 0 {
		return 0, false
	}
	return m.eventsRuntime[len(m.eventsRuntime)-1], true
}

// EventsRuntime returns a copy of the recent event runtime history.
func (m *Monitor) EventsRuntime() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.eventsRuntime))
	copy(out, m.eventsRuntime)
	return out
}

// CommitLatency returns a copy of the recent commit latency history.
func (m *Monitor) CommitLatency() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.commitLatency))
	copy(out, m.commitLatency)
	return out
}

// SendLatency returns a copy of the recent send latency history.
func (m *Monitor) SendLatency() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.sendLatency))
	copy(out, m.sendLatency)
	return out
}

// Stats is a point-in-time snapshot of the Monitor's totals and gauges.
type Stats struct {
	MessagesReceived int64
	MessagesSent     int64
	MessagesActive   int64
	Events           int64
	EventsActive     int64
	ReadOffsets      types.TPOffsets
	CommittedOffsets types.TPOffsets
	EndOffsets       types.TPOffsets
}

// Snapshot returns a copy of the Monitor's current totals and offset maps.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		MessagesReceived: m.messagesReceived,
		MessagesSent:     m.messagesSent,
		MessagesActive:   m.messagesActive,
		Events:           m.events,
		EventsActive:     m.eventsActive,
		ReadOffsets:      make(types.TPOffsets, len(m.readOffsets)),
		CommittedOffsets: make(types.TPOffsets, len(m.committedOffsets)),
		EndOffsets:       make(types.TPOffsets, len(m.endOffsets)),
	}
	for tp, o := range m.readOffsets {
		s.ReadOffsets[tp] = o
	}
	for tp, o := range m.committedOffsets {
		s.CommittedOffsets[tp] = o
	}
	for tp, o := range m.endOffsets {
		s.EndOffsets[tp] = o
	}
	return s
}

// TableStats returns the get/set/del counts recorded for the named table.
func (m *Monitor) TableStats(name string) (gets, sets, dels int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tableGets[name], m.tableSets[name], m.tableDels[name]
}

// CountValue returns the accumulated value of a named counter.
func (m *Monitor) CountValue(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}
