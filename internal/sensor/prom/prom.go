// Package prom records pipeline statistics to a Prometheus registry.
//
// It emits the same metric names and label keys as the datadog sensor so
// dashboards can be ported between backends. Timing metrics are histograms
// observed in milliseconds.
package prom

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowmetric-io/flowmetric/internal/sensor"
	"github.com/flowmetric-io/flowmetric/internal/types"
)

// DefaultLatencyBuckets are millisecond buckets for the timing histograms,
// covering sub-millisecond event processing up to ten-second commits.
var DefaultLatencyBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000,
}

// Monitor is a Sensor exposing pipeline statistics through a Prometheus
// registry in addition to the base Monitor bookkeeping it embeds.
type Monitor struct {
	*sensor.Monitor

	now func() time.Time

	messagesReceived *prometheus.CounterVec
	messagesActive   *prometheus.GaugeVec
	readOffset       *prometheus.GaugeVec

	events        *prometheus.CounterVec
	eventsActive  *prometheus.GaugeVec
	eventsRuntime *prometheus.HistogramVec

	tableKeysRetrieved *prometheus.CounterVec
	tableKeysUpdated   *prometheus.CounterVec
	tableKeysDeleted   *prometheus.CounterVec

	commitLatency prometheus.Histogram

	topicMessagesSent *prometheus.CounterVec
	messagesSent      prometheus.Counter
	sendLatency       prometheus.Histogram

	counts *prometheus.CounterVec

	committedOffset *prometheus.GaugeVec
	endOffset       *prometheus.GaugeVec
}

var _ sensor.Sensor = (*Monitor)(nil)

// New creates a Monitor registered with the default Prometheus registry.
func New(prefix string) *Monitor {
	return NewWithRegistry(prefix, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Monitor registered with reg. Tests use a fresh
// registry to avoid polluting the default one.
func NewWithRegistry(prefix string, reg prometheus.Registerer) *Monitor {
	ns := namespace(prefix)
	factory := promauto.With(reg)

	tpLabels := []string{"topic", "partition"}
	streamLabels := []string{"topic", "partition", "stream"}

	return &Monitor{
		Monitor: sensor.NewMonitor(),
		now:     time.Now,

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_received",
			Help:      "Messages read from source topic-partitions.",
		}, tpLabels),
		messagesActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "messages_active",
			Help:      "Messages currently being processed.",
		}, tpLabels),
		readOffset: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "read_offset",
			Help:      "Last offset read per topic-partition.",
		}, tpLabels),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events",
			Help:      "Stream events processed.",
		}, streamLabels),
		eventsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "events_active",
			Help:      "Stream events currently in flight.",
		}, streamLabels),
		eventsRuntime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "events_runtime",
			Help:      "Stream event processing time in milliseconds.",
			Buckets:   DefaultLatencyBuckets,
		}, streamLabels),

		tableKeysRetrieved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "table_keys_retrieved",
			Help:      "Keys retrieved from tables.",
		}, []string{"table"}),
		tableKeysUpdated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "table_keys_updated",
			Help:      "Keys updated in tables.",
		}, []string{"table"}),
		tableKeysDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "table_keys_deleted",
			Help:      "Keys deleted from tables.",
		}, []string{"table"}),

		commitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "commit_latency",
			Help:      "Offset commit latency in milliseconds.",
			Buckets:   DefaultLatencyBuckets,
		}),

		topicMessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "topic_messages_sent",
			Help:      "Sends initiated per destination topic.",
		}, []string{"topic"}),
		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_sent",
			Help:      "Sends completed.",
		}),
		sendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "send_latency",
			Help:      "Send latency in milliseconds.",
			Buckets:   DefaultLatencyBuckets,
		}),

		counts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "count",
			Help:      "Generic named counters.",
		}, []string{"metric"}),

		committedOffset: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "committed_offset",
			Help:      "Last committed offset per topic-partition.",
		}, tpLabels),
		endOffset: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "end_offset",
			Help:      "Last known log end offset per topic-partition.",
		}, tpLabels),
	}
}

// namespace turns a metric prefix into a valid Prometheus namespace.
func namespace(prefix string) string {
	if prefix == "" {
		prefix = "faust_app"
	}
	return strings.NewReplacer("-", "_", ".", "_").Replace(prefix)
}

func (m *Monitor) OnMessageIn(tp types.TP, offset int64, msg *types.Message) {
	m.Monitor.OnMessageIn(tp, offset, msg)
	labels := sensor.TPLabels(tp)
	m.messagesReceived.With(prometheus.Labels(labels)).Inc()
	m.messagesActive.With(prometheus.Labels(labels)).Inc()
	m.readOffset.With(prometheus.Labels(labels)).Set(float64(offset))
}

func (m *Monitor) OnStreamEventIn(tp types.TP, offset int64, stream types.Stream, event *types.Event) {
	m.Monitor.OnStreamEventIn(tp, offset, stream, event)
	labels := prometheus.Labels(sensor.MergeLabels(sensor.TPLabels(tp), sensor.StreamLabels(stream)))
	m.events.With(labels).Inc()
	m.eventsActive.With(labels).Inc()
}

func (m *Monitor) OnStreamEventOut(tp types.TP, offset int64, stream types.Stream, event *types.Event) {
	m.Monitor.OnStreamEventOut(tp, offset, stream, event)
	labels := prometheus.Labels(sensor.MergeLabels(sensor.TPLabels(tp), sensor.StreamLabels(stream)))
	m.eventsActive.With(labels).Dec()
	if runtime, ok := m.LastEventRuntime(); ok {
		m.eventsRuntime.With(labels).Observe(runtime * 1000)
	}
}

func (m *Monitor) OnMessageOut(tp types.TP, offset int64, msg *types.Message) {
	m.Monitor.OnMessageOut(tp, offset, msg)
	m.messagesActive.With(prometheus.Labels(sensor.TPLabels(tp))).Dec()
}

func (m *Monitor) OnTableGet(table types.Table, key string) {
	m.Monitor.OnTableGet(table, key)
	m.tableKeysRetrieved.WithLabelValues(table.Name()).Inc()
}

func (m *Monitor) OnTableSet(table types.Table, key string, value []byte) {
	m.Monitor.OnTableSet(table, key, value)
	m.tableKeysUpdated.WithLabelValues(table.Name()).Inc()
}

func (m *Monitor) OnTableDel(table types.Table, key string) {
	m.Monitor.OnTableDel(table, key)
	m.tableKeysDeleted.WithLabelValues(table.Name()).Inc()
}

func (m *Monitor) OnCommitCompleted(consumer types.Consumer, state any) {
	m.Monitor.OnCommitCompleted(consumer, state)
	if start, ok := state.(time.Time); ok {
		m.commitLatency.Observe(m.now().Sub(start).Seconds() * 1000)
	}
}

func (m *Monitor) OnSendInitiated(producer types.Producer, topic string, keySize, valueSize int) any {
	state := m.Monitor.OnSendInitiated(producer, topic, keySize, valueSize)
	m.topicMessagesSent.WithLabelValues(topic).Inc()
	return state
}

func (m *Monitor) OnSendCompleted(producer types.Producer, state any) {
	m.Monitor.OnSendCompleted(producer, state)
	m.messagesSent.Inc()
	if start, ok := state.(time.Time); ok {
		m.sendLatency.Observe(m.now().Sub(start).Seconds() * 1000)
	}
}

func (m *Monitor) Count(name string, n int64) {
	m.Monitor.Count(name, n)
	m.counts.WithLabelValues(name).Add(float64(n))
}

func (m *Monitor) OnTPCommit(offsets types.TPOffsets) {
	m.Monitor.OnTPCommit(offsets)
	for tp, offset := range offsets {
		m.committedOffset.With(prometheus.Labels(sensor.TPLabels(tp))).Set(float64(offset))
	}
}

func (m *Monitor) TrackTPEndOffset(tp types.TP, offset int64) {
	m.Monitor.TrackTPEndOffset(tp, offset)
	m.endOffset.With(prometheus.Labels(sensor.TPLabels(tp))).Set(float64(offset))
}
