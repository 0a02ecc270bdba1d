package datadog

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/flowmetric-io/flowmetric/internal/logging"
	"github.com/flowmetric-io/flowmetric/internal/sensor"
	"github.com/flowmetric-io/flowmetric/internal/types"
)

// ErrInvalidConfig is returned when the sensor cannot be constructed from
// the given configuration.
var ErrInvalidConfig = errors.New("datadog: invalid configuration")

// Config holds the dogstatsd connection parameters.
type Config struct {
	// Host of the dogstatsd agent. Defaults to "localhost".
	Host string
	// Port of the dogstatsd agent. Defaults to 8125.
	Port int
	// Prefix is prepended to every metric name. Defaults to "faust-app".
	Prefix string
	// Rate is the sample rate applied uniformly to every call.
	// Defaults to 1.0.
	Rate float64
	// Options are passed through to the underlying statsd client.
	Options []statsd.Option
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8125
	}
	if c.Prefix == "" {
		c.Prefix = "faust-app"
	}
	if c.Rate == 0 {
		c.Rate = 1.0
	}
	return c
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Monitor is a Sensor recording statistics to a dogstatsd agent in addition
// to the base Monitor bookkeeping it embeds.
type Monitor struct {
	*sensor.Monitor

	cfg Config

	clientOnce sync.Once
	client     *Client

	// newStatsd builds the transport client on first use. Overridable in
	// tests.
	newStatsd func() (statsdClient, error)

	now func() time.Time
}

var _ sensor.Sensor = (*Monitor)(nil)

// New returns a Monitor shipping metrics to the dogstatsd agent described by
// cfg. The agent address must resolve; an unresolvable address or an invalid
// sample rate fails immediately with ErrInvalidConfig, so a misconfigured
// deployment is caught at startup rather than silently dropping metrics.
func New(cfg Config) (*Monitor, error) {
	cfg = cfg.withDefaults()
	if cfg.Rate < 0 || cfg.Rate > 1 {
		return nil, fmt.Errorf("%w: sample rate %v outside (0, 1]", ErrInvalidConfig, cfg.Rate)
	}
	if _, err := net.ResolveUDPAddr("udp", cfg.addr()); err != nil {
		return nil, fmt.Errorf("%w: resolving agent address %s: %v", ErrInvalidConfig, cfg.addr(), err)
	}
	m := &Monitor{
		Monitor: sensor.NewMonitor(),
		cfg:     cfg,
		now:     time.Now,
	}
	m.newStatsd = func() (statsdClient, error) {
		opts := append([]statsd.Option{statsd.WithNamespace(cfg.Prefix)}, cfg.Options...)
		return statsd.New(cfg.addr(), opts...)
	}
	return m, nil
}

// Client returns the shared statsd facade, constructing it on first use.
// Concurrent first uses converge on a single instance. If the transport
// cannot be brought up the facade degrades to a no-op client; metric
// emission is best-effort and must not take the pipeline down with it.
func (m *Monitor) Client() *Client {
	m.clientOnce.Do(func() {
		sc, err := m.newStatsd()
		if err != nil {
			logging.Global().Warnf("dogstatsd client unavailable, dropping metrics",
				map[string]any{"addr": m.cfg.addr(), "error": err.Error()})
			sc = &statsd.NoOpClient{}
		}
		m.client = &Client{statsd: sc, rate: m.cfg.Rate}
	})
	return m.client
}

// Close flushes and closes the transport client if it was ever constructed.
func (m *Monitor) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *Monitor) OnMessageIn(tp types.TP, offset int64, msg *types.Message) {
	m.Monitor.OnMessageIn(tp, offset, msg)
	labels := sensor.TPLabels(tp)
	c := m.Client()
	c.Increment("messages_received", 1, labels)
	c.Increment("messages_active", 1, labels)
	c.Gauge("read_offset", float64(offset), labels)
}

func (m *Monitor) OnStreamEventIn(tp types.TP, offset int64, stream types.Stream, event *types.Event) {
	m.Monitor.OnStreamEventIn(tp, offset, stream, event)
	labels := sensor.MergeLabels(sensor.TPLabels(tp), sensor.StreamLabels(stream))
	c := m.Client()
	c.Increment("events", 1, labels)
	c.Increment("events_active", 1, labels)
}

func (m *Monitor) OnStreamEventOut(tp types.TP, offset int64, stream types.Stream, event *types.Event) {
	m.Monitor.OnStreamEventOut(tp, offset, stream, event)
	labels := sensor.MergeLabels(sensor.TPLabels(tp), sensor.StreamLabels(stream))
	c := m.Client()
	c.Decrement("events_active", 1, labels)
	// The base hook above records the runtime of this event before we read
	// it back.
	if runtime, ok := m.LastEventRuntime(); ok {
		c.Timing("events_runtime", runtime*1000, labels)
	}
}

func (m *Monitor) OnMessageOut(tp types.TP, offset int64, msg *types.Message) {
	m.Monitor.OnMessageOut(tp, offset, msg)
	m.Client().Decrement("messages_active", 1, sensor.TPLabels(tp))
}

func (m *Monitor) OnTableGet(table types.Table, key string) {
	m.Monitor.OnTableGet(table, key)
	m.Client().Increment("table_keys_retrieved", 1, sensor.TableLabels(table))
}

func (m *Monitor) OnTableSet(table types.Table, key string, value []byte) {
	m.Monitor.OnTableSet(table, key, value)
	m.Client().Increment("table_keys_updated", 1, sensor.TableLabels(table))
}

func (m *Monitor) OnTableDel(table types.Table, key string) {
	m.Monitor.OnTableDel(table, key)
	m.Client().Increment("table_keys_deleted", 1, sensor.TableLabels(table))
}

func (m *Monitor) OnCommitCompleted(consumer types.Consumer, state any) {
	m.Monitor.OnCommitCompleted(consumer, state)
	if start, ok := state.(time.Time); ok {
		m.Client().Timing("commit_latency", m.now().Sub(start).Seconds()*1000, nil)
	}
}

func (m *Monitor) OnSendInitiated(producer types.Producer, topic string, keySize, valueSize int) any {
	state := m.Monitor.OnSendInitiated(producer, topic, keySize, valueSize)
	// The send has not been routed to a partition yet, so the label set
	// carries the topic alone.
	m.Client().Increment("topic_messages_sent", 1, sensor.TopicLabels(topic))
	return state
}

func (m *Monitor) OnSendCompleted(producer types.Producer, state any) {
	m.Monitor.OnSendCompleted(producer, state)
	c := m.Client()
	c.Increment("messages_sent", 1, nil)
	if start, ok := state.(time.Time); ok {
		c.Timing("send_latency", m.now().Sub(start).Seconds()*1000, nil)
	}
}

func (m *Monitor) Count(name string, n int64) {
	m.Monitor.Count(name, n)
	m.Client().Increment(name, n, nil)
}

func (m *Monitor) OnTPCommit(offsets types.TPOffsets) {
	m.Monitor.OnTPCommit(offsets)
	c := m.Client()
	for tp, offset := range offsets {
		c.Gauge("committed_offset", float64(offset), sensor.TPLabels(tp))
	}
}

func (m *Monitor) TrackTPEndOffset(tp types.TP, offset int64) {
	m.Monitor.TrackTPEndOffset(tp, offset)
	m.Client().Gauge("end_offset", float64(offset), sensor.TPLabels(tp))
}
