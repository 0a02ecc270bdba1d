package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/flowmetric-io/flowmetric/internal/logging"
	"github.com/flowmetric-io/flowmetric/internal/sensor"
	"github.com/flowmetric-io/flowmetric/internal/types"
)

var (
	// ErrNoBrokers is returned when the runtime is configured without
	// seed brokers.
	ErrNoBrokers = errors.New("pipeline: no seed brokers configured")
	// ErrNoStreams is returned when the runtime is configured without
	// streams.
	ErrNoStreams = errors.New("pipeline: no streams configured")
)

// Config holds the runtime's Kafka and scheduling parameters.
type Config struct {
	Brokers  []string
	GroupID  string
	ClientID string

	// SinkTopic receives processed events. Empty disables forwarding.
	SinkTopic string

	// CommitInterval is how often marked offsets are committed.
	CommitInterval time.Duration
	// EndOffsetInterval is how often log end offsets are polled.
	EndOffsetInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.GroupID == "" {
		c.GroupID = "flowmetric"
	}
	if c.ClientID == "" {
		c.ClientID = "flowmetric-" + uuid.NewString()
	}
	if c.CommitInterval == 0 {
		c.CommitInterval = 3 * time.Second
	}
	if c.EndOffsetInterval == 0 {
		c.EndOffsetInterval = 10 * time.Second
	}
	return c
}

// Runtime consumes the streams' source topics and drives every record
// through the processor chains, reporting each lifecycle step to the sensor.
type Runtime struct {
	cfg     Config
	sensor  sensor.Sensor
	logger  *logging.Logger
	streams map[string][]*Stream

	client *kgo.Client
	admin  *kadm.Client

	mu          sync.Mutex
	assignment  map[types.TP]struct{}
	uncommitted map[string]map[int32]kgo.EpochOffset
}

var (
	_ types.Consumer = (*Runtime)(nil)
	_ types.Producer = (*Runtime)(nil)
)

// New creates a runtime consuming the source topics of the given streams.
// A nil sensor disables instrumentation.
func New(cfg Config, s sensor.Sensor, streams ...*Stream) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if len(streams) == 0 {
		return nil, ErrNoStreams
	}
	r := newRuntime(cfg, s, streams...)

	topics := make([]string, 0, len(r.streams))
	for topic := range r.streams {
		topics = append(topics, topic)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(r.onAssigned),
		kgo.OnPartitionsRevoked(r.onRevoked),
		kgo.OnPartitionsLost(r.onLost),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: creating kafka client: %w", err)
	}
	r.client = client
	r.admin = kadm.NewClient(client)
	return r, nil
}

// newRuntime builds the runtime without a Kafka client. Split out so the
// record path is testable without a broker.
func newRuntime(cfg Config, s sensor.Sensor, streams ...*Stream) *Runtime {
	if s == nil {
		s = sensor.Nop{}
	}
	byTopic := make(map[string][]*Stream)
	for _, stream := range streams {
		byTopic[stream.Topic()] = append(byTopic[stream.Topic()], stream)
	}
	return &Runtime{
		cfg:         cfg,
		sensor:      s,
		logger:      logging.Global().With(map[string]any{"clientId": cfg.ClientID}),
		streams:     byTopic,
		assignment:  make(map[types.TP]struct{}),
		uncommitted: make(map[string]map[int32]kgo.EpochOffset),
	}
}

// Run consumes until ctx is cancelled, then commits outstanding offsets,
// flushes the producer, and closes the client.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Infof("runtime starting", map[string]any{
		"group":  r.cfg.GroupID,
		"topics": len(r.streams),
	})

	var wg sync.WaitGroup
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(2)
	go func() {
		defer wg.Done()
		r.commitLoop(loopCtx)
	}()
	go func() {
		defer wg.Done()
		r.endOffsetLoop(loopCtx)
	}()

	for {
		fetches := r.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			break
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Errorf("fetch error", map[string]any{
				"topic":     topic,
				"partition": partition,
				"error":     err.Error(),
			})
			r.sensor.Count("poll_fetch_errors", 1)
		})
		if ctx.Err() != nil {
			break
		}

		batchCtx := logging.WithCorrelationIDCtx(context.Background(), uuid.NewString())
		fetches.EachRecord(func(rec *kgo.Record) {
			r.processRecord(batchCtx, rec)
		})
	}

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	r.commitNow(shutdownCtx)
	if err := r.Flush(shutdownCtx); err != nil {
		r.logger.Warnf("flush on shutdown failed", map[string]any{"error": err.Error()})
	}
	r.client.Close()
	r.logger.Info("runtime stopped")
	return ctx.Err()
}

// processRecord drives one record through every stream attached to its
// topic. Sensor calls are side effects only; a processor failure never stops
// the record from being marked processed.
func (r *Runtime) processRecord(ctx context.Context, rec *kgo.Record) {
	tp := types.TP{Topic: rec.Topic, Partition: rec.Partition}
	msg := &types.Message{
		TP:        tp,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
	}

	r.sensor.OnMessageIn(tp, rec.Offset, msg)
	event := &types.Event{Message: msg}

	for _, stream := range r.streams[rec.Topic] {
		r.sensor.OnStreamEventIn(tp, rec.Offset, stream, event)
		out, err := stream.process(ctx, event)
		r.sensor.OnStreamEventOut(tp, rec.Offset, stream, event)
		if err != nil {
			logging.FromCtx(ctx).Errorf("processor failed", map[string]any{
				"stream": stream.ShortLabel(),
				"tp":     tp.String(),
				"offset": rec.Offset,
				"error":  err.Error(),
			})
			r.sensor.Count("stream_errors", 1)
			continue
		}
		if out != nil && r.cfg.SinkTopic != "" {
			r.send(ctx, out)
		}
	}

	r.sensor.OnMessageOut(tp, rec.Offset, msg)
	r.markProcessed(rec)
}

// send forwards a processed event to the sink topic.
func (r *Runtime) send(ctx context.Context, event *types.Event) {
	topic := r.cfg.SinkTopic
	state := r.sensor.OnSendInitiated(r, topic, len(event.Message.Key), len(event.Message.Value))
	rec := &kgo.Record{
		Topic: topic,
		Key:   event.Message.Key,
		Value: event.Message.Value,
	}
	r.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
		if err != nil {
			r.logger.Errorf("send failed", map[string]any{
				"topic": topic,
				"error": err.Error(),
			})
			r.sensor.Count("send_errors", 1)
			return
		}
		r.sensor.OnSendCompleted(r, state)
	})
}

// markProcessed records the offset to commit for the record's partition.
func (r *Runtime) markProcessed(rec *kgo.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	partitions := r.uncommitted[rec.Topic]
	if partitions == nil {
		partitions = make(map[int32]kgo.EpochOffset)
		r.uncommitted[rec.Topic] = partitions
	}
	partitions[rec.Partition] = kgo.EpochOffset{
		Epoch:  rec.LeaderEpoch,
		Offset: rec.Offset + 1,
	}
}

// takeUncommitted swaps out the pending offsets to commit.
func (r *Runtime) takeUncommitted() map[string]map[int32]kgo.EpochOffset {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.uncommitted) == 0 {
		return nil
	}
	offsets := r.uncommitted
	r.uncommitted = make(map[string]map[int32]kgo.EpochOffset)
	return offsets
}

func (r *Runtime) commitLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.commitNow(ctx)
		}
	}
}

// commitNow commits pending offsets, reporting commit latency and the
// committed mapping to the sensor.
func (r *Runtime) commitNow(ctx context.Context) {
	offsets := r.takeUncommitted()
	if offsets == nil {
		return
	}

	state := r.sensor.OnCommitInitiated(r)
	var commitErr error
	r.client.CommitOffsetsSync(ctx, offsets,
		func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
			commitErr = err
		})
	r.sensor.OnCommitCompleted(r, state)

	if commitErr != nil {
		r.logger.Errorf("offset commit failed", map[string]any{"error": commitErr.Error()})
		r.sensor.Count("commit_errors", 1)
		return
	}
	r.sensor.OnTPCommit(toTPOffsets(offsets))
}

// toTPOffsets converts kgo's commit mapping to the sensor's form.
func toTPOffsets(offsets map[string]map[int32]kgo.EpochOffset) types.TPOffsets {
	out := make(types.TPOffsets)
	for topic, partitions := range offsets {
		for partition, eo := range partitions {
			out[types.TP{Topic: topic, Partition: partition}] = eo.Offset
		}
	}
	return out
}

func (r *Runtime) endOffsetLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.EndOffsetInterval)
	defer ticker.Stop()

	topics := make([]string, 0, len(r.streams))
	for topic := range r.streams {
		topics = append(topics, topic)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			listed, err := r.admin.ListEndOffsets(ctx, topics...)
			if err != nil {
				r.logger.Warnf("listing end offsets failed", map[string]any{"error": err.Error()})
				continue
			}
			listed.Each(func(lo kadm.ListedOffset) {
				if lo.Err != nil {
					return
				}
				r.sensor.TrackTPEndOffset(types.TP{Topic: lo.Topic, Partition: lo.Partition}, lo.Offset)
			})
		}
	}
}

func (r *Runtime) onAssigned(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, partitions := range assigned {
		for _, partition := range partitions {
			r.assignment[types.TP{Topic: topic, Partition: partition}] = struct{}{}
		}
	}
}

func (r *Runtime) onRevoked(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
	// Offsets for revoked partitions must be committed before another
	// member picks them up.
	r.commitNow(ctx)
	r.dropAssignment(revoked)
}

func (r *Runtime) onLost(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
	r.dropAssignment(lost)
}

func (r *Runtime) dropAssignment(tps map[string][]int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, partitions := range tps {
		for _, partition := range partitions {
			delete(r.assignment, types.TP{Topic: topic, Partition: partition})
		}
	}
}

// Assignment returns the topic-partitions currently assigned to this member.
func (r *Runtime) Assignment() []types.TP {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.TP, 0, len(r.assignment))
	for tp := range r.assignment {
		out = append(out, tp)
	}
	return out
}

// Flush blocks until buffered produce records are sent or ctx is done.
func (r *Runtime) Flush(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Flush(ctx)
}
