package kafka

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	// Default suggested Offset Manager parameters
	OffsetManagerCommitInterval  = 5 * time.Second
	OffsetManagerAutoOffsetReset = "latest"

	WindowLengthWarningThreshold = 10000

	brokerQueryTimeoutMs = 5000
)

// offsetCommitter is the part of *kafka.Consumer the OffsetManager talks to.
type offsetCommitter interface {
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
	Committed(partitions []kafka.TopicPartition, timeoutMs int) ([]kafka.TopicPartition, error)
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (low, high int64, err error)
}

type offsetState struct {
	window        []kafka.TopicPartition
	lastCommitted kafka.Offset
}

/*
OffsetManager is a thread-safe, in-memory sliding window of processed offsets
per assigned partition. It gives the ticket consumer "at least once" delivery
while messages are processed concurrently and finish out of order. One
OffsetManager serves a single topic subscription.

Every commit interval, the manager scans each partition's window from
lastCommitted and commits the end of the contiguous run it finds.

Workers call InsertOffset (or InsertOffsetWithRetry) once a message is done.
The window is unbounded; above WindowLengthWarningThreshold entries it logs a
warning, which usually means one message is stuck.
*/
type OffsetManager struct {
	consumer        offsetCommitter
	autoOffsetReset string                 // auto.offset.reset config: "earliest" or "latest"
	partitionStates map[int32]*offsetState // map of offset states for each assigned partition
	mutex           sync.Mutex
	log             *zap.SugaredLogger
}

// NewOffsetManager starts the commit loop; it stops when ctx is done.
func NewOffsetManager(
	ctx context.Context,
	consumer offsetCommitter,
	interval time.Duration,
	autoOffsetReset string,
	log *zap.SugaredLogger,
) *OffsetManager {
	om := &OffsetManager{
		consumer:        consumer,
		autoOffsetReset: autoOffsetReset,
		partitionStates: make(map[int32]*offsetState),
		log:             log,
	}
	go om.managerLoop(ctx, interval)
	return om
}

func (om *OffsetManager) managerLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			om.commitLatestValidOffsets()
		case <-ctx.Done():
			return
		}
	}
}

// commitLatestValidOffsets commits, per partition, the last offset of the
// contiguous run that starts right after lastCommitted, then truncates the
// window.
func (om *OffsetManager) commitLatestValidOffsets() {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	for partition, state := range om.partitionStates {
		window := state.window
		lastCommitted := state.lastCommitted
		if len(window) == 0 {
			continue
		}

		if window[0].Offset <= lastCommitted+1 {
			end := 0
			for i := 1; i < len(window); i++ {
				// Dangling offsets at or below lastCommitted show up when a new
				// group starts with auto.offset.reset=latest while the topic is
				// being written. See InsertOffset.
				if window[i].Offset <= lastCommitted {
					end = i
					continue
				}
				if window[i].Offset != window[i-1].Offset+1 {
					break
				}
				end = i
			}

			if _, err := om.consumer.CommitOffsets([]kafka.TopicPartition{window[end]}); err != nil {
				om.log.Errorw("failed to commit offsets", "partition", partition, "error", err)
				return
			}

			om.log.Debugw("committed offset", "partition", partition, "offset", window[end].Offset)
			om.partitionStates[partition] = &offsetState{
				window:        slices.Clone(window[end+1:]),
				lastCommitted: window[end].Offset,
			}
		}

		if n := len(om.partitionStates[partition].window); n > WindowLengthWarningThreshold {
			om.log.Warnw("partition offset window is large", "partition", partition, "length", n)
		}
	}
}

// InsertOffset adds an offset to commit to the window of offset.Partition.
// offset.Offset must be one past the processed message, i.e.
// message.TopicPartition.Offset+1, as Kafka commits the next offset to read.
// See https://github.com/confluentinc/confluent-kafka-go/issues/350
//
// Offsets for partitions not currently assigned are dropped.
func (om *OffsetManager) InsertOffset(ctx context.Context, offset kafka.TopicPartition) error {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	state := om.partitionStates[offset.Partition]
	if state == nil {
		om.log.Warnw("offset for unassigned partition, ignoring", "partition", offset.Partition)
		return nil
	}

	// Without a usable stored offset, the first processed message anchors the
	// window. It does not need to be the first one fetched.
	if state.lastCommitted < 0 {
		state.lastCommitted = offset.Offset - 1
		om.log.Infow("initialized partition offset", "partition", offset.Partition, "lastCommitted", state.lastCommitted)
	}

	window := state.window
	i := sort.Search(len(window), func(j int) bool { return window[j].Offset >= offset.Offset })
	if i < len(window) && window[i].Offset == offset.Offset {
		return nil
	}
	state.window = slices.Insert(window, i, offset)
	return nil
}

// InsertOffsetWithRetry records msg as processed, retrying until it succeeds
// or ctx is done.
func (om *OffsetManager) InsertOffsetWithRetry(ctx context.Context, msg *kafka.Message) {
	for {
		err := om.InsertOffset(ctx, kafka.TopicPartition{
			Topic:     msg.TopicPartition.Topic,
			Partition: msg.TopicPartition.Partition,
			Offset:    msg.TopicPartition.Offset + 1,
		})
		if err == nil || ctx.Err() != nil {
			return
		}
		om.log.Errorw("retrying InsertOffset", "error", err)
		time.Sleep(200 * time.Millisecond)
	}
}

// RebalanceCb resets partition states on assignment and revocation. The
// consumer's rebalance callback must forward every event here.
func (om *OffsetManager) RebalanceCb(_ *kafka.Consumer, event kafka.Event) error {
	om.mutex.Lock()
	defer om.mutex.Unlock()

	switch ev := event.(type) {
	case kafka.AssignedPartitions:
		// Offsets in the event are often kafka.OffsetInvalid when joining an
		// idle group, so ask the broker for what is committed.
		committed, err := om.consumer.Committed(ev.Partitions, brokerQueryTimeoutMs)
		if err != nil {
			return fmt.Errorf("failed to get committed offsets: %w", err)
		}

		for _, co := range committed {
			state := &offsetState{window: []kafka.TopicPartition{}, lastCommitted: co.Offset}
			om.partitionStates[co.Partition] = state

			var topic string
			if co.Topic != nil {
				topic = *co.Topic
			}
			low, high, err := om.consumer.QueryWatermarkOffsets(topic, co.Partition, brokerQueryTimeoutMs)
			if err != nil {
				return fmt.Errorf("query watermark offsets for partition %d: %w", co.Partition, err)
			}

			// A stored offset below the retention low watermark makes
			// librdkafka fall back to auto.offset.reset, so the first
			// processed message picks the starting point instead.
			if co.Offset < 0 || co.Offset < kafka.Offset(low) {
				state.lastCommitted = kafka.OffsetInvalid
			}

			om.log.Infow("partition assigned",
				"partition", co.Partition,
				"lastCommitted", state.lastCommitted,
				"low", low,
				"high", high,
				"autoOffsetReset", om.autoOffsetReset,
			)
		}
	case kafka.RevokedPartitions:
		partitions := make([]int32, 0, len(ev.Partitions))
		for _, p := range ev.Partitions {
			partitions = append(partitions, p.Partition)
			delete(om.partitionStates, p.Partition)
		}
		om.log.Infow("partitions revoked, dropping offset state", "partitions", partitions)
	default:
		om.log.Warnw("unknown rebalance event", "event", event)
	}
	return nil
}
