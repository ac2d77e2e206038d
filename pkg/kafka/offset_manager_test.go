package kafka

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func createLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// fakeCommitter echoes the requested partitions as committed and reports
// watermarks [low, high].
type fakeCommitter struct {
	mu        sync.Mutex
	low, high int64
	commitErr error
	commits   []kafka.TopicPartition
}

func (f *fakeCommitter) CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	f.commits = append(f.commits, offsets...)
	return offsets, nil
}

func (f *fakeCommitter) Committed(partitions []kafka.TopicPartition, _ int) ([]kafka.TopicPartition, error) {
	return partitions, nil
}

func (f *fakeCommitter) QueryWatermarkOffsets(string, int32, int) (int64, int64, error) {
	return f.low, f.high, nil
}

func (f *fakeCommitter) committed() []kafka.TopicPartition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.TopicPartition(nil), f.commits...)
}

// partitionView is one partition's state copied under the manager's lock, so
// tests can inspect it while the commit loop runs.
type partitionView struct {
	assigned      bool
	lastCommitted kafka.Offset
	window        []kafka.Offset
}

func viewPartition(om *OffsetManager, partition int32) partitionView {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	st, ok := om.partitionStates[partition]
	if !ok {
		return partitionView{}
	}
	v := partitionView{assigned: true, lastCommitted: st.lastCommitted}
	for _, tp := range st.window {
		v.window = append(v.window, tp.Offset)
	}
	return v
}

func assignedPartitions(om *OffsetManager) int {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	return len(om.partitionStates)
}

// requireCommitted waits for the commit loop to reach lastCommitted with the
// given offsets still pending.
func requireCommitted(t *testing.T, om *OffsetManager, partition int32, lastCommitted kafka.Offset, pending ...kafka.Offset) {
	t.Helper()
	require.Eventually(t, func() bool {
		v := viewPartition(om, partition)
		return v.assigned && v.lastCommitted == lastCommitted && slices.Equal(v.window, pending)
	}, time.Second, 5*time.Millisecond, "partition %d: want committed %d pending %v",
		partition, lastCommitted, pending)
}

func insertOffsets(t *testing.T, om *OffsetManager, partition int32, offsets ...kafka.Offset) {
	t.Helper()
	for _, o := range offsets {
		require.NoError(t, om.InsertOffset(t.Context(), kafka.TopicPartition{Partition: partition, Offset: o}))
	}
}

func assign(t *testing.T, om *OffsetManager, partitions ...kafka.TopicPartition) {
	t.Helper()
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{Partitions: partitions}))
}

func revoke(t *testing.T, om *OffsetManager, partition int32) {
	t.Helper()
	require.NoError(t, om.RebalanceCb(nil, kafka.RevokedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: partition}},
	}))
}

// Out of order inserts starting at offset 0 commit up to the first gap.
func TestOffsetManager_UnorderedInsertsCommitContiguousRun(t *testing.T) {
	t.Parallel()
	om := NewOffsetManager(t.Context(), &fakeCommitter{high: 100}, 10*time.Millisecond, "latest", createLogger(t))
	assign(t, om, kafka.TopicPartition{Partition: 0, Offset: 0})

	insertOffsets(t, om, 0, 20, 3, 1, 0, 2)

	requireCommitted(t, om, 0, 3, 20)
}

// Offsets at or below the committed one are dropped once the run passes them.
func TestOffsetManager_OrderedInsertsAcrossTicks(t *testing.T) {
	t.Parallel()
	om := NewOffsetManager(t.Context(), &fakeCommitter{high: 100}, 10*time.Millisecond, "latest", createLogger(t))
	assign(t, om, kafka.TopicPartition{Partition: 1, Offset: 3})

	insertOffsets(t, om, 1, 0, 2, 3, 4)
	requireCommitted(t, om, 1, 4)

	insertOffsets(t, om, 1, 5, 6)
	requireCommitted(t, om, 1, 6)
}

func TestOffsetManager_GapHoldsCommitUntilFilled(t *testing.T) {
	t.Parallel()
	om := NewOffsetManager(t.Context(), &fakeCommitter{high: 100}, 10*time.Millisecond, "latest", createLogger(t))
	assign(t, om, kafka.TopicPartition{Partition: 2, Offset: 0})

	insertOffsets(t, om, 2, 3, 4, 5)
	time.Sleep(30 * time.Millisecond)
	v := viewPartition(om, 2)
	require.Equal(t, kafka.Offset(0), v.lastCommitted)
	require.Equal(t, []kafka.Offset{3, 4, 5}, v.window)

	insertOffsets(t, om, 2, 2)
	insertOffsets(t, om, 2, 1)
	requireCommitted(t, om, 2, 5)
}

func TestOffsetManager_PartitionsCommitIndependently(t *testing.T) {
	t.Parallel()
	om := NewOffsetManager(t.Context(), &fakeCommitter{high: 100}, 10*time.Millisecond, "latest", createLogger(t))
	assign(t, om,
		kafka.TopicPartition{Partition: 0, Offset: 0},
		kafka.TopicPartition{Partition: 3, Offset: 5},
	)

	insertOffsets(t, om, 0, 0, 1, 2, 3)
	insertOffsets(t, om, 3, 3, 4, 5, 6)

	requireCommitted(t, om, 0, 3)
	requireCommitted(t, om, 3, 6)
}

// A second assignment leaves existing partitions alone; revoked partitions
// ignore late inserts.
func TestOffsetManager_Rebalance(t *testing.T) {
	t.Parallel()
	om := NewOffsetManager(t.Context(), &fakeCommitter{high: 100}, 10*time.Millisecond, "latest", createLogger(t))
	assign(t, om, kafka.TopicPartition{Partition: 0, Offset: 0})
	insertOffsets(t, om, 0, 0, 1, 2)
	requireCommitted(t, om, 0, 2)

	assign(t, om, kafka.TopicPartition{Partition: 3, Offset: 5})
	require.Equal(t, kafka.Offset(2), viewPartition(om, 0).lastCommitted)
	require.Equal(t, kafka.Offset(5), viewPartition(om, 3).lastCommitted)

	insertOffsets(t, om, 3, 5, 6)
	revoke(t, om, 0)
	requireCommitted(t, om, 3, 6)

	insertOffsets(t, om, 0, 8)
	require.False(t, viewPartition(om, 0).assigned)
	require.Equal(t, 1, assignedPartitions(om))

	revoke(t, om, 3)
	require.Zero(t, assignedPartitions(om))
}

func TestCommitsAreSentToBroker(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	fc := &fakeCommitter{high: 100}
	om := NewOffsetManager(ctx, fc, 10*time.Millisecond, "earliest", createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: 0, Offset: 9}},
	}))

	require.NoError(t, om.InsertOffset(ctx, kafka.TopicPartition{Partition: 0, Offset: 10}))
	require.NoError(t, om.InsertOffset(ctx, kafka.TopicPartition{Partition: 0, Offset: 11}))

	require.Eventually(t, func() bool {
		c := fc.committed()
		return len(c) > 0 && c[len(c)-1].Offset == 11
	}, time.Second, 5*time.Millisecond)
}

func TestStoredOffsetBelowLowWatermarkIsInvalidated(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	om := NewOffsetManager(ctx, &fakeCommitter{low: 50, high: 100}, time.Hour, "earliest", createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: 4, Offset: 10}},
	}))
	require.Equal(t, kafka.OffsetInvalid, viewPartition(om, 4).lastCommitted)

	// The first processed message anchors the window.
	require.NoError(t, om.InsertOffset(ctx, kafka.TopicPartition{Partition: 4, Offset: 61}))
	require.Equal(t, kafka.Offset(60), viewPartition(om, 4).lastCommitted)
}

func TestCommitFailureKeepsWindow(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	om := NewOffsetManager(ctx, &fakeCommitter{high: 100, commitErr: errors.New("broker down")}, time.Hour, "latest", createLogger(t))
	require.NoError(t, om.RebalanceCb(nil, kafka.AssignedPartitions{
		Partitions: []kafka.TopicPartition{{Partition: 0, Offset: 0}},
	}))
	require.NoError(t, om.InsertOffset(ctx, kafka.TopicPartition{Partition: 0, Offset: 1}))

	om.commitLatestValidOffsets()

	v := viewPartition(om, 0)
	require.Equal(t, kafka.Offset(0), v.lastCommitted)
	require.Equal(t, []kafka.Offset{1}, v.window)
}

func TestInsertOffset_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	om := NewOffsetManager(ctx, &fakeCommitter{high: 100}, time.Hour, "latest", createLogger(t))
	cancel()
	require.ErrorIs(t, om.InsertOffset(ctx, kafka.TopicPartition{Partition: 0, Offset: 1}), context.Canceled)
}
