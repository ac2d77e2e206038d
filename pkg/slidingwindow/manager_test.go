package slidingwindow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow/worker"
)

type workerStub struct {
	err error
}

func (w workerStub) Process(_ context.Context, _ uint64) error {
	return w.err
}

var _ worker.Worker = (*workerStub)(nil)

// blockingWorker allows tests to observe when a worker starts and to delay completion.
type blockingWorker struct {
	start chan uint64
	done  chan struct{}
	err   error
}

func (w blockingWorker) Process(_ context.Context, h uint64) error {
	if w.start != nil {
		w.start <- h
	}
	if w.done != nil {
		<-w.done
	}
	return w.err
}

// recordingWorker fails the first failN attempts for each checkpoint in failOn.
type recordingWorker struct {
	mu       sync.Mutex
	attempts map[uint64]int
	failOn   map[uint64]int
}

func (w *recordingWorker) Process(_ context.Context, h uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[h]++
	if w.attempts[h] <= w.failOn[h] {
		return errors.New("transient rpc error")
	}
	return nil
}

var errSynthetic = errors.New("synthetic failure")

func newTestManager(t *testing.T, s *State, w worker.Worker, concurrency, backfill int64, queueCap, maxFailures int) *Manager {
	t.Helper()
	m, err := NewManager(zap.NewNop().Sugar(), s, w, concurrency, backfill, queueCap, maxFailures, nil)
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()
	log := zap.NewNop().Sugar()
	state, err := NewState(0, 0)
	require.NoError(t, err)

	type args struct {
		log         *zap.SugaredLogger
		state       *State
		worker      worker.Worker
		concurrency int64
		backfill    int64
		queueCap    int
		maxFailures int
	}
	valid := args{log: log, state: state, worker: workerStub{}, concurrency: 2, backfill: 1, queueCap: 1, maxFailures: 1}

	tests := []struct {
		name        string
		mutate      func(*args)
		errContains string
	}{
		{name: "valid", mutate: func(*args) {}},
		{name: "nil logger", mutate: func(a *args) { a.log = nil }, errContains: "invalid logger"},
		{name: "nil state", mutate: func(a *args) { a.state = nil }, errContains: "invalid state"},
		{name: "nil worker", mutate: func(a *args) { a.worker = nil }, errContains: "invalid worker"},
		{name: "zero concurrency", mutate: func(a *args) { a.concurrency = 0 }, errContains: "invalid concurrency"},
		{name: "zero backfill", mutate: func(a *args) { a.backfill = 0 }, errContains: "invalid backfill priority"},
		{name: "backfill equals concurrency", mutate: func(a *args) { a.backfill = 2 }, errContains: "invalid backfill priority"},
		{name: "zero queue", mutate: func(a *args) { a.queueCap = 0 }, errContains: "invalid new heights channel capacity"},
		{name: "zero max failures", mutate: func(a *args) { a.maxFailures = 0 }, errContains: "invalid max failures"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := valid
			tt.mutate(&a)
			m, err := NewManager(a.log, a.state, a.worker, a.concurrency, a.backfill, a.queueCap, a.maxFailures, nil)
			if tt.errContains != "" {
				require.ErrorContains(t, err, tt.errContains)
				require.Nil(t, m)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, m)
		})
	}
}

func TestTryAcquireBackfill(t *testing.T) {
	t.Parallel()
	state, err := NewState(0, 0)
	require.NoError(t, err)
	m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)

	require.True(t, m.tryAcquireBackfill())
	require.False(t, m.tryAcquireBackfill(), "backfill permits exhausted")
	require.True(t, m.tryAcquireWorker(), "realtime still has a worker permit")
	require.False(t, m.tryAcquireWorker())

	m.backfillSem.Release(1)
	require.False(t, m.tryAcquireBackfill(), "no worker permit left, backfill permit must be returned")
	require.True(t, m.backfillSem.TryAcquire(1), "backfill permit released on partial acquire")
}

func TestSubmitHeight(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		initial      uint64
		queueCap     int
		submit       []uint64
		wantResults  []bool
		wantHighest  uint64
		wantEnqueued []uint64
	}{
		{
			name: "raises highest and enqueues", initial: 0, queueCap: 2,
			submit: []uint64{1}, wantResults: []bool{true}, wantHighest: 1, wantEnqueued: []uint64{1},
		},
		{
			name: "full queue still raises highest", initial: 0, queueCap: 1,
			submit: []uint64{1, 2}, wantResults: []bool{true, false}, wantHighest: 2, wantEnqueued: []uint64{1},
		},
		{
			name: "stale heights are ignored", initial: 5, queueCap: 2,
			submit: []uint64{3, 5}, wantResults: []bool{false, false}, wantHighest: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			state, err := NewState(0, tt.initial)
			require.NoError(t, err)
			m := newTestManager(t, state, workerStub{}, 2, 1, tt.queueCap, 1)

			var got []bool
			for _, h := range tt.submit {
				got = append(got, m.SubmitHeight(h))
			}
			require.Equal(t, tt.wantResults, got)
			require.Equal(t, tt.wantHighest, state.GetHighest())

			var enqueued []uint64
			for len(m.heightChan) > 0 {
				enqueued = append(enqueued, <-m.heightChan)
			}
			require.Equal(t, tt.wantEnqueued, enqueued)
		})
	}
}

func TestProcess(t *testing.T) {
	t.Parallel()

	t.Run("success marks, advances and releases permits", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(100, 100)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)
		require.True(t, m.tryAcquireBackfill())
		require.True(t, state.TrySetInflight(100))

		m.process(t.Context(), 100, true)

		require.Equal(t, uint64(101), state.GetLowest())
		require.False(t, state.IsInflight(100))
		require.True(t, m.tryAcquireBackfill(), "both permits released")
		require.Len(t, m.workReady, 1)
		require.Empty(t, m.failureChan)
	})

	t.Run("out of order success does not advance", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(10, 12)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)
		require.True(t, m.tryAcquireWorker())
		require.True(t, state.TrySetInflight(11))

		m.process(t.Context(), 11, false)

		require.Equal(t, uint64(10), state.GetLowest())
		require.True(t, state.IsProcessed(11))
	})

	t.Run("realtime path keeps backfill permit", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(10, 12)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)
		require.True(t, m.backfillSem.TryAcquire(1))
		require.True(t, m.tryAcquireWorker())
		require.True(t, state.TrySetInflight(11))

		m.process(t.Context(), 11, false)

		require.False(t, m.backfillSem.TryAcquire(1), "realtime must not release backfill")
	})

	t.Run("worker error signals failure", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(0, 100)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{err: errSynthetic}, 2, 1, 1, 1)
		require.True(t, m.tryAcquireBackfill())
		require.True(t, state.TrySetInflight(100))

		m.process(t.Context(), 100, true)

		require.Equal(t, uint64(0), state.GetLowest())
		require.False(t, state.IsProcessed(100))
		require.Equal(t, uint64(100), <-m.failureChan)
	})

	t.Run("cancelled worker is not counted as failure", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(0, 1)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{err: context.Canceled}, 2, 1, 1, 1)
		require.True(t, m.tryAcquireWorker())
		require.True(t, state.TrySetInflight(1))

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		m.process(ctx, 1, false)

		require.Zero(t, state.GetFailureCount(1))
		require.Empty(t, m.failureChan)
	})

	t.Run("mark processed error counts as failure", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(0, 0)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)
		require.True(t, m.tryAcquireWorker())

		m.process(t.Context(), 100, false)

		require.Equal(t, 1, state.GetFailureCount(100))
		require.Equal(t, uint64(100), <-m.failureChan)
	})
}

func TestHandleNewHeight(t *testing.T) {
	t.Parallel()

	t.Run("yields to backfill while older checkpoints wait", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(5, 10)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)

		m.handleNewHeight(t.Context(), 10)

		require.False(t, state.IsInflight(10))
		require.Len(t, m.workReady, 1)
		require.True(t, m.workerSem.TryAcquire(2), "no worker permit consumed")
	})

	t.Run("dispatches when backfill capacity is exhausted", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(5, 10)
		require.NoError(t, err)
		start := make(chan uint64, 1)
		done := make(chan struct{})
		m := newTestManager(t, state, blockingWorker{start: start, done: done}, 2, 1, 1, 1)
		require.True(t, m.backfillSem.TryAcquire(1))

		m.handleNewHeight(t.Context(), 10)

		select {
		case got := <-start:
			require.Equal(t, uint64(10), got)
		case <-time.After(time.Second):
			require.Fail(t, "timeout waiting for worker to start")
		}
		require.True(t, state.IsInflight(10))
		close(done)
		require.Eventually(t, func() bool { return !state.IsInflight(10) }, time.Second, 5*time.Millisecond)
		require.True(t, state.IsProcessed(10))
	})

	t.Run("skips a checkpoint backfill already holds", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(10, 10)
		require.NoError(t, err)
		core, logs := observer.New(zap.DebugLevel)
		m, err := NewManager(zap.New(core).Sugar(), state, workerStub{}, 2, 1, 1, 1, nil)
		require.NoError(t, err)
		require.True(t, state.TrySetInflight(10))

		m.handleNewHeight(t.Context(), 10)

		require.Equal(t, 1, logs.FilterMessage("realtime checkpoint already claimed by backfill").Len())
		require.True(t, m.workerSem.TryAcquire(2), "no worker permit consumed")
		require.Empty(t, m.workReady)
		require.True(t, state.IsInflight(10))
		require.False(t, state.IsProcessed(10))
	})

	t.Run("drops when no worker capacity", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(50, 100)
		require.NoError(t, err)
		m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)
		require.True(t, m.workerSem.TryAcquire(2))
		defer m.workerSem.Release(2)

		m.handleNewHeight(t.Context(), 50)

		require.False(t, state.IsInflight(50))
	})

	t.Run("claim failure releases worker permit", func(t *testing.T) {
		t.Parallel()
		state, err := NewState(11, 11)
		require.NoError(t, err)
		require.NoError(t, state.MarkProcessed(11))
		m := newTestManager(t, state, workerStub{}, 2, 1, 1, 1)

		m.handleNewHeight(t.Context(), 11)

		require.True(t, m.workerSem.TryAcquire(2))
	})
}

func TestRun_BackfillDrainsWindow(t *testing.T) {
	t.Parallel()
	state, err := NewState(5, 24)
	require.NoError(t, err)
	m := newTestManager(t, state, workerStub{}, 4, 2, 1, 1)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return state.GetLowest() == 25 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestRun_RealtimeAndRetry(t *testing.T) {
	t.Parallel()
	state, err := NewState(0, 0)
	require.NoError(t, err)
	w := &recordingWorker{
		attempts: make(map[uint64]int),
		failOn:   map[uint64]int{2: 2},
	}
	m := newTestManager(t, state, w, 3, 1, 4, 5)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	for h := uint64(1); h <= 4; h++ {
		m.SubmitHeight(h)
	}

	require.Eventually(t, func() bool { return state.GetLowest() == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Equal(t, 3, w.attempts[2], "two failures then success")
	require.Zero(t, state.GetFailureCount(2), "failure count reset after success")
}

func TestRun_FailureThreshold(t *testing.T) {
	t.Parallel()
	state, err := NewState(5, 5)
	require.NoError(t, err)
	m := newTestManager(t, state, workerStub{err: errSynthetic}, 2, 1, 1, 3)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(t.Context()) }()

	select {
	case runErr := <-errCh:
		require.ErrorIs(t, runErr, ErrMaxFailuresExceeded)
		require.ErrorContains(t, runErr, "checkpoint 5")
		require.ErrorContains(t, runErr, "after 3 attempts")
	case <-time.After(3 * time.Second):
		require.Fail(t, "timeout waiting for failure threshold to trigger")
	}
	require.Equal(t, uint64(5), state.GetLowest(), "failed checkpoint is never committed")
}
