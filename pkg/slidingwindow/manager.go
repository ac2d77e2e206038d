package slidingwindow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrMaxFailuresExceeded is returned by Run when one checkpoint keeps failing.
var ErrMaxFailuresExceeded = errors.New("max failures exceeded")

type Manager struct {
	log     *zap.SugaredLogger
	state   *State
	worker  worker.Worker
	metrics *metrics.Metrics

	// Limits total concurrent workers (both realtime and backfill).
	workerSem *semaphore.Weighted
	// Caps how many of the concurrent workers may be backfill tasks.
	backfillSem *semaphore.Weighted

	// Input for new heights (send-only by callers).
	heightChan chan uint64
	// Wake-up signal to re-run scheduling; buffered (size 1) to coalesce signals.
	workReady chan struct{}

	// Failure threshold for a checkpoint; when reached the manager stops.
	maxFailures int
	failureChan chan uint64
}

// NewManager returns an error if arguments are invalid.
// Constraints: concurrency>0; 0<backfillPriority<concurrency; heightChanCapacity>0; maxFailures>0.
// m may be nil.
func NewManager(
	log *zap.SugaredLogger,
	s *State,
	w worker.Worker,
	concurrency, backfillPriority int64,
	heightChanCapacity, maxFailures int,
	m *metrics.Metrics,
) (*Manager, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if s == nil {
		return nil, errors.New("invalid state: must not be nil")
	}
	if w == nil {
		return nil, errors.New("invalid worker: must not be nil")
	}
	if concurrency <= 0 {
		return nil, errors.New("invalid concurrency: must be greater than 0")
	}
	if backfillPriority <= 0 || backfillPriority >= concurrency {
		return nil, errors.New(
			"invalid backfill priority: must be greater than 0 and less than concurrency",
		)
	}
	if heightChanCapacity <= 0 {
		return nil, errors.New("invalid new heights channel capacity: must be greater than 0")
	}
	if maxFailures <= 0 {
		return nil, errors.New("invalid max failures: must be greater than 0")
	}

	return &Manager{
		log:         log,
		state:       s,
		worker:      w,
		metrics:     m,
		workerSem:   semaphore.NewWeighted(concurrency),
		backfillSem: semaphore.NewWeighted(backfillPriority),
		heightChan:  make(chan uint64, heightChanCapacity),
		workReady:   make(chan struct{}, 1),
		maxFailures: maxFailures,
		failureChan: make(chan uint64, 1),
	}, nil
}

// SubmitHeight raises the highest known checkpoint to h and queues h for
// low-latency processing. It returns false when h is not new or the queue is
// full; in the latter case backfill still picks h up from the window.
func (m *Manager) SubmitHeight(h uint64) bool {
	if !m.state.SetHighest(h) {
		return false
	}
	select {
	case m.heightChan <- h:
		return true
	default:
		return false
	}
}

// Run executes the scheduling loop. Backfill work over [lowest..highest] and
// realtime heights share the worker pool; backfill is capped at
// backfillPriority permits.
//
// It returns when ctx is done or when one checkpoint reaches maxFailures.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		// Aggressive backfill fill (non-blocking)
		for m.tryAcquireBackfill() {
			next, ok := m.state.FindAndSetNextInflight()
			if !ok {
				m.backfillSem.Release(1)
				m.workerSem.Release(1)
				break
			}
			go m.process(ctx, next, true)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case h := <-m.failureChan:
			m.metrics.IncError(metrics.ErrTypeMaxFailures)
			return fmt.Errorf(
				"%w for checkpoint %d, failed after %d attempts",
				ErrMaxFailuresExceeded,
				h,
				m.state.GetFailureCount(h),
			)
		case h := <-m.heightChan:
			m.handleNewHeight(ctx, h)
		case <-m.workReady:
			// A worker finished or watermarks changed; loop restarts
		}
	}
}

// handleNewHeight dispatches a realtime checkpoint when a worker slot is free.
// While older checkpoints are still waiting and backfill has spare capacity it
// yields, so the ordered commit point keeps moving. Otherwise a height that
// cannot be dispatched is dropped; backfill picks it up from the window.
func (m *Manager) handleNewHeight(ctx context.Context, h uint64) {
	if m.state.IsInflight(h) {
		m.log.Debugw("realtime checkpoint already claimed by backfill", "checkpoint", h)
		return
	}
	if next, ok := m.state.FindNextUnclaimedHeight(); ok && next < h {
		if m.backfillSem.TryAcquire(1) {
			m.backfillSem.Release(1)
			m.signalWorkReady()
			return
		}
	}

	if !m.tryAcquireWorker() {
		return
	}
	if !m.state.TrySetInflight(h) {
		m.workerSem.Release(1)
		return
	}
	go m.process(ctx, h, false)
}

// process runs the worker for h and releases the permits acquired for it.
func (m *Manager) process(ctx context.Context, h uint64, isBackfill bool) {
	defer func() {
		if isBackfill {
			m.backfillSem.Release(1)
		}
		m.workerSem.Release(1)
		m.state.UnsetInflight(h)
		m.signalWorkReady()
	}()

	if err := m.worker.Process(ctx, h); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warnw("failed processing checkpoint", "checkpoint", h, "error", err)
		m.handleFailure(h)
		return
	}

	if err := m.state.MarkProcessed(h); err != nil {
		m.log.Warnw("failed to mark processed", "checkpoint", h, "error", err)
		m.handleFailure(h)
		return
	}
	if lowest, advanced := m.state.AdvanceLowest(); advanced {
		m.log.Debugw("advanced lowest unprocessed checkpoint", "lowest", lowest)
	}
	m.state.ResetFailureCount(h)
}

// handleFailure signals Run once the failure count for h reaches maxFailures.
func (m *Manager) handleFailure(h uint64) {
	m.metrics.IncError(metrics.ErrTypeWorkerFailure)
	if m.state.IncrementFailureCount(h) >= m.maxFailures {
		select {
		case m.failureChan <- h:
		default:
		}
	}
}

// tryAcquireBackfill acquires a backfill permit and a worker permit, or neither.
func (m *Manager) tryAcquireBackfill() bool {
	if !m.backfillSem.TryAcquire(1) {
		return false
	}
	if !m.workerSem.TryAcquire(1) {
		m.backfillSem.Release(1)
		return false
	}
	return true
}

// tryAcquireWorker acquires only a worker permit (realtime path).
func (m *Manager) tryAcquireWorker() bool {
	return m.workerSem.TryAcquire(1)
}

func (m *Manager) signalWorkReady() {
	select {
	case m.workReady <- struct{}{}:
	default:
	}
}
