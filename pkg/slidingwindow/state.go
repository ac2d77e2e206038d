package slidingwindow

import (
	"fmt"
	"sync"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
)

// State is a thread-safe in-memory store for the sliding window: the lowest
// unprocessed and highest known checkpoint, plus the processed and in-flight
// sets inside [lowest..highest].
type State struct {
	mu         sync.Mutex
	lowest     uint64
	highest    uint64
	processed  map[uint64]struct{}
	inflight   map[uint64]struct{}
	failCounts map[uint64]int

	metrics *metrics.Metrics
}

type StateOption func(*State)

// WithMetrics reports window movements to m.
func WithMetrics(m *metrics.Metrics) StateOption {
	return func(s *State) { s.metrics = m }
}

// NewState creates a State over [initialLowest..initialHighest]. An empty
// window (initialHighest == initialLowest-1) is allowed so that a start point
// beyond the current chain tip can wait for the tip to catch up.
func NewState(initialLowest, initialHighest uint64, opts ...StateOption) (*State, error) {
	if initialLowest > 0 && initialHighest < initialLowest-1 {
		return nil, fmt.Errorf(
			"invalid initial watermarks: highest < lowest: %d < %d",
			initialHighest,
			initialLowest,
		)
	}
	s := &State{
		lowest:     initialLowest,
		highest:    initialHighest,
		processed:  make(map[uint64]struct{}),
		inflight:   make(map[uint64]struct{}),
		failCounts: make(map[uint64]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.UpdateWindowMetrics(s.lowest, s.highest, 0)
	return s, nil
}

// GetLowest returns the lowest unprocessed checkpoint.
func (s *State) GetLowest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lowest
}

// GetHighest returns the highest known checkpoint.
func (s *State) GetHighest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highest
}

// Window returns lowest and highest read under one lock.
func (s *State) Window() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lowest, s.highest
}

// SetHighest raises the highest known checkpoint. It returns false and leaves
// the state unchanged unless newHighest is strictly greater than the current
// highest.
func (s *State) SetHighest(newHighest uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if newHighest <= s.highest {
		return false
	}
	s.highest = newHighest
	s.metrics.UpdateWindowMetrics(s.lowest, s.highest, len(s.processed))
	return true
}

// MarkProcessed records h as processed. Checkpoints below lowest are already
// committed and are accepted as a no-op.
func (s *State) MarkProcessed(h uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h < s.lowest {
		return nil
	}
	if h > s.highest {
		s.metrics.IncError(metrics.ErrTypeOutOfWindow)
		return fmt.Errorf("invalid checkpoint: %d is greater than highest %d", h, s.highest)
	}
	s.processed[h] = struct{}{}
	return nil
}

// IsProcessed reports whether h is processed. Checkpoints below lowest are
// committed and therefore processed.
func (s *State) IsProcessed(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isProcessedLocked(h)
}

func (s *State) isProcessedLocked(h uint64) bool {
	if h < s.lowest {
		return true
	}
	_, ok := s.processed[h]
	return ok
}

// AdvanceLowest slides lowest forward over contiguous processed checkpoints.
// It returns the new lowest and whether it moved. Idempotent.
func (s *State) AdvanceLowest() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	original := s.lowest
	for s.lowest <= s.highest {
		if _, ok := s.processed[s.lowest]; !ok {
			break
		}
		delete(s.processed, s.lowest)
		s.lowest++
	}
	if s.lowest == original {
		return s.lowest, false
	}
	s.metrics.CommitCheckpoints(s.lowest-original, s.lowest, s.highest, len(s.processed))
	return s.lowest, true
}

func (s *State) GetFailureCount(h uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failCounts[h]
}

// IncrementFailureCount returns the new failure count for h.
func (s *State) IncrementFailureCount(h uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCounts[h]++
	return s.failCounts[h]
}

func (s *State) ResetFailureCount(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failCounts, h)
}

// IsInflight reports whether a worker currently holds h.
func (s *State) IsInflight(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[h]
	return ok
}

// TrySetInflight claims h for processing. It fails if h is outside the window,
// already processed or already claimed.
func (s *State) TrySetInflight(h uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h < s.lowest || h > s.highest {
		return false
	}
	if s.isProcessedLocked(h) {
		return false
	}
	if _, ok := s.inflight[h]; ok {
		return false
	}
	s.inflight[h] = struct{}{}
	return true
}

func (s *State) UnsetInflight(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, h)
}

// FindNextUnclaimedHeight returns the lowest checkpoint in the window that is
// neither processed nor in flight.
func (s *State) FindNextUnclaimedHeight() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextUnclaimedLocked()
}

// FindAndSetNextInflight finds and claims the next unclaimed checkpoint in one
// step.
func (s *State) FindAndSetNextInflight() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.nextUnclaimedLocked()
	if !ok {
		return 0, false
	}
	s.inflight[h] = struct{}{}
	return h, true
}

func (s *State) nextUnclaimedLocked() (uint64, bool) {
	for h := s.lowest; h <= s.highest; h++ {
		if _, ok := s.processed[h]; ok {
			continue
		}
		if _, ok := s.inflight[h]; ok {
			continue
		}
		return h, true
	}
	return 0, false
}
