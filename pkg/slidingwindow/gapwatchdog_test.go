package slidingwindow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func runWatchdog(t *testing.T, s *State, maxGap uint64, wait time.Duration) *observer.ObservedLogs {
	t.Helper()
	core, recorded := observer.New(zap.WarnLevel)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		StartGapWatchdog(ctx, zap.New(core).Sugar(), s, 2*time.Millisecond, maxGap)
		close(done)
	}()
	time.Sleep(wait)
	cancel()
	<-done
	return recorded
}

func TestStartGapWatchdog_WarnsOnLargeGap(t *testing.T) {
	t.Parallel()
	state, err := NewState(10, 25)
	require.NoError(t, err)

	recorded := runWatchdog(t, state, 5, 30*time.Millisecond)
	require.NotZero(t, recorded.FilterMessage("gap too large").Len())
}

func TestStartGapWatchdog_DrainedWindowIsQuiet(t *testing.T) {
	t.Parallel()
	state, err := NewState(10, 10)
	require.NoError(t, err)
	require.NoError(t, state.MarkProcessed(10))
	_, advanced := state.AdvanceLowest()
	require.True(t, advanced)

	recorded := runWatchdog(t, state, 0, 40*time.Millisecond)
	require.Zero(t, recorded.Len(), "an empty window is neither a gap nor a stall")
}

func TestStartGapWatchdog_WarnsOnStall(t *testing.T) {
	t.Parallel()
	state, err := NewState(10, 12)
	require.NoError(t, err)
	state.IncrementFailureCount(10)

	recorded := runWatchdog(t, state, 100, 150*time.Millisecond)
	stalls := recorded.FilterMessage("lowest unprocessed checkpoint stalled").All()
	require.Len(t, stalls, 1, "a stall is reported once until lowest moves")
	require.Equal(t, int64(1), stalls[0].ContextMap()["failures"])
}
