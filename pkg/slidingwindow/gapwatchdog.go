package slidingwindow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// stallTicks is how many consecutive ticks lowest may stay put, with work
// pending, before the watchdog reports a stall.
const stallTicks = 10

// StartGapWatchdog periodically logs when the window grows past maxGap or the
// lowest unprocessed checkpoint stops advancing. It blocks until ctx is done.
func StartGapWatchdog(ctx context.Context, log *zap.SugaredLogger, s *State, interval time.Duration, maxGap uint64) {
	t := time.NewTicker(interval)
	defer t.Stop()

	var (
		lastLowest = s.GetLowest()
		unchanged  int
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			lowest, highest := s.Window()
			// lowest == highest+1 means the window is drained.
			var gap uint64
			if highest >= lowest {
				gap = highest - lowest + 1
			}
			if gap > maxGap {
				log.Warnw("gap too large", "gap", gap, "highest", highest, "lowest", lowest)
			}

			if lowest != lastLowest || gap == 0 {
				lastLowest = lowest
				unchanged = 0
				continue
			}
			unchanged++
			if unchanged == stallTicks {
				log.Warnw("lowest unprocessed checkpoint stalled",
					"lowest", lowest,
					"highest", highest,
					"failures", s.GetFailureCount(lowest),
					"stalledFor", time.Duration(stallTicks)*interval,
				)
			}
		}
	}
}
