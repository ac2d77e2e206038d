// Package slidingwindow schedules checkpoint processing over a window of
// sequence numbers. Historical checkpoints (backfill) and newly published ones
// (realtime) share one bounded worker pool, and no checkpoint is handed to two
// workers at once.
//
// The window is [lowest..highest], inclusive:
//   - lowest is the lowest checkpoint not yet processed. Everything below it
//     is done, which makes it the resume point persisted by the checkpointer.
//   - highest is the newest checkpoint known to exist. It only grows.
//
// An empty window (highest == lowest-1) is valid; it is what a fetcher
// starting at the chain tip begins with.
//
// State holds the watermarks, the processed and inflight sets and per
// checkpoint failure counts behind one mutex. Manager owns the scheduling:
//   - Backfill scans the window for the next checkpoint that is neither
//     processed nor inflight and dispatches it while a backfill permit and a
//     worker permit are both available. backfillPriority caps backfill below
//     the total concurrency so realtime always has room.
//   - SubmitHeight raises highest and queues the checkpoint for low-latency
//     dispatch. While older checkpoints are still waiting and backfill has
//     spare permits, realtime yields to them. A checkpoint that cannot be
//     dispatched is not lost; backfill finds it in the window.
//
// After a worker succeeds the checkpoint is marked processed and lowest slides
// over any contiguous processed run. A failure increments the checkpoint's
// failure count; at maxFailures Run returns ErrMaxFailuresExceeded and cancels
// every in-flight worker.
//
// StartGapWatchdog logs when highest-lowest grows past a threshold, which
// usually means one checkpoint keeps failing while the tip moves on.
package slidingwindow
