package worker

import (
	"context"
)

// Worker processes one checkpoint. An error counts as a failed attempt; the
// manager retries the checkpoint until its failure limit.
type Worker interface {
	Process(ctx context.Context, sequence uint64) error
}
