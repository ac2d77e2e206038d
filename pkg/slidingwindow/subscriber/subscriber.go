package subscriber

import (
	"context"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow"
)

// Subscriber feeds newly published checkpoints into a manager until ctx is
// done or it gives up.
type Subscriber interface {
	Subscribe(ctx context.Context, manager *slidingwindow.Manager) error
}
