package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow"
)

// HeadSource reports the latest checkpoint sequence number known to the node.
type HeadSource interface {
	LatestCheckpoint(ctx context.Context) (uint64, error)
}

// Poller submits the chain tip to the manager at a fixed interval. Sui's
// JSON-RPC API has no head subscription, so polling stands in for one.
type Poller struct {
	log       *zap.SugaredLogger
	source    HeadSource
	interval  time.Duration
	maxErrors int
}

// NewPoller returns a Poller that gives up after maxErrors consecutive failed
// polls.
func NewPoller(log *zap.SugaredLogger, source HeadSource, interval time.Duration, maxErrors int) (*Poller, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if source == nil {
		return nil, errors.New("invalid head source: must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("invalid poll interval: must be greater than 0")
	}
	if maxErrors <= 0 {
		return nil, errors.New("invalid max errors: must be greater than 0")
	}
	return &Poller{
		log:       log,
		source:    source,
		interval:  interval,
		maxErrors: maxErrors,
	}, nil
}

var _ Subscriber = (*Poller)(nil)

// Subscribe is a BLOCKING function. It polls immediately and then on every
// tick, submitting each new tip to the manager. It returns when ctx is done or
// after maxErrors consecutive poll failures.
func (p *Poller) Subscribe(ctx context.Context, manager *slidingwindow.Manager) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	var (
		last     uint64
		failures int
	)
	for {
		latest, err := p.source.LatestCheckpoint(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures++
			p.log.Warnw("failed to poll latest checkpoint", "attempt", failures, "error", err)
			if failures >= p.maxErrors {
				return fmt.Errorf("poll latest checkpoint: %d consecutive failures: %w", failures, err)
			}
		default:
			failures = 0
			if latest > last {
				last = latest
				p.log.Debugw("received new checkpoint from poll", "checkpoint", latest)
				if !manager.SubmitHeight(latest) {
					p.log.Debugw("dropped realtime checkpoint; queued for backfill", "checkpoint", latest)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
