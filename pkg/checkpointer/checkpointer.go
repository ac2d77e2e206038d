package checkpointer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow"
)

// Checkpointer abstracts checkpoint persistence across data stores. A
// checkpoint is the lowest unprocessed checkpoint sequence number of a chain,
// which is where indexing resumes after a restart.
type Checkpointer interface {
	// Initialize prepares the storage (tables, schemas). Idempotent.
	Initialize(ctx context.Context) error

	// Write persists lowestUnprocessed for chain.
	Write(ctx context.Context, chain string, lowestUnprocessed uint64) error

	// Read returns the persisted value for chain and whether one exists.
	Read(ctx context.Context, chain string) (lowestUnprocessed uint64, exists bool, err error)
}

// Start periodically persists the lowest unprocessed checkpoint of s. When ctx
// is cancelled it makes one final write, bounded by cfg.WriteTimeout, so a
// restart resumes from the latest committed position.
//
// Returns nil on graceful shutdown, or an error if a periodic write fails after
// all retries. m may be nil.
func Start(
	ctx context.Context,
	log *zap.SugaredLogger,
	s *slidingwindow.State,
	checkpointer Checkpointer,
	cfg Config,
	chain string,
	m *metrics.Metrics,
) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	t := time.NewTicker(cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			lowest := s.GetLowest()
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.WriteTimeout)
			err := checkpointer.Write(writeCtx, chain, lowest)
			cancel()
			m.RecordCheckpointPersisted(lowest, err)
			if err != nil {
				log.Warnw("failed to write shutdown checkpoint", "lowest", lowest, "error", err)
			} else {
				log.Infow("wrote shutdown checkpoint", "lowest", lowest)
			}
			return nil

		case <-t.C:
			lowest := s.GetLowest()
			err := writeWithRetry(ctx, checkpointer, cfg, chain, lowest)
			if ctx.Err() != nil {
				continue
			}
			m.RecordCheckpointPersisted(lowest, err)
			if err != nil {
				return fmt.Errorf("failed to write checkpoint (lowest: %d) after %d attempts: %w",
					lowest, cfg.MaxRetries+1, err)
			}
			log.Debugw("wrote checkpoint", "chain", chain, "lowest", lowest)
		}
	}
}

func writeWithRetry(
	ctx context.Context,
	checkpointer Checkpointer,
	cfg Config,
	chain string,
	lowest uint64,
) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		lastErr = checkpointer.Write(writeCtx, chain, lowest)
		cancel()
		if lastErr == nil || ctx.Err() != nil {
			return lastErr
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
