package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
)

// Fetcher loads a full checkpoint. *sui.Client implements it.
type Fetcher interface {
	GetCheckpoint(ctx context.Context, seq uint64) (*checkpoint.Checkpoint, error)
}

// CheckpointProcessor handles one fetched checkpoint.
// *processor.CheckpointProcessor implements it.
type CheckpointProcessor interface {
	Process(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// CheckpointWorker is the Worker the sliding window manager runs for every
// checkpoint sequence number: fetch, then process.
type CheckpointWorker struct {
	fetcher   Fetcher
	processor CheckpointProcessor
	log       *zap.SugaredLogger
}

func NewCheckpointWorker(
	fetcher Fetcher,
	processor CheckpointProcessor,
	log *zap.SugaredLogger,
) (*CheckpointWorker, error) {
	if fetcher == nil {
		return nil, errors.New("invalid fetcher: must not be nil")
	}
	if processor == nil {
		return nil, errors.New("invalid processor: must not be nil")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	return &CheckpointWorker{fetcher: fetcher, processor: processor, log: log}, nil
}

func (w *CheckpointWorker) Process(ctx context.Context, height uint64) error {
	cp, err := w.fetcher.GetCheckpoint(ctx, height)
	if err != nil {
		return fmt.Errorf("fetch checkpoint %d: %w", height, err)
	}
	if cp == nil {
		return fmt.Errorf("fetch checkpoint %d: %w", height, checkpoint.ErrNilCheckpoint)
	}
	if cp.Summary.SequenceNumber != height {
		return fmt.Errorf("fetch checkpoint %d: got checkpoint %d", height, cp.Summary.SequenceNumber)
	}

	if err := w.processor.Process(ctx, cp); err != nil {
		return fmt.Errorf("process checkpoint %d: %w", height, err)
	}

	w.log.Debugw("processed checkpoint",
		"checkpoint", height,
		"digest", cp.Summary.Digest,
		"txs", len(cp.Transactions),
	)
	return nil
}
