package sink

import (
	"context"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
)

// Multi fans every call out to its sinks in order and stops at the first
// error.
type Multi []processor.Sink

func (m Multi) RecordDecoded(ctx context.Context, ev processor.DecodedEvent) error {
	for _, s := range m {
		if err := s.RecordDecoded(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) DecodeFailed(ctx context.Context, ev processor.FailedEvent) error {
	for _, s := range m {
		if err := s.DecodeFailed(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) CheckpointProcessed(ctx context.Context, summary checkpoint.Summary, stats processor.Stats) error {
	for _, s := range m {
		if err := s.CheckpointProcessed(ctx, summary, stats); err != nil {
			return err
		}
	}
	return nil
}
