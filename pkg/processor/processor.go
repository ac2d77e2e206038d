// Package processor implements the per-checkpoint unit of work: it walks a
// checkpoint with the extractor, hands decoded records to a Sink and reports
// decode failures without failing the checkpoint.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/events"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/extractor"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"go.uber.org/zap"
)

// ErrInvalidCheckpoint is returned when the checkpoint itself is malformed.
// Decode failures of individual events never produce it.
var ErrInvalidCheckpoint = errors.New("invalid checkpoint")

// Tracker selects and decodes the tracked event types. *events.Registry
// implements it.
type Tracker interface {
	extractor.Matcher
	extractor.Decoder
}

// DecodedEvent is a record together with its position in the chain.
type DecodedEvent struct {
	Checkpoint checkpoint.Summary
	TxDigest   string
	TxIndex    int
	EventIndex int
	Event      *checkpoint.Event
	Record     events.Record
}

// FailedEvent describes a tracked event whose contents could not be decoded.
type FailedEvent struct {
	Checkpoint checkpoint.Summary
	TxDigest   string
	TxIndex    int
	EventIndex int
	TypeName   string
	Err        error
}

// Stats summarises one Process call.
type Stats struct {
	Transactions int
	Decoded      int
	Failed       int
}

// Sink receives the output of a checkpoint walk. Calls for one checkpoint are
// made sequentially and in traversal order; CheckpointProcessed is called last,
// exactly once per successful walk.
type Sink interface {
	RecordDecoded(ctx context.Context, ev DecodedEvent) error
	DecodeFailed(ctx context.Context, ev FailedEvent) error
	CheckpointProcessed(ctx context.Context, summary checkpoint.Summary, stats Stats) error
}

// CheckpointProcessor is stateless between calls and safe for concurrent use
// as long as its Sink is.
type CheckpointProcessor struct {
	log     *zap.SugaredLogger
	tracker Tracker
	sink    Sink
	metrics *metrics.Metrics
}

// NewCheckpointProcessor returns an error if any required argument is nil.
// metrics may be nil.
func NewCheckpointProcessor(
	log *zap.SugaredLogger,
	tracker Tracker,
	sink Sink,
	m *metrics.Metrics,
) (*CheckpointProcessor, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	if tracker == nil {
		return nil, errors.New("invalid tracker: must not be nil")
	}
	if sink == nil {
		return nil, errors.New("invalid sink: must not be nil")
	}
	return &CheckpointProcessor{
		log:     log,
		tracker: tracker,
		sink:    sink,
		metrics: m,
	}, nil
}

// Process walks cp to completion. It succeeds even when some or all tracked
// events fail to decode, or when nothing matches. It fails only when cp is
// structurally invalid or the sink cannot accept the output.
func (p *CheckpointProcessor) Process(ctx context.Context, cp *checkpoint.Checkpoint) error {
	start := time.Now()

	if err := cp.Validate(); err != nil {
		p.metrics.IncError(metrics.ErrTypeInvalidCheckpoint)
		return fmt.Errorf("%w: %w", ErrInvalidCheckpoint, err)
	}

	stats := Stats{Transactions: len(cp.Transactions)}
	for out := range extractor.Extract(cp, p.tracker, p.tracker) {
		if out.Failed() {
			stats.Failed++
			if err := p.reportFailure(ctx, cp.Summary, out); err != nil {
				return err
			}
			continue
		}

		stats.Decoded++
		p.metrics.RecordEventDecoded(out.Record.TypeName())
		err := p.sink.RecordDecoded(ctx, DecodedEvent{
			Checkpoint: cp.Summary,
			TxDigest:   out.TxDigest,
			TxIndex:    out.TxIndex,
			EventIndex: out.EventIndex,
			Event:      out.Event,
			Record:     out.Record,
		})
		if err != nil {
			p.metrics.IncError(metrics.ErrTypeSinkRecord)
			return fmt.Errorf("sink record from tx %s event %d in %s: %w",
				out.TxDigest, out.EventIndex, cp.Summary, err)
		}
	}

	if err := p.sink.CheckpointProcessed(ctx, cp.Summary, stats); err != nil {
		p.metrics.IncError(metrics.ErrTypeSinkCheckpoint)
		return fmt.Errorf("sink completion of %s: %w", cp.Summary, err)
	}

	p.metrics.RecordCheckpointProcessed(time.Since(start).Seconds())
	p.log.Infow("processed checkpoint",
		"sequence", cp.Summary.SequenceNumber,
		"digest", cp.Summary.Digest,
		"txs", stats.Transactions,
		"decoded", stats.Decoded,
		"failed", stats.Failed,
	)
	return nil
}

func (p *CheckpointProcessor) reportFailure(ctx context.Context, summary checkpoint.Summary, out extractor.Outcome) error {
	typeName := out.Event.TypeName()
	p.metrics.RecordDecodeFailure(typeName)
	p.log.Warnw("failed to decode event",
		"sequence", summary.SequenceNumber,
		"tx", out.TxDigest,
		"eventIndex", out.EventIndex,
		"type", out.Event.Type,
		"size", len(out.Event.Contents),
		"error", out.Err,
	)
	err := p.sink.DecodeFailed(ctx, FailedEvent{
		Checkpoint: summary,
		TxDigest:   out.TxDigest,
		TxIndex:    out.TxIndex,
		EventIndex: out.EventIndex,
		TypeName:   typeName,
		Err:        out.Err,
	})
	if err != nil {
		p.metrics.IncError(metrics.ErrTypeSinkFailure)
		return fmt.Errorf("sink decode failure from tx %s event %d in %s: %w",
			out.TxDigest, out.EventIndex, summary, err)
	}
	return nil
}
