package sink

import (
	"context"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/events"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
)

// Log writes every decoded record as a structured log entry. Raw event
// contents are logged at debug level.
type Log struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewLog(log *zap.SugaredLogger, m *metrics.Metrics) *Log {
	return &Log{log: log, metrics: m}
}

func (l *Log) RecordDecoded(_ context.Context, ev processor.DecodedEvent) error {
	return timed(l.metrics, NameLog, func() error {
		if ev.Event != nil {
			l.log.Debugw("raw event",
				"sequence", ev.Checkpoint.SequenceNumber,
				"tx", ev.TxDigest,
				"eventIndex", ev.EventIndex,
				"type", ev.Event.Type,
				"contents", hex.EncodeToString(ev.Event.Contents),
			)
		}

		fields := []any{
			"sequence", ev.Checkpoint.SequenceNumber,
			"tx", ev.TxDigest,
			"eventIndex", ev.EventIndex,
			"type", ev.Record.TypeName(),
		}
		if t, ok := ev.Record.(events.TicketBought); ok {
			fields = append(fields,
				"receiver", t.ReceiverHex(),
				"spinId", t.SpinID,
				"price", t.Price,
				"amount", t.Amount,
				"coinType", t.CoinType,
			)
		}
		l.log.Infow("decoded event", fields...)
		return nil
	})
}

// DecodeFailed only logs at debug level; the processor already warned.
func (l *Log) DecodeFailed(_ context.Context, ev processor.FailedEvent) error {
	l.log.Debugw("event not decoded",
		"sequence", ev.Checkpoint.SequenceNumber,
		"tx", ev.TxDigest,
		"eventIndex", ev.EventIndex,
		"type", ev.TypeName,
	)
	return nil
}

func (l *Log) CheckpointProcessed(_ context.Context, summary checkpoint.Summary, stats processor.Stats) error {
	if stats.Decoded == 0 && stats.Failed == 0 {
		return nil
	}
	l.log.Infow("checkpoint events done",
		"sequence", summary.SequenceNumber,
		"decoded", stats.Decoded,
		"failed", stats.Failed,
	)
	return nil
}
