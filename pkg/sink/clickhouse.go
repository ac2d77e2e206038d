package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/data/clickhouse/ticketbought"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
)

// ClickHouse writes TicketBought records into a ReplacingMergeTree table, so
// replays of a checkpoint collapse on merge.
type ClickHouse struct {
	repo    ticketbought.Repository
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewClickHouse(repo ticketbought.Repository, log *zap.SugaredLogger, m *metrics.Metrics) (*ClickHouse, error) {
	if repo == nil {
		return nil, errors.New("invalid repository: must not be nil")
	}
	return &ClickHouse{repo: repo, log: log, metrics: m}, nil
}

func (c *ClickHouse) RecordDecoded(ctx context.Context, ev processor.DecodedEvent) error {
	msg, ok := ticketMessage(c.log, NameClickHouse, ev)
	if !ok {
		return nil
	}
	return timed(c.metrics, NameClickHouse, func() error {
		row, err := ticketbought.RowFromMessage(msg)
		if err != nil {
			return err
		}
		return c.repo.WriteTicket(ctx, row)
	})
}

func (*ClickHouse) DecodeFailed(context.Context, processor.FailedEvent) error { return nil }

func (*ClickHouse) CheckpointProcessed(context.Context, checkpoint.Summary, processor.Stats) error {
	return nil
}
