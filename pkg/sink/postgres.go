package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/data/postgres/ticketbought"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
)

// Postgres inserts TicketBought records; a replayed event is a no-op.
type Postgres struct {
	repo    ticketbought.Repository
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewPostgres(repo ticketbought.Repository, log *zap.SugaredLogger, m *metrics.Metrics) (*Postgres, error) {
	if repo == nil {
		return nil, errors.New("invalid repository: must not be nil")
	}
	return &Postgres{repo: repo, log: log, metrics: m}, nil
}

func (p *Postgres) RecordDecoded(ctx context.Context, ev processor.DecodedEvent) error {
	msg, ok := ticketMessage(p.log, NamePostgres, ev)
	if !ok {
		return nil
	}
	return timed(p.metrics, NamePostgres, func() error {
		inserted, err := p.repo.WriteTicket(ctx, msg)
		if err != nil {
			return err
		}
		if !inserted {
			p.log.Debugw("ticket already stored", "key", msg.Key())
		}
		return nil
	})
}

func (*Postgres) DecodeFailed(context.Context, processor.FailedEvent) error { return nil }

func (*Postgres) CheckpointProcessed(context.Context, checkpoint.Summary, processor.Stats) error {
	return nil
}
