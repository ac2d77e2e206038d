package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	chtickets "github.com/ava-labs/sui-checkpoint-indexer/pkg/data/clickhouse/ticketbought"
	pgtickets "github.com/ava-labs/sui-checkpoint-indexer/pkg/data/postgres/ticketbought"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/message"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/messages"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
)

var (
	ErrEmptyMessage       = errors.New("received nil message or empty value")
	ErrUnexpectedType     = errors.New("unexpected envelope type")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
)

// Metric error types recorded by TicketBoughtProcessor.
const (
	ErrTypeEmptyMessage   = "ticket_empty_message"
	ErrTypeInvalidMessage = "ticket_invalid_message"
)

// TicketBoughtProcessor persists TicketBought envelopes produced by the
// checkpoint fetcher. Either repository may be nil. Safe for concurrent use.
type TicketBoughtProcessor struct {
	log        *zap.SugaredLogger
	clickhouse chtickets.Repository
	postgres   pgtickets.Repository
	metrics    *metrics.Metrics
}

func NewTicketBoughtProcessor(
	log *zap.SugaredLogger,
	clickhouseRepo chtickets.Repository,
	postgresRepo pgtickets.Repository,
	m *metrics.Metrics,
) *TicketBoughtProcessor {
	return &TicketBoughtProcessor{
		log:        log,
		clickhouse: clickhouseRepo,
		postgres:   postgresRepo,
		metrics:    m,
	}
}

// Process opens the envelope in msg.Value and writes the ticket to every
// configured repository. A returned error sends the message to the DLQ.
func (p *TicketBoughtProcessor) Process(ctx context.Context, msg *cKafka.Message) error {
	if msg == nil || len(msg.Value) == 0 {
		p.metrics.IncError(ErrTypeEmptyMessage)
		return ErrEmptyMessage
	}

	ticket, err := decodeTicket(msg.Value)
	if err != nil {
		p.metrics.IncError(ErrTypeInvalidMessage)
		return err
	}

	p.log.Debugw("processing ticket",
		"checkpoint", ticket.Checkpoint,
		"txDigest", ticket.TxDigest,
		"eventSeq", ticket.EventSeq,
		"receiver", ticket.Receiver,
	)

	if p.clickhouse != nil {
		row, err := chtickets.RowFromMessage(ticket)
		if err != nil {
			p.metrics.IncError(ErrTypeInvalidMessage)
			return fmt.Errorf("convert ticket %s: %w", ticket.Key(), err)
		}
		start := time.Now()
		err = p.clickhouse.WriteTicket(ctx, row)
		p.metrics.RecordSinkWrite("clickhouse", err, time.Since(start).Seconds())
		if err != nil {
			return err
		}
	}

	if p.postgres != nil {
		start := time.Now()
		inserted, err := p.postgres.WriteTicket(ctx, ticket)
		p.metrics.RecordSinkWrite("postgres", err, time.Since(start).Seconds())
		if err != nil {
			return err
		}
		if !inserted {
			p.log.Debugw("ticket already stored", "key", ticket.Key())
		}
	}
	return nil
}

func decodeTicket(value []byte) (*messages.TicketBought, error) {
	env, err := message.Open(value)
	if err != nil {
		return nil, err
	}
	if env.Type != messages.TypeTicketBought {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedType, env.Type)
	}
	if env.Version > messages.TicketBoughtVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	var ticket messages.TicketBought
	if err := ticket.Unmarshal(env.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
	}
	if err := ticket.Validate(); err != nil {
		return nil, err
	}
	return &ticket, nil
}
