// Package ticketbought stores TicketBought events in Postgres.
package ticketbought

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/messages"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/postgres"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/utils"
)

var (
	ErrNilMessage = errors.New("nil ticket message")

	tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)
)

// Repository stores tickets idempotently: a replayed (tx_digest, event_seq)
// is ignored.
type Repository interface {
	CreateTableIfNotExists(ctx context.Context) error
	WriteTicket(ctx context.Context, msg *messages.TicketBought) (inserted bool, err error)
}

type repository struct {
	db        postgres.DB
	tableName string
}

func NewRepository(ctx context.Context, db postgres.DB, tableName string) (Repository, error) {
	if db == nil {
		return nil, errors.New("invalid postgres db: must not be nil")
	}
	if !tableNameRe.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}
	repo := &repository{db: db, tableName: tableName}
	if err := repo.CreateTableIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize ticket_bought table: %w", err)
	}
	return repo, nil
}

func (r *repository) CreateTableIfNotExists(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tx_digest TEXT NOT NULL,
			event_seq BIGINT NOT NULL,
			checkpoint BIGINT NOT NULL,
			checkpoint_digest TEXT NOT NULL,
			epoch BIGINT NOT NULL,
			checkpoint_time TIMESTAMPTZ NOT NULL,
			tx_index INTEGER NOT NULL,
			event_index INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			package_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			spin_id NUMERIC(20) NOT NULL,
			price NUMERIC(20) NOT NULL,
			amount NUMERIC(20) NOT NULL,
			coin_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tx_digest, event_seq)
		)
	`, r.tableName)
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create ticket_bought table: %w", err)
	}
	return nil
}

// WriteTicket reports whether a new row was inserted. u64 amounts go through
// NUMERIC as decimal strings since BIGINT is signed.
func (r *repository) WriteTicket(ctx context.Context, msg *messages.TicketBought) (bool, error) {
	if msg == nil {
		return false, ErrNilMessage
	}
	if err := msg.Validate(); err != nil {
		return false, err
	}
	receiver, err := utils.NormalizeAddress(msg.Receiver)
	if err != nil {
		return false, fmt.Errorf("invalid receiver: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			tx_digest, event_seq, checkpoint, checkpoint_digest, epoch, checkpoint_time,
			tx_index, event_index, event_type, package_id, sender, receiver,
			spin_id, price, amount, coin_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::NUMERIC, $14::NUMERIC, $15::NUMERIC, $16)
		ON CONFLICT (tx_digest, event_seq) DO NOTHING
	`, r.tableName)

	tag, err := r.db.Exec(ctx, query,
		msg.TxDigest,
		int64(msg.EventSeq),
		int64(msg.Checkpoint),
		msg.CheckpointDigest,
		int64(msg.Epoch),
		time.UnixMilli(int64(msg.TimestampMs)).UTC(),
		msg.TxIndex,
		msg.EventIndex,
		msg.EventType,
		msg.PackageID,
		msg.Sender,
		receiver,
		strconv.FormatUint(msg.SpinID, 10),
		strconv.FormatUint(msg.Price, 10),
		strconv.FormatUint(msg.Amount, 10),
		msg.CoinType,
	)
	if err != nil {
		return false, fmt.Errorf("failed to write ticket %s: %w", msg.Key(), err)
	}
	return tag.RowsAffected() > 0, nil
}
