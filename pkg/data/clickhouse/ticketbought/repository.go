package ticketbought

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/utils"
)

var ErrNilRow = errors.New("nil ticket row")

// Repository stores TicketBought rows. Rows are deduplicated by
// (tx_digest, event_seq) at merge time, so replays are safe.
type Repository interface {
	CreateTableIfNotExists(ctx context.Context) error
	WriteTicket(ctx context.Context, row *Row) error
}

type repository struct {
	client    clickhouse.Client
	tableName string
}

// NewRepository creates the table if needed. tableName may be qualified with
// a database, e.g. "sui.ticket_bought".
func NewRepository(ctx context.Context, client clickhouse.Client, tableName string) (Repository, error) {
	if client == nil {
		return nil, errors.New("invalid clickhouse client: must not be nil")
	}
	if tableName == "" {
		return nil, errors.New("invalid table name: must not be empty")
	}
	repo := &repository{client: client, tableName: tableName}
	if err := repo.CreateTableIfNotExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize ticket_bought table: %w", err)
	}
	return repo, nil
}

func (r *repository) CreateTableIfNotExists(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			checkpoint UInt64,
			checkpoint_digest String,
			epoch UInt64,
			checkpoint_time DateTime64(3, 'UTC'),
			tx_digest String,
			tx_index UInt32,
			event_index UInt32,
			event_seq UInt64,
			event_type LowCardinality(String),
			package_id String,
			sender String,
			receiver FixedString(32),
			spin_id UInt64,
			price UInt64,
			amount UInt64,
			coin_type LowCardinality(String),
			inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree(inserted_at)
		PARTITION BY toYYYYMM(checkpoint_time)
		ORDER BY (tx_digest, event_seq)
		SETTINGS index_granularity = 8192
	`, r.tableName)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create ticket_bought table: %w", err)
	}
	return nil
}

func (r *repository) WriteTicket(ctx context.Context, row *Row) error {
	if row == nil {
		return ErrNilRow
	}
	receiver, err := utils.HexToAddress(row.Receiver)
	if err != nil {
		return fmt.Errorf("failed to convert receiver to bytes: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			checkpoint, checkpoint_digest, epoch, checkpoint_time,
			tx_digest, tx_index, event_index, event_seq, event_type,
			package_id, sender, receiver, spin_id, price, amount, coin_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.tableName)

	err = r.client.Conn().Exec(ctx, query,
		row.Checkpoint,
		row.CheckpointDigest,
		row.Epoch,
		row.CheckpointTime,
		row.TxDigest,
		row.TxIndex,
		row.EventIndex,
		row.EventSeq,
		row.EventType,
		row.PackageID,
		row.Sender,
		string(receiver[:]),
		row.SpinID,
		row.Price,
		row.Amount,
		row.CoinType,
	)
	if err != nil {
		return fmt.Errorf("failed to write ticket %s:%d: %w", row.TxDigest, row.EventSeq, err)
	}
	return nil
}
