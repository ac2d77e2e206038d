package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpointer"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
)

// Repository persists sliding window checkpoints in ClickHouse, keyed by the
// chain identifier.
type Repository interface {
	checkpointer.Checkpointer
	DeleteCheckpoints(ctx context.Context, chain string) error
}

var _ Repository = (*repository)(nil)

//go:embed queries/create-table-local.sql
var createTableLocalQuery string

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/write-checkpoint.sql
var writeCheckpointQuery string

//go:embed queries/read-checkpoint.sql
var readCheckpointQuery string

//go:embed queries/delete-checkpoints.sql
var deleteCheckpointsQuery string

type repository struct {
	client    clickhouse.Client
	cluster   string
	database  string
	tableName string
	now       func() time.Time
}

// NewRepository creates the checkpoints tables if needed.
func NewRepository(
	ctx context.Context,
	client clickhouse.Client,
	cluster, database, tableName string,
) (Repository, error) {
	repo := &repository{
		client:    client,
		cluster:   cluster,
		database:  database,
		tableName: tableName,
		now:       time.Now,
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return repo, nil
}

// Initialize creates the local ReplacingMergeTree table and the distributed table in
// front of it.
func (r *repository) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(createTableLocalQuery, r.database, r.tableName, r.cluster)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create checkpoints local table: %w", err)
	}

	query = fmt.Sprintf(createTableQuery, r.database, r.tableName, r.cluster)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

func (r *repository) Write(ctx context.Context, chain string, lowestUnprocessed uint64) error {
	cp := Checkpoint{
		Chain:     chain,
		Lowest:    lowestUnprocessed,
		Timestamp: r.now().UnixMilli(),
	}
	query := fmt.Sprintf(writeCheckpointQuery, r.database, r.tableName)
	if err := r.client.Conn().Exec(ctx, query, cp.Chain, cp.Lowest, cp.Timestamp); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (r *repository) Read(ctx context.Context, chain string) (uint64, bool, error) {
	var cp Checkpoint
	query := fmt.Sprintf(readCheckpointQuery, r.database, r.tableName)
	err := r.client.Conn().
		QueryRow(ctx, query, chain).
		Scan(&cp.Chain, &cp.Lowest, &cp.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return cp.Lowest, true, nil
}

func (r *repository) DeleteCheckpoints(ctx context.Context, chain string) error {
	query := fmt.Sprintf(deleteCheckpointsQuery, r.database, r.tableName, r.cluster)
	if err := r.client.Conn().Exec(ctx, query, chain); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}
