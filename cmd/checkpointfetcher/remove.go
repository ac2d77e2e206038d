package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/data/clickhouse/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/sui"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/utils"
)

func remove(c *cli.Context) error {
	ctx := context.Background()
	sugar, err := utils.NewSugaredLogger(true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	chain := c.String("chain-identifier")
	if chain == "" {
		client, err := sui.Dial(ctx, c.String("rpc-url"), sugar, nil)
		if err != nil {
			return fmt.Errorf("failed to dial rpc: %w", err)
		}
		chain, err = client.ChainIdentifier(ctx)
		client.Close()
		if err != nil {
			return fmt.Errorf("failed to get chain identifier: %w", err)
		}
	}

	chCfg, err := buildClickHouseConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build ClickHouse config: %w", err)
	}

	chClient, err := clickhouse.New(ctx, chCfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	repo, err := checkpoint.NewRepository(ctx, chClient, chCfg.Cluster, chCfg.Database, c.String("checkpoint-table-name"))
	if err != nil {
		return fmt.Errorf("failed to create checkpoint repository: %w", err)
	}

	if err := repo.DeleteCheckpoints(ctx, chain); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}

	sugar.Infof("checkpoints successfully removed for chain %s", chain)
	return nil
}
