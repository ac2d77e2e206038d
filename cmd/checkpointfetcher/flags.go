package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/events"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/sink"
)

const (
	defaultRPCURL          = "https://fullnode.mainnet.sui.io:443"
	defaultStartCheckpoint = 58542633
	defaultConcurrency     = 50
)

// runFlags returns all CLI flags for the checkpointfetcher run command
func runFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"r"},
			Usage:   "The Sui fullnode JSON-RPC URL to fetch checkpoints from",
			EnvVars: []string{"RPC_URL"},
			Value:   defaultRPCURL,
		},
		&cli.IntFlag{
			Name:    "rpc-batch-size",
			Usage:   "Transaction digests per sui_multiGetTransactionBlocks request (max 50)",
			EnvVars: []string{"RPC_BATCH_SIZE"},
			Value:   50,
		},
		&cli.StringSliceFlag{
			Name:    "event-type",
			Usage:   "Move event struct names to decode (repeatable)",
			EnvVars: []string{"EVENT_TYPES"},
			Value:   cli.NewStringSlice(events.TicketBoughtType),
		},
		&cli.Uint64Flag{
			Name:    "start-checkpoint",
			Aliases: []string{"s"},
			Usage:   "The checkpoint to start from. If not specified, resumes from the persisted checkpoint or the default start",
			EnvVars: []string{"START_CHECKPOINT"},
		},
		&cli.Int64Flag{
			Name:    "concurrency",
			Aliases: []string{"c"},
			Usage:   "The number of concurrent workers to use",
			EnvVars: []string{"CONCURRENCY"},
			Value:   defaultConcurrency,
		},
		&cli.Int64Flag{
			Name:    "backfill-priority",
			Aliases: []string{"b"},
			Usage:   "The number of workers reserved for backfill (must be less than concurrency)",
			EnvVars: []string{"BACKFILL_PRIORITY"},
			Value:   40,
		},
		&cli.IntFlag{
			Name:    "checkpoints-ch-capacity",
			Aliases: []string{"B"},
			Usage:   "The capacity of the new checkpoints channel",
			EnvVars: []string{"CHECKPOINTS_CH_CAPACITY"},
			Value:   100,
		},
		&cli.IntFlag{
			Name:    "max-failures",
			Aliases: []string{"f"},
			Usage:   "The maximum number of processing failures of one checkpoint before stopping",
			EnvVars: []string{"MAX_FAILURES"},
			Value:   3,
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "How often to poll the latest checkpoint",
			EnvVars: []string{"POLL_INTERVAL"},
			Value:   time.Second,
		},
		&cli.IntFlag{
			Name:    "poll-max-errors",
			Usage:   "Consecutive failed polls before stopping",
			EnvVars: []string{"POLL_MAX_ERRORS"},
			Value:   10,
		},
		&cli.StringSliceFlag{
			Name:    "sinks",
			Usage:   "Where decoded events go: log, kafka, clickhouse, postgres",
			EnvVars: []string{"SINKS"},
			Value:   cli.NewStringSlice(sink.NameLog),
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "chain",
			Usage:   "Chain label for metrics (e.g., 'mainnet', 'testnet')",
			EnvVars: []string{"CHAIN"},
			Value:   "mainnet",
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "The Kafka brokers to use (comma-separated list)",
			EnvVars: []string{"KAFKA_BROKERS"},
			Value:   "localhost:9092",
		},
		&cli.StringFlag{
			Name:    "kafka-topic",
			Aliases: []string{"t"},
			Usage:   "The Kafka topic decoded events are published to",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   "ticket-bought",
		},
		&cli.BoolFlag{
			Name:    "kafka-enable-logs",
			Aliases: []string{"l"},
			Usage:   "Enable librdkafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},
		&cli.StringFlag{
			Name:    "kafka-client-id",
			Usage:   "The Kafka client ID to use",
			EnvVars: []string{"KAFKA_CLIENT_ID"},
			Value:   "checkpointfetcher",
		},
		&cli.IntFlag{
			Name:    "kafka-topic-num-partitions",
			Usage:   "The number of partitions to use for the Kafka topic (must be greater than 0)",
			EnvVars: []string{"KAFKA_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "kafka-topic-replication-factor",
			Usage:   "The replication factor to use for the Kafka topic (must be greater than 0)",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "ticket-table-name",
			Usage:   "The ClickHouse table TicketBought events are written to",
			EnvVars: []string{"TICKET_TABLE_NAME"},
			Value:   "ticket_bought",
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "Postgres connection string (overrides POSTGRES_DSN)",
			EnvVars: []string{"POSTGRES_DSN"},
		},
		&cli.StringFlag{
			Name:    "postgres-table-name",
			Usage:   "The Postgres table TicketBought events are written to",
			EnvVars: []string{"POSTGRES_TABLE_NAME"},
			Value:   "ticket_bought",
		},
		&cli.StringFlag{
			Name:    "checkpoint-table-name",
			Aliases: []string{"T"},
			Usage:   "The name of the table to write the resume point to",
			EnvVars: []string{"CHECKPOINT_TABLE_NAME"},
			Value:   "checkpoints",
		},
		&cli.DurationFlag{
			Name:    "checkpoint-interval",
			Aliases: []string{"i"},
			Usage:   "The interval to write the resume point",
			EnvVars: []string{"CHECKPOINT_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "gap-watchdog-interval",
			Usage:   "How often to check the distance between the lowest and highest checkpoint",
			EnvVars: []string{"GAP_WATCHDOG_INTERVAL"},
			Value:   15 * time.Minute,
		},
		&cli.Uint64Flag{
			Name:    "gap-watchdog-max-gap",
			Usage:   "Distance between lowest and highest checkpoint that triggers a warning",
			EnvVars: []string{"GAP_WATCHDOG_MAX_GAP"},
			Value:   50000,
		},
	}
	return append(flags, clickHouseFlags()...)
}

// removeFlags returns the flags for the remove command
func removeFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Aliases: []string{"r"},
			Usage:   "The Sui fullnode used to look up the chain identifier",
			EnvVars: []string{"RPC_URL"},
			Value:   defaultRPCURL,
		},
		&cli.StringFlag{
			Name:    "chain-identifier",
			Usage:   "The chain identifier to remove checkpoints for. Looked up from --rpc-url if empty",
			EnvVars: []string{"CHAIN_IDENTIFIER"},
		},
		&cli.StringFlag{
			Name:    "checkpoint-table-name",
			Aliases: []string{"T"},
			Usage:   "The name of the checkpoints table",
			EnvVars: []string{"CHECKPOINT_TABLE_NAME"},
			Value:   "checkpoints",
		},
	}
	return append(flags, clickHouseFlags()...)
}

// clickHouseFlags override values read from the CLICKHOUSE_* environment.
func clickHouseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "clickhouse-hosts",
			Usage: "ClickHouse server hosts (comma-separated)",
		},
		&cli.StringFlag{
			Name:  "clickhouse-cluster",
			Usage: "ClickHouse cluster name",
		},
		&cli.StringFlag{
			Name:  "clickhouse-database",
			Usage: "ClickHouse database name",
		},
		&cli.StringFlag{
			Name:  "clickhouse-username",
			Usage: "ClickHouse username",
		},
		&cli.StringFlag{
			Name:  "clickhouse-password",
			Usage: "ClickHouse password",
		},
		&cli.BoolFlag{
			Name:  "clickhouse-debug",
			Usage: "Enable ClickHouse debug mode",
		},
	}
}
