package main

import (
	"github.com/urfave/cli/v2"
)

// runFlags returns the flags of the run command. Kafka consumer settings
// default to the KAFKA_* environment; a flag given on the command line wins.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "bootstrap-servers",
			Aliases: []string{"b"},
			Usage:   "Kafka bootstrap servers (comma-separated)",
		},
		&cli.StringFlag{
			Name:    "group-id",
			Aliases: []string{"g"},
			Usage:   "Kafka consumer group ID",
		},
		&cli.StringFlag{
			Name:    "topic",
			Aliases: []string{"t"},
			Usage:   "Kafka topic to consume from",
		},
		&cli.StringFlag{
			Name:  "dlq-topic",
			Usage: "Dead letter queue topic for failed messages",
		},
		&cli.StringFlag{
			Name:    "auto-offset-reset",
			Aliases: []string{"o"},
			Usage:   "Kafka auto offset reset policy (earliest, latest, none)",
		},
		&cli.Int64Flag{
			Name:  "concurrency",
			Usage: "Concurrent message processors",
		},
		&cli.BoolFlag{
			Name:  "publish-to-dlq",
			Usage: "Publish failed messages to the DLQ instead of stopping",
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
		&cli.IntFlag{
			Name:    "kafka-dlq-topic-num-partitions",
			Usage:   "The number of partitions to use for the Kafka DLQ topic (must be greater than 0)",
			EnvVars: []string{"KAFKA_DLQ_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "kafka-dlq-topic-replication-factor",
			Usage:   "The replication factor to use for the Kafka DLQ topic (must be greater than 0)",
			EnvVars: []string{"KAFKA_DLQ_TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
		&cli.StringSliceFlag{
			Name:    "stores",
			Usage:   "Where tickets are written: clickhouse, postgres",
			EnvVars: []string{"STORES"},
			Value:   cli.NewStringSlice(storeClickHouse),
		},
		&cli.StringFlag{
			Name:    "ticket-table-name",
			Usage:   "The ClickHouse table tickets are written to",
			EnvVars: []string{"TICKET_TABLE_NAME"},
			Value:   "ticket_bought",
		},
		&cli.StringFlag{
			Name:    "postgres-table-name",
			Usage:   "The Postgres table tickets are written to",
			EnvVars: []string{"POSTGRES_TABLE_NAME"},
			Value:   "ticket_bought",
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9091,
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
	}
}
