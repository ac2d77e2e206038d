package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/urfave/cli/v2"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/postgres"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/sink"
)

const messageMaxBytes = 1 << 20

// Config holds all configuration for the checkpointfetcher application
type Config struct {
	Verbose bool

	// Chain settings
	RPCURL       string
	RPCBatchSize int
	EventTypes   []string
	// StartCheckpoint is nil unless --start-checkpoint was given.
	StartCheckpoint *uint64

	// Worker settings
	Concurrency    int64
	Backfill       int64
	CheckpointsCap int
	MaxFailures    int
	PollInterval   time.Duration
	PollMaxErrors  int

	Sinks []string

	// Kafka settings
	KafkaBrokers                string
	KafkaTopic                  string
	KafkaEnableLogs             bool
	KafkaClientID               string
	KafkaTopicNumPartitions     int
	KafkaTopicReplicationFactor int
	KafkaSASL                   kafka.SASLConfig

	// Storage settings
	ClickHouse        clickhouse.Config
	TicketTableName   string
	Postgres          postgres.Config
	PostgresTableName string

	// Resume point settings
	CheckpointTableName string
	CheckpointInterval  time.Duration
	GapWatchdogInterval time.Duration
	GapWatchdogMaxGap   uint64

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Chain         string
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

func (c *Config) hasSink(name string) bool {
	for _, s := range c.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// KafkaProducerConfig describes the producer behind the kafka sink.
func (c *Config) KafkaProducerConfig() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		BootstrapServers: c.KafkaBrokers,
		ClientID:         c.KafkaClientID,
		EnableLogs:       c.KafkaEnableLogs,
		MessageMaxBytes:  messageMaxBytes,
		SASL:             c.KafkaSASL,
	}
}

// buildConfig builds a Config from CLI context flags and the environment
func buildConfig(c *cli.Context) (*Config, error) {
	sinks, err := sink.ParseNames(c.StringSlice("sinks"))
	if err != nil {
		return nil, fmt.Errorf("invalid sinks: %w", err)
	}

	chCfg, err := buildClickHouseConfig(c)
	if err != nil {
		return nil, err
	}

	pgCfg, err := postgres.Load()
	if err != nil {
		return nil, err
	}
	if dsn := c.String("postgres-dsn"); dsn != "" {
		pgCfg.DSN = dsn
	}

	var sasl kafka.SASLConfig
	if err := env.ParseWithOptions(&sasl, env.Options{Prefix: "KAFKA_SASL_"}); err != nil {
		return nil, fmt.Errorf("parse kafka sasl config: %w", err)
	}

	var start *uint64
	if c.IsSet("start-checkpoint") {
		v := c.Uint64("start-checkpoint")
		start = &v
	}

	cfg := &Config{
		StartCheckpoint:             start,
		Verbose:                     c.Bool("verbose"),
		RPCURL:                      c.String("rpc-url"),
		RPCBatchSize:                c.Int("rpc-batch-size"),
		EventTypes:                  splitList(c.StringSlice("event-type")),
		Concurrency:                 c.Int64("concurrency"),
		Backfill:                    c.Int64("backfill-priority"),
		CheckpointsCap:              c.Int("checkpoints-ch-capacity"),
		MaxFailures:                 c.Int("max-failures"),
		PollInterval:                c.Duration("poll-interval"),
		PollMaxErrors:               c.Int("poll-max-errors"),
		Sinks:                       sinks,
		KafkaBrokers:                c.String("kafka-brokers"),
		KafkaTopic:                  c.String("kafka-topic"),
		KafkaEnableLogs:             c.Bool("kafka-enable-logs"),
		KafkaClientID:               c.String("kafka-client-id"),
		KafkaTopicNumPartitions:     c.Int("kafka-topic-num-partitions"),
		KafkaTopicReplicationFactor: c.Int("kafka-topic-replication-factor"),
		KafkaSASL:                   sasl,
		ClickHouse:                  chCfg,
		TicketTableName:             c.String("ticket-table-name"),
		Postgres:                    pgCfg,
		PostgresTableName:           c.String("postgres-table-name"),
		CheckpointTableName:         c.String("checkpoint-table-name"),
		CheckpointInterval:          c.Duration("checkpoint-interval"),
		GapWatchdogInterval:         c.Duration("gap-watchdog-interval"),
		GapWatchdogMaxGap:           c.Uint64("gap-watchdog-max-gap"),
		MetricsHost:                 c.String("metrics-host"),
		MetricsPort:                 c.Int("metrics-port"),
		Chain:                       c.String("chain"),
		Environment:                 c.String("environment"),
		Region:                      c.String("region"),
		CloudProvider:               c.String("cloud-provider"),
	}
	if len(cfg.EventTypes) == 0 {
		return nil, errors.New("invalid event types: at least one is required")
	}
	return cfg, nil
}

// buildClickHouseConfig reads CLICKHOUSE_* from the environment and applies
// any clickhouse-* flags on top.
func buildClickHouseConfig(c *cli.Context) (clickhouse.Config, error) {
	cfg, err := clickhouse.Load()
	if err != nil {
		return clickhouse.Config{}, err
	}
	if c.IsSet("clickhouse-hosts") {
		cfg.Hosts = splitList(c.StringSlice("clickhouse-hosts"))
	}
	if c.IsSet("clickhouse-cluster") {
		cfg.Cluster = c.String("clickhouse-cluster")
	}
	if c.IsSet("clickhouse-database") {
		cfg.Database = c.String("clickhouse-database")
	}
	if c.IsSet("clickhouse-username") {
		cfg.Username = c.String("clickhouse-username")
	}
	if c.IsSet("clickhouse-password") {
		cfg.Password = c.String("clickhouse-password")
	}
	if c.IsSet("clickhouse-debug") {
		cfg.Debug = c.Bool("clickhouse-debug")
	}
	return cfg, nil
}

// splitList flattens repeated and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
