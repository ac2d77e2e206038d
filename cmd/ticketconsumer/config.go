package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/postgres"
)

const (
	storeClickHouse = "clickhouse"
	storePostgres   = "postgres"
)

// Config holds all configuration for the ticketconsumer application
type Config struct {
	Verbose bool

	Consumer                       kafka.ConsumerConfig
	KafkaTopicNumPartitions        int
	KafkaTopicReplicationFactor    int
	KafkaDLQTopicNumPartitions     int
	KafkaDLQTopicReplicationFactor int

	Stores            []string
	ClickHouse        clickhouse.Config
	TicketTableName   string
	Postgres          postgres.Config
	PostgresTableName string

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

// ticketTable qualifies the ClickHouse ticket table with the configured
// database.
func (c *Config) ticketTable() string {
	if c.ClickHouse.Database == "" || strings.Contains(c.TicketTableName, ".") {
		return c.TicketTableName
	}
	return c.ClickHouse.Database + "." + c.TicketTableName
}

func (c *Config) hasStore(name string) bool {
	for _, s := range c.Stores {
		if s == name {
			return true
		}
	}
	return false
}

func buildConfig(c *cli.Context) (*Config, error) {
	consumerCfg, err := kafka.LoadConsumerConfig()
	if err != nil {
		return nil, err
	}
	if c.IsSet("bootstrap-servers") {
		consumerCfg.BootstrapServers = c.String("bootstrap-servers")
	}
	if c.IsSet("group-id") {
		consumerCfg.GroupID = c.String("group-id")
	}
	if c.IsSet("topic") {
		consumerCfg.Topic = c.String("topic")
	}
	if c.IsSet("dlq-topic") {
		consumerCfg.DLQTopic = c.String("dlq-topic")
	}
	if c.IsSet("auto-offset-reset") {
		consumerCfg.AutoOffsetReset = c.String("auto-offset-reset")
	}
	if c.IsSet("concurrency") {
		consumerCfg.Concurrency = c.Int64("concurrency")
	}
	if c.IsSet("publish-to-dlq") {
		consumerCfg.PublishToDLQ = c.Bool("publish-to-dlq")
	}

	stores, err := parseStores(c.StringSlice("stores"))
	if err != nil {
		return nil, err
	}

	chCfg, err := clickhouse.Load()
	if err != nil {
		return nil, err
	}
	pgCfg, err := postgres.Load()
	if err != nil {
		return nil, err
	}

	return &Config{
		Verbose:                        c.Bool("verbose"),
		Consumer:                       consumerCfg,
		KafkaTopicNumPartitions:        c.Int("kafka-topic-num-partitions"),
		KafkaTopicReplicationFactor:    c.Int("kafka-topic-replication-factor"),
		KafkaDLQTopicNumPartitions:     c.Int("kafka-dlq-topic-num-partitions"),
		KafkaDLQTopicReplicationFactor: c.Int("kafka-dlq-topic-replication-factor"),
		Stores:                         stores,
		ClickHouse:                     chCfg,
		TicketTableName:                c.String("ticket-table-name"),
		Postgres:                       pgCfg,
		PostgresTableName:              c.String("postgres-table-name"),
		MetricsHost:                    c.String("metrics-host"),
		MetricsPort:                    c.Int("metrics-port"),
		Chain:                          c.String("chain"),
		Environment:                    c.String("environment"),
		Region:                         c.String("region"),
		CloudProvider:                  c.String("cloud-provider"),
	}, nil
}

func parseStores(values []string) ([]string, error) {
	var stores []string
	seen := make(map[string]bool)
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			switch {
			case name == "" || seen[name]:
				continue
			case name != storeClickHouse && name != storePostgres:
				return nil, fmt.Errorf("invalid store %q: must be %s or %s", name, storeClickHouse, storePostgres)
			}
			seen[name] = true
			stores = append(stores, name)
		}
	}
	if len(stores) == 0 {
		return nil, errors.New("invalid stores: at least one is required")
	}
	return stores, nil
}
