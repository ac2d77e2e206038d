package main

import (
	"context"
	"fmt"
	"strings"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
	chtickets "github.com/ava-labs/sui-checkpoint-indexer/pkg/data/clickhouse/ticketbought"
	pgtickets "github.com/ava-labs/sui-checkpoint-indexer/pkg/data/postgres/ticketbought"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/postgres"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/sink"
)

// sinkSet is the configured processor.Sink plus what must be torn down
// with it.
type sinkSet struct {
	sink         processor.Sink
	producerErrs <-chan error
	closers      []func()
}

// Close releases resources in reverse order of creation.
func (s *sinkSet) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildSinks(
	ctx context.Context,
	cfg *Config,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	chClient clickhouse.Client,
) (*sinkSet, error) {
	set := &sinkSet{}
	var multi sink.Multi
	for _, name := range cfg.Sinks {
		s, err := set.build(ctx, name, cfg, log.Named(name), m, chClient)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("%s sink: %w", name, err)
		}
		multi = append(multi, s)
	}
	if len(multi) == 1 {
		set.sink = multi[0]
	} else {
		set.sink = multi
	}
	return set, nil
}

func (set *sinkSet) build(
	ctx context.Context,
	name string,
	cfg *Config,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	chClient clickhouse.Client,
) (processor.Sink, error) {
	switch name {
	case sink.NameLog:
		return sink.NewLog(log, m), nil

	case sink.NameKafka:
		if err := ensureKafkaTopic(ctx, cfg, log); err != nil {
			return nil, err
		}
		producerCfg, err := cfg.KafkaProducerConfig().ConfigMap()
		if err != nil {
			return nil, err
		}
		producer, err := kafka.NewProducer(ctx, producerCfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		set.closers = append(set.closers, func() { producer.Close(flushTimeoutOnClose) })
		set.producerErrs = producer.Errors()
		return sink.NewKafka(producer, cfg.KafkaTopic, log, m)

	case sink.NameClickHouse:
		repo, err := chtickets.NewRepository(ctx, chClient, qualifiedTable(cfg.ClickHouse.Database, cfg.TicketTableName))
		if err != nil {
			return nil, err
		}
		return sink.NewClickHouse(repo, log, m)

	case sink.NamePostgres:
		pool, err := postgres.New(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		set.closers = append(set.closers, pool.Close)
		repo, err := pgtickets.NewRepository(ctx, pool, cfg.PostgresTableName)
		if err != nil {
			return nil, err
		}
		return sink.NewPostgres(repo, log, m)

	default:
		return nil, fmt.Errorf("%w: %q", sink.ErrUnknownSink, name)
	}
}

func ensureKafkaTopic(ctx context.Context, cfg *Config, log *zap.SugaredLogger) error {
	adminConfig := confluentKafka.ConfigMap{"bootstrap.servers": cfg.KafkaBrokers}
	if err := cfg.KafkaSASL.ApplyToConfigMap(&adminConfig); err != nil {
		return err
	}
	admin, err := confluentKafka.NewAdminClient(&adminConfig)
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	err = kafka.EnsureTopic(ctx, admin, kafka.TopicConfig{
		Name:              cfg.KafkaTopic,
		NumPartitions:     cfg.KafkaTopicNumPartitions,
		ReplicationFactor: cfg.KafkaTopicReplicationFactor,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to ensure kafka topic exists: %w", err)
	}
	return nil
}

// qualifiedTable prefixes table with database unless it already names one.
func qualifiedTable(database, table string) string {
	if database == "" || strings.Contains(table, ".") {
		return table
	}
	return database + "." + table
}
