package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
	chtickets "github.com/ava-labs/sui-checkpoint-indexer/pkg/data/clickhouse/ticketbought"
	pgtickets "github.com/ava-labs/sui-checkpoint-indexer/pkg/data/postgres/ticketbought"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/processor"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/postgres"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/utils"
)

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"bootstrapServers", cfg.Consumer.BootstrapServers,
		"groupID", cfg.Consumer.GroupID,
		"topic", cfg.Consumer.Topic,
		"dlqTopic", cfg.Consumer.DLQTopic,
		"autoOffsetReset", cfg.Consumer.AutoOffsetReset,
		"concurrency", cfg.Consumer.Concurrency,
		"offsetCommitInterval", cfg.Consumer.OffsetManagerCommitInterval,
		"publishToDLQ", cfg.Consumer.PublishToDLQ,
		"stores", cfg.Stores,
		"clickhouseHosts", cfg.ClickHouse.Hosts,
		"clickhouseDatabase", cfg.ClickHouse.Database,
		"ticketTableName", cfg.TicketTableName,
		"postgresTableName", cfg.PostgresTableName,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"chain", cfg.Chain,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Chain:         cfg.Chain,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, nil)
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		chRepo chtickets.Repository
		pgRepo pgtickets.Repository
	)
	if cfg.hasStore(storeClickHouse) {
		chClient, err := clickhouse.New(ctx, cfg.ClickHouse, sugar)
		if err != nil {
			return fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		defer chClient.Close()

		chRepo, err = chtickets.NewRepository(ctx, chClient, cfg.ticketTable())
		if err != nil {
			return fmt.Errorf("failed to create ticket repository: %w", err)
		}
		sugar.Infow("ClickHouse ticket table ready", "tableName", cfg.ticketTable())
	}
	if cfg.hasStore(storePostgres) {
		pool, err := postgres.New(ctx, cfg.Postgres, sugar)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()

		pgRepo, err = pgtickets.NewRepository(ctx, pool, cfg.PostgresTableName)
		if err != nil {
			return fmt.Errorf("failed to create postgres ticket repository: %w", err)
		}
		sugar.Infow("Postgres ticket table ready", "tableName", cfg.PostgresTableName)
	}

	proc := processor.NewTicketBoughtProcessor(sugar, chRepo, pgRepo, m)

	if err := ensureTopics(ctx, cfg, sugar); err != nil {
		return err
	}

	consumer, err := kafka.NewConsumer(ctx, sugar, cfg.Consumer, proc, m)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sugar.Infow("consumer created, starting consumption",
		"topic", cfg.Consumer.Topic,
		"groupID", cfg.Consumer.GroupID,
		"concurrency", cfg.Consumer.Concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil {
			return fmt.Errorf("consumer error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		}
	})

	err = g.Wait()

	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	return err
}

// ensureTopics creates the ticket topic, and the DLQ topic when failures are
// published there.
func ensureTopics(ctx context.Context, cfg *Config, sugar *zap.SugaredLogger) error {
	adminConfig := confluentKafka.ConfigMap{"bootstrap.servers": cfg.Consumer.BootstrapServers}
	if err := cfg.Consumer.SASL.ApplyToConfigMap(&adminConfig); err != nil {
		return err
	}
	adminClient, err := confluentKafka.NewAdminClient(&adminConfig)
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer adminClient.Close()

	return ensureTopicsWith(ctx, adminClient, cfg, sugar)
}

func ensureTopicsWith(ctx context.Context, admin kafka.TopicAdmin, cfg *Config, sugar *zap.SugaredLogger) error {
	err := kafka.EnsureTopic(ctx, admin, kafka.TopicConfig{
		Name:              cfg.Consumer.Topic,
		NumPartitions:     cfg.KafkaTopicNumPartitions,
		ReplicationFactor: cfg.KafkaTopicReplicationFactor,
	}, sugar)
	if err != nil {
		return fmt.Errorf("failed to ensure kafka topic exists: %w", err)
	}

	if !cfg.Consumer.PublishToDLQ {
		return nil
	}
	err = kafka.EnsureTopic(ctx, admin, kafka.TopicConfig{
		Name:              cfg.Consumer.DLQTopic,
		NumPartitions:     cfg.KafkaDLQTopicNumPartitions,
		ReplicationFactor: cfg.KafkaDLQTopicReplicationFactor,
	}, sugar)
	if err != nil {
		return fmt.Errorf("failed to ensure kafka DLQ topic exists: %w", err)
	}
	return nil
}
