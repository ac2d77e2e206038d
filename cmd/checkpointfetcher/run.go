package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpointer"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/clickhouse"
	chcheckpoint "github.com/ava-labs/sui-checkpoint-indexer/pkg/data/clickhouse/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/events"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow/subscriber"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow/worker"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/sui"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/utils"
)

const flushTimeoutOnClose = 15 * time.Second

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
		"rpcURL", cfg.RPCURL,
		"eventTypes", cfg.EventTypes,
		"start", cfg.StartCheckpoint,
		"concurrency", cfg.Concurrency,
		"backfill", cfg.Backfill,
		"checkpointsCap", cfg.CheckpointsCap,
		"maxFailures", cfg.MaxFailures,
		"pollInterval", cfg.PollInterval,
		"sinks", cfg.Sinks,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"chain", cfg.Chain,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
		"checkpointTableName", cfg.CheckpointTableName,
		"checkpointInterval", cfg.CheckpointInterval,
		"clickhouseCluster", cfg.ClickHouse.Cluster,
		"clickhouseDatabase", cfg.ClickHouse.Database,
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

	ready := &readiness{}
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, ready.check)
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracked, err := events.NewRegistry(cfg.EventTypes...)
	if err != nil {
		return fmt.Errorf("failed to create event registry: %w", err)
	}

	client, err := sui.Dial(ctx, cfg.RPCURL, sugar, m, sui.WithBatchSize(cfg.RPCBatchSize))
	if err != nil {
		return fmt.Errorf("failed to dial rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainIdentifier(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain identifier: %w", err)
	}

	chClient, err := clickhouse.New(ctx, cfg.ClickHouse, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	sugar.Info("ClickHouse client created successfully")

	checkpointRepo, err := chcheckpoint.NewRepository(ctx, chClient, cfg.ClickHouse.Cluster, cfg.ClickHouse.Database, cfg.CheckpointTableName)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint repository: %w", err)
	}

	sinks, err := buildSinks(ctx, cfg, sugar, m, chClient)
	if err != nil {
		return fmt.Errorf("failed to create sinks: %w", err)
	}
	defer sinks.Close()

	proc, err := processor.NewCheckpointProcessor(sugar, tracked, sinks.sink, m)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	w, err := worker.NewCheckpointWorker(client, proc, sugar)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	latest, err := client.LatestCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest checkpoint: %w", err)
	}
	sugar.Infof("latest checkpoint: %d", latest)

	start, err := resolveStart(ctx, cfg.StartCheckpoint, checkpointRepo, chainID, sugar)
	if err != nil {
		return err
	}

	s, err := newWindow(start, latest, m)
	if err != nil {
		return fmt.Errorf("failed to create state: %w", err)
	}
	ready.track(s, start)

	mgr, err := slidingwindow.NewManager(sugar, s, w, cfg.Concurrency, cfg.Backfill, cfg.CheckpointsCap, cfg.MaxFailures, m)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}

	poller, err := subscriber.NewPoller(sugar, client, cfg.PollInterval, cfg.PollMaxErrors)
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Subscribe(gctx, mgr)
	})
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if sinks.producerErrs != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case err := <-sinks.producerErrs:
				return err
			}
		})
	}
	g.Go(func() error {
		checkpointCfg := checkpointer.DefaultConfig()
		checkpointCfg.Interval = cfg.CheckpointInterval
		return checkpointer.Start(gctx, sugar, s, checkpointRepo, checkpointCfg, chainID, m)
	})

	go slidingwindow.StartGapWatchdog(gctx, sugar, s, cfg.GapWatchdogInterval, cfg.GapWatchdogMaxGap)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}

type resumePointReader interface {
	Read(ctx context.Context, chain string) (uint64, bool, error)
}

// resolveStart picks the first checkpoint to index: the flag when given
// (checkpoint 0 included), otherwise the persisted resume point, otherwise
// defaultStartCheckpoint.
func resolveStart(ctx context.Context, flagStart *uint64, repo resumePointReader, chain string, log *zap.SugaredLogger) (uint64, error) {
	if flagStart != nil {
		log.Infof("start checkpoint: %d", *flagStart)
		return *flagStart, nil
	}
	lowest, exists, err := repo.Read(ctx, chain)
	if err != nil {
		return 0, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if !exists {
		log.Infof("checkpoint not found for chain %s, will start from checkpoint %d", chain, defaultStartCheckpoint)
		return defaultStartCheckpoint, nil
	}
	log.Infof("resuming from checkpoint %d", lowest)
	return lowest, nil
}

// newWindow opens the window [start..latest]. A start beyond the tip gives an
// empty window that fills as the poller reports new checkpoints.
func newWindow(start, latest uint64, m *metrics.Metrics) (*slidingwindow.State, error) {
	if start > latest {
		return slidingwindow.NewState(start, start-1, slidingwindow.WithMetrics(m))
	}
	return slidingwindow.NewState(start, latest, slidingwindow.WithMetrics(m))
}

// readiness reports ready once the lowest unprocessed checkpoint has moved
// past the start point.
type readiness struct {
	state atomic.Pointer[slidingwindow.State]
	start atomic.Uint64
}

func (r *readiness) track(s *slidingwindow.State, start uint64) {
	r.start.Store(start)
	r.state.Store(s)
}

func (r *readiness) check() error {
	s := r.state.Load()
	if s == nil {
		return errors.New("starting")
	}
	if lowest := s.GetLowest(); lowest <= r.start.Load() {
		return fmt.Errorf("waiting for checkpoint %d", lowest)
	}
	return nil
}
