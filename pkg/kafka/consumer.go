package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/processor"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
)

// DLQ headers carrying where a failed message came from and why it failed.
const (
	HeaderDLQError             = "dlq-error"
	HeaderDLQOriginalTopic     = "dlq-original-topic"
	HeaderDLQOriginalPartition = "dlq-original-partition"
	HeaderDLQOriginalOffset    = "dlq-original-offset"
)

var ErrDLQNotConfigured = errors.New("DLQ topic not configured")

// Consumer reads ticket envelopes, hands each to a processor.Processor with
// bounded concurrency and routes failures to a DLQ. Offsets are committed
// through the OffsetManager once a message is processed or dead-lettered.
type Consumer struct {
	processor         processor.Processor
	consumer          *cKafka.Consumer
	dlqProducer       *Producer
	log               *zap.SugaredLogger
	rebalanceContexts map[int32]rebalanceCtx
	rebalanceMutex    sync.RWMutex
	sem               *semaphore.Weighted
	inflight          sync.WaitGroup
	offsetManager     *OffsetManager
	logsDone          chan struct{}
	doneCh            chan struct{}
	errCh             chan error
	cfg               ConsumerConfig
	metrics           *metrics.Metrics
}

type rebalanceCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConsumer creates a new Consumer. Unset timeouts take their defaults.
// m may be nil.
func NewConsumer(
	ctx context.Context,
	log *zap.SugaredLogger,
	cfg ConsumerConfig,
	proc processor.Processor,
	m *metrics.Metrics,
) (*Consumer, error) {
	if proc == nil {
		return nil, errors.New("invalid processor: must not be nil")
	}
	if cfg.Concurrency <= 0 {
		return nil, errors.New("invalid concurrency: must be greater than 0")
	}
	cfg = cfg.WithDefaults()

	consumerConfig := &cKafka.ConfigMap{
		"bootstrap.servers":             cfg.BootstrapServers,
		"group.id":                      cfg.GroupID,
		"auto.offset.reset":             cfg.AutoOffsetReset,
		"enable.auto.commit":            false,
		"session.timeout.ms":            int(cfg.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms":          int(cfg.MaxPollInterval.Milliseconds()),
		"partition.assignment.strategy": "roundrobin",
		"go.logs.channel.enable":        cfg.EnableLogs,
	}
	if err := cfg.SASL.ApplyToConfigMap(consumerConfig); err != nil {
		return nil, err
	}
	consumer, err := cKafka.NewConsumer(consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	dlqProducerConfig, err := ProducerConfig{
		BootstrapServers: cfg.BootstrapServers,
		EnableLogs:       cfg.EnableLogs,
		SASL:             cfg.SASL,
	}.ConfigMap()
	if err != nil {
		consumer.Close()
		return nil, err
	}
	dlqProducer, err := NewProducer(ctx, dlqProducerConfig, log.Named("dlq"))
	if err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	interval := cfg.OffsetManagerCommitInterval
	if interval <= 0 {
		interval = OffsetManagerCommitInterval
	}

	return &Consumer{
		consumer:          consumer,
		dlqProducer:       dlqProducer,
		log:               log,
		cfg:               cfg,
		sem:               semaphore.NewWeighted(cfg.Concurrency),
		rebalanceContexts: make(map[int32]rebalanceCtx),
		offsetManager:     NewOffsetManager(ctx, consumer, interval, cfg.AutoOffsetReset, log),
		logsDone:          make(chan struct{}),
		errCh:             make(chan error, 1),
		doneCh:            make(chan struct{}),
		processor:         proc,
		metrics:           m,
	}, nil
}

// Start consumes until ctx is done or a fatal error occurs, then closes the
// consumer. Messages still in flight at shutdown are redelivered on restart.
func (c *Consumer) Start(ctx context.Context) error {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	if !c.cfg.PublishToDLQ {
		c.log.Warnw("DLQ publishing disabled, a failed message stops the consumer",
			"topic", c.cfg.Topic,
		)
	}

	if c.cfg.EnableLogs {
		go c.printKafkaLogs(ctxWithCancel)
	} else {
		close(c.logsDone)
	}

	if err := c.consumer.SubscribeTopics([]string{c.cfg.Topic}, c.getRebalanceCallback(ctxWithCancel)); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	pollMs := int(c.cfg.PollInterval.Milliseconds())
	var runErr error
	for runErr == nil {
		select {
		case <-ctx.Done():
			c.log.Info("context done, shutting down consumer")
			return c.shutdown(nil)
		case err := <-c.dlqProducer.Errors():
			runErr = fmt.Errorf("DLQ producer: %w", err)
			continue
		case err := <-c.errCh:
			runErr = err
			continue
		default:
		}

		switch ev := c.consumer.Poll(pollMs).(type) {
		case nil:
		case *cKafka.Message:
			c.rebalanceMutex.RLock()
			rc, ok := c.rebalanceContexts[ev.TopicPartition.Partition]
			c.rebalanceMutex.RUnlock()
			if !ok {
				c.log.Errorw("partition not found in rebalance context", "partition", ev.TopicPartition.Partition)
				continue
			}
			// A revoked partition cancels rc.ctx; its offset is then never
			// committed and the message is reprocessed by the new owner.
			c.dispatch(rc.ctx, ev)
		case cKafka.Error:
			if ev.IsFatal() {
				runErr = fmt.Errorf("fatal kafka error: %w", ev)
				continue
			}
			c.log.Warnw("kafka error (non-fatal)", "error", ev)
		default:
			c.log.Debugw("ignoring kafka event", "event", ev)
		}
	}

	c.log.Errorw("shutting down consumer", "error", runErr)
	return c.shutdown(runErr)
}

func (c *Consumer) shutdown(runErr error) error {
	err := errors.Join(runErr, c.close())
	c.log.Info("consumer shutdown complete")
	return err
}

// dispatch acquires a semaphore slot and processes the message in a goroutine.
func (c *Consumer) dispatch(ctx context.Context, msg *cKafka.Message) {
	waitStart := time.Now()
	err := c.sem.Acquire(ctx, 1)
	c.metrics.ObserveSemaphoreWait(time.Since(waitStart).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.reportErr(fmt.Errorf("failed to acquire semaphore: %w", err))
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer c.sem.Release(1)

		start := time.Now()
		err := c.processor.Process(ctx, msg)
		c.metrics.RecordMessageProcessed(err, time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !c.cfg.PublishToDLQ {
				c.reportErr(fmt.Errorf("process %s: %w", describe(msg), err))
				return
			}
			c.log.Warnw("processing failed, sending to DLQ", "message", describe(msg), "error", err)
			if publishErr := c.publishToDLQ(ctx, msg, err); publishErr != nil {
				c.reportErr(publishErr)
				return
			}
		}
		c.offsetManager.InsertOffsetWithRetry(ctx, msg)
	}()
}

func (c *Consumer) reportErr(err error) {
	select {
	case c.errCh <- err:
	default:
		c.log.Errorw("dropping consumer error, shutdown already pending", "error", err)
	}
}

// publishToDLQ sends a failed message to the dead letter queue with headers
// describing its origin and failure.
func (c *Consumer) publishToDLQ(ctx context.Context, msg *cKafka.Message, cause error) error {
	if c.cfg.DLQTopic == "" {
		return ErrDLQNotConfigured
	}

	dlqMsg := Msg{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: dlqHeaders(msg, cause),
		// keep the original record time
		Timestamp: msg.Timestamp,
	}
	if err := c.dlqProducer.Produce(ctx, dlqMsg); err != nil {
		return fmt.Errorf("failed to produce to DLQ: %w", err)
	}
	c.metrics.IncDLQPublished()

	c.log.Infow("published message to DLQ",
		"message", describe(msg),
		"dlqTopic", c.cfg.DLQTopic,
	)
	return nil
}

func dlqHeaders(msg *cKafka.Message, cause error) map[string]string {
	h := map[string]string{
		HeaderDLQOriginalPartition: strconv.Itoa(int(msg.TopicPartition.Partition)),
		HeaderDLQOriginalOffset:    msg.TopicPartition.Offset.String(),
	}
	if msg.TopicPartition.Topic != nil {
		h[HeaderDLQOriginalTopic] = *msg.TopicPartition.Topic
	}
	if cause != nil {
		h[HeaderDLQError] = cause.Error()
	}
	return h
}

func describe(msg *cKafka.Message) string {
	topic := ""
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}
	return fmt.Sprintf("%s[%d]@%s", topic, msg.TopicPartition.Partition, msg.TopicPartition.Offset)
}

// close waits up to GoroutineWaitTimeout for in-flight messages, then shuts
// down the DLQ producer and the consumer.
func (c *Consumer) close() error {
	close(c.doneCh)
	<-c.logsDone

	waited := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(*c.cfg.GoroutineWaitTimeout):
		c.log.Warnw("timed out waiting for in-flight messages", "timeout", *c.cfg.GoroutineWaitTimeout)
	}

	c.dlqProducer.Close(*c.cfg.FlushTimeout)
	return c.consumer.Close()
}

// getRebalanceCallback tracks a cancelable context per assigned partition and
// forwards the event to the OffsetManager.
func (c *Consumer) getRebalanceCallback(ctx context.Context) cKafka.RebalanceCb {
	return func(kc *cKafka.Consumer, event cKafka.Event) error {
		c.rebalanceMutex.Lock()
		defer c.rebalanceMutex.Unlock()

		switch ev := event.(type) {
		case cKafka.AssignedPartitions:
			c.log.Infow("partitions assigned",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
			)
			for _, partition := range ev.Partitions {
				rCtx := rebalanceCtx{}
				rCtx.ctx, rCtx.cancel = context.WithCancel(ctx)
				c.rebalanceContexts[partition.Partition] = rCtx
			}
		case cKafka.RevokedPartitions:
			c.log.Infow("partitions revoked",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
			)
			if kc.AssignmentLost() {
				c.log.Error("assignment lost involuntarily, commit may fail")
			}
			for _, partition := range ev.Partitions {
				if rc, ok := c.rebalanceContexts[partition.Partition]; ok {
					rc.cancel()
				}
				delete(c.rebalanceContexts, partition.Partition)
			}
		default:
			c.log.Warnw("unexpected rebalance event", "event", event)
		}
		return c.offsetManager.RebalanceCb(kc, event)
	}
}

func (c *Consumer) printKafkaLogs(ctx context.Context) {
	defer close(c.logsDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.doneCh:
			return
		case log, ok := <-c.consumer.Logs():
			if !ok {
				return
			}
			c.log.Debugw("librdkafka", "level", log.Level, "tag", log.Tag, "message", log.Message)
		}
	}
}
