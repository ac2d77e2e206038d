package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/message"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/messages"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
)

const (
	HeaderType       = "type"
	HeaderCheckpoint = "checkpoint"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Produce(ctx context.Context, msg kafka.Msg) error
}

// Kafka publishes each TicketBought record, sealed in a message.Envelope, and
// waits for the broker to acknowledge it.
type Kafka struct {
	producer Publisher
	topic    string
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
}

func NewKafka(producer Publisher, topic string, log *zap.SugaredLogger, m *metrics.Metrics) (*Kafka, error) {
	if producer == nil {
		return nil, errors.New("invalid producer: must not be nil")
	}
	if topic == "" {
		return nil, errors.New("invalid topic: must not be empty")
	}
	return &Kafka{producer: producer, topic: topic, log: log, metrics: m}, nil
}

func (k *Kafka) RecordDecoded(ctx context.Context, ev processor.DecodedEvent) error {
	msg, ok := ticketMessage(k.log, NameKafka, ev)
	if !ok {
		return nil
	}
	return timed(k.metrics, NameKafka, func() error {
		ts := time.UnixMilli(int64(msg.TimestampMs))
		value, err := message.Seal(messages.TypeTicketBought, messages.TicketBoughtVersion, msg.Key(), ts, msg)
		if err != nil {
			return err
		}
		err = k.producer.Produce(ctx, kafka.Msg{
			Topic: k.topic,
			Key:   []byte(msg.Key()),
			Value: value,
			// checkpoint time, not publish time
			Timestamp: ts,
			Headers: map[string]string{
				HeaderType:       messages.TypeTicketBought,
				HeaderCheckpoint: strconv.FormatUint(msg.Checkpoint, 10),
			},
		})
		if err != nil {
			return fmt.Errorf("produce %s to %s: %w", msg.Key(), k.topic, err)
		}
		return nil
	})
}

func (*Kafka) DecodeFailed(context.Context, processor.FailedEvent) error { return nil }

func (*Kafka) CheckpointProcessed(context.Context, checkpoint.Summary, processor.Stats) error {
	return nil
}
