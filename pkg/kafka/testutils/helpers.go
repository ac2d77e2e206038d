package testutils

import (
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/message"
)

// SealedAt is the envelope timestamp NewSealedMessage uses.
var SealedAt = time.UnixMilli(1700000000000)

func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewTestMessage builds a consumed record at topic[partition]@offset.
func NewTestMessage(topic string, partition int32, offset int64, key, value []byte) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: partition,
			Offset:    kafka.Offset(offset),
		},
		Key:   key,
		Value: value,
	}
}

// NewSealedMessage wraps payload in an envelope of msgType and version, the
// way the fetcher's kafka sink publishes it, at ticket-bought[0]@12.
func NewSealedMessage(t *testing.T, msgType string, version int, key string, payload any) *kafka.Message {
	t.Helper()
	value, err := message.Seal(msgType, version, key, SealedAt, payload)
	require.NoError(t, err)
	return NewTestMessage("ticket-bought", 0, 12, []byte(key), value)
}
