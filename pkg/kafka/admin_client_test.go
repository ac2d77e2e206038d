package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdmin struct {
	topics      map[string]kafka.TopicMetadata
	metadataErr error
	createErr   kafka.Error
	created     []kafka.TopicSpecification
	increased   []kafka.PartitionsSpecification
}

func (f *fakeAdmin) GetMetadata(*string, bool, int) (*kafka.Metadata, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return &kafka.Metadata{Topics: f.topics}, nil
}

func (f *fakeAdmin) CreateTopics(_ context.Context, topics []kafka.TopicSpecification, _ ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error) {
	f.created = append(f.created, topics...)
	results := make([]kafka.TopicResult, 0, len(topics))
	for _, t := range topics {
		results = append(results, kafka.TopicResult{Topic: t.Topic, Error: f.createErr})
	}
	return results, nil
}

func (f *fakeAdmin) CreatePartitions(_ context.Context, parts []kafka.PartitionsSpecification, _ ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error) {
	f.increased = append(f.increased, parts...)
	results := make([]kafka.TopicResult, 0, len(parts))
	for _, p := range parts {
		results = append(results, kafka.TopicResult{Topic: p.Topic})
	}
	return results, nil
}

func partitions(n int, replicas ...int32) []kafka.PartitionMetadata {
	out := make([]kafka.PartitionMetadata, n)
	for i := range out {
		out[i] = kafka.PartitionMetadata{ID: int32(i), Replicas: replicas}
	}
	return out
}

func TestTopicConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     TopicConfig
		wantErr string
	}{
		{name: "valid", cfg: TopicConfig{Name: "ticket-bought", NumPartitions: 6, ReplicationFactor: 3}},
		{name: "empty name", cfg: TopicConfig{NumPartitions: 1, ReplicationFactor: 1}, wantErr: "topic name cannot be empty"},
		{name: "zero partitions", cfg: TopicConfig{Name: "t", ReplicationFactor: 1}, wantErr: "number of partitions must be > 0"},
		{name: "negative replication", cfg: TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: -1}, wantErr: "replication factor must be > 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGetReplicationFactor(t *testing.T) {
	t.Parallel()

	assert.Zero(t, getReplicationFactor(&kafka.TopicMetadata{Topic: "empty"}))
	assert.Equal(t, 3, getReplicationFactor(&kafka.TopicMetadata{
		Topic: "ticket-bought",
		Partitions: []kafka.PartitionMetadata{
			{ID: 0, Replicas: []int32{1, 2, 3}},
			{ID: 1, Replicas: []int32{2, 3, 1}},
		},
	}))
}

func TestEnsureTopic(t *testing.T) {
	t.Parallel()
	cfg := TopicConfig{Name: "ticket-bought", NumPartitions: 3, ReplicationFactor: 1}
	log := zap.NewNop().Sugar()

	t.Run("creates missing topic", func(t *testing.T) {
		t.Parallel()
		admin := &fakeAdmin{}
		require.NoError(t, EnsureTopic(t.Context(), admin, cfg, log))
		require.Len(t, admin.created, 1)
		assert.Equal(t, "ticket-bought", admin.created[0].Topic)
		assert.Equal(t, 3, admin.created[0].NumPartitions)
	})

	t.Run("already exists race is fine", func(t *testing.T) {
		t.Parallel()
		admin := &fakeAdmin{createErr: kafka.NewError(kafka.ErrTopicAlreadyExists, "exists", false)}
		require.NoError(t, EnsureTopic(t.Context(), admin, cfg, log))
	})

	t.Run("create failure", func(t *testing.T) {
		t.Parallel()
		admin := &fakeAdmin{createErr: kafka.NewError(kafka.ErrTopicAuthorizationFailed, "denied", false)}
		require.ErrorContains(t, EnsureTopic(t.Context(), admin, cfg, log), "failed to create topic")
	})

	t.Run("matching topic is left alone", func(t *testing.T) {
		t.Parallel()
		admin := &fakeAdmin{topics: map[string]kafka.TopicMetadata{
			"ticket-bought": {Topic: "ticket-bought", Partitions: partitions(3, 1)},
		}}
		require.NoError(t, EnsureTopic(t.Context(), admin, cfg, log))
		assert.Empty(t, admin.created)
		assert.Empty(t, admin.increased)
	})

	t.Run("grows partitions", func(t *testing.T) {
		t.Parallel()
		admin := &fakeAdmin{topics: map[string]kafka.TopicMetadata{
			"ticket-bought": {Topic: "ticket-bought", Partitions: partitions(1, 1)},
		}}
		require.NoError(t, EnsureTopic(t.Context(), admin, cfg, log))
		require.Len(t, admin.increased, 1)
		assert.Equal(t, 3, admin.increased[0].IncreaseTo)
	})

	t.Run("too many partitions", func(t *testing.T) {
		t.Parallel()
		admin := &fakeAdmin{topics: map[string]kafka.TopicMetadata{
			"ticket-bought": {Topic: "ticket-bought", Partitions: partitions(6, 1)},
		}}
		require.ErrorIs(t, EnsureTopic(t.Context(), admin, cfg, log), ErrTooManyPartitions)
	})

	t.Run("metadata error", func(t *testing.T) {
		t.Parallel()
		admin := &fakeAdmin{metadataErr: errors.New("no brokers")}
		require.ErrorContains(t, EnsureTopic(t.Context(), admin, cfg, log), "no brokers")
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		require.ErrorContains(t, EnsureTopic(t.Context(), &fakeAdmin{}, TopicConfig{}, log), "invalid topic config")
	})
}

func TestTopicExists_UnknownTopic(t *testing.T) {
	t.Parallel()
	admin := &fakeAdmin{topics: map[string]kafka.TopicMetadata{
		"ticket-bought": {Topic: "ticket-bought", Error: kafka.NewError(kafka.ErrUnknownTopicOrPart, "unknown", false)},
	}}
	md, err := TopicExists(admin, "ticket-bought")
	require.NoError(t, err)
	assert.Nil(t, md)
}
