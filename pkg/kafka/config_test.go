package kafka

import (
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func durationPtr(d time.Duration) *time.Duration { return &d }

// timeouts flattens the pointer fields WithDefaults fills, in declaration order.
func timeouts(t *testing.T, c ConsumerConfig) []time.Duration {
	t.Helper()
	out := make([]time.Duration, 0, 5)
	for _, p := range []*time.Duration{c.SessionTimeout, c.MaxPollInterval, c.FlushTimeout, c.GoroutineWaitTimeout, c.PollInterval} {
		require.NotNil(t, p)
		out = append(out, *p)
	}
	return out
}

func TestConsumerConfig_WithDefaults(t *testing.T) {
	t.Parallel()
	defaults := []time.Duration{
		DefaultSessionTimeout, DefaultMaxPollInterval, DefaultFlushTimeout, DefaultGoroutineWaitTimeout, DefaultPollInterval,
	}

	tests := []struct {
		name  string
		input ConsumerConfig
		want  []time.Duration
	}{
		{name: "all unset", input: ConsumerConfig{}, want: defaults},
		{
			name:  "session and flush set",
			input: ConsumerConfig{SessionTimeout: durationPtr(time.Minute), FlushTimeout: durationPtr(30 * time.Second)},
			want:  []time.Duration{time.Minute, DefaultMaxPollInterval, 30 * time.Second, DefaultGoroutineWaitTimeout, DefaultPollInterval},
		},
		{
			name: "zero is an explicit value",
			input: ConsumerConfig{
				SessionTimeout: durationPtr(0), MaxPollInterval: durationPtr(0), FlushTimeout: durationPtr(0),
				GoroutineWaitTimeout: durationPtr(0), PollInterval: durationPtr(0),
			},
			want: []time.Duration{0, 0, 0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, timeouts(t, tt.input.WithDefaults()))
		})
	}
}

func TestConsumerConfig_WithDefaults_KeepsOtherFieldsAndOriginal(t *testing.T) {
	t.Parallel()
	orig := ConsumerConfig{Topic: "ticket-bought", GroupID: "g", Concurrency: 4, PublishToDLQ: true}

	got := orig.WithDefaults()

	assert.Nil(t, orig.SessionTimeout, "receiver is a copy")
	assert.Equal(t, "ticket-bought", got.Topic)
	assert.Equal(t, "g", got.GroupID)
	assert.Equal(t, int64(4), got.Concurrency)
	assert.True(t, got.PublishToDLQ)
	assert.Equal(t, timeouts(t, got), timeouts(t, got.WithDefaults()), "idempotent")
}

func TestLoadConsumerConfig_Defaults(t *testing.T) {
	cfg, err := LoadConsumerConfig()
	require.NoError(t, err)

	assert.Equal(t, "ticket-bought", cfg.Topic)
	assert.Equal(t, "ticket-bought-dlq", cfg.DLQTopic)
	assert.Equal(t, "ticket-bought-indexer", cfg.GroupID)
	assert.Equal(t, int64(10), cfg.Concurrency)
	assert.True(t, cfg.PublishToDLQ)
	assert.Equal(t, "SCRAM-SHA-512", cfg.SASL.Mechanism)
	require.NotNil(t, cfg.PollInterval)
	assert.Equal(t, DefaultPollInterval, *cfg.PollInterval)
}

func TestLoadConsumerConfig_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_TOPIC", "tickets")
	t.Setenv("KAFKA_SESSION_TIMEOUT", "45s")
	t.Setenv("KAFKA_PUBLISH_TO_DLQ", "false")
	t.Setenv("KAFKA_SASL_USERNAME", "indexer")

	cfg, err := LoadConsumerConfig()
	require.NoError(t, err)
	assert.Equal(t, "tickets", cfg.Topic)
	assert.Equal(t, 45*time.Second, *cfg.SessionTimeout)
	assert.False(t, cfg.PublishToDLQ)
	assert.Equal(t, "indexer", cfg.SASL.Username)
}

func TestLoadConsumerConfig_ParseError(t *testing.T) {
	t.Setenv("KAFKA_CONCURRENCY", "many")

	_, err := LoadConsumerConfig()
	require.ErrorContains(t, err, "parse consumer config")
}

func TestSASLConfig_ApplyToConfigMap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sasl    SASLConfig
		wantErr string
		wantSet bool
	}{
		{name: "disabled without username"},
		{
			name:    "username without password",
			sasl:    SASLConfig{Username: "u", Mechanism: "PLAIN", SecurityProtocol: "SASL_SSL"},
			wantErr: "password is required",
		},
		{
			name:    "enabled",
			sasl:    SASLConfig{Username: "u", Password: "p", Mechanism: "PLAIN", SecurityProtocol: "SASL_PLAINTEXT"},
			wantSet: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &cKafka.ConfigMap{"bootstrap.servers": "localhost:9092"}
			err := tt.sasl.ApplyToConfigMap(cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			_, ok := (*cfg)["sasl.username"]
			assert.Equal(t, tt.wantSet, ok)
			if tt.wantSet {
				assert.Equal(t, "PLAIN", (*cfg)["sasl.mechanisms"])
				assert.Equal(t, "SASL_PLAINTEXT", (*cfg)["security.protocol"])
			}
		})
	}
}

func TestProducerConfig_ConfigMap(t *testing.T) {
	t.Parallel()

	_, err := ProducerConfig{}.ConfigMap()
	require.ErrorContains(t, err, "bootstrap servers are required")

	cfg, err := ProducerConfig{
		BootstrapServers: "broker:9092",
		ClientID:         "checkpoint-fetcher",
		MessageMaxBytes:  1 << 20,
	}.ConfigMap()
	require.NoError(t, err)
	assert.Equal(t, "all", (*cfg)["acks"])
	assert.Equal(t, true, (*cfg)["enable.idempotence"])
	assert.Equal(t, "checkpoint-fetcher", (*cfg)["client.id"])
	assert.Equal(t, 1<<20, (*cfg)["message.max.bytes"])
	_, hasSASL := (*cfg)["sasl.username"]
	assert.False(t, hasSASL)
}
