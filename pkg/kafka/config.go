package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Default timeout values for Kafka consumer
const (
	DefaultSessionTimeout       = 240 * time.Second
	DefaultMaxPollInterval      = 3400 * time.Second
	DefaultFlushTimeout         = 15 * time.Second
	DefaultGoroutineWaitTimeout = 30 * time.Second
	DefaultPollInterval         = 100 * time.Millisecond
)

// ConsumerConfig holds the configuration for a Kafka consumer
type ConsumerConfig struct {
	DLQTopic                    string         `env:"KAFKA_DLQ_TOPIC"              envDefault:"ticket-bought-dlq"`     // Dead letter queue topic for failed messages
	Topic                       string         `env:"KAFKA_TOPIC"                  envDefault:"ticket-bought"`         // Primary topic to consume from
	BootstrapServers            string         `env:"KAFKA_BOOTSTRAP_SERVERS"      envDefault:"localhost:9092"`        // Kafka broker addresses
	GroupID                     string         `env:"KAFKA_GROUP_ID"               envDefault:"ticket-bought-indexer"` // Consumer group ID for offset management
	AutoOffsetReset             string         `env:"KAFKA_AUTO_OFFSET_RESET"      envDefault:"earliest"`              // Offset reset strategy: "earliest" or "latest"
	Concurrency                 int64          `env:"KAFKA_CONCURRENCY"            envDefault:"10"`                    // Maximum concurrent message processors
	OffsetManagerCommitInterval time.Duration  `env:"KAFKA_OFFSET_COMMIT_INTERVAL" envDefault:"10s"`                   // Interval for committing offsets
	SessionTimeout              *time.Duration `env:"KAFKA_SESSION_TIMEOUT"`
	MaxPollInterval             *time.Duration `env:"KAFKA_MAX_POLL_INTERVAL"`
	FlushTimeout                *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"`          // DLQ producer flush timeout on close
	GoroutineWaitTimeout        *time.Duration `env:"KAFKA_GOROUTINE_WAIT_TIMEOUT"` // Wait for in-flight processors on close
	PollInterval                *time.Duration `env:"KAFKA_POLL_INTERVAL"`
	EnableLogs                  bool           `env:"KAFKA_ENABLE_LOGS"            envDefault:"false"` // Enable librdkafka client logs
	PublishToDLQ                bool           `env:"KAFKA_PUBLISH_TO_DLQ"         envDefault:"true"`  // If false, a failed message stops the consumer
	SASL                        SASLConfig     `envPrefix:"KAFKA_SASL_"`
}

// SASLConfig carries optional broker authentication. An empty Username
// leaves the client on PLAINTEXT.
type SASLConfig struct {
	Username         string `env:"USERNAME"`
	Password         string `env:"PASSWORD"`
	Mechanism        string `env:"MECHANISM"         envDefault:"SCRAM-SHA-512"`
	SecurityProtocol string `env:"SECURITY_PROTOCOL" envDefault:"SASL_SSL"`
}

// ApplyToConfigMap sets the sasl.* and security.protocol keys when a
// username is configured.
func (s SASLConfig) ApplyToConfigMap(cfg *kafka.ConfigMap) error {
	if s.Username == "" {
		return nil
	}
	if s.Password == "" {
		return errors.New("kafka sasl password is required when a username is set")
	}
	for k, v := range map[string]kafka.ConfigValue{
		"sasl.username":     s.Username,
		"sasl.password":     s.Password,
		"sasl.mechanisms":   s.Mechanism,
		"security.protocol": s.SecurityProtocol,
	} {
		if err := cfg.SetKey(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

// LoadConsumerConfig loads Kafka configuration from environment variables.
func LoadConsumerConfig() (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := env.Parse(&cfg); err != nil {
		return ConsumerConfig{}, fmt.Errorf("parse consumer config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults returns a copy of the config with default values filled in for any nil pointer fields.
// This method does not mutate the original config.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.SessionTimeout == nil {
		timeout := DefaultSessionTimeout
		c.SessionTimeout = &timeout
	}
	if c.MaxPollInterval == nil {
		interval := DefaultMaxPollInterval
		c.MaxPollInterval = &interval
	}
	if c.FlushTimeout == nil {
		timeout := DefaultFlushTimeout
		c.FlushTimeout = &timeout
	}
	if c.GoroutineWaitTimeout == nil {
		timeout := DefaultGoroutineWaitTimeout
		c.GoroutineWaitTimeout = &timeout
	}
	if c.PollInterval == nil {
		interval := DefaultPollInterval
		c.PollInterval = &interval
	}
	return c
}

// ProducerConfig is the producer side used by the checkpoint fetcher's kafka
// sink.
type ProducerConfig struct {
	BootstrapServers string
	ClientID         string
	EnableLogs       bool
	// MessageMaxBytes bounds a single produced record.
	MessageMaxBytes int
	SASL            SASLConfig
}

// ConfigMap builds an idempotent, lz4-compressed, acks=all producer config.
func (p ProducerConfig) ConfigMap() (*kafka.ConfigMap, error) {
	if p.BootstrapServers == "" {
		return nil, errors.New("kafka bootstrap servers are required")
	}
	cfg := &kafka.ConfigMap{
		"bootstrap.servers":      p.BootstrapServers,
		"acks":                   "all",
		"linger.ms":              5,
		"batch.size":             16384,
		"compression.type":       "lz4",
		"enable.idempotence":     true,
		"go.logs.channel.enable": p.EnableLogs,
	}
	if p.ClientID != "" {
		_ = cfg.SetKey("client.id", p.ClientID)
	}
	if p.MessageMaxBytes > 0 {
		_ = cfg.SetKey("message.max.bytes", p.MessageMaxBytes)
	}
	if err := p.SASL.ApplyToConfigMap(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
