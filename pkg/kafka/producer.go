package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// ErrProducerClosed is returned by Produce once Close has started.
var ErrProducerClosed = errors.New("kafka producer closed")

// queueFullRetryDelay is how long Produce backs off when librdkafka's local
// queue is full.
const queueFullRetryDelay = time.Second

// Msg is a record to produce. Key selects the partition: ticket events are
// keyed by transaction digest and event sequence, DLQ entries keep the key of
// the message that failed.
type Msg struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	// Timestamp is the record time; zero lets the broker assign it. Ticket
	// events carry their checkpoint time.
	Timestamp time.Time
}

// Producer publishes ticket events for the checkpoint fetcher and failed
// records for the consumer's DLQ. Produce waits for the broker's
// acknowledgement, so a returned nil means the record is durable.
//
// A single background goroutine drains librdkafka's event and log channels
// and reports fatal client errors on Errors. Close must be called to stop it
// and flush the queue.
type Producer struct {
	producer *kafka.Producer
	log      *zap.SugaredLogger

	errCh    chan error
	closing  chan struct{}
	loopDone chan struct{}
	once     sync.Once
}

// NewProducer creates a producer from conf. ctx bounds the background
// goroutine; Close is still required to flush and release the client.
func NewProducer(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*Producer, error) {
	logsEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		return nil, fmt.Errorf("read go.logs.channel.enable: %w", err)
	}

	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	q := &Producer{
		producer: p,
		log:      log,
		errCh:    make(chan error, 1),
		closing:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	var logs chan kafka.LogEvent
	if enabled, _ := logsEnabled.(bool); enabled {
		logs = p.Logs()
	}
	go q.loop(ctx, logs)

	return q, nil
}

// Produce enqueues msg and blocks until its delivery report arrives or ctx is
// done. On ctx cancellation the record may still be delivered later, so
// callers that retry must tolerate duplicates; consumers dedupe on the key.
func (q *Producer) Produce(ctx context.Context, msg Msg) error {
	select {
	case <-q.closing:
		return ErrProducerClosed
	default:
	}

	km := toKafkaMessage(msg)
	report := make(chan kafka.Event, 1)

	for {
		err := q.producer.Produce(km, report)
		if err == nil {
			break
		}
		retry, err := classifyProduceError(err)
		if !retry {
			return err
		}
		q.log.Warnw("producer queue full, backing off", "topic", msg.Topic, "delay", queueFullRetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closing:
			return ErrProducerClosed
		case <-time.After(queueFullRetryDelay):
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-report:
		return handleDeliveryEvent(q.log, km, ev)
	}
}

// Close stops the background goroutine, flushes queued records for up to
// timeout and closes the client. Records still queued at the deadline are
// lost. Only the first call has an effect.
func (q *Producer) Close(timeout time.Duration) {
	q.once.Do(func() {
		q.log.Info("closing kafka producer")
		close(q.closing)
		<-q.loopDone
		defer close(q.errCh)

		if pending := q.producer.Flush(int(timeout.Milliseconds())); pending > 0 {
			q.log.Warnw("flush incomplete, messages will be lost", "pending", pending)
		}
		q.producer.Close()
		q.log.Info("kafka producer closed")
	})
}

// Errors yields at most one fatal client error and is closed by Close. After
// an error the producer is unusable and must be replaced.
func (q *Producer) Errors() <-chan error {
	return q.errCh
}

// loop drains client events and, when enabled, librdkafka logs. A nil logs
// channel never fires.
func (q *Producer) loop(ctx context.Context, logs chan kafka.LogEvent) {
	defer close(q.loopDone)
	for {
		select {
		case <-ctx.Done():
			q.log.Info("kafka producer loop stopped, context done")
			return
		case <-q.closing:
			return
		case l, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			q.log.Debugw("librdkafka", "level", l.Level, "tag", l.Tag, "message", l.Message)
		case ev, ok := <-q.producer.Events():
			if !ok {
				q.reportFatal(errors.New("kafka producer event channel closed"))
				return
			}
			if err := q.handleEvent(ev); err != nil {
				q.reportFatal(err)
				return
			}
		}
	}
}

// handleEvent returns an error only for events that make the client unusable.
func (q *Producer) handleEvent(ev kafka.Event) error {
	switch e := ev.(type) {
	case kafka.Error:
		if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
			return fmt.Errorf("kafka producer failed (code %#x): %w", e.Code(), e)
		}
		q.log.Warnw("ignoring kafka error", "code", e.Code(), "error", e)
	case *kafka.Message:
		// Every Produce call passes its own report channel.
		q.log.Errorw("delivery report on shared events channel", "partition", e.TopicPartition)
	case kafka.Stats:
		q.log.Debugw("kafka stats", "stats", e.String())
	default:
		q.log.Debugw("unhandled producer event", "event", e)
	}
	return nil
}

func (q *Producer) reportFatal(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnw("fatal producer error already pending", "error", err)
	}
}

// classifyProduceError reports whether a synchronous Produce failure is worth
// retrying. Only a full local queue is; everything else is returned wrapped.
func classifyProduceError(err error) (bool, error) {
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return false, fmt.Errorf("failed to produce: %w", err)
	}
	switch kerr.Code() {
	case kafka.ErrQueueFull:
		return true, err
	case kafka.ErrBrokerNotAvailable:
		return false, fmt.Errorf("broker not available: %w", err)
	case kafka.ErrMsgSizeTooLarge, kafka.ErrInvalidMsgSize:
		return false, fmt.Errorf("invalid message size: %w", err)
	case kafka.ErrInvalidMsg:
		return false, fmt.Errorf("invalid message: %w", err)
	case kafka.ErrUnknownTopicOrPart, kafka.ErrUnknownTopic:
		return false, fmt.Errorf("unknown topic or partition: %w", err)
	case kafka.ErrAuthentication, kafka.ErrTopicAuthorizationFailed:
		return false, fmt.Errorf("not authorized: %w", err)
	default:
		return false, fmt.Errorf("failed to produce: %w", err)
	}
}

func toKafkaMessage(msg Msg) *kafka.Message {
	topic := msg.Topic
	km := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            msg.Key,
		Value:          msg.Value,
		Headers:        toKafkaHeaders(msg.Headers),
	}
	if !msg.Timestamp.IsZero() {
		km.Timestamp = msg.Timestamp
		km.TimestampType = kafka.TimestampCreateTime
	}
	return km
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	e, ok := ev.(*kafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
	if err := e.TopicPartition.Error; err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}

	log.Debugw("delivered message",
		"topic", *msg.TopicPartition.Topic,
		"partition", e.TopicPartition.Partition,
		"offset", e.TopicPartition.Offset,
		"key", string(msg.Key),
	)
	return nil
}

// toKafkaHeaders orders headers by key so reproducing the same Msg yields the
// same header list.
func toKafkaHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(h[k])})
	}
	return out
}
