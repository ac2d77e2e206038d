package processor

import (
	"context"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Processor handles one consumed message. A non-nil error marks the message
// as failed; the consumer then routes it to the DLQ.
type Processor interface {
	Process(ctx context.Context, msg *cKafka.Message) error
}
