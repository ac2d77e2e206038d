package testutils

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/mock"
)

// MockProcessor stands in for processor.Processor in consumer tests.
type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, msg *kafka.Message) error {
	return m.Called(ctx, msg).Error(0)
}
