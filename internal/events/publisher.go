package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// OrderEvent is the lifecycle notification emitted after a committed order
// mutation. Amounts travel as strings to keep decimal precision on the wire.
type OrderEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ExchangeID  uuid.UUID `json:"exchange_id"`
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	Direction   string    `json:"direction"`
	Amount      string    `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher writes order lifecycle events to Kafka, keyed by order ID so a
// single order's history stays in partition order. A nil Publisher is a
// no-op, which is how deployments without brokers run.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, evt OrderEvent) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.OrderID.String()),
		Value: payload,
	})
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
