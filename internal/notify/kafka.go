package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaSink publishes notification events to a Kafka topic, keyed by agency
// so per-agency ordering is preserved. Each publish waits for the broker's
// delivery report.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSink(bootstrapServers, topic string) (*KafkaSink, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": bootstrapServers})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaSink{producer: p, topic: topic}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	// Buffered and deliberately never closed: if the wait below gives up on
	// timeout or cancellation, the poller may still deliver a late report,
	// which must not land on a closed channel.
	deliveryChan := make(chan kafka.Event, 1)

	if err := s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.AgencyID),
		Value:          payload,
	}, deliveryChan); err != nil {
		return fmt.Errorf("produce notification: %w", err)
	}
	return awaitDelivery(ctx, deliveryChan)
}

// awaitDelivery blocks until the broker's delivery report arrives, the
// timeout elapses, or the context is cancelled.
func awaitDelivery(ctx context.Context, deliveryChan chan kafka.Event) error {
	select {
	case e := <-deliveryChan:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event type: %T", e)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", msg.TopicPartition.Error)
		}
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("delivery timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding messages and releases the producer.
func (s *KafkaSink) Close() {
	s.producer.Flush(15 * 1000)
	s.producer.Close()
}
