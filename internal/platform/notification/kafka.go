package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes journey events for downstream consumers such as
// signage boards and analytics. Messages are keyed by visit so one visit's
// events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		topic: topic,
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal journey event: %w", err)
	}

	km := kafka.Message{
		Key:   []byte(msg.VisitID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(msg.Event)},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: msg.OccurredAt,
	}
	if msg.TenantID != "" {
		km.Headers = append(km.Headers, kafka.Header{Key: "tenant-id", Value: []byte(msg.TenantID)})
	}

	if err := s.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
