// Package kafka forwards audit events to a Kafka topic keyed by subject so
// every event for one certificate or student lands on one partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"registrar/internal/audit"
	"registrar/internal/platform/kafka/producer"
)

const DefaultTopic = "registrar.certificate-events"

// Producer is the subset of producer.Producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

type Sink struct {
	producer Producer
	topic    string
}

func New(p Producer, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{producer: p, topic: topic}
}

var _ audit.Store = (*Sink)(nil)

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
		Headers: map[string]string{
			"action":     string(event.Action),
			"request_id": event.RequestID,
		},
	})
}
