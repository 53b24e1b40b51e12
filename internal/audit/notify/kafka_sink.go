package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"audittrail/internal/audit/models"
	"audittrail/internal/platform/kafka/producer"
)

const (
	DefaultEntriesTopic = "audit.entries"
	DefaultAlertsTopic  = "audit.alerts"
)

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msgs ...producer.Message) error
}

// KafkaSink publishes every notification to the entries topic and those that
// require an alert to the alerts topic as well. Records are keyed by entry ID.
type KafkaSink struct {
	producer     Producer
	entriesTopic string
	alertsTopic  string
}

func NewKafkaSink(p Producer, entriesTopic, alertsTopic string) *KafkaSink {
	if entriesTopic == "" {
		entriesTopic = DefaultEntriesTopic
	}
	if alertsTopic == "" {
		alertsTopic = DefaultAlertsTopic
	}
	return &KafkaSink{producer: p, entriesTopic: entriesTopic, alertsTopic: alertsTopic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, batch []models.Notification) error {
	msgs := make([]producer.Message, 0, len(batch))
	for _, n := range batch {
		value, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification %s: %w", n.EntryID, err)
		}
		key := []byte(n.EntryID.String())
		msgs = append(msgs, producer.Message{Topic: s.entriesTopic, Key: key, Value: value})
		if n.RequiresAlert {
			msgs = append(msgs, producer.Message{Topic: s.alertsTopic, Key: key, Value: value})
		}
	}
	if err := s.producer.Produce(ctx, msgs...); err != nil {
		return fmt.Errorf("produce %d notification record(s): %w", len(msgs), err)
	}
	return nil
}
