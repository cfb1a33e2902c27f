// Package observability publishes rate limit audit events to Kafka so the
// abuse-monitoring pipeline can consume violations independently of logs.
package observability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"quotagate/internal/ratelimit/ports"
)

// DefaultTopic is the violations topic consumed by abuse monitoring.
const DefaultTopic = "quotagate.ratelimit.violations"

// KafkaPublisher emits audit events to a Kafka topic. Production is
// fire-and-forget; the rate limit decision never waits on the broker.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher creates a publisher for the given brokers. Topic falls
// back to DefaultTopic when empty.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Emit publishes an audit event keyed by identifier so one caller's events
// land in one partition, in order.
func (p *KafkaPublisher) Emit(ctx context.Context, event ports.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Identifier),
		Value: payload,
	}
	p.client.Produce(ctx, record, nil)
	return nil
}

// Close flushes pending records and releases the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush audit events: %w", err)
	}
	p.client.Close()
	return nil
}
