package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher delivers notification events to a Kafka topic. Events are
// keyed by tenant so per-tenant ordering survives partitioning.
//
// Production is asynchronous: Publish hands the record to the client's
// buffer and returns, so the append path never waits on the broker. Delivery
// failures are logged, matching the best-effort contract for notifications.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher wraps an existing franz-go client. The caller owns the
// client lifecycle; Close only flushes buffered records.
func NewKafkaPublisher(client *kgo.Client, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

// wireEvent is the JSON structure written to the topic. IDs are serialized
// as canonical UUID strings.
type wireEvent struct {
	Kind         string `json:"kind"`
	TenantID     string `json:"tenantId"`
	EntryID      string `json:"entryId,omitempty"`
	RuleID       string `json:"ruleId,omitempty"`
	IncidentID   string `json:"incidentId,omitempty"`
	CheckpointID string `json:"checkpointId,omitempty"`
	Action       string `json:"action,omitempty"`
	OccurredAt   string `json:"occurredAt"`
}

// Publish enqueues the event for delivery. Only marshal failures are
// returned; broker failures are logged from the produce callback.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	wire := wireEvent{
		Kind:       string(event.Kind),
		TenantID:   event.TenantID.String(),
		Action:     event.Action,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if !event.EntryID.IsNil() {
		wire.EntryID = event.EntryID.String()
	}
	if !event.RuleID.IsNil() {
		wire.RuleID = event.RuleID.String()
	}
	if !event.IncidentID.IsNil() {
		wire.IncidentID = event.IncidentID.String()
	}
	if !event.CheckpointID.IsNil() {
		wire.CheckpointID = event.CheckpointID.String()
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.TenantID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("notification delivery failed",
				"kind", wire.Kind,
				"tenant_id", wire.TenantID,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes any buffered records.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	return p.client.Flush(ctx)
}
