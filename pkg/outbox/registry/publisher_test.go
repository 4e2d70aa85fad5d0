package registry

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventprize-backend/pkg/config"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox/payloads"
)

func TestResolvePrizeLockedIsOrderedPerEvent(t *testing.T) {
	reg := newTestEventRegistry(t)
	eventID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPrizeLocked,
		AggregateType: enums.AggregateEvent,
		AggregateID:   eventID,
		Payload: envelopeFor(t, 1, payloads.PrizeLockedEvent{
			EventID:  eventID,
			HostID:   uuid.New(),
			WalletID: uuid.New(),
			Amount:   decimal.RequireFromString("2.5"),
		}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "escrow-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	if resolved.OrderingKey != eventID.String() {
		t.Fatalf("expected ordering key %s, got %q", eventID, resolved.OrderingKey)
	}
	payload, ok := resolved.Payload.(*payloads.PrizeLockedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.EventID != eventID || !payload.Amount.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing: %+v", resolved.Envelope)
	}
}

func TestResolveDriftGoesToAuditTopicUnordered(t *testing.T) {
	reg := newTestEventRegistry(t)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventEscrowDriftDetected,
		AggregateType: enums.AggregateWallet,
		AggregateID:   uuid.New(),
		Payload:       envelopeFor(t, 1, payloads.EscrowDriftDetectedEvent{WalletID: uuid.New()}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "audit-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	if resolved.OrderingKey != "" {
		t.Fatalf("drift reports are unordered, got key %q", resolved.OrderingKey)
	}
}

func TestAuditTopicFallsBackToEscrowTopic(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{EscrowTopic: "escrow-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	if topics := reg.Topics(); len(topics) != 1 || topics[0] != "escrow-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic error")
	}
}

func TestTopicsAreDistinct(t *testing.T) {
	topics := newTestEventRegistry(t).Topics()
	sort.Strings(topics)
	if len(topics) != 2 || topics[0] != "audit-topic" || topics[1] != "escrow-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestResolveRejectsBadRowsAsNonRetryable(t *testing.T) {
	reg := newTestEventRegistry(t)
	tests := []struct {
		name  string
		event models.OutboxEvent
	}{
		{
			name: "unknown type",
			event: models.OutboxEvent{
				EventType: enums.OutboxEventType("event_archived"), AggregateType: enums.AggregateEvent,
				AggregateID: uuid.New(), Payload: envelopeFor(t, 1, map[string]string{"reason": "none"}),
			},
		},
		{
			name: "aggregate mismatch",
			event: models.OutboxEvent{
				EventType: enums.EventPrizeDistributed, AggregateType: enums.AggregateWallet,
				AggregateID: uuid.New(), Payload: envelopeFor(t, 1, map[string]string{}),
			},
		},
		{
			name: "missing aggregate",
			event: models.OutboxEvent{
				EventType: enums.EventPrizeLocked, AggregateType: enums.AggregateEvent,
				Payload: envelopeFor(t, 1, map[string]string{}),
			},
		},
		{
			name: "null data",
			event: models.OutboxEvent{
				EventType: enums.EventVerificationRevoked, AggregateType: enums.AggregateEvent,
				AggregateID: uuid.New(), Payload: envelopeFor(t, 1, nil),
			},
		},
		{
			name: "future envelope version",
			event: models.OutboxEvent{
				EventType: enums.EventPrizeLocked, AggregateType: enums.AggregateEvent,
				AggregateID: uuid.New(), Payload: envelopeFor(t, outbox.CurrentVersion+1, map[string]string{}),
			},
		},
		{
			name: "corrupt json",
			event: models.OutboxEvent{
				EventType: enums.EventPrizeLocked, AggregateType: enums.AggregateEvent,
				AggregateID: uuid.New(), Payload: json.RawMessage(`{"version":`),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(tt.event)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsNonRetryable(err) {
				t.Fatalf("expected non-retryable error, got %T: %v", err, err)
			}
		})
	}
}

func TestIsNonRetryableSeesThroughWrapping(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), NewNonRetryableError(errors.New("bad payload")))
	if !IsNonRetryable(wrapped) {
		t.Fatalf("expected wrapped non-retryable to match")
	}
	if IsNonRetryable(errors.New("timeout")) {
		t.Fatalf("plain errors are retryable")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		EscrowTopic: "escrow-topic",
		AuditTopic:  "audit-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func envelopeFor(t *testing.T, version int, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}
