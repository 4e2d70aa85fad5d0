package registry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventprize-backend/pkg/config"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its data decodes.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	// Ordered events share an ordering key per aggregate so subscribers see
	// lock, revoke and distribution for one event in commit order.
	Ordered    bool
	newPayload func() any
}

// ResolvedEvent is a stored row decoded and routed.
type ResolvedEvent struct {
	Descriptor  EventDescriptor
	Envelope    outbox.PayloadEnvelope
	Payload     any
	OrderingKey string
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// NewEventRegistry routes escrow events to the escrow topic and drift
// reports to the audit topic, which falls back to the escrow topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.EscrowTopic == "" {
		return nil, fmt.Errorf("escrow topic is required")
	}
	audit := cfg.AuditTopic
	if audit == "" {
		audit = cfg.EscrowTopic
	}

	descriptors := []EventDescriptor{
		{EventType: enums.EventPrizeLocked, AggregateType: enums.AggregateEvent, Topic: cfg.EscrowTopic, Ordered: true, newPayload: payloadOf[payloads.PrizeLockedEvent]()},
		{EventType: enums.EventVerificationRevoked, AggregateType: enums.AggregateEvent, Topic: cfg.EscrowTopic, Ordered: true, newPayload: payloadOf[payloads.VerificationRevokedEvent]()},
		{EventType: enums.EventPrizeDistributed, AggregateType: enums.AggregateEvent, Topic: cfg.EscrowTopic, Ordered: true, newPayload: payloadOf[payloads.PrizeDistributedEvent]()},
		{EventType: enums.EventEscrowDriftDetected, AggregateType: enums.AggregateWallet, Topic: audit, newPayload: payloadOf[payloads.EscrowDriftDetectedEvent]()},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		if _, dup := reg.entries[desc.EventType]; dup {
			return nil, fmt.Errorf("event type %s registered twice", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists every distinct topic the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve validates the row and decodes its typed payload. Every failure is
// non-retryable: the row's content will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.newPayload()
	if err := envelope.Decode(payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}

	resolved := &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}
	if desc.Ordered {
		resolved.OrderingKey = event.AggregateID.String()
	}
	return resolved, nil
}
