package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox/registry"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	// ResumePublish unpauses an ordering key after a failed publish.
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type outcomeKind int

const (
	outcomePublished outcomeKind = iota
	outcomeRetry
	outcomeDeadLetter
	// outcomeHeld rows sit behind a failed row with the same ordering key.
	// They are left untouched and picked up next batch.
	outcomeHeld
)

type outcome struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	kind     outcomeKind
	err      error
}

type pending struct {
	idx    int
	result publishResult
}

// publishBatch resolves every row, hands all publishable rows to Pub/Sub at
// once and waits for the acks. Rows come back in input order.
func (s *Service) publishBatch(ctx context.Context, events []models.OutboxEvent) []outcome {
	outcomes := make([]outcome, len(events))
	var inflight []pending

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	for i, event := range events {
		outcomes[i] = outcome{event: event}
		resolved, err := s.registry.Resolve(event)
		if err != nil {
			outcomes[i].kind, outcomes[i].err = outcomeDeadLetter, err
			continue
		}
		outcomes[i].resolved = resolved

		pub := s.publisherFor(resolved.Descriptor.Topic)
		if pub == nil {
			outcomes[i].kind = outcomeDeadLetter
			outcomes[i].err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", resolved.Descriptor.Topic))
			continue
		}
		result := pub.Publish(publishCtx, &gcppubsub.Message{
			Data:        event.Payload,
			Attributes:  messageAttributes(event, resolved),
			OrderingKey: resolved.OrderingKey,
		})
		if result == nil {
			outcomes[i].kind, outcomes[i].err = outcomeRetry, errors.New("publisher returned no result")
			continue
		}
		inflight = append(inflight, pending{idx: i, result: result})
	}

	for _, p := range inflight {
		if _, err := p.result.Get(publishCtx); err != nil {
			outcomes[p.idx].kind, outcomes[p.idx].err = outcomeRetry, err
		}
	}

	s.holdBehindFailures(outcomes)
	return outcomes
}

// holdBehindFailures keeps per-aggregate order: once a row for an ordering
// key fails, later rows with that key in the batch wait for the next batch,
// and the key is resumed so the next batch can publish again.
func (s *Service) holdBehindFailures(outcomes []outcome) {
	failed := map[string]string{}
	for i := range outcomes {
		o := &outcomes[i]
		if o.resolved == nil || o.resolved.OrderingKey == "" {
			continue
		}
		key := o.resolved.OrderingKey
		if _, blocked := failed[key]; blocked {
			o.kind, o.err = outcomeHeld, nil
			continue
		}
		if o.kind == outcomeRetry || o.kind == outcomeDeadLetter {
			failed[key] = o.resolved.Descriptor.Topic
		}
	}
	for key, topic := range failed {
		if pub := s.publisherFor(topic); pub != nil {
			pub.ResumePublish(key)
		}
	}
}

// messageAttributes lets subscribers filter and trace without decoding the
// payload. request_id is only present for rows written during an API call.
func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
	}
	if event.RequestID != nil && *event.RequestID != "" {
		attrs["request_id"] = *event.RequestID
	}
	return attrs
}

// publisherFor caches one publisher per topic so batching and ordering state
// survive across batches.
func (s *Service) publisherFor(topic string) publisher {
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.publisherFactory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{Publisher: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
