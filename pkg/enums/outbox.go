package enums

// OutboxAggregateType maps to aggregate_type_enum.
type OutboxAggregateType string

const (
	AggregateEvent  OutboxAggregateType = "event"
	AggregateWallet OutboxAggregateType = "wallet"
)

func (a OutboxAggregateType) IsValid() bool {
	return oneOf(a, AggregateEvent, AggregateWallet)
}

// OutboxEventType maps to event_type_enum. Values double as the Pub/Sub
// event_type attribute, so they are never renamed.
type OutboxEventType string

const (
	EventPrizeLocked         OutboxEventType = "event_prize_locked"
	EventVerificationRevoked OutboxEventType = "event_verification_revoked"
	EventPrizeDistributed    OutboxEventType = "event_prize_distributed"
	EventEscrowDriftDetected OutboxEventType = "escrow_drift_detected"
)

func (e OutboxEventType) IsValid() bool {
	return oneOf(e, EventPrizeLocked, EventVerificationRevoked, EventPrizeDistributed, EventEscrowDriftDetected)
}

// OutboxDLQErrorReason records why the publisher stopped retrying a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return oneOf(r, OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable)
}
