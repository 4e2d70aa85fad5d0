package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PrizeLockedEvent is emitted when a host verifies an event and the prize
// moves from their balance into escrow.
type PrizeLockedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	HostID        uuid.UUID       `json:"host_id"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	LockedAt      time.Time       `json:"locked_at"`
}

// VerificationRevokedEvent is emitted when an administrator removes an
// event's verification. OutstandingLock carries the amount still held in escrow.
type VerificationRevokedEvent struct {
	EventID         uuid.UUID       `json:"event_id"`
	RevokedBy       uuid.UUID       `json:"revoked_by"`
	HostID          uuid.UUID       `json:"host_id"`
	OutstandingLock decimal.Decimal `json:"outstanding_lock"`
	RevokedAt       time.Time       `json:"revoked_at"`
}

// PrizeDistributedEvent is emitted when a winner is selected and paid.
type PrizeDistributedEvent struct {
	EventID          uuid.UUID       `json:"event_id"`
	HostID           uuid.UUID       `json:"host_id"`
	WinnerID         uuid.UUID       `json:"winner_id"`
	SenderWalletID   uuid.UUID       `json:"sender_wallet_id"`
	ReceiverWalletID uuid.UUID       `json:"receiver_wallet_id"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	Amount           decimal.Decimal `json:"amount"`
	EarlySelection   bool            `json:"early_selection"`
	DistributedAt    time.Time       `json:"distributed_at"`
}

// EscrowDriftDetectedEvent reports a wallet whose locked balance disagrees
// with the transaction log.
type EscrowDriftDetectedEvent struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	UserID        uuid.UUID       `json:"user_id"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	LedgerLocked  decimal.Decimal `json:"ledger_locked"`
	Difference    decimal.Decimal `json:"difference"`
	DetectedAt    time.Time       `json:"detected_at"`
}
