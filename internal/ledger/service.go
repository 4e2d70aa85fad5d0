package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/pagination"
)

// Service records and reads escrow transactions.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordTransactionInput) (*models.Transaction, error)
	ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Transaction, error)
	ListForWallet(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*WalletHistory, error)
	Outstanding(ctx context.Context) (*OutstandingLocks, error)
	OutstandingForEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (decimal.Decimal, error)
	OutstandingForWallet(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// RecordTransactionInput captures the immutable data a transaction requires.
type RecordTransactionInput struct {
	Type             enums.TransactionType `json:"type"`
	Amount           decimal.Decimal       `json:"amount"`
	Description      string                `json:"description"`
	UserID           uuid.UUID             `json:"user_id"`
	SenderWalletID   uuid.UUID             `json:"sender_wallet_id"`
	ReceiverWalletID *uuid.UUID            `json:"receiver_wallet_id,omitempty"`
	EventID          uuid.UUID             `json:"event_id"`
}

// WalletHistory is one page of a wallet's transactions, newest first.
type WalletHistory struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// OutstandingLocks is the log's view of funds still held in escrow:
// locked amounts minus distributed amounts, keyed by sender wallet and by event.
type OutstandingLocks struct {
	ByWallet map[uuid.UUID]decimal.Decimal
	ByEvent  map[uuid.UUID]decimal.Decimal
}

// NewService wires a transaction log service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordTransactionInput) (*models.Transaction, error) {
	if err := validateRecordInput(input); err != nil {
		return nil, err
	}

	now := s.now()
	txn := &models.Transaction{
		ID:               uuid.New(),
		Amount:           input.Amount,
		Type:             input.Type,
		Status:           enums.TransactionStatusConfirmed,
		Description:      input.Description,
		UserID:           input.UserID,
		SenderWalletID:   input.SenderWalletID,
		ReceiverWalletID: input.ReceiverWalletID,
		EventID:          input.EventID,
		CreatedAt:        now,
		ConfirmedAt:      now,
	}

	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transaction")
	}
	return txn, nil
}

func validateRecordInput(input RecordTransactionInput) error {
	if !input.Type.IsValid() {
		return fmt.Errorf("invalid transaction type %q", input.Type)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("transaction amount must be positive")
	}
	if input.UserID == uuid.Nil {
		return fmt.Errorf("user id is required")
	}
	if input.SenderWalletID == uuid.Nil {
		return fmt.Errorf("sender wallet id is required")
	}
	if input.EventID == uuid.Nil {
		return fmt.Errorf("event id is required")
	}
	switch input.Type {
	case enums.TransactionTypePrizeLock:
		if input.ReceiverWalletID != nil {
			return fmt.Errorf("prize lock cannot have a receiver wallet")
		}
	case enums.TransactionTypePrizeDistribution:
		if input.ReceiverWalletID == nil || *input.ReceiverWalletID == uuid.Nil {
			return fmt.Errorf("prize distribution requires a receiver wallet")
		}
	}
	return nil
}

func (s *service) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Transaction, error) {
	if eventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	txns, err := s.repo.ListByEventID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list event transactions")
	}
	return txns, nil
}

func (s *service) ListForWallet(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*WalletHistory, error) {
	if walletID == uuid.Nil {
		return &WalletHistory{Transactions: []models.Transaction{}}, nil
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	txns, err := s.repo.ListByWalletID(ctx, walletID, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}

	history := &WalletHistory{Transactions: txns}
	if len(txns) > limit {
		history.Transactions = txns[:limit]
		last := history.Transactions[limit-1]
		history.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if history.Transactions == nil {
		history.Transactions = []models.Transaction{}
	}
	return history, nil
}

// Outstanding folds the log into per-wallet and per-event escrow totals.
// Entries whose amounts net to zero are omitted.
func (s *service) Outstanding(ctx context.Context) (*OutstandingLocks, error) {
	entries, err := s.repo.ListEscrowEntries(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list escrow entries")
	}

	out := &OutstandingLocks{
		ByWallet: map[uuid.UUID]decimal.Decimal{},
		ByEvent:  map[uuid.UUID]decimal.Decimal{},
	}
	for _, entry := range entries {
		amount := entry.Amount
		if entry.Type == enums.TransactionTypePrizeDistribution {
			amount = amount.Neg()
		}
		out.ByWallet[entry.SenderWalletID] = out.ByWallet[entry.SenderWalletID].Add(amount)
		out.ByEvent[entry.EventID] = out.ByEvent[entry.EventID].Add(amount)
	}
	for id, amount := range out.ByWallet {
		if amount.IsZero() {
			delete(out.ByWallet, id)
		}
	}
	for id, amount := range out.ByEvent {
		if amount.IsZero() {
			delete(out.ByEvent, id)
		}
	}
	return out, nil
}

// OutstandingForEvent nets the event's locks against its distributions,
// reading through tx when one is given.
func (s *service) OutstandingForEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (decimal.Decimal, error) {
	txns, err := s.repo.WithTx(tx).ListByEventID(ctx, eventID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list event transactions")
	}
	return netEscrow(txns), nil
}

// OutstandingForWallet is what the log says the wallet still holds in escrow.
// Reading through the tx that row-locks the wallet gives a total consistent
// with its locked_balance.
func (s *service) OutstandingForWallet(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (decimal.Decimal, error) {
	txns, err := s.repo.WithTx(tx).ListEscrowEntriesForWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet escrow entries")
	}
	return netEscrow(txns), nil
}

func netEscrow(txns []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, txn := range txns {
		switch txn.Type {
		case enums.TransactionTypePrizeLock:
			total = total.Add(txn.Amount)
		case enums.TransactionTypePrizeDistribution:
			total = total.Sub(txn.Amount)
		}
	}
	return total
}
