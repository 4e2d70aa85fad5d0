package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/internal/repo"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	"github.com/angelmondragon/eventprize-backend/pkg/pagination"
)

// Repository manages persistence for the escrow transaction log. It only
// inserts and reads; rows are never updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	ListByEventID(ctx context.Context, eventID uuid.UUID) ([]models.Transaction, error)
	ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error)
	ListEscrowEntries(ctx context.Context) ([]models.Transaction, error)
	ListEscrowEntriesForWallet(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a transaction log repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.base.DB(ctx).Create(txn).Error
}

func (r *repository) ListByEventID(ctx context.Context, eventID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.base.DB(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListByWalletID returns the wallet's entries newest first, starting strictly
// after cursor when one is given.
func (r *repository) ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error) {
	var txns []models.Transaction
	query := r.base.DB(ctx).
		Where("(sender_wallet_id = ? OR receiver_wallet_id = ?)", walletID, walletID)
	if cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListEscrowEntries returns every lock and distribution row for reconciliation.
func (r *repository) ListEscrowEntries(ctx context.Context) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.base.DB(ctx).
		Select("id", "amount", "type", "sender_wallet_id", "event_id", "created_at").
		Where("type IN ?", []enums.TransactionType{enums.TransactionTypePrizeLock, enums.TransactionTypePrizeDistribution}).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ListEscrowEntriesForWallet returns the lock and distribution rows the wallet
// sent.
func (r *repository) ListEscrowEntriesForWallet(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := r.base.DB(ctx).
		Select("id", "amount", "type", "sender_wallet_id", "event_id", "created_at").
		Where("sender_wallet_id = ?", walletID).
		Where("type IN ?", []enums.TransactionType{enums.TransactionTypePrizeLock, enums.TransactionTypePrizeDistribution}).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
