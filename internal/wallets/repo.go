package wallets

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventprize-backend/internal/repo"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
)

// Repository persists wallet rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	FindByIDForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	InsertIgnoreConflict(ctx context.Context, wallet *models.Wallet) error
	LockByIDs(ctx context.Context, walletIDs []uuid.UUID) ([]models.Wallet, error)
	UpdateBalances(ctx context.Context, walletID uuid.UUID, balance, locked decimal.Decimal, at time.Time) error
	ListLocked(ctx context.Context) ([]models.Wallet, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.base.DB(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.base.DB(ctx).
		Where("id = ?", walletID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.base.ForUpdate(ctx).
		Where("id = ?", walletID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// InsertIgnoreConflict inserts the wallet unless one already exists for the user.
func (r *repository) InsertIgnoreConflict(ctx context.Context, wallet *models.Wallet) error {
	return r.base.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(wallet).Error
}

// LockByIDs row-locks the given wallets in ascending id order so concurrent
// transfers touching the same pair never wait on each other in opposite order.
func (r *repository) LockByIDs(ctx context.Context, walletIDs []uuid.UUID) ([]models.Wallet, error) {
	ids := sortedUnique(walletIDs)
	locked := make([]models.Wallet, 0, len(ids))
	for _, id := range ids {
		wallet, err := r.FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked = append(locked, *wallet)
	}
	return locked, nil
}

func (r *repository) UpdateBalances(ctx context.Context, walletID uuid.UUID, balance, locked decimal.Decimal, at time.Time) error {
	return r.base.DB(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"balance":        balance,
			"locked_balance": locked,
			"updated_at":     at,
		}).Error
}

// ListLocked returns every wallet that currently has funds set aside.
func (r *repository) ListLocked(ctx context.Context) ([]models.Wallet, error) {
	var wallets []models.Wallet
	if err := r.base.DB(ctx).
		Where("locked_balance <> ?", 0).
		Order("id ASC").
		Find(&wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
