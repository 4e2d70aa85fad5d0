package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
)

// Service is the wallet store. Mutating calls take the caller's transaction so
// balance changes commit or roll back together with the rest of the unit of work.
type Service interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error)
	Adjust(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal) (*models.Wallet, error)
	Lock(ctx context.Context, tx *gorm.DB, walletIDs ...uuid.UUID) (map[uuid.UUID]models.Wallet, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the wallet store with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetOrCreate returns the user's wallet, inserting an empty one on first use.
// Concurrent first calls race on the user_id unique key; the loser's insert is
// ignored and both read back the same row.
func (s *service) GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	repo := s.repo.WithTx(tx)
	now := s.now()
	candidate := &models.Wallet{
		ID:            uuid.New(),
		UserID:        userID,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.InsertIgnoreConflict(ctx, candidate); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}

	wallet, err := repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

// Adjust applies signed deltas to a wallet's balances under a row lock.
func (s *service) Adjust(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal) (*models.Wallet, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}

	repo := s.repo.WithTx(tx)
	wallet, err := repo.FindByIDForUpdate(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "wallet")
	}

	nextBalance := wallet.Balance.Add(balanceDelta)
	nextLocked := wallet.LockedBalance.Add(lockedDelta)
	if nextBalance.IsNegative() || nextLocked.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").
			WithDetails(map[string]any{
				"wallet_id":      wallet.ID.String(),
				"balance":        wallet.Balance.String(),
				"locked_balance": wallet.LockedBalance.String(),
				"balance_delta":  balanceDelta.String(),
				"locked_delta":   lockedDelta.String(),
			})
	}

	now := s.now()
	if err := repo.UpdateBalances(ctx, wallet.ID, nextBalance, nextLocked, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balances")
	}

	wallet.Balance = nextBalance
	wallet.LockedBalance = nextLocked
	wallet.UpdatedAt = now
	return wallet, nil
}

// Lock row-locks the given wallets and returns their current committed state.
func (s *service) Lock(ctx context.Context, tx *gorm.DB, walletIDs ...uuid.UUID) (map[uuid.UUID]models.Wallet, error) {
	locked, err := s.repo.WithTx(tx).LockByIDs(ctx, walletIDs)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "wallet")
	}
	out := make(map[uuid.UUID]models.Wallet, len(locked))
	for _, wallet := range locked {
		out[wallet.ID] = wallet
	}
	return out, nil
}

// Get returns the user's wallet without creating it. Users who never held
// funds get a zero snapshot.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Wallet{UserID: userID, Balance: decimal.Zero, LockedBalance: decimal.Zero}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}
