package escrow

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/internal/events"
	"github.com/angelmondragon/eventprize-backend/internal/ledger"
	"github.com/angelmondragon/eventprize-backend/pkg/config"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
	"github.com/angelmondragon/eventprize-backend/pkg/metrics"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox/payloads"
)

const (
	operationVerify   = "verify_event"
	operationUnverify = "unverify_event"
	operationSelect   = "select_winner"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type factsProvider interface {
	GetFacts(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*events.Facts, error)
	SetVerified(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, verified bool, at time.Time) error
	SetWinner(ctx context.Context, tx *gorm.DB, eventID, winnerID uuid.UUID, at time.Time) error
	Projection(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*events.Projection, error)
}

type walletStore interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error)
	Adjust(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, balanceDelta, lockedDelta decimal.Decimal) (*models.Wallet, error)
	Lock(ctx context.Context, tx *gorm.DB, walletIDs ...uuid.UUID) (map[uuid.UUID]models.Wallet, error)
}

type transactionLog interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordTransactionInput) (*models.Transaction, error)
	OutstandingForEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (decimal.Decimal, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service moves event prizes between host balance, escrow and winner.
type Service interface {
	VerifyEvent(ctx context.Context, input VerifyEventInput) (*events.Projection, error)
	UnverifyEvent(ctx context.Context, input UnverifyEventInput) (*events.Projection, error)
	SelectWinner(ctx context.Context, input SelectWinnerInput) (*events.Projection, error)
}

// VerifyEventInput identifies the event and the caller claiming to host it.
type VerifyEventInput struct {
	EventID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
}

// UnverifyEventInput identifies the event and the administrator revoking it.
type UnverifyEventInput struct {
	EventID     uuid.UUID
	ActorUserID uuid.UUID
	ActorRole   enums.UserRole
}

// SelectWinnerInput names the event, the calling host and the chosen participant.
type SelectWinnerInput struct {
	EventID   uuid.UUID
	HostID    uuid.UUID
	WinnerID  uuid.UUID
	ActorRole enums.UserRole
}

// Params bundles the engine's collaborators.
type Params struct {
	Tx      txRunner
	Events  factsProvider
	Wallets walletStore
	Ledger  transactionLog
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Metrics *metrics.EscrowMetrics
	Config  config.EscrowConfig
	Clock   func() time.Time
}

type service struct {
	tx      txRunner
	events  factsProvider
	wallets walletStore
	ledger  transactionLog
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.EscrowMetrics
	cfg     config.EscrowConfig
	now     func() time.Time
}

// NewService wires the escrow engine.
func NewService(params Params) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event facts provider required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("transaction log required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "escrow", Output: io.Discard})
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:      params.Tx,
		events:  params.Events,
		wallets: params.Wallets,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		logg:    logg,
		metrics: params.Metrics,
		cfg:     params.Config,
		now:     clock,
	}, nil
}

// VerifyEvent moves the prize from the host's balance into escrow and marks
// the event verified.
func (s *service) VerifyEvent(ctx context.Context, input VerifyEventInput) (*events.Projection, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller required")
	}

	started := time.Now()
	ctx = s.logg.WithEventID(ctx, input.EventID.String())
	ctx = s.logg.WithUserID(ctx, input.ActorUserID.String())

	var (
		projection *events.Projection
		prize      decimal.Decimal
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		facts, err := s.events.GetFacts(ctx, tx, input.EventID)
		if err != nil {
			return err
		}
		if facts.CreatorID != input.ActorUserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the event host may verify the event")
		}
		if facts.Verified {
			return pkgerrors.New(pkgerrors.CodeConflict, "event already verified")
		}
		if facts.HasWinner() {
			return pkgerrors.New(pkgerrors.CodeConflict, "event already settled")
		}
		amount, ok := ParsePrize(facts.Prize)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "event has no valid prize")
		}
		prize = amount

		wallet, err := s.wallets.GetOrCreate(ctx, tx, facts.CreatorID)
		if err != nil {
			return err
		}
		if _, err := s.wallets.Adjust(ctx, tx, wallet.ID, prize.Neg(), prize); err != nil {
			return err
		}

		now := s.now()
		if err := s.events.SetVerified(ctx, tx, facts.ID, true, now); err != nil {
			return err
		}

		txn, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
			Type:           enums.TransactionTypePrizeLock,
			Amount:         prize,
			Description:    fmt.Sprintf("Prize locked for event %s", facts.ID),
			UserID:         facts.CreatorID,
			SenderWalletID: wallet.ID,
			EventID:        facts.ID,
		})
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrizeLocked,
			AggregateType: enums.AggregateEvent,
			AggregateID:   facts.ID,
			Actor:         actorRef(input.ActorUserID, input.ActorRole),
			OccurredAt:    now,
			Data: payloads.PrizeLockedEvent{
				EventID:       facts.ID,
				HostID:        facts.CreatorID,
				WalletID:      wallet.ID,
				TransactionID: txn.ID,
				Amount:        prize,
				LockedAt:      now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue prize locked event")
		}

		projection, err = s.events.Projection(ctx, tx, facts.ID)
		return err
	})
	s.observe(ctx, operationVerify, started, prize, err)
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "amount", prize.String()), "escrow.event_verified")
	return projection, nil
}

// UnverifyEvent clears the verification flag. Funds locked by an earlier
// verification stay locked.
func (s *service) UnverifyEvent(ctx context.Context, input UnverifyEventInput) (*events.Projection, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	started := time.Now()
	ctx = s.logg.WithEventID(ctx, input.EventID.String())
	if input.ActorUserID != uuid.Nil {
		ctx = s.logg.WithUserID(ctx, input.ActorUserID.String())
	}

	var (
		projection  *events.Projection
		outstanding decimal.Decimal
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		facts, err := s.events.GetFacts(ctx, tx, input.EventID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.events.SetVerified(ctx, tx, facts.ID, false, now); err != nil {
			return err
		}

		outstanding, err = s.ledger.OutstandingForEvent(ctx, tx, facts.ID)
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVerificationRevoked,
			AggregateType: enums.AggregateEvent,
			AggregateID:   facts.ID,
			Actor:         actorRef(input.ActorUserID, input.ActorRole),
			OccurredAt:    now,
			Data: payloads.VerificationRevokedEvent{
				EventID:         facts.ID,
				RevokedBy:       input.ActorUserID,
				HostID:          facts.CreatorID,
				OutstandingLock: outstanding,
				RevokedAt:       now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue verification revoked event")
		}

		projection, err = s.events.Projection(ctx, tx, facts.ID)
		return err
	})
	s.observe(ctx, operationUnverify, started, decimal.Zero, err)
	if err != nil {
		return nil, err
	}

	if outstanding.IsPositive() {
		s.logg.Warn(s.logg.WithField(ctx, "outstanding_lock", outstanding.String()), "escrow.event_unverified with prize still locked")
	} else {
		s.logg.Info(ctx, "escrow.event_unverified")
	}
	return projection, nil
}

// SelectWinner settles the event: the prize leaves the host's escrow and is
// credited to the winner's balance.
func (s *service) SelectWinner(ctx context.Context, input SelectWinnerInput) (*events.Projection, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if input.WinnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "winner id required")
	}
	if input.HostID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller required")
	}

	started := time.Now()
	ctx = s.logg.WithEventID(ctx, input.EventID.String())
	ctx = s.logg.WithUserID(ctx, input.HostID.String())

	var (
		projection *events.Projection
		prize      decimal.Decimal
		early      bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		facts, err := s.events.GetFacts(ctx, tx, input.EventID)
		if err != nil {
			return err
		}
		if facts.CreatorID != input.HostID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the event host may select a winner")
		}
		if !facts.Verified {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "event must be verified before selecting a winner")
		}
		if facts.HasWinner() {
			return pkgerrors.New(pkgerrors.CodeConflict, "winner already selected")
		}
		if !facts.HasParticipant(input.WinnerID) {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "winner must be a participant")
		}
		amount, ok := ParsePrize(facts.Prize)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "event has no prize to distribute")
		}
		prize = amount

		now := s.now()
		early = now.Before(facts.EndDate)

		hostWallet, err := s.wallets.GetOrCreate(ctx, tx, facts.CreatorID)
		if err != nil {
			return err
		}
		winnerWallet, err := s.wallets.GetOrCreate(ctx, tx, input.WinnerID)
		if err != nil {
			return err
		}

		if err := s.events.SetWinner(ctx, tx, facts.ID, input.WinnerID, now); err != nil {
			return err
		}

		current, err := s.wallets.Lock(ctx, tx, hostWallet.ID, winnerWallet.ID)
		if err != nil {
			return err
		}
		if held := current[hostWallet.ID].LockedBalance; held.LessThan(prize) {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "insufficient locked funds").
				WithDetails(map[string]any{
					"locked_balance": held.String(),
					"prize":          prize.String(),
				})
		}

		if _, err := s.wallets.Adjust(ctx, tx, hostWallet.ID, decimal.Zero, prize.Neg()); err != nil {
			return err
		}
		if _, err := s.wallets.Adjust(ctx, tx, winnerWallet.ID, prize, decimal.Zero); err != nil {
			return err
		}

		receiver := winnerWallet.ID
		txn, err := s.ledger.Record(ctx, tx, ledger.RecordTransactionInput{
			Type:             enums.TransactionTypePrizeDistribution,
			Amount:           prize,
			Description:      fmt.Sprintf("Prize distributed for event %s", facts.ID),
			UserID:           facts.CreatorID,
			SenderWalletID:   hostWallet.ID,
			ReceiverWalletID: &receiver,
			EventID:          facts.ID,
		})
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPrizeDistributed,
			AggregateType: enums.AggregateEvent,
			AggregateID:   facts.ID,
			Actor:         actorRef(input.HostID, input.ActorRole),
			OccurredAt:    now,
			Data: payloads.PrizeDistributedEvent{
				EventID:          facts.ID,
				HostID:           facts.CreatorID,
				WinnerID:         input.WinnerID,
				SenderWalletID:   hostWallet.ID,
				ReceiverWalletID: winnerWallet.ID,
				TransactionID:    txn.ID,
				Amount:           prize,
				EarlySelection:   early,
				DistributedAt:    now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue prize distributed event")
		}

		projection, err = s.events.Projection(ctx, tx, facts.ID)
		return err
	})
	s.observe(ctx, operationSelect, started, prize, err)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"winner_id": input.WinnerID.String(),
		"amount":    prize.String(),
	})
	if early && s.cfg.EarlySelectionWarning {
		s.logg.Warn(logCtx, "escrow.winner_selected before event end date")
	}
	s.logg.Info(logCtx, "escrow.winner_selected")
	return projection, nil
}

func (s *service) observe(ctx context.Context, operation string, started time.Time, amount decimal.Decimal, err error) {
	if err == nil {
		s.metrics.ObserveOperation(operation, "", time.Since(started))
		s.metrics.AddVolume(operation, amount)
		return
	}

	typed := pkgerrors.As(err)
	outcome := string(pkgerrors.CodeInternal)
	if typed != nil {
		outcome = string(typed.Code())
	}
	s.metrics.ObserveOperation(operation, outcome, time.Since(started))

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"operation": operation,
		"outcome":   outcome,
	})
	if pkgerrors.IsServerSide(err) {
		s.logg.Error(logCtx, "escrow operation failed", err)
		return
	}
	s.logg.Info(s.logg.WithField(logCtx, "reason", typed.Message()), "escrow operation rejected")
}

func actorRef(userID uuid.UUID, role enums.UserRole) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: string(role)}
}
