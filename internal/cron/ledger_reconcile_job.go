package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/internal/escrow"
	"github.com/angelmondragon/eventprize-backend/internal/ledger"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
	"github.com/angelmondragon/eventprize-backend/pkg/metrics"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox"
	"github.com/angelmondragon/eventprize-backend/pkg/outbox/payloads"
)

// LedgerReconcileJobParams configures the escrow reconciliation job.
type LedgerReconcileJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Wallets     lockedWalletReader
	WalletLocks walletLocker
	Ledger      outstandingReader
	Events      eventLister
	Outbox      outboxEmitter
	Metrics     *metrics.EscrowMetrics
	Now         func() time.Time
}

type lockedWalletReader interface {
	ListLocked(ctx context.Context) ([]models.Wallet, error)
	FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
}

type walletLocker interface {
	Lock(ctx context.Context, tx *gorm.DB, walletIDs ...uuid.UUID) (map[uuid.UUID]models.Wallet, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type outstandingReader interface {
	Outstanding(ctx context.Context) (*ledger.OutstandingLocks, error)
	OutstandingForEvent(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (decimal.Decimal, error)
	OutstandingForWallet(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (decimal.Decimal, error)
}

type eventLister interface {
	ListByIDs(ctx context.Context, eventIDs []uuid.UUID) ([]models.Event, error)
}

// NewLedgerReconcileJob builds the job comparing wallet escrow balances with
// the transaction log.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.WalletLocks == nil {
		return nil, fmt.Errorf("wallet locker required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("transaction log required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event lister required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ledgerReconcileJob{
		logg:    params.Logger,
		db:      params.DB,
		wallets: params.Wallets,
		locks:   params.WalletLocks,
		ledger:  params.Ledger,
		events:  params.Events,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

type ledgerReconcileJob struct {
	logg    *logger.Logger
	db      txRunner
	wallets lockedWalletReader
	locks   walletLocker
	ledger  outstandingReader
	events  eventLister
	outbox  outboxEmitter
	metrics *metrics.EscrowMetrics
	now     func() time.Time
}

type walletDrift struct {
	wallet       models.Wallet
	ledgerLocked decimal.Decimal
}

func (d walletDrift) difference() decimal.Decimal {
	return d.wallet.LockedBalance.Sub(d.ledgerLocked)
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconciliation" }

// Run compares two unlocked reads: the locked wallets and the folded log.
// An escrow operation committing between them makes a wallet look drifted, so
// every candidate is re-read under its row lock before it is reported.
func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	locked, err := j.wallets.ListLocked(ctx)
	if err != nil {
		return fmt.Errorf("list locked wallets: %w", err)
	}
	outstanding, err := j.ledger.Outstanding(ctx)
	if err != nil {
		return fmt.Errorf("load outstanding escrow: %w", err)
	}

	candidates, errs := j.findDrift(ctx, locked, outstanding.ByWallet)
	drifted := 0
	for _, candidate := range candidates {
		reported, err := j.confirmDrift(ctx, candidate.wallet.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if reported {
			drifted++
		}
	}
	j.metrics.SetDriftedWallets(drifted)

	stranded, err := j.reportStranded(ctx, outstanding.ByEvent)
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"wallets_checked":  len(locked),
		"drift_candidates": len(candidates),
		"wallets_drifted":  drifted,
		"stranded_escrows": len(stranded),
	}), "ledger reconciliation complete")
	return errs
}

// findDrift walks every wallet that either holds a locked balance or is owed
// one by the log, in wallet id order.
func (j *ledgerReconcileJob) findDrift(ctx context.Context, locked []models.Wallet, byWallet map[uuid.UUID]decimal.Decimal) ([]walletDrift, error) {
	wallets := make(map[uuid.UUID]models.Wallet, len(locked))
	ids := make([]uuid.UUID, 0, len(locked)+len(byWallet))
	for _, wallet := range locked {
		wallets[wallet.ID] = wallet
		ids = append(ids, wallet.ID)
	}
	for id := range byWallet {
		if _, ok := wallets[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })

	var (
		drifts []walletDrift
		errs   error
	)
	for _, id := range ids {
		wallet, ok := wallets[id]
		if !ok {
			found, err := j.wallets.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					errs = multierr.Append(errs, fmt.Errorf("wallet %s referenced by ledger is missing", id))
					continue
				}
				errs = multierr.Append(errs, fmt.Errorf("load wallet %s: %w", id, err))
				continue
			}
			wallet = *found
		}
		expected := byWallet[id]
		if wallet.LockedBalance.Equal(expected) {
			continue
		}
		drifts = append(drifts, walletDrift{wallet: wallet, ledgerLocked: expected})
	}
	return drifts, errs
}

// confirmDrift locks the wallet and nets its log entries in the same
// transaction. Escrow writers hold that lock while they record, so both reads
// see the same committed state. The drift event is emitted only if the two
// still disagree.
func (j *ledgerReconcileJob) confirmDrift(ctx context.Context, walletID uuid.UUID) (bool, error) {
	reported := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := j.locks.Lock(ctx, tx, walletID)
		if err != nil {
			return fmt.Errorf("lock wallet %s: %w", walletID, err)
		}
		wallet, ok := locked[walletID]
		if !ok {
			return fmt.Errorf("wallet %s vanished during reconciliation", walletID)
		}
		ledgerLocked, err := j.ledger.OutstandingForWallet(ctx, tx, walletID)
		if err != nil {
			return fmt.Errorf("net escrow for wallet %s: %w", walletID, err)
		}
		if wallet.LockedBalance.Equal(ledgerLocked) {
			return nil
		}
		if err := j.reportDrift(ctx, tx, walletDrift{wallet: wallet, ledgerLocked: ledgerLocked}); err != nil {
			return err
		}
		reported = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return reported, nil
}

func (j *ledgerReconcileJob) reportDrift(ctx context.Context, tx *gorm.DB, drift walletDrift) error {
	detectedAt := j.now().UTC()
	logCtx := j.logg.WithWalletID(ctx, drift.wallet.ID.String())
	logCtx = j.logg.WithFields(logCtx, map[string]any{
		"user_id":        drift.wallet.UserID.String(),
		"locked_balance": drift.wallet.LockedBalance.String(),
		"ledger_locked":  drift.ledgerLocked.String(),
		"difference":     drift.difference().String(),
	})
	j.logg.Warn(logCtx, "escrow.drift_detected")

	if err := j.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEscrowDriftDetected,
		AggregateType: enums.AggregateWallet,
		AggregateID:   drift.wallet.ID,
		OccurredAt:    detectedAt,
		Data: payloads.EscrowDriftDetectedEvent{
			WalletID:      drift.wallet.ID,
			UserID:        drift.wallet.UserID,
			LockedBalance: drift.wallet.LockedBalance,
			LedgerLocked:  drift.ledgerLocked,
			Difference:    drift.difference(),
			DetectedAt:    detectedAt,
		},
	}); err != nil {
		return fmt.Errorf("emit drift for wallet %s: %w", drift.wallet.ID, err)
	}
	return nil
}

const (
	strandedUnverified      = "unverified"
	strandedSettled         = "settled"
	strandedExceedsPrize    = "exceeds_prize"
	strandedOverDistributed = "over_distributed"
	strandedMissingEvent    = "missing_event"
)

type strandedEscrow struct {
	eventID     uuid.UUID
	outstanding decimal.Decimal
	reason      string
}

// strandedReason says why an event's outstanding escrow can never be paid out
// as recorded, or returns "" when a winner selection will settle it exactly.
func strandedReason(event models.Event, outstanding decimal.Decimal) string {
	if outstanding.IsNegative() {
		return strandedOverDistributed
	}
	if !outstanding.IsPositive() {
		return ""
	}
	if prize, ok := escrow.ParsePrize(event.Prize); ok && outstanding.GreaterThan(prize) {
		return strandedExceedsPrize
	}
	if event.WinnerID != nil {
		return strandedSettled
	}
	if !event.Verified {
		return strandedUnverified
	}
	return ""
}

// reportStranded logs escrows that no winner selection can settle: the event
// lost its verification, already paid its winner, holds more than its prize,
// paid out more than it locked, or no longer exists. Each finding is re-read
// from the log after the event row so a concurrent settlement is not flagged.
func (j *ledgerReconcileJob) reportStranded(ctx context.Context, byEvent map[uuid.UUID]decimal.Decimal) ([]strandedEscrow, error) {
	if len(byEvent) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(byEvent))
	for id, amount := range byEvent {
		if !amount.IsZero() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a].String() < ids[b].String() })

	rows, err := j.events.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list escrowed events: %w", err)
	}
	byID := make(map[uuid.UUID]models.Event, len(rows))
	for _, event := range rows {
		byID[event.ID] = event
	}

	var (
		stranded []strandedEscrow
		errs     error
	)
	for _, id := range ids {
		event, found := byID[id]
		if found && strandedReason(event, byEvent[id]) == "" {
			continue
		}
		current, err := j.ledger.OutstandingForEvent(ctx, nil, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("net escrow for event %s: %w", id, err))
			continue
		}
		reason := strandedMissingEvent
		if found {
			reason = strandedReason(event, current)
		} else if current.IsZero() {
			reason = ""
		}
		if reason == "" {
			continue
		}
		stranded = append(stranded, strandedEscrow{eventID: id, outstanding: current, reason: reason})

		fields := map[string]any{
			"reason":           reason,
			"outstanding_lock": current.String(),
		}
		if found {
			fields["creator_id"] = event.CreatorID.String()
			fields["verified"] = event.Verified
			if event.Prize != nil {
				fields["prize"] = *event.Prize
			}
		}
		j.logg.Warn(j.logg.WithFields(j.logg.WithEventID(ctx, id.String()), fields), "escrow.stranded_prize")
	}
	return stranded, errs
}
