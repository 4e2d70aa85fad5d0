package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/pagination"
)

type fakeRepository struct {
	createFn  func(ctx context.Context, txn *models.Transaction) error
	entriesFn func(ctx context.Context) ([]models.Transaction, error)
	byEvent   []models.Transaction
	byWallet  []models.Transaction
	bySender  []models.Transaction
	limit     int
	cursor    *pagination.Cursor
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if f.createFn != nil {
		return f.createFn(ctx, txn)
	}
	return nil
}

func (f *fakeRepository) ListByEventID(ctx context.Context, eventID uuid.UUID) ([]models.Transaction, error) {
	return f.byEvent, nil
}

func (f *fakeRepository) ListByWalletID(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Transaction, error) {
	f.limit = limit
	f.cursor = cursor
	if len(f.byWallet) > limit {
		return f.byWallet[:limit], nil
	}
	return f.byWallet, nil
}

func (f *fakeRepository) ListEscrowEntries(ctx context.Context) ([]models.Transaction, error) {
	if f.entriesFn != nil {
		return f.entriesFn(ctx)
	}
	return nil, nil
}

func (f *fakeRepository) ListEscrowEntriesForWallet(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	return f.bySender, nil
}

func TestService_RecordLock(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	input := RecordTransactionInput{
		Type:           enums.TransactionTypePrizeLock,
		Amount:         decimal.RequireFromString("2.0"),
		Description:    "prize locked",
		UserID:         uuid.New(),
		SenderWalletID: uuid.New(),
		EventID:        uuid.New(),
	}

	var created *models.Transaction
	repo.createFn = func(ctx context.Context, txn *models.Transaction) error {
		created = txn
		return nil
	}

	got, err := svc.Record(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if created == nil || got != created {
		t.Fatal("expected transaction to be created and returned")
	}
	if created.Status != enums.TransactionStatusConfirmed {
		t.Fatalf("expected confirmed status, got %s", created.Status)
	}
	if !created.Amount.Equal(input.Amount) || created.SenderWalletID != input.SenderWalletID || created.EventID != input.EventID {
		t.Fatalf("unexpected transaction data: %+v", created)
	}
	if created.ReceiverWalletID != nil {
		t.Fatalf("lock must not carry a receiver")
	}
	if created.ID == uuid.Nil || created.ConfirmedAt.IsZero() || !created.ConfirmedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected id and confirmation timestamp to be set: %+v", created)
	}
}

func TestService_RecordValidation(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)
	receiver := uuid.New()

	valid := RecordTransactionInput{
		Type:           enums.TransactionTypePrizeLock,
		Amount:         decimal.NewFromInt(1),
		UserID:         uuid.New(),
		SenderWalletID: uuid.New(),
		EventID:        uuid.New(),
	}

	cases := map[string]func(in *RecordTransactionInput){
		"bad type":             func(in *RecordTransactionInput) { in.Type = "DEPOSIT" },
		"zero amount":          func(in *RecordTransactionInput) { in.Amount = decimal.Zero },
		"negative amount":      func(in *RecordTransactionInput) { in.Amount = decimal.NewFromInt(-1) },
		"missing user":         func(in *RecordTransactionInput) { in.UserID = uuid.Nil },
		"missing sender":       func(in *RecordTransactionInput) { in.SenderWalletID = uuid.Nil },
		"missing event":        func(in *RecordTransactionInput) { in.EventID = uuid.Nil },
		"lock with receiver":   func(in *RecordTransactionInput) { in.ReceiverWalletID = &receiver },
		"distribution no recv": func(in *RecordTransactionInput) { in.Type = enums.TransactionTypePrizeDistribution },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			if _, err := svc.Record(context.Background(), nil, in); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestService_RecordWrapsRepositoryError(t *testing.T) {
	repo := &fakeRepository{createFn: func(ctx context.Context, txn *models.Transaction) error {
		return errors.New("insert failed")
	}}
	svc, _ := NewService(repo)

	receiver := uuid.New()
	_, err := svc.Record(context.Background(), nil, RecordTransactionInput{
		Type:             enums.TransactionTypePrizeDistribution,
		Amount:           decimal.NewFromInt(1),
		UserID:           uuid.New(),
		SenderWalletID:   uuid.New(),
		ReceiverWalletID: &receiver,
		EventID:          uuid.New(),
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestService_ListForWalletDefaultsLimit(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	history, err := svc.ListForWallet(context.Background(), uuid.New(), pagination.Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.limit != pagination.DefaultLimit+1 {
		t.Fatalf("expected buffered default limit %d, got %d", pagination.DefaultLimit+1, repo.limit)
	}
	if history.Transactions == nil || history.NextCursor != "" {
		t.Fatalf("expected empty page without cursor, got %+v", history)
	}
}

func TestService_ListForWalletSetsNextCursor(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepository{}
	for i := 0; i < 3; i++ {
		repo.byWallet = append(repo.byWallet, models.Transaction{ID: uuid.New(), CreatedAt: base.Add(-time.Duration(i) * time.Minute)})
	}
	svc, _ := NewService(repo)

	history, err := svc.ListForWallet(context.Background(), uuid.New(), pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(history.Transactions))
	}
	cursor, err := pagination.ParseCursor(history.NextCursor)
	if err != nil || cursor == nil {
		t.Fatalf("expected decodable cursor, got %q (%v)", history.NextCursor, err)
	}
	if cursor.ID != repo.byWallet[1].ID || !cursor.CreatedAt.Equal(repo.byWallet[1].CreatedAt) {
		t.Fatalf("cursor should point at last returned row, got %+v", cursor)
	}
}

func TestService_ListForWalletRejectsBadCursor(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})

	_, err := svc.ListForWallet(context.Background(), uuid.New(), pagination.Params{Cursor: "not-base64!"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Outstanding(t *testing.T) {
	hostWallet := uuid.New()
	otherWallet := uuid.New()
	settledEvent := uuid.New()
	openEvent := uuid.New()

	repo := &fakeRepository{entriesFn: func(ctx context.Context) ([]models.Transaction, error) {
		return []models.Transaction{
			{Type: enums.TransactionTypePrizeLock, Amount: decimal.RequireFromString("2"), SenderWalletID: hostWallet, EventID: settledEvent},
			{Type: enums.TransactionTypePrizeDistribution, Amount: decimal.RequireFromString("2"), SenderWalletID: hostWallet, EventID: settledEvent},
			{Type: enums.TransactionTypePrizeLock, Amount: decimal.RequireFromString("0.75"), SenderWalletID: otherWallet, EventID: openEvent},
		}, nil
	}}
	svc, _ := NewService(repo)

	got, err := svc.Outstanding(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got.ByWallet[hostWallet]; ok {
		t.Fatalf("settled wallet should net to zero")
	}
	if !got.ByWallet[otherWallet].Equal(decimal.RequireFromString("0.75")) {
		t.Fatalf("unexpected outstanding for other wallet: %s", got.ByWallet[otherWallet])
	}
	if len(got.ByEvent) != 1 || !got.ByEvent[openEvent].Equal(decimal.RequireFromString("0.75")) {
		t.Fatalf("unexpected event outstanding: %v", got.ByEvent)
	}
}

func TestService_OutstandingForEvent(t *testing.T) {
	eventID := uuid.New()
	repo := &fakeRepository{byEvent: []models.Transaction{
		{Type: enums.TransactionTypePrizeLock, Amount: decimal.RequireFromString("2.0"), EventID: eventID},
		{Type: enums.TransactionTypePrizeDistribution, Amount: decimal.RequireFromString("0.5"), EventID: eventID},
	}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	got, err := svc.OutstandingForEvent(context.Background(), nil, eventID)
	if err != nil {
		t.Fatalf("OutstandingForEvent error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected 1.5 outstanding, got %s", got)
	}
}

func TestService_OutstandingForWallet(t *testing.T) {
	walletID := uuid.New()
	repo := &fakeRepository{bySender: []models.Transaction{
		{Type: enums.TransactionTypePrizeLock, Amount: decimal.RequireFromString("3"), SenderWalletID: walletID},
		{Type: enums.TransactionTypePrizeLock, Amount: decimal.RequireFromString("0.25"), SenderWalletID: walletID},
		{Type: enums.TransactionTypePrizeDistribution, Amount: decimal.RequireFromString("3"), SenderWalletID: walletID},
	}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	got, err := svc.OutstandingForWallet(context.Background(), nil, walletID)
	if err != nil {
		t.Fatalf("OutstandingForWallet error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("expected 0.25 outstanding, got %s", got)
	}
}
