package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventprize-backend/api/middleware"
	"github.com/angelmondragon/eventprize-backend/internal/escrow"
	"github.com/angelmondragon/eventprize-backend/internal/events"
	"github.com/angelmondragon/eventprize-backend/internal/ledger"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/pagination"
)

type stubEscrowService struct {
	verify   func(ctx context.Context, input escrow.VerifyEventInput) (*events.Projection, error)
	unverify func(ctx context.Context, input escrow.UnverifyEventInput) (*events.Projection, error)
	selectFn func(ctx context.Context, input escrow.SelectWinnerInput) (*events.Projection, error)
}

func (s *stubEscrowService) VerifyEvent(ctx context.Context, input escrow.VerifyEventInput) (*events.Projection, error) {
	return s.verify(ctx, input)
}

func (s *stubEscrowService) UnverifyEvent(ctx context.Context, input escrow.UnverifyEventInput) (*events.Projection, error) {
	return s.unverify(ctx, input)
}

func (s *stubEscrowService) SelectWinner(ctx context.Context, input escrow.SelectWinnerInput) (*events.Projection, error) {
	return s.selectFn(ctx, input)
}

type stubLedgerService struct {
	ledger.Service
	forEvent  []models.Transaction
	forWallet *ledger.WalletHistory
	params    pagination.Params
}

func (s *stubLedgerService) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.Transaction, error) {
	return s.forEvent, nil
}

func (s *stubLedgerService) ListForWallet(ctx context.Context, walletID uuid.UUID, params pagination.Params) (*ledger.WalletHistory, error) {
	s.params = params
	return s.forWallet, nil
}

func escrowRequest(method, path, eventID string, body string, userID uuid.UUID, role enums.UserRole) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("eventId", eventID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if userID != uuid.Nil {
		ctx = middleware.WithUserID(ctx, userID.String())
		ctx = middleware.WithRole(ctx, string(role))
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestVerifyEventPassesCallerAndEvent(t *testing.T) {
	hostID := uuid.New()
	eventID := uuid.New()
	svc := &stubEscrowService{
		verify: func(ctx context.Context, input escrow.VerifyEventInput) (*events.Projection, error) {
			if input.EventID != eventID || input.ActorUserID != hostID || input.ActorRole != enums.UserRoleUser {
				t.Fatalf("unexpected input %+v", input)
			}
			return &events.Projection{ID: eventID, Verified: true, EscrowState: enums.EscrowStateVerified}, nil
		},
	}

	resp := httptest.NewRecorder()
	VerifyEvent(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodPost, "/", eventID.String(), "", hostID, enums.UserRoleUser))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var got events.Projection
	decodeData(t, resp, &got)
	if !got.Verified || got.EscrowState != enums.EscrowStateVerified {
		t.Fatalf("unexpected projection %+v", got)
	}
}

func TestVerifyEventMapsServiceErrors(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeNotFound:          http.StatusNotFound,
		pkgerrors.CodeForbidden:         http.StatusForbidden,
		pkgerrors.CodeConflict:          http.StatusConflict,
		pkgerrors.CodeInvalidState:      http.StatusUnprocessableEntity,
		pkgerrors.CodeInsufficientFunds: http.StatusPaymentRequired,
	}
	for code, status := range cases {
		svc := &stubEscrowService{
			verify: func(ctx context.Context, input escrow.VerifyEventInput) (*events.Projection, error) {
				return nil, pkgerrors.New(code, "rejected")
			},
		}
		resp := httptest.NewRecorder()
		VerifyEvent(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodPost, "/", uuid.NewString(), "", uuid.New(), enums.UserRoleUser))
		if resp.Code != status {
			t.Fatalf("%s: expected %d got %d", code, status, resp.Code)
		}
	}
}

func TestVerifyEventRequiresCallerAndValidID(t *testing.T) {
	svc := &stubEscrowService{
		verify: func(ctx context.Context, input escrow.VerifyEventInput) (*events.Projection, error) {
			t.Fatalf("service must not be called")
			return nil, nil
		},
	}

	resp := httptest.NewRecorder()
	VerifyEvent(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodPost, "/", uuid.NewString(), "", uuid.Nil, ""))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	VerifyEvent(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodPost, "/", "abc", "", uuid.New(), enums.UserRoleUser))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUnverifyEventPassesAdmin(t *testing.T) {
	adminID := uuid.New()
	eventID := uuid.New()
	called := false
	svc := &stubEscrowService{
		unverify: func(ctx context.Context, input escrow.UnverifyEventInput) (*events.Projection, error) {
			called = true
			if input.ActorUserID != adminID || input.ActorRole != enums.UserRoleAdmin || input.EventID != eventID {
				t.Fatalf("unexpected input %+v", input)
			}
			return &events.Projection{ID: eventID}, nil
		},
	}

	resp := httptest.NewRecorder()
	UnverifyEvent(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodPost, "/", eventID.String(), "", adminID, enums.UserRoleAdmin))
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected 200 with service call, got %d", resp.Code)
	}
}

func TestSelectWinnerDecodesBody(t *testing.T) {
	hostID := uuid.New()
	winnerID := uuid.New()
	eventID := uuid.New()
	svc := &stubEscrowService{
		selectFn: func(ctx context.Context, input escrow.SelectWinnerInput) (*events.Projection, error) {
			if input.HostID != hostID || input.WinnerID != winnerID || input.EventID != eventID {
				t.Fatalf("unexpected input %+v", input)
			}
			return &events.Projection{ID: eventID, Winner: &events.UserSummary{ID: winnerID}}, nil
		},
	}

	body := `{"winner_id":"` + winnerID.String() + `"}`
	resp := httptest.NewRecorder()
	SelectWinner(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodPost, "/", eventID.String(), body, hostID, enums.UserRoleUser))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var got events.Projection
	decodeData(t, resp, &got)
	if got.Winner == nil || got.Winner.ID != winnerID {
		t.Fatalf("expected winner in projection, got %+v", got.Winner)
	}
}

func TestSelectWinnerRejectsBadBody(t *testing.T) {
	svc := &stubEscrowService{
		selectFn: func(ctx context.Context, input escrow.SelectWinnerInput) (*events.Projection, error) {
			t.Fatalf("service must not be called")
			return nil, nil
		},
	}

	for _, body := range []string{`{}`, `{"winner_id":"nope"}`, `not json`} {
		resp := httptest.NewRecorder()
		SelectWinner(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodPost, "/", uuid.NewString(), body, uuid.New(), enums.UserRoleUser))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400 got %d", body, resp.Code)
		}
	}
}

func TestEventTransactionsRendersDecimalStrings(t *testing.T) {
	eventID := uuid.New()
	receiver := uuid.New()
	svc := &stubLedgerService{forEvent: []models.Transaction{
		{ID: uuid.New(), Amount: decimal.RequireFromString("2.00000001"), Type: enums.TransactionTypePrizeLock, Status: enums.TransactionStatusConfirmed, EventID: eventID},
		{ID: uuid.New(), Amount: decimal.RequireFromString("2.00000001"), Type: enums.TransactionTypePrizeDistribution, Status: enums.TransactionStatusConfirmed, EventID: eventID, ReceiverWalletID: &receiver},
	}}

	resp := httptest.NewRecorder()
	EventTransactions(svc, nil).ServeHTTP(resp, escrowRequest(http.MethodGet, "/", eventID.String(), "", uuid.New(), enums.UserRoleUser))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var got []map[string]any
	decodeData(t, resp, &got)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0]["amount"] != "2.00000001" || got[0]["type"] != "PRIZE_LOCK" {
		t.Fatalf("unexpected first entry %v", got[0])
	}
	if _, ok := got[0]["receiver_wallet_id"]; ok {
		t.Fatalf("lock entries must omit receiver_wallet_id")
	}
	if got[1]["receiver_wallet_id"] != receiver.String() {
		t.Fatalf("unexpected receiver %v", got[1]["receiver_wallet_id"])
	}
}
