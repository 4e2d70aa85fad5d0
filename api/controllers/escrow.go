package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventprize-backend/api/responses"
	"github.com/angelmondragon/eventprize-backend/api/validators"
	"github.com/angelmondragon/eventprize-backend/internal/escrow"
	"github.com/angelmondragon/eventprize-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
)

const eventIDParam = "eventId"

type selectWinnerRequest struct {
	WinnerID string `json:"winner_id" validate:"required,uuid"`
}

// VerifyEvent locks the event prize from the host's wallet.
func VerifyEvent(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		who, err := callerFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventID, err := validators.PathUUID(r, eventIDParam)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := svc.VerifyEvent(ctx, escrow.VerifyEventInput{
			EventID:     eventID,
			ActorUserID: who.userID,
			ActorRole:   who.role,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// UnverifyEvent clears the verified flag. Mounted behind RequireRole(admin).
func UnverifyEvent(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		who, err := callerFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventID, err := validators.PathUUID(r, eventIDParam)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := svc.UnverifyEvent(ctx, escrow.UnverifyEventInput{
			EventID:     eventID,
			ActorUserID: who.userID,
			ActorRole:   who.role,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// SelectWinner settles a verified event by paying the locked prize to a participant.
func SelectWinner(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}

		who, err := callerFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventID, err := validators.PathUUID(r, eventIDParam)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body selectWinnerRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		winnerID, err := uuid.Parse(body.WinnerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid winner id"))
			return
		}

		event, err := svc.SelectWinner(ctx, escrow.SelectWinnerInput{
			EventID:   eventID,
			HostID:    who.userID,
			WinnerID:  winnerID,
			ActorRole: who.role,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, event)
	}
}

// EventTransactions lists the ledger entries recorded against an event, oldest first.
func EventTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		eventID, err := validators.PathUUID(r, eventIDParam)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		txns, err := svc.ListForEvent(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransactionResponses(txns))
	}
}
