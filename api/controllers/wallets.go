package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventprize-backend/api/responses"
	"github.com/angelmondragon/eventprize-backend/api/validators"
	"github.com/angelmondragon/eventprize-backend/internal/ledger"
	"github.com/angelmondragon/eventprize-backend/internal/wallets"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
	"github.com/angelmondragon/eventprize-backend/pkg/logger"
	"github.com/angelmondragon/eventprize-backend/pkg/pagination"
)

// MyWallet returns the caller's balances and a page of recent transactions.
// Users without a wallet row see zero balances.
func MyWallet(walletSvc wallets.Service, ledgerSvc ledger.Service, defaultLimit int, logg *logger.Logger) http.HandlerFunc {
	if defaultLimit <= 0 {
		defaultLimit = pagination.DefaultLimit
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if walletSvc == nil || ledgerSvc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		who, err := callerFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := validators.PageParams(r, defaultLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		wallet, err := walletSvc.Get(ctx, who.userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := walletResponse{
			UserID:        wallet.UserID,
			Balance:       wallet.Balance,
			LockedBalance: wallet.LockedBalance,
			Transactions:  []transactionResponse{},
		}
		if wallet.ID != uuid.Nil {
			id := wallet.ID
			resp.ID = &id

			history, err := ledgerSvc.ListForWallet(ctx, wallet.ID, page)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			resp.Transactions = toTransactionResponses(history.Transactions)
			resp.NextCursor = history.NextCursor
		}

		responses.WriteSuccess(w, resp)
	}
}
