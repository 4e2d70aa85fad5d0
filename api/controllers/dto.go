package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
)

type transactionResponse struct {
	ID               uuid.UUID               `json:"id"`
	Amount           decimal.Decimal         `json:"amount"`
	Type             enums.TransactionType   `json:"type"`
	Status           enums.TransactionStatus `json:"status"`
	Description      string                  `json:"description"`
	UserID           uuid.UUID               `json:"user_id"`
	SenderWalletID   uuid.UUID               `json:"sender_wallet_id"`
	ReceiverWalletID *uuid.UUID              `json:"receiver_wallet_id,omitempty"`
	EventID          uuid.UUID               `json:"event_id"`
	CreatedAt        time.Time               `json:"created_at"`
	ConfirmedAt      time.Time               `json:"confirmed_at"`
}

func toTransactionResponses(txns []models.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, transactionResponse{
			ID:               txn.ID,
			Amount:           txn.Amount,
			Type:             txn.Type,
			Status:           txn.Status,
			Description:      txn.Description,
			UserID:           txn.UserID,
			SenderWalletID:   txn.SenderWalletID,
			ReceiverWalletID: txn.ReceiverWalletID,
			EventID:          txn.EventID,
			CreatedAt:        txn.CreatedAt,
			ConfirmedAt:      txn.ConfirmedAt,
		})
	}
	return out
}

type walletResponse struct {
	ID            *uuid.UUID            `json:"id"`
	UserID        uuid.UUID             `json:"user_id"`
	Balance       decimal.Decimal       `json:"balance"`
	LockedBalance decimal.Decimal       `json:"locked_balance"`
	Transactions  []transactionResponse `json:"transactions"`
	NextCursor    string                `json:"next_cursor,omitempty"`
}
