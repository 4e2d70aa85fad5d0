package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventprize-backend/pkg/enums"
)

// Transaction is an immutable entry in the escrow transaction log.
type Transaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(20,8);not null"`
	Type             enums.TransactionType   `gorm:"column:type;type:transaction_type_enum;not null"`
	Status           enums.TransactionStatus `gorm:"column:status;type:transaction_status_enum;not null"`
	Description      string                  `gorm:"column:description;not null"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	SenderWalletID   uuid.UUID               `gorm:"column:sender_wallet_id;type:uuid;not null"`
	ReceiverWalletID *uuid.UUID              `gorm:"column:receiver_wallet_id;type:uuid"`
	EventID          uuid.UUID               `gorm:"column:event_id;type:uuid;not null"`
	CreatedAt        time.Time               `gorm:"column:created_at"`
	ConfirmedAt      time.Time               `gorm:"column:confirmed_at"`
}

func (Transaction) TableName() string { return "transactions" }
