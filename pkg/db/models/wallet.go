package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's spendable balance and the portion set aside for prizes.
type Wallet struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(20,8);not null"`
	LockedBalance decimal.Decimal `gorm:"column:locked_balance;type:numeric(20,8);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the gorm table name explicit.
func (Wallet) TableName() string { return "wallets" }
