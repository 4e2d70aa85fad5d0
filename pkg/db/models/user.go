package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents the canonical identity entity as seen by the escrow service.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username    string    `gorm:"column:username;not null;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name;not null"`
	AvatarURL   *string   `gorm:"column:avatar_url"`
	Role        string    `gorm:"column:role;not null;default:user"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
