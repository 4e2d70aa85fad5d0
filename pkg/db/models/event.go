package models

import (
	"time"

	"github.com/google/uuid"
)

// Event carries the subset of an event row the escrow flow reads and writes.
// Prize is stored as the host-entered decimal string.
type Event struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CreatorID uuid.UUID  `gorm:"column:creator_id;type:uuid;not null"`
	Title     string     `gorm:"column:title;not null"`
	Prize     *string    `gorm:"column:prize"`
	Verified  bool       `gorm:"column:verified;not null"`
	WinnerID  *uuid.UUID `gorm:"column:winner_id;type:uuid"`
	IsActive  bool       `gorm:"column:is_active;not null"`
	EndDate   time.Time  `gorm:"column:end_date;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

func (Event) TableName() string { return "events" }

// EventParticipant links a user to an event they joined.
type EventParticipant struct {
	EventID  uuid.UUID `gorm:"column:event_id;type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	JoinedAt time.Time `gorm:"column:joined_at;autoCreateTime"`
}

func (EventParticipant) TableName() string { return "event_participants" }
