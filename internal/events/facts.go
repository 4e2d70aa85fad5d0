package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
)

// Facts is the slice of an event the escrow engine decides on.
type Facts struct {
	ID             uuid.UUID
	CreatorID      uuid.UUID
	Prize          *string
	Verified       bool
	WinnerID       *uuid.UUID
	IsActive       bool
	EndDate        time.Time
	ParticipantIDs []uuid.UUID
}

func factsFromModel(event *models.Event, participants []uuid.UUID) *Facts {
	return &Facts{
		ID:             event.ID,
		CreatorID:      event.CreatorID,
		Prize:          event.Prize,
		Verified:       event.Verified,
		WinnerID:       event.WinnerID,
		IsActive:       event.IsActive,
		EndDate:        event.EndDate,
		ParticipantIDs: participants,
	}
}

// HasParticipant reports whether the user joined the event.
func (f *Facts) HasParticipant(userID uuid.UUID) bool {
	for _, id := range f.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasWinner reports whether the winner slot is filled.
func (f *Facts) HasWinner() bool {
	return f.WinnerID != nil && *f.WinnerID != uuid.Nil
}

// State derives the escrow lifecycle position.
func (f *Facts) State() enums.EscrowState {
	switch {
	case f.HasWinner():
		return enums.EscrowStateSettled
	case f.Verified:
		return enums.EscrowStateVerified
	default:
		return enums.EscrowStateUnverified
	}
}
