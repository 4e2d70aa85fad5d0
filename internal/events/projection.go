package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
)

// UserSummary is the public face of a user inside an event payload.
type UserSummary struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

// Counts aggregates related rows.
type Counts struct {
	Participants int64 `json:"participants"`
}

// Projection is the event shape returned after an escrow transition.
type Projection struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Prize       *string           `json:"prize,omitempty"`
	Verified    bool              `json:"verified"`
	IsActive    bool              `json:"is_active"`
	EscrowState enums.EscrowState `json:"escrow_state"`
	EndDate     time.Time         `json:"end_date"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Creator     UserSummary       `json:"creator"`
	Winner      *UserSummary      `json:"winner,omitempty"`
	Counts      Counts            `json:"_count"`
}

func summarize(id uuid.UUID, users map[uuid.UUID]models.User) UserSummary {
	user, ok := users[id]
	if !ok {
		return UserSummary{ID: id}
	}
	return UserSummary{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	}
}

func buildProjection(event *models.Event, users map[uuid.UUID]models.User, participants int64) *Projection {
	facts := factsFromModel(event, nil)
	projection := &Projection{
		ID:          event.ID,
		Title:       event.Title,
		Prize:       event.Prize,
		Verified:    event.Verified,
		IsActive:    event.IsActive,
		EscrowState: facts.State(),
		EndDate:     event.EndDate,
		UpdatedAt:   event.UpdatedAt,
		Creator:     summarize(event.CreatorID, users),
		Counts:      Counts{Participants: participants},
	}
	if facts.HasWinner() {
		winner := summarize(*event.WinnerID, users)
		projection.Winner = &winner
	}
	return projection
}
