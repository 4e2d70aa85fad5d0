package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/internal/dbtest"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	"github.com/angelmondragon/eventprize-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
)

func seedEvent(t *testing.T, conn *gorm.DB, creator uuid.UUID, prize *string, participants ...uuid.UUID) models.Event {
	t.Helper()
	event := models.Event{
		ID:        uuid.New(),
		CreatorID: creator,
		Title:     "Spring hackathon",
		Prize:     prize,
		IsActive:  true,
		EndDate:   time.Now().Add(24 * time.Hour).UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&event).Error)
	for i, userID := range participants {
		require.NoError(t, conn.Create(&models.EventParticipant{
			EventID:  event.ID,
			UserID:   userID,
			JoinedAt: time.Now().Add(time.Duration(i) * time.Second).UTC(),
		}).Error)
	}
	return event
}

func seedUser(t *testing.T, conn *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{ID: uuid.New(), Username: username, DisplayName: username, Role: "user"}
	require.NoError(t, conn.Create(&user).Error)
	return user
}

func newProvider(t *testing.T) (Provider, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	p, err := NewProvider(NewRepository(conn))
	require.NoError(t, err)
	return p, conn
}

func TestGetFactsNotFound(t *testing.T) {
	p, conn := newProvider(t)
	_, err := p.GetFacts(context.Background(), conn, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetFactsIncludesParticipants(t *testing.T) {
	p, conn := newProvider(t)
	prize := "2.0"
	alice, bob := uuid.New(), uuid.New()
	event := seedEvent(t, conn, uuid.New(), &prize, alice, bob)

	facts, err := p.GetFacts(context.Background(), conn, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.CreatorID, facts.CreatorID)
	assert.Equal(t, "2.0", *facts.Prize)
	assert.True(t, facts.IsActive)
	assert.True(t, facts.HasParticipant(alice))
	assert.True(t, facts.HasParticipant(bob))
	assert.False(t, facts.HasParticipant(event.CreatorID))
	assert.Equal(t, enums.EscrowStateUnverified, facts.State())
}

func TestSetVerifiedAndWinner(t *testing.T) {
	p, conn := newProvider(t)
	ctx := context.Background()
	winner := uuid.New()
	event := seedEvent(t, conn, uuid.New(), nil, winner)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.SetVerified(ctx, conn, event.ID, true, at))
	facts, err := p.GetFacts(ctx, conn, event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStateVerified, facts.State())

	require.NoError(t, p.SetWinner(ctx, conn, event.ID, winner, at))
	facts, err = p.GetFacts(ctx, conn, event.ID)
	require.NoError(t, err)
	require.NotNil(t, facts.WinnerID)
	assert.Equal(t, winner, *facts.WinnerID)
	assert.False(t, facts.IsActive)
	assert.Equal(t, enums.EscrowStateSettled, facts.State())

	err = p.SetWinner(ctx, conn, event.ID, uuid.New(), at)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestProjectionResolvesUsersAndCounts(t *testing.T) {
	p, conn := newProvider(t)
	ctx := context.Background()
	host := seedUser(t, conn, "host")
	winner := seedUser(t, conn, "winner")
	prize := "5"
	event := seedEvent(t, conn, host.ID, &prize, winner.ID, uuid.New())

	projection, err := p.Projection(ctx, conn, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "host", projection.Creator.Username)
	assert.Nil(t, projection.Winner)
	assert.EqualValues(t, 2, projection.Counts.Participants)

	require.NoError(t, p.SetVerified(ctx, conn, event.ID, true, time.Now().UTC()))
	require.NoError(t, p.SetWinner(ctx, conn, event.ID, winner.ID, time.Now().UTC()))

	projection, err = p.Projection(ctx, conn, event.ID)
	require.NoError(t, err)
	require.NotNil(t, projection.Winner)
	assert.Equal(t, "winner", projection.Winner.Username)
	assert.False(t, projection.IsActive)
	assert.Equal(t, enums.EscrowStateSettled, projection.EscrowState)
}

func TestProjectionNotFound(t *testing.T) {
	p, conn := newProvider(t)
	_, err := p.Projection(context.Background(), conn, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
