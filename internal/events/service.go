package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/eventprize-backend/pkg/errors"
)

// Provider exposes event facts to the escrow engine and persists the fields
// the engine owns. Calls taking a tx participate in the caller's transaction.
type Provider interface {
	GetFacts(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*Facts, error)
	SetVerified(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, verified bool, at time.Time) error
	SetWinner(ctx context.Context, tx *gorm.DB, eventID, winnerID uuid.UUID, at time.Time) error
	Projection(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*Projection, error)
	ListByIDs(ctx context.Context, eventIDs []uuid.UUID) ([]models.Event, error)
}

type provider struct {
	repo Repository
}

// NewProvider wires the event facts provider.
func NewProvider(repo Repository) (Provider, error) {
	if repo == nil {
		return nil, fmt.Errorf("events repository required")
	}
	return &provider{repo: repo}, nil
}

// GetFacts loads the event with a row lock held until the transaction ends.
func (p *provider) GetFacts(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*Facts, error) {
	repo := p.repo.WithTx(tx)
	event, err := repo.FindByIDForUpdate(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "event")
	}

	participants, err := repo.ListParticipantIDs(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event participants")
	}
	return factsFromModel(event, participants), nil
}

func (p *provider) SetVerified(ctx context.Context, tx *gorm.DB, eventID uuid.UUID, verified bool, at time.Time) error {
	if err := p.repo.WithTx(tx).UpdateVerified(ctx, eventID, verified, at); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update event verification")
	}
	return nil
}

func (p *provider) SetWinner(ctx context.Context, tx *gorm.DB, eventID, winnerID uuid.UUID, at time.Time) error {
	affected, err := p.repo.WithTx(tx).SetWinner(ctx, eventID, winnerID, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update event winner")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "winner already selected")
	}
	return nil
}

// Projection builds the event payload with creator, winner and counts.
func (p *provider) Projection(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) (*Projection, error) {
	repo := p.repo.WithTx(tx)
	event, err := repo.FindByID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "event")
	}

	userIDs := []uuid.UUID{event.CreatorID}
	if event.WinnerID != nil {
		userIDs = append(userIDs, *event.WinnerID)
	}
	users, err := repo.FindUsers(ctx, userIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event users")
	}
	byID := make(map[uuid.UUID]models.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}

	participants, err := repo.CountParticipants(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count event participants")
	}
	return buildProjection(event, byID, participants), nil
}

func (p *provider) ListByIDs(ctx context.Context, eventIDs []uuid.UUID) ([]models.Event, error) {
	events, err := p.repo.ListByIDs(ctx, eventIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list events")
	}
	return events, nil
}
