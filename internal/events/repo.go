package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventprize-backend/internal/repo"
	"github.com/angelmondragon/eventprize-backend/pkg/db/models"
)

// Repository reads event rows and persists the escrow-owned columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	FindByIDForUpdate(ctx context.Context, eventID uuid.UUID) (*models.Event, error)
	ListParticipantIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
	CountParticipants(ctx context.Context, eventID uuid.UUID) (int64, error)
	FindUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.User, error)
	UpdateVerified(ctx context.Context, eventID uuid.UUID, verified bool, at time.Time) error
	SetWinner(ctx context.Context, eventID, winnerID uuid.UUID, at time.Time) (int64, error)
	ListByIDs(ctx context.Context, eventIDs []uuid.UUID) ([]models.Event, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns an events repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindByID(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.base.DB(ctx).
		Where("id = ?", eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.base.ForUpdate(ctx).
		Where("id = ?", eventID).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListParticipantIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.base.DB(ctx).
		Model(&models.EventParticipant{}).
		Where("event_id = ?", eventID).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) CountParticipants(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var count int64
	if err := r.base.DB(ctx).
		Model(&models.EventParticipant{}).
		Where("event_id = ?", eventID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) FindUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := r.base.DB(ctx).
		Where("id IN ?", userIDs).
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) UpdateVerified(ctx context.Context, eventID uuid.UUID, verified bool, at time.Time) error {
	return r.base.DB(ctx).
		Model(&models.Event{}).
		Where("id = ?", eventID).
		Updates(map[string]any{
			"verified":   verified,
			"updated_at": at,
		}).Error
}

// SetWinner fills the winner slot and closes the event. It only touches rows
// whose slot is still empty and returns the affected row count.
func (r *repository) SetWinner(ctx context.Context, eventID, winnerID uuid.UUID, at time.Time) (int64, error) {
	res := r.base.DB(ctx).
		Model(&models.Event{}).
		Where("id = ? AND winner_id IS NULL", eventID).
		Updates(map[string]any{
			"winner_id":  winnerID,
			"is_active":  false,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListByIDs(ctx context.Context, eventIDs []uuid.UUID) ([]models.Event, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var events []models.Event
	if err := r.base.DB(ctx).
		Where("id IN ?", eventIDs).
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
