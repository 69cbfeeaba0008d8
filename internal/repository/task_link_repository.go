package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
)

type TaskLinkRepository struct {
	db *gorm.DB
}

func NewTaskLinkRepository(db *gorm.DB) *TaskLinkRepository {
	return &TaskLinkRepository{db: db}
}

func (r *TaskLinkRepository) Create(ctx context.Context, link *model.TripTaskLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *TaskLinkRepository) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripTaskLink, error) {
	var links []model.TripTaskLink
	if err := r.db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Order("created_at ASC").
		Preload("Location").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// FindPendingByLocation returns the trip's PENDING link bound to the given
// service location, or nil when there is none.
func (r *TaskLinkRepository) FindPendingByLocation(ctx context.Context, tripID, locationID uuid.UUID) (*model.TripTaskLink, error) {
	var link model.TripTaskLink
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND location_id = ? AND status = ?", tripID, locationID, model.TaskLinkStatusPending).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// HasCompletedByLocation reports whether the trip already has a COMPLETED
// link for the location.
func (r *TaskLinkRepository) HasCompletedByLocation(ctx context.Context, tripID, locationID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TripTaskLink{}).
		Where("trip_id = ? AND location_id = ? AND status = ?", tripID, locationID, model.TaskLinkStatusCompleted).
		Count(&count).Error
	return count > 0, err
}

// MarkInProgress advances PENDING to IN_PROGRESS with the GPS verification
// stamp. Guarded on the current status so a concurrent external completion
// is never overwritten.
func (r *TaskLinkRepository) MarkInProgress(ctx context.Context, id uuid.UUID, verifiedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TripTaskLink{}).
		Where("id = ? AND status = ?", id, model.TaskLinkStatusPending).
		Updates(map[string]interface{}{
			"status":          model.TaskLinkStatusInProgress,
			"verified_by_gps": true,
			"gps_verified_at": verifiedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetFinalStatus applies the external task module's COMPLETED/SKIPPED
// decision. Links already in a final status stay as they are.
func (r *TaskLinkRepository) SetFinalStatus(ctx context.Context, tripID, taskID uuid.UUID, status model.TaskLinkStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TripTaskLink{}).
		Where("trip_id = ? AND task_id = ? AND status IN ?", tripID, taskID,
			[]model.TaskLinkStatus{model.TaskLinkStatusPending, model.TaskLinkStatusInProgress}).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
