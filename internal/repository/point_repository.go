package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
)

type PointRepository struct {
	db *gorm.DB
}

func NewPointRepository(db *gorm.DB) *PointRepository {
	return &PointRepository{db: db}
}

func (r *PointRepository) Create(ctx context.Context, point *model.TripPoint) error {
	return r.db.WithContext(ctx).Create(point).Error
}

// LastAccepted returns the trip's newest non-filtered point, or nil when the
// trip has none yet. Used to rebuild runtime state after a restart.
func (r *PointRepository) LastAccepted(ctx context.Context, tripID uuid.UUID) (*model.TripPoint, error) {
	var point model.TripPoint
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND is_filtered = FALSE", tripID).
		Order("recorded_at DESC").
		First(&point).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &point, nil
}

func (r *PointRepository) ListByTrip(ctx context.Context, tripID uuid.UUID, includeFiltered bool) ([]model.TripPoint, error) {
	query := r.db.WithContext(ctx).Where("trip_id = ?", tripID)
	if !includeFiltered {
		query = query.Where("is_filtered = FALSE")
	}
	var points []model.TripPoint
	if err := query.Order("recorded_at ASC").Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}
