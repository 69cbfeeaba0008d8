package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
)

type StopRepository struct {
	db *gorm.DB
}

func NewStopRepository(db *gorm.DB) *StopRepository {
	return &StopRepository{db: db}
}

func (r *StopRepository) Create(ctx context.Context, stop *model.TripStop) error {
	return r.db.WithContext(ctx).Create(stop).Error
}

// Save persists mutations of an existing stop row: location match,
// verification, closing.
func (r *StopRepository) Save(ctx context.Context, stop *model.TripStop) error {
	return r.db.WithContext(ctx).
		Model(&model.TripStop{}).
		Where("id = ?", stop.ID).
		Updates(map[string]interface{}{
			"location_id":            stop.LocationID,
			"distance_to_location_m": stop.DistanceToLocationM,
			"ended_at":               stop.EndedAt,
			"duration_seconds":       stop.DurationSeconds,
			"is_verified":            stop.IsVerified,
			"is_anomaly":             stop.IsAnomaly,
		}).Error
}

// Open returns the trip's unclosed stop, or nil when there is none.
func (r *StopRepository) Open(ctx context.Context, tripID uuid.UUID) (*model.TripStop, error) {
	var stop model.TripStop
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND ended_at IS NULL", tripID).
		First(&stop).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stop, nil
}

func (r *StopRepository) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripStop, error) {
	var stops []model.TripStop
	if err := r.db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Order("started_at ASC").
		Preload("Location").
		Find(&stops).Error; err != nil {
		return nil, err
	}
	return stops, nil
}

// MatchedLocationIDs returns the distinct service locations matched by any
// stop of the trip.
func (r *StopRepository) MatchedLocationIDs(ctx context.Context, tripID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&model.TripStop{}).
		Where("trip_id = ? AND location_id IS NOT NULL", tripID).
		Distinct().
		Pluck("location_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
