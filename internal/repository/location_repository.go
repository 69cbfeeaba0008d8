package repository

import (
	"context"

	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
)

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// ListActive returns every active service location, used to build the
// in-memory geohash index at startup.
func (r *LocationRepository) ListActive(ctx context.Context) ([]model.ServiceLocation, error) {
	var locations []model.ServiceLocation
	if err := r.db.WithContext(ctx).
		Where("is_active = TRUE").
		Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}
