package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trip-tracking-service/internal/model"
)

type VehicleRepository struct {
	db *gorm.DB
}

func NewVehicleRepository(db *gorm.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

func (r *VehicleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	if err := r.db.WithContext(ctx).First(&vehicle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// UpdateOdometer writes the vehicle's current odometer under a row lock.
// The odometer is the only state shared across trips; the SELECT FOR UPDATE
// plus the caller's per-vehicle mutex rule out lost updates from concurrent
// reconciliations and manual edits.
func (r *VehicleRepository) UpdateOdometer(ctx context.Context, id uuid.UUID, odometerKm float64, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var vehicle model.Vehicle
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&vehicle, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Model(&vehicle).
			Updates(map[string]interface{}{
				"odometer_km":         odometerKm,
				"odometer_updated_at": at,
			}).Error
	})
}
