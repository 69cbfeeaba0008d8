package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TripReconciliation is one odometer-vs-GPS comparison, created at most once
// per (vehicle, trip end). Immutable after creation.
type TripReconciliation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TripID    uuid.UUID `gorm:"type:uuid;not null" json:"trip_id"`
	VehicleID uuid.UUID `gorm:"type:uuid;not null" json:"vehicle_id"`

	ActualOdometerKm   float64 `gorm:"not null" json:"actual_odometer_km"`
	ExpectedOdometerKm float64 `gorm:"not null" json:"expected_odometer_km"`
	DifferenceKm       float64 `gorm:"not null" json:"difference_km"`
	ThresholdKm        float64 `gorm:"not null" json:"threshold_km"`

	IsAnomaly bool `gorm:"not null;default:false" json:"is_anomaly"`

	PerformedBy *uuid.UUID `gorm:"type:uuid" json:"performed_by"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (TripReconciliation) TableName() string {
	return "trip_reconciliations"
}

func (r *TripReconciliation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
