package model

import (
	"time"

	"github.com/google/uuid"
)

type VehicleStatus string

const (
	VehicleStatusActive      VehicleStatus = "ACTIVE"
	VehicleStatusMaintenance VehicleStatus = "MAINTENANCE"
	VehicleStatusRetired     VehicleStatus = "RETIRED"
)

// Vehicle is a fleet asset. Its odometer is the only piece of state shared
// across trips; all writes go through the vehicle repository under a
// per-vehicle row lock.
type Vehicle struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID     `gorm:"type:uuid;not null" json:"organization_id"`
	Type           string        `gorm:"type:varchar(64)" json:"type"`
	PlateNumber    string        `gorm:"type:varchar(32)" json:"plate_number"`
	Status         VehicleStatus `gorm:"type:vehicle_status;not null;default:'ACTIVE'" json:"status"`

	OdometerKm        float64    `gorm:"not null;default:0" json:"odometer_km"`
	OdometerUpdatedAt *time.Time `json:"odometer_updated_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}
