package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TripStop is a dwell period: opened when accepted fixes cluster within the
// stop radius, closed when movement resumes or the trip ends.
type TripStop struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TripID uuid.UUID `gorm:"type:uuid;not null" json:"trip_id"`

	// Centroid of the clustered fixes.
	Lat float64 `gorm:"not null" json:"lat"`
	Lng float64 `gorm:"not null" json:"lng"`

	LocationID          *uuid.UUID `gorm:"type:uuid" json:"location_id"`
	DistanceToLocationM *float64   `json:"distance_to_location_m"`

	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at"`
	DurationSeconds *int64     `json:"duration_seconds"`

	IsVerified bool `gorm:"not null;default:false" json:"is_verified"`
	IsAnomaly  bool `gorm:"not null;default:false" json:"is_anomaly"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Location *ServiceLocation `gorm:"foreignKey:LocationID" json:"location,omitempty"`
}

func (TripStop) TableName() string {
	return "trip_stops"
}

func (s *TripStop) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
