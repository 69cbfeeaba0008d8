package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TripStatus string

const (
	TripStatusActive     TripStatus = "ACTIVE"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusCancelled  TripStatus = "CANCELLED"
	TripStatusAutoClosed TripStatus = "AUTO_CLOSED"
)

// IsTerminal reports whether no further trip events may be applied.
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled || s == TripStatusAutoClosed
}

type Trip struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null" json:"organization_id"`
	EmployeeID     uuid.UUID  `gorm:"type:uuid;not null" json:"employee_id"`
	VehicleID      *uuid.UUID `gorm:"type:uuid" json:"vehicle_id"`
	TaskType       string     `gorm:"type:varchar(64)" json:"task_type"`
	Status         TripStatus `gorm:"type:trip_status;not null;default:'ACTIVE'" json:"status"`

	StartedAt time.Time  `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	StartLat float64  `gorm:"not null" json:"start_lat"`
	StartLng float64  `gorm:"not null" json:"start_lng"`
	EndLat   *float64 `json:"end_lat"`
	EndLng   *float64 `json:"end_lng"`

	StartOdometerKm *float64 `json:"start_odometer_km"`
	EndOdometerKm   *float64 `json:"end_odometer_km"`

	// DistanceMeters is the running haversine sum over accepted points.
	// Non-decreasing while the trip is active.
	DistanceMeters float64 `gorm:"not null;default:0" json:"distance_meters"`

	PointsCount      int `gorm:"not null;default:0" json:"points_count"`
	StopsCount       int `gorm:"not null;default:0" json:"stops_count"`
	AnomaliesCount   int `gorm:"not null;default:0" json:"anomalies_count"`
	VisitedLocations int `gorm:"not null;default:0" json:"visited_locations"`

	CancelReason *string `gorm:"type:text" json:"cancel_reason,omitempty"`

	LiveTracking bool      `gorm:"not null;default:true" json:"live_tracking"`
	LastUpdateAt time.Time `gorm:"not null" json:"last_update_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Vehicle *Vehicle `gorm:"foreignKey:VehicleID" json:"vehicle,omitempty"`
}

func (Trip) TableName() string {
	return "trips"
}

func (t *Trip) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
