package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FilterReason string

const (
	FilterReasonLowAccuracy FilterReason = "LOW_ACCURACY"
	FilterReasonOutOfOrder  FilterReason = "OUT_OF_ORDER"
	FilterReasonGpsJump     FilterReason = "GPS_JUMP"
	FilterReasonDuplicate   FilterReason = "DUPLICATE"
	// FilterReasonTripClosed marks the audit record of a fix that arrived
	// after its trip reached a terminal status.
	FilterReasonTripClosed FilterReason = "TRIP_CLOSED"
)

// TripPoint is one GPS fix. Every fix is stored for audit, including
// rejected ones; rows are never mutated after insert.
type TripPoint struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TripID uuid.UUID `gorm:"type:uuid;not null" json:"trip_id"`

	Lat       float64  `gorm:"not null" json:"lat"`
	Lng       float64  `gorm:"not null" json:"lng"`
	AccuracyM *float64 `json:"accuracy_m"`
	SpeedKmh  *float64 `json:"speed_kmh"`
	Heading   *float64 `json:"heading"`
	AltitudeM *float64 `json:"altitude_m"`

	DistanceFromPrevM float64 `gorm:"not null;default:0" json:"distance_from_prev_m"`

	IsFiltered   bool          `gorm:"not null;default:false" json:"is_filtered"`
	FilterReason *FilterReason `gorm:"type:filter_reason" json:"filter_reason"`

	RecordedAt time.Time `gorm:"not null" json:"recorded_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TripPoint) TableName() string {
	return "trip_points"
}

func (p *TripPoint) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
