package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnomalyType string

const (
	AnomalyTypeLongStop            AnomalyType = "LONG_STOP"
	AnomalyTypeSpeedViolation      AnomalyType = "SPEED_VIOLATION"
	AnomalyTypeRouteDeviation      AnomalyType = "ROUTE_DEVIATION"
	AnomalyTypeGpsJump             AnomalyType = "GPS_JUMP"
	AnomalyTypeMissedLocation      AnomalyType = "MISSED_LOCATION"
	AnomalyTypeUnplannedStop       AnomalyType = "UNPLANNED_STOP"
	AnomalyTypeMileageDiscrepancy  AnomalyType = "MILEAGE_DISCREPANCY"
)

type AnomalySeverity string

const (
	AnomalySeverityInfo     AnomalySeverity = "INFO"
	AnomalySeverityWarning  AnomalySeverity = "WARNING"
	AnomalySeverityCritical AnomalySeverity = "CRITICAL"
)

// TripAnomaly is append-only at detection time. Resolution fields are the
// only permitted mutation and are set exclusively by explicit human action;
// the detectors never resolve anything themselves.
type TripAnomaly struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	TripID uuid.UUID `gorm:"type:uuid;not null" json:"trip_id"`

	Type     AnomalyType     `gorm:"type:anomaly_type;not null" json:"type"`
	Severity AnomalySeverity `gorm:"type:anomaly_severity;not null" json:"severity"`

	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`

	Details json.RawMessage `gorm:"type:jsonb" json:"details,omitempty"`

	IsResolved      bool       `gorm:"not null;default:false" json:"is_resolved"`
	ResolvedBy      *uuid.UUID `gorm:"type:uuid" json:"resolved_by"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	ResolutionNotes string     `gorm:"type:text" json:"resolution_notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Trip *Trip `gorm:"foreignKey:TripID" json:"trip,omitempty"`
}

func (TripAnomaly) TableName() string {
	return "trip_anomalies"
}

func (a *TripAnomaly) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
