package model

import (
	"time"

	"github.com/google/uuid"
)

type VehicleBrief struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	PlateNumber string    `json:"plate_number"`
}

type LocationBrief struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Lat  float64   `json:"lat"`
	Lng  float64   `json:"lng"`
}

type TripRecord struct {
	Trip    Trip          `json:"trip"`
	Vehicle *VehicleBrief `json:"vehicle"`
}

type AnomalyRecord struct {
	Anomaly    TripAnomaly `json:"anomaly"`
	TripStatus TripStatus  `json:"trip_status"`
	EmployeeID uuid.UUID   `json:"employee_id"`
	TaskType   string      `json:"task_type"`
}

type TripDetails struct {
	Trip           Trip                `json:"trip"`
	Vehicle        *VehicleBrief       `json:"vehicle"`
	Stops          []TripStop          `json:"stops"`
	Anomalies      []TripAnomaly       `json:"anomalies"`
	TaskLinks      []TripTaskLink      `json:"task_links"`
	Reconciliation *TripReconciliation `json:"reconciliation,omitempty"`
}

type TripSummary struct {
	TripID           uuid.UUID  `json:"trip_id"`
	Status           TripStatus `json:"status"`
	DistanceMeters   float64    `json:"distance_meters"`
	DurationSeconds  int64      `json:"duration_seconds"`
	PointsCount      int        `json:"points_count"`
	StopsCount       int        `json:"stops_count"`
	AnomaliesCount   int        `json:"anomalies_count"`
	VisitedLocations int        `json:"visited_locations"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
}

func NewVehicleBrief(v *Vehicle) *VehicleBrief {
	if v == nil {
		return nil
	}
	return &VehicleBrief{
		ID:          v.ID,
		Type:        v.Type,
		PlateNumber: v.PlateNumber,
	}
}

func NewLocationBrief(l *ServiceLocation) *LocationBrief {
	if l == nil {
		return nil
	}
	return &LocationBrief{
		ID:   l.ID,
		Name: l.Name,
		Lat:  l.Lat,
		Lng:  l.Lng,
	}
}
