package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
	"trip-tracking-service/internal/repository"
)

// Storage ports, satisfied by the gorm repositories. Narrow interfaces here
// keep the engine testable with in-memory fakes.

type TripRepo interface {
	CreateActive(ctx context.Context, trip *model.Trip) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Trip, error)
	List(ctx context.Context, filter repository.TripFilter) ([]model.Trip, error)
	RecordPoint(ctx context.Context, tripID uuid.UUID, distanceDelta float64, at time.Time) error
	AddStop(ctx context.Context, tripID uuid.UUID, visitedLocations int) error
	SetVisitedLocations(ctx context.Context, tripID uuid.UUID, visitedLocations int) error
	AddAnomaly(ctx context.Context, tripID uuid.UUID) error
	Finish(ctx context.Context, tripID uuid.UUID, updates map[string]interface{}) error
	ListStaleActiveIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type PointRepo interface {
	Create(ctx context.Context, point *model.TripPoint) error
	LastAccepted(ctx context.Context, tripID uuid.UUID) (*model.TripPoint, error)
	ListByTrip(ctx context.Context, tripID uuid.UUID, includeFiltered bool) ([]model.TripPoint, error)
}

type StopRepo interface {
	Create(ctx context.Context, stop *model.TripStop) error
	Save(ctx context.Context, stop *model.TripStop) error
	Open(ctx context.Context, tripID uuid.UUID) (*model.TripStop, error)
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripStop, error)
	MatchedLocationIDs(ctx context.Context, tripID uuid.UUID) ([]uuid.UUID, error)
}

type AnomalyRepo interface {
	Create(ctx context.Context, anomaly *model.TripAnomaly) error
	List(ctx context.Context, filter repository.AnomalyFilter) ([]model.TripAnomaly, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.TripAnomaly, error)
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripAnomaly, error)
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, notes string, at time.Time) (bool, error)
}

type TaskLinkRepo interface {
	Create(ctx context.Context, link *model.TripTaskLink) error
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripTaskLink, error)
	FindPendingByLocation(ctx context.Context, tripID, locationID uuid.UUID) (*model.TripTaskLink, error)
	HasCompletedByLocation(ctx context.Context, tripID, locationID uuid.UUID) (bool, error)
	MarkInProgress(ctx context.Context, id uuid.UUID, verifiedAt time.Time) (bool, error)
	SetFinalStatus(ctx context.Context, tripID, taskID uuid.UUID, status model.TaskLinkStatus) (bool, error)
}

type ReconciliationRepo interface {
	Create(ctx context.Context, rec *model.TripReconciliation) error
	GetByTrip(ctx context.Context, tripID uuid.UUID) (*model.TripReconciliation, error)
}

type VehicleRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error)
	UpdateOdometer(ctx context.Context, id uuid.UUID, odometerKm float64, at time.Time) error
}

// RouteProvider supplies the optional planned polyline for a trip. A nil
// provider or an empty polyline disables route-deviation checks.
type RouteProvider interface {
	PlannedRoute(ctx context.Context, tripID uuid.UUID) ([]geo.Point, error)
}

// Notifier is the fire-and-forget notification sink. Failures are logged
// and never roll back core state.
type Notifier interface {
	TripStarted(ctx context.Context, trip *model.Trip) error
	TripEnded(ctx context.Context, trip *model.Trip) error
	AnomalyDetected(ctx context.Context, anomaly *model.TripAnomaly) error
}
