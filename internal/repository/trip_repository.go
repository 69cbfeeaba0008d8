package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
)

// ErrNotActive is returned by guarded terminal transitions when the trip
// row was no longer ACTIVE at update time.
var ErrNotActive = errors.New("trip is not active")

type TripRepository struct {
	db *gorm.DB
}

func NewTripRepository(db *gorm.DB) *TripRepository {
	return &TripRepository{db: db}
}

type TripFilter struct {
	OrgID      uuid.UUID
	EmployeeID *uuid.UUID
	VehicleID  *uuid.UUID
	Statuses   []model.TripStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int
	Offset     int
}

// CreateActive inserts a new ACTIVE trip. The partial unique index on
// (employee_id) WHERE status='ACTIVE' makes the one-active-trip-per-employee
// check atomic with the insert; a second active trip surfaces as
// gorm.ErrDuplicatedKey.
func (r *TripRepository) CreateActive(ctx context.Context, trip *model.Trip) error {
	return r.db.WithContext(ctx).Create(trip).Error
}

func (r *TripRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Trip, error) {
	var trip model.Trip
	if err := r.db.WithContext(ctx).
		Preload("Vehicle").
		First(&trip, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *TripRepository) List(ctx context.Context, filter TripFilter) ([]model.Trip, error) {
	query := r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("organization_id = ?", filter.OrgID)

	if filter.EmployeeID != nil {
		query = query.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.VehicleID != nil {
		query = query.Where("vehicle_id = ?", *filter.VehicleID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.DateFrom != nil {
		query = query.Where("started_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("started_at <= ?", *filter.DateTo)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	} else {
		query = query.Limit(200)
	}

	var trips []model.Trip
	if err := query.
		Order("started_at DESC").
		Preload("Vehicle").
		Find(&trips).Error; err != nil {
		return nil, err
	}
	return trips, nil
}

// RecordPoint applies one ingested fix to the trip aggregates in a single
// statement: point counter, distance delta (zero for filtered fixes) and the
// liveness timestamp.
func (r *TripRepository) RecordPoint(ctx context.Context, tripID uuid.UUID, distanceDelta float64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ?", tripID).
		Updates(map[string]interface{}{
			"points_count":    gorm.Expr("points_count + 1"),
			"distance_meters": gorm.Expr("distance_meters + ?", distanceDelta),
			"last_update_at":  at,
		}).Error
}

func (r *TripRepository) AddStop(ctx context.Context, tripID uuid.UUID, visitedLocations int) error {
	return r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ?", tripID).
		Updates(map[string]interface{}{
			"stops_count":       gorm.Expr("stops_count + 1"),
			"visited_locations": visitedLocations,
		}).Error
}

func (r *TripRepository) SetVisitedLocations(ctx context.Context, tripID uuid.UUID, visitedLocations int) error {
	return r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ?", tripID).
		Update("visited_locations", visitedLocations).Error
}

func (r *TripRepository) AddAnomaly(ctx context.Context, tripID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ?", tripID).
		Update("anomalies_count", gorm.Expr("anomalies_count + 1")).Error
}

// Finish performs the terminal transition in one guarded update so no
// observer can see a terminal status without its end-of-trip aggregates or
// the other way around. Returns ErrNotActive when the trip already left
// ACTIVE, which callers translate to their terminal-trip error.
func (r *TripRepository) Finish(ctx context.Context, tripID uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("id = ? AND status = ?", tripID, model.TripStatusActive).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotActive
	}
	return nil
}

// ListStaleActiveIDs snapshots active trips whose last update is older than
// the cutoff. The watchdog processes each id in its own unit of work.
func (r *TripRepository) ListStaleActiveIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&model.Trip{}).
		Where("status = ? AND last_update_at < ?", model.TripStatusActive, cutoff).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
