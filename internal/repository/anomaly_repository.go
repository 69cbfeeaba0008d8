package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
)

type AnomalyRepository struct {
	db *gorm.DB
}

func NewAnomalyRepository(db *gorm.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

type AnomalyFilter struct {
	OrgID      uuid.UUID
	TripID     *uuid.UUID
	EmployeeID *uuid.UUID
	Types      []model.AnomalyType
	Severities []model.AnomalySeverity
	Resolved   *bool
	DateFrom   *time.Time
	DateTo     *time.Time
	Limit      int
	Offset     int
}

func (r *AnomalyRepository) Create(ctx context.Context, anomaly *model.TripAnomaly) error {
	return r.db.WithContext(ctx).Create(anomaly).Error
}

func (r *AnomalyRepository) List(ctx context.Context, filter AnomalyFilter) ([]model.TripAnomaly, error) {
	query := r.db.WithContext(ctx).
		Model(&model.TripAnomaly{}).
		Joins("JOIN trips t ON t.id = trip_anomalies.trip_id").
		Where("t.organization_id = ?", filter.OrgID)

	if filter.TripID != nil {
		query = query.Where("trip_anomalies.trip_id = ?", *filter.TripID)
	}
	if filter.EmployeeID != nil {
		query = query.Where("t.employee_id = ?", *filter.EmployeeID)
	}
	if len(filter.Types) > 0 {
		query = query.Where("trip_anomalies.type IN ?", filter.Types)
	}
	if len(filter.Severities) > 0 {
		query = query.Where("trip_anomalies.severity IN ?", filter.Severities)
	}
	if filter.Resolved != nil {
		query = query.Where("trip_anomalies.is_resolved = ?", *filter.Resolved)
	}
	if filter.DateFrom != nil {
		query = query.Where("trip_anomalies.created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("trip_anomalies.created_at <= ?", *filter.DateTo)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	} else {
		query = query.Limit(200)
	}

	var anomalies []model.TripAnomaly
	if err := query.
		Order("trip_anomalies.created_at DESC").
		Preload("Trip").
		Find(&anomalies).Error; err != nil {
		return nil, err
	}
	return anomalies, nil
}

func (r *AnomalyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TripAnomaly, error) {
	var anomaly model.TripAnomaly
	if err := r.db.WithContext(ctx).
		Preload("Trip").
		First(&anomaly, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &anomaly, nil
}

func (r *AnomalyRepository) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripAnomaly, error) {
	var anomalies []model.TripAnomaly
	if err := r.db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Order("created_at ASC").
		Find(&anomalies).Error; err != nil {
		return nil, err
	}
	return anomalies, nil
}

// Resolve sets the resolution metadata once. The is_resolved guard makes a
// concurrent double-resolve a no-op instead of overwriting the first
// resolver's metadata.
func (r *AnomalyRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, notes string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TripAnomaly{}).
		Where("id = ? AND is_resolved = FALSE", id).
		Updates(map[string]interface{}{
			"is_resolved":      true,
			"resolved_by":      resolvedBy,
			"resolved_at":      at,
			"resolution_notes": notes,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
