package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
)

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// Create inserts the trip's reconciliation row. The unique index on trip_id
// keeps it to one per trip end; duplicates surface as gorm.ErrDuplicatedKey.
func (r *ReconciliationRepository) Create(ctx context.Context, rec *model.TripReconciliation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *ReconciliationRepository) GetByTrip(ctx context.Context, tripID uuid.UUID) (*model.TripReconciliation, error) {
	var rec model.TripReconciliation
	err := r.db.WithContext(ctx).First(&rec, "trip_id = ?", tripID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
