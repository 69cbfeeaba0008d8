package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"trip-tracking-service/internal/model"
	"trip-tracking-service/internal/repository"
)

// AnomalyService is the review surface over detected anomalies: listing for
// dispatchers and the explicit human resolution flow.
type AnomalyService struct {
	anomalies AnomalyRepo
	log       zerolog.Logger
}

func NewAnomalyService(anomalies AnomalyRepo, log zerolog.Logger) *AnomalyService {
	return &AnomalyService{anomalies: anomalies, log: log}
}

func (s *AnomalyService) List(ctx context.Context, principal model.Principal, filter repository.AnomalyFilter) ([]model.AnomalyRecord, error) {
	filter.OrgID = principal.OrgID
	if principal.IsEmployee() {
		filter.EmployeeID = principal.EmployeeID
	}

	anomalies, err := s.anomalies.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	records := make([]model.AnomalyRecord, 0, len(anomalies))
	for _, a := range anomalies {
		rec := model.AnomalyRecord{Anomaly: a}
		if a.Trip != nil {
			rec.TripStatus = a.Trip.Status
			rec.EmployeeID = a.Trip.EmployeeID
			rec.TaskType = a.Trip.TaskType
		}
		rec.Anomaly.Trip = nil
		records = append(records, rec)
	}
	return records, nil
}

// Resolve marks the anomaly handled. Resolving an already-resolved anomaly
// is an idempotent no-op that keeps the first resolver's metadata.
func (s *AnomalyService) Resolve(ctx context.Context, principal model.Principal, anomalyID uuid.UUID, notes string) (*model.TripAnomaly, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}

	anomaly, err := s.anomalies.GetByID(ctx, anomalyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if anomaly.Trip == nil || anomaly.Trip.OrganizationID != principal.OrgID {
		return nil, ErrPermissionDenied
	}

	changed, err := s.anomalies.Resolve(ctx, anomalyID, principal.UserID, notes, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		s.log.Debug().Str("anomaly_id", anomalyID.String()).Msg("anomaly already resolved")
	}

	return s.anomalies.GetByID(ctx, anomalyID)
}
