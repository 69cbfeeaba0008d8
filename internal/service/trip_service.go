package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"trip-tracking-service/internal/config"
	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
	"trip-tracking-service/internal/repository"
	"trip-tracking-service/internal/tracking"
)

// TripService is the trip lifecycle manager: the only entry point other
// subsystems use to mutate trips. It serializes all processing per trip with
// a keyed lock, keeps the per-trip engine runtime, and drives the filter,
// stop detector, rule registry, verifier and reconciler.
type TripService struct {
	cfg config.TrackingConfig

	trips           TripRepo
	points          PointRepo
	stops           StopRepo
	anomalies       AnomalyRepo
	taskLinks       TaskLinkRepo
	reconciliations ReconciliationRepo
	vehicles        VehicleRepo

	filter   *tracking.Filter
	detector *tracking.StopDetector
	verifier *tracking.Verifier
	rules    *tracking.Registry

	routes   RouteProvider
	notifier Notifier

	tripLocks    *keyedMutex
	vehicleLocks *keyedMutex

	runtimesMu sync.Mutex
	runtimes   map[uuid.UUID]*tripRuntime

	log zerolog.Logger
}

// tripRuntime pairs the engine state with the last stored point, used to
// answer retried submissions with the original record.
type tripRuntime struct {
	state     *tracking.TripState
	lastPoint *model.TripPoint
}

type TripServiceDeps struct {
	Trips           TripRepo
	Points          PointRepo
	Stops           StopRepo
	Anomalies       AnomalyRepo
	TaskLinks       TaskLinkRepo
	Reconciliations ReconciliationRepo
	Vehicles        VehicleRepo
	Locations       tracking.LocationIndex
	Routes          RouteProvider
	Notifier        Notifier
}

func NewTripService(cfg config.TrackingConfig, deps TripServiceDeps, log zerolog.Logger) *TripService {
	return &TripService{
		cfg:             cfg,
		trips:           deps.Trips,
		points:          deps.Points,
		stops:           deps.Stops,
		anomalies:       deps.Anomalies,
		taskLinks:       deps.TaskLinks,
		reconciliations: deps.Reconciliations,
		vehicles:        deps.Vehicles,
		filter:          tracking.NewFilter(cfg),
		detector:        tracking.NewStopDetector(cfg, deps.Locations),
		verifier:        tracking.NewVerifier(cfg.VerifyDwell),
		rules:           tracking.NewRegistry(cfg, log),
		routes:          deps.Routes,
		notifier:        deps.Notifier,
		tripLocks:       newKeyedMutex(),
		vehicleLocks:    newKeyedMutex(),
		runtimes:        make(map[uuid.UUID]*tripRuntime),
		log:             log,
	}
}

type StartTripInput struct {
	EmployeeID      uuid.UUID
	VehicleID       *uuid.UUID
	TaskType        string
	Lat             float64
	Lng             float64
	StartOdometerKm *float64
}

func (s *TripService) StartTrip(ctx context.Context, principal model.Principal, in StartTripInput) (*model.Trip, error) {
	if !validCoordinate(in.Lat, in.Lng) {
		return nil, ErrInvalidInput
	}

	employeeID := in.EmployeeID
	if principal.IsEmployee() {
		if principal.EmployeeID == nil {
			return nil, ErrPermissionDenied
		}
		employeeID = *principal.EmployeeID
	}

	if in.VehicleID != nil {
		vehicle, err := s.vehicles.GetByID(ctx, *in.VehicleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if vehicle.OrganizationID != principal.OrgID {
			return nil, ErrPermissionDenied
		}
	}

	now := time.Now().UTC()
	trip := &model.Trip{
		OrganizationID:  principal.OrgID,
		EmployeeID:      employeeID,
		VehicleID:       in.VehicleID,
		TaskType:        in.TaskType,
		Status:          model.TripStatusActive,
		StartedAt:       now,
		StartLat:        in.Lat,
		StartLng:        in.Lng,
		StartOdometerKm: in.StartOdometerKm,
		LiveTracking:    true,
		LastUpdateAt:    now,
	}

	if err := s.trips.CreateActive(ctx, trip); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.notify(ctx, func(ctx context.Context) error { return s.notifier.TripStarted(ctx, trip) })
	return trip, nil
}

type FixInput struct {
	Lat        float64
	Lng        float64
	AccuracyM  *float64
	SpeedKmh   *float64
	Heading    *float64
	AltitudeM  *float64
	RecordedAt time.Time
}

// IngestPoint routes one fix through the filter, distance accumulator and
// stop detector. All of it runs under the trip's lock; distinct trips do
// not contend.
func (s *TripService) IngestPoint(ctx context.Context, principal model.Principal, tripID uuid.UUID, in FixInput) (*model.TripPoint, error) {
	if !validCoordinate(in.Lat, in.Lng) || in.RecordedAt.IsZero() {
		return nil, ErrInvalidInput
	}

	s.tripLocks.Lock(tripID)
	defer s.tripLocks.Unlock(tripID)

	trip, rt, err := s.runtime(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !principal.AllowsTrip(trip) {
		return nil, ErrPermissionDenied
	}

	fix := tracking.Fix{
		Point:      geo.Point{Lat: in.Lat, Lng: in.Lng},
		AccuracyM:  in.AccuracyM,
		SpeedKmh:   in.SpeedKmh,
		Heading:    in.Heading,
		AltitudeM:  in.AltitudeM,
		RecordedAt: in.RecordedAt.UTC(),
	}

	if trip.Status.IsTerminal() {
		// Audit-record the late fix, never merge it into aggregates.
		reason := model.FilterReasonTripClosed
		point := s.newPoint(tripID, fix, &reason, 0)
		if err := s.points.Create(ctx, point); err != nil {
			s.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("failed to record late fix")
		}
		return nil, ErrTripTerminal
	}

	if s.filter.IsRetry(rt.state, fix) {
		return rt.lastPoint, nil
	}

	reason, gpsJump := s.filter.Classify(rt.state, fix)
	impliedKmh := rt.state.ImpliedSpeedKmh(fix)

	var delta float64
	if reason == nil {
		delta = tracking.Accumulate(rt.state, fix)
	}

	point := s.newPoint(tripID, fix, reason, delta)
	if err := s.points.Create(ctx, point); err != nil {
		return nil, err
	}
	if err := s.trips.RecordPoint(ctx, tripID, delta, time.Now().UTC()); err != nil {
		return nil, err
	}
	rt.state.LastRaw = &fix
	rt.lastPoint = point

	if gpsJump {
		s.raiseAnomaly(ctx, trip, tracking.Candidate{
			Type:     model.AnomalyTypeGpsJump,
			Severity: model.AnomalySeverityInfo,
			Point:    &fix.Point,
			Details: map[string]interface{}{
				"implied_kmh": impliedKmh,
				"ceiling_kmh": s.cfg.MaxPlausibleKmh,
			},
		}, nil)
	}

	if reason != nil {
		return point, nil
	}

	update := s.detector.Advance(rt.state, fix)
	s.applyStopUpdate(ctx, trip, rt, update, fix.RecordedAt)

	if open := rt.state.OpenStop; open != nil && s.verifier.ShouldVerify(open, fix.RecordedAt) {
		s.verifyStop(ctx, trip, open, fix.RecordedAt)
	}

	ev := tracking.Event{
		Kind:         tracking.EventPointAccepted,
		At:           fix.RecordedAt,
		Fix:          &fix,
		ImpliedKmh:   impliedKmh,
		StopTaskDone: s.openStopTaskDone(ctx, rt.state),
	}
	s.evaluateRules(ctx, trip, rt.state, ev)

	return point, nil
}

type EndTripInput struct {
	Lat           float64
	Lng           float64
	EndOdometerKm *float64
}

// EndTrip closes any open stop, finalizes aggregates and transitions the
// trip to COMPLETED in one atomic update, then reconciles the odometer
// best-effort.
func (s *TripService) EndTrip(ctx context.Context, principal model.Principal, tripID uuid.UUID, in EndTripInput) (*model.Trip, error) {
	if !validCoordinate(in.Lat, in.Lng) {
		return nil, ErrInvalidInput
	}

	s.tripLocks.Lock(tripID)
	defer s.tripLocks.Unlock(tripID)

	trip, rt, err := s.runtime(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !principal.AllowsTrip(trip) {
		return nil, ErrPermissionDenied
	}
	if trip.Status.IsTerminal() {
		return nil, ErrTripTerminal
	}

	now := time.Now().UTC()
	s.closeOpenStop(ctx, trip, rt, now)

	updates := map[string]interface{}{
		"status":            model.TripStatusCompleted,
		"ended_at":          now,
		"end_lat":           in.Lat,
		"end_lng":           in.Lng,
		"end_odometer_km":   in.EndOdometerKm,
		"distance_meters":   rt.state.DistanceMeters,
		"visited_locations": len(rt.state.Visited),
		"live_tracking":     false,
		"last_update_at":    now,
	}
	if err := s.finish(ctx, tripID, updates); err != nil {
		return nil, err
	}

	s.raiseMissedLocations(ctx, trip, rt.state)
	s.dropRuntime(tripID)

	ended, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	// Reconciliation is best-effort: a trip must always end cleanly.
	if ended.VehicleID != nil && ended.StartOdometerKm != nil && ended.EndOdometerKm != nil {
		if _, err := s.reconcile(ctx, ended, &principal.UserID); err != nil {
			s.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("odometer reconciliation failed")
		}
	} else {
		s.log.Info().Str("trip_id", tripID.String()).Msg("reconciliation skipped: no vehicle or odometer data")
	}

	s.notify(ctx, func(ctx context.Context) error { return s.notifier.TripEnded(ctx, ended) })
	return ended, nil
}

// CancelTrip transitions ACTIVE to CANCELLED. No reconciliation, no
// missed-location sweep.
func (s *TripService) CancelTrip(ctx context.Context, principal model.Principal, tripID uuid.UUID, reason string) (*model.Trip, error) {
	s.tripLocks.Lock(tripID)
	defer s.tripLocks.Unlock(tripID)

	trip, rt, err := s.runtime(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !principal.AllowsTrip(trip) {
		return nil, ErrPermissionDenied
	}
	if trip.Status.IsTerminal() {
		return nil, ErrTripTerminal
	}

	now := time.Now().UTC()
	s.closeOpenStop(ctx, trip, rt, now)

	updates := map[string]interface{}{
		"status":          model.TripStatusCancelled,
		"ended_at":        now,
		"cancel_reason":   reason,
		"distance_meters": rt.state.DistanceMeters,
		"live_tracking":   false,
		"last_update_at":  now,
	}
	if err := s.finish(ctx, tripID, updates); err != nil {
		return nil, err
	}
	s.dropRuntime(tripID)

	return s.trips.GetByID(ctx, tripID)
}

// AutoCloseTrip is invoked only by the watchdog sweep for trips past the
// inactivity window. Raises missed-location anomalies for unvisited planned
// locations; never reconciles.
func (s *TripService) AutoCloseTrip(ctx context.Context, tripID uuid.UUID) error {
	s.tripLocks.Lock(tripID)
	defer s.tripLocks.Unlock(tripID)

	trip, rt, err := s.runtime(ctx, tripID)
	if err != nil {
		return err
	}
	if trip.Status.IsTerminal() {
		return ErrTripTerminal
	}

	now := time.Now().UTC()
	s.closeOpenStop(ctx, trip, rt, now)

	updates := map[string]interface{}{
		"status":            model.TripStatusAutoClosed,
		"ended_at":          now,
		"distance_meters":   rt.state.DistanceMeters,
		"visited_locations": len(rt.state.Visited),
		"live_tracking":     false,
		"last_update_at":    now,
	}
	if err := s.finish(ctx, tripID, updates); err != nil {
		return err
	}

	s.raiseMissedLocations(ctx, trip, rt.state)
	s.dropRuntime(tripID)

	s.log.Warn().Str("trip_id", tripID.String()).Msg("trip auto-closed after inactivity")
	return nil
}

// RunReconciliation re-runs the odometer comparison for a completed trip.
// There is at most one reconciliation per trip end; a re-run returns the
// existing record.
func (s *TripService) RunReconciliation(ctx context.Context, principal model.Principal, tripID uuid.UUID) (*model.TripReconciliation, error) {
	if !principal.CanManageTrips() {
		return nil, ErrPermissionDenied
	}

	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.OrganizationID != principal.OrgID {
		return nil, ErrPermissionDenied
	}
	if !trip.Status.IsTerminal() {
		return nil, ErrInvalidInput
	}
	if trip.VehicleID == nil || trip.StartOdometerKm == nil || trip.EndOdometerKm == nil {
		return nil, ErrInvalidInput
	}

	return s.reconcile(ctx, trip, &principal.UserID)
}

// reconcile computes and persists the odometer comparison, raises the
// mileage anomaly when out of tolerance and finally moves the vehicle's
// odometer forward. Serialized per vehicle.
func (s *TripService) reconcile(ctx context.Context, trip *model.Trip, performedBy *uuid.UUID) (*model.TripReconciliation, error) {
	vehicleID := *trip.VehicleID

	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	if existing, err := s.reconciliations.GetByTrip(ctx, trip.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	res := tracking.Reconcile(*trip.StartOdometerKm, *trip.EndOdometerKm, trip.DistanceMeters,
		s.cfg.MileageFloorKm, s.cfg.MileagePercent)

	rec := &model.TripReconciliation{
		TripID:             trip.ID,
		VehicleID:          vehicleID,
		ActualOdometerKm:   *trip.EndOdometerKm,
		ExpectedOdometerKm: res.ExpectedKm,
		DifferenceKm:       res.DifferenceKm,
		ThresholdKm:        res.ThresholdKm,
		IsAnomaly:          res.IsAnomaly,
		PerformedBy:        performedBy,
	}
	if err := s.reconciliations.Create(ctx, rec); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.reconciliations.GetByTrip(ctx, trip.ID)
		}
		return nil, err
	}

	if res.IsAnomaly {
		s.raiseAnomaly(ctx, trip, tracking.Candidate{
			Type:     model.AnomalyTypeMileageDiscrepancy,
			Severity: model.AnomalySeverityWarning,
			Details: map[string]interface{}{
				"expected_km":  res.ExpectedKm,
				"actual_km":    *trip.EndOdometerKm,
				"diff_km":      res.DifferenceKm,
				"threshold_km": res.ThresholdKm,
			},
		}, nil)
	}

	now := time.Now().UTC()
	if err := s.vehicles.UpdateOdometer(ctx, vehicleID, *trip.EndOdometerKm, now); err != nil {
		s.log.Error().Err(err).Str("vehicle_id", vehicleID.String()).Msg("failed to update vehicle odometer")
	}

	return rec, nil
}

// UpdateVehicleOdometer applies a manual odometer correction, serialized
// with reconciliation writes for the same vehicle.
func (s *TripService) UpdateVehicleOdometer(ctx context.Context, principal model.Principal, vehicleID uuid.UUID, odometerKm float64) error {
	if !principal.CanManageTrips() {
		return ErrPermissionDenied
	}
	if odometerKm < 0 {
		return ErrInvalidInput
	}

	vehicle, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if vehicle.OrganizationID != principal.OrgID {
		return ErrPermissionDenied
	}

	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	return s.vehicles.UpdateOdometer(ctx, vehicleID, odometerKm, time.Now().UTC())
}

// AssignTask creates the link binding a trip to an externally-defined task,
// normally at trip/task assignment time.
func (s *TripService) AssignTask(ctx context.Context, principal model.Principal, tripID, taskID uuid.UUID, locationID *uuid.UUID) (*model.TripTaskLink, error) {
	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !principal.AllowsTrip(trip) {
		return nil, ErrPermissionDenied
	}

	link := &model.TripTaskLink{
		TripID:     tripID,
		TaskID:     taskID,
		LocationID: locationID,
		Status:     model.TaskLinkStatusPending,
	}
	if err := s.taskLinks.Create(ctx, link); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return link, nil
}

// FinishTask applies the external task module's COMPLETED/SKIPPED decision.
func (s *TripService) FinishTask(ctx context.Context, principal model.Principal, tripID, taskID uuid.UUID, status model.TaskLinkStatus) error {
	if status != model.TaskLinkStatusCompleted && status != model.TaskLinkStatusSkipped {
		return ErrInvalidInput
	}
	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return err
	}
	if !principal.AllowsTrip(trip) {
		return ErrPermissionDenied
	}

	changed, err := s.taskLinks.SetFinalStatus(ctx, tripID, taskID, status)
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

func (s *TripService) ListTrips(ctx context.Context, principal model.Principal, filter repository.TripFilter) ([]model.TripRecord, error) {
	filter.OrgID = principal.OrgID
	if principal.IsEmployee() {
		filter.EmployeeID = principal.EmployeeID
	}

	trips, err := s.trips.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	records := make([]model.TripRecord, 0, len(trips))
	for _, trip := range trips {
		records = append(records, model.TripRecord{
			Trip:    trip,
			Vehicle: model.NewVehicleBrief(trip.Vehicle),
		})
	}
	return records, nil
}

func (s *TripService) GetTripDetails(ctx context.Context, principal model.Principal, tripID uuid.UUID) (*model.TripDetails, error) {
	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !principal.AllowsTrip(trip) {
		return nil, ErrPermissionDenied
	}

	stops, err := s.stops.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	anomalies, err := s.anomalies.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	links, err := s.taskLinks.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	rec, err := s.reconciliations.GetByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	return &model.TripDetails{
		Trip:           *trip,
		Vehicle:        model.NewVehicleBrief(trip.Vehicle),
		Stops:          stops,
		Anomalies:      anomalies,
		TaskLinks:      links,
		Reconciliation: rec,
	}, nil
}

func (s *TripService) ListTripPoints(ctx context.Context, principal model.Principal, tripID uuid.UUID, includeFiltered bool) ([]model.TripPoint, error) {
	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if !principal.AllowsTrip(trip) {
		return nil, ErrPermissionDenied
	}
	return s.points.ListByTrip(ctx, tripID, includeFiltered)
}

// ---- internals ----

func (s *TripService) getTrip(ctx context.Context, tripID uuid.UUID) (*model.Trip, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// runtime loads the trip and its engine state, rebuilding the state from
// storage after a restart. Callers must hold the trip lock.
func (s *TripService) runtime(ctx context.Context, tripID uuid.UUID) (*model.Trip, *tripRuntime, error) {
	trip, err := s.getTrip(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}

	s.runtimesMu.Lock()
	rt, ok := s.runtimes[tripID]
	s.runtimesMu.Unlock()
	if ok || trip.Status.IsTerminal() {
		return trip, rt, nil
	}

	st := tracking.NewTripState(tripID)
	st.DistanceMeters = trip.DistanceMeters

	last, err := s.points.LastAccepted(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	if last != nil {
		st.LastAccepted = &tracking.Fix{
			Point:      geo.Point{Lat: last.Lat, Lng: last.Lng},
			AccuracyM:  last.AccuracyM,
			SpeedKmh:   last.SpeedKmh,
			RecordedAt: last.RecordedAt,
		}
	}

	open, err := s.stops.Open(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	st.OpenStop = open

	visited, err := s.stops.MatchedLocationIDs(ctx, tripID)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range visited {
		st.MarkVisited(id)
	}

	if s.routes != nil {
		route, err := s.routes.PlannedRoute(ctx, tripID)
		if err != nil {
			s.log.Warn().Err(err).Str("trip_id", tripID.String()).Msg("planned route unavailable")
		} else {
			st.PlannedRoute = route
		}
	}

	rt = &tripRuntime{state: st}
	s.runtimesMu.Lock()
	s.runtimes[tripID] = rt
	s.runtimesMu.Unlock()

	return trip, rt, nil
}

func (s *TripService) dropRuntime(tripID uuid.UUID) {
	s.runtimesMu.Lock()
	delete(s.runtimes, tripID)
	s.runtimesMu.Unlock()
}

// finish performs the guarded terminal transition, translating a lost race
// into the terminal error.
func (s *TripService) finish(ctx context.Context, tripID uuid.UUID, updates map[string]interface{}) error {
	if err := s.trips.Finish(ctx, tripID, updates); err != nil {
		if errors.Is(err, repository.ErrNotActive) {
			return ErrTripTerminal
		}
		return err
	}
	return nil
}

func (s *TripService) applyStopUpdate(ctx context.Context, trip *model.Trip, rt *tripRuntime, update tracking.StopUpdate, at time.Time) {
	st := rt.state

	if update.Opened != nil {
		if err := s.stops.Create(ctx, update.Opened); err != nil {
			s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to persist opened stop")
		}
		if err := s.trips.AddStop(ctx, trip.ID, len(st.Visited)); err != nil {
			s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to bump stop counter")
		}
	}

	if update.Matched {
		if err := s.stops.Save(ctx, st.OpenStop); err != nil {
			s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to persist stop match")
		}
		if err := s.trips.SetVisitedLocations(ctx, trip.ID, len(st.Visited)); err != nil {
			s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to update visited counter")
		}
	}

	if update.Closed != nil {
		s.finalizeClosedStop(ctx, trip, st, update.Closed)
	}
}

// finalizeClosedStop persists the closed stop, runs close-time verification
// and feeds the stop-closed rules.
func (s *TripService) finalizeClosedStop(ctx context.Context, trip *model.Trip, st *tracking.TripState, stop *model.TripStop) {
	if stop.EndedAt != nil && s.verifier.ShouldVerify(stop, *stop.EndedAt) {
		s.verifyStop(ctx, trip, stop, *stop.EndedAt)
	}

	if err := s.stops.Save(ctx, stop); err != nil {
		s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to persist closed stop")
	}

	ev := tracking.Event{
		Kind:         tracking.EventStopClosed,
		At:           time.Now().UTC(),
		Stop:         stop,
		StopTaskDone: s.stopTaskDone(ctx, trip.ID, stop),
	}
	if stop.EndedAt != nil {
		ev.At = *stop.EndedAt
	}
	s.evaluateRules(ctx, trip, st, ev)
}

// verifyStop marks the stop GPS-verified and advances the matching pending
// task link to IN_PROGRESS.
func (s *TripService) verifyStop(ctx context.Context, trip *model.Trip, stop *model.TripStop, at time.Time) {
	stop.IsVerified = true
	if err := s.stops.Save(ctx, stop); err != nil {
		s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to persist stop verification")
		return
	}

	if stop.LocationID == nil {
		return
	}
	link, err := s.taskLinks.FindPendingByLocation(ctx, trip.ID, *stop.LocationID)
	if err != nil {
		s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("task link lookup failed")
		return
	}
	if link == nil {
		return
	}
	if _, err := s.taskLinks.MarkInProgress(ctx, link.ID, at); err != nil {
		s.log.Error().Err(err).Str("link_id", link.ID.String()).Msg("failed to advance task link")
	}
}

func (s *TripService) closeOpenStop(ctx context.Context, trip *model.Trip, rt *tripRuntime, at time.Time) {
	if closed := s.detector.CloseOpen(rt.state, at); closed != nil {
		s.finalizeClosedStop(ctx, trip, rt.state, closed)
	}
}

// raiseMissedLocations fires one missed-location event per planned location
// no stop ever matched.
func (s *TripService) raiseMissedLocations(ctx context.Context, trip *model.Trip, st *tracking.TripState) {
	links, err := s.taskLinks.ListByTrip(ctx, trip.ID)
	if err != nil {
		s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to list task links for missed-location sweep")
		return
	}

	seen := make(map[uuid.UUID]struct{})
	for _, link := range links {
		if link.LocationID == nil || link.Location == nil {
			continue
		}
		id := *link.LocationID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if st.HasVisited(id) {
			continue
		}
		ev := tracking.Event{
			Kind: tracking.EventMissedLocation,
			At:   time.Now().UTC(),
			Missed: &geo.Location{
				ID:    id,
				Name:  link.Location.Name,
				Point: geo.Point{Lat: link.Location.Lat, Lng: link.Location.Lng},
			},
		}
		s.evaluateRules(ctx, trip, st, ev)
	}
}

func (s *TripService) evaluateRules(ctx context.Context, trip *model.Trip, st *tracking.TripState, ev tracking.Event) {
	for _, c := range s.rules.Evaluate(st, ev) {
		s.raiseAnomaly(ctx, trip, c, ev.Stop)
	}
}

// raiseAnomaly persists one anomaly candidate. Failures degrade to a log
// line; detection must never abort ingestion.
func (s *TripService) raiseAnomaly(ctx context.Context, trip *model.Trip, c tracking.Candidate, stop *model.TripStop) {
	anomaly := &model.TripAnomaly{
		TripID:   trip.ID,
		Type:     c.Type,
		Severity: c.Severity,
	}
	if c.Point != nil {
		anomaly.Lat = &c.Point.Lat
		anomaly.Lng = &c.Point.Lng
	}
	if len(c.Details) > 0 {
		if raw, err := json.Marshal(c.Details); err == nil {
			anomaly.Details = raw
		}
	}

	if err := s.anomalies.Create(ctx, anomaly); err != nil {
		s.log.Error().Err(err).
			Str("trip_id", trip.ID.String()).
			Str("type", string(c.Type)).
			Msg("failed to persist anomaly")
		return
	}
	if err := s.trips.AddAnomaly(ctx, trip.ID); err != nil {
		s.log.Error().Err(err).Str("trip_id", trip.ID.String()).Msg("failed to bump anomaly counter")
	}

	if stop != nil && (c.Type == model.AnomalyTypeLongStop || c.Type == model.AnomalyTypeUnplannedStop) && !stop.IsAnomaly {
		stop.IsAnomaly = true
		if err := s.stops.Save(ctx, stop); err != nil {
			s.log.Error().Err(err).Str("stop_id", stop.ID.String()).Msg("failed to flag stop anomaly")
		}
	}

	s.notify(ctx, func(ctx context.Context) error { return s.notifier.AnomalyDetected(ctx, anomaly) })
}

// openStopTaskDone reports whether the open stop's location already has a
// completed task link. Used by the long-stop rule to excuse planned dwells.
func (s *TripService) openStopTaskDone(ctx context.Context, st *tracking.TripState) bool {
	if st.OpenStop == nil || st.OpenStop.LocationID == nil {
		return false
	}
	return s.stopTaskDone(ctx, st.TripID, st.OpenStop)
}

func (s *TripService) stopTaskDone(ctx context.Context, tripID uuid.UUID, stop *model.TripStop) bool {
	if stop == nil || stop.LocationID == nil {
		return false
	}
	done, err := s.taskLinks.HasCompletedByLocation(ctx, tripID, *stop.LocationID)
	if err != nil {
		s.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("task link completion lookup failed")
		return false
	}
	return done
}

func (s *TripService) newPoint(tripID uuid.UUID, fix tracking.Fix, reason *model.FilterReason, delta float64) *model.TripPoint {
	return &model.TripPoint{
		TripID:            tripID,
		Lat:               fix.Point.Lat,
		Lng:               fix.Point.Lng,
		AccuracyM:         fix.AccuracyM,
		SpeedKmh:          fix.SpeedKmh,
		Heading:           fix.Heading,
		AltitudeM:         fix.AltitudeM,
		DistanceFromPrevM: delta,
		IsFiltered:        reason != nil,
		FilterReason:      reason,
		RecordedAt:        fix.RecordedAt,
	}
}

// notify invokes the sink and swallows failures; notifications never roll
// back core state.
func (s *TripService) notify(ctx context.Context, fn func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.log.Warn().Err(err).Msg("notification failed")
	}
}

func validCoordinate(lat, lng float64) bool {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return false
	}
	// Null Island fixes are sensor default noise, not positions.
	return !(lat == 0 && lng == 0)
}
