package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
	"trip-tracking-service/internal/repository"
)

type fakeTripRepo struct {
	mu    sync.Mutex
	trips map[uuid.UUID]*model.Trip
}

func newFakeTripRepo() *fakeTripRepo {
	return &fakeTripRepo{trips: make(map[uuid.UUID]*model.Trip)}
}

func (r *fakeTripRepo) CreateActive(ctx context.Context, trip *model.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.trips {
		if existing.EmployeeID == trip.EmployeeID && existing.Status == model.TripStatusActive {
			return gorm.ErrDuplicatedKey
		}
	}
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	stored := *trip
	r.trips[trip.ID] = &stored
	return nil
}

func (r *fakeTripRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trip, ok := r.trips[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *trip
	return &copied, nil
}

func (r *fakeTripRepo) List(ctx context.Context, filter repository.TripFilter) ([]model.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Trip
	for _, trip := range r.trips {
		if trip.OrganizationID != filter.OrgID {
			continue
		}
		if filter.EmployeeID != nil && trip.EmployeeID != *filter.EmployeeID {
			continue
		}
		out = append(out, *trip)
	}
	return out, nil
}

func (r *fakeTripRepo) RecordPoint(ctx context.Context, tripID uuid.UUID, distanceDelta float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	trip, ok := r.trips[tripID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	trip.PointsCount++
	trip.DistanceMeters += distanceDelta
	trip.LastUpdateAt = at
	return nil
}

func (r *fakeTripRepo) AddStop(ctx context.Context, tripID uuid.UUID, visitedLocations int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trip, ok := r.trips[tripID]; ok {
		trip.StopsCount++
		trip.VisitedLocations = visitedLocations
	}
	return nil
}

func (r *fakeTripRepo) SetVisitedLocations(ctx context.Context, tripID uuid.UUID, visitedLocations int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trip, ok := r.trips[tripID]; ok {
		trip.VisitedLocations = visitedLocations
	}
	return nil
}

func (r *fakeTripRepo) AddAnomaly(ctx context.Context, tripID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trip, ok := r.trips[tripID]; ok {
		trip.AnomaliesCount++
	}
	return nil
}

func (r *fakeTripRepo) Finish(ctx context.Context, tripID uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	trip, ok := r.trips[tripID]
	if !ok || trip.Status != model.TripStatusActive {
		return repository.ErrNotActive
	}
	for key, value := range updates {
		switch key {
		case "status":
			trip.Status = value.(model.TripStatus)
		case "ended_at":
			at := value.(time.Time)
			trip.EndedAt = &at
		case "end_lat":
			lat := value.(float64)
			trip.EndLat = &lat
		case "end_lng":
			lng := value.(float64)
			trip.EndLng = &lng
		case "end_odometer_km":
			if v, ok := value.(*float64); ok && v != nil {
				trip.EndOdometerKm = v
			}
		case "distance_meters":
			trip.DistanceMeters = value.(float64)
		case "visited_locations":
			trip.VisitedLocations = value.(int)
		case "cancel_reason":
			reason := value.(string)
			trip.CancelReason = &reason
		case "live_tracking":
			trip.LiveTracking = value.(bool)
		case "last_update_at":
			trip.LastUpdateAt = value.(time.Time)
		}
	}
	return nil
}

func (r *fakeTripRepo) ListStaleActiveIDs(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, trip := range r.trips {
		if trip.Status == model.TripStatusActive && trip.LastUpdateAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeTripRepo) setLastUpdate(id uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trip, ok := r.trips[id]; ok {
		trip.LastUpdateAt = at
	}
}

type fakePointRepo struct {
	mu     sync.Mutex
	points []model.TripPoint
}

func newFakePointRepo() *fakePointRepo {
	return &fakePointRepo{}
}

func (r *fakePointRepo) Create(ctx context.Context, point *model.TripPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if point.ID == uuid.Nil {
		point.ID = uuid.New()
	}
	r.points = append(r.points, *point)
	return nil
}

func (r *fakePointRepo) LastAccepted(ctx context.Context, tripID uuid.UUID) (*model.TripPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.points) - 1; i >= 0; i-- {
		p := r.points[i]
		if p.TripID == tripID && !p.IsFiltered {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *fakePointRepo) ListByTrip(ctx context.Context, tripID uuid.UUID, includeFiltered bool) ([]model.TripPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TripPoint
	for _, p := range r.points {
		if p.TripID != tripID {
			continue
		}
		if p.IsFiltered && !includeFiltered {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *fakePointRepo) byTrip(tripID uuid.UUID) []model.TripPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TripPoint
	for _, p := range r.points {
		if p.TripID == tripID {
			out = append(out, p)
		}
	}
	return out
}

type fakeStopRepo struct {
	mu    sync.Mutex
	stops map[uuid.UUID]*model.TripStop
}

func newFakeStopRepo() *fakeStopRepo {
	return &fakeStopRepo{stops: make(map[uuid.UUID]*model.TripStop)}
}

func (r *fakeStopRepo) Create(ctx context.Context, stop *model.TripStop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stop.ID == uuid.Nil {
		stop.ID = uuid.New()
	}
	stored := *stop
	r.stops[stop.ID] = &stored
	return nil
}

func (r *fakeStopRepo) Save(ctx context.Context, stop *model.TripStop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *stop
	r.stops[stop.ID] = &stored
	return nil
}

func (r *fakeStopRepo) Open(ctx context.Context, tripID uuid.UUID) (*model.TripStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stop := range r.stops {
		if stop.TripID == tripID && stop.EndedAt == nil {
			copied := *stop
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeStopRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TripStop
	for _, stop := range r.stops {
		if stop.TripID == tripID {
			out = append(out, *stop)
		}
	}
	return out, nil
}

func (r *fakeStopRepo) MatchedLocationIDs(ctx context.Context, tripID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, stop := range r.stops {
		if stop.TripID != tripID || stop.LocationID == nil {
			continue
		}
		if _, dup := seen[*stop.LocationID]; dup {
			continue
		}
		seen[*stop.LocationID] = struct{}{}
		ids = append(ids, *stop.LocationID)
	}
	return ids, nil
}

type fakeAnomalyRepo struct {
	mu        sync.Mutex
	anomalies map[uuid.UUID]*model.TripAnomaly
}

func newFakeAnomalyRepo() *fakeAnomalyRepo {
	return &fakeAnomalyRepo{anomalies: make(map[uuid.UUID]*model.TripAnomaly)}
}

func (r *fakeAnomalyRepo) Create(ctx context.Context, anomaly *model.TripAnomaly) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if anomaly.ID == uuid.Nil {
		anomaly.ID = uuid.New()
	}
	anomaly.CreatedAt = time.Now().UTC()
	stored := *anomaly
	r.anomalies[anomaly.ID] = &stored
	return nil
}

func (r *fakeAnomalyRepo) List(ctx context.Context, filter repository.AnomalyFilter) ([]model.TripAnomaly, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TripAnomaly
	for _, a := range r.anomalies {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeAnomalyRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.TripAnomaly, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anomalies[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAnomalyRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripAnomaly, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TripAnomaly
	for _, a := range r.anomalies {
		if a.TripID == tripID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeAnomalyRepo) Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, notes string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anomalies[id]
	if !ok || a.IsResolved {
		return false, nil
	}
	a.IsResolved = true
	a.ResolvedBy = &resolvedBy
	a.ResolvedAt = &at
	a.ResolutionNotes = notes
	return true, nil
}

func (r *fakeAnomalyRepo) attach(a *model.TripAnomaly) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	stored := *a
	r.anomalies[a.ID] = &stored
}

func (r *fakeAnomalyRepo) ofType(tripID uuid.UUID, typ model.AnomalyType) []model.TripAnomaly {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TripAnomaly
	for _, a := range r.anomalies {
		if a.TripID == tripID && a.Type == typ {
			out = append(out, *a)
		}
	}
	return out
}

type fakeTaskLinkRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID]*model.TripTaskLink
}

func newFakeTaskLinkRepo() *fakeTaskLinkRepo {
	return &fakeTaskLinkRepo{links: make(map[uuid.UUID]*model.TripTaskLink)}
}

func (r *fakeTaskLinkRepo) Create(ctx context.Context, link *model.TripTaskLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.links {
		if existing.TripID == link.TripID && existing.TaskID == link.TaskID {
			return gorm.ErrDuplicatedKey
		}
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	stored := *link
	r.links[link.ID] = &stored
	return nil
}

func (r *fakeTaskLinkRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]model.TripTaskLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TripTaskLink
	for _, link := range r.links {
		if link.TripID == tripID {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (r *fakeTaskLinkRepo) FindPendingByLocation(ctx context.Context, tripID, locationID uuid.UUID) (*model.TripTaskLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.TripID == tripID && link.LocationID != nil && *link.LocationID == locationID &&
			link.Status == model.TaskLinkStatusPending {
			copied := *link
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeTaskLinkRepo) HasCompletedByLocation(ctx context.Context, tripID, locationID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.TripID == tripID && link.LocationID != nil && *link.LocationID == locationID &&
			link.Status == model.TaskLinkStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTaskLinkRepo) MarkInProgress(ctx context.Context, id uuid.UUID, verifiedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[id]
	if !ok || link.Status != model.TaskLinkStatusPending {
		return false, nil
	}
	link.Status = model.TaskLinkStatusInProgress
	link.VerifiedByGps = true
	link.GpsVerifiedAt = &verifiedAt
	return true, nil
}

func (r *fakeTaskLinkRepo) SetFinalStatus(ctx context.Context, tripID, taskID uuid.UUID, status model.TaskLinkStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.TripID != tripID || link.TaskID != taskID {
			continue
		}
		if link.Status != model.TaskLinkStatusPending && link.Status != model.TaskLinkStatusInProgress {
			return false, nil
		}
		link.Status = status
		return true, nil
	}
	return false, nil
}

func (r *fakeTaskLinkRepo) setLocation(id uuid.UUID, loc *model.ServiceLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if link, ok := r.links[id]; ok {
		link.Location = loc
	}
}

func (r *fakeTaskLinkRepo) get(id uuid.UUID) *model.TripTaskLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if link, ok := r.links[id]; ok {
		copied := *link
		return &copied
	}
	return nil
}

type fakeReconciliationRepo struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*model.TripReconciliation
}

func newFakeReconciliationRepo() *fakeReconciliationRepo {
	return &fakeReconciliationRepo{recs: make(map[uuid.UUID]*model.TripReconciliation)}
}

func (r *fakeReconciliationRepo) Create(ctx context.Context, rec *model.TripReconciliation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.recs[rec.TripID]; exists {
		return gorm.ErrDuplicatedKey
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	stored := *rec
	r.recs[rec.TripID] = &stored
	return nil
}

func (r *fakeReconciliationRepo) GetByTrip(ctx context.Context, tripID uuid.UUID) (*model.TripReconciliation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[tripID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

type fakeVehicleRepo struct {
	mu       sync.Mutex
	vehicles map[uuid.UUID]*model.Vehicle
}

func newFakeVehicleRepo() *fakeVehicleRepo {
	return &fakeVehicleRepo{vehicles: make(map[uuid.UUID]*model.Vehicle)}
}

func (r *fakeVehicleRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *v
	return &copied, nil
}

func (r *fakeVehicleRepo) UpdateOdometer(ctx context.Context, id uuid.UUID, odometerKm float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehicles[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	v.OdometerKm = odometerKm
	v.OdometerUpdatedAt = &at
	return nil
}

func (r *fakeVehicleRepo) add(v *model.Vehicle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *v
	r.vehicles[v.ID] = &stored
}

type fakeLocationIndex struct {
	locs []geo.Location
}

func (f *fakeLocationIndex) Nearest(p geo.Point, radiusM float64) (geo.Location, float64, bool) {
	var (
		best  geo.Location
		bestD float64
		found bool
	)
	for _, loc := range f.locs {
		d := geo.Haversine(p, loc.Point)
		if d > radiusM {
			continue
		}
		if !found || d < bestD {
			best = loc
			bestD = d
			found = true
		}
	}
	return best, bestD, found
}

type fakeNotifier struct {
	mu        sync.Mutex
	started   int
	ended     int
	anomalies int
}

func (n *fakeNotifier) TripStarted(ctx context.Context, trip *model.Trip) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
	return nil
}

func (n *fakeNotifier) TripEnded(ctx context.Context, trip *model.Trip) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended++
	return nil
}

func (n *fakeNotifier) AnomalyDetected(ctx context.Context, anomaly *model.TripAnomaly) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.anomalies++
	return nil
}

type staticRouteProvider struct {
	route []geo.Point
}

func (p *staticRouteProvider) PlannedRoute(ctx context.Context, tripID uuid.UUID) ([]geo.Point, error) {
	return p.route, nil
}
