package tracking

import (
	"time"

	"github.com/google/uuid"

	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
)

// Fix is one raw GPS reading as submitted by the mobile client.
type Fix struct {
	Point      geo.Point
	AccuracyM  *float64
	SpeedKmh   *float64
	Heading    *float64
	AltitudeM  *float64
	RecordedAt time.Time
}

// TripState is the in-memory runtime of one active trip: the last accepted
// fix, the open stop, the stop-candidate window and the anomaly suppression
// markers. All access is serialized by the lifecycle's per-trip lock, so the
// struct itself carries no locking.
type TripState struct {
	TripID         uuid.UUID
	DistanceMeters float64

	LastAccepted *Fix
	LastRaw      *Fix

	OpenStop  *model.TripStop
	stopFixes int
	candidate []Fix

	// Visited holds the service locations matched by any stop of this trip.
	Visited map[uuid.UUID]struct{}

	// PlannedRoute is the optional planned polyline for deviation checks.
	PlannedRoute []geo.Point

	// Suppression markers: an unchanged condition never re-fires, a changed
	// one (severity escalation, new excursion) does.
	longStopFired  map[uuid.UUID]model.AnomalySeverity
	speedExcursion bool
	routeOutside   int
	routeFired     bool
}

func NewTripState(tripID uuid.UUID) *TripState {
	return &TripState{
		TripID:        tripID,
		Visited:       make(map[uuid.UUID]struct{}),
		longStopFired: make(map[uuid.UUID]model.AnomalySeverity),
	}
}

// MarkVisited records a matched service location.
func (st *TripState) MarkVisited(locationID uuid.UUID) {
	st.Visited[locationID] = struct{}{}
}

func (st *TripState) HasVisited(locationID uuid.UUID) bool {
	_, ok := st.Visited[locationID]
	return ok
}

// ImpliedSpeedKmh is the speed implied by moving from the last accepted fix
// to the given one. Zero when there is no previous fix or no time elapsed.
func (st *TripState) ImpliedSpeedKmh(fix Fix) float64 {
	if st.LastAccepted == nil {
		return 0
	}
	dt := fix.RecordedAt.Sub(st.LastAccepted.RecordedAt)
	if dt <= 0 {
		return 0
	}
	distKm := geo.Haversine(st.LastAccepted.Point, fix.Point) / 1000.0
	return distKm / dt.Hours()
}
