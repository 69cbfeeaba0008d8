package tracking

import (
	"time"

	"github.com/google/uuid"

	"trip-tracking-service/internal/config"
	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
)

// LocationIndex is the known-location lookup the detector matches open
// stops against.
type LocationIndex interface {
	Nearest(p geo.Point, radiusM float64) (geo.Location, float64, bool)
}

// StopUpdate describes what a fix did to the trip's stop state. At most one
// of Opened/Closed is set per fix; Matched flags that the open stop just
// acquired its location reference and needs persisting.
type StopUpdate struct {
	Opened  *model.TripStop
	Closed  *model.TripStop
	Matched bool
}

// StopDetector clusters accepted fixes into dwell periods. A candidate stop
// opens once a run of fixes all falls within the stop radius of their
// centroid for the configured minimum count or window; it closes when a fix
// lands outside the radius times the hysteresis factor.
type StopDetector struct {
	cfg   config.TrackingConfig
	index LocationIndex
}

func NewStopDetector(cfg config.TrackingConfig, index LocationIndex) *StopDetector {
	return &StopDetector{cfg: cfg, index: index}
}

func (d *StopDetector) Advance(st *TripState, fix Fix) StopUpdate {
	if st.OpenStop != nil {
		return d.advanceOpen(st, fix)
	}
	return d.advanceCandidate(st, fix)
}

func (d *StopDetector) advanceOpen(st *TripState, fix Fix) StopUpdate {
	stop := st.OpenStop
	center := geo.Point{Lat: stop.Lat, Lng: stop.Lng}

	if geo.Haversine(fix.Point, center) > d.cfg.StopRadiusM*d.cfg.StopHysteresis {
		closed := d.close(st, fix.RecordedAt)
		// The departing fix may itself start a new candidate run.
		st.candidate = []Fix{fix}
		return StopUpdate{Closed: closed}
	}

	st.stopFixes++

	if stop.LocationID == nil {
		if d.match(st, stop) {
			return StopUpdate{Matched: true}
		}
	}
	return StopUpdate{}
}

func (d *StopDetector) advanceCandidate(st *TripState, fix Fix) StopUpdate {
	st.candidate = append(st.candidate, fix)
	d.shrinkCandidate(st)

	if len(st.candidate) == 0 {
		return StopUpdate{}
	}

	span := st.candidate[len(st.candidate)-1].RecordedAt.Sub(st.candidate[0].RecordedAt)
	enough := len(st.candidate) >= d.cfg.StopMinFixes ||
		(len(st.candidate) >= 2 && span >= d.cfg.StopMinWindow)
	if !enough {
		return StopUpdate{}
	}

	centroid := candidateCentroid(st.candidate)
	stop := &model.TripStop{
		ID:        uuid.New(),
		TripID:    st.TripID,
		Lat:       centroid.Lat,
		Lng:       centroid.Lng,
		StartedAt: st.candidate[0].RecordedAt,
	}
	st.OpenStop = stop
	st.stopFixes = len(st.candidate)
	st.candidate = nil

	d.match(st, stop)
	return StopUpdate{Opened: stop}
}

// shrinkCandidate drops leading fixes until the remaining window clusters
// within the stop radius of its centroid.
func (d *StopDetector) shrinkCandidate(st *TripState) {
	for len(st.candidate) > 0 {
		centroid := candidateCentroid(st.candidate)
		fits := true
		for _, f := range st.candidate {
			if geo.Haversine(f.Point, centroid) > d.cfg.StopRadiusM {
				fits = false
				break
			}
		}
		if fits {
			return
		}
		st.candidate = st.candidate[1:]
	}
}

// CloseOpen force-closes the open stop, if any, at the given time. Used at
// trip end and auto-close.
func (d *StopDetector) CloseOpen(st *TripState, at time.Time) *model.TripStop {
	if st.OpenStop == nil {
		return nil
	}
	return d.close(st, at)
}

func (d *StopDetector) close(st *TripState, at time.Time) *model.TripStop {
	stop := st.OpenStop
	ended := at
	if ended.Before(stop.StartedAt) {
		ended = stop.StartedAt
	}
	stop.EndedAt = &ended
	dur := int64(ended.Sub(stop.StartedAt).Seconds())
	stop.DurationSeconds = &dur

	st.OpenStop = nil
	st.stopFixes = 0
	delete(st.longStopFired, stop.ID)
	return stop
}

func (d *StopDetector) match(st *TripState, stop *model.TripStop) bool {
	if d.index == nil {
		return false
	}
	loc, dist, ok := d.index.Nearest(geo.Point{Lat: stop.Lat, Lng: stop.Lng}, d.cfg.MatchRadiusM)
	if !ok {
		return false
	}
	id := loc.ID
	stop.LocationID = &id
	stop.DistanceToLocationM = &dist
	st.MarkVisited(id)
	return true
}

func candidateCentroid(fixes []Fix) geo.Point {
	points := make([]geo.Point, len(fixes))
	for i, f := range fixes {
		points[i] = f.Point
	}
	return geo.Centroid(points)
}
