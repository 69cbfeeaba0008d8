package tracking

import (
	"time"

	"github.com/rs/zerolog"

	"trip-tracking-service/internal/config"
	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
)

type EventKind string

const (
	EventPointAccepted  EventKind = "POINT_ACCEPTED"
	EventStopClosed     EventKind = "STOP_CLOSED"
	EventMissedLocation EventKind = "MISSED_LOCATION"
)

// Event is one engine transition handed to the anomaly rules. Exactly the
// fields relevant to the kind are set.
type Event struct {
	Kind EventKind
	At   time.Time

	Fix        *Fix
	ImpliedKmh float64

	Stop *model.TripStop
	// StopTaskDone is true when the stop's matched location has a completed
	// task link, which excuses an arbitrarily long dwell.
	StopTaskDone bool

	// Missed is the planned location no stop ever matched, at trip end.
	Missed *geo.Location
}

// Candidate is a rule's verdict: one anomaly to raise.
type Candidate struct {
	Type     model.AnomalyType
	Severity model.AnomalySeverity
	Point    *geo.Point
	Details  map[string]interface{}
}

// Rule pairs an anomaly kind with its evaluation function. Evaluation reads
// trip state and the event; suppression markers live in TripState so an
// unchanged condition never fires twice.
type Rule struct {
	Type     model.AnomalyType
	Evaluate func(st *TripState, ev Event) *Candidate
}

// Registry composes the independent rules. A panicking or misbehaving rule
// degrades to "no anomaly raised" and never aborts point ingestion.
type Registry struct {
	rules []Rule
	log   zerolog.Logger
}

func NewRegistry(cfg config.TrackingConfig, log zerolog.Logger) *Registry {
	return &Registry{
		log: log,
		rules: []Rule{
			longStopRule(cfg),
			speedViolationRule(cfg),
			routeDeviationRule(cfg),
			missedLocationRule(),
			unplannedStopRule(cfg),
		},
	}
}

func (r *Registry) Evaluate(st *TripState, ev Event) []Candidate {
	var out []Candidate
	for _, rule := range r.rules {
		if c := r.evalOne(rule, st, ev); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func (r *Registry) evalOne(rule Rule, st *TripState, ev Event) (c *Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("rule", string(rule.Type)).
				Str("event", string(ev.Kind)).
				Interface("panic", rec).
				Msg("anomaly rule panicked, skipping")
			c = nil
		}
	}()
	return rule.Evaluate(st, ev)
}

func longStopRule(cfg config.TrackingConfig) Rule {
	return Rule{
		Type: model.AnomalyTypeLongStop,
		Evaluate: func(st *TripState, ev Event) *Candidate {
			var stop *model.TripStop
			var dwell time.Duration
			switch ev.Kind {
			case EventPointAccepted:
				stop = st.OpenStop
				if stop == nil {
					return nil
				}
				dwell = ev.At.Sub(stop.StartedAt)
			case EventStopClosed:
				stop = ev.Stop
				if stop == nil || stop.DurationSeconds == nil {
					return nil
				}
				dwell = time.Duration(*stop.DurationSeconds) * time.Second
			default:
				return nil
			}

			if stop.LocationID != nil && ev.StopTaskDone {
				return nil
			}
			if dwell < cfg.LongStopThreshold {
				return nil
			}

			severity := model.AnomalySeverityWarning
			if dwell >= 2*cfg.LongStopThreshold {
				severity = model.AnomalySeverityCritical
			}
			if prev, fired := st.longStopFired[stop.ID]; fired {
				// Re-fire only across a severity boundary.
				if prev == severity || prev == model.AnomalySeverityCritical {
					return nil
				}
			}
			st.longStopFired[stop.ID] = severity

			return &Candidate{
				Type:     model.AnomalyTypeLongStop,
				Severity: severity,
				Point:    &geo.Point{Lat: stop.Lat, Lng: stop.Lng},
				Details: map[string]interface{}{
					"stop_id":       stop.ID,
					"dwell_seconds": int64(dwell.Seconds()),
					"fix_count":     st.stopFixes,
					"has_location":  stop.LocationID != nil,
				},
			}
		},
	}
}

func speedViolationRule(cfg config.TrackingConfig) Rule {
	return Rule{
		Type: model.AnomalyTypeSpeedViolation,
		Evaluate: func(st *TripState, ev Event) *Candidate {
			if ev.Kind != EventPointAccepted || ev.Fix == nil {
				return nil
			}
			speed := ev.ImpliedKmh
			if ev.Fix.SpeedKmh != nil {
				speed = *ev.Fix.SpeedKmh
			}
			if speed <= cfg.SpeedLimitKmh {
				st.speedExcursion = false
				return nil
			}
			if st.speedExcursion {
				return nil
			}
			st.speedExcursion = true
			p := ev.Fix.Point
			return &Candidate{
				Type:     model.AnomalyTypeSpeedViolation,
				Severity: model.AnomalySeverityWarning,
				Point:    &p,
				Details: map[string]interface{}{
					"speed_kmh": speed,
					"limit_kmh": cfg.SpeedLimitKmh,
				},
			}
		},
	}
}

func routeDeviationRule(cfg config.TrackingConfig) Rule {
	return Rule{
		Type: model.AnomalyTypeRouteDeviation,
		Evaluate: func(st *TripState, ev Event) *Candidate {
			if ev.Kind != EventPointAccepted || ev.Fix == nil || len(st.PlannedRoute) < 2 {
				return nil
			}
			dist := geo.PointToPolylineM(ev.Fix.Point, st.PlannedRoute)
			if dist <= cfg.RouteCorridorM {
				st.routeOutside = 0
				st.routeFired = false
				return nil
			}
			st.routeOutside++
			if st.routeOutside < cfg.RouteSustainFixes || st.routeFired {
				return nil
			}
			st.routeFired = true

			severity := model.AnomalySeverityWarning
			if dist > 2*cfg.RouteCorridorM {
				severity = model.AnomalySeverityCritical
			}
			p := ev.Fix.Point
			return &Candidate{
				Type:     model.AnomalyTypeRouteDeviation,
				Severity: severity,
				Point:    &p,
				Details: map[string]interface{}{
					"distance_m":  dist,
					"corridor_m":  cfg.RouteCorridorM,
					"fixes_count": st.routeOutside,
				},
			}
		},
	}
}

func missedLocationRule() Rule {
	return Rule{
		Type: model.AnomalyTypeMissedLocation,
		Evaluate: func(st *TripState, ev Event) *Candidate {
			if ev.Kind != EventMissedLocation || ev.Missed == nil {
				return nil
			}
			p := ev.Missed.Point
			return &Candidate{
				Type:     model.AnomalyTypeMissedLocation,
				Severity: model.AnomalySeverityWarning,
				Point:    &p,
				Details: map[string]interface{}{
					"location_id":   ev.Missed.ID,
					"location_name": ev.Missed.Name,
				},
			}
		},
	}
}

func unplannedStopRule(cfg config.TrackingConfig) Rule {
	return Rule{
		Type: model.AnomalyTypeUnplannedStop,
		Evaluate: func(st *TripState, ev Event) *Candidate {
			if ev.Kind != EventStopClosed || ev.Stop == nil {
				return nil
			}
			stop := ev.Stop
			if stop.LocationID != nil || stop.DurationSeconds == nil {
				return nil
			}
			if time.Duration(*stop.DurationSeconds)*time.Second < cfg.UnplannedStopMin {
				return nil
			}
			return &Candidate{
				Type:     model.AnomalyTypeUnplannedStop,
				Severity: model.AnomalySeverityInfo,
				Point:    &geo.Point{Lat: stop.Lat, Lng: stop.Lng},
				Details: map[string]interface{}{
					"stop_id":          stop.ID,
					"duration_seconds": *stop.DurationSeconds,
				},
			}
		},
	}
}
