package service

import (
	"context"

	"github.com/google/uuid"

	"trip-tracking-service/internal/geo"
)

// TaskRouteProvider derives the planned polyline from the trip's task-link
// locations in assignment order, prefixed with the trip's start point. A
// trip with fewer than two planned points yields no polyline and disables
// route-deviation checks.
type TaskRouteProvider struct {
	trips     TripRepo
	taskLinks TaskLinkRepo
}

func NewTaskRouteProvider(trips TripRepo, taskLinks TaskLinkRepo) *TaskRouteProvider {
	return &TaskRouteProvider{trips: trips, taskLinks: taskLinks}
}

func (p *TaskRouteProvider) PlannedRoute(ctx context.Context, tripID uuid.UUID) ([]geo.Point, error) {
	trip, err := p.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	links, err := p.taskLinks.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	route := []geo.Point{{Lat: trip.StartLat, Lng: trip.StartLng}}
	for _, link := range links {
		if link.Location == nil {
			continue
		}
		route = append(route, geo.Point{Lat: link.Location.Lat, Lng: link.Location.Lng})
	}
	if len(route) < 2 {
		return nil, nil
	}
	return route, nil
}
