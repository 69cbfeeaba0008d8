package geo

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
)

// Location is an indexed known service location.
type Location struct {
	ID    uuid.UUID
	Name  string
	Point Point
}

// Index is a geohash-bucketed nearest-location lookup. Candidate cells are
// the query point's cell plus its neighbors, then exact haversine settles
// the match, so lookups stay correct across cell boundaries.
//
// Precision 6 cells are roughly 1.2 km x 0.6 km; with neighbor expansion
// that covers any practical match radius.
type Index struct {
	mu        sync.RWMutex
	precision uint
	cells     map[string][]Location
}

func NewIndex(precision uint) *Index {
	if precision == 0 {
		precision = 6
	}
	return &Index{
		precision: precision,
		cells:     make(map[string][]Location),
	}
}

func (x *Index) Add(loc Location) {
	key := geohash.EncodeWithPrecision(loc.Point.Lat, loc.Point.Lng, x.precision)
	x.mu.Lock()
	x.cells[key] = append(x.cells[key], loc)
	x.mu.Unlock()
}

// Reload replaces the whole index contents atomically.
func (x *Index) Reload(locs []Location) {
	cells := make(map[string][]Location, len(locs))
	for _, loc := range locs {
		key := geohash.EncodeWithPrecision(loc.Point.Lat, loc.Point.Lng, x.precision)
		cells[key] = append(cells[key], loc)
	}
	x.mu.Lock()
	x.cells = cells
	x.mu.Unlock()
}

// Nearest returns the closest indexed location within radiusM of p, along
// with its distance in meters.
func (x *Index) Nearest(p Point, radiusM float64) (Location, float64, bool) {
	key := geohash.EncodeWithPrecision(p.Lat, p.Lng, x.precision)
	candidates := append([]string{key}, geohash.Neighbors(key)...)

	x.mu.RLock()
	defer x.mu.RUnlock()

	var (
		best     Location
		bestDist float64
		found    bool
	)
	for _, cell := range candidates {
		for _, loc := range x.cells[cell] {
			d := Haversine(p, loc.Point)
			if d > radiusM {
				continue
			}
			if !found || d < bestDist {
				best = loc
				bestDist = d
				found = true
			}
		}
	}
	return best, bestDist, found
}
