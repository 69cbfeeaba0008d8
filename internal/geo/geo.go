package geo

import "math"

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

const earthRadiusM = 6371000.0

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lng1 := a.Lng * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	lng2 := b.Lng * math.Pi / 180.0

	dLat := lat2 - lat1
	dLng := lng2 - lng1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// Centroid returns the arithmetic mean of the given points. Fine at stop
// scale (tens of meters); not meant for spans where the lat/lng grid curves.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: sumLat / n, Lng: sumLng / n}
}

// PointToPolylineM returns the minimum distance in meters from p to the
// polyline, using a local equirectangular projection per segment. Accurate
// to well under a percent at route-corridor scale.
func PointToPolylineM(p Point, path []Point) float64 {
	if len(path) == 0 {
		return math.Inf(1)
	}
	if len(path) == 1 {
		return Haversine(p, path[0])
	}
	min := math.Inf(1)
	for i := 0; i < len(path)-1; i++ {
		if d := pointToSegmentM(p, path[i], path[i+1]); d < min {
			min = d
		}
	}
	return min
}

func pointToSegmentM(p, a, b Point) float64 {
	refLat := a.Lat * math.Pi / 180.0
	mPerDegLat := earthRadiusM * math.Pi / 180.0
	mPerDegLng := mPerDegLat * math.Cos(refLat)

	ax, ay := 0.0, 0.0
	bx := (b.Lng - a.Lng) * mPerDegLng
	by := (b.Lat - a.Lat) * mPerDegLat
	px := (p.Lng - a.Lng) * mPerDegLng
	py := (p.Lat - a.Lat) * mPerDegLat

	segLenSq := (bx-ax)*(bx-ax) + (by-ay)*(by-ay)
	if segLenSq == 0 {
		return Haversine(p, a)
	}

	t := ((px-ax)*(bx-ax) + (py-ay)*(by-ay)) / segLenSq
	t = math.Max(0, math.Min(1, t))

	cx := ax + t*(bx-ax)
	cy := ay + t*(by-ay)

	return math.Hypot(px-cx, py-cy)
}
