package tracking

import "trip-tracking-service/internal/geo"

// Accumulate records fix as the trip's newest accepted fix and returns its
// haversine distance from the previous accepted fix in meters. The first
// accepted fix of a trip contributes zero. The trip's running total is the
// sum of all returned values, which keeps it non-decreasing by construction.
func Accumulate(st *TripState, fix Fix) float64 {
	var d float64
	if st.LastAccepted != nil {
		d = geo.Haversine(st.LastAccepted.Point, fix.Point)
	}
	st.DistanceMeters += d
	f := fix
	st.LastAccepted = &f
	return d
}
