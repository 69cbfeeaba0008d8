package tracking

import "math"

// ReconcileResult is the odometer-vs-GPS comparison for one trip end.
type ReconcileResult struct {
	ExpectedKm   float64
	DifferenceKm float64
	ThresholdKm  float64
	IsAnomaly    bool
}

// Reconcile compares the vehicle's reported end odometer against the
// reading the GPS-derived distance predicts. The tolerance is the greater
// of a fixed floor and a percentage of the trip distance, so short trips
// are not flagged for rounding noise and long trips are not given a free
// pass by the floor.
func Reconcile(startKm, endKm, distanceMeters, floorKm, percent float64) ReconcileResult {
	expected := startKm + math.Round(distanceMeters/1000.0)
	diff := math.Abs(endKm - expected)

	threshold := floorKm
	if pct := (distanceMeters / 1000.0) * percent / 100.0; pct > threshold {
		threshold = pct
	}

	return ReconcileResult{
		ExpectedKm:   expected,
		DifferenceKm: diff,
		ThresholdKm:  threshold,
		IsAnomaly:    diff > threshold,
	}
}
