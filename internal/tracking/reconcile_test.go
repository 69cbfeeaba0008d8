package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcileFlagsDiscrepancy(t *testing.T) {
	// 45 km of GPS distance against a 50 km odometer delta.
	res := Reconcile(1000, 1050, 45000, 3, 5)

	assert.InDelta(t, 1045, res.ExpectedKm, 1e-9)
	assert.InDelta(t, 5, res.DifferenceKm, 1e-9)
	assert.InDelta(t, 3, res.ThresholdKm, 1e-9)
	assert.True(t, res.IsAnomaly)
}

func TestReconcileWithinTolerance(t *testing.T) {
	res := Reconcile(1000, 1046, 45000, 3, 5)

	assert.InDelta(t, 1, res.DifferenceKm, 1e-9)
	assert.False(t, res.IsAnomaly)
}

func TestReconcilePercentageDominatesOnLongTrips(t *testing.T) {
	// 200 km trip: 5% of distance (10 km) exceeds the 3 km floor.
	res := Reconcile(5000, 5208, 200000, 3, 5)

	assert.InDelta(t, 5200, res.ExpectedKm, 1e-9)
	assert.InDelta(t, 10, res.ThresholdKm, 1e-9)
	assert.InDelta(t, 8, res.DifferenceKm, 1e-9)
	assert.False(t, res.IsAnomaly)
}

func TestReconcileFloorProtectsShortTrips(t *testing.T) {
	// 2 km trip with a 2 km overshoot stays inside the 3 km floor.
	res := Reconcile(100, 104, 2000, 3, 5)

	assert.InDelta(t, 102, res.ExpectedKm, 1e-9)
	assert.InDelta(t, 3, res.ThresholdKm, 1e-9)
	assert.False(t, res.IsAnomaly)
}

func TestReconcileRoundsGpsDistance(t *testing.T) {
	res := Reconcile(0, 12, 12499, 3, 5)
	assert.InDelta(t, 12, res.ExpectedKm, 1e-9)

	res = Reconcile(0, 12, 12500, 3, 5)
	assert.InDelta(t, 13, res.ExpectedKm, 1e-9)
}

func TestReconcileAbsoluteDifference(t *testing.T) {
	// Odometer behind the GPS estimate flags the same as ahead.
	res := Reconcile(1000, 1040, 45000, 3, 5)
	assert.InDelta(t, 5, res.DifferenceKm, 1e-9)
	assert.True(t, res.IsAnomaly)
}
