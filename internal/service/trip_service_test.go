package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-tracking-service/internal/config"
	"trip-tracking-service/internal/geo"
	"trip-tracking-service/internal/model"
	"trip-tracking-service/internal/repository"
)

var testBase = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testTrackingConfig() config.TrackingConfig {
	return config.TrackingConfig{
		AccuracyCeilingM:  50,
		MaxPlausibleKmh:   300,
		DuplicateRadiusM:  5,
		DuplicateWindow:   10 * time.Second,
		StopRadiusM:       50,
		StopMinFixes:      3,
		StopMinWindow:     3 * time.Minute,
		StopHysteresis:    1.5,
		MatchRadiusM:      100,
		VerifyDwell:       time.Minute,
		LongStopThreshold: 30 * time.Minute,
		UnplannedStopMin:  10 * time.Minute,
		SpeedLimitKmh:     110,
		RouteCorridorM:    200,
		RouteSustainFixes: 5,
		MileageFloorKm:    3,
		MileagePercent:    5,
	}
}

type testEnv struct {
	svc       *TripService
	trips     *fakeTripRepo
	points    *fakePointRepo
	stops     *fakeStopRepo
	anomalies *fakeAnomalyRepo
	taskLinks *fakeTaskLinkRepo
	recs      *fakeReconciliationRepo
	vehicles  *fakeVehicleRepo
	index     *fakeLocationIndex
	notifier  *fakeNotifier

	orgID      uuid.UUID
	employeeID uuid.UUID
}

func newTestEnv() *testEnv {
	env := &testEnv{
		trips:      newFakeTripRepo(),
		points:     newFakePointRepo(),
		stops:      newFakeStopRepo(),
		anomalies:  newFakeAnomalyRepo(),
		taskLinks:  newFakeTaskLinkRepo(),
		recs:       newFakeReconciliationRepo(),
		vehicles:   newFakeVehicleRepo(),
		index:      &fakeLocationIndex{},
		notifier:   &fakeNotifier{},
		orgID:      uuid.New(),
		employeeID: uuid.New(),
	}
	env.svc = NewTripService(testTrackingConfig(), TripServiceDeps{
		Trips:           env.trips,
		Points:          env.points,
		Stops:           env.stops,
		Anomalies:       env.anomalies,
		TaskLinks:       env.taskLinks,
		Reconciliations: env.recs,
		Vehicles:        env.vehicles,
		Locations:       env.index,
		Routes:          &staticRouteProvider{},
		Notifier:        env.notifier,
	}, zerolog.Nop())
	return env
}

func (env *testEnv) admin() model.Principal {
	return model.Principal{UserID: uuid.New(), OrgID: env.orgID, Role: model.UserRoleDispatcher}
}

func (env *testEnv) employee() model.Principal {
	id := env.employeeID
	return model.Principal{UserID: uuid.New(), OrgID: env.orgID, Role: model.UserRoleEmployee, EmployeeID: &id}
}

func (env *testEnv) startTrip(t *testing.T, in StartTripInput) *model.Trip {
	t.Helper()
	if in.Lat == 0 && in.Lng == 0 {
		in.Lat = 51.0
		in.Lng = 71.0
	}
	if in.TaskType == "" {
		in.TaskType = "DELIVERY"
	}
	trip, err := env.svc.StartTrip(context.Background(), env.employee(), in)
	require.NoError(t, err)
	return trip
}

func (env *testEnv) ingest(t *testing.T, tripID uuid.UUID, in FixInput) *model.TripPoint {
	t.Helper()
	point, err := env.svc.IngestPoint(context.Background(), env.employee(), tripID, in)
	require.NoError(t, err)
	return point
}

func fixInput(lat, lng float64, at time.Time) FixInput {
	return FixInput{Lat: lat, Lng: lng, RecordedAt: at}
}

func TestStartTripSecondActiveConflicts(t *testing.T) {
	env := newTestEnv()

	env.startTrip(t, StartTripInput{})

	_, err := env.svc.StartTrip(context.Background(), env.employee(), StartTripInput{
		TaskType: "DELIVERY", Lat: 51.0, Lng: 71.0,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStartTripEmployeeBoundToOwnID(t *testing.T) {
	env := newTestEnv()

	other := uuid.New()
	trip := env.startTrip(t, StartTripInput{EmployeeID: other})
	assert.Equal(t, env.employeeID, trip.EmployeeID)
}

func TestStartTripRejectsNullIsland(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.StartTrip(context.Background(), env.employee(), StartTripInput{
		TaskType: "DELIVERY", Lat: 0, Lng: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartTripForeignVehicleDenied(t *testing.T) {
	env := newTestEnv()

	vehicleID := uuid.New()
	env.vehicles.add(&model.Vehicle{ID: vehicleID, OrganizationID: uuid.New()})

	_, err := env.svc.StartTrip(context.Background(), env.employee(), StartTripInput{
		TaskType: "DELIVERY", Lat: 51.0, Lng: 71.0, VehicleID: &vehicleID,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestIngestPointDistanceEqualsSumOfSegments(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	coords := []geo.Point{
		{Lat: 51.0000, Lng: 71.0000},
		{Lat: 51.0050, Lng: 71.0000},
		{Lat: 51.0100, Lng: 71.0050},
		{Lat: 51.0150, Lng: 71.0100},
	}
	for i, c := range coords {
		env.ingest(t, trip.ID, fixInput(c.Lat, c.Lng, testBase.Add(time.Duration(i)*2*time.Minute)))
	}

	var expected float64
	for i := 1; i < len(coords); i++ {
		expected += geo.Haversine(coords[i-1], coords[i])
	}

	stored, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.InDelta(t, expected, stored.DistanceMeters, 0.01)
	assert.Equal(t, len(coords), stored.PointsCount)
}

func TestIngestPointFilteredContributesZeroDistance(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	env.ingest(t, trip.ID, fixInput(51.0, 71.0, testBase))

	bad := fixInput(51.1, 71.0, testBase.Add(2*time.Minute))
	acc := 120.0
	bad.AccuracyM = &acc
	point := env.ingest(t, trip.ID, bad)

	assert.True(t, point.IsFiltered)
	require.NotNil(t, point.FilterReason)
	assert.Equal(t, model.FilterReasonLowAccuracy, *point.FilterReason)
	assert.Zero(t, point.DistanceFromPrevM)

	stored, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.DistanceMeters)
	assert.Equal(t, 2, stored.PointsCount)
}

func TestIngestPointGpsJumpRaisesAnomaly(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	env.ingest(t, trip.ID, fixInput(51.0, 71.0, testBase))

	// A degree of latitude in ten seconds is far beyond any plausible speed.
	point := env.ingest(t, trip.ID, fixInput(52.0, 71.0, testBase.Add(10*time.Second)))

	require.NotNil(t, point.FilterReason)
	assert.Equal(t, model.FilterReasonGpsJump, *point.FilterReason)

	jumps := env.anomalies.ofType(trip.ID, model.AnomalyTypeGpsJump)
	require.Len(t, jumps, 1)
	assert.Equal(t, model.AnomalySeverityInfo, jumps[0].Severity)

	stored, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.DistanceMeters)
	assert.Equal(t, 1, stored.AnomaliesCount)
}

func TestIngestPointRetryReturnsStoredPoint(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	first := env.ingest(t, trip.ID, fixInput(51.0, 71.0, testBase))
	again := env.ingest(t, trip.ID, fixInput(51.0, 71.0, testBase))

	assert.Equal(t, first.ID, again.ID)

	stored, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.PointsCount)
	assert.Len(t, env.points.byTrip(trip.ID), 1)
}

func TestIngestPointTerminalTripAuditsAndRejects(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	_, err := env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{Lat: 51.0, Lng: 71.0})
	require.NoError(t, err)

	_, err = env.svc.IngestPoint(context.Background(), env.employee(), trip.ID, fixInput(51.001, 71.0, testBase.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrTripTerminal)

	points := env.points.byTrip(trip.ID)
	require.Len(t, points, 1)
	assert.True(t, points[0].IsFiltered)
	require.NotNil(t, points[0].FilterReason)
	assert.Equal(t, model.FilterReasonTripClosed, *points[0].FilterReason)

	stored, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)
	// The late fix never touches aggregates.
	assert.Zero(t, stored.PointsCount)
}

func TestIngestPointUnknownTrip(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.IngestPoint(context.Background(), env.employee(), uuid.New(), fixInput(51.0, 71.0, testBase))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIngestPointForeignEmployeeDenied(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	otherID := uuid.New()
	other := model.Principal{UserID: uuid.New(), OrgID: env.orgID, Role: model.UserRoleEmployee, EmployeeID: &otherID}

	_, err := env.svc.IngestPoint(context.Background(), other, trip.ID, fixInput(51.0, 71.0, testBase))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestStopOpensMatchesAndVerifies(t *testing.T) {
	env := newTestEnv()
	locID := uuid.New()
	env.index.locs = []geo.Location{{
		ID:    locID,
		Name:  "client office",
		Point: geo.Point{Lat: 51.0003, Lng: 71.0},
	}}

	trip := env.startTrip(t, StartTripInput{})

	link, err := env.svc.AssignTask(context.Background(), env.admin(), trip.ID, uuid.New(), &locID)
	require.NoError(t, err)

	// Clustered fixes 30 s apart open a stop on the third and keep dwelling
	// past the verification minimum.
	for i := 0; i < 5; i++ {
		env.ingest(t, trip.ID, fixInput(51.0+float64(i%3)*0.00003, 71.0, testBase.Add(time.Duration(i)*30*time.Second)))
	}

	stored, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.StopsCount)
	assert.Equal(t, 1, stored.VisitedLocations)

	open, err := env.stops.Open(context.Background(), trip.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	require.NotNil(t, open.LocationID)
	assert.Equal(t, locID, *open.LocationID)
	assert.True(t, open.IsVerified)

	updated := env.taskLinks.get(link.ID)
	require.NotNil(t, updated)
	assert.Equal(t, model.TaskLinkStatusInProgress, updated.Status)
	assert.True(t, updated.VerifiedByGps)
}

func TestEndTripClosesOpenStop(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	for i := 0; i < 3; i++ {
		env.ingest(t, trip.ID, fixInput(51.0+float64(i%3)*0.00003, 71.0, testBase.Add(time.Duration(i)*30*time.Second)))
	}

	open, err := env.stops.Open(context.Background(), trip.ID)
	require.NoError(t, err)
	require.NotNil(t, open)

	_, err = env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{Lat: 51.0, Lng: 71.0})
	require.NoError(t, err)

	stillOpen, err := env.stops.Open(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Nil(t, stillOpen)

	stops, err := env.stops.ListByTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.NotNil(t, stops[0].EndedAt)
	assert.NotNil(t, stops[0].DurationSeconds)
}

func TestEndTripReconcilesAndFlagsDiscrepancy(t *testing.T) {
	env := newTestEnv()

	vehicleID := uuid.New()
	env.vehicles.add(&model.Vehicle{ID: vehicleID, OrganizationID: env.orgID, OdometerKm: 1000})

	startOdo := 1000.0
	trip := env.startTrip(t, StartTripInput{VehicleID: &vehicleID, StartOdometerKm: &startOdo})

	// Two fixes ~45 km apart along a meridian, half an hour between them.
	env.ingest(t, trip.ID, fixInput(51.0, 71.0, testBase))
	env.ingest(t, trip.ID, fixInput(51.404695, 71.0, testBase.Add(30*time.Minute)))

	endOdo := 1050.0
	ended, err := env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{
		Lat: 51.404695, Lng: 71.0, EndOdometerKm: &endOdo,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TripStatusCompleted, ended.Status)

	rec, err := env.recs.GetByTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.InDelta(t, 1045, rec.ExpectedOdometerKm, 1e-9)
	assert.InDelta(t, 5, rec.DifferenceKm, 1e-9)
	assert.InDelta(t, 3, rec.ThresholdKm, 1e-9)
	assert.True(t, rec.IsAnomaly)

	discrepancies := env.anomalies.ofType(trip.ID, model.AnomalyTypeMileageDiscrepancy)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, model.AnomalySeverityWarning, discrepancies[0].Severity)

	vehicle, err := env.vehicles.GetByID(context.Background(), vehicleID)
	require.NoError(t, err)
	assert.InDelta(t, 1050, vehicle.OdometerKm, 1e-9)
}

func TestEndTripSkipsReconciliationWithoutOdometer(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	ended, err := env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{Lat: 51.0, Lng: 71.0})
	require.NoError(t, err)
	assert.Equal(t, model.TripStatusCompleted, ended.Status)

	rec, err := env.recs.GetByTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEndTripTwiceReturnsTerminal(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	_, err := env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{Lat: 51.0, Lng: 71.0})
	require.NoError(t, err)

	_, err = env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{Lat: 51.0, Lng: 71.0})
	assert.ErrorIs(t, err, ErrTripTerminal)
}

func TestEndTripRaisesMissedLocation(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	locID := uuid.New()
	link, err := env.svc.AssignTask(context.Background(), env.admin(), trip.ID, uuid.New(), &locID)
	require.NoError(t, err)
	env.taskLinks.setLocation(link.ID, &model.ServiceLocation{
		ID: locID, Name: "warehouse", Lat: 51.2, Lng: 71.5,
	})

	_, err = env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{Lat: 51.0, Lng: 71.0})
	require.NoError(t, err)

	missed := env.anomalies.ofType(trip.ID, model.AnomalyTypeMissedLocation)
	require.Len(t, missed, 1)
	assert.Equal(t, model.AnomalySeverityWarning, missed[0].Severity)
}

func TestCancelTripRecordsReasonAndSkipsReconciliation(t *testing.T) {
	env := newTestEnv()

	vehicleID := uuid.New()
	env.vehicles.add(&model.Vehicle{ID: vehicleID, OrganizationID: env.orgID})

	startOdo := 500.0
	trip := env.startTrip(t, StartTripInput{VehicleID: &vehicleID, StartOdometerKm: &startOdo})

	cancelled, err := env.svc.CancelTrip(context.Background(), env.employee(), trip.ID, "vehicle breakdown")
	require.NoError(t, err)
	assert.Equal(t, model.TripStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "vehicle breakdown", *cancelled.CancelReason)

	rec, err := env.recs.GetByTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAutoCloseTrip(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	require.NoError(t, env.svc.AutoCloseTrip(context.Background(), trip.ID))

	stored, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TripStatusAutoClosed, stored.Status)
	assert.False(t, stored.LiveTracking)
	assert.NotNil(t, stored.EndedAt)

	assert.ErrorIs(t, env.svc.AutoCloseTrip(context.Background(), trip.ID), ErrTripTerminal)
}

func TestRunReconciliationIdempotent(t *testing.T) {
	env := newTestEnv()

	vehicleID := uuid.New()
	env.vehicles.add(&model.Vehicle{ID: vehicleID, OrganizationID: env.orgID})

	startOdo := 1000.0
	trip := env.startTrip(t, StartTripInput{VehicleID: &vehicleID, StartOdometerKm: &startOdo})

	env.ingest(t, trip.ID, fixInput(51.0, 71.0, testBase))
	env.ingest(t, trip.ID, fixInput(51.404695, 71.0, testBase.Add(30*time.Minute)))

	endOdo := 1050.0
	_, err := env.svc.EndTrip(context.Background(), env.employee(), trip.ID, EndTripInput{
		Lat: 51.404695, Lng: 71.0, EndOdometerKm: &endOdo,
	})
	require.NoError(t, err)

	first, err := env.recs.GetByTrip(context.Background(), trip.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	again, err := env.svc.RunReconciliation(context.Background(), env.admin(), trip.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// Re-running must not duplicate the anomaly.
	assert.Len(t, env.anomalies.ofType(trip.ID, model.AnomalyTypeMileageDiscrepancy), 1)
}

func TestRunReconciliationRequiresManagerRole(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	_, err := env.svc.RunReconciliation(context.Background(), env.employee(), trip.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.svc.RunReconciliation(context.Background(), env.admin(), trip.ID)
	// Active trips cannot be reconciled.
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssignTaskDuplicateConflicts(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	taskID := uuid.New()
	_, err := env.svc.AssignTask(context.Background(), env.admin(), trip.ID, taskID, nil)
	require.NoError(t, err)

	_, err = env.svc.AssignTask(context.Background(), env.admin(), trip.ID, taskID, nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFinishTaskValidatesStatus(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	taskID := uuid.New()
	_, err := env.svc.AssignTask(context.Background(), env.admin(), trip.ID, taskID, nil)
	require.NoError(t, err)

	err = env.svc.FinishTask(context.Background(), env.admin(), trip.ID, taskID, model.TaskLinkStatusPending)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = env.svc.FinishTask(context.Background(), env.admin(), trip.ID, taskID, model.TaskLinkStatusCompleted)
	assert.NoError(t, err)

	// Already final: the guarded update touches nothing.
	err = env.svc.FinishTask(context.Background(), env.admin(), trip.ID, taskID, model.TaskLinkStatusSkipped)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTripsEmployeeScopedToOwn(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	otherTrip := &model.Trip{
		OrganizationID: env.orgID,
		EmployeeID:     uuid.New(),
		Status:         model.TripStatusActive,
		StartedAt:      testBase,
		LastUpdateAt:   testBase,
	}
	require.NoError(t, env.trips.CreateActive(context.Background(), otherTrip))

	mine, err := env.svc.ListTrips(context.Background(), env.employee(), repository.TripFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, trip.ID, mine[0].Trip.ID)

	all, err := env.svc.ListTrips(context.Background(), env.admin(), repository.TripFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateVehicleOdometer(t *testing.T) {
	env := newTestEnv()

	vehicleID := uuid.New()
	env.vehicles.add(&model.Vehicle{ID: vehicleID, OrganizationID: env.orgID, OdometerKm: 100})

	err := env.svc.UpdateVehicleOdometer(context.Background(), env.employee(), vehicleID, 150)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = env.svc.UpdateVehicleOdometer(context.Background(), env.admin(), vehicleID, -5)
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, env.svc.UpdateVehicleOdometer(context.Background(), env.admin(), vehicleID, 150))

	vehicle, err := env.vehicles.GetByID(context.Background(), vehicleID)
	require.NoError(t, err)
	assert.InDelta(t, 150, vehicle.OdometerKm, 1e-9)
}

func TestRuntimeRebuildAfterRestart(t *testing.T) {
	env := newTestEnv()
	trip := env.startTrip(t, StartTripInput{})

	env.ingest(t, trip.ID, fixInput(51.0, 71.0, testBase))
	env.ingest(t, trip.ID, fixInput(51.005, 71.0, testBase.Add(2*time.Minute)))

	before, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)

	// A process restart loses the in-memory runtime; the next fix must pick
	// up from the last accepted point instead of restarting the distance sum.
	env.svc.dropRuntime(trip.ID)

	env.ingest(t, trip.ID, fixInput(51.010, 71.0, testBase.Add(4*time.Minute)))

	after, err := env.trips.GetByID(context.Background(), trip.ID)
	require.NoError(t, err)

	segment := geo.Haversine(geo.Point{Lat: 51.005, Lng: 71.0}, geo.Point{Lat: 51.010, Lng: 71.0})
	assert.InDelta(t, before.DistanceMeters+segment, after.DistanceMeters, 0.01)
}
