package notify

import (
	"context"

	"github.com/rs/zerolog"

	"trip-tracking-service/internal/model"
)

// LogNotifier writes lifecycle and anomaly notifications to the structured
// log. It stands in for a push or message-broker sink until one is wired.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) TripStarted(ctx context.Context, trip *model.Trip) error {
	n.log.Info().
		Str("trip_id", trip.ID.String()).
		Str("employee_id", trip.EmployeeID.String()).
		Str("task_type", trip.TaskType).
		Msg("trip started")
	return nil
}

func (n *LogNotifier) TripEnded(ctx context.Context, trip *model.Trip) error {
	n.log.Info().
		Str("trip_id", trip.ID.String()).
		Str("status", string(trip.Status)).
		Float64("distance_m", trip.DistanceMeters).
		Int("anomalies", trip.AnomaliesCount).
		Msg("trip ended")
	return nil
}

func (n *LogNotifier) AnomalyDetected(ctx context.Context, anomaly *model.TripAnomaly) error {
	n.log.Warn().
		Str("trip_id", anomaly.TripID.String()).
		Str("anomaly_id", anomaly.ID.String()).
		Str("type", string(anomaly.Type)).
		Str("severity", string(anomaly.Severity)).
		Msg("anomaly detected")
	return nil
}
