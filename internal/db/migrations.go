package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'trip_status') THEN
			CREATE TYPE trip_status AS ENUM ('ACTIVE', 'COMPLETED', 'CANCELLED', 'AUTO_CLOSED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'filter_reason') THEN
			CREATE TYPE filter_reason AS ENUM ('LOW_ACCURACY', 'OUT_OF_ORDER', 'GPS_JUMP', 'DUPLICATE', 'TRIP_CLOSED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'anomaly_type') THEN
			CREATE TYPE anomaly_type AS ENUM ('LONG_STOP', 'SPEED_VIOLATION', 'ROUTE_DEVIATION', 'GPS_JUMP', 'MISSED_LOCATION', 'UNPLANNED_STOP', 'MILEAGE_DISCREPANCY');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'anomaly_severity') THEN
			CREATE TYPE anomaly_severity AS ENUM ('INFO', 'WARNING', 'CRITICAL');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'task_link_status') THEN
			CREATE TYPE task_link_status AS ENUM ('PENDING', 'IN_PROGRESS', 'COMPLETED', 'SKIPPED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'vehicle_status') THEN
			CREATE TYPE vehicle_status AS ENUM ('ACTIVE', 'MAINTENANCE', 'RETIRED');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		type VARCHAR(64),
		plate_number VARCHAR(32),
		status vehicle_status NOT NULL DEFAULT 'ACTIVE',
		odometer_km DOUBLE PRECISION NOT NULL DEFAULT 0,
		odometer_updated_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS service_locations (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL,
		name VARCHAR(255),
		address TEXT,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS trips (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		organization_id UUID NOT NULL,
		employee_id UUID NOT NULL,
		vehicle_id UUID REFERENCES vehicles(id) ON DELETE SET NULL,
		task_type VARCHAR(64),
		status trip_status NOT NULL DEFAULT 'ACTIVE',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		start_lat DOUBLE PRECISION NOT NULL,
		start_lng DOUBLE PRECISION NOT NULL,
		end_lat DOUBLE PRECISION,
		end_lng DOUBLE PRECISION,
		start_odometer_km DOUBLE PRECISION,
		end_odometer_km DOUBLE PRECISION,
		distance_meters DOUBLE PRECISION NOT NULL DEFAULT 0,
		points_count INTEGER NOT NULL DEFAULT 0,
		stops_count INTEGER NOT NULL DEFAULT 0,
		anomalies_count INTEGER NOT NULL DEFAULT 0,
		visited_locations INTEGER NOT NULL DEFAULT 0,
		cancel_reason TEXT,
		live_tracking BOOLEAN NOT NULL DEFAULT TRUE,
		last_update_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_trips_active_per_employee
		ON trips (employee_id)
		WHERE status = 'ACTIVE';`,
	`CREATE INDEX IF NOT EXISTS idx_trips_organization_id ON trips (organization_id);`,
	`CREATE INDEX IF NOT EXISTS idx_trips_status ON trips (status);`,
	`CREATE INDEX IF NOT EXISTS idx_trips_last_update_at ON trips (last_update_at) WHERE status = 'ACTIVE';`,
	`CREATE TABLE IF NOT EXISTS trip_points (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL,
		accuracy_m DOUBLE PRECISION,
		speed_kmh DOUBLE PRECISION,
		heading DOUBLE PRECISION,
		altitude_m DOUBLE PRECISION,
		distance_from_prev_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_filtered BOOLEAN NOT NULL DEFAULT FALSE,
		filter_reason filter_reason,
		recorded_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_points_trip_id_recorded_at ON trip_points (trip_id, recorded_at);`,
	`CREATE TABLE IF NOT EXISTS trip_stops (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		lat DOUBLE PRECISION NOT NULL,
		lng DOUBLE PRECISION NOT NULL,
		location_id UUID REFERENCES service_locations(id) ON DELETE SET NULL,
		distance_to_location_m DOUBLE PRECISION,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		duration_seconds BIGINT,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_anomaly BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_stops_trip_id ON trip_stops (trip_id);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_stops_location_id ON trip_stops (location_id);`,
	`CREATE TABLE IF NOT EXISTS trip_anomalies (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		type anomaly_type NOT NULL,
		severity anomaly_severity NOT NULL,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		details JSONB,
		is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_by UUID,
		resolved_at TIMESTAMPTZ,
		resolution_notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_anomalies_trip_id ON trip_anomalies (trip_id);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_anomalies_type ON trip_anomalies (type);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_anomalies_is_resolved ON trip_anomalies (is_resolved);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_anomalies_created_at ON trip_anomalies (created_at);`,
	`CREATE TABLE IF NOT EXISTS trip_task_links (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		task_id UUID NOT NULL,
		location_id UUID REFERENCES service_locations(id) ON DELETE SET NULL,
		status task_link_status NOT NULL DEFAULT 'PENDING',
		verified_by_gps BOOLEAN NOT NULL DEFAULT FALSE,
		gps_verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_task_links_trip_id ON trip_task_links (trip_id);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_trip_task_links_trip_task ON trip_task_links (trip_id, task_id);`,
	`CREATE TABLE IF NOT EXISTS trip_reconciliations (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		vehicle_id UUID NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		actual_odometer_km DOUBLE PRECISION NOT NULL,
		expected_odometer_km DOUBLE PRECISION NOT NULL,
		difference_km DOUBLE PRECISION NOT NULL,
		threshold_km DOUBLE PRECISION NOT NULL,
		is_anomaly BOOLEAN NOT NULL DEFAULT FALSE,
		performed_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_trip_reconciliations_trip ON trip_reconciliations (trip_id);`,
	`CREATE OR REPLACE FUNCTION set_row_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_trips_updated_at') THEN
			CREATE TRIGGER trg_trips_updated_at
				BEFORE UPDATE ON trips
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_trip_stops_updated_at') THEN
			CREATE TRIGGER trg_trip_stops_updated_at
				BEFORE UPDATE ON trip_stops
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_trip_anomalies_updated_at') THEN
			CREATE TRIGGER trg_trip_anomalies_updated_at
				BEFORE UPDATE ON trip_anomalies
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_trip_task_links_updated_at') THEN
			CREATE TRIGGER trg_trip_task_links_updated_at
				BEFORE UPDATE ON trip_task_links
				FOR EACH ROW
				EXECUTE PROCEDURE set_row_updated_at();
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
