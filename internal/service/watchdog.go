package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trip-tracking-service/internal/config"
)

// Watchdog periodically sweeps ACTIVE trips whose last update is older than
// the inactivity window and auto-closes them. One stuck trip never blocks
// the rest of the sweep.
type Watchdog struct {
	cfg   config.WatchdogConfig
	trips TripRepo
	svc   *TripService
	log   zerolog.Logger
}

func NewWatchdog(cfg config.WatchdogConfig, trips TripRepo, svc *TripService, log zerolog.Logger) *Watchdog {
	return &Watchdog{cfg: cfg, trips: trips, svc: svc, log: log}
}

// Run blocks until ctx is cancelled. Intended to be started in its own
// goroutine at process startup.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info().
		Dur("interval", w.cfg.Interval).
		Dur("inactivity_window", w.cfg.InactivityWindow).
		Msg("trip watchdog started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("trip watchdog stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep snapshots the stale trip ids, then processes each in its own unit
// of work under the normal per-trip lock.
func (w *Watchdog) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.cfg.InactivityWindow)

	ids, err := w.trips.ListStaleActiveIDs(ctx, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("watchdog sweep query failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	w.log.Info().Int("count", len(ids)).Msg("watchdog found stale trips")
	for _, id := range ids {
		w.closeOne(ctx, id)
	}
}

func (w *Watchdog) closeOne(ctx context.Context, tripID uuid.UUID) {
	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error().
				Str("trip_id", tripID.String()).
				Interface("panic", rec).
				Msg("watchdog auto-close panicked")
		}
	}()

	err := w.svc.AutoCloseTrip(ctx, tripID)
	switch {
	case err == nil:
	case errors.Is(err, ErrTripTerminal), errors.Is(err, ErrNotFound):
		// Lost the race with a normal end; nothing to do.
	default:
		w.log.Error().Err(err).Str("trip_id", tripID.String()).Msg("watchdog auto-close failed")
	}
}
