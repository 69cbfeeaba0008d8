package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trip-tracking-service/internal/auth"
	"trip-tracking-service/internal/config"
	"trip-tracking-service/internal/db"
	"trip-tracking-service/internal/geo"
	httphandler "trip-tracking-service/internal/http"
	"trip-tracking-service/internal/http/middleware"
	"trip-tracking-service/internal/logger"
	"trip-tracking-service/internal/notify"
	"trip-tracking-service/internal/repository"
	"trip-tracking-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	tripRepo := repository.NewTripRepository(database)
	pointRepo := repository.NewPointRepository(database)
	stopRepo := repository.NewStopRepository(database)
	anomalyRepo := repository.NewAnomalyRepository(database)
	taskLinkRepo := repository.NewTaskLinkRepository(database)
	reconciliationRepo := repository.NewReconciliationRepository(database)
	vehicleRepo := repository.NewVehicleRepository(database)
	locationRepo := repository.NewLocationRepository(database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locationIndex := geo.NewIndex(cfg.Tracking.GeohashPrecision)
	locations, err := locationRepo.ListActive(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load service locations")
	}
	indexed := make([]geo.Location, 0, len(locations))
	for _, loc := range locations {
		indexed = append(indexed, geo.Location{
			ID:    loc.ID,
			Name:  loc.Name,
			Point: geo.Point{Lat: loc.Lat, Lng: loc.Lng},
		})
	}
	locationIndex.Reload(indexed)
	log.Info().Int("locations", len(indexed)).Msg("location index loaded")

	tripService := service.NewTripService(cfg.Tracking, service.TripServiceDeps{
		Trips:           tripRepo,
		Points:          pointRepo,
		Stops:           stopRepo,
		Anomalies:       anomalyRepo,
		TaskLinks:       taskLinkRepo,
		Reconciliations: reconciliationRepo,
		Vehicles:        vehicleRepo,
		Locations:       locationIndex,
		Routes:          service.NewTaskRouteProvider(tripRepo, taskLinkRepo),
		Notifier:        notify.NewLogNotifier(log),
	}, log)
	anomalyService := service.NewAnomalyService(anomalyRepo, log)

	watchdog := service.NewWatchdog(cfg.Watchdog, tripRepo, tripService, log)
	go watchdog.Run(ctx)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(tripService, anomalyService, log)
	router := httphandler.NewRouter(handler, middleware.Auth(tokenParser), cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting trip tracking service")

	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
