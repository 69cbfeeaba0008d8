package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trip-tracking-service/internal/http/middleware"
	"trip-tracking-service/internal/model"
	"trip-tracking-service/internal/repository"
	"trip-tracking-service/internal/service"
)

type Handler struct {
	tripService    *service.TripService
	anomalyService *service.AnomalyService
	log            zerolog.Logger
}

func NewHandler(
	tripService *service.TripService,
	anomalyService *service.AnomalyService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		tripService:    tripService,
		anomalyService: anomalyService,
		log:            log,
	}
}

func (h *Handler) startTrip(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	var req struct {
		EmployeeID      string   `json:"employee_id"`
		VehicleID       string   `json:"vehicle_id"`
		TaskType        string   `json:"task_type" binding:"required"`
		Lat             *float64 `json:"lat" binding:"required"`
		Lng             *float64 `json:"lng" binding:"required"`
		StartOdometerKm *float64 `json:"start_odometer_km"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	input := service.StartTripInput{
		TaskType:        strings.ToUpper(strings.TrimSpace(req.TaskType)),
		Lat:             *req.Lat,
		Lng:             *req.Lng,
		StartOdometerKm: req.StartOdometerKm,
	}
	if employeeID := strings.TrimSpace(req.EmployeeID); employeeID != "" {
		id, err := uuid.Parse(employeeID)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid employee_id"))
			return
		}
		input.EmployeeID = id
	}
	if vehicleID := strings.TrimSpace(req.VehicleID); vehicleID != "" {
		id, err := uuid.Parse(vehicleID)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid vehicle_id"))
			return
		}
		input.VehicleID = &id
	}

	trip, err := h.tripService.StartTrip(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(trip))
}

func (h *Handler) ingestPoint(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	var req struct {
		Lat        *float64 `json:"lat" binding:"required"`
		Lng        *float64 `json:"lng" binding:"required"`
		AccuracyM  *float64 `json:"accuracy_m"`
		SpeedKmh   *float64 `json:"speed_kmh"`
		Heading    *float64 `json:"heading"`
		AltitudeM  *float64 `json:"altitude_m"`
		RecordedAt string   `json:"recorded_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	recordedAt, err := time.Parse(time.RFC3339, req.RecordedAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid recorded_at"))
		return
	}

	input := service.FixInput{
		Lat:        *req.Lat,
		Lng:        *req.Lng,
		AccuracyM:  req.AccuracyM,
		SpeedKmh:   req.SpeedKmh,
		Heading:    req.Heading,
		AltitudeM:  req.AltitudeM,
		RecordedAt: recordedAt,
	}

	point, err := h.tripService.IngestPoint(c.Request.Context(), principal, tripID, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(point))
}

func (h *Handler) endTrip(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	var req struct {
		Lat           *float64 `json:"lat" binding:"required"`
		Lng           *float64 `json:"lng" binding:"required"`
		EndOdometerKm *float64 `json:"end_odometer_km"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	input := service.EndTripInput{
		Lat:           *req.Lat,
		Lng:           *req.Lng,
		EndOdometerKm: req.EndOdometerKm,
	}

	trip, err := h.tripService.EndTrip(c.Request.Context(), principal, tripID, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(trip))
}

func (h *Handler) cancelTrip(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	trip, err := h.tripService.CancelTrip(c.Request.Context(), principal, tripID, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(trip))
}

func (h *Handler) listTrips(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	filter, err := parseTripQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	records, err := h.tripService.ListTrips(c.Request.Context(), principal, filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"items": records}))
}

func (h *Handler) getTrip(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	details, err := h.tripService.GetTripDetails(c.Request.Context(), principal, tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(details))
}

func (h *Handler) listTripPoints(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	includeFiltered := strings.EqualFold(c.Query("include_filtered"), "true")

	points, err := h.tripService.ListTripPoints(c.Request.Context(), principal, tripID, includeFiltered)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"items": points}))
}

func (h *Handler) assignTask(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	var req struct {
		TaskID     string `json:"task_id" binding:"required"`
		LocationID string `json:"location_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	taskID, err := uuid.Parse(strings.TrimSpace(req.TaskID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid task_id"))
		return
	}

	var locationID *uuid.UUID
	if raw := strings.TrimSpace(req.LocationID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid location_id"))
			return
		}
		locationID = &id
	}

	link, err := h.tripService.AssignTask(c.Request.Context(), principal, tripID, taskID, locationID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(link))
}

func (h *Handler) updateTaskStatus(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}
	taskID, err := uuid.Parse(strings.TrimSpace(c.Param("taskId")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid task id"))
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	status := model.TaskLinkStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

	if err := h.tripService.FinishTask(c.Request.Context(), principal, tripID, taskID, status); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"status": "updated"}))
}

func (h *Handler) runReconciliation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	rec, err := h.tripService.RunReconciliation(c.Request.Context(), principal, tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(rec))
}

func (h *Handler) listAnomalies(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	filter, err := parseAnomalyQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	records, err := h.anomalyService.List(c.Request.Context(), principal, filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"items": records}))
}

func (h *Handler) resolveAnomaly(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	anomalyID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid anomaly id"))
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	anomaly, err := h.anomalyService.Resolve(c.Request.Context(), principal, anomalyID, req.Notes)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(anomaly))
}

func (h *Handler) updateVehicleOdometer(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	vehicleID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid vehicle id"))
		return
	}

	var req struct {
		OdometerKm *float64 `json:"odometer_km" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := h.tripService.UpdateVehicleOdometer(c.Request.Context(), principal, vehicleID, *req.OdometerKm); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"status": "updated"}))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch err {
	case service.ErrPermissionDenied:
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case service.ErrInvalidInput:
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case service.ErrNotFound:
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case service.ErrConflict:
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case service.ErrTripTerminal:
		c.JSON(http.StatusGone, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func parseTripQuery(c *gin.Context) (repository.TripFilter, error) {
	var filter repository.TripFilter

	if statusParam := c.Query("status"); statusParam != "" {
		for _, val := range splitCSV(statusParam) {
			filter.Statuses = append(filter.Statuses, model.TripStatus(strings.ToUpper(val)))
		}
	}
	if employeeID := strings.TrimSpace(c.Query("employee_id")); employeeID != "" {
		id, err := uuid.Parse(employeeID)
		if err != nil {
			return filter, err
		}
		filter.EmployeeID = &id
	}
	if vehicleID := strings.TrimSpace(c.Query("vehicle_id")); vehicleID != "" {
		id, err := uuid.Parse(vehicleID)
		if err != nil {
			return filter, err
		}
		filter.VehicleID = &id
	}
	if dateFrom := strings.TrimSpace(c.Query("date_from")); dateFrom != "" {
		ts, err := time.Parse(time.RFC3339, dateFrom)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = &ts
	}
	if dateTo := strings.TrimSpace(c.Query("date_to")); dateTo != "" {
		ts, err := time.Parse(time.RFC3339, dateTo)
		if err != nil {
			return filter, err
		}
		filter.DateTo = &ts
	}
	if limit := strings.TrimSpace(c.Query("limit")); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			filter.Limit = v
		}
	}
	if offset := strings.TrimSpace(c.Query("offset")); offset != "" {
		if v, err := strconv.Atoi(offset); err == nil {
			filter.Offset = v
		}
	}

	return filter, nil
}

func parseAnomalyQuery(c *gin.Context) (repository.AnomalyFilter, error) {
	var filter repository.AnomalyFilter

	if typeParam := c.Query("type"); typeParam != "" {
		for _, val := range splitCSV(typeParam) {
			filter.Types = append(filter.Types, model.AnomalyType(strings.ToUpper(val)))
		}
	}
	if severityParam := c.Query("severity"); severityParam != "" {
		for _, val := range splitCSV(severityParam) {
			filter.Severities = append(filter.Severities, model.AnomalySeverity(strings.ToUpper(val)))
		}
	}
	if tripID := strings.TrimSpace(c.Query("trip_id")); tripID != "" {
		id, err := uuid.Parse(tripID)
		if err != nil {
			return filter, err
		}
		filter.TripID = &id
	}
	if employeeID := strings.TrimSpace(c.Query("employee_id")); employeeID != "" {
		id, err := uuid.Parse(employeeID)
		if err != nil {
			return filter, err
		}
		filter.EmployeeID = &id
	}
	if resolvedParam := strings.TrimSpace(c.Query("resolved")); resolvedParam != "" {
		resolved, err := strconv.ParseBool(resolvedParam)
		if err != nil {
			return filter, err
		}
		filter.Resolved = &resolved
	}
	if dateFrom := strings.TrimSpace(c.Query("date_from")); dateFrom != "" {
		ts, err := time.Parse(time.RFC3339, dateFrom)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = &ts
	}
	if dateTo := strings.TrimSpace(c.Query("date_to")); dateTo != "" {
		ts, err := time.Parse(time.RFC3339, dateTo)
		if err != nil {
			return filter, err
		}
		filter.DateTo = &ts
	}
	if limit := strings.TrimSpace(c.Query("limit")); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			filter.Limit = v
		}
	}
	if offset := strings.TrimSpace(c.Query("offset")); offset != "" {
		if v, err := strconv.Atoi(offset); err == nil {
			filter.Offset = v
		}
	}

	return filter, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

type responseEnvelope struct {
	Data interface{} `json:"data"`
}

func successResponse(data interface{}) responseEnvelope {
	return responseEnvelope{Data: data}
}

func errorResponse(msg string) gin.H {
	return gin.H{"error": msg}
}
