package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(handler *Handler, authMiddleware gin.HandlerFunc, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/trips", handler.startTrip)
		protected.GET("/trips", handler.listTrips)
		protected.GET("/trips/:id", handler.getTrip)
		protected.POST("/trips/:id/points", handler.ingestPoint)
		protected.GET("/trips/:id/points", handler.listTripPoints)
		protected.POST("/trips/:id/end", handler.endTrip)
		protected.POST("/trips/:id/cancel", handler.cancelTrip)
		protected.POST("/trips/:id/tasks", handler.assignTask)
		protected.PUT("/trips/:id/tasks/:taskId/status", handler.updateTaskStatus)
		protected.POST("/trips/:id/reconciliation", handler.runReconciliation)

		protected.GET("/anomalies", handler.listAnomalies)
		protected.POST("/anomalies/:id/resolve", handler.resolveAnomaly)

		protected.PUT("/vehicles/:id/odometer", handler.updateVehicleOdometer)
	}

	return router
}
