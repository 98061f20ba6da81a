package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marimovDEV/tipografiya/internal/engine"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/middleware"
)

// newRouter wires the planning API onto a gin engine. m may be nil.
func newRouter(e *engine.Engine, m *metrics.Metrics, logger *logging.Logger) *gin.Engine {
	cfg := e.Config()

	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(cfg.ServiceName, logger.Logger)
	middlewareConfig.Metrics = m
	middlewareConfig.EnableTracing = cfg.Tracing.Enabled
	middleware.Setup(router, middlewareConfig)

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(cfg.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(cfg.ServiceName, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return e.HealthCheck(ctx)
	}))
	if m != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(m))
	}

	api := router.Group("/api/v1")
	{
		// Layout and consumption
		api.POST("/layouts", planLayoutHandler(e, logger))
		api.POST("/layouts/consumption", estimateConsumptionHandler(e, logger))
		api.POST("/cut-paths", optimizeCutPathHandler(e, logger))

		// Stock ledger
		api.GET("/materials", listMaterialsHandler(e, logger))
		api.POST("/materials", createMaterialHandler(e, logger))
		api.GET("/materials/:materialId/batches", listBatchesHandler(e, logger))
		api.POST("/materials/:materialId/batches", receiveBatchHandler(e, logger))
		api.GET("/batches/:batchId", getBatchHandler(e, logger))
		api.PUT("/batches/:batchId/quality", setQualityHandler(e, logger))
		api.GET("/batches/:batchId/reconcile", reconcileHandler(e, logger))
		api.GET("/stock/availability", checkAvailabilityHandler(e, logger))
		api.GET("/stock/alternatives", suggestAlternativesHandler(e, logger))
		api.POST("/reservations", reserveHandler(e, logger))
		api.POST("/reservations/:reservationId/consume", consumeHandler(e, logger))
		api.DELETE("/reservations/:reservationId", releaseHandler(e, logger))

		// Orders
		api.POST("/orders/:orderId/plan", planOrderHandler(e, logger))
		api.POST("/orders/:orderId/schedule", scheduleOrderHandler(e, logger))
		api.GET("/orders/:orderId/steps", orderStepsHandler(e, logger))
		api.GET("/orders/:orderId/completion", orderCompletionHandler(e, logger))
		api.GET("/orders/:orderId/reservations", orderReservationsHandler(e, logger))
		api.POST("/orders/:orderId/release", releaseOrderHandler(e, logger))

		// Machines and queues
		api.GET("/machines", listMachinesHandler(e, logger))
		api.POST("/machines", registerMachineHandler(e, logger))
		api.GET("/machines/:machineId/queue", machineQueueHandler(e, logger))
		api.POST("/machines/:machineId/optimize", optimizeQueueHandler(e, logger))
		api.GET("/machines/:machineId/available-at", machineAvailableHandler(e, logger))
		api.POST("/machines/:machineId/downtimes", reportDowntimeHandler(e, logger))
		api.POST("/downtimes/:downtimeId/resolve", resolveDowntimeHandler(e, logger))
		api.GET("/queues", allQueuesHandler(e, logger))
		api.POST("/templates", registerTemplateHandler(e, logger))

		// Production steps
		api.GET("/steps/:stepId/times", stepTimesHandler(e, logger))
		api.POST("/steps/:stepId/assign", assignStepHandler(e, logger))
		api.POST("/steps/:stepId/reassign", reassignStepHandler(e, logger))
		api.PUT("/steps/:stepId/priority", stepPriorityHandler(e, logger))
		api.POST("/steps/:stepId/start", startStepHandler(e, logger))
		api.POST("/steps/:stepId/complete", completeStepHandler(e, logger))

		api.GET("/analytics", analyticsHandler(e, logger))

		// Lock administration
		api.GET("/locks/:entityType/:entityId", lockStatusHandler(e, logger))
		api.POST("/locks/release", releaseLocksHandler(e, logger))
		api.POST("/locks/cleanup", cleanupLocksHandler(e, logger))
	}

	return router
}
