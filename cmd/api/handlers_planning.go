package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marimovDEV/tipografiya/internal/engine"
	"github.com/marimovDEV/tipografiya/internal/layout"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/middleware"
)

func planLayoutHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ItemWidth    float64              `json:"itemWidth" binding:"required,gt=0"`
			ItemHeight   float64              `json:"itemHeight" binding:"required,gt=0"`
			Quantity     int                  `json:"quantity" binding:"required,gt=0"`
			Gap          *float64             `json:"gap" binding:"omitempty,gte=0"`
			ForcedFormat string               `json:"forcedFormat" binding:"omitempty,format_name"`
			Formats      []layout.SheetFormat `json:"formats"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		plan, err := e.PlanLayout(c.Request.Context(), layout.Request{
			ItemWidth:    req.ItemWidth,
			ItemHeight:   req.ItemHeight,
			Quantity:     req.Quantity,
			Gap:          req.Gap,
			Formats:      req.Formats,
			ForcedFormat: req.ForcedFormat,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, plan)
	}
}

func estimateConsumptionHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Kind         string   `json:"kind" binding:"required,oneof=paper ink lacquer adhesive"`
			Quantity     int      `json:"quantity" binding:"required,gt=0"`
			WidthCm      float64  `json:"widthCm"`
			HeightCm     float64  `json:"heightCm"`
			WastePercent *float64 `json:"wastePercent" binding:"omitempty,gte=0"`
			Colors       int      `json:"colors"`
			CoverageM2   float64  `json:"coverageM2"`
			LengthCm     float64  `json:"lengthCm"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		est, err := e.EstimateConsumption(engine.ConsumptionRequest{
			Kind:         req.Kind,
			Quantity:     req.Quantity,
			WidthCm:      req.WidthCm,
			HeightCm:     req.HeightCm,
			WastePercent: req.WastePercent,
			Colors:       req.Colors,
			CoverageM2:   req.CoverageM2,
			LengthCm:     req.LengthCm,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, est)
	}
}

func optimizeCutPathHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Segments []layout.Segment `json:"segments" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		c.JSON(http.StatusOK, e.OptimizeCutPath(req.Segments))
	}
}

func planOrderHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ItemWidth       float64    `json:"itemWidth" binding:"required,gt=0"`
			ItemHeight      float64    `json:"itemHeight" binding:"required,gt=0"`
			Quantity        int        `json:"quantity" binding:"required,gt=0"`
			Gap             *float64   `json:"gap" binding:"omitempty,gte=0"`
			ForcedFormat    string     `json:"forcedFormat" binding:"omitempty,format_name"`
			Priority        int        `json:"priority" binding:"omitempty,gte=1,lte=10"`
			Deadline        *time.Time `json:"deadline"`
			TemplateID      string     `json:"templateId" binding:"omitempty,entity_id"`
			PaperMaterialID string     `json:"paperMaterialId" binding:"omitempty,entity_id"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		plan, err := e.PlanOrder(c.Request.Context(), engine.OrderPlanRequest{
			OrderID:         c.Param("orderId"),
			ItemWidth:       req.ItemWidth,
			ItemHeight:      req.ItemHeight,
			Quantity:        req.Quantity,
			Gap:             req.Gap,
			ForcedFormat:    req.ForcedFormat,
			Priority:        req.Priority,
			Deadline:        req.Deadline,
			TemplateID:      req.TemplateID,
			PaperMaterialID: req.PaperMaterialID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		status := http.StatusOK
		if plan.Schedule.Created {
			status = http.StatusCreated
		}
		c.JSON(status, plan)
	}
}

func lockStatusHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		held, err := e.LockStatus(c.Request.Context(), c.Param("entityType"), c.Param("entityId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"locked": held != nil,
			"lock":   held,
		})
	}
}

func releaseLocksHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Holder string `json:"holder" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		n, err := e.ReleaseLocksOf(c.Request.Context(), req.Holder)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"holder": req.Holder, "released": n})
	}
}

func cleanupLocksHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		n, err := e.CleanupExpiredLocks(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"removed": n})
	}
}
