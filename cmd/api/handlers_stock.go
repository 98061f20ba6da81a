package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/marimovDEV/tipografiya/internal/engine"
	stockapp "github.com/marimovDEV/tipografiya/internal/stock/application"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/middleware"
)

// parseQuantity reads a decimal quantity field, reporting the field on error
func parseQuantity(field, value string) (decimal.Decimal, *apperrors.AppError) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperrors.ErrValidationWithFields("validation failed", map[string]string{field: "must be a decimal"})
	}
	return d, nil
}

func listMaterialsHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		materials, err := e.Stock.ListMaterials(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"materials": materials, "total": len(materials)})
	}
}

func createMaterialHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ID       string `json:"id" binding:"omitempty,entity_id"`
			Name     string `json:"name" binding:"required"`
			Category string `json:"category" binding:"required"`
			Unit     string `json:"unit" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		material, err := e.Stock.CreateMaterial(c.Request.Context(), stockapp.CreateMaterialCommand{
			ID:       req.ID,
			Name:     req.Name,
			Category: req.Category,
			Unit:     req.Unit,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, material)
	}
}

func listBatchesHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batches, err := e.Stock.ListBatches(c.Request.Context(), c.Param("materialId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"batches": batches, "total": len(batches)})
	}
}

func receiveBatchHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			BatchNumber string     `json:"batchNumber" binding:"required"`
			SupplierID  string     `json:"supplierId"`
			Quantity    string     `json:"quantity" binding:"required,decimal_positive"`
			CostPerUnit string     `json:"costPerUnit"`
			ReceivedAt  *time.Time `json:"receivedAt"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		qty, appErr := parseQuantity("quantity", req.Quantity)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		cost := decimal.Zero
		if req.CostPerUnit != "" {
			if cost, appErr = parseQuantity("costPerUnit", req.CostPerUnit); appErr != nil {
				responder.RespondWithAppError(appErr)
				return
			}
		}

		cmd := stockapp.ReceiveBatchCommand{
			MaterialID:  c.Param("materialId"),
			BatchNumber: req.BatchNumber,
			SupplierID:  req.SupplierID,
			Quantity:    qty,
			CostPerUnit: cost,
		}
		if req.ReceivedAt != nil {
			cmd.ReceivedAt = *req.ReceivedAt
		}

		batch, err := e.Stock.ReceiveBatch(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, batch)
	}
}

func getBatchHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		batch, err := e.Stock.GetBatch(c.Request.Context(), c.Param("batchId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func setQualityHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Status string `json:"status" binding:"required,oneof=ok blocked quarantine"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		batch, err := e.Stock.SetQualityStatus(c.Request.Context(), stockapp.SetQualityStatusCommand{
			BatchID: c.Param("batchId"),
			Status:  req.Status,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func reconcileHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		report, err := e.Stock.Reconcile(c.Request.Context(), stockapp.ReconcileQuery{BatchID: c.Param("batchId")})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func checkAvailabilityHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		category := c.Query("category")
		if category == "" {
			responder.RespondValidationError("validation failed", map[string]string{"category": "is required"})
			return
		}
		qty, appErr := parseQuantity("quantity", c.Query("quantity"))
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		avail, err := e.Stock.CheckAvailable(c.Request.Context(), stockapp.CheckAvailabilityQuery{
			Category: category,
			Quantity: qty,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, avail)
	}
}

func suggestAlternativesHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		category := c.Query("category")
		if category == "" {
			responder.RespondValidationError("validation failed", map[string]string{"category": "is required"})
			return
		}
		qty, appErr := parseQuantity("quantity", c.Query("quantity"))
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		alternatives, err := e.Stock.SuggestAlternatives(c.Request.Context(), stockapp.SuggestAlternativesQuery{
			Category:          category,
			Quantity:          qty,
			ExcludeMaterialID: c.Query("exclude"),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"alternatives": alternatives, "total": len(alternatives)})
	}
}

func reserveHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			OrderID    string `json:"orderId" binding:"required,entity_id"`
			MaterialID string `json:"materialId" binding:"required,entity_id"`
			Quantity   string `json:"quantity" binding:"required,decimal_positive"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		qty, appErr := parseQuantity("quantity", req.Quantity)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		reservations, err := e.Stock.Reserve(c.Request.Context(), stockapp.ReserveCommand{
			OrderID:    req.OrderID,
			MaterialID: req.MaterialID,
			Quantity:   qty,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"reservations": reservations})
	}
}

func consumeHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		cost, err := e.Stock.Consume(c.Request.Context(), stockapp.ConsumeCommand{ReservationID: c.Param("reservationId")})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, cost)
	}
}

func releaseHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		if err := e.Stock.Release(c.Request.Context(), stockapp.ReleaseCommand{ReservationID: c.Param("reservationId")}); err != nil {
			responder.RespondWithError(err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func orderReservationsHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		reservations, err := e.Stock.GetOrderReservations(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"reservations": reservations, "total": len(reservations)})
	}
}

func releaseOrderHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		result, err := e.Stock.ReleaseOrder(c.Request.Context(), stockapp.ReleaseOrderCommand{OrderID: c.Param("orderId")})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
