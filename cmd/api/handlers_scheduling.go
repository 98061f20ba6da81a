package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marimovDEV/tipografiya/internal/engine"
	schedapp "github.com/marimovDEV/tipografiya/internal/scheduling/application"
	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/middleware"
)

// queryBool reads a boolean query parameter, false when absent or malformed
func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

func scheduleOrderHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Quantity   int        `json:"quantity" binding:"required,gt=0"`
			Sheets     int        `json:"sheets" binding:"gte=0"`
			Priority   int        `json:"priority" binding:"omitempty,gte=1,lte=10"`
			Deadline   *time.Time `json:"deadline"`
			TemplateID string     `json:"templateId" binding:"omitempty,entity_id"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		schedule, err := e.Scheduler.ScheduleOrderProduction(c.Request.Context(), schedapp.ScheduleOrderCommand{
			OrderID:    c.Param("orderId"),
			Quantity:   req.Quantity,
			Sheets:     req.Sheets,
			Priority:   req.Priority,
			Deadline:   req.Deadline,
			TemplateID: req.TemplateID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		status := http.StatusOK
		if schedule.Created {
			status = http.StatusCreated
		}
		c.JSON(status, schedule)
	}
}

func orderStepsHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		steps, err := e.Scheduler.GetOrderSteps(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"orderId": c.Param("orderId"), "steps": steps})
	}
}

func orderCompletionHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		estimate, err := e.Scheduler.EstimateOrderCompletion(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, estimate)
	}
}

func listMachinesHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		machines, err := e.Scheduler.ListMachines(c.Request.Context(), queryBool(c, "active"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"machines": machines, "total": len(machines)})
	}
}

func registerMachineHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ID             string  `json:"id" binding:"omitempty,entity_id"`
			Name           string  `json:"name" binding:"required"`
			Type           string  `json:"type" binding:"required"`
			HourlyRate     float64 `json:"hourlyRate" binding:"gte=0"`
			SetupMinutes   float64 `json:"setupMinutes" binding:"gte=0"`
			MinutesPerUnit float64 `json:"minutesPerUnit" binding:"gte=0"`
			IsActive       *bool   `json:"isActive"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		machine, err := e.Scheduler.RegisterMachine(c.Request.Context(), schedapp.RegisterMachineCommand{
			ID:             req.ID,
			Name:           req.Name,
			Type:           req.Type,
			HourlyRate:     req.HourlyRate,
			SetupMinutes:   req.SetupMinutes,
			MinutesPerUnit: req.MinutesPerUnit,
			IsActive:       req.IsActive,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, machine)
	}
}

func machineQueueHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		queue, err := e.Scheduler.GetMachineQueue(c.Request.Context(), c.Param("machineId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, queue)
	}
}

func allQueuesHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		queues, err := e.Scheduler.GetAllMachineQueues(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"queues": queues, "total": len(queues)})
	}
}

func optimizeQueueHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		queue, err := e.Scheduler.OptimizeMachineQueue(c.Request.Context(), c.Param("machineId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, queue)
	}
}

func machineAvailableHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		machineID := c.Param("machineId")
		at, err := e.Scheduler.GetMachineAvailableTime(c.Request.Context(), machineID)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"machineId": machineID, "availableAt": at})
	}
}

func reportDowntimeHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Reason      string     `json:"reason"`
			ExpectedEnd *time.Time `json:"expectedEnd"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		downtime, err := e.Scheduler.ReportDowntime(c.Request.Context(), schedapp.ReportDowntimeCommand{
			MachineID:   c.Param("machineId"),
			Reason:      req.Reason,
			ExpectedEnd: req.ExpectedEnd,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, downtime)
	}
}

func resolveDowntimeHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		downtime, err := e.Scheduler.ResolveDowntime(c.Request.Context(), c.Param("downtimeId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, downtime)
	}
}

func registerTemplateHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ID      string                `json:"id" binding:"required,entity_id"`
			Name    string                `json:"name" binding:"required"`
			Routing []domain.RoutingEntry `json:"routing" binding:"required,min=1"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		tpl, err := e.Scheduler.RegisterTemplate(c.Request.Context(), schedapp.RegisterTemplateCommand{
			ID:      req.ID,
			Name:    req.Name,
			Routing: req.Routing,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, tpl)
	}
}

func stepTimesHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		times, err := e.Scheduler.CalculateStepTimes(c.Request.Context(), c.Param("stepId"), queryBool(c, "force"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, times)
	}
}

// stepMachineHandler binds {"machineId"} and moves the step with op
func stepMachineHandler(logger *logging.Logger, op func(c *gin.Context, stepID, machineID string) (*schedapp.StepDTO, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			MachineID string `json:"machineId" binding:"required,entity_id"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		step, err := op(c, c.Param("stepId"), req.MachineID)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, step)
	}
}

func assignStepHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return stepMachineHandler(logger, func(c *gin.Context, stepID, machineID string) (*schedapp.StepDTO, error) {
		return e.Scheduler.AssignToMachine(c.Request.Context(), stepID, machineID)
	})
}

func reassignStepHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return stepMachineHandler(logger, func(c *gin.Context, stepID, machineID string) (*schedapp.StepDTO, error) {
		return e.Scheduler.ReassignStep(c.Request.Context(), stepID, machineID)
	})
}

func stepPriorityHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Priority int `json:"priority" binding:"required,gte=1,lte=10"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		step, err := e.Scheduler.SetStepPriority(c.Request.Context(), c.Param("stepId"), req.Priority)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, step)
	}
}

func startStepHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		step, err := e.Scheduler.StartStep(c.Request.Context(), c.Param("stepId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, step)
	}
}

func completeStepHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		step, err := e.Scheduler.CompleteStep(c.Request.Context(), c.Param("stepId"))
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, step)
	}
}

func analyticsHandler(e *engine.Engine, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		analytics, err := e.Scheduler.GetProductionAnalytics(c.Request.Context())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, analytics)
	}
}
