package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marimovDEV/tipografiya/internal/layout"
	schedapp "github.com/marimovDEV/tipografiya/internal/scheduling/application"
	stockapp "github.com/marimovDEV/tipografiya/internal/stock/application"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/lock"
)

// Consumption kinds
const (
	ConsumptionPaper    = "paper"
	ConsumptionInk      = "ink"
	ConsumptionLacquer  = "lacquer"
	ConsumptionAdhesive = "adhesive"
)

// OrderPlanRequest describes an order's item, quantity and routing
type OrderPlanRequest struct {
	OrderID      string
	ItemWidth    float64
	ItemHeight   float64
	Quantity     int
	Gap          *float64
	ForcedFormat string
	Priority     int
	Deadline     *time.Time
	TemplateID   string
	// PaperMaterialID, when set, reserves the recommended layout's paper
	PaperMaterialID string
}

// OrderPlan is the layout, paper, reservations and schedule of one order
type OrderPlan struct {
	OrderID      string                          `json:"orderId"`
	Layout       *layout.Plan                    `json:"layout"`
	PaperM2      decimal.Decimal                 `json:"paperM2"`
	Reservations []stockapp.ReservationDTO       `json:"reservations,omitempty"`
	Schedule     *schedapp.OrderScheduleDTO      `json:"schedule"`
	Completion   *schedapp.CompletionEstimateDTO `json:"completion,omitempty"`
}

// ConsumptionRequest asks for a material estimate. Only the fields of the
// chosen kind are read.
type ConsumptionRequest struct {
	Kind         string
	Quantity     int
	WidthCm      float64
	HeightCm     float64
	WastePercent *float64
	Colors       int
	CoverageM2   float64
	LengthCm     float64
}

// layoutError maps optimizer errors onto API errors
func layoutError(err error) error {
	var infeasible *layout.InfeasibleLayoutError
	switch {
	case errors.As(err, &infeasible):
		return apperrors.ErrInfeasibleLayout(err.Error()).WithDetails(map[string]string{
			"itemWidth":  decimal.NewFromFloat(infeasible.ItemWidth).String(),
			"itemHeight": decimal.NewFromFloat(infeasible.ItemHeight).String(),
			"formats":    strings.Join(infeasible.Formats, ","),
		}).Wrap(err)
	case errors.Is(err, layout.ErrUnknownFormat), errors.Is(err, layout.ErrInvalidRequest):
		return apperrors.ErrValidation(err.Error()).Wrap(err)
	}
	return err
}

// PlanLayout finds the best sheet layout for one item
func (e *Engine) PlanLayout(ctx context.Context, req layout.Request) (*layout.Plan, error) {
	start := time.Now()
	plan, err := e.Layout.BestLayout(req)
	e.metrics.ObserveOperation("layout.best", time.Since(start))
	if err != nil {
		e.metrics.RecordLayout(false, 0)
		e.logger.WithError(err).Info("Layout rejected", "itemWidth", req.ItemWidth, "itemHeight", req.ItemHeight, "quantity", req.Quantity)
		return nil, layoutError(err)
	}

	e.metrics.RecordLayout(true, plan.Recommended.WastePercent)
	e.logger.Debug("Layout calculated",
		"format", plan.Recommended.Format.Name,
		"itemsPerSheet", plan.Recommended.ItemsPerSheet,
		"sheetsNeeded", plan.Recommended.SheetsNeeded,
		"wastePercent", plan.Recommended.WastePercent,
	)
	return plan, nil
}

// OptimizeCutPath reorders knife strokes to cut air travel
func (e *Engine) OptimizeCutPath(segments []layout.Segment) layout.CutPath {
	return layout.OptimizeCutPath(segments)
}

// EstimateConsumption estimates one material for a run
func (e *Engine) EstimateConsumption(req ConsumptionRequest) (*layout.ConsumptionEstimate, error) {
	var (
		est layout.ConsumptionEstimate
		err error
	)
	switch req.Kind {
	case ConsumptionPaper:
		waste := decimal.NewFromFloat(e.cfg.Layout.PaperWastePct)
		if req.WastePercent != nil {
			waste = decimal.NewFromFloat(*req.WastePercent)
		}
		est, err = layout.PaperArea(req.WidthCm, req.HeightCm, req.Quantity, waste)
	case ConsumptionInk:
		est, err = layout.Ink(req.Colors, req.Quantity)
	case ConsumptionLacquer:
		est, err = layout.Lacquer(req.CoverageM2, req.Quantity)
	case ConsumptionAdhesive:
		est, err = layout.Adhesive(req.LengthCm, req.Quantity)
	default:
		return nil, apperrors.ErrValidation("kind must be one of: paper ink lacquer adhesive")
	}
	if err != nil {
		return nil, layoutError(err)
	}
	return &est, nil
}

// PlanOrder lays the item out, optionally reserves the paper and schedules
// production with the layout's sheet count. Reservations made by this call
// are released again when scheduling fails. Planning an order twice returns
// its existing reservations and steps.
func (e *Engine) PlanOrder(ctx context.Context, req OrderPlanRequest) (*OrderPlan, error) {
	if req.OrderID == "" {
		return nil, apperrors.ErrValidation("orderId is required")
	}
	start := time.Now()

	plan, err := e.PlanLayout(ctx, layout.Request{
		ItemWidth:    req.ItemWidth,
		ItemHeight:   req.ItemHeight,
		Quantity:     req.Quantity,
		Gap:          req.Gap,
		ForcedFormat: req.ForcedFormat,
	})
	if err != nil {
		return nil, err
	}

	out := &OrderPlan{
		OrderID: req.OrderID,
		Layout:  plan,
		PaperM2: layout.SheetsArea(plan.Recommended),
	}

	reserved := false
	if req.PaperMaterialID != "" {
		// a re-planned order keeps the reservations it already holds
		out.Reservations, err = e.Stock.GetOrderReservations(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if len(out.Reservations) == 0 {
			out.Reservations, err = e.Stock.Reserve(ctx, stockapp.ReserveCommand{
				OrderID:    req.OrderID,
				MaterialID: req.PaperMaterialID,
				Quantity:   out.PaperM2,
			})
			if err != nil {
				return nil, err
			}
			reserved = true
		}
	}

	out.Schedule, err = e.Scheduler.ScheduleOrderProduction(ctx, schedapp.ScheduleOrderCommand{
		OrderID:    req.OrderID,
		Quantity:   req.Quantity,
		Sheets:     plan.Recommended.SheetsNeeded,
		Priority:   req.Priority,
		Deadline:   req.Deadline,
		TemplateID: req.TemplateID,
	})
	if err != nil {
		if reserved {
			if _, relErr := e.Stock.ReleaseOrder(context.WithoutCancel(ctx), stockapp.ReleaseOrderCommand{OrderID: req.OrderID}); relErr != nil {
				e.logger.WithError(relErr).Error("Failed to release reservations of unscheduled order", "orderId", req.OrderID)
			}
		}
		return nil, err
	}

	out.Completion, err = e.Scheduler.EstimateOrderCompletion(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	e.logger.WithEntity(lock.EntityOrder, req.OrderID).Performance(ctx, "plan_order", time.Since(start), true, map[string]any{
		"format":       plan.Recommended.Format.Name,
		"sheets":       plan.Recommended.SheetsNeeded,
		"steps":        len(out.Schedule.Steps),
		"reservations": len(out.Reservations),
	})
	return out, nil
}

func checkEntityType(entityType string) error {
	switch entityType {
	case lock.EntityMaterial, lock.EntityMachine, lock.EntityOrder:
		return nil
	}
	return apperrors.ErrValidation("entity type must be one of: material machine order")
}

// LockStatus returns the live lock on an entity, nil when free
func (e *Engine) LockStatus(ctx context.Context, entityType, entityID string) (*lock.Lock, error) {
	if err := checkEntityType(entityType); err != nil {
		return nil, err
	}
	return e.Locker.Status(ctx, entityType, entityID)
}

// ReleaseLocksOf drops every lock a holder owns, for callers that crashed
// while holding them
func (e *Engine) ReleaseLocksOf(ctx context.Context, holder string) (int, error) {
	if holder == "" {
		return 0, apperrors.ErrValidation("holder is required")
	}
	n, err := e.Locker.ReleaseAllForHolder(ctx, holder)
	if err != nil {
		return 0, err
	}
	e.logger.Audit(ctx, "release_locks", "lock", holder, holder)
	return n, nil
}

// CleanupExpiredLocks deletes lapsed locks
func (e *Engine) CleanupExpiredLocks(ctx context.Context) (int, error) {
	return e.Locker.CleanupExpired(ctx)
}
