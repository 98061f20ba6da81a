package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/layout"
	schedapp "github.com/marimovDEV/tipografiya/internal/scheduling/application"
	stockapp "github.com/marimovDEV/tipografiya/internal/stock/application"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/outbox"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Lock.RetryAttempts = 1
	cfg.Outbox.Enabled = true

	e, err := New(context.Background(), cfg, nil, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func stockPaper(t *testing.T, e *Engine, quantity string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.Stock.CreateMaterial(ctx, stockapp.CreateMaterialCommand{ID: "coated-130", Name: "Coated 130g", Category: "paper", Unit: "m2"})
	require.NoError(t, err)
	_, err = e.Stock.ReceiveBatch(ctx, stockapp.ReceiveBatchCommand{
		MaterialID:  "coated-130",
		BatchNumber: "B-001",
		Quantity:    decimal.RequireFromString(quantity),
		CostPerUnit: decimal.RequireFromString("0.85"),
	})
	require.NoError(t, err)
}

func TestNew_MemoryBackends(t *testing.T) {
	e := newTestEngine(t)

	assert.IsType(t, &lock.MemoryLocker{}, e.Locker)
	assert.IsType(t, &outbox.MemoryRepository{}, e.Outbox)
	assert.NoError(t, e.HealthCheck(context.Background()))
	assert.Len(t, e.Layout.Formats(), 4)
}

func TestPlanLayout_MapsErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	plan, err := e.PlanLayout(ctx, layout.Request{ItemWidth: 9, ItemHeight: 5, Quantity: 1000})
	require.NoError(t, err)
	assert.Positive(t, plan.Recommended.ItemsPerSheet)

	_, err = e.PlanLayout(ctx, layout.Request{ItemWidth: 200, ItemHeight: 200, Quantity: 10})
	require.ErrorIs(t, err, layout.ErrInfeasibleLayout)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInfeasibleLayout, appErr.Code)
	assert.Equal(t, 422, appErr.HTTPStatus)
	assert.Equal(t, "200", appErr.Details["itemWidth"])

	_, err = e.PlanLayout(ctx, layout.Request{ItemWidth: 9, ItemHeight: 5, Quantity: 10, ForcedFormat: "1x1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	_, err = e.PlanLayout(ctx, layout.Request{ItemWidth: -1, ItemHeight: 5, Quantity: 10})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))
}

func TestEstimateConsumption(t *testing.T) {
	e := newTestEngine(t)

	ink, err := e.EstimateConsumption(ConsumptionRequest{Kind: ConsumptionInk, Colors: 4, Quantity: 100})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(ink.Base), ink.Base.String())
	assert.True(t, decimal.NewFromInt(1100).Equal(ink.Total), ink.Total.String())

	paper, err := e.EstimateConsumption(ConsumptionRequest{Kind: ConsumptionPaper, WidthCm: 100, HeightCm: 100, Quantity: 10})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(paper.Base), paper.Base.String())
	assert.True(t, decimal.RequireFromString("10.5").Equal(paper.Total), paper.Total.String())

	_, err = e.EstimateConsumption(ConsumptionRequest{Kind: "varnish", Quantity: 1})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	_, err = e.EstimateConsumption(ConsumptionRequest{Kind: ConsumptionAdhesive, LengthCm: 10})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))
}

func TestPlanOrder_LayoutDrivesReservationAndSchedule(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	stockPaper(t, e, "500")

	_, err := e.Scheduler.RegisterMachine(ctx, schedapp.RegisterMachineCommand{
		ID: "printer-1", Name: "Heidelberg SM 74", Type: "Offset Printer", MinutesPerUnit: 0.5, SetupMinutes: 30,
	})
	require.NoError(t, err)

	deadline := time.Now().AddDate(0, 1, 0)
	plan, err := e.PlanOrder(ctx, OrderPlanRequest{
		OrderID:         "order-42",
		ItemWidth:       9,
		ItemHeight:      5,
		Quantity:        1000,
		Deadline:        &deadline,
		PaperMaterialID: "coated-130",
	})
	require.NoError(t, err)

	sheets := plan.Layout.Recommended.SheetsNeeded
	require.Positive(t, sheets)
	assert.True(t, layout.SheetsArea(plan.Layout.Recommended).Equal(plan.PaperM2))

	require.Len(t, plan.Reservations, 1)
	assert.True(t, plan.PaperM2.Equal(plan.Reservations[0].ReservedQty))

	require.True(t, plan.Schedule.Created)
	require.Len(t, plan.Schedule.Steps, 4)
	printing := plan.Schedule.Steps[1]
	assert.Equal(t, "printing", printing.Kind)
	assert.Equal(t, "printer-1", printing.MachineID)
	assert.Equal(t, sheets, printing.Sheets)
	assert.InDelta(t, 0.5*float64(sheets)+30, printing.EstimatedMinutes, 1e-6)

	require.NotNil(t, plan.Completion)
	assert.NotNil(t, plan.Completion.EstimatedCompletion)
	require.NotNil(t, plan.Completion.OnTime)
	assert.True(t, *plan.Completion.OnTime)

	topics := map[string]int{}
	for _, ev := range e.Outbox.(*outbox.MemoryRepository).Events() {
		topics[ev.Topic]++
	}
	assert.Positive(t, topics[StockTopic])
	assert.Positive(t, topics[ProductionTopic])
}

func TestPlanOrder_ReleasesReservationsWhenSchedulingFails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	stockPaper(t, e, "500")

	_, err := e.PlanOrder(ctx, OrderPlanRequest{
		OrderID:         "order-7",
		ItemWidth:       9,
		ItemHeight:      5,
		Quantity:        1000,
		TemplateID:      "missing",
		PaperMaterialID: "coated-130",
	})
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	reservations, err := e.Stock.GetOrderReservations(ctx, "order-7")
	require.NoError(t, err)
	assert.Empty(t, reservations)

	avail, err := e.Stock.CheckAvailable(ctx, stockapp.CheckAvailabilityQuery{Category: "paper", Quantity: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.True(t, avail.Available)
}

func TestPlanOrder_InsufficientPaper(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	stockPaper(t, e, "0.1")

	_, err := e.PlanOrder(ctx, OrderPlanRequest{OrderID: "order-8", ItemWidth: 9, ItemHeight: 5, Quantity: 1000, PaperMaterialID: "coated-130"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInsufficientStock))

	_, err = e.Scheduler.GetOrderSteps(ctx, "order-8")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestLockAdministration(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Locker.Acquire(ctx, lock.EntityMachine, "printer-1", "operator-anna", time.Minute)
	require.NoError(t, err)
	_, err = e.Locker.Acquire(ctx, lock.EntityOrder, "order-1", "operator-anna", time.Minute)
	require.NoError(t, err)

	held, err := e.LockStatus(ctx, lock.EntityMachine, "printer-1")
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, "operator-anna", held.Holder)

	_, err = e.LockStatus(ctx, "invoice", "inv-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	_, err = e.ReleaseLocksOf(ctx, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	n, err := e.ReleaseLocksOf(ctx, "operator-anna")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	free, err := e.LockStatus(ctx, lock.EntityMachine, "printer-1")
	require.NoError(t, err)
	assert.Nil(t, free)
}

func TestPlanOrder_ReplanKeepsReservations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	stockPaper(t, e, "500")

	req := OrderPlanRequest{OrderID: "order-9", ItemWidth: 9, ItemHeight: 5, Quantity: 1000, PaperMaterialID: "coated-130"}
	first, err := e.PlanOrder(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Schedule.Created)

	second, err := e.PlanOrder(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Schedule.Created)
	require.Len(t, second.Reservations, 1)
	assert.Equal(t, first.Reservations[0].ID, second.Reservations[0].ID)

	reservations, err := e.Stock.GetOrderReservations(ctx, "order-9")
	require.NoError(t, err)
	assert.Len(t, reservations, 1)
}

func TestPlanOrder_MachineLockConflictIsRetryable(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	stockPaper(t, e, "500")
	_, err := e.Scheduler.RegisterMachine(ctx, schedapp.RegisterMachineCommand{
		ID: "printer-1", Name: "Heidelberg SM 74", Type: "Offset Printer", MinutesPerUnit: 0.5, SetupMinutes: 30,
	})
	require.NoError(t, err)

	_, err = e.Locker.Acquire(ctx, lock.EntityMachine, "printer-1", "operator-anna", time.Minute)
	require.NoError(t, err)

	req := OrderPlanRequest{OrderID: "order-11", ItemWidth: 9, ItemHeight: 5, Quantity: 1000, PaperMaterialID: "coated-130"}
	_, err = e.PlanOrder(ctx, req)
	require.ErrorIs(t, err, lock.ErrLockConflict)

	_, err = e.Scheduler.GetOrderSteps(ctx, "order-11")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	reservations, err := e.Stock.GetOrderReservations(ctx, "order-11")
	require.NoError(t, err)
	assert.Empty(t, reservations)

	require.NoError(t, e.Locker.Release(ctx, lock.EntityMachine, "printer-1", "operator-anna"))

	plan, err := e.PlanOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, plan.Schedule.Created)
	assert.Equal(t, "printer-1", plan.Schedule.Steps[1].MachineID)
	assert.Len(t, plan.Reservations, 1)
}
