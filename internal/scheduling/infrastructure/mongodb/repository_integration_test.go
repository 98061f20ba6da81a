package mongodb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimovDEV/tipografiya/internal/calendar"
	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/scheduling/application"
	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
	schedmongo "github.com/marimovDEV/tipografiya/internal/scheduling/infrastructure/mongodb"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/mongodb"
	pkgtesting "github.com/marimovDEV/tipografiya/pkg/testing"
)

func TestStepRepository_FindByMachine(t *testing.T) {
	_, db := pkgtesting.MongoDatabase(t, "scheduling_steps_test")
	ctx := context.Background()
	require.NoError(t, schedmongo.EnsureIndexes(ctx, db))
	steps := schedmongo.NewStepRepository(db)

	now := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	estimated := domain.NewProductionStep("o1", "printing", 1, 5, 100, 10, true, now)
	estimated.MachineID = "printer-1"
	estimated.QueuePosition = 1
	estimated.SetEstimate(now, now.Add(time.Hour), time.Hour, now)

	unestimated := domain.NewProductionStep("o2", "printing", 1, 5, 100, 10, true, now)
	unestimated.MachineID = "printer-1"
	unestimated.QueuePosition = 1

	running := domain.NewProductionStep("o3", "printing", 1, 5, 100, 10, true, now)
	running.MachineID = "printer-1"
	require.NoError(t, running.Start(now))

	done := domain.NewProductionStep("o4", "printing", 1, 5, 100, 10, true, now)
	done.MachineID = "printer-1"
	require.NoError(t, done.Start(now))
	require.NoError(t, done.Complete(now.Add(time.Hour)))

	elsewhere := domain.NewProductionStep("o5", "cutting", 1, 5, 100, 10, true, now)
	elsewhere.MachineID = "cutter-1"

	require.NoError(t, steps.SaveAll(ctx, []*domain.ProductionStep{unestimated, estimated, running, done, elsewhere}))

	active, err := steps.FindByMachine(ctx, "printer-1", domain.StepPending, domain.StepInProgress)
	require.NoError(t, err)
	require.Len(t, active, 3)
	for _, st := range active {
		assert.NotEqual(t, domain.StepCompleted, st.Status)
		assert.Equal(t, "printer-1", st.MachineID)
	}

	// the store puts the missing estimate first; queue order puts it last
	domain.SortQueue(active)
	assert.Equal(t, running.ID, active[0].ID)
	assert.Equal(t, estimated.ID, active[1].ID)
	assert.Equal(t, unestimated.ID, active[2].ID)

	all, err := steps.FindByMachine(ctx, "printer-1")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = steps.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrStepNotFound)
}

func TestSchedulerService_OnMongo(t *testing.T) {
	client, db := pkgtesting.MongoDatabase(t, "scheduling_service_test")
	ctx := context.Background()
	require.NoError(t, schedmongo.EnsureIndexes(ctx, db))
	mongoLocker := lock.NewMongoLocker(db)
	require.NoError(t, mongoLocker.EnsureIndexes(ctx))

	cfg := config.Default()
	cfg.Lock.RetryAttempts = 1
	svc := application.NewSchedulerService(application.Repositories{
		Steps:     schedmongo.NewStepRepository(db),
		Machines:  schedmongo.NewMachineRepository(db),
		Downtimes: schedmongo.NewDowntimeRepository(db),
		Orders:    schedmongo.NewOrderRepository(db),
		Templates: schedmongo.NewTemplateRepository(db),
		Tx:        mongodb.Wrap(client, db.Name()),
	}, mongoLocker, calendar.NewBusinessHours(), cfg, nil, nil, logging.NewNop())

	for _, cmd := range []application.RegisterMachineCommand{
		{ID: "cutter-1", Name: "Polar 115", Type: "Guillotine Cutter"},
		{ID: "printer-1", Name: "Heidelberg SM 74", Type: "Offset Printer", MinutesPerUnit: 0.5, SetupMinutes: 30},
	} {
		_, err := svc.RegisterMachine(ctx, cmd)
		require.NoError(t, err)
	}
	_, err := svc.RegisterTemplate(ctx, application.RegisterTemplateCommand{
		ID: "cut-print",
		Routing: []domain.RoutingEntry{
			{Kind: "cutting", MachineType: "cutter", PerSheet: true},
			{Kind: "printing", MachineType: "printer", PerSheet: true},
		},
	})
	require.NoError(t, err)

	_, err = mongoLocker.Acquire(ctx, lock.EntityMachine, "printer-1", "planner-olga", time.Minute)
	require.NoError(t, err)
	_, err = svc.ScheduleOrderProduction(ctx, application.ScheduleOrderCommand{OrderID: "o1", Quantity: 100, Sheets: 100, TemplateID: "cut-print"})
	require.ErrorIs(t, err, lock.ErrLockConflict)
	_, err = svc.GetOrderSteps(ctx, "o1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.NoError(t, mongoLocker.Release(ctx, lock.EntityMachine, "printer-1", "planner-olga"))

	for _, cmd := range []application.ScheduleOrderCommand{
		{OrderID: "o1", Quantity: 100, Sheets: 100, TemplateID: "cut-print"},
		{OrderID: "o2", Quantity: 100, Sheets: 100, TemplateID: "cut-print"},
		{OrderID: "o3", Quantity: 100, Sheets: 100, TemplateID: "cut-print", Priority: 1},
	} {
		dto, err := svc.ScheduleOrderProduction(ctx, cmd)
		require.NoError(t, err)
		require.True(t, dto.Created)
		require.Len(t, dto.Steps, 2)
		assert.Equal(t, "printer-1", dto.Steps[1].MachineID)
	}

	_, err = svc.OptimizeMachineQueue(ctx, "cutter-1")
	require.NoError(t, err)

	printer, err := svc.GetMachineQueue(ctx, "printer-1")
	require.NoError(t, err)
	require.Len(t, printer.Queue, 3)
	for i := 1; i < len(printer.Queue); i++ {
		assert.False(t, printer.Queue[i].EstimatedStart.Before(*printer.Queue[i-1].EstimatedEnd),
			"printer step %d overlaps the step ahead", i)
	}
}
