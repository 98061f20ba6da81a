package mongodb_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/stock/application"
	"github.com/marimovDEV/tipografiya/internal/stock/domain"
	stockmongo "github.com/marimovDEV/tipografiya/internal/stock/infrastructure/mongodb"
	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/mongodb"
	"github.com/marimovDEV/tipografiya/pkg/outbox"
	outboxmongo "github.com/marimovDEV/tipografiya/pkg/outbox/mongodb"
	pkgtesting "github.com/marimovDEV/tipografiya/pkg/testing"
)

func TestRepositories_RoundTrip(t *testing.T) {
	_, db := pkgtesting.MongoDatabase(t, "stock_repo_test")
	ctx := context.Background()
	require.NoError(t, stockmongo.EnsureIndexes(ctx, db))

	materials := stockmongo.NewMaterialRepository(db)
	batches := stockmongo.NewBatchRepository(db)
	reservations := stockmongo.NewReservationRepository(db)

	require.NoError(t, materials.Save(ctx, domain.NewMaterial("paper-80", "Offset 80g", "Paper", "sheet")))
	found, err := materials.FindByCategory(ctx, "paper")
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = materials.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrMaterialNotFound)

	receivedAt := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	b, err := domain.NewMaterialBatch("paper-80", "B1", "sup", decimal.RequireFromString("12.345"), decimal.RequireFromString("0.0725"), receivedAt)
	require.NoError(t, err)
	require.NoError(t, batches.Save(ctx, b))

	loaded, err := batches.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, loaded.InitialQuantity.Equal(decimal.RequireFromString("12.345")))
	assert.True(t, loaded.CostPerUnit.Equal(decimal.RequireFromString("0.0725")))
	assert.True(t, loaded.ReceivedAt.Equal(receivedAt))
	assert.Equal(t, domain.QualityOK, loaded.QualityStatus)

	r := domain.NewReservation("order-1", "paper-80", b.ID, decimal.RequireFromString("2.5"), receivedAt)
	require.NoError(t, reservations.SaveAll(ctx, []*domain.Reservation{r}))
	open, err := reservations.FindUnconsumedByMaterial(ctx, "paper-80")
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, r.MarkConsumed(receivedAt))
	require.NoError(t, reservations.Save(ctx, r))
	open, err = reservations.FindUnconsumedByMaterial(ctx, "paper-80")
	require.NoError(t, err)
	assert.Empty(t, open)

	assert.ErrorIs(t, reservations.Delete(ctx, "missing"), domain.ErrReservationNotFound)
}

func TestLedgerService_OnMongo(t *testing.T) {
	client, db := pkgtesting.MongoDatabase(t, "stock_ledger_test")
	ctx := context.Background()
	require.NoError(t, stockmongo.EnsureIndexes(ctx, db))

	outboxRepo := outboxmongo.NewOutboxRepository(db)
	require.NoError(t, outboxRepo.EnsureIndexes(ctx))
	mongoLocker := lock.NewMongoLocker(db)
	require.NoError(t, mongoLocker.EnsureIndexes(ctx))

	cfg := config.Default()
	svc := application.NewLedgerService(application.Repositories{
		Materials:    stockmongo.NewMaterialRepository(db),
		Batches:      stockmongo.NewBatchRepository(db),
		Reservations: stockmongo.NewReservationRepository(db),
		Movements:    stockmongo.NewMovementRepository(db),
		Tx:           mongodb.Wrap(client, db.Name()),
	}, mongoLocker, cfg,
		outbox.NewRecorder(outboxRepo, cloudevents.NewEventFactory(cloudevents.SourceStockLedger), "MaterialBatch", "stock-events"),
		nil, logging.NewNop())

	_, err := svc.CreateMaterial(ctx, application.CreateMaterialCommand{ID: "board", Name: "Board", Category: "board"})
	require.NoError(t, err)
	a, err := svc.ReceiveBatch(ctx, application.ReceiveBatchCommand{
		MaterialID: "board", BatchNumber: "A",
		Quantity: decimal.NewFromInt(100), CostPerUnit: decimal.RequireFromString("1.20"),
		ReceivedAt: time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	b, err := svc.ReceiveBatch(ctx, application.ReceiveBatchCommand{
		MaterialID: "board", BatchNumber: "B",
		Quantity: decimal.NewFromInt(100), CostPerUnit: decimal.RequireFromString("1.50"),
		ReceivedAt: time.Date(2024, time.March, 2, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	res, err := svc.Reserve(ctx, application.ReserveCommand{OrderID: "order-1", MaterialID: "board", Quantity: decimal.NewFromInt(150)})
	require.NoError(t, err)
	require.Len(t, res, 2)

	total := decimal.Zero
	for _, r := range res {
		cost, err := svc.Consume(ctx, application.ConsumeCommand{ReservationID: r.ID})
		require.NoError(t, err)
		total = total.Add(cost.TotalCost)
	}
	assert.True(t, total.Equal(decimal.RequireFromString("195")))

	_, err = svc.Consume(ctx, application.ConsumeCommand{ReservationID: res[0].ID})
	assert.ErrorIs(t, err, domain.ErrDoubleConsumption)

	for _, id := range []string{a.ID, b.ID} {
		rec, err := svc.Reconcile(ctx, application.ReconcileQuery{BatchID: id})
		require.NoError(t, err)
		assert.True(t, rec.Balanced, "%+v", rec)
	}

	pending, err := outboxRepo.FindUnpublished(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, pending, 6, "2 receipts, 2 reservations, 2 consumptions")
}
