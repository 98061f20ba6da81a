package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/stock/domain"
	"github.com/marimovDEV/tipografiya/internal/stock/infrastructure/memory"
	"github.com/marimovDEV/tipografiya/pkg/cloudevents"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/outbox"
)

var day0 = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type ledgerFixture struct {
	svc    *LedgerService
	store  *memory.Store
	locker *lock.MemoryLocker
	outbox *outbox.MemoryRepository
}

func newLedgerFixture(t *testing.T, mutate ...func(*config.Config)) *ledgerFixture {
	t.Helper()
	cfg := config.Default()
	cfg.Lock.RetryAttempts = 1
	for _, m := range mutate {
		m(cfg)
	}

	store := memory.NewStore()
	locker := lock.NewMemoryLocker()
	outboxRepo := outbox.NewMemoryRepository()
	recorder := outbox.NewRecorder(outboxRepo, cloudevents.NewEventFactory(cloudevents.SourceStockLedger), "MaterialBatch", "stock-events")

	svc := NewLedgerService(Repositories{
		Materials:    store.Materials(),
		Batches:      store.Batches(),
		Reservations: store.Reservations(),
		Movements:    store.Movements(),
		Tx:           store,
	}, locker, cfg, recorder, nil, logging.NewNop())
	svc.now = func() time.Time { return day0 }

	return &ledgerFixture{svc: svc, store: store, locker: locker, outbox: outboxRepo}
}

func (f *ledgerFixture) material(t *testing.T, id, category string) {
	t.Helper()
	_, err := f.svc.CreateMaterial(context.Background(), CreateMaterialCommand{ID: id, Name: id, Category: category, Unit: "sheet"})
	require.NoError(t, err)
}

func (f *ledgerFixture) batch(t *testing.T, materialID, number, qty, cost string, receivedAt time.Time) *BatchDTO {
	t.Helper()
	b, err := f.svc.ReceiveBatch(context.Background(), ReceiveBatchCommand{
		MaterialID:  materialID,
		BatchNumber: number,
		Quantity:    dec(qty),
		CostPerUnit: dec(cost),
		ReceivedAt:  receivedAt,
	})
	require.NoError(t, err)
	return b
}

func (f *ledgerFixture) current(t *testing.T, batchID string) decimal.Decimal {
	t.Helper()
	b, err := f.svc.GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	return b.CurrentQuantity
}

func (f *ledgerFixture) assertBalanced(t *testing.T, batchIDs ...string) {
	t.Helper()
	for _, id := range batchIDs {
		rec, err := f.svc.Reconcile(context.Background(), ReconcileQuery{BatchID: id})
		require.NoError(t, err)
		assert.True(t, rec.Balanced, "batch %s out of balance: %+v", id, rec)
		assert.True(t, rec.Initial.Sub(rec.Current).Equal(rec.ConsumedReservations))
	}
}

func TestReserve_FIFOAcrossBatches(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	b2 := f.batch(t, "paper-80", "B2", "100", "1.00", day0.Add(-24*time.Hour))
	b1 := f.batch(t, "paper-80", "B1", "20", "1.00", day0.Add(-48*time.Hour))

	res, err := f.svc.Reserve(context.Background(), ReserveCommand{OrderID: "order-1", MaterialID: "paper-80", Quantity: dec("30")})

	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, b1.ID, res[0].BatchID)
	assert.True(t, res[0].ReservedQty.Equal(dec("20")))
	assert.Equal(t, b2.ID, res[1].BatchID)
	assert.True(t, res[1].ReservedQty.Equal(dec("10")))

	// reservation does not touch current quantity
	assert.True(t, f.current(t, b1.ID).Equal(dec("20")))
	assert.True(t, f.current(t, b2.ID).Equal(dec("100")))
}

func TestReserve_InsufficientLeavesNothingBehind(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	b1 := f.batch(t, "paper-80", "B1", "20", "1.00", day0.Add(-48*time.Hour))
	b2 := f.batch(t, "paper-80", "B2", "100", "1.00", day0.Add(-24*time.Hour))

	_, err := f.svc.Reserve(context.Background(), ReserveCommand{OrderID: "order-1", MaterialID: "paper-80", Quantity: dec("200")})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "80", appErr.Details["shortfall"])
	assert.Equal(t, "120", appErr.Details["available"])

	reservations, err := f.svc.GetOrderReservations(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Empty(t, reservations)
	assert.True(t, f.current(t, b1.ID).Equal(dec("20")))
	assert.True(t, f.current(t, b2.ID).Equal(dec("100")))
	assert.Len(t, f.outbox.Events(), 2, "only the two receipts were recorded")
}

func TestReserveAndConsume_CostAttribution(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "board-300", "board")
	a := f.batch(t, "board-300", "A", "100", "1.20", day0.Add(-48*time.Hour))
	b := f.batch(t, "board-300", "B", "100", "1.50", day0.Add(-24*time.Hour))
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-7", MaterialID: "board-300", Quantity: dec("150")})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, a.ID, res[0].BatchID)
	assert.True(t, res[0].ReservedQty.Equal(dec("100")))
	assert.Equal(t, b.ID, res[1].BatchID)
	assert.True(t, res[1].ReservedQty.Equal(dec("50")))

	total := decimal.Zero
	for _, r := range res {
		cost, err := f.svc.Consume(ctx, ConsumeCommand{ReservationID: r.ID})
		require.NoError(t, err)
		total = total.Add(cost.TotalCost)
	}
	assert.True(t, total.Equal(dec("195.0")), "total cost %s", total)

	batchA, err := f.svc.GetBatch(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, batchA.CurrentQuantity.IsZero())
	assert.False(t, batchA.IsActive, "emptied batch is deactivated")
	assert.True(t, f.current(t, b.ID).Equal(dec("50")))
	f.assertBalanced(t, a.ID, b.ID)
}

func TestConsume_TwiceIsRejected(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	b := f.batch(t, "paper-80", "B1", "50", "2.00", day0)
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-1", MaterialID: "paper-80", Quantity: dec("10")})
	require.NoError(t, err)
	_, err = f.svc.Consume(ctx, ConsumeCommand{ReservationID: res[0].ID})
	require.NoError(t, err)

	_, err = f.svc.Consume(ctx, ConsumeCommand{ReservationID: res[0].ID})

	assert.ErrorIs(t, err, domain.ErrDoubleConsumption)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDoubleConsumption))
	assert.True(t, f.current(t, b.ID).Equal(dec("40")), "second consume must not deduct")
	f.assertBalanced(t, b.ID)
}

func TestRelease(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	f.batch(t, "paper-80", "B1", "30", "1.00", day0)
	ctx := context.Background()

	first, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-1", MaterialID: "paper-80", Quantity: dec("30")})
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-2", MaterialID: "paper-80", Quantity: dec("5")})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	require.NoError(t, f.svc.Release(ctx, ReleaseCommand{ReservationID: first[0].ID}))

	second, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-2", MaterialID: "paper-80", Quantity: dec("5")})
	require.NoError(t, err)
	_, err = f.svc.Consume(ctx, ConsumeCommand{ReservationID: second[0].ID})
	require.NoError(t, err)

	err = f.svc.Release(ctx, ReleaseCommand{ReservationID: second[0].ID})
	assert.ErrorIs(t, err, domain.ErrReservationConsumed)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	err = f.svc.Release(ctx, ReleaseCommand{ReservationID: "missing"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestLedgerConservation(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "ink-cyan", "ink")
	b1 := f.batch(t, "ink-cyan", "C1", "12.5", "4.10", day0.Add(-2*time.Hour))
	b2 := f.batch(t, "ink-cyan", "C2", "40", "3.90", day0.Add(-time.Hour))
	ctx := context.Background()

	steps := []struct {
		order string
		qty   string
		next  string // consume | release | keep
	}{
		{"o-1", "5", "consume"},
		{"o-2", "10", "release"},
		{"o-3", "7.25", "consume"},
		{"o-4", "3", "keep"},
		{"o-5", "20", "consume"},
		{"o-6", "1.5", "release"},
	}
	for _, st := range steps {
		res, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: st.order, MaterialID: "ink-cyan", Quantity: dec(st.qty)})
		require.NoError(t, err, st.order)
		f.assertBalanced(t, b1.ID, b2.ID)

		for _, r := range res {
			switch st.next {
			case "consume":
				_, err = f.svc.Consume(ctx, ConsumeCommand{ReservationID: r.ID})
			case "release":
				err = f.svc.Release(ctx, ReleaseCommand{ReservationID: r.ID})
			}
			require.NoError(t, err, st.order)
			f.assertBalanced(t, b1.ID, b2.ID)
		}
	}

	consumed := f.current(t, b1.ID).Add(f.current(t, b2.ID))
	assert.True(t, dec("52.5").Sub(consumed).Equal(dec("32.25")), "consumed %s", dec("52.5").Sub(consumed))
}

func TestReserve_LockConflictSurfacesHolder(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	f.batch(t, "paper-80", "B1", "30", "1.00", day0)

	_, err := f.locker.Acquire(context.Background(), lock.EntityMaterial, "paper-80", "operator-anna", time.Minute)
	require.NoError(t, err)

	ctx := logging.ContextWithHolder(context.Background(), "api-request-42")
	_, err = f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-1", MaterialID: "paper-80", Quantity: dec("1")})

	require.ErrorIs(t, err, lock.ErrLockConflict)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeLockConflict, appErr.Code)
	assert.Equal(t, 423, appErr.HTTPStatus)
	assert.Equal(t, "operator-anna", appErr.Details["holder"])
}

func TestReserve_ReleasesLockAfterFailure(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	ctx := logging.ContextWithHolder(context.Background(), "api-request-1")

	_, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-1", MaterialID: "paper-80", Quantity: dec("1")})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	status, err := f.locker.Status(context.Background(), lock.EntityMaterial, "paper-80")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestReserve_ConcurrentCallersNeverOverAllocate(t *testing.T) {
	f := newLedgerFixture(t, func(cfg *config.Config) {
		cfg.Lock.RetryAttempts = 100
		cfg.Lock.RetryInitialDelay = time.Millisecond
		cfg.Lock.RetryMaxDelay = 5 * time.Millisecond
	})
	f.material(t, "paper-80", "paper")
	b := f.batch(t, "paper-80", "B1", "50", "1.00", day0)

	var (
		wg                            sync.WaitGroup
		mu                            sync.Mutex
		succeeded, insufficient, busy int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reserve(context.Background(), ReserveCommand{OrderID: "order", MaterialID: "paper-80", Quantity: dec("10")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient++
			case errors.Is(err, lock.ErrLockConflict):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	reservations, err := f.store.Reservations().FindByBatch(context.Background(), b.ID)
	require.NoError(t, err)
	reserved := decimal.Zero
	for _, r := range reservations {
		reserved = reserved.Add(r.ReservedQty)
	}
	assert.True(t, reserved.LessThanOrEqual(dec("50")), "reserved %s", reserved)
	assert.Equal(t, succeeded, len(reservations))
	if busy == 0 {
		assert.Equal(t, 5, succeeded)
		assert.Equal(t, 5, insufficient)
	}
}

func TestCheckAvailable(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "Paper")
	f.material(t, "paper-120", "paper")
	f.material(t, "ink-black", "ink")
	f.batch(t, "paper-80", "P1", "40", "1.00", day0.Add(-time.Hour))
	blocked := f.batch(t, "paper-120", "P2", "100", "1.10", day0)
	f.batch(t, "ink-black", "I1", "500", "0.20", day0)
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "o-1", MaterialID: "paper-80", Quantity: dec("15")})
	require.NoError(t, err)
	_, err = f.svc.SetQualityStatus(ctx, SetQualityStatusCommand{BatchID: blocked.ID, Status: "blocked"})
	require.NoError(t, err)

	avail, err := f.svc.CheckAvailable(ctx, CheckAvailabilityQuery{Category: "PAPER", Quantity: dec("30")})
	require.NoError(t, err)
	assert.False(t, avail.Available)
	assert.True(t, avail.TotalAvailable.Equal(dec("25")))
	require.Len(t, avail.Batches, 1)
	assert.Equal(t, "P1", avail.Batches[0].BatchNumber)

	_, err = f.svc.SetQualityStatus(ctx, SetQualityStatusCommand{BatchID: blocked.ID, Status: "ok"})
	require.NoError(t, err)

	avail, err = f.svc.CheckAvailable(ctx, CheckAvailabilityQuery{Category: "paper", Quantity: dec("30")})
	require.NoError(t, err)
	assert.True(t, avail.Available)
	assert.True(t, avail.TotalAvailable.Equal(dec("125")))
	assert.Len(t, avail.Batches, 2)
}

func TestSetQualityStatus_RejectsUnknownStatus(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	b := f.batch(t, "paper-80", "P1", "40", "1.00", day0)

	_, err := f.svc.SetQualityStatus(context.Background(), SetQualityStatusCommand{BatchID: b.ID, Status: "wet"})

	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))
}

func TestSuggestAlternatives(t *testing.T) {
	f := newLedgerFixture(t)
	for _, id := range []string{"paper-80", "paper-90", "paper-100", "paper-120"} {
		f.material(t, id, "paper")
	}
	f.batch(t, "paper-80", "A", "10", "1", day0)
	f.batch(t, "paper-90", "B", "60", "1", day0)
	f.batch(t, "paper-100", "C", "200", "1", day0)
	f.batch(t, "paper-120", "D", "45", "1", day0)

	out, err := f.svc.SuggestAlternatives(context.Background(), SuggestAlternativesQuery{
		Category:          "paper",
		Quantity:          dec("50"),
		ExcludeMaterialID: "paper-100",
	})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "paper-90", out[0].MaterialID)
}

func TestReleaseOrder(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	f.material(t, "ink-black", "ink")
	f.batch(t, "paper-80", "P1", "100", "1", day0)
	f.batch(t, "ink-black", "I1", "100", "1", day0)
	ctx := context.Background()

	paper, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-9", MaterialID: "paper-80", Quantity: dec("10")})
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-9", MaterialID: "ink-black", Quantity: dec("3")})
	require.NoError(t, err)
	_, err = f.svc.Consume(ctx, ConsumeCommand{ReservationID: paper[0].ID})
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-9", MaterialID: "paper-80", Quantity: dec("4")})
	require.NoError(t, err)

	result, err := f.svc.ReleaseOrder(ctx, ReleaseOrderCommand{OrderID: "order-9"})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Released)
	assert.Equal(t, 1, result.Consumed)

	left, err := f.svc.GetOrderReservations(ctx, "order-9")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.True(t, left[0].Consumed)
}

func TestLedger_RecordsEvents(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	f.batch(t, "paper-80", "P1", "100", "1", day0)
	ctx := context.Background()

	res, err := f.svc.Reserve(ctx, ReserveCommand{OrderID: "order-1", MaterialID: "paper-80", Quantity: dec("10")})
	require.NoError(t, err)
	_, err = f.svc.Consume(ctx, ConsumeCommand{ReservationID: res[0].ID})
	require.NoError(t, err)

	var types []string
	for _, e := range f.outbox.Events() {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{cloudevents.BatchReceived, cloudevents.StockReserved, cloudevents.ReservationConsumed}, types)

	last, err := f.outbox.Events()[2].ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "order-1", last.OrderID)
}

func TestReceiveBatch_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	f.material(t, "paper-80", "paper")
	ctx := context.Background()

	_, err := f.svc.ReceiveBatch(ctx, ReceiveBatchCommand{MaterialID: "paper-80", Quantity: dec("0"), CostPerUnit: dec("1")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	_, err = f.svc.ReceiveBatch(ctx, ReceiveBatchCommand{MaterialID: "nope", Quantity: dec("1"), CostPerUnit: dec("1")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
