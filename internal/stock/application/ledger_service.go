package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/stock/domain"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/outbox"
	"github.com/marimovDEV/tipografiya/pkg/tracing"
)

// Repositories bundles the ledger's persistence ports
type Repositories struct {
	Materials    domain.MaterialRepository
	Batches      domain.BatchRepository
	Reservations domain.ReservationRepository
	Movements    domain.MovementRepository
	Tx           domain.Transactor
}

// LedgerService handles stock ledger use cases. Every mutation runs under
// the material's entity lock and inside one transaction.
type LedgerService struct {
	repos          Repositories
	locker         lock.Locker
	lockOpts       *lock.Options
	events         *outbox.Recorder
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	logger         *logging.Logger
	maxSuggestions int
	now            func() time.Time
}

// NewLedgerService creates a LedgerService. events and m may be nil.
func NewLedgerService(
	repos Repositories,
	locker lock.Locker,
	cfg *config.Config,
	events *outbox.Recorder,
	m *metrics.Metrics,
	logger *logging.Logger,
) *LedgerService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LedgerService{
		repos:          repos,
		locker:         locker,
		lockOpts:       cfg.Lock.Options(m),
		events:         events,
		metrics:        m,
		tracer:         otel.Tracer("stock-ledger"),
		logger:         logger.WithComponent("stock-ledger"),
		maxSuggestions: cfg.Stock.MaxSuggestions,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// holder identifies the caller to the entity lock. Calls without an
// identity get a unique one so they still exclude each other.
func (s *LedgerService) holder(ctx context.Context) string {
	if h := logging.HolderFromContext(ctx, ""); h != "" {
		return h
	}
	return "stock-ledger/" + uuid.NewString()
}

func (s *LedgerService) withMaterialLock(ctx context.Context, materialID string, fn func(txCtx context.Context) error) error {
	return lock.WithLock(ctx, s.locker, lock.EntityMaterial, materialID, s.holder(ctx), s.lockOpts, func(ctx context.Context) error {
		return s.repos.Tx.WithTransaction(ctx, fn)
	})
}

func (s *LedgerService) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracing.StartTimedSpan(ctx, s.tracer, "LedgerService."+operation)
	span.SetAttributes(attrs...)
	return ctx, func(err error) {
		s.metrics.ObserveOperation("stock."+strings.ToLower(operation), span.End(err))
	}
}

// CreateMaterial registers a material
func (s *LedgerService) CreateMaterial(ctx context.Context, cmd CreateMaterialCommand) (*MaterialDTO, error) {
	if cmd.Name == "" || cmd.Category == "" {
		return nil, apperrors.ErrValidation("name and category are required")
	}
	m := domain.NewMaterial(cmd.ID, cmd.Name, cmd.Category, cmd.Unit)
	if err := s.repos.Materials.Save(ctx, m); err != nil {
		s.logger.Error("Failed to create material", "materialId", m.ID, "error", err)
		return nil, err
	}
	s.logger.Info("Created material", "materialId", m.ID, "category", m.Category)
	return ToMaterialDTO(m), nil
}

// ListMaterials returns every material
func (s *LedgerService) ListMaterials(ctx context.Context) ([]*MaterialDTO, error) {
	ms, err := s.repos.Materials.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*MaterialDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, ToMaterialDTO(m))
	}
	return out, nil
}

// ListBatches returns the batches of a material oldest first
func (s *LedgerService) ListBatches(ctx context.Context, materialID string) ([]*BatchDTO, error) {
	if _, err := s.repos.Materials.FindByID(ctx, materialID); err != nil {
		return nil, toAppError(err)
	}
	batches, err := s.repos.Batches.FindByMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	out := make([]*BatchDTO, 0, len(batches))
	for _, b := range batches {
		out = append(out, ToBatchDTO(b))
	}
	return out, nil
}

// GetBatch returns one batch
func (s *LedgerService) GetBatch(ctx context.Context, batchID string) (*BatchDTO, error) {
	b, err := s.repos.Batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, toAppError(err)
	}
	return ToBatchDTO(b), nil
}

// GetOrderReservations returns every reservation of an order
func (s *LedgerService) GetOrderReservations(ctx context.Context, orderID string) ([]ReservationDTO, error) {
	rs, err := s.repos.Reservations.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToReservationDTOs(rs), nil
}

// ReceiveBatch brings stock in. It is the only way quantity enters the
// ledger.
func (s *LedgerService) ReceiveBatch(ctx context.Context, cmd ReceiveBatchCommand) (dto *BatchDTO, err error) {
	ctx, end := s.startSpan(ctx, "ReceiveBatch", attribute.String("material.id", cmd.MaterialID))
	defer func() { end(err) }()

	if _, err := s.repos.Materials.FindByID(ctx, cmd.MaterialID); err != nil {
		return nil, toAppError(err)
	}
	receivedAt := cmd.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	batch, err := domain.NewMaterialBatch(cmd.MaterialID, cmd.BatchNumber, cmd.SupplierID, cmd.Quantity, cmd.CostPerUnit, receivedAt)
	if err != nil {
		return nil, apperrors.ErrValidation(err.Error()).Wrap(err)
	}

	err = s.withMaterialLock(ctx, cmd.MaterialID, func(ctx context.Context) error {
		if err := s.repos.Batches.Save(ctx, batch); err != nil {
			return err
		}
		if err := s.repos.Movements.Append(ctx, domain.NewReceiptMovement(batch)); err != nil {
			return err
		}
		return s.events.Record(ctx, &domain.BatchReceivedEvent{
			BatchID:     batch.ID,
			MaterialID:  batch.MaterialID,
			BatchNumber: batch.BatchNumber,
			Quantity:    batch.InitialQuantity,
			CostPerUnit: batch.CostPerUnit,
			ReceivedAt:  batch.ReceivedAt,
		})
	})
	s.metrics.RecordStockOperation("receive", outcome(err))
	if err != nil {
		s.logger.WithError(err).Error("Failed to receive batch", "materialId", cmd.MaterialID)
		return nil, toAppError(err)
	}

	s.logger.Info("Received batch", "batchId", batch.ID, "materialId", batch.MaterialID, "quantity", batch.InitialQuantity.String())
	return ToBatchDTO(batch), nil
}

// CheckAvailable sums free stock over the allocatable batches of every
// material in a category. It has no side effects.
func (s *LedgerService) CheckAvailable(ctx context.Context, query CheckAvailabilityQuery) (*AvailabilityDTO, error) {
	if query.Quantity.IsNegative() {
		return nil, apperrors.ErrValidation("quantity must not be negative")
	}
	materials, err := s.repos.Materials.FindByCategory(ctx, query.Category)
	if err != nil {
		return nil, err
	}

	out := &AvailabilityDTO{
		Category:       query.Category,
		Requested:      query.Quantity,
		TotalAvailable: decimal.Zero,
		Batches:        make([]BatchAvailabilityDTO, 0),
	}
	for _, m := range materials {
		free, total, err := s.freeCapacity(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range free {
			out.Batches = append(out.Batches, BatchAvailabilityDTO{
				BatchID:     f.Batch.ID,
				MaterialID:  f.Batch.MaterialID,
				BatchNumber: f.Batch.BatchNumber,
				Free:        f.Free,
				CostPerUnit: f.Batch.CostPerUnit,
				ReceivedAt:  f.Batch.ReceivedAt,
			})
		}
		out.TotalAvailable = out.TotalAvailable.Add(total)
	}
	out.Available = out.TotalAvailable.GreaterThanOrEqual(query.Quantity)
	return out, nil
}

func (s *LedgerService) freeCapacity(ctx context.Context, materialID string) ([]domain.BatchFree, decimal.Decimal, error) {
	batches, err := s.repos.Batches.FindByMaterial(ctx, materialID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	reservations, err := s.repos.Reservations.FindUnconsumedByMaterial(ctx, materialID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	free, total := domain.FreeCapacity(batches, domain.UnconsumedByBatch(reservations))
	return free, total, nil
}

// SuggestAlternatives lists materials of a category whose free stock alone
// covers the quantity, largest stock first
func (s *LedgerService) SuggestAlternatives(ctx context.Context, query SuggestAlternativesQuery) ([]MaterialAvailabilityDTO, error) {
	materials, err := s.repos.Materials.FindByCategory(ctx, query.Category)
	if err != nil {
		return nil, err
	}

	out := make([]MaterialAvailabilityDTO, 0)
	for _, m := range materials {
		if m.ID == query.ExcludeMaterialID {
			continue
		}
		_, total, err := s.freeCapacity(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if total.IsPositive() && total.GreaterThanOrEqual(query.Quantity) {
			out = append(out, MaterialAvailabilityDTO{MaterialID: m.ID, Name: m.Name, Category: m.Category, Free: total})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Free.Equal(out[j].Free) {
			return out[i].Free.GreaterThan(out[j].Free)
		}
		return out[i].MaterialID < out[j].MaterialID
	})
	if s.maxSuggestions > 0 && len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out, nil
}

// Reserve claims stock for an order from the oldest batches first. Either
// the whole quantity is reserved or nothing is.
func (s *LedgerService) Reserve(ctx context.Context, cmd ReserveCommand) (dtos []ReservationDTO, err error) {
	ctx, end := s.startSpan(ctx, "Reserve",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("material.id", cmd.MaterialID),
	)
	defer func() { end(err) }()

	if cmd.OrderID == "" || cmd.MaterialID == "" {
		return nil, apperrors.ErrValidation("orderId and materialId are required")
	}
	if !cmd.Quantity.IsPositive() {
		return nil, toAppError(domain.ErrInvalidQuantity)
	}
	if _, err := s.repos.Materials.FindByID(ctx, cmd.MaterialID); err != nil {
		return nil, toAppError(err)
	}

	var created []*domain.Reservation
	err = s.withMaterialLock(ctx, cmd.MaterialID, func(ctx context.Context) error {
		batches, err := s.repos.Batches.FindByMaterial(ctx, cmd.MaterialID)
		if err != nil {
			return err
		}
		existing, err := s.repos.Reservations.FindUnconsumedByMaterial(ctx, cmd.MaterialID)
		if err != nil {
			return err
		}

		allocations, err := domain.AllocateFIFO(cmd.MaterialID, batches, domain.UnconsumedByBatch(existing), cmd.Quantity)
		if err != nil {
			return err
		}

		now := s.now()
		created = make([]*domain.Reservation, 0, len(allocations))
		events := make([]outbox.DomainEvent, 0, len(allocations))
		for _, a := range allocations {
			r := domain.NewReservation(cmd.OrderID, cmd.MaterialID, a.Batch.ID, a.Quantity, now)
			created = append(created, r)
			events = append(events, &domain.StockReservedEvent{
				ReservationID: r.ID,
				OrderID:       r.OrderID,
				BatchID:       r.BatchID,
				MaterialID:    r.MaterialID,
				Quantity:      r.ReservedQty,
				ReservedAt:    now,
			})
		}
		if err := s.repos.Reservations.SaveAll(ctx, created); err != nil {
			return err
		}
		return s.events.Record(ctx, events...)
	})
	s.metrics.RecordStockOperation("reserve", outcome(err))
	if err != nil {
		s.logger.WithError(err).Warn("Reservation failed",
			"orderId", cmd.OrderID,
			"materialId", cmd.MaterialID,
			"quantity", cmd.Quantity.String(),
		)
		return nil, toAppError(err)
	}

	s.logger.Info("Reserved stock",
		"orderId", cmd.OrderID,
		"materialId", cmd.MaterialID,
		"quantity", cmd.Quantity.String(),
		"batches", len(created),
	)
	return ToReservationDTOs(created), nil
}

// Consume permanently deducts a reservation from its batch and prices it.
// A reservation is consumed at most once.
func (s *LedgerService) Consume(ctx context.Context, cmd ConsumeCommand) (dto *CostAttributionDTO, err error) {
	ctx, end := s.startSpan(ctx, "Consume", attribute.String("reservation.id", cmd.ReservationID))
	defer func() { end(err) }()

	res, err := s.repos.Reservations.FindByID(ctx, cmd.ReservationID)
	if err != nil {
		return nil, toAppError(err)
	}

	var attribution *domain.CostAttribution
	err = s.withMaterialLock(ctx, res.MaterialID, func(ctx context.Context) error {
		res, err := s.repos.Reservations.FindByID(ctx, cmd.ReservationID)
		if err != nil {
			return err
		}
		if res.Consumed {
			return domain.ErrDoubleConsumption
		}
		batch, err := s.repos.Batches.FindByID(ctx, res.BatchID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := batch.Decrement(res.ReservedQty, now); err != nil {
			return err
		}
		if err := res.MarkConsumed(now); err != nil {
			return err
		}

		if err := s.repos.Batches.Save(ctx, batch); err != nil {
			return err
		}
		if err := s.repos.Reservations.Save(ctx, res); err != nil {
			return err
		}
		if err := s.repos.Movements.Append(ctx, domain.NewConsumptionMovement(res, batch.CostPerUnit, now)); err != nil {
			return err
		}

		attribution = domain.NewCostAttribution(res, batch.CostPerUnit, now)
		return s.events.Record(ctx, &domain.ReservationConsumedEvent{
			ReservationID: res.ID,
			OrderID:       res.OrderID,
			BatchID:       res.BatchID,
			MaterialID:    res.MaterialID,
			Quantity:      res.ReservedQty,
			UnitCost:      attribution.UnitCost,
			TotalCost:     attribution.TotalCost,
			BatchEmptied:  !batch.IsActive,
			ConsumedAt:    now,
		})
	})
	s.metrics.RecordStockOperation("consume", outcome(err))
	if err != nil {
		if errors.Is(err, domain.ErrDoubleConsumption) {
			s.logger.Warn("Rejected double consumption", "reservationId", cmd.ReservationID)
			return nil, apperrors.ErrDoubleConsumption(cmd.ReservationID).Wrap(err)
		}
		s.logger.WithError(err).Error("Failed to consume reservation", "reservationId", cmd.ReservationID)
		return nil, toAppError(err)
	}

	s.metrics.RecordStockConsumed(attribution.MaterialID, attribution.Quantity.InexactFloat64())
	s.logger.Info("Consumed reservation",
		"reservationId", attribution.ReservationID,
		"orderId", attribution.OrderID,
		"batchId", attribution.BatchID,
		"totalCost", attribution.TotalCost.String(),
	)
	return ToCostAttributionDTO(attribution), nil
}

// Release deletes an unconsumed reservation, freeing its capacity
func (s *LedgerService) Release(ctx context.Context, cmd ReleaseCommand) (err error) {
	ctx, end := s.startSpan(ctx, "Release", attribute.String("reservation.id", cmd.ReservationID))
	defer func() { end(err) }()

	res, err := s.repos.Reservations.FindByID(ctx, cmd.ReservationID)
	if err != nil {
		return toAppError(err)
	}

	err = s.withMaterialLock(ctx, res.MaterialID, func(ctx context.Context) error {
		return s.release(ctx, cmd.ReservationID)
	})
	s.metrics.RecordStockOperation("release", outcome(err))
	if err != nil {
		s.logger.WithError(err).Warn("Release failed", "reservationId", cmd.ReservationID)
		return toAppError(err)
	}

	s.logger.Info("Released reservation", "reservationId", res.ID, "orderId", res.OrderID)
	return nil
}

// release must run under the material lock
func (s *LedgerService) release(ctx context.Context, reservationID string) error {
	res, err := s.repos.Reservations.FindByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if err := res.CanRelease(); err != nil {
		return err
	}
	if err := s.repos.Reservations.Delete(ctx, res.ID); err != nil {
		return err
	}
	return s.events.Record(ctx, &domain.ReservationReleasedEvent{
		ReservationID: res.ID,
		OrderID:       res.OrderID,
		BatchID:       res.BatchID,
		MaterialID:    res.MaterialID,
		Quantity:      res.ReservedQty,
		ReleasedAt:    s.now(),
	})
}

// ReleaseOrder releases every unconsumed reservation of a cancelled order.
// Consumed reservations are counted and left alone.
func (s *LedgerService) ReleaseOrder(ctx context.Context, cmd ReleaseOrderCommand) (dto *ReleaseOrderResultDTO, err error) {
	ctx, end := s.startSpan(ctx, "ReleaseOrder", attribute.String("order.id", cmd.OrderID))
	defer func() { end(err) }()

	rs, err := s.repos.Reservations.FindByOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	result := &ReleaseOrderResultDTO{OrderID: cmd.OrderID}
	byMaterial := make(map[string][]string)
	for _, r := range rs {
		if r.Consumed {
			result.Consumed++
			continue
		}
		byMaterial[r.MaterialID] = append(byMaterial[r.MaterialID], r.ID)
	}

	materialIDs := make([]string, 0, len(byMaterial))
	for id := range byMaterial {
		materialIDs = append(materialIDs, id)
	}
	sort.Strings(materialIDs)

	for _, materialID := range materialIDs {
		ids := byMaterial[materialID]
		err := s.withMaterialLock(ctx, materialID, func(ctx context.Context) error {
			for _, id := range ids {
				err := s.release(ctx, id)
				switch {
				case err == nil:
					result.Released++
				case errors.Is(err, domain.ErrReservationConsumed):
					result.Consumed++
				case errors.Is(err, domain.ErrReservationNotFound):
				default:
					return err
				}
			}
			return nil
		})
		s.metrics.RecordStockOperation("release", outcome(err))
		if err != nil {
			s.logger.WithError(err).Error("Failed to release order", "orderId", cmd.OrderID, "materialId", materialID)
			return nil, toAppError(err)
		}
	}

	s.logger.Info("Released order reservations", "orderId", cmd.OrderID, "released", result.Released, "consumed", result.Consumed)
	return result, nil
}

// SetQualityStatus blocks, quarantines or clears a batch. Quantities are not
// touched; only future allocations are affected.
func (s *LedgerService) SetQualityStatus(ctx context.Context, cmd SetQualityStatusCommand) (*BatchDTO, error) {
	status, err := domain.ParseQualityStatus(cmd.Status)
	if err != nil {
		return nil, toAppError(err)
	}
	batch, err := s.repos.Batches.FindByID(ctx, cmd.BatchID)
	if err != nil {
		return nil, toAppError(err)
	}

	err = s.withMaterialLock(ctx, batch.MaterialID, func(ctx context.Context) error {
		var err error
		batch, err = s.repos.Batches.FindByID(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		from := batch.QualityStatus
		if from == status {
			return nil
		}
		now := s.now()
		batch.SetQuality(status, now)
		if err := s.repos.Batches.Save(ctx, batch); err != nil {
			return err
		}
		return s.events.Record(ctx, &domain.BatchQualityChangedEvent{
			BatchID:    batch.ID,
			MaterialID: batch.MaterialID,
			From:       from,
			To:         status,
			ChangedAt:  now,
		})
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Audit(ctx, "set-quality-status", "batch", batch.ID, logging.HolderFromContext(ctx, "system"))
	return ToBatchDTO(batch), nil
}

// Reconcile checks a batch against its movements and consumed reservations
func (s *LedgerService) Reconcile(ctx context.Context, query ReconcileQuery) (*ReconciliationDTO, error) {
	batch, err := s.repos.Batches.FindByID(ctx, query.BatchID)
	if err != nil {
		return nil, toAppError(err)
	}
	movements, err := s.repos.Movements.FindByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repos.Reservations.FindByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}

	out := &ReconciliationDTO{
		BatchID:              batch.ID,
		Initial:              batch.InitialQuantity,
		Current:              batch.CurrentQuantity,
		Received:             decimal.Zero,
		ConsumedMovements:    decimal.Zero,
		ConsumedReservations: decimal.Zero,
	}
	for _, m := range movements {
		switch m.Kind {
		case domain.MovementReceipt:
			out.Received = out.Received.Add(m.Quantity)
		case domain.MovementConsumption:
			out.ConsumedMovements = out.ConsumedMovements.Add(m.Quantity)
		}
	}
	for _, r := range reservations {
		if r.Consumed {
			out.ConsumedReservations = out.ConsumedReservations.Add(r.ReservedQty)
		}
	}

	consumed := batch.Consumed()
	out.Balanced = out.Received.Equal(batch.InitialQuantity) &&
		consumed.Equal(out.ConsumedMovements) &&
		consumed.Equal(out.ConsumedReservations)
	if !out.Balanced {
		s.logger.Error("Batch ledger out of balance",
			"batchId", batch.ID,
			"initial", batch.InitialQuantity.String(),
			"current", batch.CurrentQuantity.String(),
			"consumedMovements", out.ConsumedMovements.String(),
			"consumedReservations", out.ConsumedReservations.String(),
		)
	}
	return out, nil
}
