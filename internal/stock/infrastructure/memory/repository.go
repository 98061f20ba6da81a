// Package memory holds in-process stock repositories for tests and
// single-node deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/marimovDEV/tipografiya/internal/stock/domain"
)

// Store groups the in-memory repositories over one mutex
type Store struct {
	mu           sync.RWMutex
	materials    map[string]domain.Material
	batches      map[string]domain.MaterialBatch
	reservations map[string]domain.Reservation
	reservedSeq  map[string]int64
	seq          int64
	movements    []domain.StockMovement
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		materials:    make(map[string]domain.Material),
		batches:      make(map[string]domain.MaterialBatch),
		reservations: make(map[string]domain.Reservation),
		reservedSeq:  make(map[string]int64),
	}
}

// Materials returns the material repository
func (s *Store) Materials() *MaterialRepository { return &MaterialRepository{s} }

// Batches returns the batch repository
func (s *Store) Batches() *BatchRepository { return &BatchRepository{s} }

// Reservations returns the reservation repository
func (s *Store) Reservations() *ReservationRepository { return &ReservationRepository{s} }

// Movements returns the movement ledger
func (s *Store) Movements() *MovementRepository { return &MovementRepository{s} }

// WithTransaction runs fn directly; callers serialize through entity locks
func (s *Store) WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// MaterialRepository is an in-memory domain.MaterialRepository
type MaterialRepository struct{ s *Store }

func (r *MaterialRepository) Save(ctx context.Context, m *domain.Material) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.materials[m.ID] = *m
	return nil
}

func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*domain.Material, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.materials[id]
	if !ok {
		return nil, domain.ErrMaterialNotFound
	}
	return &m, nil
}

func (r *MaterialRepository) FindByCategory(ctx context.Context, category string) ([]*domain.Material, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Material, 0)
	for _, m := range r.s.materials {
		if strings.EqualFold(m.Category, category) {
			m := m
			out = append(out, &m)
		}
	}
	sortMaterials(out)
	return out, nil
}

func (r *MaterialRepository) FindAll(ctx context.Context) ([]*domain.Material, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Material, 0, len(r.s.materials))
	for _, m := range r.s.materials {
		m := m
		out = append(out, &m)
	}
	sortMaterials(out)
	return out, nil
}

// BatchRepository is an in-memory domain.BatchRepository
type BatchRepository struct{ s *Store }

func (r *BatchRepository) Save(ctx context.Context, b *domain.MaterialBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.batches[b.ID] = *b
	return nil
}

func (r *BatchRepository) FindByID(ctx context.Context, id string) (*domain.MaterialBatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return &b, nil
}

func (r *BatchRepository) FindByMaterial(ctx context.Context, materialID string) ([]*domain.MaterialBatch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.MaterialBatch, 0)
	for _, b := range r.s.batches {
		if b.MaterialID == materialID {
			b := b
			out = append(out, &b)
		}
	}
	domain.SortFIFO(out)
	return out, nil
}

// ReservationRepository is an in-memory domain.ReservationRepository
type ReservationRepository struct{ s *Store }

func (r *ReservationRepository) SaveAll(ctx context.Context, reservations []*domain.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range reservations {
		if _, ok := r.s.reservedSeq[res.ID]; !ok {
			r.s.seq++
			r.s.reservedSeq[res.ID] = r.s.seq
		}
		r.s.reservations[res.ID] = *res
	}
	return nil
}

func (r *ReservationRepository) Save(ctx context.Context, res *domain.Reservation) error {
	return r.SaveAll(ctx, []*domain.Reservation{res})
}

func (r *ReservationRepository) FindByID(ctx context.Context, id string) (*domain.Reservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return &res, nil
}

func (r *ReservationRepository) filter(match func(domain.Reservation) bool) []*domain.Reservation {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Reservation, 0)
	for _, res := range r.s.reservations {
		if match(res) {
			res := res
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.s.reservedSeq[out[i].ID] < r.s.reservedSeq[out[j].ID]
	})
	return out
}

func (r *ReservationRepository) FindByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool { return res.OrderID == orderID }), nil
}

func (r *ReservationRepository) FindUnconsumedByMaterial(ctx context.Context, materialID string) ([]*domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool {
		return res.MaterialID == materialID && !res.Consumed
	}), nil
}

func (r *ReservationRepository) FindByBatch(ctx context.Context, batchID string) ([]*domain.Reservation, error) {
	return r.filter(func(res domain.Reservation) bool { return res.BatchID == batchID }), nil
}

func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reservations[id]; !ok {
		return domain.ErrReservationNotFound
	}
	delete(r.s.reservations, id)
	delete(r.s.reservedSeq, id)
	return nil
}

// MovementRepository is an in-memory domain.MovementRepository
type MovementRepository struct{ s *Store }

func (r *MovementRepository) Append(ctx context.Context, movements ...*domain.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range movements {
		r.s.movements = append(r.s.movements, *m)
	}
	return nil
}

func (r *MovementRepository) FindByBatch(ctx context.Context, batchID string) ([]*domain.StockMovement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.StockMovement, 0)
	for _, m := range r.s.movements {
		if m.BatchID == batchID {
			m := m
			out = append(out, &m)
		}
	}
	return out, nil
}

func sortMaterials(ms []*domain.Material) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}
