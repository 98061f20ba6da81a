// Package memory holds in-process scheduling repositories
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
)

// Store groups the in-memory scheduling repositories over one mutex
type Store struct {
	mu        sync.RWMutex
	steps     map[string]domain.ProductionStep
	machines  map[string]domain.Machine
	downtimes map[string]domain.MachineDowntime
	orders    map[string]domain.Order
	templates map[string]domain.ProductTemplate
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		steps:     make(map[string]domain.ProductionStep),
		machines:  make(map[string]domain.Machine),
		downtimes: make(map[string]domain.MachineDowntime),
		orders:    make(map[string]domain.Order),
		templates: make(map[string]domain.ProductTemplate),
	}
}

func (s *Store) Steps() *StepRepository         { return &StepRepository{s} }
func (s *Store) Machines() *MachineRepository   { return &MachineRepository{s} }
func (s *Store) Downtimes() *DowntimeRepository { return &DowntimeRepository{s} }
func (s *Store) Orders() *OrderRepository       { return &OrderRepository{s} }
func (s *Store) Templates() *TemplateRepository { return &TemplateRepository{s} }

// WithTransaction runs fn directly; callers serialize through entity locks
func (s *Store) WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// StepRepository is an in-memory domain.StepRepository
type StepRepository struct{ s *Store }

func (r *StepRepository) Save(ctx context.Context, step *domain.ProductionStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.steps[step.ID] = *step
	return nil
}

func (r *StepRepository) SaveAll(ctx context.Context, steps []*domain.ProductionStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, step := range steps {
		r.s.steps[step.ID] = *step
	}
	return nil
}

func (r *StepRepository) FindByID(ctx context.Context, id string) (*domain.ProductionStep, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	step, ok := r.s.steps[id]
	if !ok {
		return nil, domain.ErrStepNotFound
	}
	return &step, nil
}

func (r *StepRepository) FindByOrder(ctx context.Context, orderID string) ([]*domain.ProductionStep, error) {
	out := r.filter(func(s *domain.ProductionStep) bool { return s.OrderID == orderID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r *StepRepository) FindByMachine(ctx context.Context, machineID string, statuses ...domain.StepStatus) ([]*domain.ProductionStep, error) {
	out := r.filter(func(s *domain.ProductionStep) bool {
		return s.MachineID == machineID && hasStatus(s, statuses)
	})
	domain.SortQueue(out)
	return out, nil
}

func (r *StepRepository) FindDependents(ctx context.Context, stepID string) ([]*domain.ProductionStep, error) {
	return r.filter(func(s *domain.ProductionStep) bool { return s.DependsOn == stepID }), nil
}

func (r *StepRepository) FindByStatus(ctx context.Context, statuses ...domain.StepStatus) ([]*domain.ProductionStep, error) {
	return r.filter(func(s *domain.ProductionStep) bool { return hasStatus(s, statuses) }), nil
}

// filter returns matching copies ordered by creation then ID
func (r *StepRepository) filter(match func(*domain.ProductionStep) bool) []*domain.ProductionStep {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.ProductionStep, 0)
	for _, step := range r.s.steps {
		step := step
		if match(&step) {
			out = append(out, &step)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func hasStatus(s *domain.ProductionStep, statuses []domain.StepStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// MachineRepository is an in-memory domain.MachineRepository
type MachineRepository struct{ s *Store }

func (r *MachineRepository) Save(ctx context.Context, m *domain.Machine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.machines[m.ID] = *m
	return nil
}

func (r *MachineRepository) FindByID(ctx context.Context, id string) (*domain.Machine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.machines[id]
	if !ok {
		return nil, domain.ErrMachineNotFound
	}
	return &m, nil
}

func (r *MachineRepository) FindAll(ctx context.Context) ([]*domain.Machine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Machine, 0, len(r.s.machines))
	for _, m := range r.s.machines {
		m := m
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DowntimeRepository is an in-memory domain.DowntimeRepository
type DowntimeRepository struct{ s *Store }

func (r *DowntimeRepository) Save(ctx context.Context, d *domain.MachineDowntime) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.downtimes[d.ID] = *d
	return nil
}

func (r *DowntimeRepository) FindByID(ctx context.Context, id string) (*domain.MachineDowntime, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.downtimes[id]
	if !ok {
		return nil, domain.ErrDowntimeNotFound
	}
	return &d, nil
}

func (r *DowntimeRepository) FindUnresolved(ctx context.Context, machineID string) ([]*domain.MachineDowntime, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.MachineDowntime, 0)
	for _, d := range r.s.downtimes {
		if d.MachineID == machineID && !d.Resolved {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// OrderRepository is an in-memory domain.OrderRepository
type OrderRepository struct{ s *Store }

func (r *OrderRepository) Save(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[o.ID] = *o
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

// TemplateRepository is an in-memory domain.TemplateRepository
type TemplateRepository struct{ s *Store }

func (r *TemplateRepository) Save(ctx context.Context, t *domain.ProductTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *t
	cp.Routing = append([]domain.RoutingEntry(nil), t.Routing...)
	r.s.templates[t.ID] = cp
	return nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*domain.ProductTemplate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.templates[id]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	t.Routing = append([]domain.RoutingEntry(nil), t.Routing...)
	return &t, nil
}
