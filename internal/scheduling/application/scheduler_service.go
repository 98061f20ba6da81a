package application

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marimovDEV/tipografiya/internal/calendar"
	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/lock"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/outbox"
	"github.com/marimovDEV/tipografiya/pkg/tracing"
)

// maxCascadeDepth bounds dependent recalculation along a step chain
const maxCascadeDepth = 64

// farDeadline is how far ahead an order without a deadline sorts
const farDeadline = 365 * 24 * time.Hour

var activeStatuses = []domain.StepStatus{domain.StepPending, domain.StepInProgress}

// Repositories bundles the scheduler's persistence ports
type Repositories struct {
	Steps     domain.StepRepository
	Machines  domain.MachineRepository
	Downtimes domain.DowntimeRepository
	Orders    domain.OrderRepository
	Templates domain.TemplateRepository
	Tx        domain.Transactor
}

// SchedulerService handles machine queues and projected step times. Queue
// mutations run under the machine's entity lock.
type SchedulerService struct {
	repos    Repositories
	locker   lock.Locker
	lockOpts *lock.Options
	hours    *calendar.BusinessHours
	cfg      config.SchedulingConfig
	events   *outbox.Recorder
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *logging.Logger
	now      func() time.Time
}

// NewSchedulerService creates a SchedulerService. events and m may be nil.
func NewSchedulerService(
	repos Repositories,
	locker lock.Locker,
	hours *calendar.BusinessHours,
	cfg *config.Config,
	events *outbox.Recorder,
	m *metrics.Metrics,
	logger *logging.Logger,
) *SchedulerService {
	if logger == nil {
		logger = logging.NewNop()
	}
	if hours == nil {
		hours = calendar.NewBusinessHours()
	}
	return &SchedulerService{
		repos:    repos,
		locker:   locker,
		lockOpts: cfg.Lock.Options(m),
		hours:    hours,
		cfg:      cfg.Scheduling,
		events:   events,
		metrics:  m,
		tracer:   otel.Tracer("scheduler"),
		logger:   logger.WithComponent("scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *SchedulerService) holder(ctx context.Context) string {
	if h := logging.HolderFromContext(ctx, ""); h != "" {
		return h
	}
	return "scheduler/" + uuid.NewString()
}

func (s *SchedulerService) withMachineLock(ctx context.Context, machineID string, fn func(txCtx context.Context) error) error {
	return lock.WithLock(ctx, s.locker, lock.EntityMachine, machineID, s.holder(ctx), s.lockOpts, func(ctx context.Context) error {
		return s.repos.Tx.WithTransaction(ctx, fn)
	})
}

// withMachineLocks runs fn while holding the lock of every listed machine.
// Locks are taken in id order.
func (s *SchedulerService) withMachineLocks(ctx context.Context, machineIDs []string, fn func(ctx context.Context) error) error {
	ids := make([]string, 0, len(machineIDs))
	for _, id := range machineIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	holder := s.holder(ctx)
	var acquire func(ctx context.Context, i int) error
	acquire = func(ctx context.Context, i int) error {
		if i == len(ids) {
			return fn(ctx)
		}
		return lock.WithLock(ctx, s.locker, lock.EntityMachine, ids[i], holder, s.lockOpts, func(ctx context.Context) error {
			return acquire(ctx, i+1)
		})
	}
	return acquire(ctx, 0)
}

// withStepLock locks the step's machine, or only opens a transaction for
// steps without one
func (s *SchedulerService) withStepLock(ctx context.Context, step *domain.ProductionStep, fn func(txCtx context.Context) error) error {
	if step.MachineID == "" {
		return s.repos.Tx.WithTransaction(ctx, fn)
	}
	return s.withMachineLock(ctx, step.MachineID, fn)
}

func (s *SchedulerService) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracing.StartTimedSpan(ctx, s.tracer, "SchedulerService."+operation)
	span.SetAttributes(attrs...)
	return ctx, func(err error) {
		s.metrics.ObserveOperation("scheduling."+strings.ToLower(operation), span.End(err))
	}
}

// routingEntry resolves the time norm for a step kind: the order's template
// first, then the configured routing table
func (s *SchedulerService) routingEntry(ctx context.Context, step *domain.ProductionStep) *domain.RoutingEntry {
	if order, err := s.repos.Orders.FindByID(ctx, step.OrderID); err == nil && order.TemplateID != "" {
		if tmpl, err := s.repos.Templates.FindByID(ctx, order.TemplateID); err == nil {
			if e := tmpl.Entry(step.Kind); e != nil {
				return e
			}
		}
	}
	if rc, ok := s.cfg.Routing[step.Kind]; ok {
		return &domain.RoutingEntry{
			Kind:           step.Kind,
			MachineType:    rc.MachineType,
			MinutesPerUnit: rc.MinutesPerUnit,
			SetupMinutes:   rc.SetupMinutes,
			PerSheet:       rc.PerSheet,
		}
	}
	return nil
}

// durationMinutes never fails: machine rate, then routing norm, then the
// configured default
func (s *SchedulerService) durationMinutes(ctx context.Context, step *domain.ProductionStep) float64 {
	if step.MachineID != "" {
		if m, err := s.repos.Machines.FindByID(ctx, step.MachineID); err == nil {
			if d, ok := m.Duration(step.Units()); ok {
				return d
			}
		}
	}
	if d, ok := s.routingEntry(ctx, step).Duration(step.Units()); ok {
		return d
	}
	return s.cfg.DefaultStepMinutes
}

// downtimeEnd is the latest expected end of unresolved downtime
func (s *SchedulerService) downtimeEnd(ctx context.Context, machineID string, now time.Time) (time.Time, bool, error) {
	downtimes, err := s.repos.Downtimes.FindUnresolved(ctx, machineID)
	if err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	for _, d := range downtimes {
		if at := d.AvailableAt(now, s.cfg.DowntimeDefault); at.After(latest) {
			latest = at
		}
	}
	return latest, len(downtimes) > 0, nil
}

// availableFor is when the machine is free for step: after every step ahead
// of it in the queue and after unresolved downtime. queue may be nil.
func (s *SchedulerService) availableFor(ctx context.Context, step *domain.ProductionStep, queue []*domain.ProductionStep, now time.Time) (time.Time, error) {
	if queue == nil {
		var err error
		queue, err = s.repos.Steps.FindByMachine(ctx, step.MachineID, activeStatuses...)
		if err != nil {
			return now, err
		}
	}
	available := now
	if end, ok := domain.LatestEnd(domain.Ahead(step, queue)); ok && end.After(available) {
		available = end
	}
	if end, ok, err := s.downtimeEnd(ctx, step.MachineID, now); err != nil {
		return now, err
	} else if ok && end.After(available) {
		available = end
	}
	return available, nil
}

// estimate sets the projected times of step without saving it. Start is
// the latest of now, the predecessor's finish and the machine's free time,
// rolled into business hours.
func (s *SchedulerService) estimate(ctx context.Context, step *domain.ProductionStep, queue []*domain.ProductionStep) error {
	now := s.now()
	start := now

	if step.DependsOn != "" {
		pred, err := s.repos.Steps.FindByID(ctx, step.DependsOn)
		switch {
		case err == nil:
			if finish := pred.FinishTime(); finish != nil && finish.After(start) {
				start = *finish
			}
		case !errors.Is(err, domain.ErrStepNotFound):
			return err
		}
	}

	if step.MachineID != "" {
		available, err := s.availableFor(ctx, step, queue, now)
		if err != nil {
			return err
		}
		if available.After(start) {
			start = available
		}
	}

	duration := time.Duration(s.durationMinutes(ctx, step) * float64(time.Minute)).Round(time.Second)
	start = s.hours.Roll(ctx, start)
	end := s.hours.Advance(ctx, start, duration)
	step.SetEstimate(start, end, duration, now)
	return nil
}

// cascade recalculates the pending dependents of step so that no step
// starts before its predecessor ends. A dependent that moves pushes back
// the steps queued behind it on its machine.
func (s *SchedulerService) cascade(ctx context.Context, step *domain.ProductionStep, depth int) error {
	if depth >= maxCascadeDepth {
		s.logger.Warn("Dependent recalculation depth exceeded", "stepId", step.ID)
		return nil
	}
	dependents, err := s.repos.Steps.FindDependents(ctx, step.ID)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		if dep.Status != domain.StepPending {
			continue
		}
		if err := s.estimate(ctx, dep, nil); err != nil {
			return err
		}
		if err := s.repos.Steps.Save(ctx, dep); err != nil {
			return err
		}
		if err := s.cascade(ctx, dep, depth+1); err != nil {
			return err
		}
		if err := s.reflowBehind(ctx, dep, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// reflowBehind recalculates, in queue order, the pending steps queued after
// step on its machine, together with their dependents
func (s *SchedulerService) reflowBehind(ctx context.Context, step *domain.ProductionStep, depth int) error {
	if step.MachineID == "" {
		return nil
	}
	if depth >= maxCascadeDepth {
		s.logger.Warn("Queue recalculation depth exceeded", "stepId", step.ID, "machineId", step.MachineID)
		return nil
	}
	queue, err := s.repos.Steps.FindByMachine(ctx, step.MachineID, activeStatuses...)
	if err != nil {
		return err
	}
	domain.SortQueue(queue)
	for _, st := range queue {
		if st.ID == step.ID || st.Status != domain.StepPending || st.QueuePosition <= step.QueuePosition {
			continue
		}
		if err := s.estimate(ctx, st, queue); err != nil {
			return err
		}
		if err := s.repos.Steps.Save(ctx, st); err != nil {
			return err
		}
		if err := s.cascade(ctx, st, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// CalculateStepTimes projects the start and end of a step. Stored times are
// returned unless force is set. Missing durations fall back to defaults.
func (s *SchedulerService) CalculateStepTimes(ctx context.Context, stepID string, force bool) (dto *StepTimesDTO, err error) {
	ctx, end := s.startSpan(ctx, "CalculateStepTimes", attribute.String("step.id", stepID))
	defer func() { end(err) }()

	step, err := s.repos.Steps.FindByID(ctx, stepID)
	if err != nil {
		return nil, toAppError(err)
	}
	if !force && step.EstimatedStart != nil && step.EstimatedEnd != nil {
		return stepTimes(step, true), nil
	}

	err = s.withStepLock(ctx, step, func(ctx context.Context) error {
		step, err = s.repos.Steps.FindByID(ctx, stepID)
		if err != nil {
			return err
		}
		if err := s.estimate(ctx, step, nil); err != nil {
			return err
		}
		if err := s.repos.Steps.Save(ctx, step); err != nil {
			return err
		}
		if err := s.reflowBehind(ctx, step, 0); err != nil {
			return err
		}
		return s.cascade(ctx, step, 0)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return stepTimes(step, false), nil
}

func stepTimes(step *domain.ProductionStep, cached bool) *StepTimesDTO {
	return &StepTimesDTO{
		StepID:           step.ID,
		EstimatedStart:   *step.EstimatedStart,
		EstimatedEnd:     *step.EstimatedEnd,
		EstimatedMinutes: minutes(step.EstimatedDuration),
		Cached:           cached,
	}
}

// GetMachineAvailableTime returns when the machine runs out of queued work:
// the latest estimated end of its pending and in-progress steps or the end
// of unresolved downtime, whichever is later, and now when idle.
func (s *SchedulerService) GetMachineAvailableTime(ctx context.Context, machineID string) (time.Time, error) {
	if _, err := s.repos.Machines.FindByID(ctx, machineID); err != nil {
		return time.Time{}, toAppError(err)
	}
	queue, err := s.repos.Steps.FindByMachine(ctx, machineID, activeStatuses...)
	if err != nil {
		return time.Time{}, err
	}

	now := s.now()
	latest, busy := domain.LatestEnd(queue)
	downEnd, down, err := s.downtimeEnd(ctx, machineID, now)
	if err != nil {
		return time.Time{}, err
	}
	switch {
	case busy && down:
		if downEnd.After(latest) {
			return downEnd, nil
		}
		return latest, nil
	case busy:
		return latest, nil
	case down:
		return downEnd, nil
	}
	return now, nil
}

// readiness reports, per step, whether its predecessor is completed
func (s *SchedulerService) readiness(ctx context.Context, steps []*domain.ProductionStep) (map[string]bool, error) {
	ready := make(map[string]bool, len(steps))
	preds := make(map[string]*domain.ProductionStep)
	for _, st := range steps {
		if st.DependsOn == "" {
			ready[st.ID] = true
			continue
		}
		pred, ok := preds[st.DependsOn]
		if !ok {
			p, err := s.repos.Steps.FindByID(ctx, st.DependsOn)
			if err != nil && !errors.Is(err, domain.ErrStepNotFound) {
				return nil, err
			}
			pred = p
			preds[st.DependsOn] = p
		}
		ready[st.ID] = st.Ready(pred)
	}
	return ready, nil
}

func (s *SchedulerService) machineQueue(ctx context.Context, m *domain.Machine) (*MachineQueueDTO, error) {
	steps, err := s.repos.Steps.FindByMachine(ctx, m.ID, activeStatuses...)
	if err != nil {
		return nil, err
	}
	domain.SortQueue(steps)
	ready, err := s.readiness(ctx, steps)
	if err != nil {
		return nil, err
	}

	dto := &MachineQueueDTO{
		MachineID:   m.ID,
		MachineName: m.Name,
		MachineType: m.Type,
		Queue:       make([]QueueEntryDTO, 0, len(steps)),
	}
	for _, st := range steps {
		dto.Queue = append(dto.Queue, QueueEntryDTO{StepDTO: ToStepDTO(st), Ready: ready[st.ID]})
		if st.Status == domain.StepInProgress {
			dto.TotalInProgress++
		} else {
			dto.TotalPending++
		}
	}
	return dto, nil
}

// GetMachineQueue lists the machine's unfinished steps by queue position,
// priority and estimated start
func (s *SchedulerService) GetMachineQueue(ctx context.Context, machineID string) (*MachineQueueDTO, error) {
	m, err := s.repos.Machines.FindByID(ctx, machineID)
	if err != nil {
		return nil, toAppError(err)
	}
	return s.machineQueue(ctx, m)
}

// GetAllMachineQueues lists the queues of every active machine
func (s *SchedulerService) GetAllMachineQueues(ctx context.Context) ([]MachineQueueDTO, error) {
	machines, err := s.repos.Machines.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MachineQueueDTO, 0, len(machines))
	for _, m := range machines {
		if !m.IsActive {
			continue
		}
		q, err := s.machineQueue(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, nil
}

// optimize reorders a machine queue; the caller holds the machine lock
func (s *SchedulerService) optimize(ctx context.Context, machineID string) ([]*domain.ProductionStep, error) {
	queue, err := s.repos.Steps.FindByMachine(ctx, machineID, activeStatuses...)
	if err != nil {
		return nil, err
	}
	domain.SortQueue(queue)

	ready, err := s.readiness(ctx, queue)
	if err != nil {
		return nil, err
	}

	deadlines := make(map[string]time.Time)
	far := s.now().Add(farDeadline)
	pending := make([]*domain.ProductionStep, 0, len(queue))
	for _, st := range queue {
		if st.Status == domain.StepInProgress {
			st.QueuePosition = 0
			continue
		}
		pending = append(pending, st)
		if _, ok := deadlines[st.OrderID]; !ok {
			order, err := s.repos.Orders.FindByID(ctx, st.OrderID)
			if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
				return nil, err
			}
			deadlines[st.OrderID] = order.DeadlineOr(far)
		}
	}

	ordered := domain.PlanQueue(pending,
		func(st *domain.ProductionStep) bool { return ready[st.ID] },
		func(st *domain.ProductionStep) time.Time { return deadlines[st.OrderID] },
	)

	if err := s.repos.Steps.SaveAll(ctx, queue); err != nil {
		return nil, err
	}
	for _, st := range ordered {
		if err := s.estimate(ctx, st, queue); err != nil {
			return nil, err
		}
		if err := s.repos.Steps.Save(ctx, st); err != nil {
			return nil, err
		}
	}
	for _, st := range ordered {
		if err := s.cascade(ctx, st, 0); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// OptimizeMachineQueue puts ready steps first by priority and deadline,
// blocked steps after them in their previous order, renumbers positions
// from 1 and recalculates every step's times in the new order. Steps in
// progress keep position 0.
func (s *SchedulerService) OptimizeMachineQueue(ctx context.Context, machineID string) (dto *MachineQueueDTO, err error) {
	ctx, end := s.startSpan(ctx, "OptimizeMachineQueue", attribute.String("machine.id", machineID))
	defer func() { end(err) }()

	m, err := s.repos.Machines.FindByID(ctx, machineID)
	if err != nil {
		return nil, toAppError(err)
	}

	var ordered []*domain.ProductionStep
	err = s.withMachineLock(ctx, machineID, func(ctx context.Context) error {
		ordered, err = s.optimize(ctx, machineID)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(ordered))
		for _, st := range ordered {
			ids = append(ids, st.ID)
		}
		return s.events.Record(ctx, &domain.QueueOptimizedEvent{MachineID: machineID, StepIDs: ids})
	})
	s.metrics.RecordQueueOptimization(machineID, err == nil)
	if err != nil {
		s.logger.WithError(err).Warn("Queue optimization failed", "machineId", machineID)
		return nil, toAppError(err)
	}

	s.logger.Info("Optimized machine queue", "machineId", machineID, "steps", len(ordered))
	return s.machineQueue(ctx, m)
}

// assign appends step to the machine queue; the caller holds the machine
// lock
func (s *SchedulerService) assign(ctx context.Context, step *domain.ProductionStep, machineID string) error {
	queue, err := s.repos.Steps.FindByMachine(ctx, machineID, activeStatuses...)
	if err != nil {
		return err
	}
	others := make([]*domain.ProductionStep, 0, len(queue))
	for _, st := range queue {
		if st.ID != step.ID {
			others = append(others, st)
		}
	}

	step.MachineID = machineID
	step.QueuePosition = domain.NextPosition(others)
	if err := s.estimate(ctx, step, others); err != nil {
		return err
	}
	if err := s.repos.Steps.Save(ctx, step); err != nil {
		return err
	}
	if err := s.cascade(ctx, step, 0); err != nil {
		return err
	}
	return s.events.Record(ctx, &domain.StepAssignedEvent{
		StepID:         step.ID,
		OrderID:        step.OrderID,
		MachineID:      machineID,
		QueuePosition:  step.QueuePosition,
		EstimatedStart: step.EstimatedStart,
		EstimatedEnd:   step.EstimatedEnd,
	})
}

// AssignToMachine appends a pending step to the end of a machine's queue
// and calculates its times
func (s *SchedulerService) AssignToMachine(ctx context.Context, stepID, machineID string) (dto *StepDTO, err error) {
	ctx, end := s.startSpan(ctx, "AssignToMachine",
		attribute.String("step.id", stepID),
		attribute.String("machine.id", machineID),
	)
	defer func() { end(err) }()

	m, err := s.repos.Machines.FindByID(ctx, machineID)
	if err != nil {
		return nil, toAppError(err)
	}
	if !m.IsActive {
		return nil, toAppError(domain.ErrMachineInactive)
	}
	if _, err := s.repos.Steps.FindByID(ctx, stepID); err != nil {
		return nil, toAppError(err)
	}

	var step *domain.ProductionStep
	err = s.withMachineLock(ctx, machineID, func(ctx context.Context) error {
		step, err = s.repos.Steps.FindByID(ctx, stepID)
		if err != nil {
			return err
		}
		if step.Status != domain.StepPending {
			return domain.ErrInvalidTransition
		}
		return s.assign(ctx, step, machineID)
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Info("Assigned step to machine",
		"stepId", step.ID,
		"machineId", machineID,
		"queuePosition", step.QueuePosition,
	)
	out := ToStepDTO(step)
	return &out, nil
}

// ReassignStep moves a pending step to another machine and re-optimizes
// both queues
func (s *SchedulerService) ReassignStep(ctx context.Context, stepID, machineID string) (*StepDTO, error) {
	step, err := s.repos.Steps.FindByID(ctx, stepID)
	if err != nil {
		return nil, toAppError(err)
	}
	previous := step.MachineID

	if _, err := s.AssignToMachine(ctx, stepID, machineID); err != nil {
		return nil, err
	}
	if previous != "" && previous != machineID {
		if _, err := s.OptimizeMachineQueue(ctx, previous); err != nil {
			return nil, err
		}
	}
	if _, err := s.OptimizeMachineQueue(ctx, machineID); err != nil {
		return nil, err
	}

	step, err = s.repos.Steps.FindByID(ctx, stepID)
	if err != nil {
		return nil, toAppError(err)
	}
	out := ToStepDTO(step)
	return &out, nil
}

// SetStepPriority changes a step's priority and re-optimizes its machine
// queue
func (s *SchedulerService) SetStepPriority(ctx context.Context, stepID string, priority int) (*StepDTO, error) {
	if err := domain.ValidatePriority(priority); err != nil {
		return nil, toAppError(err)
	}
	step, err := s.repos.Steps.FindByID(ctx, stepID)
	if err != nil {
		return nil, toAppError(err)
	}

	err = s.withStepLock(ctx, step, func(ctx context.Context) error {
		step, err = s.repos.Steps.FindByID(ctx, stepID)
		if err != nil {
			return err
		}
		step.Priority = priority
		step.UpdatedAt = s.now()
		return s.repos.Steps.Save(ctx, step)
	})
	if err != nil {
		return nil, toAppError(err)
	}

	if step.MachineID != "" {
		if _, err := s.OptimizeMachineQueue(ctx, step.MachineID); err != nil {
			return nil, err
		}
		if step, err = s.repos.Steps.FindByID(ctx, stepID); err != nil {
			return nil, toAppError(err)
		}
	}
	out := ToStepDTO(step)
	return &out, nil
}

// routing returns the template routing, or the configured default chain
func (s *SchedulerService) routing(ctx context.Context, templateID string) ([]domain.RoutingEntry, error) {
	if templateID != "" {
		tmpl, err := s.repos.Templates.FindByID(ctx, templateID)
		if err != nil {
			return nil, err
		}
		if len(tmpl.Routing) > 0 {
			return tmpl.Routing, nil
		}
	}
	entries := make([]domain.RoutingEntry, 0, len(s.cfg.DefaultRouting))
	for _, kind := range s.cfg.DefaultRouting {
		rc := s.cfg.Routing[kind]
		entries = append(entries, domain.RoutingEntry{
			Kind:           kind,
			MachineType:    rc.MachineType,
			MinutesPerUnit: rc.MinutesPerUnit,
			SetupMinutes:   rc.SetupMinutes,
			PerSheet:       rc.PerSheet,
		})
	}
	return entries, nil
}

// ScheduleOrderProduction creates one step per routing entry, each
// depending on the one before, and queues every step on the first active
// machine of the required type. An order that already has steps is left
// as it is.
func (s *SchedulerService) ScheduleOrderProduction(ctx context.Context, cmd ScheduleOrderCommand) (dto *OrderScheduleDTO, err error) {
	ctx, end := s.startSpan(ctx, "ScheduleOrderProduction", attribute.String("order.id", cmd.OrderID))
	defer func() { end(err) }()

	if cmd.OrderID == "" {
		return nil, apperrors.ErrValidation("orderId is required")
	}
	if cmd.Quantity <= 0 {
		return nil, toAppError(domain.ErrInvalidOrder)
	}
	if cmd.Priority == 0 {
		cmd.Priority = domain.DefaultPriority
	}
	if err := domain.ValidatePriority(cmd.Priority); err != nil {
		return nil, toAppError(err)
	}

	dto = &OrderScheduleDTO{OrderID: cmd.OrderID}
	err = lock.WithLock(ctx, s.locker, lock.EntityOrder, cmd.OrderID, s.holder(ctx), s.lockOpts, func(ctx context.Context) error {
		existing, err := s.repos.Steps.FindByOrder(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			dto.Steps = ToStepDTOs(existing)
			return nil
		}

		entries, err := s.routing(ctx, cmd.TemplateID)
		if err != nil {
			return err
		}
		machines, err := s.repos.Machines.FindAll(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		steps := make([]*domain.ProductionStep, 0, len(entries))
		targets := make([]string, 0, len(entries))
		events := make([]outbox.DomainEvent, 0, len(entries))
		var previous *domain.ProductionStep
		for i, e := range entries {
			st := domain.NewProductionStep(cmd.OrderID, e.Kind, i+1, cmd.Priority, cmd.Quantity, cmd.Sheets, e.PerSheet, now)
			if previous != nil {
				st.DependsOn = previous.ID
			}
			machineID := firstActiveOfType(machines, e.MachineType)
			steps = append(steps, st)
			targets = append(targets, machineID)
			events = append(events, &domain.StepScheduledEvent{
				StepID:    st.ID,
				OrderID:   st.OrderID,
				Kind:      st.Kind,
				DependsOn: st.DependsOn,
				MachineID: machineID,
			})
			previous = st
		}

		// target machines are locked before anything is written
		err = s.withMachineLocks(ctx, targets, func(ctx context.Context) error {
			return s.repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
				if err := s.repos.Orders.Save(ctx, &domain.Order{
					ID:         cmd.OrderID,
					Quantity:   cmd.Quantity,
					Sheets:     cmd.Sheets,
					Priority:   cmd.Priority,
					Deadline:   cmd.Deadline,
					TemplateID: cmd.TemplateID,
					CreatedAt:  now,
				}); err != nil {
					return err
				}
				if err := s.repos.Steps.SaveAll(ctx, steps); err != nil {
					return err
				}
				if err := s.events.Record(ctx, events...); err != nil {
					return err
				}
				for i, st := range steps {
					if targets[i] != "" {
						if err := s.assign(ctx, st, targets[i]); err != nil {
							return err
						}
						continue
					}
					if err := s.estimate(ctx, st, nil); err != nil {
						return err
					}
					if err := s.repos.Steps.Save(ctx, st); err != nil {
						return err
					}
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
		for _, st := range steps {
			s.metrics.RecordStepScheduled(st.Kind)
		}

		dto.Created = true
		dto.Steps = ToStepDTOs(steps)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to schedule order", "orderId", cmd.OrderID)
		return nil, toAppError(err)
	}

	if dto.Created {
		s.logger.Info("Scheduled order production", "orderId", cmd.OrderID, "steps", len(dto.Steps))
	}
	return dto, nil
}

func firstActiveOfType(machines []*domain.Machine, machineType string) string {
	for _, m := range machines {
		if m.IsActive && m.MatchesType(machineType) {
			return m.ID
		}
	}
	return ""
}

// GetOrderSteps lists an order's steps in routing sequence
func (s *SchedulerService) GetOrderSteps(ctx context.Context, orderID string) ([]StepDTO, error) {
	steps, err := s.repos.Steps.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, toAppError(domain.ErrOrderNotFound)
	}
	return ToStepDTOs(steps), nil
}

// StartStep records that work on a ready step has begun
func (s *SchedulerService) StartStep(ctx context.Context, stepID string) (dto *StepDTO, err error) {
	ctx, end := s.startSpan(ctx, "StartStep", attribute.String("step.id", stepID))
	defer func() { end(err) }()

	step, err := s.repos.Steps.FindByID(ctx, stepID)
	if err != nil {
		return nil, toAppError(err)
	}

	err = s.withStepLock(ctx, step, func(ctx context.Context) error {
		step, err = s.repos.Steps.FindByID(ctx, stepID)
		if err != nil {
			return err
		}
		ready, err := s.readiness(ctx, []*domain.ProductionStep{step})
		if err != nil {
			return err
		}
		if !ready[step.ID] {
			return domain.ErrStepBlocked
		}
		now := s.now()
		if err := step.Start(now); err != nil {
			return err
		}
		if err := s.repos.Steps.Save(ctx, step); err != nil {
			return err
		}
		return s.events.Record(ctx, &domain.StepStartedEvent{
			StepID:    step.ID,
			OrderID:   step.OrderID,
			MachineID: step.MachineID,
			StartedAt: now,
		})
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Info("Started step", "stepId", step.ID, "orderId", step.OrderID, "machineId", step.MachineID)
	out := ToStepDTO(step)
	return &out, nil
}

// CompleteStep records that a step has finished and refreshes the
// estimates of its dependent
func (s *SchedulerService) CompleteStep(ctx context.Context, stepID string) (dto *StepDTO, err error) {
	ctx, end := s.startSpan(ctx, "CompleteStep", attribute.String("step.id", stepID))
	defer func() { end(err) }()

	step, err := s.repos.Steps.FindByID(ctx, stepID)
	if err != nil {
		return nil, toAppError(err)
	}

	err = s.withStepLock(ctx, step, func(ctx context.Context) error {
		step, err = s.repos.Steps.FindByID(ctx, stepID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := step.Complete(now); err != nil {
			return err
		}
		if err := s.repos.Steps.Save(ctx, step); err != nil {
			return err
		}
		if err := s.cascade(ctx, step, 0); err != nil {
			return err
		}
		worked, _ := step.ActualDuration()
		return s.events.Record(ctx, &domain.StepCompletedEvent{
			StepID:      step.ID,
			OrderID:     step.OrderID,
			MachineID:   step.MachineID,
			CompletedAt: now,
			Minutes:     worked.Minutes(),
		})
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.Info("Completed step", "stepId", step.ID, "orderId", step.OrderID, "machineId", step.MachineID)
	out := ToStepDTO(step)
	return &out, nil
}

// GetProductionAnalytics counts steps by state across all machines
func (s *SchedulerService) GetProductionAnalytics(ctx context.Context) (*AnalyticsDTO, error) {
	steps, err := s.repos.Steps.FindByStatus(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	loc := s.hours.Location()
	ty, tm, td := now.In(loc).Date()

	dto := &AnalyticsDTO{Timestamp: now}
	var total time.Duration
	completed := 0
	for _, st := range steps {
		switch st.Status {
		case domain.StepPending:
			dto.TotalPending++
		case domain.StepInProgress:
			dto.TotalInProgress++
		case domain.StepCompleted:
			if st.ActualEnd != nil {
				y, m, d := st.ActualEnd.In(loc).Date()
				if y == ty && m == tm && d == td {
					dto.TotalCompletedToday++
				}
			}
			if worked, ok := st.ActualDuration(); ok {
				total += worked
				completed++
			}
		}
		if st.Active() && st.EstimatedEnd != nil && st.EstimatedEnd.Before(now) {
			dto.LateSteps++
		}
	}
	if completed > 0 {
		dto.AverageDurationMinutes = total.Minutes() / float64(completed)
	}
	return dto, nil
}

// EstimateOrderCompletion projects when an order's last step ends and
// suggests a deadline a configured number of working days later
func (s *SchedulerService) EstimateOrderCompletion(ctx context.Context, orderID string) (*CompletionEstimateDTO, error) {
	order, err := s.repos.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, toAppError(err)
	}
	steps, err := s.repos.Steps.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	dto := &CompletionEstimateDTO{OrderID: orderID, Deadline: order.Deadline}
	var completion time.Time
	for _, st := range steps {
		finish := st.FinishTime()
		if finish == nil {
			dto.UnscheduledSteps++
			continue
		}
		if finish.After(completion) {
			completion = *finish
		}
	}
	if completion.IsZero() {
		return dto, nil
	}
	dto.EstimatedCompletion = &completion

	suggested, err := s.hours.Calendar().AddWorkingDays(ctx, completion, s.cfg.DeadlineBufferDays)
	if err != nil {
		s.logger.WithError(err).Warn("Working calendar unavailable, using calendar days", "orderId", orderID)
		suggested = completion.AddDate(0, 0, s.cfg.DeadlineBufferDays)
	}
	dto.SuggestedDeadline = &suggested

	if order.Deadline != nil {
		onTime := !completion.After(*order.Deadline)
		dto.OnTime = &onTime
	}
	return dto, nil
}

// ReportDowntime opens a downtime window and re-plans the machine queue
func (s *SchedulerService) ReportDowntime(ctx context.Context, cmd ReportDowntimeCommand) (*DowntimeDTO, error) {
	if _, err := s.repos.Machines.FindByID(ctx, cmd.MachineID); err != nil {
		return nil, toAppError(err)
	}

	var downtime *domain.MachineDowntime
	err := s.withMachineLock(ctx, cmd.MachineID, func(ctx context.Context) error {
		downtime = domain.NewMachineDowntime(cmd.MachineID, cmd.Reason, s.now(), cmd.ExpectedEnd)
		if err := s.repos.Downtimes.Save(ctx, downtime); err != nil {
			return err
		}
		return s.events.Record(ctx, &domain.DowntimeChangedEvent{
			DowntimeID:  downtime.ID,
			MachineID:   downtime.MachineID,
			Reason:      downtime.Reason,
			ExpectedEnd: downtime.ExpectedEnd,
		})
	})
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Warn("Machine downtime reported", "machineId", cmd.MachineID, "reason", cmd.Reason)

	if _, err := s.OptimizeMachineQueue(ctx, cmd.MachineID); err != nil {
		return nil, err
	}
	return ToDowntimeDTO(downtime), nil
}

// ResolveDowntime closes a downtime window and re-plans the machine queue
func (s *SchedulerService) ResolveDowntime(ctx context.Context, downtimeID string) (*DowntimeDTO, error) {
	downtime, err := s.repos.Downtimes.FindByID(ctx, downtimeID)
	if err != nil {
		return nil, toAppError(err)
	}

	err = s.withMachineLock(ctx, downtime.MachineID, func(ctx context.Context) error {
		downtime, err = s.repos.Downtimes.FindByID(ctx, downtimeID)
		if err != nil {
			return err
		}
		if downtime.Resolved {
			return nil
		}
		downtime.Resolve(s.now())
		if err := s.repos.Downtimes.Save(ctx, downtime); err != nil {
			return err
		}
		return s.events.Record(ctx, &domain.DowntimeChangedEvent{
			DowntimeID: downtime.ID,
			MachineID:  downtime.MachineID,
			Resolved:   true,
		})
	})
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Info("Machine downtime resolved", "machineId", downtime.MachineID, "downtimeId", downtime.ID)

	if _, err := s.OptimizeMachineQueue(ctx, downtime.MachineID); err != nil {
		return nil, err
	}
	return ToDowntimeDTO(downtime), nil
}

// RegisterMachine creates or updates a machine
func (s *SchedulerService) RegisterMachine(ctx context.Context, cmd RegisterMachineCommand) (*MachineDTO, error) {
	if cmd.Name == "" || cmd.Type == "" {
		return nil, apperrors.ErrValidation("name and type are required")
	}
	if cmd.MinutesPerUnit < 0 || cmd.SetupMinutes < 0 || cmd.HourlyRate < 0 {
		return nil, apperrors.ErrValidation("rates must not be negative")
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	active := true
	if cmd.IsActive != nil {
		active = *cmd.IsActive
	}

	m := &domain.Machine{
		ID:             cmd.ID,
		Name:           cmd.Name,
		Type:           cmd.Type,
		HourlyRate:     cmd.HourlyRate,
		SetupMinutes:   cmd.SetupMinutes,
		MinutesPerUnit: cmd.MinutesPerUnit,
		IsActive:       active,
		CreatedAt:      s.now(),
	}
	if err := s.repos.Machines.Save(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "register", "machine", m.ID, logging.HolderFromContext(ctx, "system"))
	return ToMachineDTO(m), nil
}

// ListMachines returns machines, optionally only the active ones
func (s *SchedulerService) ListMachines(ctx context.Context, activeOnly bool) ([]*MachineDTO, error) {
	machines, err := s.repos.Machines.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*MachineDTO, 0, len(machines))
	for _, m := range machines {
		if activeOnly && !m.IsActive {
			continue
		}
		out = append(out, ToMachineDTO(m))
	}
	return out, nil
}

// RegisterTemplate creates or updates a product template
func (s *SchedulerService) RegisterTemplate(ctx context.Context, cmd RegisterTemplateCommand) (*TemplateDTO, error) {
	if cmd.ID == "" {
		return nil, apperrors.ErrValidation("template id is required")
	}
	for i, e := range cmd.Routing {
		if e.Kind == "" {
			return nil, apperrors.ErrValidation("routing entry kind is required").WithDetail("index", strconv.Itoa(i))
		}
		if e.MinutesPerUnit < 0 || e.SetupMinutes < 0 {
			return nil, apperrors.ErrValidation("routing norms must not be negative").WithDetail("kind", e.Kind)
		}
	}

	t := &domain.ProductTemplate{ID: cmd.ID, Name: cmd.Name, Routing: cmd.Routing}
	if err := s.repos.Templates.Save(ctx, t); err != nil {
		return nil, err
	}
	return ToTemplateDTO(t), nil
}
