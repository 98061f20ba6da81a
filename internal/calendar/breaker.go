package calendar

import (
	"context"
	"time"

	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/resilience"
)

// BreakerCalendar guards a remote calendar with a circuit breaker and
// answers from fallback while the remote side fails.
type BreakerCalendar struct {
	remote   WorkingCalendar
	fallback WorkingCalendar
	breaker  *resilience.CircuitBreaker
	logger   *logging.Logger
}

// NewBreakerCalendar wraps remote. A nil fallback means EveryDay.
func NewBreakerCalendar(remote, fallback WorkingCalendar, breaker *resilience.CircuitBreaker, logger *logging.Logger) *BreakerCalendar {
	if fallback == nil {
		fallback = EveryDay{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BreakerCalendar{remote: remote, fallback: fallback, breaker: breaker, logger: logger.WithComponent("calendar-breaker")}
}

func (b *BreakerCalendar) degrade(op string, err error) {
	b.logger.WithError(err).Warn("Remote calendar failed, using fallback", "operation", op, "breaker", b.breaker.Name())
}

func (b *BreakerCalendar) IsWorkingInstant(ctx context.Context, t time.Time) (bool, error) {
	res, err := b.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.remote.IsWorkingInstant(ctx, t)
	})
	if err != nil {
		b.degrade("IsWorkingInstant", err)
		return b.fallback.IsWorkingInstant(ctx, t)
	}
	return res.(bool), nil
}

func (b *BreakerCalendar) AddWorkingHours(ctx context.Context, from time.Time, hours float64) (time.Time, error) {
	res, err := b.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.remote.AddWorkingHours(ctx, from, hours)
	})
	if err != nil {
		b.degrade("AddWorkingHours", err)
		return b.fallback.AddWorkingHours(ctx, from, hours)
	}
	return res.(time.Time), nil
}

func (b *BreakerCalendar) AddWorkingDays(ctx context.Context, from time.Time, days int) (time.Time, error) {
	res, err := b.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.remote.AddWorkingDays(ctx, from, days)
	})
	if err != nil {
		b.degrade("AddWorkingDays", err)
		return b.fallback.AddWorkingDays(ctx, from, days)
	}
	return res.(time.Time), nil
}
