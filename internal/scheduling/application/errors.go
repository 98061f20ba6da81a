package application

import (
	"errors"
	"time"

	"github.com/marimovDEV/tipografiya/internal/scheduling/domain"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/lock"
)

// toAppError maps scheduling and lock errors onto API error codes
func toAppError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}

	var conflict *lock.ConflictError
	switch {
	case errors.As(err, &conflict):
		return apperrors.ErrLockConflict(
			lock.Key(conflict.EntityType, conflict.EntityID),
			conflict.Holder,
			conflict.ExpiresAt.UTC().Format(time.RFC3339),
		).Wrap(err)
	case errors.Is(err, domain.ErrStepNotFound):
		return apperrors.ErrNotFound("production step").Wrap(err)
	case errors.Is(err, domain.ErrMachineNotFound):
		return apperrors.ErrNotFound("machine").Wrap(err)
	case errors.Is(err, domain.ErrOrderNotFound):
		return apperrors.ErrNotFound("order").Wrap(err)
	case errors.Is(err, domain.ErrTemplateNotFound):
		return apperrors.ErrNotFound("product template").Wrap(err)
	case errors.Is(err, domain.ErrDowntimeNotFound):
		return apperrors.ErrNotFound("machine downtime").Wrap(err)
	case errors.Is(err, domain.ErrInvalidPriority), errors.Is(err, domain.ErrInvalidOrder):
		return apperrors.ErrValidation(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStepBlocked),
		errors.Is(err, domain.ErrMachineInactive):
		return apperrors.ErrConflict(err.Error()).Wrap(err)
	}
	return err
}
