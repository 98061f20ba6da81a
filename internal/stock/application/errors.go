package application

import (
	"errors"
	"net/http"
	"time"

	"github.com/marimovDEV/tipografiya/internal/stock/domain"
	apperrors "github.com/marimovDEV/tipografiya/pkg/errors"
	"github.com/marimovDEV/tipografiya/pkg/lock"
)

// toAppError maps ledger and lock errors onto API error codes. The domain
// error stays reachable through errors.Is.
func toAppError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}

	var insufficient *domain.InsufficientStockError
	var conflict *lock.ConflictError
	switch {
	case errors.As(err, &insufficient):
		return apperrors.ErrInsufficientStock(
			insufficient.MaterialID,
			insufficient.Requested.String(),
			insufficient.Available.String(),
			insufficient.Shortfall.String(),
		).Wrap(err)
	case errors.As(err, &conflict):
		return apperrors.ErrLockConflict(
			lock.Key(conflict.EntityType, conflict.EntityID),
			conflict.Holder,
			conflict.ExpiresAt.UTC().Format(time.RFC3339),
		).Wrap(err)
	case errors.Is(err, domain.ErrDoubleConsumption):
		return apperrors.NewAppError(apperrors.CodeDoubleConsumption, err.Error(), http.StatusConflict).Wrap(err)
	case errors.Is(err, domain.ErrReservationConsumed):
		return apperrors.ErrConflict(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrLedgerInvariant):
		return apperrors.ErrLedgerInvariant(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrMaterialNotFound):
		return apperrors.ErrNotFound("material").Wrap(err)
	case errors.Is(err, domain.ErrBatchNotFound):
		return apperrors.ErrNotFound("batch").Wrap(err)
	case errors.Is(err, domain.ErrReservationNotFound):
		return apperrors.ErrNotFound("reservation").Wrap(err)
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidQualityStatus):
		return apperrors.ErrValidation(err.Error()).Wrap(err)
	}
	return err
}

// outcome labels an operation result for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, lock.ErrLockConflict):
		return "locked"
	case errors.Is(err, domain.ErrDoubleConsumption), errors.Is(err, domain.ErrReservationConsumed):
		return "rejected"
	}
	return "error"
}
