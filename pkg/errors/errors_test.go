package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_WrapAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	appErr := ErrInternal("").Wrap(cause)

	assert.Equal(t, CodeInternalError, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	assert.ErrorIs(t, appErr, cause)
	assert.Contains(t, appErr.Error(), "disk full")
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	notFound := ErrNotFoundWithID("machine", "m-1")
	wrapped := fmt.Errorf("lookup: %w", notFound)
	got := FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeNotFound, got.Code)
	assert.Equal(t, "m-1", got.Details["id"])

	plain := FromError(errors.New("boom"))
	assert.Equal(t, CodeInternalError, plain.Code)
}

func TestPlanningErrors(t *testing.T) {
	stock := ErrInsufficientStock("paper", "150", "120", "30")
	assert.Equal(t, http.StatusConflict, stock.HTTPStatus)
	assert.Equal(t, "30", stock.Details["shortfall"])

	lock := ErrLockConflict("machine m-1", "alice", "2024-01-01T10:00:00Z")
	assert.Equal(t, http.StatusLocked, lock.HTTPStatus)
	assert.Equal(t, "alice", lock.Details["holder"])

	assert.True(t, HasCode(fmt.Errorf("x: %w", ErrDoubleConsumption("r-1")), CodeDoubleConsumption))
	assert.False(t, HasCode(errors.New("x"), CodeDoubleConsumption))
}
