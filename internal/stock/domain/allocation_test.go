package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func batch(t *testing.T, number string, qty string, receivedAt time.Time) *MaterialBatch {
	t.Helper()
	b, err := NewMaterialBatch("paper-80", number, "sup-1", dec(qty), dec("1"), receivedAt)
	require.NoError(t, err)
	return b
}

func TestAllocateFIFO_OldestFirst(t *testing.T) {
	newer := batch(t, "B2", "100", t0.Add(24*time.Hour))
	older := batch(t, "B1", "20", t0)

	allocs, err := AllocateFIFO("paper-80", []*MaterialBatch{newer, older}, nil, dec("30"))

	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, older.ID, allocs[0].Batch.ID)
	assert.True(t, allocs[0].Quantity.Equal(dec("20")))
	assert.Equal(t, newer.ID, allocs[1].Batch.ID)
	assert.True(t, allocs[1].Quantity.Equal(dec("10")))
}

func TestAllocateFIFO_TieBrokenByBatchNumber(t *testing.T) {
	b := batch(t, "B-0002", "10", t0)
	a := batch(t, "B-0001", "10", t0)

	allocs, err := AllocateFIFO("paper-80", []*MaterialBatch{b, a}, nil, dec("5"))

	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, a.ID, allocs[0].Batch.ID)
}

func TestAllocateFIFO_SkipsReservedAndIneligible(t *testing.T) {
	reservedFull := batch(t, "B1", "10", t0)
	blocked := batch(t, "B2", "50", t0.Add(time.Hour))
	blocked.SetQuality(QualityBlocked, t0)
	inactive := batch(t, "B3", "50", t0.Add(2*time.Hour))
	inactive.IsActive = false
	open := batch(t, "B4", "40", t0.Add(3*time.Hour))

	reserved := map[string]decimal.Decimal{reservedFull.ID: dec("10"), open.ID: dec("15")}

	allocs, err := AllocateFIFO("paper-80", []*MaterialBatch{reservedFull, blocked, inactive, open}, reserved, dec("25"))

	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, open.ID, allocs[0].Batch.ID)
	assert.True(t, allocs[0].Quantity.Equal(dec("25")))
}

func TestAllocateFIFO_InsufficientCarriesShortfall(t *testing.T) {
	b1 := batch(t, "B1", "20", t0)
	b2 := batch(t, "B2", "5.5", t0.Add(time.Hour))

	allocs, err := AllocateFIFO("paper-80", []*MaterialBatch{b1, b2}, nil, dec("30"))

	assert.Nil(t, allocs)
	require.ErrorIs(t, err, ErrInsufficientStock)
	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Available.Equal(dec("25.5")))
	assert.True(t, insufficient.Shortfall.Equal(dec("4.5")))
}

func TestAllocateFIFO_RejectsNonPositive(t *testing.T) {
	_, err := AllocateFIFO("paper-80", nil, nil, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMaterialBatch_Decrement(t *testing.T) {
	b := batch(t, "B1", "10", t0)

	require.NoError(t, b.Decrement(dec("4"), t0))
	assert.True(t, b.CurrentQuantity.Equal(dec("6")))
	assert.True(t, b.IsActive)

	require.NoError(t, b.Decrement(dec("6"), t0))
	assert.True(t, b.CurrentQuantity.IsZero())
	assert.False(t, b.IsActive, "emptied batch is deactivated")
	assert.True(t, b.Consumed().Equal(dec("10")))

	err := b.Decrement(dec("1"), t0)
	assert.ErrorIs(t, err, ErrLedgerInvariant)
	assert.True(t, b.CurrentQuantity.IsZero(), "failed decrement leaves the batch untouched")
}

func TestReservation_Lifecycle(t *testing.T) {
	r := NewReservation("order-1", "paper-80", "batch-1", dec("5"), t0)

	require.NoError(t, r.CanRelease())
	require.NoError(t, r.MarkConsumed(t0))
	assert.ErrorIs(t, r.MarkConsumed(t0.Add(time.Minute)), ErrDoubleConsumption)
	assert.Equal(t, t0, *r.ConsumedAt)
	assert.ErrorIs(t, r.CanRelease(), ErrReservationConsumed)
}

func TestParseQualityStatus(t *testing.T) {
	q, err := ParseQualityStatus("Quarantine")
	require.NoError(t, err)
	assert.Equal(t, QualityQuarantine, q)

	_, err = ParseQualityStatus("damaged")
	assert.ErrorIs(t, err, ErrInvalidQualityStatus)
}
