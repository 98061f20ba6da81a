package layout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestConsumptionEstimates(t *testing.T) {
	paper, err := PaperArea(20, 30, 100, DefaultPaperWastePct)
	require.NoError(t, err)
	assertDecimal(t, "6", paper.Base)
	assertDecimal(t, "0.3", paper.Waste)
	assertDecimal(t, "6.3", paper.Total)
	assert.Equal(t, "m2", paper.Unit)

	ink, err := Ink(4, 1000)
	require.NoError(t, err)
	assertDecimal(t, "10000", ink.Base)
	assertDecimal(t, "11000", ink.Total)

	lacquer, err := Lacquer(0.5, 100)
	require.NoError(t, err)
	assertDecimal(t, "750", lacquer.Base)
	assertDecimal(t, "810", lacquer.Total)

	glue, err := Adhesive(30, 200)
	require.NoError(t, err)
	assertDecimal(t, "3000", glue.Base)
	assertDecimal(t, "3300", glue.Total)
}

func TestConsumption_RejectsBadInput(t *testing.T) {
	_, err := PaperArea(0, 30, 1, DefaultPaperWastePct)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = Ink(0, 10)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = Lacquer(1, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = Adhesive(-1, 10)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSheetsArea(t *testing.T) {
	r := LayoutResult{Format: SheetFormat{Name: "70x100", Width: 70, Height: 100}, SheetsNeeded: 12}
	assertDecimal(t, "8.4", SheetsArea(r))
}
