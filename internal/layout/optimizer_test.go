package layout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gap(v float64) *float64 { return &v }

func TestBestLayout_SingleFormatScenario(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())

	plan, err := opt.BestLayout(Request{
		ItemWidth:  20,
		ItemHeight: 30,
		Quantity:   100,
		Gap:        gap(0),
		Formats:    []SheetFormat{{Name: "70x100", Width: 70, Height: 100}},
	})
	require.NoError(t, err)

	r := plan.Recommended
	assert.Equal(t, "70x100", r.Format.Name)
	assert.Equal(t, 3, r.Cols)
	assert.Equal(t, 3, r.Rows)
	assert.Equal(t, 9, r.ItemsPerSheet)
	assert.Equal(t, OrientationNormal, r.Orientation)
	assert.Equal(t, 12, r.SheetsNeeded)
	assert.Equal(t, 28.57, r.WastePercent)
	assert.Equal(t, 22.86, r.SheetWastePercent)
	assert.Equal(t, 84000.0, r.TotalArea)
	assert.Equal(t, 60000.0, r.UsedArea)
	assert.Empty(t, plan.Alternatives)
}

func TestBestLayout_RanksCatalogByWaste(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())

	plan, err := opt.BestLayout(Request{ItemWidth: 20, ItemHeight: 30, Quantity: 100, Gap: gap(0)})
	require.NoError(t, err)

	assert.Equal(t, "62x94", plan.Recommended.Format.Name)
	assert.Equal(t, 14.21, plan.Recommended.WastePercent)

	names := make([]string, 0, len(plan.Alternatives))
	for _, a := range plan.Alternatives {
		names = append(names, a.Format.Name)
	}
	assert.Equal(t, []string{"47x65", "70x100", "52x72"}, names)
}

func TestBestLayout_Rotation(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())
	formats := []SheetFormat{{Name: "70x100", Width: 70, Height: 100}}

	rotated, err := opt.BestLayout(Request{ItemWidth: 45, ItemHeight: 10, Quantity: 50, Gap: gap(0), Formats: formats})
	require.NoError(t, err)
	assert.Equal(t, OrientationRotated, rotated.Recommended.Orientation)
	assert.Equal(t, 12, rotated.Recommended.ItemsPerSheet)
	assert.Equal(t, 5, rotated.Recommended.SheetsNeeded)

	normal, err := opt.BestLayout(Request{ItemWidth: 10, ItemHeight: 45, Quantity: 50, Gap: gap(0), Formats: formats})
	require.NoError(t, err)
	assert.Equal(t, OrientationNormal, normal.Recommended.Orientation)
	assert.Equal(t, 12, normal.Recommended.ItemsPerSheet)
}

func TestBestLayout_ForcedFormat(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())

	plan, err := opt.BestLayout(Request{ItemWidth: 20, ItemHeight: 30, Quantity: 100, Gap: gap(0), ForcedFormat: "52x72"})
	require.NoError(t, err)
	assert.Equal(t, "52x72", plan.Recommended.Format.Name)
	assert.Equal(t, 25, plan.Recommended.SheetsNeeded)

	_, err = opt.BestLayout(Request{ItemWidth: 20, ItemHeight: 30, Quantity: 100, ForcedFormat: "A4"})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestBestLayout_Infeasible(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())

	plan, err := opt.BestLayout(Request{ItemWidth: 80, ItemHeight: 120, Quantity: 10})
	assert.Nil(t, plan)
	require.ErrorIs(t, err, ErrInfeasibleLayout)

	var infeasible *InfeasibleLayoutError
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, 80.0, infeasible.ItemWidth)
	assert.Len(t, infeasible.Formats, 4)
}

func TestBestLayout_InvalidRequest(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())

	tests := []struct {
		name string
		req  Request
	}{
		{name: "zero width", req: Request{ItemWidth: 0, ItemHeight: 10, Quantity: 1}},
		{name: "negative height", req: Request{ItemWidth: 10, ItemHeight: -1, Quantity: 1}},
		{name: "zero quantity", req: Request{ItemWidth: 10, ItemHeight: 10}},
		{name: "negative gap", req: Request{ItemWidth: 10, ItemHeight: 10, Quantity: 1, Gap: gap(-0.1)}},
		{name: "bad format", req: Request{ItemWidth: 10, ItemHeight: 10, Quantity: 1, Formats: []SheetFormat{{Name: "x", Width: 0, Height: 10}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opt.BestLayout(tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestBestLayout_FeasibleBelowPrintableArea(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())
	formats := []SheetFormat{{Name: "70x100", Width: 70, Height: 100}}

	for w := 1.0; w <= 69; w += 4 {
		for h := 1.0; h <= 98; h += 7 {
			plan, err := opt.BestLayout(Request{ItemWidth: w, ItemHeight: h, Quantity: 10, Gap: gap(0), Formats: formats})
			require.NoError(t, err, "item %vx%v", w, h)
			assert.GreaterOrEqual(t, plan.Recommended.ItemsPerSheet, 1)
		}
	}
}

func TestBestLayout_SheetsMonotonicInQuantity(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())

	prev := 0
	for qty := 1; qty <= 500; qty += 7 {
		plan, err := opt.BestLayout(Request{ItemWidth: 9, ItemHeight: 13, Quantity: qty, ForcedFormat: "47x65"})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, plan.Recommended.SheetsNeeded, prev)
		prev = plan.Recommended.SheetsNeeded
	}
}

func TestBestLayout_WasteBounds(t *testing.T) {
	opt := NewOptimizer(DefaultConfig())

	for _, dims := range [][2]float64{{5, 5}, {9.9, 14.8}, {21, 29.7}, {33, 47}, {46, 63}, {60, 90}} {
		for _, qty := range []int{1, 13, 250, 10000} {
			plan, err := opt.BestLayout(Request{ItemWidth: dims[0], ItemHeight: dims[1], Quantity: qty})
			require.NoError(t, err)
			for _, r := range append([]LayoutResult{plan.Recommended}, plan.Alternatives...) {
				assert.GreaterOrEqual(t, r.WastePercent, 0.0)
				assert.Less(t, r.WastePercent, 100.0)
				assert.Equal(t, r.Cols*r.Rows, r.ItemsPerSheet)
			}
		}
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.5, cfg.GripperMargin)
	assert.Len(t, NewOptimizer(Config{}).Formats(), 4)
}
