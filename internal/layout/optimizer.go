package layout

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/marimovDEV/tipografiya/internal/config"
)

var (
	// ErrInfeasibleLayout means no candidate format holds a single item
	ErrInfeasibleLayout = errors.New("item does not fit any sheet format")
	// ErrUnknownFormat means a forced format is not in the catalog
	ErrUnknownFormat = errors.New("unknown sheet format")
	// ErrInvalidRequest means dimensions, quantity or gap are out of range
	ErrInvalidRequest = errors.New("invalid layout request")
)

// InfeasibleLayoutError carries the item that did not fit
type InfeasibleLayoutError struct {
	ItemWidth  float64
	ItemHeight float64
	Formats    []string
}

func (e *InfeasibleLayoutError) Error() string {
	return fmt.Sprintf("item %.2fx%.2f does not fit any of %v", e.ItemWidth, e.ItemHeight, e.Formats)
}

// Is matches ErrInfeasibleLayout
func (e *InfeasibleLayoutError) Is(target error) bool {
	return target == ErrInfeasibleLayout
}

// Orientation is how the item sits on the sheet
type Orientation string

const (
	OrientationNormal  Orientation = "normal"
	OrientationRotated Orientation = "rotated"
)

// LayoutResult is the grid chosen for one format
type LayoutResult struct {
	Format        SheetFormat `json:"format"`
	ItemsPerSheet int         `json:"itemsPerSheet"`
	Cols          int         `json:"cols"`
	Rows          int         `json:"rows"`
	Orientation   Orientation `json:"orientation"`
	// WastePercent is the share of the run's sheet area not covered by items
	WastePercent float64 `json:"wastePercent"`
	// SheetWastePercent is the share of one full sheet not covered by items
	SheetWastePercent float64 `json:"sheetWastePercent"`
	SheetsNeeded      int     `json:"sheetsNeeded"`
	UsedArea          float64 `json:"usedArea"`
	TotalArea         float64 `json:"totalArea"`
}

// Plan is the recommended layout and its runners-up
type Plan struct {
	Recommended  LayoutResult   `json:"recommended"`
	Alternatives []LayoutResult `json:"alternatives"`
}

// Request describes one item to impose. A nil Gap uses the configured
// default; empty Formats uses the configured catalog.
type Request struct {
	ItemWidth    float64
	ItemHeight   float64
	Quantity     int
	Gap          *float64
	Formats      []SheetFormat
	ForcedFormat string
}

// Config holds press margins in cm
type Config struct {
	GripperMargin float64
	SideMargin    float64
	DefaultGap    float64
	Alternatives  int
	Formats       []SheetFormat
}

// DefaultConfig returns the standard margins and catalog
func DefaultConfig() Config {
	return Config{
		GripperMargin: 1.5,
		SideMargin:    0.5,
		DefaultGap:    0.3,
		Alternatives:  3,
		Formats:       DefaultFormats(),
	}
}

// ConfigFrom builds the optimizer configuration from the application config
func ConfigFrom(cfg config.LayoutConfig) Config {
	return Config{
		GripperMargin: cfg.GripperMargin,
		SideMargin:    cfg.SideMargin,
		DefaultGap:    cfg.DefaultGap,
		Alternatives:  cfg.Alternatives,
		Formats:       FormatsFromConfig(cfg.Formats),
	}
}

// Optimizer finds sheet layouts
type Optimizer struct {
	cfg Config
}

// NewOptimizer creates an optimizer
func NewOptimizer(cfg Config) *Optimizer {
	if len(cfg.Formats) == 0 {
		cfg.Formats = DefaultFormats()
	}
	return &Optimizer{cfg: cfg}
}

// Formats returns the configured catalog
func (o *Optimizer) Formats() []SheetFormat {
	out := make([]SheetFormat, len(o.cfg.Formats))
	copy(out, o.cfg.Formats)
	return out
}

// BestLayout evaluates every candidate format and ranks the feasible ones by
// waste, then by items per sheet, then by catalog order.
func (o *Optimizer) BestLayout(req Request) (*Plan, error) {
	gap := o.cfg.DefaultGap
	if req.Gap != nil {
		gap = *req.Gap
	}
	if req.ItemWidth <= 0 || req.ItemHeight <= 0 {
		return nil, fmt.Errorf("%w: item dimensions must be positive", ErrInvalidRequest)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}
	if gap < 0 {
		return nil, fmt.Errorf("%w: gap must not be negative", ErrInvalidRequest)
	}

	candidates, err := o.candidates(req)
	if err != nil {
		return nil, err
	}

	results := make([]LayoutResult, 0, len(candidates))
	names := make([]string, 0, len(candidates))
	for _, f := range candidates {
		names = append(names, f.Name)
		if r, ok := o.Evaluate(f, req.ItemWidth, req.ItemHeight, req.Quantity, gap); ok {
			results = append(results, r)
		}
	}
	if len(results) == 0 {
		return nil, &InfeasibleLayoutError{ItemWidth: req.ItemWidth, ItemHeight: req.ItemHeight, Formats: names}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].WastePercent != results[j].WastePercent {
			return results[i].WastePercent < results[j].WastePercent
		}
		return results[i].ItemsPerSheet > results[j].ItemsPerSheet
	})

	plan := &Plan{Recommended: results[0], Alternatives: []LayoutResult{}}
	rest := results[1:]
	if len(rest) > o.cfg.Alternatives {
		rest = rest[:o.cfg.Alternatives]
	}
	plan.Alternatives = append(plan.Alternatives, rest...)
	return plan, nil
}

func (o *Optimizer) candidates(req Request) ([]SheetFormat, error) {
	formats := req.Formats
	if len(formats) == 0 {
		formats = o.cfg.Formats
	}
	for _, f := range formats {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}

	if req.ForcedFormat == "" {
		return formats, nil
	}
	for _, f := range formats {
		if f.Name == req.ForcedFormat {
			return []SheetFormat{f}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, req.ForcedFormat)
}

// Evaluate lays the item out on one format. ok is false when not even one
// item fits.
func (o *Optimizer) Evaluate(f SheetFormat, itemW, itemH float64, quantity int, gap float64) (LayoutResult, bool) {
	printableW := f.Width - 2*o.cfg.SideMargin
	printableH := f.Height - o.cfg.GripperMargin - o.cfg.SideMargin
	if printableW <= 0 || printableH <= 0 {
		return LayoutResult{}, false
	}

	cols, rows := grid(printableW, printableH, itemW, itemH, gap)
	orientation := OrientationNormal
	if rc, rr := grid(printableW, printableH, itemH, itemW, gap); rc*rr > cols*rows {
		cols, rows, orientation = rc, rr, OrientationRotated
	}

	perSheet := cols * rows
	if perSheet == 0 {
		return LayoutResult{}, false
	}

	itemArea := itemW * itemH
	sheetArea := f.Area()
	sheets := int(math.Ceil(float64(quantity) / float64(perSheet)))
	totalArea := float64(sheets) * sheetArea
	usedArea := float64(quantity) * itemArea

	return LayoutResult{
		Format:            f,
		ItemsPerSheet:     perSheet,
		Cols:              cols,
		Rows:              rows,
		Orientation:       orientation,
		WastePercent:      round2((totalArea - usedArea) / totalArea * 100),
		SheetWastePercent: round2((sheetArea - float64(perSheet)*itemArea) / sheetArea * 100),
		SheetsNeeded:      sheets,
		UsedArea:          usedArea,
		TotalArea:         totalArea,
	}, true
}

// floorEps absorbs float noise in exact divisions like 69/23
const floorEps = 1e-9

func grid(printableW, printableH, itemW, itemH, gap float64) (cols, rows int) {
	cols = int(math.Floor((printableW+gap)/(itemW+gap) + floorEps))
	rows = int(math.Floor((printableH+gap)/(itemH+gap) + floorEps))
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	return cols, rows
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
