// Package layout places flat items on standard press sheets and orders
// knife paths. Everything here is pure and safe for concurrent use.
package layout

import (
	"fmt"

	"github.com/marimovDEV/tipografiya/internal/config"
)

// SheetFormat is a catalog sheet size in cm
type SheetFormat struct {
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the full sheet area in cm²
func (f SheetFormat) Area() float64 {
	return f.Width * f.Height
}

// Validate checks that both sides are positive
func (f SheetFormat) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: format %q must have positive width and height", ErrInvalidRequest, f.Name)
	}
	return nil
}

// DefaultFormats is the standard press sheet catalog
func DefaultFormats() []SheetFormat {
	return []SheetFormat{
		{Name: "70x100", Width: 70, Height: 100},
		{Name: "62x94", Width: 62, Height: 94},
		{Name: "52x72", Width: 52, Height: 72},
		{Name: "47x65", Width: 47, Height: 65},
	}
}

// FormatsFromConfig converts the configured catalog
func FormatsFromConfig(cfg []config.FormatConfig) []SheetFormat {
	formats := make([]SheetFormat, 0, len(cfg))
	for _, f := range cfg {
		formats = append(formats, SheetFormat{Name: f.Name, Width: f.Width, Height: f.Height})
	}
	return formats
}
