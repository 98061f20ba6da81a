package layout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Consumption norms and default waste allowances
var (
	InkGramsPerColor     = decimal.RequireFromString("2.5")
	InkWastePercent      = decimal.NewFromInt(10)
	LacquerMlPerM2       = decimal.NewFromInt(15)
	LacquerWastePercent  = decimal.NewFromInt(8)
	AdhesiveGramsPerCm   = decimal.RequireFromString("0.5")
	AdhesiveWastePercent = decimal.NewFromInt(10)
	DefaultPaperWastePct = decimal.NewFromInt(5)
	cm2PerM2             = decimal.NewFromInt(10000)
	hundred              = decimal.NewFromInt(100)
)

// ConsumptionEstimate is a material quantity with its waste allowance
type ConsumptionEstimate struct {
	Unit         string          `json:"unit"`
	Base         decimal.Decimal `json:"base"`
	Waste        decimal.Decimal `json:"waste"`
	Total        decimal.Decimal `json:"total"`
	WastePercent decimal.Decimal `json:"wastePercent"`
}

func estimate(unit string, base, wastePct decimal.Decimal) ConsumptionEstimate {
	waste := base.Mul(wastePct).Div(hundred)
	return ConsumptionEstimate{
		Unit:         unit,
		Base:         base,
		Waste:        waste,
		Total:        base.Add(waste),
		WastePercent: wastePct,
	}
}

func checkQuantity(quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}
	return nil
}

// PaperArea estimates paper in m² for quantity pieces of widthCm x heightCm
func PaperArea(widthCm, heightCm float64, quantity int, wastePct decimal.Decimal) (ConsumptionEstimate, error) {
	if widthCm <= 0 || heightCm <= 0 {
		return ConsumptionEstimate{}, fmt.Errorf("%w: dimensions must be positive", ErrInvalidRequest)
	}
	if err := checkQuantity(quantity); err != nil {
		return ConsumptionEstimate{}, err
	}

	area := decimal.NewFromFloat(widthCm).Mul(decimal.NewFromFloat(heightCm)).Div(cm2PerM2)
	return estimate("m2", area.Mul(decimal.NewFromInt(int64(quantity))), wastePct), nil
}

// Ink estimates ink in grams for colors colours over quantity units
func Ink(colors, quantity int) (ConsumptionEstimate, error) {
	if colors <= 0 {
		return ConsumptionEstimate{}, fmt.Errorf("%w: color count must be positive", ErrInvalidRequest)
	}
	if err := checkQuantity(quantity); err != nil {
		return ConsumptionEstimate{}, err
	}

	base := InkGramsPerColor.Mul(decimal.NewFromInt(int64(colors))).Mul(decimal.NewFromInt(int64(quantity)))
	return estimate("g", base, InkWastePercent), nil
}

// Lacquer estimates lacquer in ml for coverageM2 per unit
func Lacquer(coverageM2 float64, quantity int) (ConsumptionEstimate, error) {
	if coverageM2 <= 0 {
		return ConsumptionEstimate{}, fmt.Errorf("%w: coverage must be positive", ErrInvalidRequest)
	}
	if err := checkQuantity(quantity); err != nil {
		return ConsumptionEstimate{}, err
	}

	base := decimal.NewFromFloat(coverageM2).Mul(LacquerMlPerM2).Mul(decimal.NewFromInt(int64(quantity)))
	return estimate("ml", base, LacquerWastePercent), nil
}

// Adhesive estimates glue in grams for a glue line of lengthCm per unit
func Adhesive(lengthCm float64, quantity int) (ConsumptionEstimate, error) {
	if lengthCm <= 0 {
		return ConsumptionEstimate{}, fmt.Errorf("%w: glue length must be positive", ErrInvalidRequest)
	}
	if err := checkQuantity(quantity); err != nil {
		return ConsumptionEstimate{}, err
	}

	base := decimal.NewFromFloat(lengthCm).Mul(AdhesiveGramsPerCm).Mul(decimal.NewFromInt(int64(quantity)))
	return estimate("g", base, AdhesiveWastePercent), nil
}

// SheetsArea is the paper in m² that a layout consumes, whole sheets included
func SheetsArea(r LayoutResult) decimal.Decimal {
	return decimal.NewFromFloat(r.Format.Area()).
		Mul(decimal.NewFromInt(int64(r.SheetsNeeded))).
		Div(cm2PerM2)
}
