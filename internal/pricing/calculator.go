// Package pricing computes the per-sticker cost of printing on a fixed-width roll.
//
// A sticker's width plus the bleed margin decides how many stickers share one
// production row across the roll. The row itself is priced as the full roll
// width times the sticker height at the material's per-square-meter rate, and
// that cost is split evenly between the stickers in the row.
package pricing

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// InvalidMarker is the price text reported for any input that cannot be quoted.
const InvalidMarker = "Invalid dimensions"

var mmPerMeter = decimal.NewFromInt(1000)

var maxStickersPerRow = decimal.NewFromInt(math.MaxInt32)

// Reason explains why a calculation produced no quote.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonWidth
	ReasonHeight
	ReasonMaterial
	ReasonExceedsRoll
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonWidth:
		return "width_not_positive"
	case ReasonHeight:
		return "height_not_positive"
	case ReasonMaterial:
		return "material_not_priced"
	case ReasonExceedsRoll:
		return "wider_than_roll"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Layout holds the production constants of the printing roll.
type Layout struct {
	RollWidthMM        decimal.Decimal
	BleedMM            decimal.Decimal
	MinPricePerSticker decimal.Decimal
}

// NewLayout validates and builds a Layout.
func NewLayout(rollWidthMM, bleedMM, minPricePerSticker float64) (Layout, error) {
	if rollWidthMM <= 0 {
		return Layout{}, fmt.Errorf("roll width must be positive, got %v", rollWidthMM)
	}
	if bleedMM < 0 {
		return Layout{}, fmt.Errorf("bleed must not be negative, got %v", bleedMM)
	}
	if minPricePerSticker < 0 {
		return Layout{}, fmt.Errorf("minimum price per sticker must not be negative, got %v", minPricePerSticker)
	}
	return Layout{
		RollWidthMM:        decimal.NewFromFloat(rollWidthMM),
		BleedMM:            decimal.NewFromFloat(bleedMM),
		MinPricePerSticker: decimal.NewFromFloat(minPricePerSticker),
	}, nil
}

// Quote is a successful calculation.
type Quote struct {
	// PricePerSticker is rounded half away from zero to two decimals.
	PricePerSticker decimal.Decimal
	StickersPerRow  int
	// RowCost is the unrounded cost of one full production row.
	RowCost decimal.Decimal
	// BelowMinimum is set when PricePerSticker is under the configured
	// minimum. The price itself is left as computed.
	BelowMinimum bool
}

// Result is either a Quote or an invalid outcome carrying a Reason.
type Result struct {
	quote  Quote
	reason Reason
}

func invalid(r Reason) Result { return Result{reason: r} }

// Valid reports whether the result carries a quote.
func (r Result) Valid() bool { return r.reason == ReasonNone }

// Quote returns the quote and true for a valid result.
func (r Result) Quote() (Quote, bool) {
	if !r.Valid() {
		return Quote{}, false
	}
	return r.quote, true
}

// Reason returns why the result is invalid, or ReasonNone.
func (r Result) Reason() Reason { return r.reason }

// Price renders the price as fixed-point text with two decimals, or
// InvalidMarker when the result is invalid.
func (r Result) Price() string {
	if !r.Valid() {
		return InvalidMarker
	}
	return r.quote.PricePerSticker.StringFixed(2)
}

// StickersPerRow returns the row capacity; it is undefined for invalid results.
func (r Result) StickersPerRow() (int, bool) {
	if !r.Valid() {
		return 0, false
	}
	return r.quote.StickersPerRow, true
}

type resultJSON struct {
	Price          string `json:"price"`
	StickersPerRow *int   `json:"stickers_per_row,omitempty"`
	RowCost        string `json:"row_cost,omitempty"`
	BelowMinimum   bool   `json:"below_minimum,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// MarshalJSON encodes the result the way the sidebar consumed it: a price
// string and, for valid results only, the row capacity.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Price: r.Price()}
	if q, ok := r.Quote(); ok {
		spr := q.StickersPerRow
		out.StickersPerRow = &spr
		out.RowCost = q.RowCost.StringFixed(4)
		out.BelowMinimum = q.BelowMinimum
	} else {
		out.Reason = r.reason.String()
	}
	return json.Marshal(out)
}

// Calculator prices stickers against a fixed catalog and layout. It holds no
// mutable state and may be shared between goroutines.
type Calculator struct {
	catalog MaterialCatalog
	layout  Layout
}

// NewCalculator wires a catalog and layout together.
func NewCalculator(catalog MaterialCatalog, layout Layout) *Calculator {
	return &Calculator{catalog: catalog, layout: layout}
}

// Catalog exposes the material catalog the calculator prices against.
func (c *Calculator) Catalog() MaterialCatalog { return c.catalog }

// Layout exposes the roll constants.
func (c *Calculator) Layout() Layout { return c.layout }

// Calculate prices a single sticker of width × height millimeters.
func (c *Calculator) Calculate(width, height decimal.Decimal, material string) Result {
	if !width.IsPositive() {
		return invalid(ReasonWidth)
	}
	if !height.IsPositive() {
		return invalid(ReasonHeight)
	}
	unitPrice, ok := c.catalog.Price(material)
	if !ok || !unitPrice.IsPositive() {
		return invalid(ReasonMaterial)
	}

	widthWithBleed := width.Add(c.layout.BleedMM)
	perRow, _ := c.layout.RollWidthMM.QuoRem(widthWithBleed, 0)
	if perRow.GreaterThan(maxStickersPerRow) {
		return invalid(ReasonWidth)
	}
	stickersPerRow := int(perRow.IntPart())
	if stickersPerRow <= 0 {
		return invalid(ReasonExceedsRoll)
	}

	rollWidthM := c.layout.RollWidthMM.Div(mmPerMeter)
	heightM := height.Div(mmPerMeter)
	rowCost := rollWidthM.Mul(heightM).Mul(unitPrice)

	price := rowCost.Div(decimal.NewFromInt(int64(stickersPerRow))).Round(2)

	return Result{quote: Quote{
		PricePerSticker: price,
		StickersPerRow:  stickersPerRow,
		RowCost:         rowCost,
		BelowMinimum:    price.LessThan(c.layout.MinPricePerSticker),
	}}
}

// CalculateRaw coerces form values before calculating.
func (c *Calculator) CalculateRaw(widthRaw, heightRaw, material string) Result {
	return c.Calculate(ParseDimension(widthRaw), ParseDimension(heightRaw), material)
}
