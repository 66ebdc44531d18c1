// Package pricing derives document totals from line items.
package pricing

import "github.com/shopspring/decimal"

// Mode selects how a line contributes to the document total.
type Mode int

const (
	// RateCarried lines supply their own material and plastic rates (bills, invoices).
	RateCarried Mode = iota + 1
	// FlatUnitCost lines carry quantities only; the calculator applies a fixed unit cost (challans).
	FlatUnitCost
)

func (m Mode) String() string {
	switch m {
	case RateCarried:
		return "rate_carried"
	case FlatUnitCost:
		return "flat_unit_cost"
	default:
		return "unknown"
	}
}

// Line is a single priced entry. Zero values stand for missing fields.
type Line struct {
	Quantity        decimal.Decimal
	PlasticQuantity decimal.Decimal
	MaterialRate    decimal.Decimal
	PlasticRate     decimal.Decimal
}

// Calculator computes document totals. It is safe for concurrent use.
type Calculator struct {
	unitCost decimal.Decimal
}

// NewCalculator constructs a Calculator applying unitCost in FlatUnitCost mode.
func NewCalculator(unitCost decimal.Decimal) Calculator {
	return Calculator{unitCost: unitCost}
}

// UnitCost returns the flat per-unit cost.
func (c Calculator) UnitCost() decimal.Decimal {
	return c.unitCost
}

// Total sums every line under mode. Arithmetic is exact, so the result does not depend
// on line order.
func (c Calculator) Total(lines []Line, mode Mode) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(c.LineTotal(line, mode))
	}
	return total
}

// LineTotal computes a single line's contribution. Negative inputs contribute zero.
func (c Calculator) LineTotal(line Line, mode Mode) decimal.Decimal {
	switch mode {
	case RateCarried:
		material := clamp(line.Quantity).Mul(clamp(line.MaterialRate))
		plastic := clamp(line.PlasticQuantity).Mul(clamp(line.PlasticRate))
		return material.Add(plastic)
	case FlatUnitCost:
		return clamp(line.Quantity).Mul(clamp(c.unitCost))
	default:
		return decimal.Zero
	}
}

// Present rounds an amount to cents for output.
func Present(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
