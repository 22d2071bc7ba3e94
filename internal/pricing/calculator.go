// Package pricing derives cart and order totals. It is the single place where
// tax, shipping and total arithmetic happens.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// Line is the priced input of one cart or order line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total returns UnitPrice * Quantity without rounding.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals is the monetary breakdown of a set of lines.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Options configures a Calculator.
type Options struct {
	TaxRate           decimal.Decimal
	ShippingThreshold decimal.Decimal
	FlatShippingFee   decimal.Decimal
}

// DefaultOptions is 10% tax with free shipping strictly above 100 and a
// 9.99 flat fee otherwise.
func DefaultOptions() Options {
	return Options{
		TaxRate:           decimal.RequireFromString("0.10"),
		ShippingThreshold: decimal.NewFromInt(100),
		FlatShippingFee:   decimal.RequireFromString("9.99"),
	}
}

// Calculator computes Totals. It holds no state besides its options and is
// safe for concurrent use.
type Calculator struct {
	opts Options
}

// NewCalculator creates a Calculator with the given options.
func NewCalculator(opts Options) *Calculator {
	return &Calculator{opts: opts}
}

// Options returns the calculator's configuration.
func (c *Calculator) Options() Options {
	return c.opts
}

// Compute prices lines. Callers validate lines with ValidateLine first.
// Tax is rounded half away from zero to cents; the subtotal is exact and the
// total is rounded once at the end. An empty set of lines ships for free.
// The discount always passes through unchanged, so a discount above the
// pre-discount sum yields a negative total; bounding it is up to the caller.
func (c *Calculator) Compute(lines []Line, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}

	tax := subtotal.Mul(c.opts.TaxRate).Round(2)

	shipping := decimal.Zero
	if len(lines) > 0 && !subtotal.GreaterThan(c.opts.ShippingThreshold) {
		shipping = c.opts.FlatShippingFee
	}

	total := subtotal.Add(tax).Add(shipping).Sub(discount).Round(2)

	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		DiscountAmount: discount,
		Total:          total,
	}
}

// ValidateLine rejects lines Compute must never see.
func ValidateLine(l Line) error {
	if l.Quantity < 1 {
		return &models.InvalidQuantityError{Quantity: l.Quantity}
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must not be negative, got %s", l.UnitPrice)
	}
	return nil
}

// CartLines converts cart items into pricing lines.
func CartLines(items []models.CartItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return lines
}

// OrderLines converts order items into pricing lines.
func OrderLines(items []models.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return lines
}
