// Package billing computes sale totals. Tax and discount are flat rates
// rounded to 2 decimal places independently before they enter the total.
package billing

import (
	"github.com/shopspring/decimal"

	"farmapos/internal/domain"
)

var (
	// TaxRate is the GST-style rate applied to every sale.
	TaxRate = decimal.RequireFromString("0.18")
	// DiscountRate is the flat storewide discount applied to every sale.
	DiscountRate = decimal.RequireFromString("0.05")
)

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives the bill amounts from the submitted line items.
// Rounding is half-up to the cent at each step, not just at the end:
// tax and discount are each rounded before summing into the total.
func ComputeTotals(items []domain.BillItemInput) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Qty))))
	}

	tax := subtotal.Mul(TaxRate).Round(2)
	discount := subtotal.Mul(DiscountRate).Round(2)
	total := subtotal.Add(tax).Sub(discount).Round(2)

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    total,
	}
}
