package domain

import "github.com/shopspring/decimal"

// Totals is the money state derived from an order's items.
type Totals struct {
	TotalAmount decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	FinalAmount decimal.Decimal
}

// ComputeTotals sums non-cancelled items, applies taxRate rounded to cents
// and subtracts discount. A discount larger than total+tax is clamped so the
// final amount never goes negative.
func ComputeTotals(items []OrderItem, discount, taxRate decimal.Decimal) Totals {
	total := decimal.Zero
	for _, it := range items {
		if it.Status == ItemCancelled {
			continue
		}
		total = total.Add(it.Subtotal())
	}
	tax := total.Mul(taxRate).Round(2)
	gross := total.Add(tax)
	if discount.GreaterThan(gross) {
		discount = gross
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return Totals{
		TotalAmount: total,
		Tax:         tax,
		Discount:    discount,
		FinalAmount: gross.Sub(discount),
	}
}

func DerivePaymentStatus(paid, final decimal.Decimal) PaymentStatus {
	switch {
	case paid.IsZero():
		return PaymentUnpaid
	case paid.GreaterThanOrEqual(final):
		return PaymentPaid
	default:
		return PaymentPartiallyPaid
	}
}

// Recalculate refreshes totals and payment status in place.
func (o *Order) Recalculate(taxRate decimal.Decimal) {
	t := ComputeTotals(o.Items, o.Discount, taxRate)
	o.TotalAmount = t.TotalAmount
	o.Tax = t.Tax
	o.Discount = t.Discount
	o.FinalAmount = t.FinalAmount
	o.PaymentStatus = DerivePaymentStatus(o.PaidAmount, o.FinalAmount)
}
