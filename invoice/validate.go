package invoice

import (
	"fmt"

	"github.com/invoiceflow/billing/money"
)

// withinTolerance implements the scale-2 rounding slack permitted by
// spec.md §8's invariants ("|x - y| <= 0.01").
func withinTolerance(a, b money.Amount) bool {
	return a.Currency() == b.Currency() && a.AbsDiff(b).Cmp(money.MustAmount("0.01", a.Currency())) <= 0
}

// Validate checks the invariants that must hold before an invoice is
// ever persisted (spec.md §4.7).
func Validate(inv *Invoice) error {
	if inv.Subtotal.IsNegative() || inv.Tax.IsNegative() || inv.Discount.IsNegative() || inv.Total.IsNegative() {
		return fmt.Errorf("invoice: negative monetary field")
	}

	expectedTotal := inv.Subtotal.Add(inv.Tax).Sub(inv.Discount)
	if !withinTolerance(inv.Total, expectedTotal) {
		return fmt.Errorf("invoice: total %s does not match subtotal+tax-discount %s within tolerance", inv.Total.String(), expectedTotal.String())
	}

	lineSum := money.ZeroAmount(inv.Currency)
	for _, li := range inv.LineItems {
		lineSum = lineSum.Add(li.Total)
	}
	if !withinTolerance(lineSum, inv.Subtotal) {
		return fmt.Errorf("invoice: sum of line totals %s does not match subtotal %s within tolerance", lineSum.String(), inv.Subtotal.String())
	}

	for _, li := range inv.LineItems {
		if li.Total.IsNegative() {
			return fmt.Errorf("invoice: line %d has negative total", li.LineNumber)
		}
		if li.Quantity.IsZero() && li.UnitPrice.IsZero() {
			// Synthetic lines (e.g. minimum charge top-up) have no
			// quantity/unit-price to cross-check.
			continue
		}
		expectedLineTotal := li.UnitPrice.ApplyToQuantity(li.Quantity.Decimal(), li.Currency)
		if !withinTolerance(li.Total, expectedLineTotal) {
			return fmt.Errorf("invoice: line %d total %s does not match quantity*unit_price %s within tolerance", li.LineNumber, li.Total.String(), expectedLineTotal.String())
		}
	}

	return nil
}
