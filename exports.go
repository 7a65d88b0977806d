package billing

import "github.com/invoiceflow/billing/money"

// Re-exported so callers assembling an Engine don't need a separate
// import of the money package for the common constructors.

// Amount is re-exported from the money package.
type Amount = money.Amount

// Rate is re-exported from the money package.
type Rate = money.Rate

var (
	NewAmount        = money.NewAmount
	MustAmount       = money.MustAmount
	ZeroAmount       = money.ZeroAmount
	SumAmounts       = money.SumAmounts
	NewRate          = money.NewRate
	MustRate         = money.MustRate
)
