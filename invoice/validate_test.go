package invoice_test

import (
	"testing"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/invoice"
	"github.com/invoiceflow/billing/money"
)

func validInvoice() *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:       id.NewInvoiceID(),
		OrgID:    id.NewOrgID(),
		Currency: "USD",
		Subtotal: money.MustAmount("10.00", "USD"),
		Tax:      money.MustAmount("1.00", "USD"),
		Discount: money.ZeroAmount("USD"),
		Total:    money.MustAmount("11.00", "USD"),
	}
	inv.LineItems = []invoice.LineItem{
		{LineNumber: 1, Quantity: money.MustRate("1000"), UnitPrice: money.MustRate("0.01"), Total: money.MustAmount("10.00", "USD"), Currency: "USD"},
	}
	return inv
}

func TestValidateAcceptsConsistentInvoice(t *testing.T) {
	if err := invoice.Validate(validInvoice()); err != nil {
		t.Fatalf("expected valid invoice to pass, got %v", err)
	}
}

func TestValidateRejectsTotalMismatch(t *testing.T) {
	inv := validInvoice()
	inv.Total = money.MustAmount("50.00", "USD")
	if err := invoice.Validate(inv); err == nil {
		t.Fatal("expected validation error for total mismatch")
	}
}

func TestValidateRejectsNegativeField(t *testing.T) {
	inv := validInvoice()
	inv.Tax = money.MustAmount("-1.00", "USD")
	if err := invoice.Validate(inv); err == nil {
		t.Fatal("expected validation error for negative tax")
	}
}

func TestValidateRejectsLineTotalMismatch(t *testing.T) {
	inv := validInvoice()
	inv.LineItems[0].Total = money.MustAmount("999.00", "USD")
	inv.Subtotal = money.MustAmount("999.00", "USD")
	inv.Total = money.MustAmount("1000.00", "USD")
	if err := invoice.Validate(inv); err == nil {
		t.Fatal("expected validation error for line total not matching quantity*unit_price")
	}
}

func TestValidateToleratesOneCentRounding(t *testing.T) {
	inv := validInvoice()
	inv.Total = money.MustAmount("11.01", "USD")
	if err := invoice.Validate(inv); err != nil {
		t.Fatalf("expected 1-cent tolerance to be accepted, got %v", err)
	}
}
