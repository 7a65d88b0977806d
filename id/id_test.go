package id

import (
	"strings"
	"testing"
)

func TestNewIDs(t *testing.T) {
	tests := []struct {
		name    string
		newFunc func() string
		prefix  string
	}{
		{"OrgID", func() string { return NewOrgID().String() }, string(PrefixOrg)},
		{"ProjectID", func() string { return NewProjectID().String() }, string(PrefixProject)},
		{"PricingRuleID", func() string { return NewPricingRuleID().String() }, string(PrefixPricingRule)},
		{"MinChargeRuleID", func() string { return NewMinChargeRuleID().String() }, string(PrefixMinChargeRule)},
		{"UsageEventID", func() string { return NewUsageEventID().String() }, string(PrefixUsageEvent)},
		{"InvoiceID", func() string { return NewInvoiceID().String() }, string(PrefixInvoice)},
		{"LineItemID", func() string { return NewLineItemID().String() }, string(PrefixLineItem)},
		{"PaymentID", func() string { return NewPaymentID().String() }, string(PrefixPayment)},
		{"RefundID", func() string { return NewRefundID().String() }, string(PrefixRefund)},
		{"ReconciliationID", func() string { return NewReconciliationID().String() }, string(PrefixReconciliation)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.newFunc()

			if !strings.HasPrefix(id, tt.prefix+"_") {
				t.Errorf("ID %s does not have prefix %s", id, tt.prefix)
			}

			parts := strings.SplitN(id, "_", 2)
			if len(parts) != 2 {
				t.Errorf("ID %s does not have correct format", id)
			}

			if len(parts[1]) != 26 {
				t.Errorf("ID suffix %s does not have correct length (got %d, want 26)", parts[1], len(parts[1]))
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name      string
		parseFunc func(string) (ID, error)
		validID   string
		invalidID string
		wrongID   string // ID with wrong prefix
	}{
		{
			"ParseOrgID",
			ParseOrgID,
			"org_01h2xcejqtf2nbrexx3vqjhp41",
			"org_invalid",
			"proj_01h2xcejqtf2nbrexx3vqjhp41",
		},
		{
			"ParseProjectID",
			ParseProjectID,
			"proj_01h2xcejqtf2nbrexx3vqjhp41",
			"proj_invalid",
			"org_01h2xcejqtf2nbrexx3vqjhp41",
		},
		{
			"ParseInvoiceID",
			ParseInvoiceID,
			"inv_01h2xcejqtf2nbrexx3vqjhp41",
			"inv_invalid",
			"pay_01h2xcejqtf2nbrexx3vqjhp41",
		},
		{
			"ParsePaymentID",
			ParsePaymentID,
			"pay_01h2xcejqtf2nbrexx3vqjhp41",
			"pay_invalid",
			"inv_01h2xcejqtf2nbrexx3vqjhp41",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := tt.parseFunc(tt.validID)
			if err != nil {
				t.Errorf("Failed to parse valid ID %s: %v", tt.validID, err)
			}
			if parsed.IsNil() {
				t.Errorf("Parsed ID is nil for %s", tt.validID)
			}

			if _, err := tt.parseFunc(tt.invalidID); err == nil {
				t.Errorf("Expected error parsing invalid ID %s", tt.invalidID)
			}

			_, err = tt.parseFunc(tt.wrongID)
			if err == nil {
				t.Errorf("Expected error parsing ID with wrong prefix %s", tt.wrongID)
			}
			if err != nil && !strings.Contains(err.Error(), "expected prefix") {
				t.Errorf("Wrong error message for incorrect prefix: %v", err)
			}
		})
	}
}

func TestParseAny(t *testing.T) {
	validIDs := []string{
		"org_01h2xcejqtf2nbrexx3vqjhp41",
		"proj_01h2xcejqtf2nbrexx3vqjhp41",
		"inv_01h2xcejqtf2nbrexx3vqjhp41",
		"pay_01h2xcejqtf2nbrexx3vqjhp41",
		"uevt_01h2xcejqtf2nbrexx3vqjhp41",
	}

	for _, s := range validIDs {
		parsed, err := ParseAny(s)
		if err != nil {
			t.Errorf("Failed to parse valid ID %s: %v", s, err)
		}
		if parsed.String() != s {
			t.Errorf("Parsed ID mismatch: got %s, want %s", parsed.String(), s)
		}
	}

	if _, err := ParseAny("invalid_id"); err == nil {
		t.Error("Expected error parsing invalid ID")
	}
}

func TestIDUniqueness(t *testing.T) {
	const count = 100
	ids := make(map[string]bool)

	for i := 0; i < count; i++ {
		s := NewInvoiceID().String()
		if ids[s] {
			t.Fatalf("Duplicate ID generated: %s", s)
		}
		ids[s] = true
	}

	if len(ids) != count {
		t.Errorf("Expected %d unique IDs, got %d", count, len(ids))
	}
}

func TestIDSortability(t *testing.T) {
	// TypeIDs with UUIDv7 should be K-sortable (time-ordered).
	id1 := NewInvoiceID()
	id2 := NewInvoiceID()
	id3 := NewInvoiceID()

	if id1.String() >= id2.String() {
		t.Logf("Warning: IDs may not be perfectly time-ordered: %s >= %s", id1, id2)
	}
	if id2.String() >= id3.String() {
		t.Logf("Warning: IDs may not be perfectly time-ordered: %s >= %s", id2, id3)
	}
}

func TestNilID(t *testing.T) {
	var zero ID
	if !zero.IsNil() {
		t.Error("zero value ID should be nil")
	}
	if zero.String() != "" {
		t.Errorf("nil ID should format as empty string, got %q", zero.String())
	}
	v, err := zero.Value()
	if err != nil || v != nil {
		t.Errorf("nil ID should Value() to nil, got %v, %v", v, err)
	}
}

func BenchmarkNewInvoiceID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewInvoiceID()
	}
}

func BenchmarkParseInvoiceID(b *testing.B) {
	s := "inv_01h2xcejqtf2nbrexx3vqjhp41"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseInvoiceID(s)
	}
}
