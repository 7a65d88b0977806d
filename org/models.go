// Package org implements tenancy (spec.md §3): organisations, the
// projects they own, and API-key authentication for the ingestion
// endpoint.
package org

import (
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/types"
)

// Organisation is the root tenant. Soft-deletable via Active.
type Organisation struct {
	types.Entity
	ID                id.OrgID `json:"id"`
	Name              string   `json:"name"`
	PreferredCurrency string   `json:"preferred_currency"`
	BillingEmail      string   `json:"billing_email"`
	Active            bool     `json:"active"`
}

// Project belongs to exactly one Organisation and authenticates usage
// ingestion via a hashed API key. The plaintext key is never stored.
type Project struct {
	types.Entity
	ID         id.ProjectID `json:"id"`
	OrgID      id.OrgID     `json:"org_id"`
	Name       string       `json:"name"`
	APIKeyHash string       `json:"api_key_hash"`
	Active     bool         `json:"active"`
}
