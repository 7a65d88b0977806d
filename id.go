package billing

import "github.com/invoiceflow/billing/id"

// ID is the primary identifier type for every entity in this module.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
