package org

import (
	"context"

	"github.com/invoiceflow/billing/id"
)

// OrgStore persists organisations.
type OrgStore interface {
	Create(ctx context.Context, o *Organisation) error
	Get(ctx context.Context, orgID id.OrgID) (*Organisation, error)
	Update(ctx context.Context, o *Organisation) error
	List(ctx context.Context) ([]*Organisation, error)
}

// ProjectStore persists projects and resolves API-key lookups.
type ProjectStore interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, projectID id.ProjectID) (*Project, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*Project, error)
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*Project, error)
}
