// Package memory provides in-process org.OrgStore/org.ProjectStore
// implementations for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/org"
)

type notFoundError struct{ id string }

func (e notFoundError) Error() string { return fmt.Sprintf("org: not found: %s", e.id) }

// OrgStore is a map-backed org.OrgStore.
type OrgStore struct {
	mu   sync.RWMutex
	orgs map[string]*org.Organisation
}

var _ org.OrgStore = (*OrgStore)(nil)

func NewOrgStore() *OrgStore {
	return &OrgStore{orgs: make(map[string]*org.Organisation)}
}

func (s *OrgStore) Create(_ context.Context, o *org.Organisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orgs[o.ID.String()] = &cp
	return nil
}

func (s *OrgStore) Get(_ context.Context, orgID id.OrgID) (*org.Organisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[orgID.String()]
	if !ok {
		return nil, notFoundError{orgID.String()}
	}
	cp := *o
	return &cp, nil
}

func (s *OrgStore) Update(_ context.Context, o *org.Organisation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[o.ID.String()]; !ok {
		return notFoundError{o.ID.String()}
	}
	cp := *o
	s.orgs[o.ID.String()] = &cp
	return nil
}

func (s *OrgStore) List(_ context.Context) ([]*org.Organisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*org.Organisation, 0, len(s.orgs))
	for _, o := range s.orgs {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

// ProjectStore is a map-backed org.ProjectStore.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string]*org.Project
	byHash   map[string]string // api key hash -> project id
}

var _ org.ProjectStore = (*ProjectStore)(nil)

func NewProjectStore() *ProjectStore {
	return &ProjectStore{
		projects: make(map[string]*org.Project),
		byHash:   make(map[string]string),
	}
}

func (s *ProjectStore) Create(_ context.Context, p *org.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects[p.ID.String()] = &cp
	if p.APIKeyHash != "" {
		s.byHash[p.APIKeyHash] = p.ID.String()
	}
	return nil
}

func (s *ProjectStore) Get(_ context.Context, projectID id.ProjectID) (*org.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID.String()]
	if !ok {
		return nil, notFoundError{projectID.String()}
	}
	cp := *p
	return &cp, nil
}

func (s *ProjectStore) GetByAPIKeyHash(_ context.Context, hash string) (*org.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projectID, ok := s.byHash[hash]
	if !ok {
		return nil, notFoundError{hash}
	}
	p := s.projects[projectID]
	cp := *p
	return &cp, nil
}

func (s *ProjectStore) ListByOrg(_ context.Context, orgID id.OrgID) ([]*org.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*org.Project
	for _, p := range s.projects {
		if p.OrgID.Equal(orgID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}
