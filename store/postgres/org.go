package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/org"
)

// OrgStore is an org.OrgStore backed by the orgs table.
type OrgStore struct {
	pool *pgxpool.Pool
}

var _ org.OrgStore = (*OrgStore)(nil)

func (s *OrgStore) Create(ctx context.Context, o *org.Organisation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("postgres: marshal org: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO orgs (id, data, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		o.ID.String(), data, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert org: %w", err)
	}
	return nil
}

func (s *OrgStore) Get(ctx context.Context, orgID id.OrgID) (*org.Organisation, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM orgs WHERE id = $1`, orgID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"org", orgID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get org: %w", err)
	}
	var o org.Organisation
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal org: %w", err)
	}
	return &o, nil
}

func (s *OrgStore) Update(ctx context.Context, o *org.Organisation) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("postgres: marshal org: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE orgs SET data = $1, updated_at = $2 WHERE id = $3`, data, o.UpdatedAt, o.ID.String())
	if err != nil {
		return fmt.Errorf("postgres: update org: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundError{"org", o.ID.String()}
	}
	return nil
}

func (s *OrgStore) List(ctx context.Context) ([]*org.Organisation, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM orgs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orgs: %w", err)
	}
	defer rows.Close()

	var out []*org.Organisation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan org: %w", err)
		}
		var o org.Organisation
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal org: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// ProjectStore is an org.ProjectStore backed by the projects table.
type ProjectStore struct {
	pool *pgxpool.Pool
}

var _ org.ProjectStore = (*ProjectStore)(nil)

func (s *ProjectStore) Create(ctx context.Context, p *org.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: marshal project: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO projects (id, org_id, api_key_hash, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID.String(), p.OrgID.String(), p.APIKeyHash, data, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert project: %w", err)
	}
	return nil
}

func (s *ProjectStore) Get(ctx context.Context, projectID id.ProjectID) (*org.Project, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM projects WHERE id = $1`, projectID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"project", projectID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get project: %w", err)
	}
	return unmarshalProject(data)
}

func (s *ProjectStore) GetByAPIKeyHash(ctx context.Context, hash string) (*org.Project, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM projects WHERE api_key_hash = $1`, hash).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"project", hash}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get project by api key hash: %w", err)
	}
	return unmarshalProject(data)
}

func (s *ProjectStore) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*org.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM projects WHERE org_id = $1`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: list projects by org: %w", err)
	}
	defer rows.Close()

	var out []*org.Project
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan project: %w", err)
		}
		p, err := unmarshalProject(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func unmarshalProject(data []byte) (*org.Project, error) {
	var p org.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal project: %w", err)
	}
	return &p, nil
}
