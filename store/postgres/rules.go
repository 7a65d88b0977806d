package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/invoice"
	"github.com/invoiceflow/billing/pricing"
)

// RuleStore implements invoice.RuleSource against the pricing_rules,
// minimum_charge_rules, and billing_configs tables. Global rules
// (org_id = '') apply to every org; per-org rows take precedence where
// the pricing package's own resolution logic says so.
type RuleStore struct {
	pool *pgxpool.Pool
}

var _ invoice.RuleSource = (*RuleStore)(nil)

func (s *RuleStore) PricingRules(ctx context.Context, orgID id.OrgID) ([]pricing.Rule, error) {
	rows, err := s.pool.Query(ctx, `
SELECT data FROM pricing_rules WHERE org_id = '' OR org_id = $1`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: list pricing rules: %w", err)
	}
	defer rows.Close()

	var out []pricing.Rule
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan pricing rule: %w", err)
		}
		var r pricing.Rule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal pricing rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RuleStore) MinimumChargeRules(ctx context.Context, orgID id.OrgID) ([]pricing.MinimumChargeRule, error) {
	rows, err := s.pool.Query(ctx, `
SELECT data FROM minimum_charge_rules WHERE org_id = '' OR org_id = $1`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: list minimum charge rules: %w", err)
	}
	defer rows.Close()

	var out []pricing.MinimumChargeRule
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan minimum charge rule: %w", err)
		}
		var r pricing.MinimumChargeRule
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal minimum charge rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RuleStore) BillingConfig(ctx context.Context, orgID id.OrgID) (pricing.Config, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM billing_configs WHERE org_id = $1`, orgID.String()).Scan(&data)
	if isNoRows(err) {
		return pricing.Config{}, notFoundError{"billing config", orgID.String()}
	}
	if err != nil {
		return pricing.Config{}, fmt.Errorf("postgres: get billing config: %w", err)
	}
	var cfg pricing.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pricing.Config{}, fmt.Errorf("postgres: unmarshal billing config: %w", err)
	}
	return cfg, nil
}

// PutPricingRule inserts or replaces a pricing rule row. Global rules
// pass a nil orgID.
func (s *RuleStore) PutPricingRule(ctx context.Context, r pricing.Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal pricing rule: %w", err)
	}
	orgCol := ""
	if r.OrgID != nil {
		orgCol = r.OrgID.String()
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO pricing_rules (id, org_id, data) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, r.ID.String(), orgCol, data)
	if err != nil {
		return fmt.Errorf("postgres: upsert pricing rule: %w", err)
	}
	return nil
}

// PutMinimumChargeRule inserts or replaces a minimum charge rule row.
func (s *RuleStore) PutMinimumChargeRule(ctx context.Context, r pricing.MinimumChargeRule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal minimum charge rule: %w", err)
	}
	orgCol := ""
	if r.OrgID != nil {
		orgCol = r.OrgID.String()
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO minimum_charge_rules (id, org_id, data) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, r.ID.String(), orgCol, data)
	if err != nil {
		return fmt.Errorf("postgres: upsert minimum charge rule: %w", err)
	}
	return nil
}

// PutBillingConfig inserts or replaces an org's billing configuration.
func (s *RuleStore) PutBillingConfig(ctx context.Context, cfg pricing.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("postgres: marshal billing config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO billing_configs (org_id, data) VALUES ($1, $2)
ON CONFLICT (org_id) DO UPDATE SET data = EXCLUDED.data`, cfg.OrgID.String(), data)
	if err != nil {
		return fmt.Errorf("postgres: upsert billing config: %w", err)
	}
	return nil
}
