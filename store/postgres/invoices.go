package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/invoice"
)

// InvoiceStore is an invoice.Store backed by the invoices table.
type InvoiceStore struct {
	pool *pgxpool.Pool
}

var _ invoice.Store = (*InvoiceStore)(nil)

func (s *InvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("postgres: marshal invoice: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO invoices (id, org_id, month, year, status, data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID.String(), inv.OrgID.String(), inv.Month, inv.Year, string(inv.Status), data, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert invoice: %w", err)
	}
	return nil
}

func (s *InvoiceStore) Get(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM invoices WHERE id = $1`, invID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get invoice: %w", err)
	}
	return unmarshalInvoice(data)
}

func (s *InvoiceStore) GetByPeriod(ctx context.Context, orgID id.OrgID, month, year int) (*invoice.Invoice, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
SELECT data FROM invoices
WHERE org_id = $1 AND month = $2 AND year = $3 AND status <> 'cancelled'`,
		orgID.String(), month, year).Scan(&data)
	if isNoRows(err) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get invoice by period: %w", err)
	}
	return unmarshalInvoice(data)
}

func (s *InvoiceStore) List(ctx context.Context, orgID id.OrgID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	query := `SELECT data FROM invoices WHERE org_id = $1`
	args := []any{orgID.String()}

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !opts.Start.IsZero() {
		args = append(args, opts.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !opts.End.IsZero() {
		args = append(args, opts.End)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list invoices: %w", err)
	}
	defer rows.Close()

	var out []*invoice.Invoice
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan invoice: %w", err)
		}
		inv, err := unmarshalInvoice(data)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *InvoiceStore) Finalize(ctx context.Context, invID id.InvoiceID, finalizedAt time.Time) (*invoice.Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin finalize: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM invoices WHERE id = $1 FOR UPDATE`, invID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock invoice: %w", err)
	}

	inv, err := unmarshalInvoice(data)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusDraft {
		return nil, invoice.ErrNotDraft
	}

	inv.Status = invoice.StatusFinalized
	inv.FinalizedAt = &finalizedAt
	inv.UpdatedAt = finalizedAt

	newData, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal invoice: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE invoices SET status = $1, data = $2, updated_at = $3 WHERE id = $4`,
		string(inv.Status), newData, inv.UpdatedAt, invID.String()); err != nil {
		return nil, fmt.Errorf("postgres: update invoice: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit finalize: %w", err)
	}
	return inv, nil
}

func (s *InvoiceStore) UpdateStatus(ctx context.Context, invID id.InvoiceID, expectedCurrent, next invoice.Status, ts time.Time) (*invoice.Invoice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin update status: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM invoices WHERE id = $1 FOR UPDATE`, invID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, invoice.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock invoice: %w", err)
	}

	inv, err := unmarshalInvoice(data)
	if err != nil {
		return nil, err
	}
	if inv.Status != expectedCurrent {
		return nil, invoice.ErrInvalidTransition
	}

	inv.Status = next
	inv.UpdatedAt = ts
	switch next {
	case invoice.StatusPaid:
		inv.PaidAt = &ts
	}

	newData, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal invoice: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE invoices SET status = $1, data = $2, updated_at = $3 WHERE id = $4`,
		string(inv.Status), newData, inv.UpdatedAt, invID.String()); err != nil {
		return nil, fmt.Errorf("postgres: update invoice: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit update status: %w", err)
	}
	return inv, nil
}

func unmarshalInvoice(data []byte) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal invoice: %w", err)
	}
	return &inv, nil
}
