package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/refund"
)

// RefundStore is a refund.Store backed by the refunds table.
type RefundStore struct {
	pool *pgxpool.Pool
}

var _ refund.Store = (*RefundStore)(nil)

func (s *RefundStore) Create(ctx context.Context, r *refund.Refund) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal refund: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO refunds (id, payment_id, gateway_refund_id, data)
VALUES ($1, $2, $3, $4)`,
		r.ID.String(), r.PaymentID.String(), r.GatewayRefundID, data)
	if err != nil {
		return fmt.Errorf("postgres: insert refund: %w", err)
	}
	return nil
}

func (s *RefundStore) Get(ctx context.Context, refundID id.RefundID) (*refund.Refund, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM refunds WHERE id = $1`, refundID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"refund", refundID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get refund: %w", err)
	}
	return unmarshalRefund(data)
}

func (s *RefundStore) GetByGatewayRefundID(ctx context.Context, gatewayRefundID string) (*refund.Refund, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM refunds WHERE gateway_refund_id = $1`, gatewayRefundID).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"refund", gatewayRefundID}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get refund by gateway id: %w", err)
	}
	return unmarshalRefund(data)
}

func (s *RefundStore) UpdateStatus(ctx context.Context, refundID id.RefundID, next refund.Status, processedAt *time.Time) (*refund.Refund, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin refund update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM refunds WHERE id = $1 FOR UPDATE`, refundID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"refund", refundID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock refund: %w", err)
	}

	r, err := unmarshalRefund(data)
	if err != nil {
		return nil, err
	}
	r.Status = next
	r.ProcessedAt = processedAt

	newData, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal refund: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE refunds SET gateway_refund_id = $1, data = $2 WHERE id = $3`,
		r.GatewayRefundID, newData, refundID.String()); err != nil {
		return nil, fmt.Errorf("postgres: update refund: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit refund update: %w", err)
	}
	return r, nil
}

func (s *RefundStore) ListByPayment(ctx context.Context, paymentID id.PaymentID) ([]*refund.Refund, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM refunds WHERE payment_id = $1`, paymentID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: list refunds by payment: %w", err)
	}
	defer rows.Close()

	var out []*refund.Refund
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan refund: %w", err)
		}
		r, err := unmarshalRefund(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func unmarshalRefund(data []byte) (*refund.Refund, error) {
	var r refund.Refund
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal refund: %w", err)
	}
	return &r, nil
}
