package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/payment"
)

// PaymentStore is a payment.Store backed by the payments table.
type PaymentStore struct {
	pool *pgxpool.Pool
}

var _ payment.Store = (*PaymentStore)(nil)

func (s *PaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: marshal payment: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO payments (id, org_id, invoice_id, gateway_order_id, gateway_payment_id, status, next_retry_at, created_at, updated_at, data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID.String(), p.OrgID.String(), p.InvoiceID.String(), p.GatewayOrderID, p.GatewayPaymentID,
		string(p.Status), p.NextRetryAt, p.CreatedAt, p.UpdatedAt, data)
	if err != nil {
		return fmt.Errorf("postgres: insert payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) Get(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM payments WHERE id = $1`, payID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"payment", payID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get payment: %w", err)
	}
	return unmarshalPayment(data)
}

func (s *PaymentStore) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Payment, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM payments WHERE gateway_order_id = $1`, gatewayOrderID).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"payment", gatewayOrderID}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get payment by gateway order: %w", err)
	}
	return unmarshalPayment(data)
}

func (s *PaymentStore) UpdateFromWebhook(ctx context.Context, payID id.PaymentID, next payment.Status, method string, reconciledAt time.Time, nextRetryAt *time.Time) (*payment.Payment, error) {
	return s.mutate(ctx, payID, func(p *payment.Payment) {
		p.Status = next
		if method != "" {
			p.Method = method
		}
		p.ReconciledAt = &reconciledAt
		p.NextRetryAt = nextRetryAt
		if next == payment.StatusCaptured {
			t := reconciledAt
			p.PaidAt = &t
		}
	})
}

func (s *PaymentStore) RecordRetryAttempt(ctx context.Context, payID id.PaymentID, attempt payment.RetryAttempt, nextRetryAt *time.Time, finalFailure bool) (*payment.Payment, error) {
	return s.mutate(ctx, payID, func(p *payment.Payment) {
		p.RetryCount++
		t := attempt.AttemptedAt
		p.LastRetryAt = &t
		p.RetryHistory = append(p.RetryHistory, attempt)
		p.NextRetryAt = nextRetryAt
		if finalFailure {
			if p.Metadata == nil {
				p.Metadata = make(map[string]string)
			}
			p.Metadata["final_failure"] = "true"
			p.NextRetryAt = nil
		}
	})
}

func (s *PaymentStore) ApplyRefund(ctx context.Context, payID id.PaymentID, amount money.Amount, refundedAt time.Time) (*payment.Payment, error) {
	return s.mutate(ctx, payID, func(p *payment.Payment) {
		p.RefundAmount = p.RefundAmount.Add(amount)
		t := refundedAt
		p.RefundedAt = &t
		if p.RefundAmount.Cmp(p.Amount) >= 0 {
			p.Status = payment.StatusRefunded
		} else {
			p.Status = payment.StatusPartiallyRefunded
		}
	})
}

func (s *PaymentStore) ListRetryable(ctx context.Context, now time.Time) ([]*payment.Payment, error) {
	rows, err := s.pool.Query(ctx, `
SELECT data FROM payments
WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2`,
		string(payment.StatusFailed), now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list retryable payments: %w", err)
	}
	defer rows.Close()

	var out []*payment.Payment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan payment: %w", err)
		}
		p, err := unmarshalPayment(data)
		if err != nil {
			return nil, err
		}
		if p.FinalFailure() {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PaymentStore) ListUnreconciled(ctx context.Context, orgID id.OrgID, date time.Time) ([]*payment.Payment, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.pool.Query(ctx, `
SELECT data FROM payments
WHERE org_id = $1 AND gateway_payment_id = '' AND created_at >= $2 AND created_at < $3`,
		orgID.String(), dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unreconciled payments: %w", err)
	}
	defer rows.Close()

	var out []*payment.Payment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan payment: %w", err)
		}
		p, err := unmarshalPayment(data)
		if err != nil {
			return nil, err
		}
		if p.ReconciledAt != nil {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// mutate loads a payment row FOR UPDATE, applies fn, and writes it back
// inside the same transaction, keeping the derived columns in sync with
// the fields fn may have changed.
func (s *PaymentStore) mutate(ctx context.Context, payID id.PaymentID, fn func(*payment.Payment)) (*payment.Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin payment mutation: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM payments WHERE id = $1 FOR UPDATE`, payID.String()).Scan(&data)
	if isNoRows(err) {
		return nil, notFoundError{"payment", payID.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock payment: %w", err)
	}

	p, err := unmarshalPayment(data)
	if err != nil {
		return nil, err
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()

	newData, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal payment: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE payments
SET status = $1, gateway_payment_id = $2, next_retry_at = $3, updated_at = $4, data = $5
WHERE id = $6`,
		string(p.Status), p.GatewayPaymentID, p.NextRetryAt, p.UpdatedAt, newData, payID.String()); err != nil {
		return nil, fmt.Errorf("postgres: update payment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit payment mutation: %w", err)
	}
	return p, nil
}

func unmarshalPayment(data []byte) (*payment.Payment, error) {
	var p payment.Payment
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal payment: %w", err)
	}
	return &p, nil
}
