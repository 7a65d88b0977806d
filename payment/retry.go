package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/invoiceflow/billing/gateway"
)

// RetryScheduler periodically retries payments stuck in failed,
// creating a fresh gateway order for each (spec.md §4.9).
type RetryScheduler struct {
	Store   Store
	Gateway *gateway.Client
	Config  RetryConfig
	Audit   AuditRecorder
	Now     func() time.Time
}

// RetryResult summarizes one scheduler pass.
type RetryResult struct {
	Attempted     int
	FinalFailures int
	Errors        []error
}

// Run selects every payment eligible for retry (status=failed,
// retry-count < max-retries, next-retry-at <= now) and retries each:
// create a fresh order, bump retry-count, append retry history,
// recompute next-retry-at. Continues past individual failures so one
// bad payment does not block the rest of the run.
func (s *RetryScheduler) Run(ctx context.Context) (RetryResult, error) {
	if !s.Config.Enabled {
		return RetryResult{}, nil
	}
	cfg := s.Config.withDefaults()
	now := s.now()

	payments, err := s.Store.ListRetryable(ctx, now)
	if err != nil {
		return RetryResult{}, fmt.Errorf("payment: list retryable: %w", err)
	}

	var result RetryResult
	for _, pay := range payments {
		if err := s.retryOne(ctx, pay, cfg, now); err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Attempted++
		if isFinalAttempt(pay.RetryCount+1, cfg.MaxRetries) {
			result.FinalFailures++
		}
	}
	return result, nil
}

func (s *RetryScheduler) retryOne(ctx context.Context, pay *Payment, cfg RetryConfig, now time.Time) error {
	receipt := fmt.Sprintf("retry-%s-%d", pay.ID.String(), pay.RetryCount+1)
	_, orderErr := s.Gateway.CreateOrder(ctx, receipt, pay.Amount, now)

	outcome := "succeeded"
	if orderErr != nil {
		outcome = "order_failed"
	}
	attempt := RetryAttempt{AttemptedAt: now, Outcome: outcome}

	retryCountAfter := pay.RetryCount + 1
	final := isFinalAttempt(retryCountAfter, cfg.MaxRetries)

	var nextRetryAt *time.Time
	if !final {
		t := now.Add(nextRetryDelay(cfg.BaseIntervalHours, retryCountAfter))
		nextRetryAt = &t
	}

	updated, err := s.Store.RecordRetryAttempt(ctx, pay.ID, attempt, nextRetryAt, final)
	if err != nil {
		return fmt.Errorf("payment: record retry attempt for %s: %w", pay.ID.String(), err)
	}

	if s.Audit != nil {
		s.Audit.Record(ctx, "payment.retry_attempted", "payment", updated.ID.String(), map[string]any{
			"attempt": retryCountAfter, "outcome": outcome, "final_failure": final,
		})
	}

	if orderErr != nil {
		return orderErr
	}
	return nil
}

func (s *RetryScheduler) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}
