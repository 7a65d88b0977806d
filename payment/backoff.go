package payment

import "time"

// RetryConfig controls the exponential-backoff retry scheduler
// (spec.md §4.9, §6: PAYMENT_RETRY_*).
type RetryConfig struct {
	Enabled            bool
	MaxRetries         int // default 3
	BaseIntervalHours  int // default 24
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseIntervalHours <= 0 {
		c.BaseIntervalHours = 24
	}
	return c
}

// nextRetryDelay computes delay = base-hours * 2^attempt, where attempt
// is the zero-based number of retries already made (RetryCount before
// this attempt).
func nextRetryDelay(baseHours, attempt int) time.Duration {
	return time.Duration(baseHours) * time.Hour * time.Duration(uint(1)<<uint(attempt))
}

// isFinalAttempt reports whether performing one more retry would reach
// maxRetries — i.e. retryCount+1 >= maxRetries is the last attempt
// (spec.md §8 boundary behaviour).
func isFinalAttempt(retryCountAfter, maxRetries int) bool {
	return retryCountAfter >= maxRetries
}
