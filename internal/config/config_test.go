package config

import (
	"testing"
	"time"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	c := Default()
	if c.MigrationBatchSize != 1000 {
		t.Errorf("MigrationBatchSize = %d, want 1000", c.MigrationBatchSize)
	}
	if c.MigrationMaxBatches != 10 {
		t.Errorf("MigrationMaxBatches = %d, want 10", c.MigrationMaxBatches)
	}
	if c.D1RetentionDays != 7 {
		t.Errorf("D1RetentionDays = %d, want 7", c.D1RetentionDays)
	}
	if !c.PaymentRetryEnabled {
		t.Error("PaymentRetryEnabled = false, want true")
	}
	if c.PaymentRetryMaxRetries != 3 {
		t.Errorf("PaymentRetryMaxRetries = %d, want 3", c.PaymentRetryMaxRetries)
	}
	if c.PaymentRetryBaseInterval != 24*time.Hour {
		t.Errorf("PaymentRetryBaseInterval = %s, want 24h", c.PaymentRetryBaseInterval)
	}
	if c.DefaultCurrency != "INR" {
		t.Errorf("DefaultCurrency = %q, want INR", c.DefaultCurrency)
	}
}

func TestValidateRequiresGatewayCredentials(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing gateway credentials")
	}
	c.GatewayKeyID = "key"
	c.GatewaySecret = "secret"
	c.GatewayWebhookSecret = "whsec"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error once credentials set: %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("MIGRATION_BATCH_SIZE", "500")
	t.Setenv("GATEWAY_KEY_ID", "key")
	t.Setenv("GATEWAY_SECRET", "secret")
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "whsec")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MigrationBatchSize != 500 {
		t.Errorf("MigrationBatchSize = %d, want 500 from env override", cfg.MigrationBatchSize)
	}
	if cfg.D1RetentionDays != 7 {
		t.Errorf("D1RetentionDays = %d, want default 7", cfg.D1RetentionDays)
	}
}
