// Package config loads the billing engine's env-level configuration
// using viper, following the shape of the teacher's
// extension.Config/DefaultConfig() pair: a plain struct with
// mapstructure tags and a Default constructor, instead of scattering
// os.Getenv calls through the codebase.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-level setting the billing engine
// reads at startup.
type Config struct {
	// MigrationBatchSize is the number of hot events fetched per
	// migration batch (default: 1000).
	MigrationBatchSize int `mapstructure:"migration_batch_size"`

	// MigrationMaxBatches caps how many batches a single migration run
	// processes before stopping (default: 10).
	MigrationMaxBatches int `mapstructure:"migration_max_batches"`

	// D1RetentionDays is how long processed hot events are kept before
	// purge (default: 7).
	D1RetentionDays int `mapstructure:"d1_retention_days"`

	// PaymentRetryEnabled toggles the payment retry scheduler
	// (default: true).
	PaymentRetryEnabled bool `mapstructure:"payment_retry_enabled"`

	// PaymentRetryMaxRetries caps retry attempts per payment
	// (default: 3).
	PaymentRetryMaxRetries int `mapstructure:"payment_retry_max_retries"`

	// PaymentRetryBaseInterval is the backoff unit between retry
	// attempts (default: 24h).
	PaymentRetryBaseInterval time.Duration `mapstructure:"payment_retry_base_interval"`

	// DefaultCurrency is the ISO-4217 code used when an org has no
	// currency of its own configured (default: INR).
	DefaultCurrency string `mapstructure:"default_currency"`

	// GatewayKeyID, GatewaySecret, and GatewayWebhookSecret authenticate
	// against the payment gateway. These carry no defaults — a deploy
	// missing them should fail loudly rather than silently disable
	// payments.
	GatewayKeyID         string `mapstructure:"gateway_key_id"`
	GatewaySecret        string `mapstructure:"gateway_secret"`
	GatewayWebhookSecret string `mapstructure:"gateway_webhook_secret"`

	// ListenAddr is the address cmd/server binds to (default: :8080).
	// Not named by spec.md's recognized-configuration list — HTTP
	// routing glue is out of scope there — but the process still needs
	// somewhere to listen.
	ListenAddr string `mapstructure:"listen_addr"`

	// DatabaseURL is the durable store's connection string.
	DatabaseURL string `mapstructure:"database_url"`

	// HotStoreDriver selects the hot-event-store backend: "sqlite" or
	// "redis" (default: sqlite).
	HotStoreDriver string `mapstructure:"hot_store_driver"`

	// HotStoreDSN is the hot store's connection string: a filesystem
	// path for sqlite, a redis:// URL for redis.
	HotStoreDSN string `mapstructure:"hot_store_dsn"`
}

// Default returns a Config with spec defaults applied, before any
// environment overrides.
func Default() Config {
	return Config{
		MigrationBatchSize:       1000,
		MigrationMaxBatches:      10,
		D1RetentionDays:          7,
		PaymentRetryEnabled:      true,
		PaymentRetryMaxRetries:   3,
		PaymentRetryBaseInterval: 24 * time.Hour,
		DefaultCurrency:          "INR",
		ListenAddr:               ":8080",
		HotStoreDriver:           "sqlite",
		HotStoreDSN:              "./hotstore.db",
	}
}

// Load reads configuration from the process environment, falling back
// to Default() for anything unset. Env vars are matched
// case-insensitively against each field's mapstructure tag uppercased
// (MIGRATION_BATCH_SIZE, GATEWAY_KEY_ID, ...).
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("migration_batch_size", def.MigrationBatchSize)
	v.SetDefault("migration_max_batches", def.MigrationMaxBatches)
	v.SetDefault("d1_retention_days", def.D1RetentionDays)
	v.SetDefault("payment_retry_enabled", def.PaymentRetryEnabled)
	v.SetDefault("payment_retry_max_retries", def.PaymentRetryMaxRetries)
	v.SetDefault("payment_retry_base_interval", def.PaymentRetryBaseInterval)
	v.SetDefault("default_currency", def.DefaultCurrency)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("hot_store_driver", def.HotStoreDriver)
	v.SetDefault("hot_store_dsn", def.HotStoreDSN)

	for _, key := range []string{
		"migration_batch_size", "migration_max_batches", "d1_retention_days",
		"payment_retry_enabled", "payment_retry_max_retries", "payment_retry_base_interval",
		"default_currency", "gateway_key_id", "gateway_secret", "gateway_webhook_secret",
		"listen_addr", "database_url", "hot_store_driver", "hot_store_dsn",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports missing required fields.
func (c Config) Validate() error {
	if c.GatewayKeyID == "" || c.GatewaySecret == "" || c.GatewayWebhookSecret == "" {
		return fmt.Errorf("config: GATEWAY_KEY_ID, GATEWAY_SECRET, and GATEWAY_WEBHOOK_SECRET must all be set")
	}
	if c.MigrationBatchSize <= 0 {
		return fmt.Errorf("config: migration_batch_size must be positive")
	}
	if c.PaymentRetryMaxRetries < 0 {
		return fmt.Errorf("config: payment_retry_max_retries must not be negative")
	}
	return nil
}
