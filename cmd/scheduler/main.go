// Command scheduler drives the billing engine's six cron jobs: hot
// event migration, HES cleanup, reconciliation, monthly invoice
// generation, payment retry, and exchange-rate sync.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	goredis "github.com/redis/go-redis/v9"

	"github.com/invoiceflow/billing"
	"github.com/invoiceflow/billing/fx"
	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/internal/config"
	"github.com/invoiceflow/billing/reconcile"
	"github.com/invoiceflow/billing/store/postgres"
	"github.com/invoiceflow/billing/store/redis"
	"github.com/invoiceflow/billing/store/sqlite"
	"github.com/invoiceflow/billing/usage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	hot, err := openHotStore(ctx, cfg)
	if err != nil {
		logger.Error("open hot store", "error", err)
		os.Exit(1)
	}

	s := postgres.NewStore(db)
	gwCfg := gateway.Config{
		KeyID:         cfg.GatewayKeyID,
		Secret:        cfg.GatewaySecret,
		WebhookSecret: cfg.GatewayWebhookSecret,
		Currency:      cfg.DefaultCurrency,
	}
	gw := gateway.NewClient(gwCfg, s.FX)

	engine := billing.New(s, cfg, gw, billing.WithLogger(logger))
	engine.SetHotStore(hot)

	c := cron.New()

	mustAddJob(c, logger, "migration", "*/5 * * * *", func() {
		result, err := engine.RunMigration(ctx)
		if err != nil {
			logger.Error("migration run failed", "error", err)
			return
		}
		logger.Info("migration run complete", "events_migrated", result.EventsMigrated, "batches", result.BatchesRun)
	})

	mustAddJob(c, logger, "hes_cleanup", "0 1 * * *", func() {
		n, err := engine.RunHotEventPurge(ctx, hot)
		if err != nil {
			logger.Error("hes cleanup failed", "error", err)
			return
		}
		logger.Info("hes cleanup complete", "purged", n)
	})

	mustAddJob(c, logger, "reconciliation", "0 2 * * *", func() {
		runReconciliation(ctx, engine, logger)
	})

	mustAddJob(c, logger, "invoice_generation", "0 3 1 * *", func() {
		runInvoiceGeneration(ctx, engine, logger)
	})

	mustAddJob(c, logger, "payment_retry", "0 */6 * * *", func() {
		result, err := engine.RunPaymentRetries(ctx)
		if err != nil {
			logger.Error("payment retry run failed", "error", err)
			return
		}
		logger.Info("payment retry run complete", "attempted", result.Attempted, "final_failures", result.FinalFailures)
	})

	mustAddJob(c, logger, "fx_sync", "0 4 * * *", func() {
		runFXSync(ctx, s.FX, logger)
	})

	c.Start()
	logger.Info("scheduler started")

	<-ctx.Done()
	logger.Info("shutting down")
	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func mustAddJob(c *cron.Cron, logger *slog.Logger, name, spec string, job func()) {
	if _, err := c.AddFunc(spec, job); err != nil {
		logger.Error("register cron job", "job", name, "spec", spec, "error", err)
		os.Exit(1)
	}
}

func runReconciliation(ctx context.Context, engine *billing.Engine, logger *slog.Logger) {
	orgs, err := engine.Store.Orgs.List(ctx)
	if err != nil {
		logger.Error("reconciliation: list orgs failed", "error", err)
		return
	}
	ids := make([]id.OrgID, 0, len(orgs))
	for _, o := range orgs {
		ids = append(ids, o.ID)
	}

	now := time.Now().UTC()
	month, year := int(now.Month()), now.Year()

	for _, run := range engine.Reconciler.ReconcileAggregateEvents(ctx, ids, month, year) {
		if run.Status == reconcile.StatusDiscrepancy {
			logger.Warn("reconciliation discrepancy", "scope", run.Scope, "key", run.Key, "detail", run.Detail)
		}
	}
	for _, run := range engine.Reconciler.ReconcileLocalGatewayPayments(ctx, ids, now) {
		if run.Status == reconcile.StatusDiscrepancy {
			logger.Warn("reconciliation discrepancy", "scope", run.Scope, "key", run.Key, "detail", run.Detail)
		}
	}
	logger.Info("reconciliation run complete", "orgs", len(ids))
}

func runInvoiceGeneration(ctx context.Context, engine *billing.Engine, logger *slog.Logger) {
	orgs, err := engine.Store.Orgs.List(ctx)
	if err != nil {
		logger.Error("invoice generation: list orgs failed", "error", err)
		return
	}

	prev := time.Now().UTC().AddDate(0, -1, 0)
	month, year := int(prev.Month()), prev.Year()

	for _, o := range orgs {
		if _, err := engine.GenerateInvoice(ctx, o.ID, month, year); err != nil {
			logger.Error("invoice generation failed", "org", o.ID.String(), "month", month, "year", year, "error", err)
		}
	}
	logger.Info("invoice generation run complete", "orgs", len(orgs), "month", month, "year", year)
}

// runFXSync drives the daily exchange-rate sync job. No live-rate
// provider ships in this module (out of scope); the job is a no-op
// until a deploy supplies one, logged so its absence is visible rather
// than silently skipped forever.
func runFXSync(ctx context.Context, store fx.Store, logger *slog.Logger) {
	var provider fx.Provider
	if provider == nil {
		logger.Info("fx sync skipped: no rate provider configured")
		return
	}
	n, err := fx.Sync(ctx, provider, store, time.Now().UTC())
	if err != nil {
		logger.Error("fx sync failed", "error", err)
		return
	}
	logger.Info("fx sync complete", "rates", n)
}

func openHotStore(ctx context.Context, cfg config.Config) (usage.HotStore, error) {
	switch cfg.HotStoreDriver {
	case "redis":
		opts, err := goredis.ParseURL(cfg.HotStoreDSN)
		if err != nil {
			return nil, err
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return redis.New(client), nil
	default:
		st, err := sqlite.Open(cfg.HotStoreDSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		return st, nil
	}
}
