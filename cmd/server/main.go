// Command server runs the billing engine's HTTP surface: usage
// ingestion, payment order creation, and the gateway webhook.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/invoiceflow/billing"
	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/internal/config"
	"github.com/invoiceflow/billing/internal/httpapi"
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
	if err := db.Migrate(ctx); err != nil {
		logger.Error("migrate postgres", "error", err)
		os.Exit(1)
	}

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

	api := httpapi.New(engine, hot, s.Projects, gwCfg, logger)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
}

// openHotStore selects the hot-event-store driver named by
// HOT_STORE_DRIVER (spec.md's HES, C3's storage target).
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
