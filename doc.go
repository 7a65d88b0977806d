// Package billing implements a usage-based multi-tenant billing
// engine: metered event ingestion, monthly invoice generation with
// per-unit pricing and minimum charges, gateway-backed payment collection with
// retry, refunds, and cross-store reconciliation.
//
// # Quick start
//
//	import (
//	    "github.com/invoiceflow/billing"
//	    "github.com/invoiceflow/billing/internal/config"
//	    "github.com/invoiceflow/billing/store/postgres"
//	)
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	db, err := postgres.New(ctx, dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	gw := &gateway.Client{Config: gateway.Config{
//	    KeyID: cfg.GatewayKeyID, Secret: cfg.GatewaySecret, WebhookSecret: cfg.GatewayWebhookSecret,
//	}}
//
//	engine := billing.New(postgres.NewStore(db), cfg, gw)
//
// # Pipeline
//
// Usage events land in a hot store (Redis or SQLite) via Engine.Ingest,
// get drained into the durable store by a migration worker on a
// schedule, and are aggregated monthly per (org, project, metric).
// GenerateInvoice applies pricing rules to those aggregates and writes
// a draft invoice; FinalizeInvoice locks it; CreatePaymentOrder hands
// it to the gateway; ProcessPaymentWebhook applies the gateway's
// confirmation back onto the payment and invoice.
//
// # Identifiers
//
// Every entity uses a TypeID-style identifier carrying a short prefix
// naming its kind:
//
//	org_01h2xcejqtf2nbrexx3vqjhp41
//	inv_01h455vb4pex5vsknk084sn02q
//	pay_01h455vb4pex5vsknk084sn02q
//
// TypeIDs are K-sortable, so they double as natural database indexes.
//
// # Money
//
// All monetary values use exact decimal arithmetic (money.Amount,
// money.Rate) — no float64 ever touches a monetary field.
package billing
