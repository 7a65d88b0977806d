// Package gateway implements the outbound payment-gateway adapter
// (spec.md C8), modeled on a Razorpay-style contract: HTTP basic auth,
// minor-unit integer amounts, and HMAC-SHA-256 webhook signatures.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/invoiceflow/billing/fx"
	"github.com/invoiceflow/billing/money"
)

// Config holds the gateway's credentials (spec.md §6: GATEWAY_KEY_ID,
// GATEWAY_SECRET, GATEWAY_WEBHOOK_SECRET).
type Config struct {
	KeyID         string
	Secret        string
	WebhookSecret string
	// Currency is the gateway's single operating currency; orders are
	// always placed in this currency.
	Currency string
}

// Order is the result of creating a payment order with the gateway.
type Order struct {
	GatewayOrderID string
	Amount         money.Amount // in Config.Currency
	Receipt        string
	Status         string
}

// Client talks to the payment gateway.
type Client struct {
	Config Config
	FX     fx.Store
	// CreateOrderFunc is the transport call, injected so tests and the
	// real HTTP client share the same Client type. Production wiring
	// sets this to a Razorpay-shaped HTTP POST under KeyID/Secret basic
	// auth; tests set it to a stub.
	CreateOrderFunc func(ctx context.Context, receipt string, amount money.Amount) (Order, error)
	// RefundFunc issues a refund against an existing gateway payment.
	RefundFunc func(ctx context.Context, gatewayPaymentID string, amount money.Amount) (GatewayRefund, error)
	// RetryMaxElapsed bounds how long transient gateway-call failures
	// (network errors, 5xx) are retried with exponential backoff before
	// giving up. Zero disables retrying — CreateOrder/Refund fail on the
	// first error.
	RetryMaxElapsed time.Duration
}

// NewClient builds a Client wired to the real gateway over HTTP.
func NewClient(cfg Config, fxStore fx.Store) *Client {
	transport := NewHTTPTransport(cfg)
	return &Client{
		Config:          cfg,
		FX:              fxStore,
		CreateOrderFunc: transport.CreateOrder,
		RefundFunc:      transport.Refund,
		RetryMaxElapsed: 30 * time.Second,
	}
}

// retry wraps operation in exponential backoff with up to 30% jitter
// (spec.md §7) when RetryMaxElapsed is set, bounded by ctx.
func (c *Client) retry(ctx context.Context, operation func() error) error {
	if c.RetryMaxElapsed <= 0 {
		return operation()
	}
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.3
	b.MaxElapsedTime = c.RetryMaxElapsed
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// GatewayRefund is the result of an outbound refund call.
type GatewayRefund struct {
	GatewayRefundID string
	Status          string
}

// amountTolerance is the maximum minor-unit discrepancy the adapter
// accepts between the amount it posted and the amount the gateway
// echoes back (spec.md §4.8, §8).
const amountTolerance = 1

// CreateOrder places invoiceAmount as a gateway order, converting into
// the gateway's operating currency via C12 if needed. Refuses (returns
// an error) if no fx rate is on file for the conversion, or if the
// gateway's returned amount differs from the posted amount by more
// than one minor unit.
func (c *Client) CreateOrder(ctx context.Context, receipt string, invoiceAmount money.Amount, at time.Time) (Order, error) {
	posted := invoiceAmount
	if invoiceAmount.Currency() != c.Config.Currency {
		table, err := c.FX.Table(ctx)
		if err != nil {
			return Order{}, fmt.Errorf("gateway: load fx table: %w", err)
		}
		converted, ok := table.Rate(invoiceAmount.Currency(), c.Config.Currency, at)
		if !ok {
			return Order{}, fmt.Errorf("gateway: no exchange rate %s->%s to place order", invoiceAmount.Currency(), c.Config.Currency)
		}
		posted = converted.ApplyToQuantity(invoiceAmount.Decimal(), c.Config.Currency)
	}

	var order Order
	err := c.retry(ctx, func() error {
		var opErr error
		order, opErr = c.CreateOrderFunc(ctx, receipt, posted)
		return opErr
	})
	if err != nil {
		return Order{}, fmt.Errorf("gateway: create order: %w", err)
	}

	diff := posted.MinorUnits() - order.Amount.MinorUnits()
	if diff < 0 {
		diff = -diff
	}
	if diff > amountTolerance {
		return Order{}, fmt.Errorf("gateway: returned amount %d differs from posted amount %d by more than %d minor unit(s)", order.Amount.MinorUnits(), posted.MinorUnits(), amountTolerance)
	}

	return order, nil
}

// Refund issues a refund against an existing gateway payment.
func (c *Client) Refund(ctx context.Context, gatewayPaymentID string, amount money.Amount) (GatewayRefund, error) {
	if c.RefundFunc == nil {
		return GatewayRefund{}, fmt.Errorf("gateway: refund not configured")
	}
	var result GatewayRefund
	err := c.retry(ctx, func() error {
		var opErr error
		result, opErr = c.RefundFunc(ctx, gatewayPaymentID, amount)
		return opErr
	})
	if err != nil {
		return GatewayRefund{}, fmt.Errorf("gateway: refund: %w", err)
	}
	return result, nil
}

// VerifyWebhookSignature checks an inbound webhook's HMAC-SHA-256
// signature (hex-encoded) over the exact raw request body, using a
// constant-time comparison. Only signature-valid requests may proceed.
func VerifyWebhookSignature(secret string, body []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	decoded, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, decoded)
}
