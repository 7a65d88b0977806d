package gateway_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/invoiceflow/billing/fx"
	fxmem "github.com/invoiceflow/billing/fx/memory"
	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/money"
)

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.captured"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !gateway.VerifyWebhookSignature(secret, body, sig) {
		t.Error("expected valid signature to verify")
	}
	if gateway.VerifyWebhookSignature(secret, body, "00"+sig[2:]) {
		t.Error("expected tampered signature to fail verification")
	}
	if gateway.VerifyWebhookSignature(secret, []byte(`{"event":"payment.failed"}`), sig) {
		t.Error("expected signature over a different body to fail verification")
	}
}

func TestCreateOrderAcceptsWithinTolerance(t *testing.T) {
	client := &gateway.Client{
		Config: gateway.Config{Currency: "INR"},
		CreateOrderFunc: func(ctx context.Context, receipt string, amount money.Amount) (gateway.Order, error) {
			// Gateway echoes back 1 paisa less, within tolerance.
			off := amount.Sub(money.NewAmountFromInt(1, "INR"))
			return gateway.Order{GatewayOrderID: "order_1", Amount: off, Status: "created"}, nil
		},
	}

	order, err := client.CreateOrder(context.Background(), "receipt-1", money.MustAmount("100.00", "INR"), time.Now())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.GatewayOrderID != "order_1" {
		t.Errorf("got order id %q, want order_1", order.GatewayOrderID)
	}
}

func TestCreateOrderRejectsBeyondTolerance(t *testing.T) {
	client := &gateway.Client{
		Config: gateway.Config{Currency: "INR"},
		CreateOrderFunc: func(ctx context.Context, receipt string, amount money.Amount) (gateway.Order, error) {
			off := amount.Sub(money.NewAmountFromInt(2, "INR"))
			return gateway.Order{GatewayOrderID: "order_2", Amount: off, Status: "created"}, nil
		},
	}

	_, err := client.CreateOrder(context.Background(), "receipt-2", money.MustAmount("100.00", "INR"), time.Now())
	if err == nil {
		t.Fatal("expected a 2-minor-unit discrepancy to be rejected")
	}
}

func TestCreateOrderConvertsCurrency(t *testing.T) {
	store := fxmem.New()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Upsert(context.Background(), fx.ExchangeRate{Base: "USD", Target: "INR", Rate: money.MustRate("83"), EffectiveFrom: at}); err != nil {
		t.Fatal(err)
	}

	var postedAmount money.Amount
	client := &gateway.Client{
		Config: gateway.Config{Currency: "INR"},
		FX:     store,
		CreateOrderFunc: func(ctx context.Context, receipt string, amount money.Amount) (gateway.Order, error) {
			postedAmount = amount
			return gateway.Order{GatewayOrderID: "order_3", Amount: amount, Status: "created"}, nil
		},
	}

	_, err := client.CreateOrder(context.Background(), "receipt-3", money.MustAmount("10.00", "USD"), at)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if postedAmount.Currency() != "INR" {
		t.Fatalf("expected conversion to INR, got %s", postedAmount.Currency())
	}
	if postedAmount.String() != "830.00" {
		t.Errorf("got posted amount %s, want 830.00", postedAmount.String())
	}
}
