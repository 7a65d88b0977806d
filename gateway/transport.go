package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/invoiceflow/billing/money"
)

// defaultBaseURL is the gateway's API root. HTTPTransport.BaseURL
// overrides it, e.g. for tests against a local httptest server.
const defaultBaseURL = "https://api.razorpay.com/v1"

// HTTPTransport implements CreateOrderFunc and RefundFunc over the
// gateway's real HTTP API: HTTP basic auth with KeyID/Secret, minor-unit
// integer amounts, JSON request/response bodies.
type HTTPTransport struct {
	BaseURL string
	KeyID   string
	Secret  string
	Client  *http.Client
}

// NewHTTPTransport builds a transport using cfg's credentials and an
// http.Client with no timeout of its own — callers bound calls via the
// request context instead.
func NewHTTPTransport(cfg Config) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: defaultBaseURL,
		KeyID:   cfg.KeyID,
		Secret:  cfg.Secret,
		Client:  &http.Client{},
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateOrder posts a new order to the gateway. It satisfies
// Client.CreateOrderFunc.
func (t *HTTPTransport) CreateOrder(ctx context.Context, receipt string, amount money.Amount) (Order, error) {
	body, err := json.Marshal(createOrderRequest{
		Amount:   amount.MinorUnits(),
		Currency: amount.Currency(),
		Receipt:  receipt,
	})
	if err != nil {
		return Order{}, fmt.Errorf("gateway transport: encode create order: %w", err)
	}

	var resp orderResponse
	if err := t.do(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return Order{}, err
	}

	return Order{
		GatewayOrderID: resp.ID,
		Amount:         money.NewAmountFromInt(resp.Amount, resp.Currency),
		Receipt:        resp.Receipt,
		Status:         resp.Status,
	}, nil
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund posts a refund request against an existing gateway payment. It
// satisfies Client.RefundFunc.
func (t *HTTPTransport) Refund(ctx context.Context, gatewayPaymentID string, amount money.Amount) (GatewayRefund, error) {
	body, err := json.Marshal(refundRequest{Amount: amount.MinorUnits()})
	if err != nil {
		return GatewayRefund{}, fmt.Errorf("gateway transport: encode refund: %w", err)
	}

	var resp refundResponse
	path := fmt.Sprintf("/payments/%s/refund", gatewayPaymentID)
	if err := t.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return GatewayRefund{}, err
	}

	return GatewayRefund{GatewayRefundID: resp.ID, Status: resp.Status}, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(t.KeyID, t.Secret)

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("gateway transport: %s %s: status %d", method, path, resp.StatusCode)
		if resp.StatusCode < 500 {
			// Non-5xx rejections are not transient: stop Client.retry.
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway transport: decode response: %w", err)
	}
	return nil
}
