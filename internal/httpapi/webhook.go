package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/invoiceflow/billing"
	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/payment"
	"github.com/invoiceflow/billing/refund"
)

// webhookEnvelope is the gateway's outer webhook shape: an event name
// carrying its family as a dot-prefix ("payment.captured",
// "refund.processed") and a payload keyed by entity.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			ID      string `json:"id"`
			OrderID string `json:"order_id"`
			Method  string `json:"method"`
		} `json:"payment"`
		Refund *struct {
			ID string `json:"id"`
		} `json:"refund"`
	} `json:"payload"`
}

// handleWebhook implements spec.md §6's gateway webhook endpoint (C9,
// C10): signature verification, family routing, and the response-code
// contract the gateway's own retry policy depends on.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	sig := c.GetHeader("X-Signature")
	if !gateway.VerifyWebhookSignature(s.Webhook.WebhookSecret, body, sig) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	switch {
	case strings.HasPrefix(env.Event, "payment."):
		if env.Payload.Payment == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing payment payload"})
			return
		}
		status := strings.TrimPrefix(env.Event, "payment.")
		_, err := s.Engine.ProcessPaymentWebhook(ctx, payment.WebhookEvent{
			GatewayPaymentID: env.Payload.Payment.ID,
			GatewayOrderID:   env.Payload.Payment.OrderID,
			GatewayStatus:    status,
			Method:           env.Payload.Payment.Method,
		})
		s.respondToWebhookResult(c, err)

	case strings.HasPrefix(env.Event, "refund."):
		if env.Payload.Refund == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing refund payload"})
			return
		}
		status := strings.TrimPrefix(env.Event, "refund.")
		_, err := s.Engine.ProcessRefundWebhook(ctx, refund.WebhookEvent{
			GatewayRefundID: env.Payload.Refund.ID,
			GatewayStatus:   status,
		})
		s.respondToWebhookResult(c, err)

	default:
		// Unknown families ack with 200 so the gateway stops retrying.
		c.Status(http.StatusOK)
	}
}

func (s *Server) respondToWebhookResult(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}
	switch billing.Kind(err) {
	case billing.KindValidation, billing.KindConflict:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		// Processing failures surface as 5xx so the gateway retries.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
