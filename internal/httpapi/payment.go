package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoiceflow/billing"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/invoice"
)

type paymentOrderRequest struct {
	CustomerID string `json:"customerId"`
}

// handleCreatePaymentOrder implements spec.md §6's payment-order
// endpoint: place a gateway order against a finalized invoice.
func (s *Server) handleCreatePaymentOrder(c *gin.Context) {
	invID, err := id.ParseInvoiceID(c.Param("invoiceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoiceId"})
		return
	}

	var req paymentOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	inv, err := s.Engine.Store.Invoices.Get(ctx, invID)
	if err != nil {
		if err == invoice.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		errorResponse(c, billing.DatabaseError{Op: "invoice.Get", Err: err})
		return
	}

	pay, order, err := s.Engine.CreatePaymentOrder(ctx, inv)
	if err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"orderId":   order.GatewayOrderID,
		"paymentId": pay.ID.String(),
		"amount":    order.Amount.MinorUnits(),
		"currency":  order.Amount.Currency(),
		"status":    order.Status,
		"receipt":   order.Receipt,
	})
}
