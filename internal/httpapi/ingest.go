package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invoiceflow/billing"
	"github.com/invoiceflow/billing/id"
	"github.com/invoiceflow/billing/money"
	"github.com/invoiceflow/billing/org"
	"github.com/invoiceflow/billing/usage"
)

type ingestRequest struct {
	EventID        string            `json:"event_id" binding:"required"`
	MetricName     string            `json:"metric_name" binding:"required"`
	MetricValue    string            `json:"metric_value" binding:"required"`
	Unit           string            `json:"unit" binding:"required"`
	Timestamp      *time.Time        `json:"timestamp"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// handleIngest implements spec.md §6's usage ingestion endpoint (C3).
func (s *Server) handleIngest(c *gin.Context) {
	proj, err := s.authenticateProject(c)
	if err != nil {
		if err == billing.ErrUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		}
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	value, err := money.NewRate(req.MetricValue)
	if err != nil || value.Decimal().IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metric_value must be a non-negative decimal"})
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = req.EventID
	}

	evt := &usage.Event{
		ID:             id.NewUsageEventID(),
		OrgID:          proj.OrgID,
		ProjectID:      proj.ID,
		Metric:         req.MetricName,
		Value:          value,
		Unit:           req.Unit,
		Timestamp:      ts,
		IdempotencyKey: idempotencyKey,
	}

	result, err := s.Engine.Ingest(c.Request.Context(), s.Hot, evt)
	if err != nil {
		errorResponse(c, err)
		return
	}
	if result == usage.Duplicate {
		c.JSON(http.StatusCreated, gin.H{"eventId": "duplicate"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"eventId": evt.ID.String()})
}

// authenticateProject validates the ingestion endpoint's bearer token
// against the project API key hash (spec.md §6).
func (s *Server) authenticateProject(c *gin.Context) (*org.Project, error) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, billing.ErrUnauthorized
	}
	key := strings.TrimPrefix(header, prefix)
	return org.Authenticate(c.Request.Context(), s.Projects, key)
}
