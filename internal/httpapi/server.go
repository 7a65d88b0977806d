// Package httpapi exposes the three HTTP endpoints spec.md names as
// the billing engine's external surface: usage ingestion, payment
// order creation, and the gateway webhook. Everything else — admin
// CRUD, auth for human operators, rate limiting — is explicitly out of
// scope and left to a reverse proxy or a separate service.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoiceflow/billing"
	"github.com/invoiceflow/billing/gateway"
	"github.com/invoiceflow/billing/org"
	"github.com/invoiceflow/billing/usage"
)

// Server wires the engine and hot store into gin handlers.
type Server struct {
	Engine   *billing.Engine
	Hot      usage.HotStore
	Projects org.ProjectLookup
	Webhook  gateway.Config
	Logger   *slog.Logger

	router *gin.Engine
}

// New builds a Server and registers its routes.
func New(engine *billing.Engine, hot usage.HotStore, projects org.ProjectLookup, webhookCfg gateway.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Engine: engine, Hot: hot, Projects: projects, Webhook: webhookCfg, Logger: logger}
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/v1")
	v1.POST("/events", s.handleIngest)
	v1.POST("/invoices/:invoiceId/payment-order", s.handleCreatePaymentOrder)
	v1.POST("/webhooks/gateway", s.handleWebhook)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.Logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

// errorResponse maps a billing error to the status code and body
// spec.md §7 implies for each error kind.
func errorResponse(c *gin.Context, err error) {
	switch billing.Kind(err) {
	case billing.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case billing.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case billing.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case billing.KindPayment:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case billing.KindIntegrity:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
