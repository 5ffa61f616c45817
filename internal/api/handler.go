package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/provider"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	checkoutService  *service.CheckoutService
	reconcileService *service.ReconcileService
	paypal           *provider.PayPalClient
	paddle           *provider.PaddleClient
	logger           *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkoutService *service.CheckoutService,
	reconcileService *service.ReconcileService,
	paypal *provider.PayPalClient,
	paddle *provider.PaddleClient,
) *Handler {
	return &Handler{
		checkoutService:  checkoutService,
		reconcileService: reconcileService,
		paypal:           paypal,
		paddle:           paddle,
		logger:           util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/paddle", h.paddleWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.POST("/checkout", h.openCheckout)
		v1.POST("/checkout/capture", h.capturePayPal)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/deliver", h.deliverOrder)
		v1.POST("/orders/:id/revision", h.requestRevision)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts serves the cached catalog listing
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.checkoutService.ListProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// openCheckout starts a checkout session with one of the providers
func (h *Handler) openCheckout(c *gin.Context) {
	var body checkoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	req, err := body.normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.checkoutService.OpenSession(c.Request.Context(), req)
	if err != nil {
		status, message := errorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// capturePayPal confirms an approved PayPal order server-side and feeds the
// result into reconciliation. This is the client-confirmation ingress path.
func (h *Handler) capturePayPal(c *gin.Context) {
	var body captureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	req, err := body.normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	capture, err := h.paypal.CaptureOrder(c.Request.Context(), req.OrderID)
	if err != nil {
		status, message := errorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	if !capture.Completed {
		c.JSON(http.StatusConflict, gin.H{"error": "Payment not completed"})
		return
	}

	email := capture.Email
	if email == "" {
		email = req.Email
	}

	result, err := h.reconcileService.Reconcile(c.Request.Context(), &service.ReconcileEvent{
		Provider:      "paypal",
		CorrelationID: capture.CorrelationID,
		Email:         email,
		Amount:        decimalFromCapture(capture),
	})
	if err != nil {
		status, message := errorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, result)
}

// paddleWebhook is the webhook ingress path. The raw body is read before any
// JSON parsing because the signature covers the exact bytes on the wire.
func (h *Handler) paddleWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("paddle", "read_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	signature := c.GetHeader("Paddle-Signature")
	if err := h.paddle.VerifyWebhookSignature(raw, signature); err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("paddle", "bad_signature").Inc()
		h.logger.Warn("Webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}
	if !h.paddle.HasWebhookSecret() {
		h.logger.Warn("Webhook accepted without verification: no secret configured")
	}

	var body paddleWebhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("paddle", "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed payload"})
		return
	}

	result, err := h.reconcileService.Reconcile(c.Request.Context(), body.toEvent())
	if err != nil {
		status, message := errorStatus(err)
		util.WebhooksReceivedTotal.WithLabelValues("paddle", "error").Inc()
		h.logger.Error("Webhook reconciliation failed",
			zap.String("checkout_id", firstString(body.CheckoutID, body.CheckoutIDAlt)),
			zap.Error(err))
		// Non-2xx so the provider's retry mechanism kicks in.
		c.JSON(status, gin.H{"error": message})
		return
	}

	util.WebhooksReceivedTotal.WithLabelValues("paddle", "ok").Inc()
	// Duplicates are reported as success to stop provider retry storms.
	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"duplicate": result.Duplicate,
		"order_id":  result.OrderID,
	})
}

// getOrder handles get order by opaque id
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.checkoutService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, message := errorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// deliverOrder records fulfillment of an order
func (h *Handler) deliverOrder(c *gin.Context) {
	var body struct {
		ArchiveURL string `json:"archive_url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.checkoutService.MarkDelivered(c.Request.Context(), c.Param("id"), body.ArchiveURL); err != nil {
		status, message := errorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusDelivered})
}

// requestRevision flips an order into revision status
func (h *Handler) requestRevision(c *gin.Context) {
	if err := h.checkoutService.RequestRevision(c.Request.Context(), c.Param("id")); err != nil {
		status, message := errorStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusRevision})
}

// errorStatus maps the error taxonomy onto HTTP statuses. Provider errors
// pass their own status and message through.
func errorStatus(err error) (int, string) {
	var perr *models.ProviderError
	switch {
	case errors.As(err, &perr):
		status := perr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return status, perr.Error()
	case errors.Is(err, models.ErrMalformedPayload), errors.Is(err, models.ErrInvalidProduct):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrInvalidSignature):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func decimalFromCapture(capture *provider.CaptureResult) decimal.NullDecimal {
	if capture.Amount.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: capture.Amount, Valid: true}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
