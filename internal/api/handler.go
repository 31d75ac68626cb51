package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"listing-service/internal/gateway"
	"listing-service/internal/models"
	"listing-service/internal/service"
	"listing-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds the HTTP-facing settings
type HandlerConfig struct {
	FrontendResultURL string
	CallbackRateLimit float64
	CallbackBurst     int
}

// Handler contains HTTP handlers
type Handler struct {
	payments  *service.PaymentService
	lifecycle *service.ListingLifecycle
	callbacks *service.CallbackRouter
	catalog   *service.Catalog
	checks    map[string]Pinger
	limiter   *RateLimiter
	cfg       HandlerConfig
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	payments *service.PaymentService,
	lifecycle *service.ListingLifecycle,
	callbacks *service.CallbackRouter,
	catalog *service.Catalog,
	checks map[string]Pinger,
	cfg HandlerConfig,
) *Handler {
	return &Handler{
		payments:  payments,
		lifecycle: lifecycle,
		callbacks: callbacks,
		catalog:   catalog,
		checks:    checks,
		limiter:   NewRateLimiter(cfg.CallbackRateLimit, cfg.CallbackBurst),
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// Close releases background resources held by the handler
func (h *Handler) Close() {
	h.limiter.Shutdown()
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/packages", h.listPackages)

		payments := v1.Group("/payments")
		payments.POST("/package/:listingId", h.choosePackage)
		payments.POST("/renew/:listingId", h.renew)
		payments.POST("/retry/:paymentId", h.retry)
		payments.GET("/:paymentId", h.getPayment)

		gateways := payments.Group("", h.limiter.Middleware())
		gateways.GET("/redirect-gateway/return", h.vnpayReturn)
		gateways.GET("/redirect-gateway/ipn", h.vnpayIPN)
		gateways.POST("/redirect-gateway/ipn", h.vnpayIPN)
		gateways.POST("/webhook-gateway/ipn", h.payosWebhook)

		listings := v1.Group("/listings")
		listings.GET("/:id", h.getListing)
		listings.GET("/:id/payments", h.listPayments)
		listings.POST("/:id/approve", h.approve)
		listings.POST("/:id/reject", h.reject)
		listings.POST("/:id/hide", h.hide)
		listings.POST("/:id/unhide", h.unhide)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listPackages(c *gin.Context) {
	packages, options, err := h.catalog.Packages(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"packages": packages,
		"options":  options,
	})
}

// choosePackage handles the package choice for a draft listing
func (h *Handler) choosePackage(c *gin.Context) {
	listingID, ok := h.uuidParam(c, "listingId")
	if !ok {
		return
	}

	var req service.ChoosePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	resp, err := h.payments.ChoosePackage(c.Request.Context(), listingID, &req, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// renew handles renewal of an active or expired listing
func (h *Handler) renew(c *gin.Context) {
	listingID, ok := h.uuidParam(c, "listingId")
	if !ok {
		return
	}

	var req service.RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	resp, err := h.payments.Renew(c.Request.Context(), listingID, &req, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) retry(c *gin.Context) {
	paymentID, ok := h.uuidParam(c, "paymentId")
	if !ok {
		return
	}

	resp, err := h.payments.Retry(c.Request.Context(), paymentID, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getPayment(c *gin.Context) {
	paymentID, ok := h.uuidParam(c, "paymentId")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// vnpayReturn settles from the browser redirect and always sends the buyer
// on to the frontend result page
func (h *Handler) vnpayReturn(c *gin.Context) {
	res, err := h.callbacks.HandleCallback(c.Request.Context(), models.GatewayVNPay, gateway.RawCallback{Query: c.Request.URL.Query()})

	q := url.Values{}
	switch {
	case err != nil:
		q.Set("status", "error")
		q.Set("code", string(models.CodeOf(err)))
	case res.Payment.Status == models.PaymentStatusCompleted:
		q.Set("status", "success")
	default:
		q.Set("status", "failed")
	}
	if err == nil {
		q.Set("payment_id", res.Payment.ID.String())
		q.Set("listing_id", res.Payment.ListingID.String())
	}

	c.Redirect(http.StatusFound, h.resultURL(q))
}

// vnpayIPN answers VNPay's server-to-server notification. VNPay reads the
// RspCode, so the HTTP status is always 200.
func (h *Handler) vnpayIPN(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusOK, gin.H{"RspCode": vnpayUnknownFailure, "Message": "Invalid request"})
		return
	}

	_, err := h.callbacks.HandleCallback(c.Request.Context(), models.GatewayVNPay, gateway.RawCallback{Query: c.Request.Form})
	code, message := vnpayAck(err)
	if err != nil && code == vnpayUnknownFailure {
		h.logger.Error("VNPay IPN failed", zapRequest(c, err)...)
	}
	c.JSON(http.StatusOK, gin.H{"RspCode": code, "Message": message})
}

// payosWebhook answers PayOS. Anything but 2xx makes PayOS retry.
func (h *Handler) payosWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "01", "desc": "unreadable body"})
		return
	}

	if _, err := h.callbacks.HandleCallback(c.Request.Context(), models.GatewayPayOS, gateway.RawCallback{Body: body}); err != nil {
		status := httpStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("PayOS webhook failed", zapRequest(c, err)...)
		}
		c.JSON(status, gin.H{"code": "01", "desc": errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "00", "desc": "success"})
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	listing, err := h.lifecycle.GetListing(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) listPayments(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if payments == nil {
		payments = []models.PaymentRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) approve(c *gin.Context) {
	h.transition(c, h.lifecycle.Approve)
}

func (h *Handler) reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.transition(c, func(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
		return h.lifecycle.Reject(ctx, id, req.Reason)
	})
}

func (h *Handler) hide(c *gin.Context) {
	h.transition(c, h.lifecycle.Hide)
}

func (h *Handler) unhide(c *gin.Context) {
	h.transition(c, h.lifecycle.Unhide)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, uuid.UUID) (*models.Listing, error)) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}

	listing, err := fn(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   models.ErrCodeInvalidRequest,
			"message": "invalid " + name,
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   models.ErrCodeInvalidRequest,
		"message": "Invalid request body",
		"details": err.Error(),
	})
}

func (h *Handler) resultURL(q url.Values) string {
	u, err := url.Parse(h.cfg.FrontendResultURL)
	if err != nil {
		return h.cfg.FrontendResultURL
	}
	merged := u.Query()
	for k, v := range q {
		merged[k] = v
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

func zapRequest(c *gin.Context, err error) []zap.Field {
	return []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	}
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
