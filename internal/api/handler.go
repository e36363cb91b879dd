package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"devis-service/internal/models"
	"devis-service/internal/service"
	"devis-service/internal/util"
	"devis-service/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	quoteService   *service.QuoteService
	catalogService *service.CatalogService
}

// NewHandler creates a new HTTP handler
func NewHandler(quoteService *service.QuoteService, catalogService *service.CatalogService) *Handler {
	return &Handler{
		quoteService:   quoteService,
		catalogService: catalogService,
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

	v1 := router.Group("/api/v1")
	{
		v1.GET("/catalog", h.getCatalog)
		v1.GET("/catalog/:id", h.getCatalogItem)
		v1.POST("/quotes", h.createQuote)
		v1.GET("/quotes", h.listQuotes)
		v1.GET("/quotes/:id", h.getQuote)
		v1.GET("/statuses", h.getStatuses)
		v1.POST("/quotes/:id/submit", h.submitQuote)
		v1.POST("/quotes/:id/validate", h.validateQuote)
		v1.POST("/quotes/:id/status", h.adminTransition)
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

// getCatalog returns all catalog items with their price bands
func (h *Handler) getCatalog(c *gin.Context) {
	items, err := h.catalogService.GetItems(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load catalog",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// getCatalogItem returns one catalog item through the snapshot cache
func (h *Handler) getCatalogItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid catalog item ID"})
		return
	}

	item, err := h.catalogService.GetItem(c.Request.Context(), itemID)
	if err != nil {
		h.writeError(c, err, "Failed to load catalog item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// getStatuses returns the transition vocabulary for the triage screen
func (h *Handler) getStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"statuses": workflow.AdminTargets()})
}

// createQuote handles wizard submissions
func (h *Handler) createQuote(c *gin.Context) {
	var req service.CreateQuoteRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.quoteService.CreateQuote(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err, "Failed to create quote")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getQuote handles get quote by ID
func (h *Handler) getQuote(c *gin.Context) {
	quoteID, ok := h.quoteID(c)
	if !ok {
		return
	}

	quote, err := h.quoteService.GetQuote(c.Request.Context(), quoteID)
	if err != nil {
		h.writeError(c, err, "Failed to load quote")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

// listQuotes handles the triage listing, optionally filtered by status
func (h *Handler) listQuotes(c *gin.Context) {
	var status *models.QuoteStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = &parsed
	}

	quotes, err := h.quoteService.ListQuotes(c.Request.Context(), status)
	if err != nil {
		h.writeError(c, err, "Failed to list quotes")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

// submitQuote handles client submission of a draft
func (h *Handler) submitQuote(c *gin.Context) {
	quoteID, ok := h.quoteID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	quote, err := h.quoteService.Submit(c.Request.Context(), quoteID, actor)
	if err != nil {
		h.writeError(c, err, "Failed to submit quote")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

// validateQuote handles client validation of the admin proposal
func (h *Handler) validateQuote(c *gin.Context) {
	quoteID, ok := h.quoteID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	quote, err := h.quoteService.ClientValidate(c.Request.Context(), quoteID, actor)
	if err != nil {
		h.writeError(c, err, "Failed to validate quote")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

type adminTransitionRequest struct {
	Target string `json:"target" binding:"required"`
}

// adminTransition handles triage status changes
func (h *Handler) adminTransition(c *gin.Context) {
	quoteID, ok := h.quoteID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req adminTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	target, err := models.ParseStatus(req.Target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quote, err := h.quoteService.AdminTransition(c.Request.Context(), quoteID, target, actor)
	if err != nil {
		h.writeError(c, err, "Failed to transition quote")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": quote})
}

func (h *Handler) quoteID(c *gin.Context) (int64, bool) {
	quoteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quote ID"})
		return 0, false
	}
	return quoteID, true
}

// actor reads the caller identity from headers. Identity is an explicit
// value on every call; the service keeps no ambient session state.
func (h *Handler) actor(c *gin.Context) (models.Actor, bool) {
	id := c.GetHeader("X-Actor-Id")
	role := models.ActorRole(c.GetHeader("X-Actor-Role"))

	if id == "" || (role != models.RoleClient && role != models.RoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing or invalid X-Actor-Id / X-Actor-Role headers",
		})
		return models.Actor{}, false
	}
	return models.Actor{ID: id, Role: role}, true
}

func (h *Handler) writeError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConcurrentModification):
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
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
