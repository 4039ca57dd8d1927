package api

import (
	"net/http"
	"strconv"
	"time"

	"kaspi-sync/internal/redisclient"
	"kaspi-sync/internal/service"
	"kaspi-sync/internal/store"
	"kaspi-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	store    *store.Store
	sync     *service.SyncService
	forecast *service.ForecastService
	cache    *redisclient.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(st *store.Store, sync *service.SyncService, forecast *service.ForecastService, cache *redisclient.Client) *Handler {
	return &Handler{
		store:    st,
		sync:     sync,
		forecast: forecast,
		cache:    cache,
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
		v1.POST("/sync/:tier", h.triggerSync)
		v1.GET("/orders/:external_id", h.getOrder)
		v1.GET("/products/:sku/stock", h.getStock)
		v1.GET("/products/:sku/replenishment", h.getReplenishment)
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

// triggerSync runs one sync tier inline. Serialization of concurrent runs
// is the caller's concern, same as for the scheduled workers.
func (h *Handler) triggerSync(c *gin.Context) {
	tier := c.Param("tier")

	var err error
	switch tier {
	case service.TierNew:
		err = h.sync.SyncNew(c.Request.Context())
	case service.TierActive:
		err = h.sync.SyncActive(c.Request.Context())
	case service.TierArchive:
		days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))
		err = h.sync.SyncArchive(c.Request.Context(), days)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier: " + tier})
		return
	}

	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": tier, "status": "completed"})
}

// getOrder returns one order with its items and finance snapshot.
func (h *Handler) getOrder(c *gin.Context) {
	externalID := c.Param("external_id")

	order, err := h.store.GetOrderByExternalID(c.Request.Context(), externalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	items, err := h.store.ListOrderItems(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	finance, err := h.store.GetFinanceSnapshot(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	history, err := h.store.ListStatusHistory(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	events, err := h.store.ListFinanceEventsByOrder(c.Request.Context(), order.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":          order,
		"items":          items,
		"finance":        finance,
		"status_history": history,
		"finance_events": events,
	})
}

// getStock returns the current stock quantity for a SKU, served from the
// Redis mirror when available, with the database as fallback.
func (h *Handler) getStock(c *gin.Context) {
	sku := c.Param("sku")

	product, err := h.store.GetProductBySKU(c.Request.Context(), sku)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	if h.cache != nil {
		if quantity, found, err := h.cache.GetStockQuantity(c.Request.Context(), product.ID); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"sku": sku, "quantity": quantity, "source": "cache"})
			return
		}
	}

	quantity, _, err := h.store.GetStockBySKU(c.Request.Context(), sku)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": sku, "quantity": quantity, "source": "db"})
}

// getReplenishment returns the recommended purchase quantity for a SKU.
func (h *Handler) getReplenishment(c *gin.Context) {
	sku := c.Param("sku")

	quantity, err := h.forecast.Recommendation(c.Request.Context(), sku)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sku":                  sku,
		"recommended_quantity": quantity,
	})
}

// prometheusMiddleware records request counts and latency
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
