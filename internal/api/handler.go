package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
	"github.com/vladislavdragonenkov/inventix/internal/health"
	"github.com/vladislavdragonenkov/inventix/internal/service/order"
	"github.com/vladislavdragonenkov/inventix/internal/service/product"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventix_http_requests_total",
		Help: "Total number of HTTP requests grouped by method, route and status.",
	}, []string{"method", "route", "status"})
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventix_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler связывает HTTP-маршруты с доменными сервисами.
type Handler struct {
	orders   *order.Manager
	products *product.Service
	health   *health.Handler
	logger   *log.Entry
}

// NewHandler создаёт HTTP handler сервиса.
func NewHandler(orders *order.Manager, products *product.Service, healthHandler *health.Handler, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		orders:   orders,
		products: products,
		health:   healthHandler,
		logger:   logger,
	}
}

// SetupRoutes регистрирует маршруты API, метрики и health-пробы.
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.health != nil {
		router.GET("/healthz", gin.WrapH(h.health))
		router.GET("/readyz", gin.WrapF(h.health.ReadinessHandler))
	}
	router.GET("/livez", gin.WrapF(health.LivenessHandler))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PUT("/orders/:id", h.updateOrder)
		v1.DELETE("/orders/:id", h.deleteOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)
	}
}

type orderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Qty       int32  `json:"qty" binding:"required"`
}

type createOrderRequest struct {
	CustomerID string             `json:"customer_id" binding:"required"`
	Items      []orderItemRequest `json:"items" binding:"required"`
}

type updateOrderRequest struct {
	Items []orderItemRequest `json:"items" binding:"required"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type productRequest struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
}

type orderItemResponse struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	Qty          int32  `json:"qty"`
	PricePerUnit string `json:"price_per_unit"`
	Subtotal     string `json:"subtotal"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	CustomerID  string              `json:"customer_id"`
	Status      string              `json:"status"`
	TotalAmount string              `json:"total_amount"`
	Items       []orderItemResponse `json:"items"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type productResponse struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"`
	Quantity    int32     `json:"quantity"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	created, err := h.orders.CreateOrder(req.CustomerID, toItemRequests(req.Items))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toOrderResponse(created))
}

func (h *Handler) getOrder(c *gin.Context) {
	orderValue, events, err := h.orders.GetOrder(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	timeline := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, timelineEventResponse{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"order":    toOrderResponse(orderValue),
		"timeline": timeline,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	limit := parseLimit(c)

	var (
		orders []domain.Order
		err    error
	)
	if customerID := c.Query("customer_id"); customerID != "" {
		orders, err = h.orders.ListOrdersByCustomer(customerID, limit)
	} else {
		orders, err = h.orders.ListOrders(limit)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	result := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": result})
}

func (h *Handler) updateOrder(c *gin.Context) {
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	updated, err := h.orders.UpdateOrder(c.Param("id"), toItemRequests(req.Items))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(updated))
}

func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.orders.DeleteOrder(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	updated, err := h.orders.UpdateOrderStatus(c.Param("id"), domain.OrderStatus(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(updated))
}

func (h *Handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	created, err := h.products.Create(toProductInput(req))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toProductResponse(created))
}

func (h *Handler) getProduct(c *gin.Context) {
	found, err := h.products.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(found))
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.products.List(parseLimit(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	result := make([]productResponse, 0, len(products))
	for _, p := range products {
		result = append(result, toProductResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": result})
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	updated, err := h.products.Update(c.Param("id"), toProductInput(req))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProductResponse(updated))
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.products.Delete(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError переводит доменную ошибку в HTTP-статус:
// отсутствие сущности — 404, конфликты стока/статуса/версий — 409,
// нарушения валидации — 400, всё остальное — 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsInsufficientStock(err):
		var stockErr *domain.InsufficientStockError
		if errors.As(err, &stockErr) {
			c.JSON(http.StatusConflict, gin.H{
				"error":      "insufficient stock",
				"product_id": stockErr.ProductID,
				"requested":  stockErr.Requested,
				"available":  stockErr.Available,
			})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsInvalidStatusTransition(err), domain.IsVersionConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func toItemRequests(items []orderItemRequest) []order.ItemRequest {
	result := make([]order.ItemRequest, 0, len(items))
	for _, item := range items {
		result = append(result, order.ItemRequest{ProductID: item.ProductID, Qty: item.Qty})
	}
	return result
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:           item.ID,
			ProductID:    item.ProductID,
			Qty:          item.Qty,
			PricePerUnit: item.PricePerUnit.StringFixed(2),
			Subtotal:     item.Subtotal.StringFixed(2),
		})
	}
	return orderResponse{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.StringFixed(2),
		Items:       items,
		Version:     o.Version,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toProductInput(req productRequest) product.Input {
	return product.Input{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
	}
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Quantity:    p.Quantity,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func parseLimit(c *gin.Context) int {
	raw := c.Query("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// prometheusMiddleware собирает счётчики и латентность HTTP-запросов.
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
