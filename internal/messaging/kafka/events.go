package kafka

import "time"

// EventType идентифицирует доменное событие в топике.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderUpdated       EventType = "order.updated"
	EventTypeOrderDeleted       EventType = "order.deleted"
	EventTypeOrderStatusChanged EventType = "order.status_changed"

	EventTypeProductCreated EventType = "product.created"
	EventTypeProductUpdated EventType = "product.updated"
	EventTypeProductDeleted EventType = "product.deleted"
)

const (
	// TopicOrderEvents — основной поток событий заказов.
	TopicOrderEvents = "inventix.order.events"
	// TopicDeadLetterQueue принимает сообщения, исчерпавшие ретраи воркера.
	TopicDeadLetterQueue = "inventix.dlq"
)

// OrderEvent — payload события заказа. Metadata несёт данные,
// специфичные для конкретного типа события (сумма, причина отмены).
type OrderEvent struct {
	EventType  EventType      `json:"event_type"`
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewOrderEvent собирает событие заказа с текущим временем.
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]any) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// ProductEvent — payload события каталога.
type ProductEvent struct {
	EventType EventType      `json:"event_type"`
	ProductID string         `json:"product_id"`
	SKU       string         `json:"sku"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewProductEvent собирает событие каталога с текущим временем.
func NewProductEvent(eventType EventType, productID, sku string, metadata map[string]any) *ProductEvent {
	return &ProductEvent{
		EventType: eventType,
		ProductID: productID,
		SKU:       sku,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}
