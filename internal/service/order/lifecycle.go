package order

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
	"github.com/vladislavdragonenkov/inventix/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/inventix/internal/metrics"
	"github.com/vladislavdragonenkov/inventix/internal/stock"
)

const (
	timelineEventOrderCreated       = "OrderCreated"
	timelineEventOrderUpdated       = "OrderUpdated"
	timelineEventOrderDeleted       = "OrderDeleted"
	timelineEventOrderStatusChanged = "OrderStatusChanged"
)

// ItemRequest — строка запроса на создание/обновление заказа.
type ItemRequest struct {
	ProductID string
	Qty       int32
}

// Manager — оркестратор жизненного цикла заказов: создание, обновление,
// удаление и переходы статуса. Комбинирует Reconciler и Ledger так, что
// применение дельт к складу строго предшествует персистентности заказа,
// а провал персистентности откатывает склад.
//
// Операции над одним заказом сериализуются per-order mutex'ом; разные
// заказы обрабатываются полностью параллельно.
type Manager struct {
	orders     domain.OrderRepository
	timeline   domain.TimelineRepository
	outbox     domain.OutboxRepository
	reconciler *stock.Reconciler
	ledger     *stock.Ledger
	metrics    *metrics.StockMetrics
	logger     *log.Entry

	mu     sync.Mutex
	guards map[string]*sync.Mutex
}

// NewManager конструирует Manager с зависимостями.
func NewManager(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	reconciler *stock.Reconciler,
	ledger *stock.Ledger,
	m *metrics.StockMetrics,
	logger *log.Entry,
) *Manager {
	if logger == nil {
		logger = log.New().WithField("component", "order-lifecycle")
	}
	return &Manager{
		orders:     orders,
		timeline:   timeline,
		outbox:     outbox,
		reconciler: reconciler,
		ledger:     ledger,
		metrics:    m,
		logger:     logger,
		guards:     make(map[string]*sync.Mutex),
	}
}

// lockOrder сериализует операции по одному order ID.
func (m *Manager) lockOrder(orderID string) func() {
	m.mu.Lock()
	g, ok := m.guards[orderID]
	if !ok {
		g = &sync.Mutex{}
		m.guards[orderID] = g
	}
	m.mu.Unlock()

	g.Lock()
	return g.Unlock
}

// dropGuard убирает guard удалённого заказа, чтобы карта не росла бесконечно.
// Конкурент, уже ждущий на старом guard'е, после пробуждения получит
// ErrOrderNotFound, поэтому гонка со свежесозданным guard'ом безобидна.
func (m *Manager) dropGuard(orderID string) {
	m.mu.Lock()
	delete(m.guards, orderID)
	m.mu.Unlock()
}

// CreateOrder резервирует сток под все позиции и сохраняет заказ в статусе
// created. При нехватке стока или неизвестном товаре операция отклоняется
// до какой-либо персистентности: частичный заказ не сохраняется никогда.
func (m *Manager) CreateOrder(customerID string, items []ItemRequest) (domain.Order, error) {
	start := time.Now()
	defer m.observe("create", start)

	if customerID == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}
	if len(items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	deltas, resolved, err := m.reconciler.Reconcile(nil, toProposed(items))
	if err != nil {
		m.record("create", "rejected")
		return domain.Order{}, err
	}

	prices, err := m.ledger.ApplyDeltas(deltas)
	if err != nil {
		m.record("create", "insufficient_stock")
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     domain.OrderStatusCreated,
		Version:    0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	order.Items = m.materializeItems(order.ID, resolved, prices, now)
	order.TotalAmount = domain.TotalFromItems(order.Items)

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		m.ledger.Rollback(deltas)
		m.record("create", "invalid")
		return domain.Order{}, errs[0]
	}

	if err := m.orders.Create(order); err != nil {
		// Склад уже изменён, а заказ не сохранился — компенсируем резерв.
		m.ledger.Rollback(deltas)
		m.logger.WithError(err).WithField("order_id", order.ID).Error("failed to persist created order")
		m.record("create", "error")
		return domain.Order{}, err
	}

	m.appendTimeline(order.ID, timelineEventOrderCreated, string(order.Status), now)
	m.emitEvent(&order, kafka.EventTypeOrderCreated, map[string]any{
		"total":       order.TotalAmount.String(),
		"items_count": len(order.Items),
	})
	m.record("create", "ok")

	return order, nil
}

// UpdateOrder заменяет набор позиций заказа предлагаемым. Дельты применяются
// к складу до записи заказа; при нехватке стока заказ остаётся полностью
// неизменным — никакой частичной замены позиций.
func (m *Manager) UpdateOrder(orderID string, items []ItemRequest) (domain.Order, error) {
	start := time.Now()
	defer m.observe("update", start)

	unlock := m.lockOrder(orderID)
	defer unlock()

	order, err := m.orders.Get(orderID)
	if err != nil {
		m.record("update", "not_found")
		return domain.Order{}, err
	}
	if len(items) == 0 {
		m.record("update", "rejected")
		return domain.Order{}, domain.ErrItemsRequired
	}

	deltas, resolved, err := m.reconciler.Reconcile(order.Items, toProposed(items))
	if err != nil {
		m.record("update", "rejected")
		return domain.Order{}, err
	}

	prices, err := m.ledger.ApplyDeltas(deltas)
	if err != nil {
		m.record("update", "insufficient_stock")
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order.Items = m.materializeItems(order.ID, resolved, prices, now)
	order.TotalAmount = domain.TotalFromItems(order.Items)
	order.UpdatedAt = now

	if err := m.orders.Save(order); err != nil {
		m.ledger.Rollback(deltas)
		m.logger.WithError(err).WithField("order_id", order.ID).Error("failed to persist updated order")
		m.record("update", "error")
		return domain.Order{}, err
	}
	order.Version++

	m.appendTimeline(order.ID, timelineEventOrderUpdated, "", now)
	m.emitEvent(&order, kafka.EventTypeOrderUpdated, map[string]any{
		"total":       order.TotalAmount.String(),
		"items_count": len(order.Items),
	})
	m.record("update", "ok")

	return order, nil
}

// DeleteOrder удаляет заказ вместе с позициями. Для недоставленных заказов
// сток каждой позиции возвращается на склад полностью; сток доставленных
// заказов считается потреблённым и не восстанавливается.
func (m *Manager) DeleteOrder(orderID string) error {
	start := time.Now()
	defer m.observe("delete", start)

	unlock := m.lockOrder(orderID)
	defer unlock()

	order, err := m.orders.Get(orderID)
	if err != nil {
		m.record("delete", "not_found")
		return err
	}

	if err := m.orders.Delete(order.ID); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("failed to delete order")
		m.record("delete", "error")
		return err
	}

	// Сток возвращается только после успешного удаления: провал удаления
	// не должен оставить сохранённый заказ с уже освобождённым стоком.
	if order.Status != domain.OrderStatusDelivered {
		m.restock(order)
	}
	m.dropGuard(order.ID)

	m.appendTimeline(order.ID, timelineEventOrderDeleted, string(order.Status), time.Now().UTC())
	m.emitEvent(&order, kafka.EventTypeOrderDeleted, map[string]any{
		"items_count": len(order.Items),
	})
	m.record("delete", "ok")

	return nil
}

// UpdateOrderStatus переводит заказ в новый статус по state machine.
// Операция не затрагивает сток.
func (m *Manager) UpdateOrderStatus(orderID string, next domain.OrderStatus) (domain.Order, error) {
	start := time.Now()
	defer m.observe("status", start)

	unlock := m.lockOrder(orderID)
	defer unlock()

	order, err := m.orders.Get(orderID)
	if err != nil {
		m.record("status", "not_found")
		return domain.Order{}, err
	}

	if !next.IsValid() || !order.Status.CanTransitionTo(next) {
		m.record("status", "invalid_transition")
		return domain.Order{}, &domain.InvalidStatusTransitionError{From: order.Status, To: next}
	}

	previous := order.Status
	now := time.Now().UTC()
	order.Status = next
	order.UpdatedAt = now

	if err := m.orders.Save(order); err != nil {
		m.logger.WithError(err).WithField("order_id", order.ID).Error("failed to persist status change")
		m.record("status", "error")
		return domain.Order{}, err
	}
	order.Version++

	m.appendTimeline(order.ID, timelineEventOrderStatusChanged, string(next), now)
	m.emitEvent(&order, kafka.EventTypeOrderStatusChanged, map[string]any{
		"from": string(previous),
		"to":   string(next),
	})
	m.record("status", "ok")

	return order, nil
}

// GetOrder возвращает заказ и его timeline.
func (m *Manager) GetOrder(orderID string) (domain.Order, []domain.TimelineEvent, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}

	var events []domain.TimelineEvent
	if m.timeline != nil {
		events, err = m.timeline.List(orderID)
		if err != nil {
			m.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list timeline events")
			events = nil
		}
	}

	return order, events, nil
}

// ListOrders возвращает заказы, ограничивая выборку limit (если >0).
func (m *Manager) ListOrders(limit int) ([]domain.Order, error) {
	return m.orders.List(limit)
}

// ListOrdersByCustomer возвращает заказы клиента.
func (m *Manager) ListOrdersByCustomer(customerID string, limit int) ([]domain.Order, error) {
	return m.orders.ListByCustomer(customerID, limit)
}

// materializeItems достраивает resolved-строки до полноценных позиций:
// новые и изменённые получают цену подтверждения из ledger, неизменённые
// сохраняют исходный снапшот цены.
func (m *Manager) materializeItems(orderID string, resolved []stock.ResolvedItem, prices map[string]decimal.Decimal, now time.Time) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(resolved))
	for _, r := range resolved {
		item := r.Item
		if item.ID == "" {
			item.ID = uuid.NewString()
			item.CreatedAt = now
		}
		item.OrderID = orderID
		if r.Repriced {
			if price, ok := prices[item.ProductID]; ok {
				item.PricePerUnit = price
			}
		}
		item.Subtotal = item.PricePerUnit.Mul(decimal.NewFromInt32(item.Qty))
		items = append(items, item)
	}
	return items
}

// restock возвращает на склад полные количества всех позиций заказа.
// Каждая позиция обрабатывается отдельно: товар, удалённый из каталога,
// не должен блокировать удаление заказа.
func (m *Manager) restock(order domain.Order) {
	for _, item := range order.Items {
		if _, err := m.ledger.ApplyDeltas([]stock.Delta{{ProductID: item.ProductID, Change: -item.Qty}}); err != nil {
			m.logger.WithError(err).WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": item.ProductID,
			}).Warn("failed to restore stock for deleted order item")
		}
	}
}

func (m *Manager) appendTimeline(orderID, eventType, reason string, occurred time.Time) {
	if m.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := m.timeline.Append(event); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("failed to append timeline event")
	}
}

func (m *Manager) emitEvent(order *domain.Order, eventType kafka.EventType, metadata map[string]any) {
	if m.outbox == nil {
		return
	}

	event := kafka.NewOrderEvent(eventType, order.ID, order.CustomerID, string(order.Status), metadata)
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       data,
	}
	if _, err := m.outbox.Enqueue(msg); err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if m.metrics != nil {
		m.metrics.RecordOutboxEvent()
	}
}

func (m *Manager) record(operation, result string) {
	if m.metrics != nil {
		m.metrics.RecordOrderOperation(operation, result)
	}
}

func (m *Manager) observe(operation string, start time.Time) {
	if m.metrics != nil {
		m.metrics.RecordOperationDuration(operation, time.Since(start))
	}
}

func toProposed(items []ItemRequest) []stock.ProposedItem {
	proposed := make([]stock.ProposedItem, 0, len(items))
	for _, item := range items {
		proposed = append(proposed, stock.ProposedItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	return proposed
}
