package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusCreated — заказ создан, позиции зарезервированы на складе.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusPaid — оплата подтверждена.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен; терминальный статус, сток считается потреблённым.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до завершения цикла; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid сообщает, принадлежит ли значение закрытому множеству статусов.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, запрещены ли дальнейшие переходы из статуса.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода по state machine:
// created → paid → shipped → delivered, cancelled достижим из любого нетерминального статуса.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	switch s {
	case OrderStatusCreated:
		return next == OrderStatusPaid
	case OrderStatusPaid:
		return next == OrderStatusShipped
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
// Позиция принадлежит ровно одному заказу; OrderID — невладеющая обратная ссылка.
type OrderItem struct {
	ID      string
	OrderID string
	// ProductID ссылается на товар, не владея им.
	ProductID string
	// Qty — количество единиц товара, строго положительное.
	Qty int32
	// PricePerUnit — цена за единицу, зафиксированная в момент резервирования.
	// Последующие изменения цены товара позицию не затрагивают.
	PricePerUnit decimal.Decimal
	// Subtotal = PricePerUnit * Qty.
	Subtotal  decimal.Decimal
	CreatedAt time.Time
}

// Order агрегирует состояние заказа и его позиции. Заказ владеет позициями:
// удаление заказа удаляет и их.
type Order struct {
	ID          string
	CustomerID  string
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Items       []OrderItem
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalFromItems пересчитывает сумму заказа из subtotal позиций.
func TotalFromItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if !o.Status.IsValid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций и subtotal каждой позиции.
	calc := decimal.Zero
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PricePerUnit.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if !item.Subtotal.Equal(item.PricePerUnit.Mul(decimal.NewFromInt32(item.Qty))) {
			errs = append(errs, ErrItemSubtotalMismatch)
		}
		calc = calc.Add(item.Subtotal)
	}
	if !calc.Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
