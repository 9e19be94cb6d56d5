package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total_amount must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия subtotal позиции произведению цены на количество.
	ErrItemSubtotalMismatch = errors.New("item subtotal does not match price * qty")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка статуса вне закрытого множества.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// Ошибка отсутствующего имени товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceNegative = errors.New("product price must be non-negative")
	// Ошибка отрицательного количества товара.
	ErrProductQuantityNegative = errors.New("product quantity must be non-negative")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден. Отдельная ошибка,
	// чтобы отличать провал reconciliation от обычного lookup-промаха.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductVersionConflict сигнализирует о конфликте версий при сохранении товара.
	ErrProductVersionConflict = errors.New("product version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError возвращается, когда запрошенное количество превышает доступное.
type InsufficientStockError struct {
	ProductID string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidStatusTransitionError возвращается при недопустимом переходе статуса заказа.
type InvalidStatusTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой стока.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// IsInvalidStatusTransition проверяет, является ли ошибка запрещённым переходом статуса.
func IsInvalidStatusTransition(err error) bool {
	var target *InvalidStatusTransitionError
	return errors.As(err, &target)
}

// IsNotFound проверяет, является ли ошибка отсутствием сущности (заказа или товара).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProductNotFound)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrProductVersionConflict)
}

var validationErrors = []error{
	ErrCustomerRequired,
	ErrItemsRequired,
	ErrAmountNegative,
	ErrItemQtyInvalid,
	ErrItemPriceInvalid,
	ErrItemSubtotalMismatch,
	ErrAmountMismatch,
	ErrOrderStatusInvalid,
	ErrProductNameRequired,
	ErrProductPriceNegative,
	ErrProductQuantityNegative,
}

// IsValidation проверяет, является ли ошибка нарушением инвариантов входных данных.
func IsValidation(err error) bool {
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
