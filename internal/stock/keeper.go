package stock

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
	"github.com/vladislavdragonenkov/inventix/internal/metrics"
)

// Keeper владеет доступным количеством товаров и выполняет атомарные
// reserve/release. Взаимное исключение — per-product mutex: два
// конкурентных заказа не могут одновременно забрать последние единицы
// одного товара. Блокировка держится только на время мутации количества.
type Keeper struct {
	products domain.ProductRepository
	metrics  *metrics.StockMetrics

	mu     sync.Mutex
	guards map[string]*sync.Mutex
}

// NewKeeper создаёт Keeper поверх репозитория товаров.
func NewKeeper(products domain.ProductRepository, m *metrics.StockMetrics) *Keeper {
	return &Keeper{
		products: products,
		metrics:  m,
		guards:   make(map[string]*sync.Mutex),
	}
}

// guard возвращает mutex конкретного товара, создавая его при первом обращении.
func (k *Keeper) guard(productID string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	g, ok := k.guards[productID]
	if !ok {
		g = &sync.Mutex{}
		k.guards[productID] = g
	}
	return g
}

// lockMany захватывает mutex каждого товара. Список обязан быть отсортирован
// по возрастанию ID — единый глобальный порядок исключает deadlock между
// конкурентными вызовами, затрагивающими пересекающиеся множества товаров.
func (k *Keeper) lockMany(sortedIDs []string) func() {
	guards := make([]*sync.Mutex, 0, len(sortedIDs))
	for _, id := range sortedIDs {
		g := k.guard(id)
		g.Lock()
		guards = append(guards, g)
	}
	return func() {
		for i := len(guards) - 1; i >= 0; i-- {
			guards[i].Unlock()
		}
	}
}

// Forget убирает guard товара из карты, чтобы она не росла бесконечно
// по мере удаления товаров из каталога. Вызывается после удаления товара:
// опоздавший конкурент, уже держащий старый mutex, перечитает товар под
// guard'ом и получит ErrProductNotFound.
func (k *Keeper) Forget(productID string) {
	k.mu.Lock()
	delete(k.guards, productID)
	k.mu.Unlock()
}

// Reserve атомарно списывает qty единиц товара и возвращает его текущую цену —
// она нужна вызывающему для снапшота цены позиции. При нехватке стока
// возвращает InsufficientStockError, не меняя состояния.
func (k *Keeper) Reserve(productID string, qty int32) (decimal.Decimal, error) {
	g := k.guard(productID)
	g.Lock()
	defer g.Unlock()

	return k.reserveLocked(productID, qty)
}

// Release атомарно возвращает qty единиц товара на склад. Никогда не
// отклоняется по бизнес-причинам: количество может превысить любой
// номинальный потолок, ограничения ёмкости вне зоны ответственности.
func (k *Keeper) Release(productID string, qty int32) error {
	g := k.guard(productID)
	g.Lock()
	defer g.Unlock()

	return k.releaseLocked(productID, qty)
}

// reserveLocked выполняет резервирование. Вызывающий обязан держать guard товара.
func (k *Keeper) reserveLocked(productID string, qty int32) (decimal.Decimal, error) {
	product, err := k.products.Get(productID)
	if err != nil {
		return decimal.Zero, err
	}

	if qty > product.Quantity {
		if k.metrics != nil {
			k.metrics.RecordInsufficientStock()
		}
		return decimal.Zero, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: product.Quantity,
		}
	}

	product.Quantity -= qty
	product.UpdatedAt = time.Now().UTC()
	if err := k.products.Save(product); err != nil {
		return decimal.Zero, fmt.Errorf("save product %s after reserve: %w", productID, err)
	}

	if k.metrics != nil {
		k.metrics.RecordReservation(qty)
	}
	return product.Price, nil
}

// releaseLocked выполняет возврат стока. Вызывающий обязан держать guard товара.
func (k *Keeper) releaseLocked(productID string, qty int32) error {
	product, err := k.products.Get(productID)
	if err != nil {
		return err
	}

	product.Quantity += qty
	product.UpdatedAt = time.Now().UTC()
	if err := k.products.Save(product); err != nil {
		return fmt.Errorf("save product %s after release: %w", productID, err)
	}

	if k.metrics != nil {
		k.metrics.RecordRelease(qty)
	}
	return nil
}

// WithLock выполняет fn под guard товара. Используется сервисными операциями
// (например, ручным обновлением товара), которые должны быть взаимоисключающими
// с reserve/release по тому же товару.
func (k *Keeper) WithLock(productID string, fn func() error) error {
	g := k.guard(productID)
	g.Lock()
	defer g.Unlock()

	return fn()
}

// priceLocked читает текущую цену товара. Вызывающий обязан держать guard товара.
func (k *Keeper) priceLocked(productID string) (decimal.Decimal, error) {
	product, err := k.products.Get(productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.Price, nil
}
