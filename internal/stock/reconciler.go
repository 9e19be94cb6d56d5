package stock

import (
	"fmt"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
)

// ProposedItem — строка предлагаемого набора позиций: товар и желаемое количество.
type ProposedItem struct {
	ProductID string
	Qty       int32
}

// ResolvedItem — логическая строка заказа после reconciliation.
// Цена и subtotal заполняются вызывающим после подтверждения резервирования:
// строки с неизменённым количеством сохраняют исходную цену (Repriced=false),
// изменённые переоцениваются по цене товара на момент подтверждения.
type ResolvedItem struct {
	Item     domain.OrderItem
	Repriced bool
}

// Reconciler вычисляет дельту между текущим набором позиций заказа и
// предлагаемым: добавления, удаления, изменения количества.
type Reconciler struct {
	products domain.ProductRepository
}

// NewReconciler создаёт Reconciler поверх репозитория товаров.
func NewReconciler(products domain.ProductRepository) *Reconciler {
	return &Reconciler{products: products}
}

// Reconcile сопоставляет позиции по идентичности товара: существующая и
// предлагаемая строки одного товара считаются одной логической строкой с
// изменением количества proposed.Qty - existing.Qty (возможно отрицательным).
// Товар только в proposed даёт положительную дельту на полное количество,
// товар только в existing — отрицательную на полное количество (полный возврат).
//
// Если proposed ссылается на несуществующий товар, вся reconciliation
// отклоняется с ProductNotFound до вычисления каких-либо дельт.
func (r *Reconciler) Reconcile(existing []domain.OrderItem, proposed []ProposedItem) ([]Delta, []ResolvedItem, error) {
	merged := mergeProposed(proposed)

	// Fail fast: сначала проверяем существование каждого предлагаемого товара,
	// никакой частичной reconciliation.
	for _, p := range merged {
		if p.Qty <= 0 {
			return nil, nil, fmt.Errorf("%w: product %s", domain.ErrItemQtyInvalid, p.ProductID)
		}
		if _, err := r.products.Get(p.ProductID); err != nil {
			return nil, nil, err
		}
	}

	existingByProduct := make(map[string]domain.OrderItem, len(existing))
	for _, item := range existing {
		existingByProduct[item.ProductID] = item
	}

	deltas := make([]Delta, 0, len(merged)+len(existing))
	resolved := make([]ResolvedItem, 0, len(merged))

	for _, p := range merged {
		prev, ok := existingByProduct[p.ProductID]
		if !ok {
			deltas = append(deltas, Delta{ProductID: p.ProductID, Change: p.Qty})
			resolved = append(resolved, ResolvedItem{
				Item:     domain.OrderItem{ProductID: p.ProductID, Qty: p.Qty},
				Repriced: true,
			})
			continue
		}

		change := p.Qty - prev.Qty
		if change != 0 {
			deltas = append(deltas, Delta{ProductID: p.ProductID, Change: change})
		}

		item := prev
		item.Qty = p.Qty
		// Неизменённая строка не требует переоценки, изменённая — требует.
		resolved = append(resolved, ResolvedItem{Item: item, Repriced: change != 0})
	}

	proposedSet := make(map[string]struct{}, len(merged))
	for _, p := range merged {
		proposedSet[p.ProductID] = struct{}{}
	}
	for _, item := range existing {
		if _, ok := proposedSet[item.ProductID]; !ok {
			deltas = append(deltas, Delta{ProductID: item.ProductID, Change: -item.Qty})
		}
	}

	return deltas, resolved, nil
}

// mergeProposed складывает дублирующиеся строки одного товара в одну
// логическую строку, сохраняя порядок первого появления.
func mergeProposed(proposed []ProposedItem) []ProposedItem {
	index := make(map[string]int, len(proposed))
	merged := make([]ProposedItem, 0, len(proposed))
	for _, p := range proposed {
		if i, ok := index[p.ProductID]; ok {
			merged[i].Qty += p.Qty
			continue
		}
		index[p.ProductID] = len(merged)
		merged = append(merged, p)
	}
	return merged
}
