package stock

import (
	"sort"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Delta — знаковое изменение количества одного товара в рамках одной
// reconciliation. Живёт только на время операции обновления заказа.
type Delta struct {
	ProductID string
	// Change > 0 — резервирование, Change < 0 — возврат на склад.
	Change int32
}

// Ledger координирует reserve/release по множеству товаров для пакета
// позиций заказа. ApplyDeltas атомарен с точки зрения вызывающего:
// либо применяются все дельты, либо ни одна.
type Ledger struct {
	keeper *Keeper
	logger *log.Entry
}

// NewLedger создаёт Ledger поверх Keeper.
func NewLedger(keeper *Keeper, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "stock-ledger")
	}
	return &Ledger{keeper: keeper, logger: logger}
}

// ApplyDeltas применяет дельты в детерминированном порядке (по возрастанию
// product ID) и возвращает цену каждого затронутого товара на момент
// подтверждения — для снапшота цен позиций. Guard каждого товара
// захватывается в том же глобальном порядке и держится до конца вызова,
// поэтому конкурентные вызовы с пересекающимися товарами не взаимоблокируются.
//
// На первой нехватке стока все ранее применённые в этом вызове дельты
// откатываются в обратном порядке, и возвращается InsufficientStockError
// с указанием виновного товара.
func (l *Ledger) ApplyDeltas(deltas []Delta) (map[string]decimal.Decimal, error) {
	merged := mergeDeltas(deltas)
	if len(merged) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	ids := make([]string, 0, len(merged))
	for _, d := range merged {
		ids = append(ids, d.ProductID)
	}

	unlock := l.keeper.lockMany(ids)
	defer unlock()

	prices := make(map[string]decimal.Decimal, len(merged))
	applied := make([]Delta, 0, len(merged))

	for _, d := range merged {
		price, err := l.applyLocked(d)
		if err != nil {
			l.rollbackLocked(applied)
			return nil, err
		}
		prices[d.ProductID] = price
		applied = append(applied, d)
	}

	return prices, nil
}

// Rollback применяет дельты с обратным знаком — компенсация для случая,
// когда персистентность заказа провалилась после успешного ApplyDeltas.
func (l *Ledger) Rollback(deltas []Delta) {
	merged := mergeDeltas(deltas)
	if len(merged) == 0 {
		return
	}

	ids := make([]string, 0, len(merged))
	for _, d := range merged {
		ids = append(ids, d.ProductID)
	}

	unlock := l.keeper.lockMany(ids)
	defer unlock()

	l.rollbackLocked(merged)
}

func (l *Ledger) applyLocked(d Delta) (decimal.Decimal, error) {
	switch {
	case d.Change > 0:
		return l.keeper.reserveLocked(d.ProductID, d.Change)
	case d.Change < 0:
		if err := l.keeper.releaseLocked(d.ProductID, -d.Change); err != nil {
			return decimal.Zero, err
		}
		return l.keeper.priceLocked(d.ProductID)
	default:
		return l.keeper.priceLocked(d.ProductID)
	}
}

// rollbackLocked откатывает применённые дельты в обратном порядке.
// Guard'ы всё ещё удерживаются, поэтому обратное резервирование
// освобождённых единиц не может проиграть гонку другому вызову.
func (l *Ledger) rollbackLocked(applied []Delta) {
	for i := len(applied) - 1; i >= 0; i-- {
		d := applied[i]
		var err error
		switch {
		case d.Change > 0:
			err = l.keeper.releaseLocked(d.ProductID, d.Change)
		case d.Change < 0:
			_, err = l.keeper.reserveLocked(d.ProductID, -d.Change)
		}
		if err != nil {
			l.logger.WithError(err).WithField("product_id", d.ProductID).Error("stock rollback failed")
		}
	}
}

// mergeDeltas складывает дельты по одному товару, отбрасывает нулевые и
// сортирует результат по возрастанию product ID.
func mergeDeltas(deltas []Delta) []Delta {
	byProduct := make(map[string]int32, len(deltas))
	for _, d := range deltas {
		byProduct[d.ProductID] += d.Change
	}

	merged := make([]Delta, 0, len(byProduct))
	for id, change := range byProduct {
		if change == 0 {
			continue
		}
		merged = append(merged, Delta{ProductID: id, Change: change})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}
