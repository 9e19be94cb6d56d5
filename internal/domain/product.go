package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает складскую позицию с доступным количеством.
type Product struct {
	ID          string
	SKU         string
	Name        string
	Description string
	// Price — цена за единицу. Точная десятичная арифметика, без float.
	Price decimal.Decimal
	// Quantity — доступное количество. Инвариант: никогда не уходит в минус.
	Quantity  int32
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты товара и возвращает список замечаний.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrProductPriceNegative)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQuantityNegative)
	}

	return errs
}
