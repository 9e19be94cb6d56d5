package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
)

func newOrder(id, customerID string, createdAt time.Time) domain.Order {
	price := decimal.RequireFromString("5.00")
	return domain.Order{
		ID:         id,
		CustomerID: customerID,
		Status:     domain.OrderStatusCreated,
		Items: []domain.OrderItem{
			{
				ID:           id + "-item-1",
				OrderID:      id,
				ProductID:    "product-1",
				Qty:          3,
				PricePerUnit: price,
				Subtotal:     price.Mul(decimal.NewFromInt32(3)),
				CreatedAt:    createdAt,
			},
		},
		TotalAmount: decimal.RequireFromString("15.00"),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestOrderRepositoryCreateAndGet(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()

	if err := repo.Create(newOrder("o-1", "c-1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.Get("o-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != "product-1" {
		t.Errorf("order items not returned: %+v", got.Items)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepositorySaveReplacesItems(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()
	if err := repo.Create(newOrder("o-1", "c-1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	current, _ := repo.Get("o-1")
	price := decimal.RequireFromString("2.00")
	current.Items = []domain.OrderItem{
		{
			ID:           "o-1-item-2",
			OrderID:      "o-1",
			ProductID:    "product-2",
			Qty:          1,
			PricePerUnit: price,
			Subtotal:     price,
			CreatedAt:    now,
		},
	}
	current.TotalAmount = price

	if err := repo.Save(current); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	fresh, _ := repo.Get("o-1")
	if len(fresh.Items) != 1 || fresh.Items[0].ProductID != "product-2" {
		t.Errorf("items must be replaced atomically, got %+v", fresh.Items)
	}
	if fresh.Version != current.Version+1 {
		t.Errorf("expected version bump, got %d", fresh.Version)
	}

	// Старая версия конфликтует
	if err := repo.Save(current); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Errorf("stale save must conflict, got %v", err)
	}
}

func TestOrderRepositoryListByCustomer(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Now().UTC()
	if err := repo.Create(newOrder("o-1", "c-1", base)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(newOrder("o-2", "c-2", base.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(newOrder("o-3", "c-1", base.Add(2*time.Second))); err != nil {
		t.Fatal(err)
	}

	orders, err := repo.ListByCustomer("c-1", 0)
	if err != nil {
		t.Fatalf("list by customer: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != "o-3" || orders[1].ID != "o-1" {
		t.Errorf("unexpected customer orders: %+v", orders)
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "o-3" {
		t.Errorf("expected newest first, got %+v", all)
	}
}

func TestOrderRepositoryDelete(t *testing.T) {
	repo := NewOrderRepository()
	if err := repo.Create(newOrder("o-1", "c-1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete("o-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get("o-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Error("order must be gone after delete")
	}
	if err := repo.Delete("o-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("double delete must return ErrOrderNotFound, got %v", err)
	}
}

// Мутация слайса позиций у вызывающего не должна менять хранимый заказ.
func TestOrderRepositoryReturnsIsolatedCopies(t *testing.T) {
	repo := NewOrderRepository()
	if err := repo.Create(newOrder("o-1", "c-1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	got, _ := repo.Get("o-1")
	got.Items[0].Qty = 999

	fresh, _ := repo.Get("o-1")
	if fresh.Items[0].Qty != 3 {
		t.Error("stored order mutated through returned slice")
	}
}
