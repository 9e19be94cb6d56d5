package stock

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/inventix/internal/domain"
	"github.com/vladislavdragonenkov/inventix/internal/storage/memory"
)

func newTestReconciler(t *testing.T) (*Reconciler, domain.ProductRepository) {
	t.Helper()
	repo := memory.NewProductRepository()
	return NewReconciler(repo), repo
}

func existingItem(productID string, qty int32, price string) domain.OrderItem {
	p := decimal.RequireFromString(price)
	return domain.OrderItem{
		ID:           "item-" + productID,
		OrderID:      "order-1",
		ProductID:    productID,
		Qty:          qty,
		PricePerUnit: p,
		Subtotal:     p.Mul(decimal.NewFromInt32(qty)),
	}
}

func deltaFor(t *testing.T, deltas []Delta, productID string) Delta {
	t.Helper()
	for _, d := range deltas {
		if d.ProductID == productID {
			return d
		}
	}
	t.Fatalf("delta for %s not found in %v", productID, deltas)
	return Delta{}
}

func TestReconcileNewOrder(t *testing.T) {
	rec, repo := newTestReconciler(t)
	seedProduct(t, repo, "product-a", "5.00", 10)

	deltas, resolved, err := rec.Reconcile(nil, []ProposedItem{{ProductID: "product-a", Qty: 3}})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if len(deltas) != 1 || deltas[0].Change != 3 {
		t.Fatalf("expected single +3 delta, got %v", deltas)
	}
	if len(resolved) != 1 || !resolved[0].Repriced {
		t.Fatalf("new line must be repriced, got %+v", resolved)
	}
}

func TestReconcileQuantityChange(t *testing.T) {
	rec, repo := newTestReconciler(t)
	seedProduct(t, repo, "product-a", "6.00", 10)

	existing := []domain.OrderItem{existingItem("product-a", 3, "5.00")}

	t.Run("increase", func(t *testing.T) {
		deltas, resolved, err := rec.Reconcile(existing, []ProposedItem{{ProductID: "product-a", Qty: 5}})
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if d := deltaFor(t, deltas, "product-a"); d.Change != 2 {
			t.Errorf("expected +2 delta, got %d", d.Change)
		}
		if !resolved[0].Repriced {
			t.Error("changed line must be repriced")
		}
		if resolved[0].Item.Qty != 5 {
			t.Errorf("expected qty 5, got %d", resolved[0].Item.Qty)
		}
		// Идентичность строки сохраняется
		if resolved[0].Item.ID != "item-product-a" {
			t.Errorf("line identity lost: %s", resolved[0].Item.ID)
		}
	})

	t.Run("decrease", func(t *testing.T) {
		deltas, resolved, err := rec.Reconcile(existing, []ProposedItem{{ProductID: "product-a", Qty: 1}})
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if d := deltaFor(t, deltas, "product-a"); d.Change != -2 {
			t.Errorf("expected -2 delta, got %d", d.Change)
		}
		if !resolved[0].Repriced {
			t.Error("changed line must be repriced")
		}
	})

	t.Run("unchanged", func(t *testing.T) {
		deltas, resolved, err := rec.Reconcile(existing, []ProposedItem{{ProductID: "product-a", Qty: 3}})
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		if len(deltas) != 0 {
			t.Errorf("expected no deltas for unchanged qty, got %v", deltas)
		}
		if resolved[0].Repriced {
			t.Error("unchanged line must keep its original price")
		}
		if got := resolved[0].Item.PricePerUnit.StringFixed(2); got != "5.00" {
			t.Errorf("expected original price 5.00, got %s", got)
		}
	})
}

func TestReconcileRemovedProductGetsFullRelease(t *testing.T) {
	rec, repo := newTestReconciler(t)
	seedProduct(t, repo, "product-a", "5.00", 10)
	seedProduct(t, repo, "product-b", "2.00", 10)

	existing := []domain.OrderItem{
		existingItem("product-a", 3, "5.00"),
		existingItem("product-b", 2, "2.00"),
	}

	deltas, resolved, err := rec.Reconcile(existing, []ProposedItem{{ProductID: "product-a", Qty: 3}})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if d := deltaFor(t, deltas, "product-b"); d.Change != -2 {
		t.Errorf("expected full release -2 for removed product, got %d", d.Change)
	}
	if len(resolved) != 1 || resolved[0].Item.ProductID != "product-a" {
		t.Fatalf("removed product must not appear in resolved items: %+v", resolved)
	}
}

func TestReconcileUnknownProductFailsBeforeDeltas(t *testing.T) {
	rec, repo := newTestReconciler(t)
	seedProduct(t, repo, "product-a", "5.00", 10)

	deltas, resolved, err := rec.Reconcile(nil, []ProposedItem{
		{ProductID: "product-a", Qty: 1},
		{ProductID: "missing", Qty: 1},
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if deltas != nil || resolved != nil {
		t.Error("failed reconciliation must not return partial results")
	}
}

func TestReconcileRejectsNonPositiveQty(t *testing.T) {
	rec, repo := newTestReconciler(t)
	seedProduct(t, repo, "product-a", "5.00", 10)

	_, _, err := rec.Reconcile(nil, []ProposedItem{{ProductID: "product-a", Qty: 0}})
	if !errors.Is(err, domain.ErrItemQtyInvalid) {
		t.Fatalf("expected ErrItemQtyInvalid, got %v", err)
	}
}

func TestReconcileMergesDuplicateProposedLines(t *testing.T) {
	rec, repo := newTestReconciler(t)
	seedProduct(t, repo, "product-a", "5.00", 10)

	deltas, resolved, err := rec.Reconcile(nil, []ProposedItem{
		{ProductID: "product-a", Qty: 2},
		{ProductID: "product-a", Qty: 3},
	})
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(resolved) != 1 || resolved[0].Item.Qty != 5 {
		t.Fatalf("duplicate lines must merge into one, got %+v", resolved)
	}
	if d := deltaFor(t, deltas, "product-a"); d.Change != 5 {
		t.Errorf("expected merged +5 delta, got %d", d.Change)
	}
}
