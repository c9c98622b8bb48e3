package ledger

import (
	"testing"

	"dispenser-service/internal/types"
)

func twoProductCatalog() []types.Product {
	return []types.Product{
		{RemoteID: "p-1", Name: "Tissue", Price: 2000, Slot: types.Slot1, Stock: 5},
		{RemoteID: "p-2", Name: "Pad", Price: 3500, Slot: types.Slot2, Stock: 0},
	}
}

func TestReadyOnlyAfterCatalog(t *testing.T) {
	l := New()
	if l.Ready() {
		t.Error("Expected ledger not ready before a catalog")
	}
	l.ReplaceCatalog(twoProductCatalog())
	if !l.Ready() {
		t.Error("Expected ledger ready after catalog")
	}
}

func TestEvaluateNoUser(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())

	if got := l.Evaluate(); got != OutcomeNoUser {
		t.Errorf("Expected OutcomeNoUser, got %v", got)
	}
}

func TestEvaluateCanPurchase(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())
	l.SetUser(&types.User{CardID: "c1", DisplayName: "Ada", Balance: 2500, RemoteID: "u-1"})

	// 25.00 covers the 20.00 Tissue which is in stock; the 35.00 Pad
	// being out of stock must not matter.
	if got := l.Evaluate(); got != OutcomeCanPurchase {
		t.Errorf("Expected OutcomeCanPurchase, got %v", got)
	}
}

func TestEvaluateInsufficientBalance(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())
	l.SetUser(&types.User{CardID: "c1", DisplayName: "Ada", Balance: 1000, RemoteID: "u-1"})

	// 10.00 affords nothing: the cheapest product costs 20.00.
	if got := l.Evaluate(); got != OutcomeInsufficientBalance {
		t.Errorf("Expected OutcomeInsufficientBalance, got %v", got)
	}
}

func TestEvaluateOutOfStock(t *testing.T) {
	l := New()
	l.ReplaceCatalog([]types.Product{
		{RemoteID: "p-1", Name: "X", Price: 2000, Slot: types.Slot1, Stock: 0},
	})
	l.SetUser(&types.User{CardID: "c1", DisplayName: "Ada", Balance: 5000, RemoteID: "u-1"})

	// Affordable but empty: out of stock, not insufficient balance.
	if got := l.Evaluate(); got != OutcomeOutOfStock {
		t.Errorf("Expected OutcomeOutOfStock, got %v", got)
	}
}

func TestEvaluateAffordabilityBoundary(t *testing.T) {
	l := New()
	l.ReplaceCatalog([]types.Product{
		{RemoteID: "p-1", Name: "X", Price: 2000, Slot: types.Slot1, Stock: 1},
	})

	// Exact balance is affordable.
	l.SetUser(&types.User{CardID: "c1", Balance: 2000, RemoteID: "u-1"})
	if got := l.Evaluate(); got != OutcomeCanPurchase {
		t.Errorf("Expected OutcomeCanPurchase at exact balance, got %v", got)
	}

	// One cent short is not.
	l.SetUser(&types.User{CardID: "c1", Balance: 1999, RemoteID: "u-1"})
	if got := l.Evaluate(); got != OutcomeInsufficientBalance {
		t.Errorf("Expected OutcomeInsufficientBalance one cent short, got %v", got)
	}
}

func TestProductBySlot(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())

	p, ok := l.ProductBySlot(types.Slot2)
	if !ok {
		t.Fatal("Expected a product on slot 2")
	}
	if p.Name != "Pad" {
		t.Errorf("Expected Pad on slot 2, got %s", p.Name)
	}
	if _, ok := l.ProductBySlot(types.SlotID(3)); ok {
		t.Error("Expected no product on slot 3")
	}
}

func TestApplyOrderUpdatesBothOrNeither(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())
	l.SetUser(&types.User{CardID: "c1", DisplayName: "Ada", Balance: 2500, RemoteID: "u-1"})

	if err := l.ApplyOrder(types.Slot1, 500, 4); err != nil {
		t.Fatalf("ApplyOrder failed: %v", err)
	}

	user := l.User()
	if user.Balance != 500 {
		t.Errorf("Expected balance 500, got %d", user.Balance)
	}
	p, _ := l.ProductBySlot(types.Slot1)
	if p.Stock != 4 {
		t.Errorf("Expected stock 4, got %d", p.Stock)
	}
}

func TestApplyOrderWithoutUser(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())

	if err := l.ApplyOrder(types.Slot1, 500, 4); err == nil {
		t.Error("Expected error applying an order without a user")
	}
	p, _ := l.ProductBySlot(types.Slot1)
	if p.Stock != 5 {
		t.Errorf("Stock changed by a rejected order: got %d", p.Stock)
	}
}

func TestApplyOrderUnknownSlot(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())
	l.SetUser(&types.User{CardID: "c1", Balance: 2500, RemoteID: "u-1"})

	if err := l.ApplyOrder(types.SlotID(7), 500, 4); err == nil {
		t.Error("Expected error for unknown slot")
	}
	if l.User().Balance != 2500 {
		t.Error("Balance changed by a rejected order")
	}
}

func TestApplyOrderNegativeStock(t *testing.T) {
	l := New()
	l.ReplaceCatalog(twoProductCatalog())
	l.SetUser(&types.User{CardID: "c1", Balance: 2500, RemoteID: "u-1"})

	if err := l.ApplyOrder(types.Slot1, 500, -1); err == nil {
		t.Error("Expected error for negative stock")
	}
	if l.User().Balance != 2500 {
		t.Error("Balance changed by a rejected order")
	}
}

func TestSetUserCopies(t *testing.T) {
	l := New()
	u := &types.User{CardID: "c1", Balance: 100, RemoteID: "u-1"}
	l.SetUser(u)

	u.Balance = 999
	if l.User().Balance != 100 {
		t.Error("Ledger user aliases the caller's struct")
	}

	got := l.User()
	got.Balance = 1
	if l.User().Balance != 100 {
		t.Error("User() returns an aliased struct")
	}
}

func TestSetUserNilLogsOut(t *testing.T) {
	l := New()
	l.SetUser(&types.User{CardID: "c1", RemoteID: "u-1"})
	l.SetUser(nil)
	if l.User() != nil {
		t.Error("Expected no user after logout")
	}
}

func TestReplaceCatalogCopies(t *testing.T) {
	l := New()
	products := twoProductCatalog()
	l.ReplaceCatalog(products)

	products[0].Stock = 99
	p, _ := l.ProductBySlot(types.Slot1)
	if p.Stock != 5 {
		t.Error("Catalog aliases the caller's slice")
	}
}
