// Package ledger holds the in-memory mirror of backend truth: the
// product catalog and the currently authenticated user. Balance and
// stock are only ever written from confirmed backend responses.
package ledger

import (
	"fmt"
	"sync"

	"dispenser-service/internal/types"
)

// Outcome is the result of the affordability evaluation for the
// current user against the current catalog.
type Outcome int

const (
	// OutcomeNoUser means no user is logged in.
	OutcomeNoUser Outcome = iota
	// OutcomeCanPurchase means at least one product is in stock and
	// affordable.
	OutcomeCanPurchase
	// OutcomeInsufficientBalance means no product price fits the
	// balance, stock regardless.
	OutcomeInsufficientBalance
	// OutcomeOutOfStock means affordable products exist but none of
	// them has stock.
	OutcomeOutOfStock
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoUser:
		return "no-user"
	case OutcomeCanPurchase:
		return "can-purchase"
	case OutcomeInsufficientBalance:
		return "insufficient-balance"
	case OutcomeOutOfStock:
		return "out-of-stock"
	default:
		return "unknown"
	}
}

type Ledger struct {
	mu       sync.RWMutex
	products []types.Product
	user     *types.User
	ready    bool
}

func New() *Ledger {
	return &Ledger{}
}

// ReplaceCatalog swaps the whole catalog atomically. Insertion order is
// display order. Called only after a successful backend fetch.
func (l *Ledger) ReplaceCatalog(products []types.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products = make([]types.Product, len(products))
	copy(l.products, products)
	l.ready = true
}

// Ready reports whether at least one catalog fetch has succeeded.
// Until then the kiosk refuses to serve purchases.
func (l *Ledger) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// Products returns a copy of the catalog in display order.
func (l *Ledger) Products() []types.Product {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Product, len(l.products))
	copy(out, l.products)
	return out
}

// ProductBySlot returns the product assigned to a slot.
func (l *Ledger) ProductBySlot(slot types.SlotID) (types.Product, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.products {
		if p.Slot == slot {
			return p, true
		}
	}
	return types.Product{}, false
}

// ProductCount returns the number of catalog entries.
func (l *Ledger) ProductCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.products)
}

// SetUser replaces the current user. nil logs out.
func (l *Ledger) SetUser(u *types.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u == nil {
		l.user = nil
		return
	}
	cp := *u
	l.user = &cp
}

// User returns a copy of the current user, or nil.
func (l *Ledger) User() *types.User {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.user == nil {
		return nil
	}
	cp := *l.user
	return &cp
}

// ApplyOrder records a confirmed order response: the new balance and
// the new stock for the purchased slot are written together, or not at
// all.
func (l *Ledger) ApplyOrder(slot types.SlotID, newBalance types.Currency, newStock int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.user == nil {
		return fmt.Errorf("no user logged in")
	}
	idx := -1
	for i, p := range l.products {
		if p.Slot == slot {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no product in %s", slot)
	}
	if newStock < 0 {
		return fmt.Errorf("backend reported negative stock %d for %s", newStock, slot)
	}
	l.user.Balance = newBalance
	l.products[idx].Stock = newStock
	return nil
}

// Evaluate runs the affordability check for the current user:
// can-purchase iff some product has stock and a price within balance;
// insufficient-balance iff every product costs more than the balance;
// out-of-stock otherwise.
func (l *Ledger) Evaluate() Outcome {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.user == nil {
		return OutcomeNoUser
	}
	anyAffordable := false
	for _, p := range l.products {
		if p.Price > l.user.Balance {
			continue
		}
		anyAffordable = true
		if p.Stock > 0 {
			return OutcomeCanPurchase
		}
	}
	if !anyAffordable {
		return OutcomeInsufficientBalance
	}
	return OutcomeOutOfStock
}
