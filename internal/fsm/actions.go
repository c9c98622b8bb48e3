package fsm

import "github.com/librescoot/librefsm"

// Actions defines the interface for kiosk state machine actions.
// KioskSystem implements this interface to handle state entry/exit
// and provide guards for conditional transitions.
type Actions interface {
	// State entry actions
	EnterNetworkError(c *librefsm.Context) error
	EnterIdle(c *librefsm.Context) error
	EnterWaitingForCard(c *librefsm.Context) error
	EnterLoggedIn(c *librefsm.Context) error
	EnterProductSelection(c *librefsm.Context) error
	EnterDispensing(c *librefsm.Context) error
	EnterInsufficientBalance(c *librefsm.Context) error
	EnterOutOfStock(c *librefsm.Context) error

	// State exit actions
	ExitDispensing(c *librefsm.Context) error

	// Guards for conditional transitions
	CanPurchase(c *librefsm.Context) bool    // True when some product has stock > 0 and price <= balance
	NoneAffordable(c *librefsm.Context) bool // True when every product's price exceeds the balance
	HasNoUser(c *librefsm.Context) bool

	// Transition actions
	ClearUser(c *librefsm.Context) error
}
