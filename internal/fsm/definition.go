package fsm

import (
	"time"

	"github.com/librescoot/librefsm"
)

// Timing constants
const (
	// WelcomeTimeout is how long the balance greeting is shown before
	// the session advances to product selection.
	WelcomeTimeout = 2 * time.Second
)

// NewDefinition creates the kiosk session FSM definition.
// The actions parameter provides the implementation for state entry/exit
// and guards.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		// Basic states
		State(StateNetworkConnecting).
		State(StateNetworkError,
			librefsm.WithOnEnter(actions.EnterNetworkError),
		).
		State(StateIdle,
			librefsm.WithOnEnter(actions.EnterIdle),
		).

		// Session parent state (for shared logout/reset behavior)
		State(StateSession).

		// Session substates (hierarchical)
		State(StateWaitingForCard,
			librefsm.WithParent(StateSession),
			librefsm.WithOnEnter(actions.EnterWaitingForCard),
		).
		State(StateLoggedIn,
			librefsm.WithParent(StateSession),
			librefsm.WithTimeout(WelcomeTimeout, EvWelcomeTimeout),
			librefsm.WithOnEnter(actions.EnterLoggedIn),
		).
		State(StateProductSelection,
			librefsm.WithParent(StateSession),
			librefsm.WithOnEnter(actions.EnterProductSelection),
		).
		State(StateDispensing,
			librefsm.WithParent(StateSession),
			librefsm.WithOnEnter(actions.EnterDispensing),
			librefsm.WithOnExit(actions.ExitDispensing),
		).
		State(StateInsufficientBalance,
			librefsm.WithParent(StateSession),
			librefsm.WithOnEnter(actions.EnterInsufficientBalance),
		).
		State(StateOutOfStock,
			librefsm.WithParent(StateSession),
			librefsm.WithOnEnter(actions.EnterOutOfStock),
		).

		// === Transitions ===

		// Backend connectivity
		Transition(StateNetworkConnecting, EvCatalogReady, StateIdle).
		Transition(StateNetworkError, EvCatalogReady, StateIdle).
		Transition(StateIdle, EvBackendLost, StateNetworkError).
		Transition(StateWaitingForCard, EvBackendLost, StateNetworkError).

		// From Idle - button starts a card-wait session, a direct card
		// scan logs in straight away
		Transition(StateIdle, EvSessionStart, StateWaitingForCard).
		Transition(StateIdle, EvLoggedIn, StateLoggedIn,
			librefsm.WithGuard(actions.CanPurchase),
		).
		Transition(StateIdle, EvLoggedIn, StateInsufficientBalance,
			librefsm.WithGuard(actions.NoneAffordable),
		).
		Transition(StateIdle, EvLoggedIn, StateOutOfStock).

		// From WaitingForCard
		Transition(StateWaitingForCard, EvCancel, StateIdle).

		// Card scan anywhere inside a session re-runs the affordability
		// fan-out: some product affordable and in stock -> LoggedIn;
		// nothing affordable -> InsufficientBalance; otherwise
		// everything affordable is out of stock.
		Transition(StateSession, EvLoggedIn, StateLoggedIn,
			librefsm.WithGuard(actions.CanPurchase),
		).
		Transition(StateSession, EvLoggedIn, StateInsufficientBalance,
			librefsm.WithGuard(actions.NoneAffordable),
		).
		Transition(StateSession, EvLoggedIn, StateOutOfStock).

		// From LoggedIn
		Transition(StateLoggedIn, EvWelcomeTimeout, StateProductSelection).

		// Unknown card ends the session outside of dispensing
		Transition(StateLoggedIn, EvUnknownCard, StateIdle,
			librefsm.WithAction(actions.ClearUser),
		).
		Transition(StateProductSelection, EvUnknownCard, StateIdle,
			librefsm.WithAction(actions.ClearUser),
		).
		Transition(StateInsufficientBalance, EvUnknownCard, StateIdle,
			librefsm.WithAction(actions.ClearUser),
		).
		Transition(StateOutOfStock, EvUnknownCard, StateIdle,
			librefsm.WithAction(actions.ClearUser),
		).

		// Purchase flow
		Transition(StateProductSelection, EvPurchaseApproved, StateDispensing).

		// Dispense completion handoff: re-evaluate affordability with
		// the post-order balance/stock, or drop to Idle if the session
		// ended without a user.
		Transition(StateDispensing, EvDispenseComplete, StateIdle,
			librefsm.WithGuard(actions.HasNoUser),
		).
		Transition(StateDispensing, EvDispenseComplete, StateProductSelection,
			librefsm.WithGuard(actions.CanPurchase),
		).
		Transition(StateDispensing, EvDispenseComplete, StateInsufficientBalance,
			librefsm.WithGuard(actions.NoneAffordable),
		).
		Transition(StateDispensing, EvDispenseComplete, StateOutOfStock).
		Transition(StateDispensing, EvDispenseAborted, StateIdle,
			librefsm.WithGuard(actions.HasNoUser),
		).
		Transition(StateDispensing, EvDispenseAborted, StateProductSelection,
			librefsm.WithGuard(actions.CanPurchase),
		).
		Transition(StateDispensing, EvDispenseAborted, StateInsufficientBalance,
			librefsm.WithGuard(actions.NoneAffordable),
		).
		Transition(StateDispensing, EvDispenseAborted, StateOutOfStock).

		// Logout and external reset end the session from any substate
		// except Dispensing, which the caller gates.
		Transition(StateSession, EvLogout, StateIdle,
			librefsm.WithAction(actions.ClearUser),
		).
		Transition(StateSession, EvReset, StateIdle,
			librefsm.WithAction(actions.ClearUser),
		).

		// Initial state
		Initial(StateNetworkConnecting)
}
