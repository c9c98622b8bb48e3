package fsm

import "github.com/librescoot/librefsm"

// Kiosk session states
const (
	StateNetworkConnecting librefsm.StateID = "network-connecting"
	StateNetworkError      librefsm.StateID = "network-error"
	StateIdle              librefsm.StateID = "idle"

	// Session parent state and substates (hierarchical)
	StateSession             librefsm.StateID = "session"
	StateWaitingForCard      librefsm.StateID = "waiting-for-card"
	StateLoggedIn            librefsm.StateID = "logged-in"
	StateProductSelection    librefsm.StateID = "product-selection"
	StateDispensing          librefsm.StateID = "dispensing"
	StateInsufficientBalance librefsm.StateID = "insufficient-balance"
	StateOutOfStock          librefsm.StateID = "out-of-stock"
)

// Kiosk events
const (
	// Backend connectivity
	EvCatalogReady librefsm.EventID = "catalog-ready"
	EvBackendLost  librefsm.EventID = "backend-lost"

	// Card reader and buttons
	EvSessionStart librefsm.EventID = "session-start"
	EvCancel       librefsm.EventID = "cancel"
	EvLoggedIn     librefsm.EventID = "logged-in"
	EvUnknownCard  librefsm.EventID = "unknown-card"
	EvLogout       librefsm.EventID = "logout"

	// Purchase and dispense lifecycle
	EvPurchaseApproved librefsm.EventID = "purchase-approved"
	EvDispenseComplete librefsm.EventID = "dispense-complete"
	EvDispenseAborted  librefsm.EventID = "dispense-aborted"

	// Timer events
	EvWelcomeTimeout librefsm.EventID = "welcome-timeout"

	// External commands (from Redis)
	EvReset librefsm.EventID = "reset"
)
