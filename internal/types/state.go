package types

type SessionState string

const (
	StateNetworkConnecting   SessionState = "network-connecting"
	StateNetworkError        SessionState = "network-error"
	StateIdle                SessionState = "idle"
	StateWaitingForCard      SessionState = "waiting-for-card"
	StateLoggedIn            SessionState = "logged-in"
	StateProductSelection    SessionState = "product-selection"
	StateDispensing          SessionState = "dispensing"
	StateInsufficientBalance SessionState = "insufficient-balance"
	StateOutOfStock          SessionState = "out-of-stock"
)
