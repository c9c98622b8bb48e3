package core

import (
	"context"

	"dispenser-service/internal/backend"
	"dispenser-service/internal/messaging"
	"dispenser-service/internal/types"
)

// MessagingClient defines the interface for Redis messaging operations needed by KioskSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	// State and session data
	PublishSessionState(state types.SessionState) error
	PublishBalance(balance types.Currency) error
	ClearBalance() error
	PublishCatalog(products []types.Product) error

	// Display
	PublishDisplay(line1, line2 string) error

	// Dispense lifecycle
	PublishDispenseEvent(slot types.SlotID, event string) error

	// Faults
	ReportFaultPresent(code int, description string, timestamp int64, info string) error
	ReportFaultAbsent(code int) error
}

// KioskIO defines the interface for GPIO operations needed by KioskSystem
type KioskIO interface {
	Initialize() error
	Cleanup()

	ReadButton(name string) (bool, error)
	WriteDigitalOutput(name string, value bool) error
	SetInitialValue(name string, value bool)
}

// DistanceSensor provides the latest outlet distance reading.
type DistanceSensor interface {
	Read() types.DistanceReading
}

// BackendClient defines the backend operations needed by KioskSystem
type BackendClient interface {
	FetchCatalog(ctx context.Context) ([]types.Product, error)
	FindUserByCard(ctx context.Context, cardID string) (*types.User, error)
	CreateOrder(ctx context.Context, userRemoteID, productRemoteID string) (backend.OrderResult, error)
}
