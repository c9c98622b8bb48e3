package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"
	"golang.org/x/time/rate"

	"dispenser-service/internal/backend"
	"dispenser-service/internal/dispense"
	"dispenser-service/internal/fsm"
	"dispenser-service/internal/hardware"
	"dispenser-service/internal/ledger"
	"dispenser-service/internal/logger"
	"dispenser-service/internal/messaging"
	"dispenser-service/internal/metrics"
	"dispenser-service/internal/types"
)

const (
	// TickInterval drives the cooperative control loop: connectivity,
	// dispense step, card poll, button poll, status emission.
	TickInterval = 20 * time.Millisecond

	catalogRefreshInterval = 10 * time.Second
	statusInterval         = 5 * time.Second
	noticeDuration         = 3 * time.Second

	// Consecutive no-echo readings during a dispense before the
	// rangefinder is reported faulty.
	sensorFaultThreshold = 25
	sensorFaultCode      = 1
)

type buttonInput struct {
	name string
	slot types.SlotID
}

type KioskSystem struct {
	machine *librefsm.Machine
	state   types.SessionState
	logger  *logger.Logger

	io         KioskIO
	redis      MessagingClient
	backend    BackendClient
	sensor     DistanceSensor
	controller *dispense.Controller

	ledger *ledger.Ledger
	gate   *dispense.Gate

	mu          sync.RWMutex
	pendingSlot types.SlotID

	buttons    []buttonInput
	debouncers map[string]*hardware.Debouncer

	cardCh chan string

	catalogLimiter *rate.Limiter

	noticeDeadline    time.Time
	lastStatusEmit    time.Time
	noEchoStreak      int
	sensorFaultActive bool
}

func NewKioskSystem(io KioskIO, redis MessagingClient, backend BackendClient, sensor DistanceSensor, controller *dispense.Controller, l *logger.Logger) *KioskSystem {
	now := time.Now()
	return &KioskSystem{
		state:      types.StateNetworkConnecting,
		logger:     l.WithTag("kiosk"),
		io:         io,
		redis:      redis,
		backend:    backend,
		sensor:     sensor,
		controller: controller,
		ledger:     ledger.New(),
		gate:       dispense.NewGate(),
		buttons: []buttonInput{
			{name: "button_1", slot: types.Slot1},
			{name: "button_2", slot: types.Slot2},
		},
		debouncers: map[string]*hardware.Debouncer{
			"button_1": hardware.NewDebouncer(now),
			"button_2": hardware.NewDebouncer(now),
		},
		cardCh:         make(chan string, 4),
		catalogLimiter: rate.NewLimiter(rate.Every(catalogRefreshInterval), 1),
	}
}

func (k *KioskSystem) Start(ctx context.Context) error {
	k.logger.Infof("Starting kiosk system")

	k.redis.SetCallbacks(messaging.Callbacks{
		CardCallback:     k.handleCardEvent,
		StateCallback:    k.handleStateRequest,
		DispenseCallback: k.handleDispenseRequest,
		CatalogCallback:  k.handleCatalogRequest,
	})

	if err := k.redis.Connect(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// Actuator supply stays off until a dispense session needs it.
	k.io.SetInitialValue("actuator_power", false)

	if err := k.io.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware: %w", err)
	}

	if err := k.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start state machine: %w", err)
	}

	if err := k.io.WriteDigitalOutput("status_led", true); err != nil {
		k.logger.Warnf("Failed to enable status LED: %v", err)
	}

	if err := k.redis.StartListening(); err != nil {
		return fmt.Errorf("failed to start Redis listeners: %w", err)
	}

	go k.run(ctx)

	k.logger.Infof("System started successfully")
	return nil
}

// run is the cooperative control loop. Everything that touches the
// session, the ledger or the actuators happens on this goroutine or
// behind the FSM, never concurrently with itself.
func (k *KioskSystem) run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Infof("Control loop stopped")
			return
		case now := <-ticker.C:
			k.tick(ctx, now)
		}
	}
}

func (k *KioskSystem) tick(ctx context.Context, now time.Time) {
	if !k.dispensing() && k.catalogLimiter.Allow() {
		k.refreshCatalog(ctx)
	}

	k.stepDispense(now)
	k.pollCard(ctx)
	k.pollButtons(now)
	k.expireNotice(now)
	k.emitStatus(now)
}

func (k *KioskSystem) dispensing() bool {
	return k.currentState() == types.StateDispensing
}

// refreshCatalog replaces the catalog wholesale on success and keeps
// the previous one on failure. Until at least one fetch has succeeded
// the kiosk refuses to serve purchases.
func (k *KioskSystem) refreshCatalog(ctx context.Context) {
	products, err := k.backend.FetchCatalog(ctx)
	if err != nil {
		metrics.BackendErrors.Inc()
		k.logger.Warnf("Catalog refresh failed: %v", err)

		switch k.currentState() {
		case types.StateIdle, types.StateWaitingForCard:
			if err := k.sendEvent(fsm.EvBackendLost); err != nil {
				k.logger.Errorf("Failed to signal backend loss: %v", err)
			}
		}
		return
	}

	k.ledger.ReplaceCatalog(products)
	if err := k.redis.PublishCatalog(products); err != nil {
		k.logger.Warnf("Failed to publish catalog: %v", err)
	}

	switch k.currentState() {
	case types.StateNetworkConnecting, types.StateNetworkError:
		if err := k.sendEvent(fsm.EvCatalogReady); err != nil {
			k.logger.Errorf("Failed to signal catalog ready: %v", err)
		}
	}
}

// stepDispense advances the active dispense session by one sensor
// sample. Completion is signalled by an obstruction while running.
func (k *KioskSystem) stepDispense(now time.Time) {
	if !k.controller.Active() {
		return
	}

	reading := k.sensor.Read()
	k.trackSensorHealth(reading)

	slot := k.controller.Slot()
	sig := k.gate.Sample(reading, now)

	switch k.controller.Step(sig) {
	case dispense.OutcomeStarted:
		if err := k.redis.PublishDispenseEvent(slot, "started"); err != nil {
			k.logger.Warnf("Failed to publish dispense start: %v", err)
		}
	case dispense.OutcomeComplete:
		metrics.DispensesCompleted.Inc()
		if err := k.redis.PublishDispenseEvent(slot, "complete"); err != nil {
			k.logger.Warnf("Failed to publish dispense completion: %v", err)
		}
		if err := k.sendEvent(fsm.EvDispenseComplete); err != nil {
			k.logger.Errorf("Failed to signal dispense completion: %v", err)
		}
	}
}

func (k *KioskSystem) trackSensorHealth(reading types.DistanceReading) {
	if reading.Status == types.ReadingNoEcho {
		metrics.SensorNoEcho.Inc()
		k.noEchoStreak++
		if k.noEchoStreak > sensorFaultThreshold && !k.sensorFaultActive {
			k.sensorFaultActive = true
			if err := k.redis.ReportFaultPresent(sensorFaultCode, "rangefinder no echo", time.Now().Unix(), ""); err != nil {
				k.logger.Warnf("Failed to report sensor fault: %v", err)
			}
		}
		return
	}

	k.noEchoStreak = 0
	if k.sensorFaultActive {
		k.sensorFaultActive = false
		if err := k.redis.ReportFaultAbsent(sensorFaultCode); err != nil {
			k.logger.Warnf("Failed to clear sensor fault: %v", err)
		}
	}
}

func (k *KioskSystem) pollCard(ctx context.Context) {
	select {
	case cardID := <-k.cardCh:
		k.handleCardScan(ctx, cardID)
	default:
	}
}

func (k *KioskSystem) handleCardScan(ctx context.Context, cardID string) {
	metrics.CardScans.Inc()

	state := k.currentState()
	switch state {
	case types.StateDispensing:
		k.logger.Debugf("Ignoring card scan while dispensing")
		return
	case types.StateNetworkConnecting, types.StateNetworkError:
		k.logger.Debugf("Ignoring card scan without backend connectivity")
		return
	}

	if !k.ledger.Ready() {
		k.logger.Warnf("Ignoring card scan: no catalog yet")
		return
	}

	user, err := k.backend.FindUserByCard(ctx, cardID)
	if err != nil {
		metrics.BackendErrors.Inc()
		k.logger.Warnf("Card lookup failed: %v", err)
		k.notice("SERVICE UNAVAILABLE", "TRY AGAIN LATER")
		return
	}

	if user == nil {
		metrics.UnknownCards.Inc()
		k.logger.Infof("Unknown card: %s", cardID)
		k.notice("CARD NOT REGISTERED", "")
		switch state {
		case types.StateLoggedIn, types.StateProductSelection,
			types.StateInsufficientBalance, types.StateOutOfStock:
			if err := k.sendEvent(fsm.EvUnknownCard); err != nil {
				k.logger.Errorf("Failed to end session on unknown card: %v", err)
			}
		}
		return
	}

	k.logger.Infof("Card %s resolved to user %s (balance %s)", cardID, user.DisplayName, user.Balance)
	k.ledger.SetUser(user)
	if err := k.sendEvent(fsm.EvLoggedIn); err != nil {
		k.logger.Errorf("Failed to process login: %v", err)
	}
}

func (k *KioskSystem) pollButtons(now time.Time) {
	for _, btn := range k.buttons {
		raw, err := k.io.ReadButton(btn.name)
		if err != nil {
			k.logger.Warnf("Failed to read %s: %v", btn.name, err)
			continue
		}
		if k.debouncers[btn.name].Observe(raw, now) {
			k.handleButtonPress(btn.slot)
		}
	}
}

func (k *KioskSystem) handleButtonPress(slot types.SlotID) {
	state := k.currentState()
	k.logger.Debugf("Button for %s pressed in state %s", slot, state)

	switch state {
	case types.StateIdle:
		if err := k.sendEvent(fsm.EvSessionStart); err != nil {
			k.logger.Errorf("Failed to start session: %v", err)
		}

	case types.StateWaitingForCard:
		if err := k.sendEvent(fsm.EvCancel); err != nil {
			k.logger.Errorf("Failed to cancel card wait: %v", err)
		}

	case types.StateLoggedIn:
		if slot == types.Slot1 {
			// Re-show the balance greeting, restarting its timeout.
			if err := k.sendEvent(fsm.EvLoggedIn); err != nil {
				k.logger.Errorf("Failed to refresh greeting: %v", err)
			}
			return
		}
		if err := k.sendEvent(fsm.EvLogout); err != nil {
			k.logger.Errorf("Failed to log out: %v", err)
		}

	case types.StateProductSelection:
		k.purchase(slot)

	case types.StateDispensing:
		k.abortDispense()

	case types.StateInsufficientBalance:
		if slot == types.Slot2 {
			if err := k.sendEvent(fsm.EvLogout); err != nil {
				k.logger.Errorf("Failed to log out: %v", err)
			}
		}

	default:
		// OutOfStock and network states ignore buttons.
	}
}

// purchase runs the synchronous order flow. Local balance and stock
// checks reject without a backend call; a committed order updates the
// ledger all-or-nothing and hands the slot to the dispense controller.
func (k *KioskSystem) purchase(slot types.SlotID) {
	if slot == types.Slot2 && k.ledger.ProductCount() < 2 {
		k.logger.Debugf("Ignoring slot 2 button: single-product catalog")
		return
	}

	product, ok := k.ledger.ProductBySlot(slot)
	if !ok {
		k.logger.Warnf("No product bound to %s", slot)
		return
	}
	user := k.ledger.User()
	if user == nil {
		k.logger.Errorf("Purchase without a user, ignoring")
		return
	}

	if product.Stock <= 0 {
		k.notice("OUT OF STOCK", product.Name)
		return
	}
	if user.Balance < product.Price {
		k.notice("INSUFFICIENT BALANCE", fmt.Sprintf("%s COSTS %s", product.Name, product.Price))
		return
	}

	// No dispense session exists yet, so pausing the loop for the
	// order round-trip is safe.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := k.backend.CreateOrder(ctx, user.RemoteID, product.RemoteID)
	if err != nil {
		metrics.OrderFailures.Inc()
		if errors.Is(err, backend.ErrRejected) {
			k.logger.Warnf("Order for %s rejected: %v", product.Name, err)
			k.notice("ORDER REFUSED", "TRY AGAIN")
		} else {
			metrics.BackendErrors.Inc()
			k.logger.Warnf("Order for %s failed: %v", product.Name, err)
			k.notice("SERVICE UNAVAILABLE", "TRY AGAIN LATER")
		}
		return
	}

	metrics.Orders.Inc()
	if err := k.ledger.ApplyOrder(slot, result.NewBalance, result.NewStock); err != nil {
		k.logger.Errorf("Failed to apply order to ledger: %v", err)
		return
	}
	k.logger.Infof("Order committed: %s, new balance %s, stock %d", product.Name, result.NewBalance, result.NewStock)

	k.mu.Lock()
	k.pendingSlot = slot
	k.mu.Unlock()

	if err := k.sendEvent(fsm.EvPurchaseApproved); err != nil {
		k.logger.Errorf("Failed to enter dispensing: %v", err)
	}
}

func (k *KioskSystem) abortDispense() {
	slot := k.controller.Slot()
	if k.controller.Abort() != dispense.OutcomeAborted {
		return
	}

	metrics.DispensesAborted.Inc()
	if err := k.redis.PublishDispenseEvent(slot, "aborted"); err != nil {
		k.logger.Warnf("Failed to publish dispense abort: %v", err)
	}
	if err := k.sendEvent(fsm.EvDispenseAborted); err != nil {
		k.logger.Errorf("Failed to signal dispense abort: %v", err)
	}
}

// notice shows a transient two-line message; the state's base screen is
// restored by the control loop once the notice expires. Never a
// blocking sleep.
func (k *KioskSystem) notice(line1, line2 string) {
	if err := k.redis.PublishDisplay(line1, line2); err != nil {
		k.logger.Warnf("Failed to publish notice: %v", err)
	}
	k.mu.Lock()
	k.noticeDeadline = time.Now().Add(noticeDuration)
	k.mu.Unlock()
}

func (k *KioskSystem) expireNotice(now time.Time) {
	k.mu.Lock()
	expired := !k.noticeDeadline.IsZero() && now.After(k.noticeDeadline)
	if expired {
		k.noticeDeadline = time.Time{}
	}
	k.mu.Unlock()

	if expired {
		k.presentStateScreen(k.currentState())
	}
}

func (k *KioskSystem) emitStatus(now time.Time) {
	if now.Sub(k.lastStatusEmit) < statusInterval {
		return
	}
	k.lastStatusEmit = now
	if err := k.redis.PublishSessionState(k.currentState()); err != nil {
		k.logger.Warnf("Failed to publish session state: %v", err)
	}
}

// present publishes the display lines and cancels any pending notice.
func (k *KioskSystem) present(line1, line2 string) {
	k.mu.Lock()
	k.noticeDeadline = time.Time{}
	k.mu.Unlock()

	if err := k.redis.PublishDisplay(line1, line2); err != nil {
		k.logger.Warnf("Failed to publish display lines: %v", err)
	}
}

func (k *KioskSystem) presentStateScreen(state types.SessionState) {
	switch state {
	case types.StateNetworkConnecting:
		k.present("STARTING UP", "PLEASE WAIT")
	case types.StateNetworkError:
		k.present("OUT OF SERVICE", "CHECKING CONNECTION")
	case types.StateIdle:
		k.present("WELCOME", "TAP CARD OR PRESS BUTTON")
	case types.StateWaitingForCard:
		k.present("PLEASE TAP", "YOUR CARD")
	case types.StateLoggedIn:
		if user := k.ledger.User(); user != nil {
			k.present("HELLO "+user.DisplayName, "BALANCE "+user.Balance.String())
		}
	case types.StateProductSelection:
		k.present(k.selectionLines())
	case types.StateDispensing:
		k.present("DISPENSING", "PLEASE WAIT")
	case types.StateInsufficientBalance:
		k.present("INSUFFICIENT BALANCE", "PLEASE TOP UP")
	case types.StateOutOfStock:
		k.present("OUT OF STOCK", "SORRY")
	}
}

func (k *KioskSystem) selectionLines() (string, string) {
	var line1, line2 string
	for _, p := range k.ledger.Products() {
		line := fmt.Sprintf("%d) %s %s", int(p.Slot), p.Name, p.Price)
		switch p.Slot {
		case types.Slot1:
			line1 = line
		case types.Slot2:
			line2 = line
		}
	}
	if line1 == "" {
		line1 = "SELECT PRODUCT"
	}
	return line1, line2
}

// === Redis command handlers (run on listener goroutines) ===

func (k *KioskSystem) handleCardEvent(cardID string) error {
	select {
	case k.cardCh <- cardID:
	default:
		k.logger.Warnf("Card queue full, dropping scan %s", cardID)
	}
	return nil
}

func (k *KioskSystem) handleStateRequest(value string) error {
	k.logger.Infof("Handling state request: %s", value)

	switch value {
	case "logout":
		if k.dispensing() {
			return fmt.Errorf("cannot log out while dispensing")
		}
		if k.ledger.User() == nil {
			return nil
		}
		return k.sendEvent(fsm.EvLogout)

	case "reset":
		if k.dispensing() {
			k.abortDispense()
		}
		switch k.currentState() {
		case types.StateIdle, types.StateNetworkConnecting, types.StateNetworkError:
			return nil
		}
		return k.sendEvent(fsm.EvReset)

	default:
		return fmt.Errorf("invalid state request: %s", value)
	}
}

func (k *KioskSystem) handleDispenseRequest(value string) error {
	k.logger.Infof("Handling dispense request: %s", value)
	if value != "abort" {
		return fmt.Errorf("invalid dispense request: %s", value)
	}
	if !k.dispensing() {
		return nil
	}
	k.abortDispense()
	return nil
}

func (k *KioskSystem) handleCatalogRequest(value string) error {
	k.logger.Infof("Handling catalog request: %s", value)
	if value != "refresh" {
		return fmt.Errorf("invalid catalog request: %s", value)
	}
	if k.dispensing() {
		return fmt.Errorf("cannot refresh catalog while dispensing")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	k.refreshCatalog(ctx)
	return nil
}

func (k *KioskSystem) Shutdown() {
	k.logger.Infof("Shutting down kiosk system")

	if k.controller != nil {
		k.controller.Abort()
	}
	if k.io != nil {
		if err := k.io.WriteDigitalOutput("actuator_power", false); err != nil {
			k.logger.Warnf("Failed to disable actuator power: %v", err)
		}
		if err := k.io.WriteDigitalOutput("status_led", false); err != nil {
			k.logger.Warnf("Failed to disable status LED: %v", err)
		}
	}
	if k.redis != nil {
		k.redis.Close()
	}
	if k.io != nil {
		k.io.Cleanup()
	}
}
