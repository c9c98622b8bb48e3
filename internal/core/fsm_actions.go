package core

import (
	"context"
	"time"

	"github.com/librescoot/librefsm"

	"dispenser-service/internal/dispense"
	"dispenser-service/internal/fsm"
	"dispenser-service/internal/ledger"
	"dispenser-service/internal/types"
)

// Ensure KioskSystem implements fsm.Actions
var _ fsm.Actions = (*KioskSystem)(nil)

// stateIDToSessionState converts librefsm StateID to types.SessionState
func stateIDToSessionState(id librefsm.StateID) types.SessionState {
	return types.SessionState(string(id))
}

// initFSM initializes and starts the librefsm machine
func (k *KioskSystem) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(k)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	k.machine = machine

	// Sync the mirror state field and publish on every transition
	k.machine.OnStateChange(func(from, to librefsm.StateID) {
		newState := stateIDToSessionState(to)
		oldState := stateIDToSessionState(from)

		k.mu.Lock()
		k.state = newState
		k.mu.Unlock()

		k.logger.Infof("State transition: %s -> %s", oldState, newState)

		// Publish directly with the known new state (calling
		// currentState() here would deadlock against the FSM mutex)
		if err := k.redis.PublishSessionState(newState); err != nil {
			k.logger.Errorf("Failed to publish state: %v", err)
		}
	})

	if err := k.machine.Start(ctx); err != nil {
		return err
	}

	k.logger.Infof("librefsm state machine started")
	return nil
}

// sendEvent sends an event to the FSM
func (k *KioskSystem) sendEvent(event librefsm.EventID) error {
	return k.machine.SendSync(librefsm.Event{ID: event})
}

// currentState returns the current state (thread-safe) using FSM
func (k *KioskSystem) currentState() types.SessionState {
	if k.machine != nil {
		return stateIDToSessionState(k.machine.CurrentState())
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// === State Entry Actions ===

func (k *KioskSystem) EnterNetworkError(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterNetworkError")
	k.presentStateScreen(types.StateNetworkError)
	return nil
}

func (k *KioskSystem) EnterIdle(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterIdle")
	k.presentStateScreen(types.StateIdle)
	return nil
}

func (k *KioskSystem) EnterWaitingForCard(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterWaitingForCard")
	k.presentStateScreen(types.StateWaitingForCard)
	return nil
}

func (k *KioskSystem) EnterLoggedIn(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterLoggedIn")

	user := k.ledger.User()
	if user == nil {
		k.logger.Errorf("Entered logged-in without a user")
		return nil
	}
	if err := k.redis.PublishBalance(user.Balance); err != nil {
		k.logger.Warnf("Failed to publish balance: %v", err)
	}
	k.presentStateScreen(types.StateLoggedIn)
	return nil
}

func (k *KioskSystem) EnterProductSelection(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterProductSelection")
	k.presentStateScreen(types.StateProductSelection)
	return nil
}

// EnterDispensing opens the single dispense session on the slot the
// purchase approved. The first gate reading decides whether the
// actuator starts immediately or waits for the outlet to clear.
func (k *KioskSystem) EnterDispensing(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterDispensing")

	k.mu.RLock()
	slot := k.pendingSlot
	k.mu.RUnlock()

	if err := k.io.WriteDigitalOutput("actuator_power", true); err != nil {
		k.logger.Warnf("Failed to enable actuator power: %v", err)
	}

	k.gate.Reset()
	sig := k.gate.Sample(k.sensor.Read(), time.Now())

	switch k.controller.Begin(slot, sig) {
	case dispense.OutcomeStarted:
		k.presentStateScreen(types.StateDispensing)
		if err := k.redis.PublishDispenseEvent(slot, "started"); err != nil {
			k.logger.Warnf("Failed to publish dispense start: %v", err)
		}
	case dispense.OutcomeWaitingClear:
		k.present("PLEASE CLEAR", "THE OUTLET")
	default:
		k.presentStateScreen(types.StateDispensing)
	}
	return nil
}

// ExitDispensing stops the actuators no matter how the session ended.
func (k *KioskSystem) ExitDispensing(c *librefsm.Context) error {
	k.logger.Debugf("FSM: ExitDispensing")
	k.controller.Abort()

	if err := k.io.WriteDigitalOutput("actuator_power", false); err != nil {
		k.logger.Warnf("Failed to disable actuator power: %v", err)
	}

	k.mu.Lock()
	k.pendingSlot = 0
	k.mu.Unlock()
	return nil
}

func (k *KioskSystem) EnterInsufficientBalance(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterInsufficientBalance")
	k.presentStateScreen(types.StateInsufficientBalance)
	return nil
}

func (k *KioskSystem) EnterOutOfStock(c *librefsm.Context) error {
	k.logger.Debugf("FSM: EnterOutOfStock")
	k.presentStateScreen(types.StateOutOfStock)
	return nil
}

// === Guards ===

func (k *KioskSystem) CanPurchase(c *librefsm.Context) bool {
	return k.ledger.Evaluate() == ledger.OutcomeCanPurchase
}

func (k *KioskSystem) NoneAffordable(c *librefsm.Context) bool {
	return k.ledger.Evaluate() == ledger.OutcomeInsufficientBalance
}

func (k *KioskSystem) HasNoUser(c *librefsm.Context) bool {
	return k.ledger.User() == nil
}

// === Transition Actions ===

func (k *KioskSystem) ClearUser(c *librefsm.Context) error {
	k.logger.Debugf("FSM: ClearUser")
	k.ledger.SetUser(nil)
	if err := k.redis.ClearBalance(); err != nil {
		k.logger.Warnf("Failed to clear published balance: %v", err)
	}
	return nil
}
