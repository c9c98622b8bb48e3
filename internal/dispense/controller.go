package dispense

import (
	"sync"

	"dispenser-service/internal/logger"
	"dispenser-service/internal/types"
)

// State of the continuous-dispense session.
type State int

const (
	// StateIdle means no dispense session exists.
	StateIdle State = iota
	// StateArmed means a session exists but the gate has not produced a
	// usable classification yet; the actuator is held stopped.
	StateArmed
	// StateRunning means the actuator is turning.
	StateRunning
	// StateStopped means the actuator is held while an obstruction sits
	// at the outlet.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Outcome reports what a controller step did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeWaitingClear: an obstruction was already present, the
	// actuator stays stopped until the outlet clears.
	OutcomeWaitingClear
	// OutcomeStarted: the actuator began (or resumed) turning.
	OutcomeStarted
	// OutcomeComplete: an obstruction appeared while running. Something
	// is now under the outlet, which is the delivery acceptance signal;
	// the session is over. Emitted exactly once per session.
	OutcomeComplete
	// OutcomeAborted: the session was torn down without completing.
	OutcomeAborted
)

// Actuator is the slice of the actuator driver the controller uses.
type Actuator interface {
	Assign(slot types.SlotID)
	Start() error
	Stop() error
	StopAll() error
}

// Controller runs one dispense session at a time. The polarity is
// deliberately inverted from obstacle avoidance: clear means keep
// dispensing, blocked means the item (or the cup catching it) has
// arrived and the actuator must stop.
type Controller struct {
	actuator Actuator
	logger   *logger.Logger

	mu              sync.Mutex
	state           State
	slot            types.SlotID
	obstructionSeen bool
}

func NewController(actuator Actuator, l *logger.Logger) *Controller {
	return &Controller{
		actuator: actuator,
		logger:   l.WithTag("dispense"),
	}
}

// Begin opens a session for slot using the immediate first gate signal.
// With the outlet already obstructed the actuator is left stopped until
// the user clears it; with a clear outlet it starts at once; with no
// usable signal the session arms and waits for the gate.
func (c *Controller) Begin(slot types.SlotID, first Signal) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.logger.Warnf("Begin called with session already active (%s)", c.state)
		return OutcomeNone
	}

	c.actuator.Assign(slot)
	c.slot = slot
	c.obstructionSeen = false

	switch first {
	case SignalObstructed:
		c.state = StateStopped
		c.obstructionSeen = true
		c.stopActuator()
		c.logger.Infof("Dispense %s: outlet obstructed, waiting for clear", slot)
		return OutcomeWaitingClear
	case SignalClear:
		c.state = StateRunning
		c.startActuator()
		c.logger.Infof("Dispense %s: outlet clear, actuator started", slot)
		return OutcomeStarted
	default:
		c.state = StateArmed
		c.stopActuator()
		c.logger.Infof("Dispense %s: no sensor signal yet, armed", slot)
		return OutcomeNone
	}
}

// Step feeds one gate signal into the session. SignalNone never changes
// state.
func (c *Controller) Step(sig Signal) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sig == SignalNone || c.state == StateIdle {
		return OutcomeNone
	}

	switch c.state {
	case StateArmed:
		if sig == SignalObstructed {
			c.state = StateStopped
			c.obstructionSeen = true
			c.stopActuator()
			c.logger.Infof("Dispense %s: outlet obstructed, waiting for clear", c.slot)
			return OutcomeWaitingClear
		}
		c.state = StateRunning
		c.startActuator()
		c.logger.Infof("Dispense %s: actuator started", c.slot)
		return OutcomeStarted

	case StateRunning:
		if sig == SignalObstructed {
			// Something arrived under the outlet while dispensing: the
			// delivery is accepted and the session ends.
			c.stopActuator()
			c.state = StateIdle
			c.slot = 0
			c.obstructionSeen = false
			c.logger.Infof("Dispense complete")
			return OutcomeComplete
		}
		return OutcomeNone

	case StateStopped:
		if sig == SignalClear {
			// User removed hand or cup; dispensing resumes.
			c.state = StateRunning
			c.obstructionSeen = false
			c.startActuator()
			c.logger.Infof("Dispense %s: outlet cleared, actuator resumed", c.slot)
			return OutcomeStarted
		}
		return OutcomeNone
	}

	return OutcomeNone
}

// Abort tears the session down without the completion side effects.
// Safe to call in any state; both actuators are parked.
func (c *Controller) Abort() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.actuator.StopAll(); err != nil {
		c.logger.Errorf("Failed to stop actuators on abort: %v", err)
	}
	if c.state == StateIdle {
		return OutcomeNone
	}
	c.logger.Infof("Dispense %s aborted in state %s", c.slot, c.state)
	c.state = StateIdle
	c.slot = 0
	c.obstructionSeen = false
	return OutcomeAborted
}

// Active reports whether a dispense session exists.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateIdle
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Slot returns the slot of the active session, or 0.
func (c *Controller) Slot() types.SlotID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot
}

// ActuatorRunning reports whether the session's actuator is turning.
func (c *Controller) ActuatorRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRunning
}

func (c *Controller) startActuator() {
	if err := c.actuator.Start(); err != nil {
		c.logger.Errorf("Failed to start actuator for %s: %v", c.slot, err)
	}
}

func (c *Controller) stopActuator() {
	if err := c.actuator.Stop(); err != nil {
		c.logger.Errorf("Failed to stop actuator for %s: %v", c.slot, err)
	}
}
