package hardware

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"dispenser-service/internal/types"
)

const (
	pwmServoConfigure = 0x00007540 // _IO('u', 0x40)
	pwmServoSetActive = 0x00007549 // _IO('u', 0x49)
	pwmServoSetDuty   = 0x0000754A // _IO('u', 0x4A)

	// PWM configuration matching the imx_pwm kernel module: 12000 ticks
	// per period at 50Hz servo timing.
	pwmPeriod    = 12000
	pwmPrescaler = 0
	pwmInvert    = 0
	pwmRepeat    = 3
)

// PWM configuration bits as defined in the kernel module
const (
	pwmCfgBitPrescaler = 16
	pwmCfgBitInvert    = 28
	pwmCfgBitRepeat    = 29
)

// Continuous-rotation servo pulse widths expressed as duty ticks of the
// 20ms period: 1.5ms holds still, 2.0ms runs forward, 1.0ms runs in
// reverse. Slot 1 dispenses on forward rotation, slot 2 on reverse;
// the two actuators never rotate the same direction.
const (
	servoDutyStop    = 900
	servoDutyForward = 1200
	servoDutyReverse = 600
)

type servoDevice struct {
	fd   int
	duty int
	lock sync.Mutex
}

// servoChannels maps each slot to its PWM device index.
var servoChannels = map[types.SlotID]int{
	types.Slot1: 0,
	types.Slot2: 1,
}

// ImxPwmServo drives the two continuous-rotation actuators through the
// imx PWM character devices. Start and Stop act on the assigned slot
// only; StopAll is the safety path that parks both.
type ImxPwmServo struct {
	devices  map[types.SlotID]*servoDevice
	assigned types.SlotID
	mu       sync.Mutex
	enabled  bool
}

func NewImxPwmServo() *ImxPwmServo {
	return &ImxPwmServo{
		devices: make(map[types.SlotID]*servoDevice),
	}
}

func (s *ImxPwmServo) configurePWM(device *servoDevice) error {
	config := uint32(pwmPeriod) |
		(uint32(pwmPrescaler) << pwmCfgBitPrescaler) |
		(uint32(pwmInvert) << pwmCfgBitInvert) |
		(uint32(pwmRepeat) << pwmCfgBitRepeat)

	if err := unix.IoctlSetInt(device.fd, pwmServoConfigure, int(config)); err != nil {
		return fmt.Errorf("failed to configure PWM: %v", err)
	}
	return nil
}

func (s *ImxPwmServo) Init() error {
	log.Printf("Initializing PWM servo driver")
	if _, err := os.Stat(PwmServoModulePath); os.IsNotExist(err) {
		return fmt.Errorf("PWM kernel module not loaded")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, ch := range servoChannels {
		devPath := fmt.Sprintf(PwmServoDevFmt, ch)
		fd, err := unix.Open(devPath, unix.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("failed to open servo device %s: %w", devPath, err)
		}

		device := &servoDevice{fd: fd, duty: -1}
		if err := s.configurePWM(device); err != nil {
			unix.Close(fd)
			return fmt.Errorf("failed to configure servo %s: %w", slot, err)
		}
		time.Sleep(10 * time.Millisecond)

		if err := unix.IoctlSetInt(fd, pwmServoSetActive, 1); err != nil {
			unix.Close(fd)
			return fmt.Errorf("failed to activate servo %s: %w", slot, err)
		}

		s.devices[slot] = device
		log.Printf("Configured servo %s on %s", slot, devPath)
	}

	s.enabled = true

	// Park both actuators before anything else runs.
	for slot := range s.devices {
		if err := s.setDuty(slot, servoDutyStop); err != nil {
			return err
		}
	}
	return nil
}

func (s *ImxPwmServo) setDuty(slot types.SlotID, duty int) error {
	device, ok := s.devices[slot]
	if !ok {
		return fmt.Errorf("no servo device for %s", slot)
	}

	device.lock.Lock()
	defer device.lock.Unlock()

	if err := unix.IoctlSetInt(device.fd, pwmServoSetDuty, duty); err != nil {
		return fmt.Errorf("failed to set duty %d on %s: %v", duty, slot, err)
	}
	device.duty = duty
	return nil
}

// runDuty returns the dispense duty for a slot: slot 1 forward, slot 2
// reverse.
func runDuty(slot types.SlotID) int {
	if slot == types.Slot2 {
		return servoDutyReverse
	}
	return servoDutyForward
}

// Assign binds Start and Stop to one slot's actuator.
func (s *ImxPwmServo) Assign(slot types.SlotID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned = slot
	log.Printf("Assigned actuator for %s", slot)
}

func (s *ImxPwmServo) Assigned() types.SlotID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assigned
}

// Start runs the assigned slot's actuator in its dispense direction.
func (s *ImxPwmServo) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return fmt.Errorf("servo driver not initialized")
	}
	if s.assigned == 0 {
		return fmt.Errorf("no slot assigned")
	}
	return s.setDuty(s.assigned, runDuty(s.assigned))
}

// Stop parks the assigned slot's actuator. Repeated stops just re-issue
// the stop pulse.
func (s *ImxPwmServo) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return fmt.Errorf("servo driver not initialized")
	}
	if s.assigned == 0 {
		return nil
	}
	return s.setDuty(s.assigned, servoDutyStop)
}

// StopAll parks both actuators regardless of assignment. Used for
// safety resets: logout, forced restart, session end.
func (s *ImxPwmServo) StopAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return fmt.Errorf("servo driver not initialized")
	}
	var firstErr error
	for slot := range s.devices {
		if err := s.setDuty(slot, servoDutyStop); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *ImxPwmServo) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, device := range s.devices {
		device.lock.Lock()
		if err := unix.IoctlSetInt(device.fd, pwmServoSetDuty, servoDutyStop); err != nil {
			log.Printf("Failed to park servo %s: %v", slot, err)
		}
		if err := unix.IoctlSetInt(device.fd, pwmServoSetActive, 0); err != nil {
			log.Printf("Failed to deactivate servo %s: %v", slot, err)
		}
		unix.Close(device.fd)
		device.lock.Unlock()
		log.Printf("Closed servo device for %s", slot)
	}
	s.devices = make(map[types.SlotID]*servoDevice)
	s.enabled = false
}
