package hardware

import (
	"fmt"
	"log"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// LinuxKioskIO owns the GPIO lines of the kiosk: the two selection
// buttons as inputs and the power-control outputs. Buttons are
// requested with pull-ups and read raw; debouncing is the caller's job.
type LinuxKioskIO struct {
	logger        *log.Logger
	chips         map[int]*gpiocdev.Chip
	outputs       map[string]*gpiocdev.Line
	buttons       map[string]*gpiocdev.Line
	initialValues map[string]bool
	mu            sync.RWMutex
}

func NewLinuxKioskIO() *LinuxKioskIO {
	return &LinuxKioskIO{
		logger:        log.New(log.Writer(), "KioskIO: ", log.LstdFlags),
		chips:         make(map[int]*gpiocdev.Chip),
		outputs:       make(map[string]*gpiocdev.Line),
		buttons:       make(map[string]*gpiocdev.Line),
		initialValues: make(map[string]bool),
	}
}

func (io *LinuxKioskIO) SetInitialValue(name string, value bool) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.initialValues[name] = value
}

func (io *LinuxKioskIO) chip(num int) (*gpiocdev.Chip, error) {
	if c, ok := io.chips[num]; ok {
		return c, nil
	}
	c, err := gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", num))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %d: %w", num, err)
	}
	io.chips[num] = c
	return c, nil
}

func (io *LinuxKioskIO) Initialize() error {
	io.logger.Printf("Initializing kiosk IO")

	for name, mapping := range DoMappings {
		chip, err := io.chip(mapping.Chip)
		if err != nil {
			return err
		}

		io.mu.RLock()
		val := 0
		if v, exists := io.initialValues[name]; exists && v {
			val = 1
		}
		io.mu.RUnlock()

		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsOutput(val),
			gpiocdev.WithConsumer("dispenser-service"))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}

		io.outputs[name] = line
		io.logger.Printf("Configured DO %s: chip=%d, line=%d", name, mapping.Chip, mapping.Line)
	}

	for name, mapping := range ButtonMappings {
		chip, err := io.chip(mapping.Chip)
		if err != nil {
			return err
		}

		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithConsumer("dispenser-service"))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}

		io.buttons[name] = line
		io.logger.Printf("Configured button %s: chip=%d, line=%d", name, mapping.Chip, mapping.Line)
	}

	return nil
}

// ReadButton returns true while the named button line sits at the
// pressed (low) level. The value is raw and bounces.
func (io *LinuxKioskIO) ReadButton(name string) (bool, error) {
	io.mu.RLock()
	line, ok := io.buttons[name]
	io.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("unknown button: %s", name)
	}

	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read button %s: %w", name, err)
	}
	return v == 0, nil
}

func (io *LinuxKioskIO) WriteDigitalOutput(channel string, value bool) error {
	io.mu.RLock()
	line, ok := io.outputs[channel]
	io.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown digital output channel: %s", channel)
	}

	val := 0
	if value {
		val = 1
	}

	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", channel, value, err)
	}

	io.logger.Printf("Set DO %s=%v", channel, value)
	return nil
}

func (io *LinuxKioskIO) Cleanup() {
	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Printf("Cleaning up GPIO resources")

	for name, line := range io.buttons {
		line.Close()
		io.logger.Printf("Closed button line for %s", name)
	}

	for name, line := range io.outputs {
		line.Close()
		io.logger.Printf("Closed GPIO line for %s", name)
	}

	for id, chip := range io.chips {
		chip.Close()
		io.logger.Printf("Closed GPIO chip %d", id)
	}
}
