package hardware

import "time"

const (
	// DebounceWindow is how long a raw button level must hold before it
	// is committed as the stable level.
	DebounceWindow = 50 * time.Millisecond

	PwmServoModulePath = "/sys/module/imx_pwm_led"
	PwmServoDevFmt     = "/dev/pwm_led%d"
)

// Button input lines, active-low with pull-ups.
var ButtonMappings = map[string]struct {
	Chip int
	Line int
}{
	"button_1": {2, 5},
	"button_2": {2, 6},
}

// Digital outputs.
var DoMappings = map[string]struct {
	Chip int
	Line int
}{
	"actuator_power": {2, 10},
	"status_led":     {2, 9},
}
