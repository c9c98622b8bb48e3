// Package dispense implements the sensor-gated continuous-dispense
// loop: the distance gate that turns raw rangefinder samples into a
// debounced obstruction signal, and the controller that runs the
// actuator against that signal.
package dispense

import (
	"time"

	"dispenser-service/internal/types"
)

const (
	// DetectionDistanceCm is the obstruction threshold: anything at or
	// below it counts as something present at the outlet.
	DetectionDistanceCm = 30

	// SampleInterval is the gate's own cadence. Callers may poll faster;
	// the gate only classifies once per interval.
	SampleInterval = 200 * time.Millisecond
)

// Signal is the gate's classification of the outlet.
type Signal int

const (
	// SignalNone means the gate has nothing to say this tick: either the
	// sampling interval has not elapsed or the reading was unusable.
	// The previous classification stands.
	SignalNone Signal = iota
	SignalClear
	SignalObstructed
)

func (s Signal) String() string {
	switch s {
	case SignalClear:
		return "clear"
	case SignalObstructed:
		return "obstructed"
	default:
		return "none"
	}
}

// Gate interprets distance readings on a fixed cadence. A no-echo
// reading never produces a classification: starting an actuator off a
// sensor glitch is exactly the failure mode this exists to prevent.
// Readings outside the sensor's physical range mean nothing is close
// enough to matter, so they classify as clear.
type Gate struct {
	lastSample time.Time
}

func NewGate() *Gate {
	return &Gate{}
}

// Reset clears the cadence so the next Sample classifies immediately.
// Called at dispense begin for the mandatory first reading.
func (g *Gate) Reset() {
	g.lastSample = time.Time{}
}

// Sample classifies one reading, or returns SignalNone between
// intervals and on no-echo readings.
func (g *Gate) Sample(r types.DistanceReading, now time.Time) Signal {
	if !g.lastSample.IsZero() && now.Sub(g.lastSample) < SampleInterval {
		return SignalNone
	}

	switch r.Status {
	case types.ReadingNoEcho:
		// Do not consume the interval; classify as soon as the sensor
		// recovers.
		return SignalNone
	case types.ReadingOutOfRange:
		g.lastSample = now
		return SignalClear
	default:
		g.lastSample = now
		if r.Cm <= DetectionDistanceCm {
			return SignalObstructed
		}
		return SignalClear
	}
}
