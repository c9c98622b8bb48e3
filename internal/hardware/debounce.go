package hardware

import "time"

// Debouncer commits a raw button level once it has held steady for
// longer than DebounceWindow. Only the press edge produces an event;
// the release edge commits silently, so a bouncing release can never
// fire a second press.
type Debouncer struct {
	lastRaw    bool
	lastChange time.Time
	stable     bool
}

func NewDebouncer(now time.Time) *Debouncer {
	return &Debouncer{lastChange: now}
}

// Observe feeds one raw sample. raw is true while the line sits at the
// pressed (active-low) level. It returns true exactly once per press,
// when the pressed level has outlasted the debounce window.
func (d *Debouncer) Observe(raw bool, now time.Time) bool {
	if raw != d.lastRaw {
		d.lastRaw = raw
		d.lastChange = now
		return false
	}
	if now.Sub(d.lastChange) > DebounceWindow && raw != d.stable {
		d.stable = raw
		return d.stable
	}
	return false
}

// Stable returns the last committed level.
func (d *Debouncer) Stable() bool {
	return d.stable
}
