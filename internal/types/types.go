package types

import "fmt"

// SlotID identifies one of the two physical dispensing positions.
type SlotID int

const (
	Slot1 SlotID = 1
	Slot2 SlotID = 2
)

func (s SlotID) String() string {
	return fmt.Sprintf("slot%d", int(s))
}

// Currency is a monetary amount in minor units (cents).
type Currency int64

func (c Currency) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// User is the authoritative copy of a backend user record for the
// currently authenticated session.
type User struct {
	CardID      string
	DisplayName string
	Balance     Currency
	RemoteID    string
}

// Product is one catalog entry bound to a dispensing slot. Stock is
// overwritten by the backend after each order; nothing else mutates it.
type Product struct {
	RemoteID string
	Name     string
	Price    Currency
	Slot     SlotID
	Stock    int
}

// ReadingStatus classifies a raw rangefinder sample.
type ReadingStatus int

const (
	ReadingValid ReadingStatus = iota
	// ReadingNoEcho means the sensor produced no usable echo
	// (open circuit, timeout, or too little signal strength).
	ReadingNoEcho
	// ReadingOutOfRange means the sensor answered but the distance is
	// outside its physical range.
	ReadingOutOfRange
)

// DistanceReading is one sample from the outlet rangefinder. Cm is only
// meaningful when Status is ReadingValid.
type DistanceReading struct {
	Cm     int
	Status ReadingStatus
}
