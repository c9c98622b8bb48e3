package dispense

import (
	"testing"
	"time"

	"dispenser-service/internal/types"
)

func valid(cm int) types.DistanceReading {
	return types.DistanceReading{Cm: cm, Status: types.ReadingValid}
}

func TestGateClassifiesImmediatelyAfterReset(t *testing.T) {
	g := NewGate()
	now := time.Now()

	if got := g.Sample(valid(100), now); got != SignalClear {
		t.Errorf("Expected clear, got %v", got)
	}

	g.Reset()
	if got := g.Sample(valid(10), now.Add(time.Millisecond)); got != SignalObstructed {
		t.Errorf("Expected obstructed right after reset, got %v", got)
	}
}

func TestGateThreshold(t *testing.T) {
	cases := []struct {
		cm   int
		want Signal
	}{
		{DetectionDistanceCm - 1, SignalObstructed},
		{DetectionDistanceCm, SignalObstructed},
		{DetectionDistanceCm + 1, SignalClear},
	}
	for _, tc := range cases {
		g := NewGate()
		if got := g.Sample(valid(tc.cm), time.Now()); got != tc.want {
			t.Errorf("%dcm: expected %v, got %v", tc.cm, tc.want, got)
		}
	}
}

func TestGateRespectsCadence(t *testing.T) {
	g := NewGate()
	now := time.Now()

	if got := g.Sample(valid(10), now); got != SignalObstructed {
		t.Fatalf("Expected obstructed, got %v", got)
	}
	// Inside the interval nothing classifies, no matter the reading.
	if got := g.Sample(valid(100), now.Add(SampleInterval/2)); got != SignalNone {
		t.Errorf("Expected none inside interval, got %v", got)
	}
	if got := g.Sample(valid(100), now.Add(SampleInterval)); got != SignalClear {
		t.Errorf("Expected clear after interval, got %v", got)
	}
}

func TestGateNoEchoIsSilent(t *testing.T) {
	g := NewGate()
	now := time.Now()

	if got := g.Sample(types.DistanceReading{Status: types.ReadingNoEcho}, now); got != SignalNone {
		t.Errorf("Expected none for no-echo, got %v", got)
	}
	// No-echo must not consume the interval: the very next valid
	// reading classifies.
	if got := g.Sample(valid(10), now.Add(time.Millisecond)); got != SignalObstructed {
		t.Errorf("Expected obstructed right after no-echo, got %v", got)
	}
}

func TestGateOutOfRangeIsClear(t *testing.T) {
	g := NewGate()
	if got := g.Sample(types.DistanceReading{Status: types.ReadingOutOfRange}, time.Now()); got != SignalClear {
		t.Errorf("Expected out-of-range to classify clear, got %v", got)
	}
}
