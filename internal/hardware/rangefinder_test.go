package hardware

import (
	"context"
	"testing"
	"time"

	"go.bug.st/serial"

	"dispenser-service/internal/logger"
	"dispenser-service/internal/types"
)

// mockSerialPort streams the same frame endlessly.
type mockSerialPort struct {
	frame []byte
}

func (m *mockSerialPort) Break(time.Duration) error                            { return nil }
func (m *mockSerialPort) Drain() error                                         { return nil }
func (m *mockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (m *mockSerialPort) ResetInputBuffer() error                              { return nil }
func (m *mockSerialPort) ResetOutputBuffer() error                             { return nil }
func (m *mockSerialPort) SetDTR(dtr bool) error                                { return nil }
func (m *mockSerialPort) SetMode(mode *serial.Mode) error                      { return nil }
func (m *mockSerialPort) SetReadTimeout(t time.Duration) error                 { return nil }
func (m *mockSerialPort) SetRTS(rts bool) error                                { return nil }
func (m *mockSerialPort) Write(p []byte) (int, error)                          { return len(p), nil }
func (m *mockSerialPort) Close() error                                         { return nil }

func (m *mockSerialPort) Read(p []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return copy(p, m.frame), nil
}

// frame builds a 9-byte rangefinder frame with a valid checksum.
func frame(dist, strength int) []byte {
	buf := []byte{
		frameHeaderByte, frameHeaderByte,
		byte(dist), byte(dist >> 8),
		byte(strength), byte(strength >> 8),
		0x00, 0x00,
		0x00,
	}
	var sum byte
	for _, b := range buf[:frameLen-1] {
		sum += b
	}
	buf[frameLen-1] = sum
	return buf
}

func TestDecodeFrameValid(t *testing.T) {
	r, ok := DecodeFrame(frame(42, 1200))
	if !ok {
		t.Fatal("Expected frame to decode")
	}
	if r.Status != types.ReadingValid {
		t.Errorf("Expected valid reading, got %v", r.Status)
	}
	if r.Cm != 42 {
		t.Errorf("Expected 42cm, got %d", r.Cm)
	}
}

func TestDecodeFrameBadChecksum(t *testing.T) {
	buf := frame(42, 1200)
	buf[frameLen-1] ^= 0xFF
	if _, ok := DecodeFrame(buf); ok {
		t.Error("Expected checksum failure")
	}
}

func TestDecodeFrameBadHeader(t *testing.T) {
	buf := frame(42, 1200)
	buf[1] = 0x00
	if _, ok := DecodeFrame(buf); ok {
		t.Error("Expected header failure")
	}
}

func TestDecodeFrameWeakSignal(t *testing.T) {
	r, ok := DecodeFrame(frame(42, minSignalStrength-1))
	if !ok {
		t.Fatal("Expected frame to decode")
	}
	if r.Status != types.ReadingNoEcho {
		t.Errorf("Expected no-echo for weak signal, got %v", r.Status)
	}
}

func TestDecodeFrameSaturatedSignal(t *testing.T) {
	r, ok := DecodeFrame(frame(42, 0xFFFF))
	if !ok {
		t.Fatal("Expected frame to decode")
	}
	if r.Status != types.ReadingNoEcho {
		t.Errorf("Expected no-echo for saturated signal, got %v", r.Status)
	}
}

func TestDecodeFrameOutOfRange(t *testing.T) {
	for _, dist := range []int{0, 1, 401, 1000} {
		r, ok := DecodeFrame(frame(dist, 1200))
		if !ok {
			t.Fatalf("Expected frame for %dcm to decode", dist)
		}
		if r.Status != types.ReadingOutOfRange {
			t.Errorf("Expected out-of-range for %dcm, got %v", dist, r.Status)
		}
	}
}

func TestDecodeFrameRangeBounds(t *testing.T) {
	for _, dist := range []int{RangeMinCm, RangeMaxCm} {
		r, ok := DecodeFrame(frame(dist, 1200))
		if !ok {
			t.Fatalf("Expected frame for %dcm to decode", dist)
		}
		if r.Status != types.ReadingValid {
			t.Errorf("Expected %dcm valid, got %v", dist, r.Status)
		}
	}
}

func TestDecodeFrameShortBuffer(t *testing.T) {
	if _, ok := DecodeFrame([]byte{frameHeaderByte, frameHeaderByte, 1}); ok {
		t.Error("Expected short buffer to fail")
	}
}

// Monitor never returns on its own: callers must run it in a goroutine
// or everything after it in startup is unreachable.
func TestMonitorRunsUntilCancelled(t *testing.T) {
	r := &SerialRangefinder{
		portName: "mock",
		port:     &mockSerialPort{frame: frame(42, 1200)},
		logger:   logger.NewLogger(nil, logger.LogLevelError),
		latest:   types.DistanceReading{Status: types.ReadingNoEcho},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Monitor(ctx)
		close(done)
	}()

	// Still running while frames keep arriving.
	select {
	case <-done:
		t.Fatal("Monitor returned without cancellation")
	case <-time.After(200 * time.Millisecond):
	}

	if got := r.Read(); got.Status != types.ReadingValid || got.Cm != 42 {
		t.Errorf("Expected streamed 42cm reading, got %+v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancellation")
	}
}
