package hardware

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"dispenser-service/internal/logger"
	"dispenser-service/internal/types"
)

const (
	// Valid measuring range of the outlet rangefinder.
	RangeMinCm = 2
	RangeMaxCm = 400

	frameLen        = 9
	frameHeaderByte = 0x59

	// minSignalStrength is the lowest usable echo strength; weaker
	// frames are treated as no echo at all.
	minSignalStrength = 100

	// staleAfter bounds how old the last frame may be before Read
	// reports no echo.
	staleAfter = 500 * time.Millisecond
)

// SerialRangefinder reads TF-Luna style 9-byte distance frames from a
// UART port in the background and keeps the most recent sample. Read
// never blocks; callers poll at their own cadence.
type SerialRangefinder struct {
	portName string
	port     serial.Port
	logger   *logger.Logger

	mu      sync.RWMutex
	latest  types.DistanceReading
	updated time.Time
}

func NewSerialRangefinder(portName string, l *logger.Logger) *SerialRangefinder {
	return &SerialRangefinder{
		portName: portName,
		logger:   l.WithTag("rangefinder"),
		latest:   types.DistanceReading{Status: types.ReadingNoEcho},
	}
}

func (r *SerialRangefinder) Open() error {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(r.portName, mode)
	if err != nil {
		return fmt.Errorf("failed to open rangefinder port %s: %w", r.portName, err)
	}
	r.port = port
	r.logger.Infof("Opened rangefinder port %s", r.portName)
	return nil
}

// Monitor reads frames until the context is cancelled. Run it in its
// own goroutine after Open.
func (r *SerialRangefinder) Monitor(ctx context.Context) {
	reader := bufio.NewReader(r.port)
	buf := make([]byte, frameLen)

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Stopping rangefinder monitor")
			return
		default:
		}

		// Sync to the two-byte frame header.
		b, err := reader.ReadByte()
		if err != nil {
			r.logger.Warnf("Rangefinder read error: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if b != frameHeaderByte {
			continue
		}
		b, err = reader.ReadByte()
		if err != nil || b != frameHeaderByte {
			continue
		}

		buf[0], buf[1] = frameHeaderByte, frameHeaderByte
		for i := 2; i < frameLen; i++ {
			b, err = reader.ReadByte()
			if err != nil {
				break
			}
			buf[i] = b
		}
		if err != nil {
			continue
		}

		reading, ok := DecodeFrame(buf)
		if !ok {
			continue
		}

		r.mu.Lock()
		r.latest = reading
		r.updated = time.Now()
		r.mu.Unlock()
	}
}

// DecodeFrame parses one 9-byte rangefinder frame. The second return
// value is false when the checksum does not match.
func DecodeFrame(buf []byte) (types.DistanceReading, bool) {
	if len(buf) != frameLen || buf[0] != frameHeaderByte || buf[1] != frameHeaderByte {
		return types.DistanceReading{}, false
	}

	var sum byte
	for _, b := range buf[:frameLen-1] {
		sum += b
	}
	if sum != buf[frameLen-1] {
		return types.DistanceReading{}, false
	}

	dist := int(buf[2]) | int(buf[3])<<8
	strength := int(buf[4]) | int(buf[5])<<8

	// Strength 0xFFFF means the sensor saturated; treat like no echo.
	if strength < minSignalStrength || strength == 0xFFFF {
		return types.DistanceReading{Status: types.ReadingNoEcho}, true
	}
	if dist < RangeMinCm || dist > RangeMaxCm {
		return types.DistanceReading{Status: types.ReadingOutOfRange}, true
	}
	return types.DistanceReading{Cm: dist, Status: types.ReadingValid}, true
}

// Read returns the latest sample, or a no-echo reading when the sensor
// has gone quiet.
func (r *SerialRangefinder) Read() types.DistanceReading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.updated.IsZero() || time.Since(r.updated) > staleAfter {
		return types.DistanceReading{Status: types.ReadingNoEcho}
	}
	return r.latest
}

func (r *SerialRangefinder) Close() error {
	if r.port == nil {
		return nil
	}
	return r.port.Close()
}
