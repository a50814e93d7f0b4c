package hardware

import (
	"fmt"
	"os"
	"time"
)

// UARTSensor reads A02YYUW-style 4-byte distance frames from a serial
// device: 0xFF, data_h, data_l, checksum. Distance is reported in mm.
type UARTSensor struct {
	f        *os.File
	offsetCM float64
}

// readTimeout bounds a single frame read so a silent sensor cannot stall
// the control loop.
const readTimeout = 60 * time.Millisecond

func NewUARTSensor(device string, offsetCM float64) (*UARTSensor, error) {
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open uart device %s: %w", device, err)
	}
	return &UARTSensor{f: f, offsetCM: offsetCM}, nil
}

// Sample reads one frame and returns the distance in centimeters.
func (s *UARTSensor) Sample() (float64, error) {
	if err := s.f.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, 4)
	// resynchronize on the 0xFF frame header
	for {
		if _, err := s.f.Read(buf[:1]); err != nil {
			return 0, ErrNoReading
		}
		if buf[0] == 0xFF {
			break
		}
	}

	read := 1
	for read < 4 {
		n, err := s.f.Read(buf[read:])
		if err != nil {
			return 0, ErrNoReading
		}
		read += n
	}

	sum := byte(buf[0] + buf[1] + buf[2])
	if sum != buf[3] {
		return 0, ErrNoReading
	}

	mm := float64(int(buf[1])<<8 | int(buf[2]))
	return mm/10.0 - s.offsetCM, nil
}

func (s *UARTSensor) Close() error { return s.f.Close() }
