// Package hardware provides the collaborator boundary for physical devices.
// Real implementations use the Linux GPIO character device; fakes allow
// testing without hardware.
package hardware

import "errors"

// ErrNoReading indicates the sensor produced no usable sample (no echo,
// timeout, malformed frame). Callers treat the sample as absent.
var ErrNoReading = errors.New("no reading")

// ErrUnsafeBootState indicates the pump relay read energized before the
// controller took ownership of it.
var ErrUnsafeBootState = errors.New("pump relay energized at startup")

// DistanceSensor returns a raw distance to the water surface in centimeters.
type DistanceSensor interface {
	Sample() (float64, error)
	Close() error
}

// BinaryLevelSwitch reports whether the float switch is wet.
type BinaryLevelSwitch interface {
	Read() (bool, error)
	Close() error
}

// DigitalInput reads a momentary button or toggle switch position.
type DigitalInput interface {
	Read() (bool, error)
	Close() error
}

// Actuator drives the motor relay.
type Actuator interface {
	SetRunning(on bool) error
	Running() bool
	Close() error
}

var safeMode bool

// SetSafeMode disables all actuator writes system-wide.
func SetSafeMode(enabled bool) {
	safeMode = enabled
}

func SafeMode() bool { return safeMode }
