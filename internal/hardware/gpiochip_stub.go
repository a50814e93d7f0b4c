//go:build !linux

package hardware

import "errors"

// Stubs so the tree builds on development machines. The GPIO character
// device only exists on Linux.

var errUnsupported = errors.New("gpio character device requires linux")

type Chip struct{}

func OpenChip(name string) (*Chip, error) { return nil, errUnsupported }

func (c *Chip) Close() error { return nil }

type FloatSwitch struct{}

func (c *Chip) NewFloatSwitch(pin int) (*FloatSwitch, error) { return nil, errUnsupported }
func (s *FloatSwitch) Read() (bool, error)                   { return false, errUnsupported }
func (s *FloatSwitch) Close() error                          { return nil }

type Input struct{}

func (c *Chip) NewInput(pin int) (*Input, error) { return nil, errUnsupported }
func (i *Input) Read() (bool, error)             { return false, errUnsupported }
func (i *Input) Close() error                    { return nil }

type Relay struct{}

func (c *Chip) NewRelay(pin int, activeHigh bool) (*Relay, error) { return nil, errUnsupported }
func (r *Relay) SetRunning(on bool) error                         { return errUnsupported }
func (r *Relay) Running() bool                                    { return false }
func (r *Relay) Close() error                                     { return nil }

type HCSR04 struct{}

func (c *Chip) NewHCSR04(trigPin, echoPin int, offsetCM float64) (*HCSR04, error) {
	return nil, errUnsupported
}
func (s *HCSR04) Sample() (float64, error) { return 0, errUnsupported }
func (s *HCSR04) Close() error             { return nil }
