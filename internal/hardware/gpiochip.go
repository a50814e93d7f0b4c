//go:build linux

package hardware

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// echoTimeout bounds the wait for an ultrasonic echo so a wedged sensor
// cannot stall the control loop. 400cm round trip is ~23ms.
const echoTimeout = 50 * time.Millisecond

// Chip wraps the GPIO character device all line requests go through.
type Chip struct {
	chip *gpiocdev.Chip
}

func OpenChip(name string) (*Chip, error) {
	c, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: c}, nil
}

func (c *Chip) Close() error {
	return c.chip.Close()
}

// FloatSwitch is a wet/dry reed or float switch wired active-low with a
// pull-up, matching the original sump wiring.
type FloatSwitch struct {
	line *gpiocdev.Line
}

func (c *Chip) NewFloatSwitch(pin int) (*FloatSwitch, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request float switch pin %d: %w", pin, err)
	}
	return &FloatSwitch{line: line}, nil
}

// Read returns true when the switch reports wet. Raw low = wet.
func (s *FloatSwitch) Read() (bool, error) {
	raw, err := s.line.Value()
	if err != nil {
		return false, fmt.Errorf("read float switch: %w", err)
	}
	return raw == 0, nil
}

func (s *FloatSwitch) Close() error { return s.line.Close() }

// Input is a generic active-low digital input (manual button, mode toggle).
type Input struct {
	line *gpiocdev.Line
}

func (c *Chip) NewInput(pin int) (*Input, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &Input{line: line}, nil
}

func (i *Input) Read() (bool, error) {
	raw, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read input: %w", err)
	}
	return raw == 0, nil
}

func (i *Input) Close() error { return i.line.Close() }

// Relay drives the motor contactor.
type Relay struct {
	line       *gpiocdev.Line
	activeHigh bool
	on         bool
}

// NewRelay takes ownership of the relay pin. The pin is read before being
// reconfigured as an output; if it is already driving the contactor the
// controller refuses to start rather than adopt an unknown motor state.
func (c *Chip) NewRelay(pin int, activeHigh bool) (*Relay, error) {
	probe, err := c.chip.RequestLine(pin, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("probe relay pin %d: %w", pin, err)
	}
	raw, err := probe.Value()
	probe.Close()
	if err != nil {
		return nil, fmt.Errorf("probe relay pin %d: %w", pin, err)
	}
	if (activeHigh && raw == 1) || (!activeHigh && raw == 0) {
		return nil, ErrUnsafeBootState
	}

	inactive := 0
	if !activeHigh {
		inactive = 1
	}
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(inactive))
	if err != nil {
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &Relay{line: line, activeHigh: activeHigh}, nil
}

func (r *Relay) SetRunning(on bool) error {
	if safeMode {
		log.Warn().Bool("requested", on).Msg("Safe mode enabled, relay write suppressed")
		return nil
	}

	value := 0
	if on == r.activeHigh {
		value = 1
	}
	if err := r.line.SetValue(value); err != nil {
		return fmt.Errorf("set relay: %w", err)
	}
	r.on = on
	return nil
}

func (r *Relay) Running() bool { return r.on }

// Close de-energizes the relay before releasing the line.
func (r *Relay) Close() error {
	if err := r.SetRunning(false); err != nil {
		log.Error().Err(err).Msg("Failed to de-energize relay on close")
	}
	return r.line.Close()
}

// HCSR04 is the trigger/echo time-of-flight ranging variant.
type HCSR04 struct {
	trig     *gpiocdev.Line
	echo     *gpiocdev.Line
	offsetCM float64
	events   chan gpiocdev.LineEvent
}

func (c *Chip) NewHCSR04(trigPin, echoPin int, offsetCM float64) (*HCSR04, error) {
	trig, err := c.chip.RequestLine(trigPin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request trig pin %d: %w", trigPin, err)
	}

	s := &HCSR04{trig: trig, offsetCM: offsetCM, events: make(chan gpiocdev.LineEvent, 16)}
	echo, err := c.chip.RequestLine(echoPin,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			select {
			case s.events <- evt:
			default:
			}
		}))
	if err != nil {
		trig.Close()
		return nil, fmt.Errorf("request echo pin %d: %w", echoPin, err)
	}
	s.echo = echo
	return s, nil
}

// Sample fires one trigger pulse and times the echo. Returns ErrNoReading
// if the echo does not complete within the timeout.
func (s *HCSR04) Sample() (float64, error) {
	// drain stale edges from a previous cycle
	for {
		select {
		case <-s.events:
			continue
		default:
		}
		break
	}

	if err := s.trig.SetValue(1); err != nil {
		return 0, fmt.Errorf("trigger: %w", err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := s.trig.SetValue(0); err != nil {
		return 0, fmt.Errorf("trigger: %w", err)
	}

	deadline := time.NewTimer(echoTimeout)
	defer deadline.Stop()

	var rise time.Duration
	for {
		select {
		case evt := <-s.events:
			if evt.Type == gpiocdev.LineEventRisingEdge {
				rise = evt.Timestamp
				continue
			}
			if evt.Type == gpiocdev.LineEventFallingEdge && rise != 0 {
				width := evt.Timestamp - rise
				// speed of sound 343 m/s, halved for the round trip
				cm := width.Seconds() * 34300.0 / 2.0
				return cm - s.offsetCM, nil
			}
		case <-deadline.C:
			return 0, ErrNoReading
		}
	}
}

func (s *HCSR04) Close() error {
	s.trig.Close()
	return s.echo.Close()
}
