// Package interlock is the motor safety state machine. It owns MotorState
// exclusively and is the only component that touches the actuator.
package interlock

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/internal/arbiter"
	"github.com/thatsimonsguy/sump-controller/internal/hardware"
	"github.com/thatsimonsguy/sump-controller/internal/model"
)

type Config struct {
	MaxRuntime  time.Duration
	MinRest     time.Duration
	MinRunLevel float64
	AutoStart   float64
	AutoStop    float64
}

// Event is a motor status transition or a refused start, surfaced to the
// loop for telemetry and alerting.
type Event struct {
	Running        bool
	Source         model.CommandSource
	RuntimeSeconds float64
	Reason         string
	Blocked        bool
	BlockReason    string
	StoppedBy      model.CommandSource
}

type Interlock struct {
	act           hardware.Actuator
	cfg           Config
	state         model.MotorState
	safetyBlocked bool
}

func New(act hardware.Actuator, cfg Config) *Interlock {
	return &Interlock{
		act:   act,
		cfg:   cfg,
		state: model.MotorState{Phase: model.MotorStopped},
	}
}

// Tick applies one control cycle: autonomous safety transitions first, then
// the arbiter's decision, then automatic threshold logic. Guards are
// re-evaluated so a stale safetyBlocked flag clears the tick its guards
// would pass.
func (il *Interlock) Tick(dec arbiter.Decision, reading model.LevelReading, wet bool, now time.Time) []Event {
	var events []Event

	if il.state.Running() && now.Sub(il.state.StartedAt) >= il.cfg.MaxRuntime {
		log.Warn().
			Dur("runtime", now.Sub(il.state.StartedAt)).
			Dur("max_runtime", il.cfg.MaxRuntime).
			Msg("Maximum runtime exceeded, forcing safety stop")
		events = append(events, il.stop(model.SourceSafety, "max_runtime", now))
	}

	// overflow protection applies regardless of who started the motor
	if il.state.Running() && reading.Percent >= il.cfg.AutoStop {
		log.Info().
			Float64("percent", reading.Percent).
			Float64("auto_stop", il.cfg.AutoStop).
			Msg("High level reached, stopping motor")
		events = append(events, il.stop(model.SourceAuto, "high_level", now))
	}

	if dec.HasRequest {
		if dec.RequestedRun && !il.state.Running() {
			ev, _ := il.start(dec.Source, false, wet, reading.Percent, now)
			events = append(events, ev)
		} else if !dec.RequestedRun && il.state.Running() {
			events = append(events, il.stop(dec.Source, "requested", now))
		}
	}

	if !il.state.Running() && dec.AutoEligible && reading.Percent <= il.cfg.AutoStart {
		ev, _ := il.start(model.SourceAuto, false, wet, reading.Percent, now)
		events = append(events, ev)
	}

	if il.safetyBlocked && il.guardsPass(false, wet, reading.Percent, now) {
		il.safetyBlocked = false
		log.Info().Msg("Start guards pass again, clearing safetyBlocked")
	}

	return events
}

// Start requests a motor start on behalf of source. Returns false if a
// guard refused it. Exposed for the local API path; the loop goes through
// Tick.
func (il *Interlock) Start(source model.CommandSource, bypassRest bool, wet bool, level float64, now time.Time) (Event, bool) {
	return il.start(source, bypassRest, wet, level, now)
}

func (il *Interlock) start(source model.CommandSource, bypassRest bool, wet bool, level float64, now time.Time) (Event, bool) {
	if reason, ok := il.checkGuards(bypassRest, wet, level, now); !ok {
		il.safetyBlocked = true
		log.Warn().
			Str("source", string(source)).
			Str("guard", reason).
			Float64("level", level).
			Bool("wet", wet).
			Msg("Start request refused by safety guard")
		return Event{
			Source:      source,
			Blocked:     true,
			BlockReason: reason,
		}, false
	}

	if err := il.act.SetRunning(true); err != nil {
		log.Error().Err(err).Msg("Failed to energize motor relay")
		return Event{Source: source, Blocked: true, BlockReason: "actuator_fault"}, false
	}

	il.state.Phase = model.MotorRunning
	il.state.StartedAt = now
	il.state.CommandSource = source
	il.safetyBlocked = false

	log.Info().Str("source", string(source)).Float64("level", level).Msg("Motor started")
	return Event{Running: true, Source: source, Reason: "started"}, true
}

// Stop is always permitted from Running.
func (il *Interlock) Stop(by model.CommandSource, reason string, now time.Time) Event {
	return il.stop(by, reason, now)
}

func (il *Interlock) stop(by model.CommandSource, reason string, now time.Time) Event {
	runtime := time.Duration(0)
	if il.state.Running() {
		runtime = now.Sub(il.state.StartedAt)
	}

	if err := il.act.SetRunning(false); err != nil {
		// de-energize failures are logged but state still transitions; the
		// relay close path retries on shutdown
		log.Error().Err(err).Msg("Failed to de-energize motor relay")
	}

	source := il.state.CommandSource
	il.state.Phase = model.MotorStopped
	il.state.StartedAt = time.Time{}
	il.state.LastStoppedAt = now
	il.state.CommandSource = model.SourceNone

	log.Info().
		Str("started_by", string(source)).
		Str("stopped_by", string(by)).
		Str("reason", reason).
		Dur("runtime", runtime).
		Msg("Motor stopped")

	return Event{
		Running:        false,
		Source:         source,
		StoppedBy:      by,
		RuntimeSeconds: runtime.Seconds(),
		Reason:         reason,
	}
}

// checkGuards returns the name of the failing guard. The wet-switch and
// dry-run level guards are never bypassable; only the rest interval honors
// the bypass flag.
func (il *Interlock) checkGuards(bypassRest bool, wet bool, level float64, now time.Time) (string, bool) {
	if !wet {
		return "dry_switch", false
	}
	if level < il.cfg.MinRunLevel {
		return "min_run_level", false
	}
	if !bypassRest && !il.state.LastStoppedAt.IsZero() && now.Sub(il.state.LastStoppedAt) < il.cfg.MinRest {
		return "rest_interval", false
	}
	return "", true
}

func (il *Interlock) guardsPass(bypassRest bool, wet bool, level float64, now time.Time) bool {
	_, ok := il.checkGuards(bypassRest, wet, level, now)
	return ok
}

func (il *Interlock) State() model.MotorState { return il.state }
func (il *Interlock) SafetyBlocked() bool     { return il.safetyBlocked }

// RuntimeSeconds returns the current run duration, zero when stopped.
func (il *Interlock) RuntimeSeconds(now time.Time) float64 {
	if !il.state.Running() {
		return 0
	}
	return now.Sub(il.state.StartedAt).Seconds()
}
