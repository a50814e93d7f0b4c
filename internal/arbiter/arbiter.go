// Package arbiter resolves the effective command source for each tick from
// button edges, the mode toggle, remote commands and automatic control.
package arbiter

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/internal/input"
	"github.com/thatsimonsguy/sump-controller/internal/model"
)

// Inputs is everything the arbiter consumes in one tick.
type Inputs struct {
	ButtonEdge input.Edge
	ToggleHeld bool
	ToggleEdge input.Edge

	// RemoteRequested is set when a motor_control command arrived this tick.
	RemoteRequested bool
	RemoteRun       bool

	Wet bool
	Now time.Time
}

// Decision is the arbiter's output. HasRequest means a start or stop is
// being requested this tick; AutoEligible means automatic threshold logic
// may act because no override is in force.
type Decision struct {
	Source       model.CommandSource
	RequestedRun bool
	HasRequest   bool
	AutoEligible bool
}

type Arbiter struct {
	session   model.OverrideSession
	autoMode  bool
	remoteTTL time.Duration
}

func New(remoteTTL time.Duration) *Arbiter {
	return &Arbiter{autoMode: true, remoteTTL: remoteTTL}
}

// Arbitrate resolves this tick's command decision. Precedence when multiple
// inputs arrive the same tick: remote > toggle switch > button > auto.
func (a *Arbiter) Arbitrate(in Inputs) Decision {
	if a.session.Expired(in.Now) {
		log.Info().
			Str("source", string(a.session.Source)).
			Msg("Override session expired, returning to automatic control")
		a.session = model.OverrideSession{}
	}

	if in.RemoteRequested {
		a.session = model.OverrideSession{
			Active:    true,
			Source:    model.SourceRemote,
			OpenedAt:  in.Now,
			ExpiresAt: in.Now.Add(a.remoteTTL),
		}
		log.Info().
			Bool("run", in.RemoteRun).
			Dur("ttl", a.remoteTTL).
			Msg("Remote command opened override session")
		return Decision{Source: model.SourceRemote, RequestedRun: in.RemoteRun, HasRequest: true}
	}

	if in.ToggleEdge == input.EdgeRising {
		a.session = model.OverrideSession{
			Active:   true,
			Source:   model.SourceSwitchOverride,
			OpenedAt: in.Now,
		}
		log.Info().Msg("Toggle switch opened override session")
		return Decision{Source: model.SourceSwitchOverride, RequestedRun: true, HasRequest: true}
	}
	if in.ToggleEdge == input.EdgeFalling && a.session.Active && a.session.Source == model.SourceSwitchOverride {
		a.session = model.OverrideSession{}
		log.Info().Msg("Toggle switch released, closing override session")
		return Decision{Source: model.SourceSwitchOverride, RequestedRun: false, HasRequest: true}
	}
	if in.ToggleHeld && a.session.Active && a.session.Source == model.SourceSwitchOverride {
		return Decision{Source: model.SourceSwitchOverride, RequestedRun: true, HasRequest: true}
	}

	if in.ButtonEdge == input.EdgeRising {
		if a.session.Active {
			source := a.session.Source
			a.session = model.OverrideSession{}
			log.Info().Str("closed", string(source)).Msg("Button closed override session")
			return Decision{Source: model.SourceButtonOverride, RequestedRun: false, HasRequest: true}
		}
		if !in.Wet {
			// opening an override with a dry sump would only arm a doomed
			// start request
			log.Warn().Msg("Button press rejected, switch reports dry")
			return a.fallthroughDecision()
		}
		a.session = model.OverrideSession{
			Active:   true,
			Source:   model.SourceButtonOverride,
			OpenedAt: in.Now,
		}
		log.Info().Msg("Button opened override session")
		return Decision{Source: model.SourceButtonOverride, RequestedRun: true, HasRequest: true}
	}

	return a.fallthroughDecision()
}

func (a *Arbiter) fallthroughDecision() Decision {
	if a.session.Active {
		// an open session suppresses automatic control but carries no new
		// request; the motor keeps its current state
		return Decision{Source: a.session.Source}
	}
	if a.autoMode {
		return Decision{Source: model.SourceAuto, AutoEligible: true}
	}
	return Decision{Source: model.SourceNone}
}

// NoteMotorStopped informs the arbiter that the motor stopped and by whom.
// A toggle-sourced session is cleared the instant its motor is stopped by
// any other source, so releasing state cannot restart it.
func (a *Arbiter) NoteMotorStopped(stoppedBy model.CommandSource) {
	if a.session.Active && a.session.Source == model.SourceSwitchOverride && stoppedBy != model.SourceSwitchOverride {
		log.Info().
			Str("stopped_by", string(stoppedBy)).
			Msg("Clearing toggle override session, motor stopped by another source")
		a.session = model.OverrideSession{}
	}
}

// SetAutoMode enables or disables automatic control (auto_mode_control).
func (a *Arbiter) SetAutoMode(enabled bool) {
	if a.autoMode != enabled {
		log.Info().Bool("enabled", enabled).Msg("Automatic mode changed")
	}
	a.autoMode = enabled
}

// ResetManual clears any open override session and restores automatic mode.
func (a *Arbiter) ResetManual() {
	if a.session.Active {
		log.Info().Str("source", string(a.session.Source)).Msg("Clearing override session on reset_manual")
	}
	a.session = model.OverrideSession{}
	a.autoMode = true
}

func (a *Arbiter) Session() model.OverrideSession { return a.session }
func (a *Arbiter) AutoMode() bool                 { return a.autoMode }
