// Package alerts evaluates edge-triggered level thresholds with hysteresis.
package alerts

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/internal/config"
	"github.com/thatsimonsguy/sump-controller/internal/model"
)

// Event is one alert raise or clear. Each threshold crossing produces
// exactly one event; holding in the alerted region produces nothing.
type Event struct {
	Kind    model.AlertKind
	Cleared bool
	Message string
	Percent float64
}

type Evaluator struct {
	cfg   config.AlertConfig
	flags model.AlertFlags
}

func New(cfg config.AlertConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate consumes the fused level for one tick and returns alert events
// for any threshold crossings. Flags clear only once the level re-crosses
// past the threshold by the hysteresis margin, so sensor noise around a
// threshold cannot flap alerts.
func (e *Evaluator) Evaluate(percent float64) []Event {
	var events []Event
	m := e.cfg.HysteresisPercent

	if !e.flags.Low && percent < e.cfg.LowWarnPercent {
		e.flags.Low = true
		events = append(events, Event{
			Kind:    model.AlertLow,
			Message: fmt.Sprintf("Water level low: %.1f%%", percent),
			Percent: percent,
		})
	} else if e.flags.Low && percent >= e.cfg.LowWarnPercent+m {
		e.flags.Low = false
		events = append(events, Event{
			Kind:    model.AlertLow,
			Cleared: true,
			Message: fmt.Sprintf("Water level recovered: %.1f%%", percent),
			Percent: percent,
		})
	}

	if !e.flags.Full && percent >= e.cfg.FullWarnPercent {
		e.flags.Full = true
		events = append(events, Event{
			Kind:    model.AlertFull,
			Message: fmt.Sprintf("Tank full: %.1f%%", percent),
			Percent: percent,
		})
	} else if e.flags.Full && percent < e.cfg.FullWarnPercent-m {
		e.flags.Full = false
		events = append(events, Event{
			Kind:    model.AlertFull,
			Cleared: true,
			Message: fmt.Sprintf("Tank no longer full: %.1f%%", percent),
			Percent: percent,
		})
	}

	critical := percent <= e.cfg.CriticalLowPercent || percent >= e.cfg.CriticalHighPercent
	clearedBand := percent >= e.cfg.CriticalLowPercent+m && percent <= e.cfg.CriticalHighPercent-m
	if !e.flags.Critical && critical {
		e.flags.Critical = true
		events = append(events, Event{
			Kind:    model.AlertCritical,
			Message: fmt.Sprintf("Water level critical: %.1f%%", percent),
			Percent: percent,
		})
	} else if e.flags.Critical && clearedBand {
		e.flags.Critical = false
		events = append(events, Event{
			Kind:    model.AlertCritical,
			Cleared: true,
			Message: fmt.Sprintf("Water level out of critical band: %.1f%%", percent),
			Percent: percent,
		})
	}

	for _, ev := range events {
		log.Info().
			Str("kind", string(ev.Kind)).
			Bool("cleared", ev.Cleared).
			Float64("percent", ev.Percent).
			Msg("Alert transition")
	}

	return events
}

// SetSafetyBlocked mirrors the interlock's observational flag into the
// alert flag set.
func (e *Evaluator) SetSafetyBlocked(blocked bool) {
	e.flags.SafetyBlocked = blocked
}

func (e *Evaluator) Flags() model.AlertFlags { return e.flags }
