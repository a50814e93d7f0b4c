// Package controlloop runs the tick-driven coordinator. One iteration per
// tick, one mutator: sensors feed fusion, fusion feeds the interlock and
// alert evaluator, and telemetry is strictly downstream of the safety path.
package controlloop

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/db"
	"github.com/thatsimonsguy/sump-controller/internal/alerts"
	"github.com/thatsimonsguy/sump-controller/internal/arbiter"
	"github.com/thatsimonsguy/sump-controller/internal/commands"
	"github.com/thatsimonsguy/sump-controller/internal/config"
	"github.com/thatsimonsguy/sump-controller/internal/connmgr"
	"github.com/thatsimonsguy/sump-controller/internal/datadog"
	"github.com/thatsimonsguy/sump-controller/internal/fusion"
	"github.com/thatsimonsguy/sump-controller/internal/hardware"
	"github.com/thatsimonsguy/sump-controller/internal/input"
	"github.com/thatsimonsguy/sump-controller/internal/interlock"
	"github.com/thatsimonsguy/sump-controller/internal/model"
	"github.com/thatsimonsguy/sump-controller/internal/notifications"
	"github.com/thatsimonsguy/sump-controller/internal/telemetry"
)

// Snapshot is the read-only view published after every tick for the HTTP
// API and debug tooling.
type Snapshot struct {
	At                time.Time             `json:"at"`
	LevelPercent      float64               `json:"level_percent"`
	VolumeLiters      float64               `json:"volume_liters"`
	SensorHealth      string                `json:"sensor_health"`
	SwitchWet         bool                  `json:"switch_wet"`
	MotorRunning      bool                  `json:"motor_running"`
	MotorSource       model.CommandSource   `json:"motor_source"`
	RuntimeSeconds    float64               `json:"runtime_seconds"`
	SafetyBlocked     bool                  `json:"safety_blocked"`
	AutoMode          bool                  `json:"auto_mode"`
	OverrideActive    bool                  `json:"override_active"`
	OverrideSource    model.CommandSource   `json:"override_source"`
	AlertFlags        model.AlertFlags      `json:"alert_flags"`
	Connection        model.ConnPhase       `json:"connection"`
	BackendResponsive bool                  `json:"backend_responsive"`
	UptimeSeconds     float64               `json:"uptime_seconds"`
}

type Loop struct {
	cfg *config.Config

	floatSwitch hardware.BinaryLevelSwitch
	button      hardware.DigitalInput
	toggle      hardware.DigitalInput

	fuse   *fusion.Engine
	arb    *arbiter.Arbiter
	il     *interlock.Interlock
	alerts *alerts.Evaluator
	mgr    *connmgr.Manager
	link   telemetry.Link

	journal *sql.DB

	switchDeb *input.Debouncer
	buttonDeb *input.Debouncer
	toggleDeb *input.Debouncer

	startedAt         time.Time
	lastHeartbeat     time.Time
	lastPrune         time.Time
	prevSafetyBlocked bool
	statusRequested   bool

	local chan commands.Command

	mu   sync.RWMutex
	snap Snapshot
}

func New(
	cfg *config.Config,
	floatSwitch hardware.BinaryLevelSwitch,
	button, toggle hardware.DigitalInput,
	fuse *fusion.Engine,
	arb *arbiter.Arbiter,
	il *interlock.Interlock,
	evaluator *alerts.Evaluator,
	mgr *connmgr.Manager,
	link telemetry.Link,
	journal *sql.DB,
	now time.Time,
) *Loop {
	debounce := time.Duration(cfg.DebounceMS) * time.Millisecond
	return &Loop{
		cfg:           cfg,
		floatSwitch:   floatSwitch,
		button:        button,
		toggle:        toggle,
		fuse:          fuse,
		arb:           arb,
		il:            il,
		alerts:        evaluator,
		mgr:           mgr,
		link:          link,
		journal:       journal,
		switchDeb:     input.NewDebouncer(debounce),
		buttonDeb:     input.NewDebouncer(debounce),
		toggleDeb:     input.NewDebouncer(debounce),
		startedAt:     now,
		lastHeartbeat: now,
		lastPrune:     now,
		local:         make(chan commands.Command, 16),
	}
}

// Run drives ticks until the context is cancelled.
func (l *Loop) Run(ctx context.Context) {
	interval := time.Duration(l.cfg.TickIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Starting control loop")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopping")
			return
		case now := <-ticker.C:
			l.Tick(now)
		}
	}
}

// SubmitCommand queues a command from the local HTTP API. It shares the
// remote command path so precedence and session rules apply identically.
func (l *Loop) SubmitCommand(c commands.Command) {
	select {
	case l.local <- c:
	default:
		log.Warn().Str("kind", string(c.Kind)).Msg("Local command queue full, dropping")
	}
}

// Tick runs one full control cycle. Exported so tests can drive time.
func (l *Loop) Tick(now time.Time) {
	// 1. physical inputs, debounced at the boundary
	wet := l.readSwitch(now)
	buttonEdge := l.readInput(l.button, l.buttonDeb, now)
	toggleEdge := l.readInput(l.toggle, l.toggleDeb, now)

	// 2. sensor fusion completes before anything consumes level
	reading := l.fuse.Read(wet)

	// 3. drain link events and inbound commands
	connRes := l.mgr.Tick(now)
	remote := l.handleInbound(connRes.Messages, now)

	// 4. arbitration and the safety interlock
	dec := l.arb.Arbitrate(arbiter.Inputs{
		ButtonEdge:      buttonEdge,
		ToggleHeld:      l.toggleDeb.State(),
		ToggleEdge:      toggleEdge,
		RemoteRequested: remote != nil,
		RemoteRun:       remote != nil && remote.Run,
		Wet:             wet,
		Now:             now,
	})

	motorEvents := l.il.Tick(dec, reading, wet, now)
	for _, ev := range motorEvents {
		if !ev.Blocked && !ev.Running {
			l.arb.NoteMotorStopped(ev.StoppedBy)
		}
	}
	l.emitMotorEvents(motorEvents, now)

	// 5. alert evaluation over the fused level
	l.alerts.SetSafetyBlocked(l.il.SafetyBlocked())
	l.emitSafetyBlockedEdge(now)
	for _, ev := range l.alerts.Evaluate(reading.Percent) {
		l.emitAlert(ev, now)
	}

	// 6. telemetry, heartbeat, connection state
	l.send(telemetry.NewEvent(telemetry.TypeSensorData, now, telemetry.SensorData{
		LevelPercent: reading.Percent,
		VolumeLiters: reading.VolumeLiters,
		SensorHealth: sensorHealth(reading),
		SwitchState:  wet,
	}))

	for _, phase := range connRes.Transitions {
		l.emitConnectionState(phase, now)
	}

	if now.Sub(l.lastHeartbeat) >= time.Duration(l.cfg.Telemetry.HeartbeatSeconds)*time.Second {
		l.lastHeartbeat = now
		l.send(telemetry.NewEvent(telemetry.TypeHeartbeat, now, telemetry.Heartbeat{
			UptimeSeconds: now.Sub(l.startedAt).Seconds(),
			MotorRunning:  l.il.State().Running(),
			LevelPercent:  reading.Percent,
		}))
	}

	if l.statusRequested {
		l.statusRequested = false
		l.sendMotorStatus(now)
	}

	// 7. metrics and the published snapshot
	datadog.Gauge("tank.level_percent", reading.Percent, "component:fusion")
	datadog.Gauge("tank.volume_liters", reading.VolumeLiters, "component:fusion")
	datadog.Gauge("motor.runtime_seconds", l.il.RuntimeSeconds(now), "component:interlock")

	l.pruneJournal(now)
	l.publishSnapshot(reading, wet, now)
}

func (l *Loop) readSwitch(now time.Time) bool {
	raw, err := l.floatSwitch.Read()
	if err != nil {
		// keep the last debounced state; a transient read fault must not
		// flip the safety-of-record signal
		log.Error().Err(err).Msg("Float switch read failed")
		return l.switchDeb.State()
	}
	l.switchDeb.Update(raw, now)
	return l.switchDeb.State()
}

func (l *Loop) readInput(in hardware.DigitalInput, deb *input.Debouncer, now time.Time) input.Edge {
	raw, err := in.Read()
	if err != nil {
		log.Error().Err(err).Msg("Digital input read failed")
		return input.EdgeNone
	}
	return deb.Update(raw, now)
}

type remoteMotorRequest struct {
	Run bool
}

// handleInbound applies inbound commands. Only motor_control feeds the
// arbiter; the rest act directly. The last motor_control of a tick wins.
func (l *Loop) handleInbound(messages [][]byte, now time.Time) *remoteMotorRequest {
	var remote *remoteMotorRequest

	apply := func(c commands.Command) {
		switch c.Kind {
		case commands.KindMotorControl:
			remote = &remoteMotorRequest{Run: c.Run}
		case commands.KindAutoMode:
			l.arb.SetAutoMode(c.Enabled)
		case commands.KindResetManual:
			l.arb.ResetManual()
		case commands.KindGetStatus:
			l.statusRequested = true
		case commands.KindPong:
			l.mgr.RecordPong(now)
		}
	}

	for _, payload := range messages {
		c, err := commands.Parse(payload)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping inbound message")
			l.send(telemetry.NewEvent(telemetry.TypeRejection, now, telemetry.Rejection{Reason: err.Error()}))
			continue
		}
		apply(c)
	}

	for {
		select {
		case c := <-l.local:
			apply(c)
		default:
			return remote
		}
	}
}

func (l *Loop) emitMotorEvents(events []interlock.Event, now time.Time) {
	for _, ev := range events {
		if ev.Blocked {
			continue
		}

		l.sendMotorStatus(now)
		l.journalWrite(now, "motor", string(ev.Source)+" "+ev.Reason)
		datadog.Count("motor.transitions", 1, "reason:"+ev.Reason)

		if ev.Reason == "max_runtime" {
			if err := notifications.Send("Sump pump safety stop", "Motor exceeded maximum runtime and was stopped"); err != nil {
				log.Debug().Err(err).Msg("Notification not sent")
			}
		}
	}
}

func (l *Loop) emitSafetyBlockedEdge(now time.Time) {
	blocked := l.il.SafetyBlocked()
	if blocked && !l.prevSafetyBlocked {
		alert := telemetry.SystemAlert{
			Kind:    string(model.AlertMotorSafety),
			Message: "Motor start refused by safety guard",
		}
		l.send(telemetry.NewEvent(telemetry.TypeSystemAlert, now, alert))
		l.journalWrite(now, "alert", alert.Kind+": "+alert.Message)
	}
	l.prevSafetyBlocked = blocked
}

func (l *Loop) emitAlert(ev alerts.Event, now time.Time) {
	l.send(telemetry.NewEvent(telemetry.TypeSystemAlert, now, telemetry.SystemAlert{
		Kind:    string(ev.Kind),
		Message: ev.Message,
		Cleared: ev.Cleared,
	}))
	l.journalWrite(now, "alert", string(ev.Kind)+": "+ev.Message)

	if ev.Kind == model.AlertCritical && !ev.Cleared {
		if err := notifications.Send("Water level critical", ev.Message); err != nil {
			log.Debug().Err(err).Msg("Notification not sent")
		}
	}
}

func (l *Loop) emitConnectionState(phase model.ConnPhase, now time.Time) {
	l.send(telemetry.NewEvent(telemetry.TypeConnectionState, now, telemetry.ConnectionState{
		State:             string(phase),
		BackendResponsive: l.mgr.BackendResponsive(),
	}))
	l.journalWrite(now, "connection", string(phase))
	datadog.Count("connection.transitions", 1, "state:"+string(phase))
}

func (l *Loop) sendMotorStatus(now time.Time) {
	st := l.il.State()
	l.send(telemetry.NewEvent(telemetry.TypeMotorStatus, now, telemetry.MotorStatus{
		Running:        st.Running(),
		Source:         string(st.CommandSource),
		RuntimeSeconds: l.il.RuntimeSeconds(now),
		SafetyBlocked:  l.il.SafetyBlocked(),
	}))
}

// send hands an event to the link when the connection manager allows it.
// Failures are logged and never propagate into the control path.
func (l *Loop) send(e telemetry.Event) {
	if !l.mgr.CanSend() {
		return
	}
	if err := l.link.Send(e); err != nil {
		log.Debug().Err(err).Str("type", e.Type).Msg("Telemetry send failed")
	}
}

func (l *Loop) journalWrite(now time.Time, kind, detail string) {
	if l.journal == nil {
		return
	}
	if err := db.InsertEvent(l.journal, now, kind, detail); err != nil {
		log.Error().Err(err).Msg("Failed to journal event")
	}
}

func (l *Loop) pruneJournal(now time.Time) {
	if l.journal == nil || now.Sub(l.lastPrune) < 24*time.Hour {
		return
	}
	l.lastPrune = now
	if n, err := db.Prune(l.journal, now.Add(-30*24*time.Hour)); err != nil {
		log.Error().Err(err).Msg("Failed to prune journal")
	} else if n > 0 {
		log.Info().Int64("rows", n).Msg("Pruned old journal events")
	}
}

func (l *Loop) publishSnapshot(reading model.LevelReading, wet bool, now time.Time) {
	st := l.il.State()
	session := l.arb.Session()

	l.mu.Lock()
	l.snap = Snapshot{
		At:                now,
		LevelPercent:      reading.Percent,
		VolumeLiters:      reading.VolumeLiters,
		SensorHealth:      sensorHealth(reading),
		SwitchWet:         wet,
		MotorRunning:      st.Running(),
		MotorSource:       st.CommandSource,
		RuntimeSeconds:    l.il.RuntimeSeconds(now),
		SafetyBlocked:     l.il.SafetyBlocked(),
		AutoMode:          l.arb.AutoMode(),
		OverrideActive:    session.Active,
		OverrideSource:    session.Source,
		AlertFlags:        l.alerts.Flags(),
		Connection:        l.mgr.Phase(),
		BackendResponsive: l.mgr.BackendResponsive(),
		UptimeSeconds:     now.Sub(l.startedAt).Seconds(),
	}
	l.mu.Unlock()
}

// Snapshot returns the most recent published state. Safe for concurrent
// use by the HTTP API.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

func sensorHealth(r model.LevelReading) string {
	if r.Valid {
		return "good"
	}
	return "error"
}
