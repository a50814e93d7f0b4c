// Package connmgr tracks telemetry link health and schedules reconnection
// attempts with exponential backoff. Link callbacks are queued and drained
// by the control loop's tick, so the loop stays the only state mutator.
package connmgr

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/internal/model"
	"github.com/thatsimonsguy/sump-controller/internal/telemetry"
)

type Config struct {
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	StableWindow        time.Duration
	PingInterval        time.Duration
	LivenessTimeout     time.Duration
	MaxMissedHeartbeats int
}

// Delay returns the backoff delay before attempt k (0-indexed):
// min(base * 2^min(k,6), cap).
func Delay(base, cap time.Duration, k uint) time.Duration {
	e := k
	if e > 6 {
		e = 6
	}
	d := base << e
	if d > cap {
		return cap
	}
	return d
}

type eventKind int

const (
	evConnected eventKind = iota
	evConnectFailed
	evDisconnected
	evError
	evMessage
)

type linkEvent struct {
	kind    eventKind
	err     error
	payload []byte
}

// TickResult carries what one tick produced: inbound payloads for the
// command layer and any connection state transitions for telemetry.
type TickResult struct {
	Messages    [][]byte
	Transitions []model.ConnPhase
}

type Manager struct {
	link telemetry.Link
	cfg  Config

	phase         model.ConnPhase
	attempts      uint
	lastAttemptAt time.Time
	establishedAt time.Time

	lastPingAt       time.Time
	lastPongAt       time.Time
	pongSinceConnect bool
	lastMissAt       time.Time
	missedHeartbeats int
	responsive       bool

	inflight bool
	events   chan linkEvent
}

func New(link telemetry.Link, cfg Config, now time.Time) *Manager {
	m := &Manager{
		link:          link,
		cfg:           cfg,
		phase:         model.ConnDisconnected,
		lastAttemptAt: now, // attempt 0 is due after the base backoff delay
		responsive:    true,
		events:        make(chan linkEvent, 64),
	}

	link.SetHandlers(telemetry.Handlers{
		// connect outcomes are reported by the Connect() call itself
		OnDisconnect: func(err error) { m.push(linkEvent{kind: evDisconnected, err: err}) },
		OnError:      func(err error) { m.push(linkEvent{kind: evError, err: err}) },
		OnMessage:    func(p []byte) { m.push(linkEvent{kind: evMessage, payload: p}) },
	})

	return m
}

func (m *Manager) push(ev linkEvent) {
	select {
	case m.events <- ev:
	default:
		log.Warn().Msg("Link event queue full, dropping event")
	}
}

// Tick drains queued link events, advances the state machine and issues a
// connection attempt when the backoff delay has elapsed.
func (m *Manager) Tick(now time.Time) TickResult {
	var res TickResult

	for {
		var ev linkEvent
		select {
		case ev = <-m.events:
		default:
			return m.advance(now, &res)
		}
		m.apply(ev, now, &res)
	}
}

func (m *Manager) apply(ev linkEvent, now time.Time, res *TickResult) {
	switch ev.kind {
	case evConnected:
		m.inflight = false
		if m.phase == model.ConnConnecting {
			m.setPhase(model.ConnConnected, now, res)
			m.attempts = 0
			m.establishedAt = now
			m.pongSinceConnect = false
			m.lastPingAt = time.Time{}
		}

	case evConnectFailed:
		m.inflight = false
		if m.phase != model.ConnConnecting {
			return
		}
		log.Warn().
			Err(ev.err).
			Uint("attempts", m.attempts).
			Dur("next_delay", Delay(m.cfg.BackoffBase, m.cfg.BackoffCap, m.attempts)).
			Msg("Connection attempt failed")
		// once the delay has hit the ceiling the state reads Disconnected,
		// but attempts keep being issued at the cap; reconnection is never
		// abandoned
		if Delay(m.cfg.BackoffBase, m.cfg.BackoffCap, m.attempts) >= m.cfg.BackoffCap {
			m.setPhase(model.ConnDisconnected, now, res)
		} else {
			m.setPhase(model.ConnReconnecting, now, res)
		}

	case evDisconnected, evError:
		if m.phase == model.ConnConnected || m.phase == model.ConnStable {
			log.Warn().Err(ev.err).Str("phase", string(m.phase)).Msg("Link lost")
			m.setPhase(model.ConnReconnecting, now, res)
			// reset so the first retry after a long stable run is fast
			m.attempts = 0
			m.lastAttemptAt = now
		}

	case evMessage:
		res.Messages = append(res.Messages, ev.payload)
	}
}

func (m *Manager) advance(now time.Time, res *TickResult) TickResult {
	switch m.phase {
	case model.ConnDisconnected, model.ConnReconnecting:
		if !m.inflight && now.Sub(m.lastAttemptAt) >= Delay(m.cfg.BackoffBase, m.cfg.BackoffCap, m.attempts) {
			m.beginAttempt(now, res)
		}

	case model.ConnConnected, model.ConnStable:
		m.maintainLiveness(now, res)
	}

	return *res
}

func (m *Manager) beginAttempt(now time.Time, res *TickResult) {
	k := m.attempts
	m.setPhase(model.ConnConnecting, now, res)
	m.lastAttemptAt = now
	m.attempts++
	m.inflight = true

	log.Info().Uint("attempt", k).Msg("Attempting telemetry connection")

	go func() {
		if err := m.link.Connect(); err != nil {
			m.push(linkEvent{kind: evConnectFailed, err: err})
			return
		}
		m.push(linkEvent{kind: evConnected})
	}()
}

func (m *Manager) maintainLiveness(now time.Time, res *TickResult) {
	if now.Sub(m.lastPingAt) >= m.cfg.PingInterval {
		m.lastPingAt = now
		if err := m.link.Send(telemetry.NewEvent(telemetry.TypePing, now, nil)); err != nil {
			log.Debug().Err(err).Msg("Ping send failed")
		}
	}

	lastSignal := m.establishedAt
	if m.lastPongAt.After(lastSignal) {
		lastSignal = m.lastPongAt
	}

	if now.Sub(lastSignal) > m.cfg.LivenessTimeout && now.Sub(m.lastMissAt) >= m.cfg.LivenessTimeout {
		m.lastMissAt = now
		m.missedHeartbeats++
		m.responsive = false
		log.Warn().
			Int("missed", m.missedHeartbeats).
			Dur("silence", now.Sub(lastSignal)).
			Msg("Backend unresponsive to liveness pings")

		if m.missedHeartbeats >= m.cfg.MaxMissedHeartbeats && m.phase == model.ConnStable {
			log.Warn().Msg("Too many consecutive missed heartbeats, forcing reconnect")
			m.link.Close()
			m.setPhase(model.ConnReconnecting, now, res)
			m.attempts = 0
			m.lastAttemptAt = now
			m.missedHeartbeats = 0
		}
		return
	}

	if m.phase == model.ConnConnected && m.pongSinceConnect && now.Sub(m.establishedAt) >= m.cfg.StableWindow {
		m.setPhase(model.ConnStable, now, res)
	}
}

func (m *Manager) setPhase(p model.ConnPhase, now time.Time, res *TickResult) {
	if m.phase == p {
		return
	}
	log.Info().
		Str("from", string(m.phase)).
		Str("to", string(p)).
		Msg("Connection state transition")
	m.phase = p
	res.Transitions = append(res.Transitions, p)
}

// RecordPong notes a liveness round-trip reply from the backend.
func (m *Manager) RecordPong(now time.Time) {
	m.lastPongAt = now
	m.pongSinceConnect = true
	m.missedHeartbeats = 0
	m.responsive = true
}

// CanSend reports whether outbound events should be handed to the link.
func (m *Manager) CanSend() bool {
	return m.phase == model.ConnConnected || m.phase == model.ConnStable
}

func (m *Manager) Phase() model.ConnPhase { return m.phase }
func (m *Manager) Attempts() uint         { return m.attempts }
func (m *Manager) BackendResponsive() bool {
	return m.responsive
}
