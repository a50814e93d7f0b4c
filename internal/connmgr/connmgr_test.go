package connmgr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sump-controller/internal/model"
	"github.com/thatsimonsguy/sump-controller/internal/telemetry"
)

func testConfig() Config {
	return Config{
		BackoffBase:         5 * time.Second,
		BackoffCap:          300 * time.Second,
		StableWindow:        60 * time.Second,
		PingInterval:        30 * time.Second,
		LivenessTimeout:     120 * time.Second,
		MaxMissedHeartbeats: 5,
	}
}

// tickUntil drives Tick with a fixed now until cond holds, giving the
// connect goroutine time to report back through the event queue.
func tickUntil(t *testing.T, m *Manager, now time.Time, res *TickResult, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not reached")
		r := m.Tick(now)
		res.Messages = append(res.Messages, r.Messages...)
		res.Transitions = append(res.Transitions, r.Transitions...)
		time.Sleep(time.Millisecond)
	}
}

func TestDelaySequence(t *testing.T) {
	base := 5 * time.Second
	cap := 300 * time.Second

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		300 * time.Second,
		300 * time.Second,
	}
	for k, expected := range want {
		assert.Equal(t, expected, Delay(base, cap, uint(k)), "attempt %d", k)
	}
	// the exponent stops growing, the delay stays pinned at the cap
	assert.Equal(t, 300*time.Second, Delay(base, cap, 20))
}

func TestFirstAttemptWaitsForBaseDelay(t *testing.T) {
	link := telemetry.NewFakeLink()
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	assert.Equal(t, model.ConnDisconnected, m.Phase())

	m.Tick(t0.Add(4 * time.Second))
	assert.Equal(t, 0, link.Connects)

	var res TickResult
	m.Tick(t0.Add(5 * time.Second))
	assert.Equal(t, model.ConnConnecting, m.Phase())
	tickUntil(t, m, t0.Add(5*time.Second), &res, func() bool {
		return m.Phase() == model.ConnConnected
	})
	assert.Equal(t, 1, link.Connects)
}

func TestBackoffDoublesOnFailure(t *testing.T) {
	link := telemetry.NewFakeLink()
	link.ConnectErrs = []error{errors.New("refused"), errors.New("refused")}
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	var res TickResult

	// first attempt fails
	m.Tick(t0.Add(5 * time.Second))
	tickUntil(t, m, t0.Add(5*time.Second), &res, func() bool {
		return m.Phase() == model.ConnReconnecting
	})
	assert.Equal(t, 1, link.Connects)

	// next attempt is not due until 10s after the failed one
	m.Tick(t0.Add(14 * time.Second))
	assert.Equal(t, 1, link.Connects)

	m.Tick(t0.Add(15 * time.Second))
	tickUntil(t, m, t0.Add(15*time.Second), &res, func() bool {
		return m.Phase() == model.ConnReconnecting && link.Connects == 2
	})

	// the third attempt succeeds after a 20s delay
	m.Tick(t0.Add(35 * time.Second))
	tickUntil(t, m, t0.Add(35*time.Second), &res, func() bool {
		return m.Phase() == model.ConnConnected
	})
	assert.Equal(t, uint(0), m.Attempts())
}

func TestStableAfterWindowAndPong(t *testing.T) {
	link := telemetry.NewFakeLink()
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	var res TickResult
	connectAt := t0.Add(5 * time.Second)
	m.Tick(connectAt)
	tickUntil(t, m, connectAt, &res, func() bool {
		return m.Phase() == model.ConnConnected
	})

	// sixty seconds of uptime alone is not enough
	m.Tick(connectAt.Add(61 * time.Second))
	assert.Equal(t, model.ConnConnected, m.Phase())

	m.RecordPong(connectAt.Add(62 * time.Second))
	m.Tick(connectAt.Add(62 * time.Second))
	assert.Equal(t, model.ConnStable, m.Phase())
	assert.True(t, m.CanSend())
}

func TestDisconnectFromStableRetriesQuickly(t *testing.T) {
	link := telemetry.NewFakeLink()
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	var res TickResult
	connectAt := t0.Add(5 * time.Second)
	m.Tick(connectAt)
	tickUntil(t, m, connectAt, &res, func() bool {
		return m.Phase() == model.ConnConnected
	})
	m.RecordPong(connectAt.Add(1 * time.Second))
	m.Tick(connectAt.Add(60 * time.Second))
	require.Equal(t, model.ConnStable, m.Phase())

	// a burst of link errors collapses into one transition
	lostAt := connectAt.Add(90 * time.Second)
	link.InjectError(errors.New("write: broken pipe"))
	link.InjectError(errors.New("write: broken pipe"))
	link.InjectDisconnect(errors.New("broker restart"))
	m.Tick(lostAt)
	assert.Equal(t, model.ConnReconnecting, m.Phase())
	assert.False(t, m.CanSend())

	// a long stable run resets the backoff; retry comes after the base delay
	connects := link.Connects
	m.Tick(lostAt.Add(4 * time.Second))
	assert.Equal(t, connects, link.Connects)

	m.Tick(lostAt.Add(5 * time.Second))
	tickUntil(t, m, lostAt.Add(5*time.Second), &res, func() bool {
		return m.Phase() == model.ConnConnected
	})
	assert.Equal(t, connects+1, link.Connects)
}

func TestLivenessMissesForceReconnect(t *testing.T) {
	link := telemetry.NewFakeLink()
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	var res TickResult
	connectAt := t0.Add(5 * time.Second)
	m.Tick(connectAt)
	tickUntil(t, m, connectAt, &res, func() bool {
		return m.Phase() == model.ConnConnected
	})
	m.RecordPong(connectAt.Add(1 * time.Second))
	m.Tick(connectAt.Add(60 * time.Second))
	require.Equal(t, model.ConnStable, m.Phase())

	// four silent liveness windows degrade responsiveness but keep the link
	lastPong := connectAt.Add(1 * time.Second)
	for i := 1; i <= 4; i++ {
		m.Tick(lastPong.Add(time.Duration(i)*121*time.Second + time.Second))
	}
	assert.Equal(t, model.ConnStable, m.Phase())
	assert.False(t, m.BackendResponsive())

	// the fifth consecutive miss forces a teardown
	m.Tick(lastPong.Add(5*121*time.Second + time.Second))
	assert.Equal(t, model.ConnReconnecting, m.Phase())
	assert.True(t, link.Closed)
	assert.Equal(t, uint(0), m.Attempts())
}

func TestPongResetsMissCount(t *testing.T) {
	link := telemetry.NewFakeLink()
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	var res TickResult
	connectAt := t0.Add(5 * time.Second)
	m.Tick(connectAt)
	tickUntil(t, m, connectAt, &res, func() bool {
		return m.Phase() == model.ConnConnected
	})
	m.RecordPong(connectAt.Add(1 * time.Second))
	m.Tick(connectAt.Add(60 * time.Second))
	require.Equal(t, model.ConnStable, m.Phase())

	m.Tick(connectAt.Add(130 * time.Second))
	assert.False(t, m.BackendResponsive())

	m.RecordPong(connectAt.Add(131 * time.Second))
	assert.True(t, m.BackendResponsive())
	assert.Equal(t, model.ConnStable, m.Phase())
}

func TestInboundMessagesSurfaceThroughTick(t *testing.T) {
	link := telemetry.NewFakeLink()
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	link.InjectMessage([]byte(`{"type":"pong"}`))
	res := m.Tick(t0)
	require.Len(t, res.Messages, 1)
	assert.JSONEq(t, `{"type":"pong"}`, string(res.Messages[0]))
}

func TestPingsSentWhileConnected(t *testing.T) {
	link := telemetry.NewFakeLink()
	t0 := time.Now()
	m := New(link, testConfig(), t0)

	var res TickResult
	connectAt := t0.Add(5 * time.Second)
	m.Tick(connectAt)
	tickUntil(t, m, connectAt, &res, func() bool {
		return m.Phase() == model.ConnConnected
	})

	m.Tick(connectAt.Add(time.Second))
	require.NotEmpty(t, link.TypesSent())
	assert.Equal(t, telemetry.TypePing, link.TypesSent()[0])

	// inside the interval no second ping goes out
	count := len(link.Events)
	m.Tick(connectAt.Add(20 * time.Second))
	assert.Equal(t, count, len(link.Events))

	m.Tick(connectAt.Add(32 * time.Second))
	assert.Equal(t, count+1, len(link.Events))
}
