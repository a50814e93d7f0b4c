package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/sump-controller/db"
	"github.com/thatsimonsguy/sump-controller/internal/commands"
	"github.com/thatsimonsguy/sump-controller/internal/controlloop"
)

type fakeSink struct {
	submitted []commands.Command
	snap      controlloop.Snapshot
}

func (f *fakeSink) SubmitCommand(c commands.Command) { f.submitted = append(f.submitted, c) }
func (f *fakeSink) Snapshot() controlloop.Snapshot   { return f.snap }

func newTestServer(t *testing.T) (*Server, *fakeSink) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	sink := &fakeSink{snap: controlloop.Snapshot{LevelPercent: 42.5, MotorRunning: true}}
	return NewServer(conn, sink), sink
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var snap controlloop.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.Equal(t, 42.5, snap.LevelPercent)
	assert.True(t, snap.MotorRunning)
}

func TestStatusRejectsPost(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestEventsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NoError(t, db.InsertEvent(srv.journal, time.Now(), "motor", "auto started"))

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rows []db.EventRow
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "motor", rows[0].Kind)
}

func TestMotorEndpointSubmitsCommand(t *testing.T) {
	srv, sink := newTestServer(t)

	body := bytes.NewBufferString(`{"run":true}`)
	req := httptest.NewRequest(http.MethodPut, "/api/motor", body)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, sink.submitted, 1)
	assert.Equal(t, commands.KindMotorControl, sink.submitted[0].Kind)
	assert.True(t, sink.submitted[0].Run)
}

func TestMotorEndpointRejectsBadBody(t *testing.T) {
	srv, sink := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/motor", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, sink.submitted)
}

func TestModeAndResetEndpoints(t *testing.T) {
	srv, sink := newTestServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/mode", bytes.NewBufferString(`{"enabled":false}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, sink.submitted, 2)
	assert.Equal(t, commands.KindAutoMode, sink.submitted[0].Kind)
	assert.False(t, sink.submitted[0].Enabled)
	assert.Equal(t, commands.KindResetManual, sink.submitted[1].Kind)
}
