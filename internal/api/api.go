package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/sump-controller/db"
	"github.com/thatsimonsguy/sump-controller/internal/commands"
	"github.com/thatsimonsguy/sump-controller/internal/controlloop"
)

// CommandSink accepts commands from the local API. The control loop
// implements it; commands share the remote path so session rules apply.
type CommandSink interface {
	SubmitCommand(c commands.Command)
	Snapshot() controlloop.Snapshot
}

type Server struct {
	journal *sql.DB
	sink    CommandSink
}

type MotorRequest struct {
	Run bool `json:"run"`
}

type ModeRequest struct {
	Enabled bool `json:"enabled"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(journal *sql.DB, sink CommandSink) *Server {
	return &Server{journal: journal, sink: sink}
}

func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Add CORS middleware
	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/motor", s.handleMotor)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/reset", s.handleReset)

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, corsHandler)
}

// Handler returns the routed handler without binding a listener. Used by
// tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/motor", s.handleMotor)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/reset", s.handleReset)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sink.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Event journal unavailable")
		return
	}

	rows, err := db.RecentEvents(s.journal, 100)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read event journal")
		s.writeError(w, http.StatusInternalServerError, "Failed to read events")
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMotor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req MotorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.sink.SubmitCommand(commands.Command{Kind: commands.KindMotorControl, Run: req.Run})
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.sink.SubmitCommand(commands.Command{Kind: commands.KindAutoMode, Enabled: req.Enabled})
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.sink.SubmitCommand(commands.Command{Kind: commands.KindResetManual})
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
