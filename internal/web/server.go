package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/example/cita-scheduler/internal/archive"
	"github.com/example/cita-scheduler/internal/logsink"
	"github.com/example/cita-scheduler/internal/state"
)

// Server is the operator dashboard: a thin JSON read/write surface over the
// run state. Configuration writes are whole-value replacements applied
// through RunState's atomic setters; the poll loop picks them up at its next
// iteration.
type Server struct {
	State    *state.RunState
	Log      *logsink.Sink
	Sessions *SessionManager
	// AdminHash is the bcrypt hash of the single operator password.
	AdminHash string
	Archive   *archive.Repo
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/api/status", s.requireAuth(http.MethodGet, s.handleStatus))
	mux.Handle("/api/config", s.requireAuth(http.MethodGet, s.handleConfig))
	mux.Handle("/api/config/target", s.requireAuth(http.MethodPut, s.handleTarget))
	mux.Handle("/api/config/autobook", s.requireAuth(http.MethodPut, s.handleAutoBook))
	mux.Handle("/api/start", s.requireAuth(http.MethodPost, s.handleStart))
	mux.Handle("/api/stop", s.requireAuth(http.MethodPost, s.handleStop))
	mux.Handle("/api/reset", s.requireAuth(http.MethodPost, s.handleReset))
	mux.Handle("/api/logs", s.requireAuth(http.MethodGet, s.handleLogs))
	mux.Handle("/api/bookings", s.requireAuth(http.MethodGet, s.handleBookings))
	mux.Handle("/api/history", s.requireAuth(http.MethodGet, s.handleHistory))

	return mux
}

func (s *Server) requireAuth(method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !s.Sessions.Valid(r) {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !checkPassword(s.AdminHash, body.Password) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	if err := s.Sessions.Set(w); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State.Status())
}

type partyView struct {
	PartyID     int    `json:"idparty"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

type configView struct {
	Target      state.PollTarget `json:"target"`
	AutoBook    bool             `json:"auto_book"`
	MinimumHour string           `json:"minimum_hour"`
	Parties     []partyView      `json:"parties"`
}

// handleConfig echoes the current configuration. Credentials never leave the
// process; only party ids and notification addresses are shown.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	enabled, minHour := s.State.AutoBook()
	view := configView{
		Target:      s.State.Target(),
		AutoBook:    enabled,
		MinimumHour: minHour,
		Parties:     []partyView{},
	}
	for _, q := range s.State.Queue() {
		view.Parties = append(view.Parties, partyView{PartyID: q.PartyID, NotifyEmail: q.NotifyEmail})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	var t state.PollTarget
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.State.SetTarget(t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Log.Printf("target replaced: location %d, date %s", t.LocationID, t.Date)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// autoBookInput replaces the whole auto-booking configuration on each
// update. Credentials arrive per party and are never echoed back.
type autoBookInput struct {
	Enabled     bool   `json:"enabled"`
	MinimumHour string `json:"minimum_hour"`
	Parties     []struct {
		PartyID     int    `json:"idparty"`
		Credential  string `json:"credential"`
		NotifyEmail string `json:"notify_email"`
	} `json:"parties"`
}

func (s *Server) handleAutoBook(w http.ResponseWriter, r *http.Request) {
	var in autoBookInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	cfg := state.AutoBookSettings{
		Enabled:     in.Enabled,
		MinimumHour: in.MinimumHour,
	}
	for _, p := range in.Parties {
		cfg.Queue = append(cfg.Queue, state.BookingRequest{
			PartyID:     p.PartyID,
			Credential:  p.Credential,
			NotifyEmail: p.NotifyEmail,
		})
	}
	if err := s.State.ReplaceAutoBook(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Log.Printf("auto-booking settings replaced: enabled=%v, %d queued, floor %s",
		in.Enabled, len(cfg.Queue), in.MinimumHour)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.State.SetRunning(true)
	s.Log.Printf("poller started by operator")
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	// takes effect at the current iteration's boundary
	s.State.SetRunning(false)
	s.Log.Printf("poller stopped by operator")
	writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.State.ResetCounters()
	s.Log.Printf("counters reset by operator")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = 100
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.Log.Recent(n)})
}

func (s *Server) handleBookings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bookings": s.State.Booked()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}
	rows, err := s.Archive.ListRecent(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": rows})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv.ListenAndServe()
}
