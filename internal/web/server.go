// Package web provides the HTTP control surface and status page.
package web

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/status"
)

// Controller is the light command surface shared with the button path.
type Controller interface {
	TurnOn()
	TurnOff()
	SetTargetBrightness(pct float64)
	SetMode(m logic.Mode) error
	Snapshot() logic.LightState
}

// Server serves the control API and status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctl        Controller
}

// New creates a Server that reads state from tracker and sends commands to ctl.
func New(addr string, tracker *status.Tracker, ctl Controller) *Server {
	s := &Server{tracker: tracker, ctl: ctl}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/current-status", s.handleCurrentStatus)
	mux.HandleFunc("/lights-on", s.handleLightsOn)
	mux.HandleFunc("/lights-off", s.handleLightsOff)
	mux.HandleFunc("/brightness", s.handleBrightness)
	mux.HandleFunc("/mode", s.handleMode)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: withCORS(mux),
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// withCORS lets a UI served from another origin call the API.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// snapshot merges the tracker state with the live light state, so a
// command's effect is visible before the next tick refreshes the tracker.
func (s *Server) snapshot() status.Snapshot {
	snap := s.tracker.Snapshot()
	snap.Light = s.ctl.Snapshot()
	return snap
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.snapshot()))
}

func (s *Server) handleCurrentStatus(w http.ResponseWriter, r *http.Request) {
	s.writeCurrentStatus(w)
}

func (s *Server) writeCurrentStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatCurrentStatus(s.snapshot()))
}

func (s *Server) handleLightsOn(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	log.Info().Str("remote", r.RemoteAddr).Msg("http: lights on")
	s.ctl.TurnOn()
	s.writeCurrentStatus(w)
}

func (s *Server) handleLightsOff(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	log.Info().Str("remote", r.RemoteAddr).Msg("http: lights off")
	s.ctl.TurnOff()
	s.writeCurrentStatus(w)
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	v, err := strconv.ParseFloat(r.FormValue("brightness"), 64)
	if err != nil || math.IsNaN(v) {
		http.Error(w, "brightness must be a number", http.StatusBadRequest)
		return
	}
	log.Info().Float64("brightness", v).Str("remote", r.RemoteAddr).Msg("http: set brightness")
	s.ctl.SetTargetBrightness(v)
	s.writeCurrentStatus(w)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	m, err := logic.ParseMode(r.FormValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ctl.SetMode(m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.snapshot()))
}
