// Package api provides the daemon's HTTP surface. Devices and browser tabs
// use it to drive the shared timer and to mirror its state, either by
// polling GET /v1/timer or by following the SSE feed at /v1/timer/events.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebbtide-net/ebbtide/internal/session"
)

// Server is the Ebbtide HTTP API server.
type Server struct {
	session        *session.Session
	hub            *EventHub
	metricsEnabled bool
	unsubState     func()
}

// NewServer creates an API server over an already-started session.
func NewServer(sess *session.Session) *Server {
	s := &Server{session: sess, hub: NewEventHub()}
	s.unsubState = sess.SubscribeState(s.hub.Broadcast)
	return s
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Close drops the state subscription feeding the event hub.
func (s *Server) Close() {
	if s.unsubState != nil {
		s.unsubState()
		s.unsubState = nil
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/timer", s.handleTimerState)
		r.Post("/timer/toggle", s.handleToggle)
		r.Post("/timer/active", s.handleSetActive)
		r.Post("/timer/reset", s.handleReset)
		r.Post("/timer/next", s.handleNextStage)
		r.Get("/timer/events", s.hub.HandleSSE)

		r.Get("/history", s.handleHistory)

		r.Get("/best-hours", s.handleBestHours)
		r.Post("/best-hours/review", s.handleReview)
		r.Post("/best-hours/reset", s.handleResetHours)

		r.Get("/auth/me", s.handleMe)
		r.Post("/auth/signin", s.handleSignIn)
		r.Post("/auth/signout", s.handleSignOut)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers so browser tabs on any origin can mirror
// the timer.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
