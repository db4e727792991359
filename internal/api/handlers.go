package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ebbtide-net/ebbtide/internal/domain"
)

// handleTimerState returns the logical timer snapshot.
// GET /v1/timer
func (s *Server) handleTimerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

// handleToggle flips between running and paused.
// POST /v1/timer/toggle
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Timer().ToggleActive(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// handleSetActive drives the timer to an explicit active state.
// POST /v1/timer/active {"active": bool}
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.session.Timer().SetActive(r.Context(), req.Active); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// handleReset resets the current stage.
// POST /v1/timer/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Timer().ResetStage(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// handleNextStage flips focus/relax.
// POST /v1/timer/next
func (s *Server) handleNextStage(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Timer().NextStage(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// handleHistory returns the focus intervals sorted ascending by start.
// GET /v1/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	intervals := s.session.History().Intervals()
	if intervals == nil {
		intervals = []domain.Interval{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"intervals": intervals,
	})
}

// handleBestHours returns the productivity histogram and its derived views.
// GET /v1/best-hours
func (s *Server) handleBestHours(w http.ResponseWriter, r *http.Request) {
	hours := s.session.BestHours()
	mem := hours.Memory()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scores":           mem.Scores,
		"normalizedScores": hours.NormalizedScores(),
		"bestHour":         hours.BestHour(),
		"bestPeriod":       hours.BestPeriod(),
		"pendingReview":    mem.PendingReview,
		"isReset":          mem.IsReset(),
	})
}

// handleReview rates the pending interval.
// POST /v1/best-hours/review {"review": "bad"|"okay"|"good"}
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Review domain.Review `json:"review"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.session.BestHours().SetPendingReview(r.Context(), req.Review); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pendingReview": string(req.Review)})
}

// handleResetHours zeroes the histogram.
// POST /v1/best-hours/reset
func (s *Server) handleResetHours(w http.ResponseWriter, r *http.Request) {
	if err := s.session.BestHours().ResetHours(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isReset": true})
}

// handleMe returns the current identity.
// GET /v1/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.session.Auth().Current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "identity not resolved")
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

// handleSignIn upgrades to a durable identity.
// POST /v1/auth/signin {"credential": "user:<id>"}
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.session.Auth().SignIn(r.Context(), req.Credential)
	ident, _ := s.session.Auth().Current()
	if err != nil {
		// The service already fell back to a fresh anonymous identity; the
		// caller learns the sign-in itself was rejected.
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":    "authentication failed",
			"identity": ident,
		})
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

// handleSignOut leaves the durable identity for a fresh anonymous one.
// POST /v1/auth/signout
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Auth().SignOut(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ident, _ := s.session.Auth().Current()
	writeJSON(w, http.StatusOK, ident)
}

func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNoIdentity):
		writeError(w, http.StatusServiceUnavailable, "identity not resolved")
	case errors.Is(err, domain.ErrInvalidReview):
		writeError(w, http.StatusBadRequest, "review must be bad, okay, or good")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
